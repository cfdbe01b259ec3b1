package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

// Safe 操作类型
const (
	OperationCall         uint8 = 0
	OperationDelegateCall uint8 = 1
)

var (
	safeDomainTypeHash = crypto.Keccak256Hash([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypeHash     = crypto.Keccak256Hash([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// SafeTx Gnosis Safe execTransaction 的参数（不含签名）
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      uint8
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// NewSafeTx 构造无 gas 退款的普通调用（等价于 buildSafeTransaction({to, data, nonce})）
func NewSafeTx(to common.Address, data []byte, nonce *big.Int) SafeTx {
	return SafeTx{
		To:        to,
		Value:     new(big.Int),
		Data:      data,
		Operation: OperationCall,
		SafeTxGas: new(big.Int),
		BaseGas:   new(big.Int),
		GasPrice:  new(big.Int),
		Nonce:     nonce,
	}
}

// SafeDomainSeparator EIP-712 domain separator（Safe >= 1.3，含 chainId）
func SafeDomainSeparator(chainID *big.Int, safe common.Address) common.Hash {
	return crypto.Keccak256Hash(safeDomainTypeHash[:], word(chainID), common.LeftPadBytes(safe[:], 32))
}

// Hash 与合约 getTransactionHash 相同的 EIP-712 哈希
func (tx SafeTx) Hash(chainID *big.Int, safe common.Address) common.Hash {
	structHash := crypto.Keccak256Hash(
		safeTxTypeHash[:],
		common.LeftPadBytes(tx.To[:], 32),
		word(tx.Value),
		crypto.Keccak256(tx.Data),
		word(new(big.Int).SetUint64(uint64(tx.Operation))),
		word(tx.SafeTxGas),
		word(tx.BaseGas),
		word(tx.GasPrice),
		common.LeftPadBytes(tx.GasToken[:], 32),
		common.LeftPadBytes(tx.RefundReceiver[:], 32),
		word(tx.Nonce),
	)
	domain := SafeDomainSeparator(chainID, safe)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain[:], structHash[:])
}

// ExecArgs execTransaction 的 ABI 参数顺序
func (tx SafeTx) ExecArgs(signatures []byte) []interface{} {
	return []interface{}{
		tx.To, orZero(tx.Value), tx.Data, tx.Operation,
		orZero(tx.SafeTxGas), orZero(tx.BaseGas), orZero(tx.GasPrice),
		tx.GasToken, tx.RefundReceiver, signatures,
	}
}

func word(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return math.U256Bytes(new(big.Int).Set(v))
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
