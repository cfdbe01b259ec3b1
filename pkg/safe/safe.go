// Package safe 控制者执行能力：私钥直签、Gnosis Safe 多签执行、批量文件记录
package safe

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"sort"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Direct 控制者就是一个外部账户，直接发送交易
type Direct struct {
	ledger  chain.Ledger
	account common.Address
}

var _ chain.Executor = (*Direct)(nil)

// NewDirect 创建直签执行器
func NewDirect(ledger chain.Ledger, account common.Address) *Direct {
	return &Direct{ledger: ledger, account: account}
}

// Address 控制者地址
func (d *Direct) Address() common.Address { return d.account }

// Execute 以控制者身份发送交易
func (d *Direct) Execute(ctx context.Context, to common.Address, contract, method string, args ...interface{}) (*chain.Receipt, error) {
	return d.ledger.Transact(ctx, d.account, to, contract, method, args...)
}

// Signer 以 ECDSA 私钥签署 Safe 交易哈希的 owner
type Signer struct {
	Key *ecdsa.PrivateKey
}

// Address owner 地址
func (s Signer) Address() common.Address {
	return crypto.PubkeyToAddress(s.Key.PublicKey)
}

// Sign 返回 Safe 格式签名（v = 27/28）
func (s Signer) Sign(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], s.Key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}

// Safe 通过 execTransaction 执行的多签控制者
//
// Approvers 以预批准哈希（v=1）签名：非提交者会先发送 approveHash；
// Signers 以 ECDSA 离线签名。签名合计需达到 Safe 的 threshold。
type Safe struct {
	ledger    chain.Ledger
	address   common.Address
	sender    common.Address
	approvers []common.Address
	signers   []Signer
}

var _ chain.Executor = (*Safe)(nil)

// Option Safe 执行器选项
type Option func(*Safe)

// WithApprovers 追加预批准哈希的 owner
func WithApprovers(owners ...common.Address) Option {
	return func(s *Safe) { s.approvers = append(s.approvers, owners...) }
}

// WithSigners 追加 ECDSA 签名 owner
func WithSigners(signers ...Signer) Option {
	return func(s *Safe) { s.signers = append(s.signers, signers...) }
}

// New 创建 Safe 执行器；sender 为提交 execTransaction 的账户。
// 未指定任何签名者时，sender 作为唯一预批准 owner（等价于 safeApproveHash(account, ..., true)）。
func New(ledger chain.Ledger, address, sender common.Address, opts ...Option) *Safe {
	s := &Safe{ledger: ledger, address: address, sender: sender}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.approvers) == 0 && len(s.signers) == 0 {
		s.approvers = []common.Address{sender}
	}
	return s
}

// Address Safe 地址
func (s *Safe) Address() common.Address { return s.address }

// Nonce 读取 Safe 当前 nonce
func (s *Safe) Nonce(ctx context.Context) (*big.Int, error) {
	out, err := s.ledger.Call(ctx, s.sender, s.address, contracts.GnosisSafe, "nonce")
	if err != nil {
		return nil, fmt.Errorf("failed to read safe nonce: %w", err)
	}
	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce result %T", out[0])
	}
	return nonce, nil
}

// TransactionHash 计算 Safe 交易哈希
func (s *Safe) TransactionHash(ctx context.Context, tx contracts.SafeTx) (common.Hash, error) {
	chainID, err := s.ledger.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(chainID, s.address), nil
}

// Execute 打包调用、收集签名并提交 execTransaction
func (s *Safe) Execute(ctx context.Context, to common.Address, contract, method string, args ...interface{}) (*chain.Receipt, error) {
	data, err := contracts.Pack(contract, method, args...)
	if err != nil {
		return nil, err
	}
	nonce, err := s.Nonce(ctx)
	if err != nil {
		return nil, err
	}
	tx := contracts.NewSafeTx(to, data, nonce)
	hash, err := s.TransactionHash(ctx, tx)
	if err != nil {
		return nil, err
	}

	signatures, err := s.collectSignatures(ctx, hash)
	if err != nil {
		return nil, err
	}

	log.Printf("[Safe] %s.%s -> %s via %s (nonce %s)", contract, method, to.Hex(), s.address.Hex(), nonce)
	receipt, err := s.ledger.Transact(ctx, s.sender, s.address, contracts.GnosisSafe, "execTransaction", tx.ExecArgs(signatures)...)
	if err != nil {
		return nil, err
	}
	if _, failed := receipt.FindEventFrom(s.address, "ExecutionFailure"); failed {
		return receipt, &chain.RevertError{Reason: chain.ReasonSafeTxFailed}
	}
	return receipt, nil
}

type ownerSig struct {
	owner common.Address
	sig   []byte
}

func (s *Safe) collectSignatures(ctx context.Context, hash common.Hash) ([]byte, error) {
	sigs := make([]ownerSig, 0, len(s.approvers)+len(s.signers))

	for _, owner := range s.approvers {
		if owner != s.sender {
			if _, err := s.ledger.Transact(ctx, owner, s.address, contracts.GnosisSafe, "approveHash", [32]byte(hash)); err != nil {
				return nil, fmt.Errorf("approveHash by %s failed: %w", owner.Hex(), err)
			}
		}
		sigs = append(sigs, ownerSig{owner: owner, sig: ApprovedHashSignature(owner)})
	}
	for _, signer := range s.signers {
		sig, err := signer.Sign(hash)
		if err != nil {
			return nil, fmt.Errorf("failed to sign safe tx: %w", err)
		}
		sigs = append(sigs, ownerSig{owner: signer.Address(), sig: sig})
	}

	return joinSignatures(sigs), nil
}

// ApprovedHashSignature 预批准哈希签名：r = owner，s = 0，v = 1
func ApprovedHashSignature(owner common.Address) []byte {
	sig := make([]byte, 65)
	copy(sig[12:32], owner[:])
	sig[64] = 1
	return sig
}

// joinSignatures Safe 要求签名按 owner 地址升序拼接
func joinSignatures(sigs []ownerSig) []byte {
	sort.Slice(sigs, func(i, j int) bool {
		return bytes.Compare(sigs[i].owner[:], sigs[j].owner[:]) < 0
	})
	out := make([]byte, 0, 65*len(sigs))
	for _, s := range sigs {
		out = append(out, s.sig...)
	}
	return out
}
