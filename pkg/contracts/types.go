package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// 策略接口的 ERC165 interfaceId
var (
	DepositSelector       = [4]byte{0x14, 0x23, 0xfe, 0xba}
	WithdrawSelector      = [4]byte{0xdc, 0xbd, 0x7a, 0x53}
	HarvestSelector       = [4]byte{0xf0, 0x23, 0xa6, 0x93}
	SimulateClaimSelector = [4]byte{0xbd, 0xcc, 0xeb, 0x0f}
)

// StrategySelectors 判定一个模块为策略时必须全部支持的接口
func StrategySelectors() [][4]byte {
	return [][4]byte{DepositSelector, WithdrawSelector, HarvestSelector, SimulateClaimSelector}
}

// Harvest simulateClaim 返回的 (token, amount) 项
type Harvest struct {
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// Swap ExchangeDataProvider 计算的单条兑换
type Swap struct {
	Router    common.Address   `json:"router"`
	Path      []common.Address `json:"path"`
	AmountIn  *big.Int         `json:"amountIn"`
	AmountOut *big.Int         `json:"amountOut"`
}

// DecodeHarvests 将 ABI 解出的 tuple[]（匿名结构体切片）转为 []Harvest
func DecodeHarvests(v interface{}) (out []Harvest, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected harvest tuple %T: %v", v, r)
		}
	}()
	if v == nil {
		return nil, nil
	}
	return *abi.ConvertType(v, new([]Harvest)).(*[]Harvest), nil
}

// DecodeSwaps 同 DecodeHarvests，用于 swaps 返回值
func DecodeSwaps(v interface{}) (out []Swap, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected swap tuple %T: %v", v, r)
		}
	}()
	if v == nil {
		return nil, nil
	}
	return *abi.ConvertType(v, new([]Swap)).(*[]Swap), nil
}

// HasSelector 判断 supportsInterface 结果集合是否覆盖全部策略选择器
func HasSelector(got map[[4]byte]bool, want ...[4]byte) bool {
	for _, sel := range want {
		if !got[sel] {
			return false
		}
	}
	return true
}
