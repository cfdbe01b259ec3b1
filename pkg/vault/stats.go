package vault

import (
	"context"
	"fmt"
	"math/big"

	"medici/pkg/contracts"
	"medici/pkg/types"

	"github.com/ethereum/go-ethereum/common"
)

// PoolInfo 策略池
type PoolInfo struct {
	ID           uint64
	Name         string
	DepositToken common.Address
}

// Pool 读取池名称与存款代币
func (o *Orchestrator) Pool(ctx context.Context, strategy common.Address, id uint64) (*PoolInfo, error) {
	out, err := o.ledger.Call(ctx, common.Address{}, strategy, contracts.AbstractStrategy, "poolName", bigInt(id))
	if err != nil {
		return nil, classify(err)
	}
	name, err := callResult[string](out, 0, "poolName")
	if err != nil {
		return nil, err
	}
	info := &PoolInfo{ID: id, Name: name}
	out, err = o.ledger.Call(ctx, common.Address{}, strategy, contracts.AbstractStrategy, "depositToken", bigInt(id))
	if err != nil {
		return nil, classify(err)
	}
	if info.DepositToken, err = callResult[common.Address](out, 0, "depositToken"); err != nil {
		return nil, err
	}
	return info, nil
}

// ListPools 列出 [start, end) 内的池
func (o *Orchestrator) ListPools(ctx context.Context, strategy common.Address, start, end uint64) ([]PoolInfo, error) {
	if end < start {
		return nil, fmt.Errorf("invalid pool range [%d, %d)", start, end)
	}
	pools := make([]PoolInfo, 0, end-start)
	for id := start; id < end; id++ {
		info, err := o.Pool(ctx, strategy, id)
		if err != nil {
			return nil, fmt.Errorf("pool %d: %w", id, err)
		}
		pools = append(pools, *info)
	}
	return pools, nil
}

// Stats 策略在某池中对某 safe 的概况
type Stats struct {
	Name      string
	Version   string
	Pool      PoolInfo
	Deposited *big.Int
	Harvests  []contracts.Harvest
}

// Stats 读取名称、版本、池信息、持仓与可领取奖励
func (o *Orchestrator) Stats(ctx context.Context, strategy common.Address, pool uint64, safeAddr common.Address) (*Stats, error) {
	s := &Stats{}
	out, err := o.ledger.Call(ctx, common.Address{}, strategy, contracts.AbstractStrategy, "NAME")
	if err != nil {
		return nil, classify(err)
	}
	if s.Name, err = callResult[string](out, 0, "NAME"); err != nil {
		return nil, err
	}
	out, err = o.ledger.Call(ctx, common.Address{}, strategy, contracts.AbstractStrategy, "VERSION")
	if err != nil {
		return nil, classify(err)
	}
	if s.Version, err = callResult[string](out, 0, "VERSION"); err != nil {
		return nil, err
	}

	info, err := o.Pool(ctx, strategy, pool)
	if err != nil {
		return nil, err
	}
	s.Pool = *info
	pos, err := o.Position(ctx, strategy, pool, safeAddr)
	if err != nil {
		return nil, err
	}
	s.Deposited = pos.Deposited
	if s.Harvests, err = o.SimulateClaim(ctx, strategy, pool, safeAddr); err != nil {
		return nil, err
	}
	return s, nil
}

// TokenDecimals 读取 ERC20 decimals
func (o *Orchestrator) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := o.ledger.Call(ctx, common.Address{}, token, contracts.ERC20, "decimals")
	if err != nil {
		return 0, classify(err)
	}
	return callResult[uint8](out, 0, "decimals")
}

// ParsePoolAmount 按池存款代币的精度解析人类可读数量（"1.5" → 1500000 for 6 decimals）
func (o *Orchestrator) ParsePoolAmount(ctx context.Context, strategy common.Address, pool uint64, amount string) (*big.Int, error) {
	info, err := o.Pool(ctx, strategy, pool)
	if err != nil {
		return nil, err
	}
	decimals, err := o.TokenDecimals(ctx, info.DepositToken)
	if err != nil {
		return nil, err
	}
	return types.ParseUnits(amount, decimals)
}

// Unsigned 未发送的调用：--nosend 时输出给外部签名
type Unsigned struct {
	To   common.Address
	Data []byte
}

// DepositCall 构造 deposit calldata
func DepositCall(t Target, amount *big.Int, data []byte) (*Unsigned, error) {
	packed, err := contracts.Pack(contracts.AbstractStrategy, "deposit", bigInt(t.Pool), t.Safe, amount, orEmpty(data))
	if err != nil {
		return nil, err
	}
	return &Unsigned{To: t.Module, Data: packed}, nil
}

// WithdrawCall 构造 withdraw calldata
func WithdrawCall(t Target, amount *big.Int, harvest bool, data []byte) (*Unsigned, error) {
	packed, err := contracts.Pack(contracts.AbstractStrategy, "withdraw", bigInt(t.Pool), t.Safe, amount, harvest, orEmpty(data))
	if err != nil {
		return nil, err
	}
	return &Unsigned{To: t.Module, Data: packed}, nil
}
