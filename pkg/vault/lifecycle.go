package vault

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"medici/pkg/chain"
	"medici/pkg/contracts"
	"medici/pkg/quote"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Target 生命周期调用的对象：caller 以自身角色调用 module，为 safe 的持仓操作
type Target struct {
	Caller common.Address
	Module common.Address
	Pool   uint64
	Safe   common.Address
}

// Result 已确认的生命周期调用
type Result struct {
	Receipt *chain.Receipt
	Event   *chain.Event
}

// Amount 事件中的 amount 参数
func (r *Result) Amount() *big.Int {
	if r == nil || r.Event == nil {
		return nil
	}
	v, _ := r.Event.BigIntArg("amount")
	return v
}

// PositionState 持仓状态；Locked 是 Active 的子状态，只影响提款
type PositionState int

const (
	PositionEmpty PositionState = iota
	PositionActive
	PositionLocked
)

func (s PositionState) String() string {
	switch s {
	case PositionActive:
		return "active"
	case PositionLocked:
		return "locked"
	}
	return "empty"
}

// Position 某策略某池中 safe 的持仓
type Position struct {
	Pool        uint64
	Safe        common.Address
	Deposited   *big.Int
	LockedUntil uint64
}

// State 按时间 now 给出状态
func (p *Position) State(now uint64) PositionState {
	if p.Deposited == nil || p.Deposited.Sign() == 0 {
		return PositionEmpty
	}
	if now < p.LockedUntil {
		return PositionLocked
	}
	return PositionActive
}

// Position 读取持仓
func (o *Orchestrator) Position(ctx context.Context, strategy common.Address, pool uint64, safeAddr common.Address) (*Position, error) {
	out, err := o.ledger.Call(ctx, common.Address{}, strategy, contracts.AbstractStrategy, "depositedAmount", bigInt(pool), safeAddr)
	if err != nil {
		return nil, classify(err)
	}
	deposited, err := callResult[*big.Int](out, 0, "depositedAmount")
	if err != nil {
		return nil, err
	}
	pos := &Position{Pool: pool, Safe: safeAddr, Deposited: deposited}
	out, err = o.ledger.Call(ctx, common.Address{}, strategy, contracts.AbstractStrategy, "lockedUntil", bigInt(pool), safeAddr)
	if err != nil {
		return nil, classify(err)
	}
	until, err := callResult[*big.Int](out, 0, "lockedUntil")
	if err != nil {
		return nil, err
	}
	pos.LockedUntil = until.Uint64()
	return pos, nil
}

// Deposit 存款并确认 Deposited 事件；需要 Strategist 角色
func (o *Orchestrator) Deposit(ctx context.Context, t Target, amount *big.Int, data []byte) (*Result, error) {
	var res *Result
	err := o.step("deposit", func() error {
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("deposit amount must be positive")
		}
		receipt, err := o.ledger.Transact(ctx, t.Caller, t.Module, contracts.AbstractStrategy, "deposit",
			bigInt(t.Pool), t.Safe, amount, orEmpty(data))
		if err != nil {
			return err
		}
		res, err = confirm(receipt, t.Module, "Deposited")
		if err != nil {
			return err
		}
		log.Printf("[Pipeline] deposited %s into pool %d of %s for %s", res.Amount(), t.Pool, t.Module.Hex(), t.Safe.Hex())
		return nil
	})
	return res, err
}

// Withdraw 提款并确认 Withdrew 事件；锁定期内直接返回 ErrLockActive，不发送交易
func (o *Orchestrator) Withdraw(ctx context.Context, t Target, amount *big.Int, harvest bool, data []byte) (*Result, error) {
	var res *Result
	err := o.step("withdraw", func() error {
		if amount == nil || amount.Sign() < 0 {
			return fmt.Errorf("withdraw amount must not be negative")
		}
		pos, err := o.Position(ctx, t.Module, t.Pool, t.Safe)
		if err != nil {
			return err
		}
		now, err := o.ledger.Now(ctx)
		if err != nil {
			return err
		}
		if now < pos.LockedUntil {
			return fmt.Errorf("%w: pool %d locked until %d (now %d)", ErrLockActive, t.Pool, pos.LockedUntil, now)
		}
		receipt, err := o.ledger.Transact(ctx, t.Caller, t.Module, contracts.AbstractStrategy, "withdraw",
			bigInt(t.Pool), t.Safe, amount, harvest, orEmpty(data))
		if err != nil {
			return err
		}
		res, err = confirm(receipt, t.Module, "Withdrew")
		return err
	})
	return res, err
}

// SimulateClaim 以零地址静态调用 simulateClaim
func (o *Orchestrator) SimulateClaim(ctx context.Context, strategy common.Address, pool uint64, safeAddr common.Address) ([]contracts.Harvest, error) {
	out, err := o.ledger.Call(ctx, common.Address{}, strategy, contracts.AbstractStrategy, "simulateClaim", bigInt(pool), safeAddr, []byte{})
	if err != nil {
		return nil, classify(err)
	}
	return contracts.DecodeHarvests(out[0])
}

// HarvestResult harvest 的结果，附带领取项与兑换数据
type HarvestResult struct {
	Result
	Harvests []contracts.Harvest
	Data     []byte
}

// Harvest 模拟领取、过滤 0 数量项、向报价源取兑换数据后调用 harvest；需要 Harvester 角色
func (o *Orchestrator) Harvest(ctx context.Context, t Target, outputToken common.Address) (*HarvestResult, error) {
	var res *HarvestResult
	err := o.step("harvest", func() error {
		claims, err := o.SimulateClaim(ctx, t.Module, t.Pool, t.Safe)
		if err != nil {
			return err
		}
		harvests := make([]contracts.Harvest, 0, len(claims))
		for _, h := range claims {
			if h.Amount != nil && h.Amount.Sign() > 0 {
				harvests = append(harvests, h)
			}
		}
		data, err := o.quoter.Quote(ctx, quote.Request{Recipient: t.Safe, Harvests: harvests, OutputToken: outputToken})
		if err != nil {
			return fmt.Errorf("quote failed: %w", err)
		}
		receipt, err := o.ledger.Transact(ctx, t.Caller, t.Module, contracts.AbstractStrategy, "harvest", bigInt(t.Pool), t.Safe, data)
		if err != nil {
			return err
		}
		confirmed, err := confirm(receipt, t.Module, "Harvested")
		if err != nil {
			return err
		}
		res = &HarvestResult{Result: *confirmed, Harvests: harvests, Data: data}
		return nil
	})
	return res, err
}

// BridgeRoute 一条跨链路线：目标链上的 bridge 合约与 safe 的接收地址
type BridgeRoute struct {
	ChainID        uint64
	BridgeContract common.Address
	Receiver       common.Address
}

// AllowBridgeRoute 经控制者登记 (chainId, bridgeContract) 与 (safe, chainId, receiver)
func (o *Orchestrator) AllowBridgeRoute(ctx context.Context, ctrl chain.Executor, bridge common.Address, route BridgeRoute) error {
	return o.step("allowBridgeRoute", func() error {
		chainID := bigInt(route.ChainID)
		if _, err := ctrl.Execute(ctx, bridge, contracts.AbstractBridge, "allowBridgeContract", chainID, route.BridgeContract); err != nil {
			return err
		}
		_, err := ctrl.Execute(ctx, bridge, contracts.AbstractBridge, "allowReceiverAddress", ctrl.Address(), chainID, route.Receiver, true)
		return err
	})
}

// RouteAllowed 路线两部分是否都已登记
func (o *Orchestrator) RouteAllowed(ctx context.Context, bridge, safeAddr common.Address, chainID uint64, receiver common.Address) (bool, error) {
	out, err := o.ledger.Call(ctx, common.Address{}, bridge, contracts.AbstractBridge, "bridgeContracts", bigInt(chainID))
	if err != nil {
		return false, classify(err)
	}
	bc, err := callResult[common.Address](out, 0, "bridgeContracts")
	if err != nil {
		return false, err
	}
	if bc == (common.Address{}) {
		return false, nil
	}
	out, err = o.ledger.Call(ctx, common.Address{}, bridge, contracts.AbstractBridge, "isReceiverAllowed", safeAddr, bigInt(chainID), receiver)
	if err != nil {
		return false, classify(err)
	}
	return callResult[bool](out, 0, "isReceiverAllowed")
}

// BridgeTransfer 发起跨链转账并确认 Bridged 事件；路线未登记时返回 ErrRouteNotAllowed，不发送交易
func (o *Orchestrator) BridgeTransfer(ctx context.Context, caller, bridge, safeAddr, receiver common.Address, chainID uint64, isL1 bool, data []byte) (*Result, error) {
	var res *Result
	err := o.step("bridge", func() error {
		allowed, err := o.RouteAllowed(ctx, bridge, safeAddr, chainID, receiver)
		if err != nil {
			return err
		}
		if !allowed {
			return fmt.Errorf("%w: chain %d receiver %s", ErrRouteNotAllowed, chainID, receiver.Hex())
		}
		receipt, err := o.ledger.Transact(ctx, caller, bridge, contracts.AbstractBridge, "bridge",
			safeAddr, receiver, bigInt(chainID), isL1, orEmpty(data))
		if err != nil {
			return err
		}
		res, err = confirm(receipt, bridge, "Bridged")
		return err
	})
	return res, err
}

// WithinTolerance got 是否落在 [want - want*bps/10000, want]
func WithinTolerance(got, want *big.Int, bps uint64) bool {
	if got == nil || want == nil || got.Cmp(want) > 0 {
		return false
	}
	slack := new(big.Int).Mul(want, new(big.Int).SetUint64(bps))
	slack.Div(slack, big.NewInt(10000))
	return got.Cmp(new(big.Int).Sub(want, slack)) >= 0
}

// EncodeABI 按类型列表做 abi.encode
func EncodeABI(types []string, values []interface{}) ([]byte, error) {
	if len(types) != len(values) {
		return nil, fmt.Errorf("type/value count mismatch: %d vs %d", len(types), len(values))
	}
	args := make(abi.Arguments, 0, len(types))
	for _, ts := range types {
		t, err := abi.NewType(ts, "", nil)
		if err != nil {
			return nil, err
		}
		args = append(args, abi.Argument{Type: t})
	}
	converted, err := contracts.ConvertArgs(args, values)
	if err != nil {
		return nil, err
	}
	return args.Pack(converted...)
}

// EncodeWithdrawData 部分策略的 withdraw data：abi.encode(bytes, bytes) = ([], abi.encode(types, values))
func EncodeWithdrawData(types []string, values []interface{}) ([]byte, error) {
	params, err := EncodeABI(types, values)
	if err != nil {
		return nil, err
	}
	return EncodeABI([]string{"bytes", "bytes"}, []interface{}{[]byte{}, params})
}

// EncodeHopL1Data L1 → L2 的 Hop 参数 (amount, amountOutMin, deadline)
func EncodeHopL1Data(amount, amountOutMin *big.Int, deadline uint64) ([]byte, error) {
	return EncodeABI([]string{"uint256", "uint256", "uint256"}, []interface{}{amount, amountOutMin, bigInt(deadline)})
}

// EncodeHopL2Data L2 → L1/L2 的 Hop 参数
func EncodeHopL2Data(amount, bonderFee, amountOutMin *big.Int, deadline uint64, destAmountOutMin *big.Int, destDeadline uint64) ([]byte, error) {
	return EncodeABI(
		[]string{"uint256", "uint256", "uint256", "uint256", "uint256", "uint256"},
		[]interface{}{amount, bonderFee, amountOutMin, bigInt(deadline), destAmountOutMin, bigInt(destDeadline)},
	)
}

// confirm 在回执中查找模块发出的事件
func confirm(receipt *chain.Receipt, emitter common.Address, event string) (*Result, error) {
	ev, ok := receipt.FindEventFrom(emitter, event)
	if !ok {
		hash := common.Hash{}
		if receipt != nil {
			hash = receipt.TxHash
		}
		return nil, fmt.Errorf("%w: %s not emitted by %s in %s", ErrEventMissing, event, emitter.Hex(), hash.Hex())
	}
	return &Result{Receipt: receipt, Event: ev}, nil
}

func bigInt(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func orEmpty(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
