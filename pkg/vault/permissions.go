package vault

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// GrantRole 经控制者设置角色；enabled=false 为撤销
func (o *Orchestrator) GrantRole(ctx context.Context, ctrl chain.Executor, auth, account common.Address, role Role, enabled bool) (*chain.Receipt, error) {
	var receipt *chain.Receipt
	err := o.step("grantRole", func() error {
		if !role.Valid() {
			return fmt.Errorf("invalid role %d", role)
		}
		var err error
		receipt, err = ctrl.Execute(ctx, auth, contracts.AuthRegistry, "setRole", account, uint8(role), enabled)
		return err
	})
	return receipt, err
}

// SetExternalAddress 经控制者更新外部地址白名单
func (o *Orchestrator) SetExternalAddress(ctx context.Context, ctrl chain.Executor, ext, addr common.Address, enabled bool) (*chain.Receipt, error) {
	var receipt *chain.Receipt
	err := o.step("setExternalAddress", func() error {
		var err error
		receipt, err = ctrl.Execute(ctx, ext, contracts.ExtRegistry, "setExternalAddress", addr, enabled)
		return err
	})
	return receipt, err
}

// HasRole 读取角色
func (o *Orchestrator) HasRole(ctx context.Context, auth, account common.Address, role Role) (bool, error) {
	out, err := o.ledger.Call(ctx, common.Address{}, auth, contracts.AuthRegistry, "hasRole", account, uint8(role))
	if err != nil {
		return false, classify(err)
	}
	return callResult[bool](out, 0, "hasRole")
}

// IsExternalAddressAllowed 读取白名单
func (o *Orchestrator) IsExternalAddressAllowed(ctx context.Context, ext, addr common.Address) (bool, error) {
	out, err := o.ledger.Call(ctx, common.Address{}, ext, contracts.ExtRegistry, "isExternalAddressAllowed", addr)
	if err != nil {
		return false, classify(err)
	}
	return callResult[bool](out, 0, "isExternalAddressAllowed")
}

// Grant 一条角色授权
type Grant struct {
	Account common.Address
	Role    Role
	Revoke  bool
}

// Whitelist 一条外部地址白名单
type Whitelist struct {
	Address common.Address
	Disable bool
}

// SeedPlan 权限播种；先角色后白名单，按序号归因
type SeedPlan struct {
	Roles    []Grant
	External []Whitelist
	// Concurrency >1 时同级操作并发发送（账本需自行串行化），默认逐条发送。
	// Safe 执行器依赖 nonce 顺序，只能逐条发送。
	Concurrency int
}

// Len 操作总数
func (p SeedPlan) Len() int { return len(p.Roles) + len(p.External) }

// SeedError 播种失败的归因：Index 为失败操作序号，Committed 为已确认的操作数
type SeedError struct {
	Index     int
	Committed int
	Err       error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed operation #%d failed (%d committed): %v", e.Index, e.Committed, e.Err)
}

func (e *SeedError) Unwrap() error { return e.Err }

// Seed 执行播种计划
func (o *Orchestrator) Seed(ctx context.Context, ctrl chain.Executor, regs *Registries, plan SeedPlan) error {
	ops := make([]func(context.Context) error, 0, plan.Len())
	for _, g := range plan.Roles {
		g := g
		ops = append(ops, func(ctx context.Context) error {
			_, err := o.GrantRole(ctx, ctrl, regs.Auth, g.Account, g.Role, !g.Revoke)
			return err
		})
	}
	for _, w := range plan.External {
		w := w
		ops = append(ops, func(ctx context.Context) error {
			_, err := o.SetExternalAddress(ctx, ctrl, regs.Ext, w.Address, !w.Disable)
			return err
		})
	}
	if len(ops) == 0 {
		return nil
	}
	log.Printf("[Pipeline] seeding %d roles and %d external addresses", len(plan.Roles), len(plan.External))

	return o.step("seed", func() error {
		if plan.Concurrency <= 1 {
			for i, op := range ops {
				if err := op(ctx); err != nil {
					return &SeedError{Index: i, Committed: i, Err: err}
				}
			}
			return nil
		}

		var committed atomic.Int64
		var failed atomic.Int64
		failed.Store(-1)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(plan.Concurrency)
		for i, op := range ops {
			i, op := i, op
			g.Go(func() error {
				if err := op(gctx); err != nil {
					failed.CompareAndSwap(-1, int64(i))
					return err
				}
				committed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return &SeedError{Index: int(failed.Load()), Committed: int(committed.Load()), Err: err}
		}
		return nil
	})
}
