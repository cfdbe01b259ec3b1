package vault

import (
	"context"

	"medici/pkg/chain"

	"github.com/ethereum/go-ethereum/common"
)

// AccountRoles 一个账户要授予的角色
type AccountRoles struct {
	Account common.Address
	Roles   []Role
}

// PrepareStrategy 测试夹具：注册表直接归 safe 所有，经 safe 登记外部地址与角色，部署并启用策略
func (o *Orchestrator) PrepareStrategy(ctx context.Context, from common.Address, ctrl chain.Executor, kind string,
	external []common.Address, perms []AccountRoles, args ...interface{}) (*Module, *Registries, error) {
	regs, err := o.ProvisionRegistries(ctx, from, ctrl.Address())
	if err != nil {
		return nil, nil, err
	}
	plan := SeedPlan{}
	for _, addr := range external {
		plan.External = append(plan.External, Whitelist{Address: addr})
	}
	for _, p := range perms {
		for _, role := range p.Roles {
			plan.Roles = append(plan.Roles, Grant{Account: p.Account, Role: role})
		}
	}
	if err := o.Seed(ctx, ctrl, regs, plan); err != nil {
		return nil, nil, err
	}
	mod, err := o.DeployModule(ctx, from, kind, regs, args...)
	if err != nil {
		return nil, nil, err
	}
	if _, err := o.EnableModule(ctx, ctrl, mod.Address); err != nil {
		return nil, nil, err
	}
	return mod, regs, nil
}

// PrepareBridge 测试夹具：授予 BridgeAdmin / BridgeOperator，部署并启用跨链模块
func (o *Orchestrator) PrepareBridge(ctx context.Context, from common.Address, ctrl chain.Executor, kind string,
	bridgeAdmin, bridgeOperator common.Address, args ...interface{}) (*Module, *Registries, error) {
	return o.PrepareStrategy(ctx, from, ctrl, kind, nil, []AccountRoles{
		{Account: bridgeAdmin, Roles: []Role{RoleBridgeAdmin}},
		{Account: bridgeOperator, Roles: []Role{RoleBridgeOperator}},
	}, args...)
}
