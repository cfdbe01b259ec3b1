package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"medici/pkg/chain"
	"medici/pkg/contracts"
	"medici/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// Plan 部署计划文件：账户既可以写命名账户，也可以写十六进制地址
type Plan struct {
	Name     string       `yaml:"name" json:"name"`
	Deployer string       `yaml:"deployer" json:"deployer"`
	Safe     string       `yaml:"safe" json:"safe"`
	Roles    []PlanGrant  `yaml:"roles" json:"roles"`
	External []string     `yaml:"external" json:"external"`
	Modules  []PlanModule `yaml:"modules" json:"modules"`
	// Concurrency 权限播种的并发度，默认 1
	Concurrency int `yaml:"concurrency" json:"concurrency"`
}

// PlanGrant 计划中的角色授权
type PlanGrant struct {
	Account string `yaml:"account" json:"account"`
	Role    string `yaml:"role" json:"role"`
}

// PlanModule 计划中的模块
type PlanModule struct {
	Name   string        `yaml:"name" json:"name"`
	Kind   string        `yaml:"kind" json:"kind"`
	Args   []interface{} `yaml:"args" json:"args"`
	Enable *bool         `yaml:"enable" json:"enable"`
	Routes []PlanRoute   `yaml:"routes" json:"routes"`
}

// PlanRoute 计划中的跨链路线
type PlanRoute struct {
	ChainID        uint64 `yaml:"chain_id" json:"chain_id"`
	BridgeContract string `yaml:"bridge_contract" json:"bridge_contract"`
	Receiver       string `yaml:"receiver" json:"receiver"`
}

// LoadPlan 按扩展名读取 YAML / JSON 计划
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	var plan Plan
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &plan)
	case ".json":
		err = json.Unmarshal(data, &plan)
	default:
		return nil, fmt.Errorf("unsupported plan format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	if plan.Deployer == "" {
		plan.Deployer = "deployer"
	}
	if plan.Safe == "" {
		plan.Safe = "safe"
	}
	return &plan, nil
}

// Accounts 命名账户解析（config.Environment 实现了它）
type Accounts interface {
	Account(name string) (common.Address, error)
}

// PipelineEnv 流水线运行所需的身份
type PipelineEnv struct {
	Accounts Accounts
	// Controller 最终的控制者（safe），用于模块启用与路线登记
	Controller chain.Executor
}

// PipelineResult 流水线结果
type PipelineResult struct {
	Registries *Registries
	Modules    []*Module
	// Skipped 因已存在而跳过的步骤
	Skipped []string
}

// resolve 命名账户优先，其次为十六进制地址
func resolve(accounts Accounts, value string) (common.Address, error) {
	if accounts != nil {
		if addr, err := accounts.Account(value); err == nil {
			return addr, nil
		}
	}
	if common.IsHexAddress(value) {
		return common.HexToAddress(value), nil
	}
	return common.Address{}, fmt.Errorf("cannot resolve account %q", value)
}

// resolveArg 字符串参数若为命名账户则替换为地址
func resolveArg(accounts Accounts, v interface{}) interface{} {
	s, ok := v.(string)
	if !ok || accounts == nil || common.IsHexAddress(s) {
		return v
	}
	if addr, err := accounts.Account(s); err == nil {
		return addr.Hex()
	}
	return v
}

// RunPipeline 注册表准备 → 权限播种 → 移交 safe → 部署模块 → 启用 → 登记路线。
// 计划在任何链上操作之前整体解析；播种与移交按链上状态（owner、已有授权）判断是否仍需执行，
// 部分失败后重新运行会从中断处继续。
func (o *Orchestrator) RunPipeline(ctx context.Context, plan *Plan, env PipelineEnv) (*PipelineResult, error) {
	rp, err := o.resolvePlan(plan, env.Accounts)
	if err != nil {
		return nil, err
	}
	deployer := rp.deployer
	safeAddr := env.Controller.Address()
	result := &PipelineResult{}

	// 1. 注册表以 deployer 为 owner 部署，播种完成后移交 safe
	regs, err := o.ProvisionRegistries(ctx, deployer, deployer)
	if err != nil {
		return nil, err
	}
	result.Registries = regs
	for _, name := range []string{ExtRegistryName, AuthRegistryName} {
		if regs.Status[name] != nil {
			result.Skipped = append(result.Skipped, "provision:"+name)
		}
	}

	// 2. 补齐链上缺失的授权，由注册表当前 owner 执行
	authOwner, err := o.RegistryOwner(ctx, regs.Auth)
	if err != nil {
		return nil, err
	}
	extOwner, err := o.RegistryOwner(ctx, regs.Ext)
	if err != nil {
		return nil, err
	}
	pending, err := o.pendingSeed(ctx, regs, rp.seed)
	if err != nil {
		return nil, err
	}
	direct := safe.NewDirect(o.ledger, deployer)
	controllerFor := func(name string, owner common.Address) (chain.Executor, error) {
		switch owner {
		case safeAddr:
			return env.Controller, nil
		case deployer:
			return direct, nil
		}
		return nil, &StepError{Step: "seed", Err: fmt.Errorf("%w: %s owned by %s, neither deployer nor safe", ErrUnauthorized, name, owner.Hex())}
	}
	authCtrl, err := controllerFor(AuthRegistryName, authOwner)
	if err != nil {
		return nil, err
	}
	extCtrl, err := controllerFor(ExtRegistryName, extOwner)
	if err != nil {
		return nil, err
	}
	if authOwner == extOwner {
		err = o.Seed(ctx, authCtrl, regs, seedFor(pending, authCtrl == env.Controller))
	} else {
		roles := SeedPlan{Roles: pending.Roles, Concurrency: pending.Concurrency}
		if err = o.Seed(ctx, authCtrl, regs, seedFor(roles, authCtrl == env.Controller)); err == nil {
			ext := SeedPlan{External: pending.External, Concurrency: pending.Concurrency}
			err = o.Seed(ctx, extCtrl, regs, seedFor(ext, extCtrl == env.Controller))
		}
	}
	if err != nil {
		return nil, err
	}

	// 3. 仍由 deployer 持有的注册表移交 safe
	for _, reg := range []struct {
		contract string
		addr     common.Address
		owner    common.Address
	}{
		{contracts.ExtRegistry, regs.Ext, extOwner},
		{contracts.AuthRegistry, regs.Auth, authOwner},
	} {
		if reg.owner == safeAddr {
			continue
		}
		if err := o.TransferOwnership(ctx, direct, reg.addr, reg.contract, safeAddr); err != nil {
			return nil, err
		}
	}

	// 4. 模块
	for _, pm := range rp.modules {
		mod, skipped, err := o.deployPlanned(ctx, deployer, pm, regs)
		if err != nil {
			return nil, err
		}
		if skipped {
			result.Skipped = append(result.Skipped, "deploy:"+mod.Name)
		}
		result.Modules = append(result.Modules, mod)

		if pm.enable {
			if _, err := o.EnableModule(ctx, env.Controller, mod.Address); err != nil {
				if !errors.Is(err, ErrAlreadyEnabled) {
					return nil, err
				}
				result.Skipped = append(result.Skipped, "enable:"+mod.Name)
			}
		}

		for _, route := range pm.routes {
			allowed, err := o.RouteAllowed(ctx, mod.Address, safeAddr, route.ChainID, route.Receiver)
			if err != nil {
				return nil, err
			}
			if allowed {
				result.Skipped = append(result.Skipped, fmt.Sprintf("route:%s:%d", mod.Name, route.ChainID))
				continue
			}
			if err := o.AllowBridgeRoute(ctx, env.Controller, mod.Address, route); err != nil {
				return nil, err
			}
		}
	}
	log.Printf("[Pipeline] %s done: %d modules, %d skipped steps", plan.Name, len(result.Modules), len(result.Skipped))
	return result, nil
}

// seedFor Safe 执行器依赖 nonce 顺序，经 safe 播种时逐条发送
func seedFor(plan SeedPlan, viaSafe bool) SeedPlan {
	if viaSafe {
		plan.Concurrency = 1
	}
	return plan
}

// resolvedPlan 已解析的计划：账户、角色、构造参数与路线均已转换
type resolvedPlan struct {
	deployer common.Address
	seed     SeedPlan
	modules  []resolvedModule
}

type resolvedModule struct {
	name   string
	kind   Kind
	args   []interface{}
	enable bool
	routes []BridgeRoute
}

// resolvePlan 一次性解析整个计划，任何一项无法解析都不会触及链上状态
func (o *Orchestrator) resolvePlan(plan *Plan, accounts Accounts) (*resolvedPlan, error) {
	deployer, err := resolve(accounts, plan.Deployer)
	if err != nil {
		return nil, err
	}
	rp := &resolvedPlan{deployer: deployer, seed: SeedPlan{Concurrency: plan.Concurrency}}
	for _, g := range plan.Roles {
		account, err := resolve(accounts, g.Account)
		if err != nil {
			return nil, err
		}
		role, err := ParseRole(g.Role)
		if err != nil {
			return nil, err
		}
		rp.seed.Roles = append(rp.seed.Roles, Grant{Account: account, Role: role})
	}
	for _, e := range plan.External {
		addr, err := resolve(accounts, e)
		if err != nil {
			return nil, err
		}
		rp.seed.External = append(rp.seed.External, Whitelist{Address: addr})
	}

	for _, pm := range plan.Modules {
		kind, ok := LookupKind(pm.Kind)
		if !ok {
			return nil, &StepError{Step: "deployModule", Err: fmt.Errorf("unknown module kind %q", pm.Kind)}
		}
		name := pm.Name
		if name == "" {
			name = kind.Name
		}
		raw := make([]interface{}, len(pm.Args))
		for i, a := range pm.Args {
			raw[i] = resolveArg(accounts, a)
		}
		args, err := kind.ConvertArgs(raw)
		if err != nil {
			return nil, &StepError{Step: "deployModule", Err: fmt.Errorf("%s: %w", name, err)}
		}
		mod := resolvedModule{name: name, kind: kind, args: args, enable: pm.Enable == nil || *pm.Enable}
		for _, pr := range pm.Routes {
			route, err := resolveRoute(accounts, pr)
			if err != nil {
				return nil, err
			}
			mod.routes = append(mod.routes, route)
		}
		rp.modules = append(rp.modules, mod)
	}
	return rp, nil
}

// pendingSeed 过滤掉链上已生效的授权
func (o *Orchestrator) pendingSeed(ctx context.Context, regs *Registries, seed SeedPlan) (SeedPlan, error) {
	pending := SeedPlan{Concurrency: seed.Concurrency}
	for _, g := range seed.Roles {
		ok, err := o.HasRole(ctx, regs.Auth, g.Account, g.Role)
		if err != nil {
			return SeedPlan{}, err
		}
		if !ok {
			pending.Roles = append(pending.Roles, g)
		}
	}
	for _, w := range seed.External {
		ok, err := o.IsExternalAddressAllowed(ctx, regs.Ext, w.Address)
		if err != nil {
			return SeedPlan{}, err
		}
		if !ok {
			pending.External = append(pending.External, w)
		}
	}
	if done := seed.Len() - pending.Len(); done > 0 {
		log.Printf("[Pipeline] %d of %d grants already on chain, skip", done, seed.Len())
	}
	return pending, nil
}

func (o *Orchestrator) deployPlanned(ctx context.Context, deployer common.Address, pm resolvedModule, regs *Registries) (*Module, bool, error) {
	existing, err := o.store.GetOrNull(pm.name)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		log.Printf("[Pipeline] %s already deployed at %s, skip", pm.name, existing.Address.Hex())
		return &Module{Name: pm.name, Kind: pm.kind, Address: existing.Address}, true, nil
	}
	mod, err := o.DeployModuleAs(ctx, deployer, pm.name, pm.kind.Name, regs, pm.args...)
	return mod, false, err
}

func resolveRoute(accounts Accounts, pr PlanRoute) (BridgeRoute, error) {
	bc, err := resolve(accounts, pr.BridgeContract)
	if err != nil {
		return BridgeRoute{}, err
	}
	receiver, err := resolve(accounts, pr.Receiver)
	if err != nil {
		return BridgeRoute{}, err
	}
	return BridgeRoute{ChainID: pr.ChainID, BridgeContract: bc, Receiver: receiver}, nil
}
