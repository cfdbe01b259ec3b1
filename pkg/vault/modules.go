package vault

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Variant 模块类别
type Variant int

const (
	VariantStrategy Variant = iota
	VariantBridge
)

func (v Variant) String() string {
	if v == VariantBridge {
		return "bridge"
	}
	return "strategy"
}

// Param 模块特有构造参数（排在两个注册表地址之后）
type Param struct {
	Name string
	Type string
}

// Kind 可部署的模块类型
type Kind struct {
	Name    string
	Variant Variant
	Params  []Param
}

// Inputs 模块特有参数的 ABI 描述
func (k Kind) Inputs() (abi.Arguments, error) {
	args := make(abi.Arguments, 0, len(k.Params))
	for _, p := range k.Params {
		t, err := abi.NewType(p.Type, "", nil)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", k.Name, p.Name, err)
		}
		args = append(args, abi.Argument{Name: p.Name, Type: t})
	}
	return args, nil
}

// ConvertArgs 把计划文件中的原始值转换为构造参数
func (k Kind) ConvertArgs(raw []interface{}) ([]interface{}, error) {
	inputs, err := k.Inputs()
	if err != nil {
		return nil, err
	}
	return contracts.ConvertArgs(inputs, raw)
}

var (
	kindsMu sync.RWMutex
	kinds   = map[string]Kind{}
)

// RegisterKind 注册模块类型，同时让其合约名复用对应的基础 ABI
func RegisterKind(k Kind) {
	if k.Name == "" {
		return
	}
	base := contracts.AbstractStrategy
	if k.Variant == VariantBridge {
		base = contracts.AbstractBridge
	}
	contracts.RegisterAlias(k.Name, base)

	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[strings.ToLower(k.Name)] = k
}

// LookupKind 按名字查找；找不到时去掉最后一个 "-" 后缀回退（ConvexStrategy-frax-v2 → ConvexStrategy-frax → ConvexStrategy）
func LookupKind(name string) (Kind, bool) {
	kindsMu.RLock()
	defer kindsMu.RUnlock()

	key := strings.ToLower(name)
	if k, ok := kinds[key]; ok {
		return k, true
	}
	alias := key
	for {
		idx := strings.LastIndex(alias, "-")
		if idx <= 0 {
			return Kind{}, false
		}
		alias = alias[:idx]
		if k, ok := kinds[alias]; ok {
			log.Printf("[Pipeline] No module kind %s, fallback to alias %s", name, k.Name)
			return k, true
		}
	}
}

// Kinds 已注册的模块类型（按名字排序）
func Kinds() []Kind {
	kindsMu.RLock()
	defer kindsMu.RUnlock()
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func init() {
	RegisterKind(Kind{Name: "ConvexStrategy", Variant: VariantStrategy, Params: []Param{{"booster", "address"}}})
	RegisterKind(Kind{Name: "ConvexFraxStrategy", Variant: VariantStrategy, Params: []Param{{"booster", "address"}}})
	RegisterKind(Kind{Name: "CompoundLeverageFlashDAIStrategy", Variant: VariantStrategy, Params: []Param{
		{"comp", "address"},
		{"cdai", "address"},
		{"comptroller", "address"},
		{"dssFlash", "address"},
		{"collateralTarget", "uint256"},
		{"useFlashMint", "bool"},
	}})
	RegisterKind(Kind{Name: "BridgeBouncerHop", Variant: VariantBridge, Params: []Param{{"token", "address"}}})
}

// Module 已部署的模块
type Module struct {
	Name    string
	Kind    Kind
	Address common.Address
}

// DeployModule 部署模块：构造参数为 (ext, auth, args...)，args 原样透传
func (o *Orchestrator) DeployModule(ctx context.Context, from common.Address, kind string, regs *Registries, args ...interface{}) (*Module, error) {
	return o.DeployModuleAs(ctx, from, "", kind, regs, args...)
}

// DeployModuleAs 同 DeployModule，name 为部署记录名（默认与合约名一致）
func (o *Orchestrator) DeployModuleAs(ctx context.Context, from common.Address, name, kind string, regs *Registries, args ...interface{}) (*Module, error) {
	var mod *Module
	err := o.step("deployModule", func() error {
		k, ok := LookupKind(kind)
		if !ok {
			return fmt.Errorf("unknown module kind %q", kind)
		}
		if regs == nil || regs.Auth == (common.Address{}) || regs.Ext == (common.Address{}) {
			return fmt.Errorf("module %s requires both registries", k.Name)
		}
		if name == "" {
			name = k.Name
		}
		ctorArgs := append([]interface{}{regs.Ext, regs.Auth}, args...)
		addr, err := o.deploy(ctx, from, name, k.Name, ctorArgs...)
		if err != nil {
			return err
		}
		mod = &Module{Name: name, Kind: k, Address: addr}
		return nil
	})
	return mod, err
}

// IsModuleEnabled 读取 Safe 的模块启用状态
func (o *Orchestrator) IsModuleEnabled(ctx context.Context, safe, module common.Address) (bool, error) {
	out, err := o.ledger.Call(ctx, common.Address{}, safe, contracts.GnosisSafe, "isModuleEnabled", module)
	if err != nil {
		return false, classify(err)
	}
	return callResult[bool](out, 0, "isModuleEnabled")
}

// EnableModule 在控制者上启用模块；已启用时返回 ErrAlreadyEnabled 且不发送交易
func (o *Orchestrator) EnableModule(ctx context.Context, ctrl chain.Executor, module common.Address) (*chain.Receipt, error) {
	var receipt *chain.Receipt
	err := o.step("enableModule", func() error {
		enabled, err := o.IsModuleEnabled(ctx, ctrl.Address(), module)
		if err != nil {
			return err
		}
		if enabled {
			return fmt.Errorf("%w: %s on %s", ErrAlreadyEnabled, module.Hex(), ctrl.Address().Hex())
		}
		receipt, err = ctrl.Execute(ctx, ctrl.Address(), contracts.GnosisSafe, "enableModule", module)
		return err
	})
	return receipt, err
}
