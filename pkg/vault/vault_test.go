package vault

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"medici/pkg/chain"
	"medici/pkg/contracts"
	"medici/pkg/ledger/memledger"
	"medici/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	deployer   = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	strategist = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	harvester  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	bridgeOp   = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	booster    = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	hopL1      = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	receiver   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

func init() {
	RegisterKind(Kind{Name: "TestStrategy", Variant: VariantStrategy, Params: []Param{{"booster", "address"}}})
	RegisterKind(Kind{Name: "TestBridge", Variant: VariantBridge, Params: []Param{{"token", "address"}}})
}

type observed struct {
	step, outcome string
}

// recordingObserver 记录步骤结果
type recordingObserver struct {
	mu    sync.Mutex
	steps []observed
}

func (r *recordingObserver) ObserveStep(step, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, observed{step, outcome})
}

func (r *recordingObserver) outcomes(step string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.steps {
		if s.step == step {
			out = append(out, s.outcome)
		}
	}
	return out
}

type fixture struct {
	ctx  context.Context
	l    *memledger.Ledger
	o    *Orchestrator
	obs  *recordingObserver
	safe *safe.Safe
	usdc common.Address
	crv  common.Address
}

// newFixture 1/1 Safe（owner 为 deployer）、USDC / CRV 代币、TestStrategy / TestBridge 合约
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	l := memledger.New()

	deployed, err := safe.Setup(ctx, l, deployer, safe.SetupConfig{})
	require.NoError(t, err)
	usdc, _, err := l.Deploy(ctx, deployer, contracts.ERC20, "USDC", uint8(6))
	require.NoError(t, err)
	crv, _, err := l.Deploy(ctx, deployer, contracts.ERC20, "CRV", uint8(18))
	require.NoError(t, err)

	l.RegisterStrategy("TestStrategy", memledger.StrategyConfig{
		Pools:    []memledger.Pool{{Name: "usdc-pool", DepositToken: usdc}},
		FeeBps:   10,
		Cooldown: 3600,
		Rewards: []memledger.Reward{
			{Token: crv, Amount: big.NewInt(500)},
			{Token: usdc, Amount: big.NewInt(0)},
		},
	})
	l.RegisterBridge("TestBridge", memledger.BridgeConfig{})

	obs := &recordingObserver{}
	return &fixture{
		ctx:  ctx,
		l:    l,
		o:    New(l, append([]Option{WithObserver(obs)}, opts...)...),
		obs:  obs,
		safe: safe.New(l, deployed.Safe, deployer),
		usdc: usdc,
		crv:  crv,
	}
}

func (f *fixture) safeAddr() common.Address { return f.safe.Address() }

// strategy 经 PrepareStrategy 部署并启用 TestStrategy
func (f *fixture) strategy(t *testing.T) (*Module, *Registries) {
	t.Helper()
	mod, regs, err := f.o.PrepareStrategy(f.ctx, deployer, f.safe, "TestStrategy",
		[]common.Address{booster},
		[]AccountRoles{
			{Account: strategist, Roles: []Role{RoleStrategist}},
			{Account: harvester, Roles: []Role{RoleHarvester}},
		},
		booster)
	require.NoError(t, err)
	return mod, regs
}

func (f *fixture) balance(t *testing.T, token, account common.Address) int64 {
	t.Helper()
	out, err := f.l.Call(f.ctx, stranger, token, contracts.ERC20, "balanceOf", account)
	require.NoError(t, err)
	return out[0].(*big.Int).Int64()
}

func (f *fixture) nonce(t *testing.T) int64 {
	t.Helper()
	n, err := f.safe.Nonce(f.ctx)
	require.NoError(t, err)
	return n.Int64()
}

func directAs(f *fixture, account common.Address) chain.Executor {
	return safe.NewDirect(f.l, account)
}

// accountBook 测试用命名账户
type accountBook map[string]common.Address

func (b accountBook) Account(name string) (common.Address, error) {
	if addr, ok := b[name]; ok {
		return addr, nil
	}
	return common.Address{}, fmt.Errorf("unknown account %q", name)
}
