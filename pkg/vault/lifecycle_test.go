package vault

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"medici/pkg/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDepositWithdraw 测试存款手续费容差、锁定期与往返
func TestDepositWithdraw(t *testing.T) {
	f := newFixture(t)
	mod, _ := f.strategy(t)
	require.NoError(t, f.l.Mint(f.usdc, f.safeAddr(), big.NewInt(1_000_000)))
	target := Target{Caller: strategist, Module: mod.Address, Pool: 0, Safe: f.safeAddr()}

	res, err := f.o.Deposit(f.ctx, target, big.NewInt(100_000), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(99_900), res.Amount().Int64())
	assert.True(t, WithinTolerance(res.Amount(), big.NewInt(100_000), 10))
	assert.False(t, WithinTolerance(res.Amount(), big.NewInt(100_000), 9))
	assert.Equal(t, int64(900_000), f.balance(t, f.usdc, f.safeAddr()))

	pos, err := f.o.Position(f.ctx, mod.Address, 0, f.safeAddr())
	require.NoError(t, err)
	now, err := f.l.Now(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, now+3600, pos.LockedUntil)
	assert.Equal(t, PositionLocked, pos.State(now))

	t.Run("WithdrawDuringLockSendsNothing", func(t *testing.T) {
		_, err := f.o.Withdraw(f.ctx, target, big.NewInt(99_900), false, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLockActive))
		var stepErr *StepError
		require.True(t, errors.As(err, &stepErr))
		assert.Equal(t, "withdraw", stepErr.Step)
		assert.Equal(t, int64(900_000), f.balance(t, f.usdc, f.safeAddr()))

		f.l.AdvanceTime(3599 * time.Second)
		_, err = f.o.Withdraw(f.ctx, target, big.NewInt(99_900), false, nil)
		assert.True(t, errors.Is(err, ErrLockActive))
	})

	t.Run("CallerWithoutRoleRejected", func(t *testing.T) {
		f.l.AdvanceTime(time.Second)
		for _, caller := range []common.Address{stranger, harvester} {
			bad := target
			bad.Caller = caller
			_, err := f.o.Withdraw(f.ctx, bad, big.NewInt(1), false, nil)
			assert.True(t, errors.Is(err, ErrUnauthorized), "withdraw by %s", caller.Hex())
			_, err = f.o.Deposit(f.ctx, bad, big.NewInt(1), nil)
			assert.True(t, errors.Is(err, ErrUnauthorized), "deposit by %s", caller.Hex())
		}
		_, err := f.o.Harvest(f.ctx, target, common.Address{})
		assert.True(t, errors.Is(err, ErrUnauthorized))

		pos, err := f.o.Position(f.ctx, mod.Address, 0, f.safeAddr())
		require.NoError(t, err)
		assert.Equal(t, int64(99_900), pos.Deposited.Int64())
		assert.Equal(t, int64(0), f.balance(t, f.crv, f.safeAddr()))
	})

	t.Run("FullWithdrawAfterCooldown", func(t *testing.T) {
		now, err := f.l.Now(f.ctx)
		require.NoError(t, err)
		res, err := f.o.Withdraw(f.ctx, target, big.NewInt(99_900), false, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(99_900), res.Amount().Int64())
		assert.Equal(t, int64(999_900), f.balance(t, f.usdc, f.safeAddr()))

		pos, err := f.o.Position(f.ctx, mod.Address, 0, f.safeAddr())
		require.NoError(t, err)
		assert.Equal(t, PositionEmpty, pos.State(now))
		assert.True(t, WithinTolerance(big.NewInt(f.balance(t, f.usdc, f.safeAddr())), big.NewInt(1_000_000), 10))
	})

	assert.Equal(t, []string{metrics.OutcomeOK, metrics.OutcomeError, metrics.OutcomeError}, f.obs.outcomes("deposit"))
}

// TestDepositGuards 测试金额校验与模块未启用
func TestDepositGuards(t *testing.T) {
	f := newFixture(t)
	regs, err := f.o.ProvisionRegistries(f.ctx, deployer, f.safeAddr())
	require.NoError(t, err)
	_, err = f.o.GrantRole(f.ctx, f.safe, regs.Auth, strategist, RoleStrategist, true)
	require.NoError(t, err)
	mod, err := f.o.DeployModule(f.ctx, deployer, "TestStrategy", regs, booster)
	require.NoError(t, err)
	require.NoError(t, f.l.Mint(f.usdc, f.safeAddr(), big.NewInt(1_000)))
	target := Target{Caller: strategist, Module: mod.Address, Safe: f.safeAddr()}

	t.Run("AmountMustBePositive", func(t *testing.T) {
		_, err := f.o.Deposit(f.ctx, target, big.NewInt(0), nil)
		require.Error(t, err)
		_, err = f.o.Deposit(f.ctx, target, nil, nil)
		require.Error(t, err)
	})

	t.Run("ModuleNotEnabled", func(t *testing.T) {
		_, err := f.o.Deposit(f.ctx, target, big.NewInt(100), nil)
		assert.True(t, errors.Is(err, ErrNotEnabled))
		assert.Equal(t, int64(1_000), f.balance(t, f.usdc, f.safeAddr()))
	})

	t.Run("DepositAfterEnable", func(t *testing.T) {
		_, err := f.o.EnableModule(f.ctx, f.safe, mod.Address)
		require.NoError(t, err)
		_, err = f.o.Deposit(f.ctx, target, big.NewInt(1_000), nil)
		require.NoError(t, err)
	})
}

// TestHarvest 测试过滤 0 数量奖励并领取
func TestHarvest(t *testing.T) {
	f := newFixture(t)
	mod, _ := f.strategy(t)
	require.NoError(t, f.l.Mint(f.usdc, f.safeAddr(), big.NewInt(10_000)))
	target := Target{Caller: strategist, Module: mod.Address, Safe: f.safeAddr()}

	claims, err := f.o.SimulateClaim(f.ctx, mod.Address, 0, f.safeAddr())
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, int64(0), claims[0].Amount.Int64())

	_, err = f.o.Deposit(f.ctx, target, big.NewInt(10_000), nil)
	require.NoError(t, err)

	target.Caller = harvester
	res, err := f.o.Harvest(f.ctx, target, common.Address{})
	require.NoError(t, err)
	require.Len(t, res.Harvests, 1)
	assert.Equal(t, f.crv, res.Harvests[0].Token)
	assert.Equal(t, int64(500), res.Harvests[0].Amount.Int64())
	assert.Empty(t, res.Data)
	assert.Equal(t, int64(500), f.balance(t, f.crv, f.safeAddr()))

	t.Run("StrategistCannotHarvest", func(t *testing.T) {
		target.Caller = strategist
		_, err := f.o.Harvest(f.ctx, target, common.Address{})
		assert.True(t, errors.Is(err, ErrUnauthorized))
		assert.Equal(t, int64(500), f.balance(t, f.crv, f.safeAddr()))
	})
}

// TestBridgeTransfer 测试路线登记与跨链转账
func TestBridgeTransfer(t *testing.T) {
	f := newFixture(t)
	mod, _, err := f.o.PrepareBridge(f.ctx, deployer, f.safe, "TestBridge", f.safeAddr(), bridgeOp, f.usdc)
	require.NoError(t, err)
	require.NoError(t, f.l.Mint(f.usdc, f.safeAddr(), big.NewInt(1_000_000)))

	data, err := EncodeHopL1Data(big.NewInt(500_000), big.NewInt(490_000), 1800000000)
	require.NoError(t, err)
	require.Len(t, data, 96)

	t.Run("UnregisteredRouteSendsNothing", func(t *testing.T) {
		allowed, err := f.o.RouteAllowed(f.ctx, mod.Address, f.safeAddr(), 10, receiver)
		require.NoError(t, err)
		assert.False(t, allowed)
		_, err = f.o.BridgeTransfer(f.ctx, bridgeOp, mod.Address, f.safeAddr(), receiver, 10, true, data)
		assert.True(t, errors.Is(err, ErrRouteNotAllowed))
	})

	t.Run("NonAdminCannotAllowRoute", func(t *testing.T) {
		err := f.o.AllowBridgeRoute(f.ctx, directAs(f, bridgeOp), mod.Address, BridgeRoute{ChainID: 10, BridgeContract: hopL1, Receiver: receiver})
		assert.True(t, errors.Is(err, ErrUnauthorized))
	})

	require.NoError(t, f.o.AllowBridgeRoute(f.ctx, f.safe, mod.Address, BridgeRoute{ChainID: 10, BridgeContract: hopL1, Receiver: receiver}))
	allowed, err := f.o.RouteAllowed(f.ctx, mod.Address, f.safeAddr(), 10, receiver)
	require.NoError(t, err)
	assert.True(t, allowed)

	t.Run("OtherChainOrReceiverRejected", func(t *testing.T) {
		_, err := f.o.BridgeTransfer(f.ctx, bridgeOp, mod.Address, f.safeAddr(), receiver, 137, true, data)
		assert.True(t, errors.Is(err, ErrRouteNotAllowed))
		_, err = f.o.BridgeTransfer(f.ctx, bridgeOp, mod.Address, f.safeAddr(), stranger, 10, true, data)
		assert.True(t, errors.Is(err, ErrRouteNotAllowed))
	})

	t.Run("MissingBridgeOperatorRole", func(t *testing.T) {
		_, err := f.o.BridgeTransfer(f.ctx, stranger, mod.Address, f.safeAddr(), receiver, 10, true, data)
		assert.True(t, errors.Is(err, ErrUnauthorized))
	})

	res, err := f.o.BridgeTransfer(f.ctx, bridgeOp, mod.Address, f.safeAddr(), receiver, 10, true, data)
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), res.Amount().Int64())
	assert.Equal(t, int64(500_000), f.balance(t, f.usdc, f.safeAddr()))
	assert.Equal(t, int64(500_000), f.balance(t, f.usdc, hopL1))
}

// TestEncoding 测试 withdraw / Hop 数据编码
func TestEncoding(t *testing.T) {
	params, err := EncodeABI([]string{"uint256", "address"}, []interface{}{"7", booster.Hex()})
	require.NoError(t, err)
	require.Len(t, params, 64)
	assert.Equal(t, byte(7), params[31])

	data, err := EncodeWithdrawData([]string{"uint256", "address"}, []interface{}{"7", booster.Hex()})
	require.NoError(t, err)
	// 两个偏移量 + 空 bytes 长度 + params 长度 + params
	assert.Len(t, data, 32*4+64)
	assert.Equal(t, params, data[32*4:])

	_, err = EncodeABI([]string{"uint256"}, nil)
	assert.Error(t, err)

	l2, err := EncodeHopL2Data(big.NewInt(1), big.NewInt(2), big.NewInt(3), 4, big.NewInt(5), 6)
	require.NoError(t, err)
	require.Len(t, l2, 6*32)
	for i := 0; i < 6; i++ {
		assert.Equal(t, byte(i+1), l2[i*32+31])
	}
}

// TestWithinTolerance 测试容差边界
func TestWithinTolerance(t *testing.T) {
	want := big.NewInt(10_000)
	assert.True(t, WithinTolerance(big.NewInt(10_000), want, 0))
	assert.True(t, WithinTolerance(big.NewInt(9_990), want, 10))
	assert.False(t, WithinTolerance(big.NewInt(9_989), want, 10))
	assert.False(t, WithinTolerance(big.NewInt(10_001), want, 10))
	assert.False(t, WithinTolerance(nil, want, 10))
}

// TestPositionState 测试持仓状态
func TestPositionState(t *testing.T) {
	p := &Position{Deposited: big.NewInt(0), LockedUntil: 100}
	assert.Equal(t, PositionEmpty, p.State(0))
	p.Deposited = big.NewInt(1)
	assert.Equal(t, PositionLocked, p.State(99))
	assert.Equal(t, PositionActive, p.State(100))
	assert.Equal(t, "locked", PositionLocked.String())
}

// TestStats 测试池枚举、概况与 --nosend calldata
func TestStats(t *testing.T) {
	f := newFixture(t)
	mod, _ := f.strategy(t)

	pools, err := f.o.ListPools(f.ctx, mod.Address, 0, 1)
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "usdc-pool", pools[0].Name)
	assert.Equal(t, f.usdc, pools[0].DepositToken)

	_, err = f.o.ListPools(f.ctx, mod.Address, 0, 2)
	assert.Error(t, err)
	_, err = f.o.ListPools(f.ctx, mod.Address, 2, 1)
	assert.Error(t, err)

	amount, err := f.o.ParsePoolAmount(f.ctx, mod.Address, 0, "1.5")
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), amount.Int64())

	require.NoError(t, f.l.Mint(f.usdc, f.safeAddr(), amount))
	target := Target{Caller: strategist, Module: mod.Address, Safe: f.safeAddr()}
	_, err = f.o.Deposit(f.ctx, target, amount, nil)
	require.NoError(t, err)

	stats, err := f.o.Stats(f.ctx, mod.Address, 0, f.safeAddr())
	require.NoError(t, err)
	assert.Equal(t, "TestStrategy", stats.Name)
	assert.Equal(t, "1.0", stats.Version)
	assert.Equal(t, int64(1_498_500), stats.Deposited.Int64())
	require.Len(t, stats.Harvests, 2)
	assert.Equal(t, int64(500), stats.Harvests[0].Amount.Int64())

	call, err := DepositCall(target, amount, nil)
	require.NoError(t, err)
	assert.Equal(t, mod.Address, call.To)
	assert.Len(t, call.Data, 4+32*5)

	call, err = WithdrawCall(target, amount, true, []byte{0x01})
	require.NoError(t, err)
	assert.Len(t, call.Data, 4+32*7)
}
