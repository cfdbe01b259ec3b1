package memledger

import (
	"context"
	"math/big"
	"testing"
	"time"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	deployer   = common.HexToAddress("0x00000000000000000000000000000000000000d0")
	strategist = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	stranger   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

// newTestSafe 通过代理工厂创建 1/1 Safe
func newTestSafe(t *testing.T, l *Ledger, owner common.Address) common.Address {
	t.Helper()
	ctx := context.Background()
	factory, _, err := l.Deploy(ctx, owner, contracts.GnosisSafeProxyFactory)
	require.NoError(t, err)
	singleton, _, err := l.Deploy(ctx, owner, contracts.GnosisSafe)
	require.NoError(t, err)

	zero := common.Address{}
	setup, err := contracts.Pack(contracts.GnosisSafe, "setup",
		[]common.Address{owner}, big.NewInt(1), zero, []byte{}, zero, zero, new(big.Int), zero)
	require.NoError(t, err)

	receipt, err := l.Transact(ctx, owner, factory, contracts.GnosisSafeProxyFactory, "createProxy", singleton, setup)
	require.NoError(t, err)
	ev, ok := receipt.FindEvent("ProxyCreation")
	require.True(t, ok)
	proxy, ok := ev.AddressArg("proxy")
	require.True(t, ok)
	return proxy
}

// execAsSafe owner 直接提交 execTransaction（v=1 且 msg.sender == owner）
func execAsSafe(t *testing.T, l *Ledger, safe, owner, to common.Address, contract, method string, args ...interface{}) (*chain.Receipt, error) {
	t.Helper()
	ctx := context.Background()
	data, err := contracts.Pack(contract, method, args...)
	require.NoError(t, err)
	out, err := l.Call(ctx, owner, safe, contracts.GnosisSafe, "nonce")
	require.NoError(t, err)
	tx := contracts.NewSafeTx(to, data, out[0].(*big.Int))
	sig := append(common.LeftPadBytes(owner[:], 32), make([]byte, 32)...)
	sig = append(sig, 1)
	return l.Transact(ctx, owner, safe, contracts.GnosisSafe, "execTransaction", tx.ExecArgs(sig)...)
}

// TestRegistryOwnership 测试注册表单一 owner 规则与 setSafe
func TestRegistryOwnership(t *testing.T) {
	ctx := context.Background()
	l := New()

	auth, _, err := l.Deploy(ctx, deployer, contracts.AuthRegistry, deployer)
	require.NoError(t, err)

	t.Run("NonOwnerCannotGrant", func(t *testing.T) {
		_, err := l.Transact(ctx, stranger, auth, contracts.AuthRegistry, "setRole", strategist, uint8(2), true)
		require.Error(t, err)
		assert.Equal(t, []string{chain.ReasonAccessControl}, chain.RevertReasons(err))
	})

	t.Run("OwnerGrantEmitsEvent", func(t *testing.T) {
		receipt, err := l.Transact(ctx, deployer, auth, contracts.AuthRegistry, "setRole", strategist, uint8(2), true)
		require.NoError(t, err)
		ev, ok := receipt.FindEventFrom(auth, "RoleUpdated")
		require.True(t, ok)
		assert.Equal(t, strategist, ev.Args["account"])

		out, err := l.Call(ctx, stranger, auth, contracts.AuthRegistry, "hasRole", strategist, uint8(2))
		require.NoError(t, err)
		assert.Equal(t, true, out[0])
	})

	t.Run("SetSafeRevokesOldOwner", func(t *testing.T) {
		_, err := l.Transact(ctx, deployer, auth, contracts.AuthRegistry, "setSafe", stranger)
		require.NoError(t, err)

		slot, err := l.StorageAt(ctx, auth, common.Hash{})
		require.NoError(t, err)
		assert.Equal(t, stranger, common.BytesToAddress(slot[:]))

		_, err = l.Transact(ctx, deployer, auth, contracts.AuthRegistry, "setRole", strategist, uint8(3), true)
		assert.True(t, chain.IsRevert(err))
	})
}

// TestSafeModules 测试模块链表、分页与 disableModule 的 prev 校验
func TestSafeModules(t *testing.T) {
	ctx := context.Background()
	l := New()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	safe := newTestSafe(t, l, owner)

	a := common.HexToAddress("0x000000000000000000000000000000000000000a")
	b := common.HexToAddress("0x000000000000000000000000000000000000000b")
	c := common.HexToAddress("0x000000000000000000000000000000000000000c")
	// 头插法：依次启用 c, b, a 得到 [S, a, b, c, S]
	for _, m := range []common.Address{c, b, a} {
		_, err := execAsSafe(t, l, safe, owner, safe, contracts.GnosisSafe, "enableModule", m)
		require.NoError(t, err)
	}

	t.Run("EnableTwiceReturnsGS102", func(t *testing.T) {
		_, err := execAsSafe(t, l, safe, owner, safe, contracts.GnosisSafe, "enableModule", a)
		require.Error(t, err)
		assert.Equal(t, []string{chain.ReasonSafeTxFailed, chain.ReasonSafeModuleExists}, chain.RevertReasons(err))
	})

	t.Run("DirectEnableModuleReturnsGS031", func(t *testing.T) {
		_, err := l.Transact(ctx, owner, safe, contracts.GnosisSafe, "enableModule", stranger)
		assert.Equal(t, []string{chain.ReasonSafeOnlySelf}, chain.RevertReasons(err))
	})

	t.Run("Pagination", func(t *testing.T) {
		out, err := l.Call(ctx, owner, safe, contracts.GnosisSafe, "getModulesPaginated", chain.SentinelModules, big.NewInt(2))
		require.NoError(t, err)
		assert.Equal(t, []common.Address{a, b}, out[0])
		assert.Equal(t, b, out[1])

		out, err = l.Call(ctx, owner, safe, contracts.GnosisSafe, "getModulesPaginated", b, big.NewInt(2))
		require.NoError(t, err)
		assert.Equal(t, []common.Address{c}, out[0])
		assert.Equal(t, chain.SentinelModules, out[1])
	})

	t.Run("WrongPrevReturnsGS103", func(t *testing.T) {
		_, err := execAsSafe(t, l, safe, owner, safe, contracts.GnosisSafe, "disableModule", chain.SentinelModules, b)
		assert.Contains(t, chain.RevertReasons(err), chain.ReasonSafePrevModule)

		_, err = execAsSafe(t, l, safe, owner, safe, contracts.GnosisSafe, "disableModule", a, b)
		require.NoError(t, err)
		out, err := l.Call(ctx, owner, safe, contracts.GnosisSafe, "isModuleEnabled", b)
		require.NoError(t, err)
		assert.Equal(t, false, out[0])
	})
}

// TestSafeSignatures 测试 ECDSA 签名与 approveHash 流程
func TestSafeSignatures(t *testing.T) {
	ctx := context.Background()
	l := New()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	owner := crypto.PubkeyToAddress(key.PublicKey)
	safe := newTestSafe(t, l, owner)

	ext, _, err := l.Deploy(ctx, deployer, contracts.ExtRegistry, safe)
	require.NoError(t, err)
	data, err := contracts.Pack(contracts.ExtRegistry, "setExternalAddress", stranger, true)
	require.NoError(t, err)
	tx := contracts.NewSafeTx(ext, data, big.NewInt(0))

	t.Run("TransactionHashMatchesLocal", func(t *testing.T) {
		args := append(tx.ExecArgs(nil)[:9], tx.Nonce)
		out, err := l.Call(ctx, owner, safe, contracts.GnosisSafe, "getTransactionHash", args...)
		require.NoError(t, err)
		chainID, _ := l.ChainID(ctx)
		assert.Equal(t, [32]byte(tx.Hash(chainID, safe)), out[0])
	})

	t.Run("UnapprovedHashReturnsGS025", func(t *testing.T) {
		sig := append(common.LeftPadBytes(owner[:], 32), make([]byte, 32)...)
		sig = append(sig, 1)
		_, err := l.Transact(ctx, stranger, safe, contracts.GnosisSafe, "execTransaction", tx.ExecArgs(sig)...)
		assert.Equal(t, []string{chain.ReasonSafeHashNotApprove}, chain.RevertReasons(err))
	})

	t.Run("ExecuteWithECDSASignature", func(t *testing.T) {
		chainID, _ := l.ChainID(ctx)
		hash := tx.Hash(chainID, safe)
		sig, err := crypto.Sign(hash[:], key)
		require.NoError(t, err)
		sig[64] += 27

		receipt, err := l.Transact(ctx, stranger, safe, contracts.GnosisSafe, "execTransaction", tx.ExecArgs(sig)...)
		require.NoError(t, err)
		_, ok := receipt.FindEventFrom(safe, "ExecutionSuccess")
		assert.True(t, ok)
		_, ok = receipt.FindEventFrom(ext, "ExternalAddressUpdated")
		assert.True(t, ok)

		out, err := l.Call(ctx, owner, safe, contracts.GnosisSafe, "nonce")
		require.NoError(t, err)
		assert.Equal(t, int64(1), out[0].(*big.Int).Int64())
	})
}

// TestStrategyLifecycle 测试存款手续费、冷却锁定、取款与 revert 回滚
func TestStrategyLifecycle(t *testing.T) {
	ctx := context.Background()
	l := New()
	owner := common.HexToAddress("0x00000000000000000000000000000000000000f1")
	safe := newTestSafe(t, l, owner)

	usdc, _, err := l.Deploy(ctx, deployer, contracts.ERC20, "USDC", uint8(6))
	require.NoError(t, err)
	crv, _, err := l.Deploy(ctx, deployer, contracts.ERC20, "CRV", uint8(18))
	require.NoError(t, err)
	require.NoError(t, l.Mint(usdc, safe, big.NewInt(1_000_000)))

	l.RegisterStrategy("TestStrategy", StrategyConfig{
		Pools:    []Pool{{Name: "usdc-pool", DepositToken: usdc}},
		FeeBps:   10,
		Cooldown: 3600,
		Rewards:  []Reward{{Token: crv, Amount: big.NewInt(500)}},
	})

	auth, _, err := l.Deploy(ctx, deployer, contracts.AuthRegistry, safe)
	require.NoError(t, err)
	ext, _, err := l.Deploy(ctx, deployer, contracts.ExtRegistry, safe)
	require.NoError(t, err)
	strat, _, err := l.Deploy(ctx, deployer, "TestStrategy", ext, auth, common.HexToAddress("0xb0"))
	require.NoError(t, err)

	_, err = execAsSafe(t, l, safe, owner, auth, contracts.AuthRegistry, "setRole", strategist, uint8(2), true)
	require.NoError(t, err)

	t.Run("ModuleNotEnabledReturnsGS104", func(t *testing.T) {
		_, err := l.Transact(ctx, strategist, strat, "TestStrategy", "deposit", big.NewInt(0), safe, big.NewInt(1000), []byte{})
		assert.Equal(t, []string{chain.ReasonSafeNotModule}, chain.RevertReasons(err))
	})

	_, err = execAsSafe(t, l, safe, owner, safe, contracts.GnosisSafe, "enableModule", strat)
	require.NoError(t, err)

	t.Run("DepositWithoutRoleFails", func(t *testing.T) {
		_, err := l.Transact(ctx, stranger, strat, "TestStrategy", "deposit", big.NewInt(0), safe, big.NewInt(1000), []byte{})
		assert.Equal(t, []string{chain.ReasonAccessControl}, chain.RevertReasons(err))
		out, err := l.Call(ctx, stranger, usdc, contracts.ERC20, "balanceOf", safe)
		require.NoError(t, err)
		assert.Equal(t, int64(1_000_000), out[0].(*big.Int).Int64())
	})

	t.Run("DepositChargesFeeAndLocks", func(t *testing.T) {
		receipt, err := l.Transact(ctx, strategist, strat, "TestStrategy", "deposit", big.NewInt(0), safe, big.NewInt(100_000), []byte{})
		require.NoError(t, err)
		ev, ok := receipt.FindEventFrom(strat, "Deposited")
		require.True(t, ok)
		amount, _ := ev.BigIntArg("amount")
		assert.Equal(t, int64(99_900), amount.Int64())

		out, err := l.Call(ctx, stranger, strat, "TestStrategy", "lockedUntil", big.NewInt(0), safe)
		require.NoError(t, err)
		now, _ := l.Now(ctx)
		assert.Equal(t, int64(now+3600), out[0].(*big.Int).Int64())
	})

	t.Run("WithdrawDuringCooldownReturnsLK1", func(t *testing.T) {
		_, err := l.Transact(ctx, strategist, strat, "TestStrategy", "withdraw", big.NewInt(0), safe, big.NewInt(99_900), false, []byte{})
		assert.Equal(t, []string{chain.ReasonLockActive}, chain.RevertReasons(err))
	})

	t.Run("SimulateClaimReturnsRewards", func(t *testing.T) {
		out, err := l.Call(ctx, common.Address{}, strat, "TestStrategy", "simulateClaim", big.NewInt(0), safe, []byte{})
		require.NoError(t, err)
		harvests, err := contracts.DecodeHarvests(out[0])
		require.NoError(t, err)
		require.Len(t, harvests, 1)
		assert.Equal(t, crv, harvests[0].Token)
		assert.Equal(t, int64(500), harvests[0].Amount.Int64())
	})

	t.Run("WithdrawAfterExpiry", func(t *testing.T) {
		l.AdvanceTime(time.Hour)
		receipt, err := l.Transact(ctx, strategist, strat, "TestStrategy", "withdraw", big.NewInt(0), safe, big.NewInt(1_000_000), false, []byte{})
		require.NoError(t, err)
		ev, ok := receipt.FindEventFrom(strat, "Withdrew")
		require.True(t, ok)
		amount, _ := ev.BigIntArg("amount")
		assert.Equal(t, int64(99_900), amount.Int64())

		out, err := l.Call(ctx, stranger, strat, "TestStrategy", "depositedAmount", big.NewInt(0), safe)
		require.NoError(t, err)
		assert.Equal(t, int64(0), out[0].(*big.Int).Int64())
	})
}

// TestSnapshot 测试快照回滚
func TestSnapshot(t *testing.T) {
	ctx := context.Background()
	l := New()
	token, _, err := l.Deploy(ctx, deployer, contracts.ERC20, "DAI", uint8(18))
	require.NoError(t, err)

	id, err := l.Snapshot(ctx)
	require.NoError(t, err)
	require.NoError(t, l.Mint(token, stranger, big.NewInt(42)))
	l.AdvanceTime(time.Minute)

	require.NoError(t, l.Revert(ctx, id))
	out, err := l.Call(ctx, stranger, token, contracts.ERC20, "balanceOf", stranger)
	require.NoError(t, err)
	assert.Equal(t, int64(0), out[0].(*big.Int).Int64())

	assert.Error(t, l.Revert(ctx, id), "快照只能使用一次")
	assert.Error(t, l.SetTime(1), "时间不能倒退")
}
