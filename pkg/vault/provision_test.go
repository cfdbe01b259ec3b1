package vault

import (
	"errors"
	"math/big"
	"testing"

	"medici/pkg/contracts"
	"medici/pkg/metrics"
	"medici/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestProvisionRegistries 测试注册表准备的幂等性
func TestProvisionRegistries(t *testing.T) {
	f := newFixture(t, WithRunID("run-1"))

	regs, err := f.o.ProvisionRegistries(f.ctx, deployer, f.safeAddr())
	require.NoError(t, err)
	assert.False(t, regs.AlreadyProvisioned())
	assert.NoError(t, regs.Status[AuthRegistryName])
	assert.NoError(t, regs.Status[ExtRegistryName])
	assert.NotEqual(t, regs.Auth, regs.Ext)

	for _, reg := range []common.Address{regs.Auth, regs.Ext} {
		owner, err := f.o.RegistryOwner(f.ctx, reg)
		require.NoError(t, err)
		assert.Equal(t, f.safeAddr(), owner)
	}

	rec, err := f.o.Store().Get(AuthRegistryName)
	require.NoError(t, err)
	assert.Equal(t, regs.Auth, rec.Address)
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, []string{f.safeAddr().Hex()}, rec.Args)

	t.Run("SecondCallSkipsAll", func(t *testing.T) {
		again, err := f.o.ProvisionRegistries(f.ctx, deployer, stranger)
		require.NoError(t, err)
		assert.True(t, again.AlreadyProvisioned())
		assert.Equal(t, regs.Auth, again.Auth)
		assert.Equal(t, regs.Ext, again.Ext)

		records, err := f.o.Store().List()
		require.NoError(t, err)
		assert.Len(t, records, 2)
		assert.Equal(t, []string{metrics.OutcomeOK, metrics.OutcomeSkipped}, f.obs.outcomes("provision:"+AuthRegistryName))
	})

	t.Run("LoadFromDeployments", func(t *testing.T) {
		loaded, err := f.o.LoadRegistries()
		require.NoError(t, err)
		assert.Equal(t, regs.Auth, loaded.Auth)
		assert.Equal(t, regs.Ext, loaded.Ext)
		assert.True(t, loaded.AlreadyProvisioned())

		_, err = New(f.l).LoadRegistries()
		assert.Error(t, err)
	})

	t.Run("TransferOwnership", func(t *testing.T) {
		require.NoError(t, f.o.TransferOwnership(f.ctx, f.safe, regs.Ext, contracts.ExtRegistry, stranger))
		owner, err := f.o.RegistryOwner(f.ctx, regs.Ext)
		require.NoError(t, err)
		assert.Equal(t, stranger, owner)

		err = f.o.TransferOwnership(f.ctx, f.safe, regs.Ext, contracts.ExtRegistry, f.safeAddr())
		assert.True(t, errors.Is(err, ErrUnauthorized))
		var stepErr *StepError
		require.True(t, errors.As(err, &stepErr))
		assert.Equal(t, "setSafe:"+contracts.ExtRegistry, stepErr.Step)
	})
}

// TestSeed 测试权限播种与失败归因
func TestSeed(t *testing.T) {
	t.Run("SeedThroughSafe", func(t *testing.T) {
		f := newFixture(t)
		regs, err := f.o.ProvisionRegistries(f.ctx, deployer, f.safeAddr())
		require.NoError(t, err)
		plan := SeedPlan{
			Roles:    []Grant{{Account: strategist, Role: RoleStrategist}, {Account: harvester, Role: RoleHarvester}},
			External: []Whitelist{{Address: booster}},
		}
		require.NoError(t, f.o.Seed(f.ctx, f.safe, regs, plan))
		assert.Equal(t, int64(3), f.nonce(t))

		ok, err := f.o.HasRole(f.ctx, regs.Auth, strategist, RoleStrategist)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = f.o.HasRole(f.ctx, regs.Auth, strategist, RoleHarvester)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = f.o.IsExternalAddressAllowed(f.ctx, regs.Ext, booster)
		require.NoError(t, err)
		assert.True(t, ok)

		revoke := SeedPlan{Roles: []Grant{{Account: strategist, Role: RoleStrategist, Revoke: true}}, External: []Whitelist{{Address: booster, Disable: true}}}
		require.NoError(t, f.o.Seed(f.ctx, f.safe, regs, revoke))
		ok, err = f.o.HasRole(f.ctx, regs.Auth, strategist, RoleStrategist)
		require.NoError(t, err)
		assert.False(t, ok)
		ok, err = f.o.IsExternalAddressAllowed(f.ctx, regs.Ext, booster)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("FailureAttributedToIndex", func(t *testing.T) {
		f := newFixture(t)
		regs, err := f.o.ProvisionRegistries(f.ctx, deployer, f.safeAddr())
		require.NoError(t, err)
		require.NoError(t, f.o.TransferOwnership(f.ctx, f.safe, regs.Ext, contracts.ExtRegistry, stranger))

		plan := SeedPlan{
			Roles:    []Grant{{Account: strategist, Role: RoleStrategist}, {Account: harvester, Role: RoleHarvester}},
			External: []Whitelist{{Address: booster}},
		}
		err = f.o.Seed(f.ctx, f.safe, regs, plan)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnauthorized))

		var seedErr *SeedError
		require.True(t, errors.As(err, &seedErr))
		assert.Equal(t, 2, seedErr.Index)
		assert.Equal(t, 2, seedErr.Committed)
		var stepErr *StepError
		require.True(t, errors.As(err, &stepErr))
		assert.Equal(t, "seed", stepErr.Step)

		ok, err := f.o.HasRole(f.ctx, regs.Auth, harvester, RoleHarvester)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("InvalidRole", func(t *testing.T) {
		f := newFixture(t)
		regs, err := f.o.ProvisionRegistries(f.ctx, deployer, f.safeAddr())
		require.NoError(t, err)
		_, err = f.o.GrantRole(f.ctx, f.safe, regs.Auth, strategist, Role(9), true)
		require.Error(t, err)
		assert.Equal(t, int64(0), f.nonce(t))
	})
}

// TestSeedConcurrent 测试并发播种
func TestSeedConcurrent(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	regs, err := f.o.ProvisionRegistries(f.ctx, deployer, deployer)
	require.NoError(t, err)

	plan := SeedPlan{Concurrency: 4}
	for i := 0; i < 8; i++ {
		plan.External = append(plan.External, Whitelist{Address: common.BigToAddress(big.NewInt(int64(0x100 + i)))})
	}
	plan.Roles = []Grant{{Account: strategist, Role: RoleStrategist}}

	require.NoError(t, f.o.Seed(f.ctx, safe.NewDirect(f.l, deployer), regs, plan))
	for _, w := range plan.External {
		ok, err := f.o.IsExternalAddressAllowed(f.ctx, regs.Ext, w.Address)
		require.NoError(t, err)
		assert.True(t, ok, w.Address.Hex())
	}

	t.Run("NothingCommittedWhenAllFail", func(t *testing.T) {
		err := f.o.Seed(f.ctx, safe.NewDirect(f.l, stranger), regs, plan)
		require.Error(t, err)
		var seedErr *SeedError
		require.True(t, errors.As(err, &seedErr))
		assert.Equal(t, 0, seedErr.Committed)
		assert.GreaterOrEqual(t, seedErr.Index, 0)
		assert.Less(t, seedErr.Index, plan.Len())
	})
}
