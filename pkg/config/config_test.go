package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
default_network: hardhat
deployments: build/deployments
networks:
  hardhat:
    chain_id: 31337
    rpc: http://127.0.0.1:8545
    dev_rpc: hardhat
    fork:
      url: ${TEST_FORK_URL}
      block_number: 14655838
  ethereum:
    chain_id: "0x1"
    rpc: https://mainnet.example/${TEST_API_KEY}
    live: true
named_accounts:
  deployer:
    default: "0"
  safe:
    default: "1"
    ethereum: ${TEST_MAINNET_SAFE}
  oneinch:
    ethereum: "0x1111111254fb6c44bac0bed2854e76f90643097d"
keys:
  deployer: ${TEST_PRIVATE_KEY}
`

const tomlConfig = `
default_network = "optimism"

[networks.optimism]
chain_id = 10
rpc = "https://optimism.example"
live = true

[named_accounts.safe]
default = "0x00000000000000000000000000000000000000f1"
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// TestLoadYAML 测试 YAML 配置、环境变量展开与命名账户回退
func TestLoadYAML(t *testing.T) {
	t.Setenv("TEST_FORK_URL", "https://archive.example")
	t.Setenv("TEST_API_KEY", "secret")
	t.Setenv("TEST_MAINNET_SAFE", "0x00000000000000000000000000000000000000aa")
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	t.Setenv("TEST_PRIVATE_KEY", common.Bytes2Hex(crypto.FromECDSA(key)))

	f, err := Load(writeFile(t, "networks.yaml", yamlConfig))
	require.NoError(t, err)
	assert.Equal(t, []string{"ethereum", "hardhat"}, f.NetworkNames())

	dev := []common.Address{common.HexToAddress("0xd0"), common.HexToAddress("0xd1")}

	t.Run("default network with dev accounts", func(t *testing.T) {
		env, err := f.Resolve("", dev)
		require.NoError(t, err)
		assert.Equal(t, "hardhat", env.Network())
		assert.Equal(t, uint64(31337), env.ChainID().Uint64())
		assert.Equal(t, "hardhat", env.DevRPC())
		assert.Equal(t, "build/deployments", env.DeploymentsDir())
		require.NotNil(t, env.Fork())
		assert.Equal(t, "https://archive.example", env.Fork().URL)

		deployer, err := env.Account("deployer")
		require.NoError(t, err)
		assert.Equal(t, dev[0], deployer)
		safe, err := env.Account("safe")
		require.NoError(t, err)
		assert.Equal(t, dev[1], safe)

		_, err = env.Account("oneinch")
		assert.Error(t, err, "oneinch 只在 ethereum 上配置")

		k, err := env.Key("deployer")
		require.NoError(t, err)
		assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(k.PublicKey))
	})

	t.Run("network override beats default", func(t *testing.T) {
		env, err := f.Resolve("ethereum", nil)
		require.NoError(t, err)
		assert.True(t, env.Live())
		assert.Equal(t, uint64(1), env.ChainID().Uint64())
		assert.Equal(t, "https://mainnet.example/secret", env.RPC())

		safe, err := env.Account("safe")
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0xaa"), safe)

		_, err = env.Account("deployer")
		assert.Error(t, err, "没有开发节点账户时序号无法解析")
		assert.Equal(t, common.Address{}, env.AccountOrZero("deployer"))
	})

	t.Run("overrides", func(t *testing.T) {
		env, err := f.Resolve("ethereum", nil)
		require.NoError(t, err)
		over := env.WithOverrides("http://localhost:8545", "")
		assert.Equal(t, "http://localhost:8545", over.RPC())
		assert.Equal(t, "https://mainnet.example/secret", env.RPC())
	})

	_, err = f.Resolve("polygon", nil)
	assert.Error(t, err)
}

// TestLoadTOMLAndJSON 测试 TOML / JSON 配置
func TestLoadTOMLAndJSON(t *testing.T) {
	f, err := Load(writeFile(t, "networks.toml", tomlConfig))
	require.NoError(t, err)
	env, err := f.Resolve("", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), env.ChainID().Uint64())
	assert.Equal(t, common.HexToAddress("0xf1"), env.AccountOrZero("safe"))
	assert.Equal(t, []string{"safe"}, env.AccountNames())

	f, err = Load(writeFile(t, "networks.json", `{"networks": {"ganache": {"chain_id": "5777", "rpc": "http://localhost:7545"}}}`))
	require.NoError(t, err)
	env, err = f.Resolve("ganache", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5777), env.ChainID().Uint64())
	assert.Equal(t, "deployments", env.DeploymentsDir())

	_, err = Load(writeFile(t, "networks.ini", "x=1"))
	assert.Error(t, err)
	_, err = Load(writeFile(t, "empty.json", `{}`))
	assert.Error(t, err)
}
