package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

// TestChainIDJSON 测试 JSON 数字/十六进制/十进制字符串
func TestChainIDJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  uint64
	}{
		{"number", `1`, 1},
		{"hex", `"0x89"`, 137},
		{"decimal string", `"42161"`, 42161},
		{"empty", `""`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var id ChainID
			require.NoError(t, json.Unmarshal([]byte(tt.input), &id))
			assert.Equal(t, tt.want, id.Uint64())
		})
	}

	t.Run("invalid", func(t *testing.T) {
		var id ChainID
		assert.Error(t, json.Unmarshal([]byte(`"0xzz"`), &id))
		assert.Error(t, json.Unmarshal([]byte(`true`), &id))
	})

	t.Run("marshal", func(t *testing.T) {
		data, err := json.Marshal(NewChainID(10))
		require.NoError(t, err)
		assert.Equal(t, "10", string(data))
	})
}

// TestChainIDYAMLAndTOML 测试 YAML 与 TOML 解码
func TestChainIDYAMLAndTOML(t *testing.T) {
	var y struct {
		A ChainID `yaml:"a"`
		B ChainID `yaml:"b"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("a: 31337\nb: \"0xa\"\n"), &y))
	assert.Equal(t, uint64(31337), y.A.Uint64())
	assert.Equal(t, uint64(10), y.B.Uint64())

	var tm struct {
		A ChainID `toml:"a"`
		B ChainID `toml:"b"`
	}
	_, err := toml.Decode("a = 1\nb = \"0x2105\"\n", &tm)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), tm.A.Uint64())
	assert.Equal(t, uint64(8453), tm.B.Uint64())
	assert.Equal(t, big.NewInt(8453), tm.B.Big())
}

// TestUnits 测试 ParseUnits / FormatUnits
func TestUnits(t *testing.T) {
	v, err := ParseUnits("0.82", 18)
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("820000000000000000", 10)
	assert.Equal(t, 0, want.Cmp(v))

	v, err = ParseUnits("1000", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1000000000), v.Int64())

	_, err = ParseUnits("1.0000001", 6)
	assert.Error(t, err)
	_, err = ParseUnits("-1", 6)
	assert.Error(t, err)
	_, err = ParseUnits("abc", 6)
	assert.Error(t, err)

	assert.Equal(t, "1.5", FormatUnits(big.NewInt(1500000), 6))
	assert.Equal(t, "0", FormatUnits(nil, 18))
	assert.Equal(t, "123", FormatUnits(big.NewInt(123), 0))
}

// TestChainIDFlag 命令行参数形式
func TestChainIDFlag(t *testing.T) {
	var c ChainID
	require.NoError(t, c.Set("0x89"))
	assert.Equal(t, uint64(137), c.Uint64())
	require.NoError(t, c.Set("10"))
	assert.Equal(t, "10", c.String())
	assert.Equal(t, "chainID", c.Type())
	assert.Error(t, c.Set("polygon"))
}
