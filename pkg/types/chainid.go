// Package types 配置与记录文件中使用的宽松数值类型
package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ChainID 链ID，配置文件里可以写成数字、"0x1" 或 "1"
//
// 同时实现 JSON、YAML(v2) 与 TOML(encoding.TextUnmarshaler) 的解码。
type ChainID struct {
	value uint64
}

// NewChainID 创建链ID
func NewChainID(val uint64) ChainID {
	return ChainID{value: val}
}

// Uint64 返回 uint64 值
func (c ChainID) Uint64() uint64 {
	return c.value
}

// Big 返回 *big.Int（ABI 编码 uint256 参数时使用）
func (c ChainID) Big() *big.Int {
	return new(big.Int).SetUint64(c.value)
}

// IsZero 是否未设置
func (c ChainID) IsZero() bool {
	return c.value == 0
}

// String 十进制表示
func (c ChainID) String() string {
	return strconv.FormatUint(c.value, 10)
}

// UnmarshalJSON 支持 JSON 数字与字符串
func (c *ChainID) UnmarshalJSON(data []byte) error {
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		return c.set(num.String())
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("chain id must be a number or string: %w", err)
	}
	return c.set(str)
}

// MarshalJSON 序列化为 JSON 数字
func (c ChainID) MarshalJSON() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalYAML gopkg.in/yaml.v2 解码
func (c *ChainID) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case int:
		if v < 0 {
			return fmt.Errorf("negative chain id %d", v)
		}
		c.value = uint64(v)
		return nil
	case int64:
		if v < 0 {
			return fmt.Errorf("negative chain id %d", v)
		}
		c.value = uint64(v)
		return nil
	case uint64:
		c.value = v
		return nil
	case string:
		return c.set(v)
	case nil:
		c.value = 0
		return nil
	}
	return fmt.Errorf("unsupported chain id value %v (%T)", raw, raw)
}

// MarshalYAML 序列化为 YAML 数字
func (c ChainID) MarshalYAML() (interface{}, error) {
	return c.value, nil
}

// UnmarshalText TOML 的字符串形式（toml 整数直接走 set）
func (c *ChainID) UnmarshalText(text []byte) error {
	return c.set(string(text))
}

func (c *ChainID) set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "0x" {
		c.value = 0
		return nil
	}

	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return fmt.Errorf("invalid hex chain id %q", s)
		}
		if !n.IsUint64() {
			return fmt.Errorf("chain id %s overflows uint64", s)
		}
		c.value = n.Uint64()
		return nil
	}

	val, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chain id %q: %w", s, err)
	}
	c.value = val
	return nil
}

// Set 命令行参数（pflag.Value）
func (c *ChainID) Set(s string) error {
	return c.set(s)
}

// Type pflag.Value 类型名
func (c *ChainID) Type() string {
	return "chainID"
}
