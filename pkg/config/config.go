// Package config 网络与命名账户配置
//
// 配置文件按扩展名解析：.yaml/.yml（gopkg.in/yaml.v2）、.toml（BurntSushi/toml）、.json。
// 字符串值支持 ${ENV} 展开。Resolve 返回某一网络的不可变 Environment，显式传入各流程。
package config

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"medici/pkg/types"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v2"
)

// DefaultKey 命名账户的缺省条目
const DefaultKey = "default"

// File 配置文件结构
type File struct {
	DefaultNetwork string             `yaml:"default_network" toml:"default_network" json:"default_network"`
	Deployments    string             `yaml:"deployments" toml:"deployments" json:"deployments"`
	Artifacts      string             `yaml:"artifacts" toml:"artifacts" json:"artifacts"`
	Networks       map[string]Network `yaml:"networks" toml:"networks" json:"networks"`
	// NamedAccounts 账户名 -> 网络名（或 default）-> 地址 / ${ENV} / 开发节点账户序号
	NamedAccounts map[string]map[string]string `yaml:"named_accounts" toml:"named_accounts" json:"named_accounts"`
	// Keys 账户名 -> 私钥（通常写成 ${PRIVATE_KEY}）
	Keys map[string]string `yaml:"keys" toml:"keys" json:"keys"`
}

// Network 单个网络
type Network struct {
	ChainID types.ChainID `yaml:"chain_id" toml:"chain_id" json:"chain_id"`
	RPC     string        `yaml:"rpc" toml:"rpc" json:"rpc"`
	Live    bool          `yaml:"live" toml:"live" json:"live"`
	// DevRPC 开发节点方言：hardhat / anvil / ganache；live 网络留空
	DevRPC string `yaml:"dev_rpc" toml:"dev_rpc" json:"dev_rpc"`
	Fork   *Fork  `yaml:"fork" toml:"fork" json:"fork"`
}

// Fork 本地分叉参数（hardhat_reset）
type Fork struct {
	URL         string `yaml:"url" toml:"url" json:"url"`
	BlockNumber uint64 `yaml:"block_number" toml:"block_number" json:"block_number"`
}

// Load 从磁盘加载配置
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		_, err = toml.Decode(string(data), &f)
	case ".json":
		err = json.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if len(f.Networks) == 0 {
		return nil, fmt.Errorf("config %s defines no networks", path)
	}
	return &f, nil
}

// NetworkNames 已配置的网络名（排序）
func (f *File) NetworkNames() []string {
	names := make([]string, 0, len(f.Networks))
	for name := range f.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve 解析某一网络的环境；network 为空时使用 default_network
//
// devAccounts 为开发节点 eth_accounts 结果，用于解析序号形式的命名账户，可为空。
func (f *File) Resolve(network string, devAccounts []common.Address) (*Environment, error) {
	if network == "" {
		network = f.DefaultNetwork
	}
	nw, ok := f.Networks[network]
	if !ok {
		return nil, fmt.Errorf("unknown network %q (configured: %s)", network, strings.Join(f.NetworkNames(), ", "))
	}

	env := &Environment{
		network:     network,
		chainID:     nw.ChainID,
		rpc:         os.ExpandEnv(nw.RPC),
		live:        nw.Live,
		devRPC:      nw.DevRPC,
		deployments: f.Deployments,
		artifacts:   f.Artifacts,
		accounts:    make(map[string]common.Address),
		unresolved:  make(map[string]error),
		keys:        make(map[string]string),
	}
	if env.deployments == "" {
		env.deployments = "deployments"
	}
	if nw.Fork != nil {
		fork := *nw.Fork
		fork.URL = os.ExpandEnv(fork.URL)
		env.fork = &fork
	}

	for name, perNetwork := range f.NamedAccounts {
		raw, ok := perNetwork[network]
		if !ok {
			raw, ok = perNetwork[DefaultKey]
		}
		if !ok {
			continue
		}
		addr, err := resolveAccount(os.ExpandEnv(raw), devAccounts)
		if err != nil {
			env.unresolved[name] = err
			continue
		}
		env.accounts[name] = addr
	}
	for name, raw := range f.Keys {
		if key := strings.TrimSpace(os.ExpandEnv(raw)); key != "" {
			env.keys[name] = key
		}
	}
	return env, nil
}

func resolveAccount(raw string, devAccounts []common.Address) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.Address{}, fmt.Errorf("empty value")
	}
	if common.IsHexAddress(raw) {
		return common.HexToAddress(raw), nil
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%q is neither an address nor an account index", raw)
	}
	if idx < 0 || idx >= len(devAccounts) {
		return common.Address{}, fmt.Errorf("account index %d not available (node has %d accounts)", idx, len(devAccounts))
	}
	return devAccounts[idx], nil
}

// Environment 解析后的网络环境（只读）
type Environment struct {
	network     string
	chainID     types.ChainID
	rpc         string
	live        bool
	devRPC      string
	fork        *Fork
	deployments string
	artifacts   string
	accounts    map[string]common.Address
	unresolved  map[string]error
	keys        map[string]string
}

// Network 网络名
func (e *Environment) Network() string { return e.network }

// ChainID 配置的链ID（未配置时为零值，由节点决定）
func (e *Environment) ChainID() types.ChainID { return e.chainID }

// RPC 节点地址
func (e *Environment) RPC() string { return e.rpc }

// Live 是否为正式网络
func (e *Environment) Live() bool { return e.live }

// DevRPC 开发节点方言
func (e *Environment) DevRPC() string { return e.devRPC }

// Fork 分叉参数，可能为 nil
func (e *Environment) Fork() *Fork {
	if e.fork == nil {
		return nil
	}
	f := *e.fork
	return &f
}

// DeploymentsDir 部署记录根目录
func (e *Environment) DeploymentsDir() string { return e.deployments }

// ArtifactsDir hardhat artifacts 目录
func (e *Environment) ArtifactsDir() string { return e.artifacts }

// Account 返回命名账户地址
func (e *Environment) Account(name string) (common.Address, error) {
	if addr, ok := e.accounts[name]; ok {
		return addr, nil
	}
	if err, ok := e.unresolved[name]; ok {
		return common.Address{}, fmt.Errorf("named account %s on %s: %w", name, e.network, err)
	}
	return common.Address{}, fmt.Errorf("named account %s is not configured for %s", name, e.network)
}

// AccountOrZero 未配置时返回零地址
func (e *Environment) AccountOrZero(name string) common.Address {
	return e.accounts[name]
}

// AccountNames 已解析的命名账户（排序）
func (e *Environment) AccountNames() []string {
	names := make([]string, 0, len(e.accounts))
	for name := range e.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Key 解析账户私钥
func (e *Environment) Key(name string) (*ecdsa.PrivateKey, error) {
	raw, ok := e.keys[name]
	if !ok {
		return nil, fmt.Errorf("no key configured for %s", name)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid key for %s: %w", name, err)
	}
	return key, nil
}

// WithOverrides 返回覆盖 RPC / 部署目录后的副本（命令行参数优先于配置文件）
func (e *Environment) WithOverrides(rpc, deployments string) *Environment {
	c := *e
	if rpc != "" {
		c.rpc = rpc
	}
	if deployments != "" {
		c.deployments = deployments
	}
	return &c
}
