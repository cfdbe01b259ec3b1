// Package contracts 保存编排所需的合约 ABI、选择器与 hardhat artifact 加载
package contracts

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	mu      sync.RWMutex
	parsed  = map[string]*abi.ABI{}
	aliases = map[string]string{} // 具体合约名 -> 基础 ABI 名
)

// RegisterAlias 让具体合约（如 ConvexStrategy）复用基础接口的 ABI
func RegisterAlias(name, base string) {
	if name == "" || base == "" || name == base {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	aliases[name] = base
}

// RegisterABI 注册（或覆盖）一个合约的 ABI，通常来自 artifact
func RegisterABI(name string, parsedABI *abi.ABI) {
	if name == "" || parsedABI == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	parsed[name] = parsedABI
}

// Resolve 返回 name 最终对应的基础合约名
func Resolve(name string) string {
	mu.RLock()
	defer mu.RUnlock()
	return resolveLocked(name)
}

func resolveLocked(name string) string {
	seen := map[string]bool{}
	for {
		if _, ok := parsed[name]; ok {
			return name
		}
		if _, ok := abiSources[name]; ok {
			return name
		}
		base, ok := aliases[name]
		if !ok || seen[name] {
			return name
		}
		seen[name] = true
		name = base
	}
}

// ABI 返回合约的已解析 ABI
func ABI(name string) (*abi.ABI, error) {
	mu.RLock()
	key := resolveLocked(name)
	if a, ok := parsed[key]; ok {
		mu.RUnlock()
		return a, nil
	}
	src, ok := abiSources[key]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown contract %q", name)
	}

	a, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s ABI: %w", key, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if existing, ok := parsed[key]; ok {
		return existing, nil
	}
	parsed[key] = &a
	return &a, nil
}

// MustABI 同 ABI，失败时 panic（仅用于内置 ABI）
func MustABI(name string) *abi.ABI {
	a, err := ABI(name)
	if err != nil {
		panic(err)
	}
	return a
}

// Pack 编码 method 调用数据
func Pack(contract, method string, args ...interface{}) ([]byte, error) {
	a, err := ABI(contract)
	if err != nil {
		return nil, err
	}
	data, err := a.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", contract, method, err)
	}
	return data, nil
}

// DecodeCall 按 ABI 解码 calldata，返回方法与参数
func DecodeCall(contract string, data []byte) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("calldata too short: %d bytes", len(data))
	}
	a, err := ABI(contract)
	if err != nil {
		return nil, nil, err
	}
	method, err := a.MethodById(data[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", contract, err)
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to unpack %s.%s: %w", contract, method.Name, err)
	}
	return method, values, nil
}

// EventByID 在全部已知 ABI 中按 topic0 查找事件
func EventByID(topic common.Hash) (*abi.Event, bool) {
	mu.RLock()
	names := make([]string, 0, len(abiSources)+len(parsed))
	for name := range abiSources {
		names = append(names, name)
	}
	for name := range parsed {
		if _, builtin := abiSources[name]; !builtin {
			names = append(names, name)
		}
	}
	mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		a, err := ABI(name)
		if err != nil {
			continue
		}
		if ev, err := a.EventByID(topic); err == nil {
			return ev, true
		}
	}
	return nil, false
}
