package contracts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Artifact hardhat 编译产物（artifacts/contracts/**/Name.sol/Name.json）
type Artifact struct {
	ContractName string          `json:"contractName"`
	SourceName   string          `json:"sourceName"`
	RawABI       json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`

	parsed *abi.ABI
}

// ABI 返回解析后的 ABI
func (a *Artifact) ABI() (*abi.ABI, error) {
	if a.parsed != nil {
		return a.parsed, nil
	}
	parsed, err := abi.JSON(strings.NewReader(string(a.RawABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s artifact ABI: %w", a.ContractName, err)
	}
	a.parsed = &parsed
	return a.parsed, nil
}

// Code 部署字节码
func (a *Artifact) Code() ([]byte, error) {
	code := common.FromHex(a.Bytecode)
	if len(code) == 0 {
		return nil, fmt.Errorf("artifact %s has no bytecode (abstract contract or interface?)", a.ContractName)
	}
	return code, nil
}

// ArtifactSource 按合约名提供 artifact
type ArtifactSource interface {
	Artifact(name string) (*Artifact, error)
}

// DirArtifacts 在 hardhat artifacts 目录中按合约名查找
type DirArtifacts struct {
	Root string

	mu    sync.Mutex
	cache map[string]*Artifact
}

// NewDirArtifacts 创建目录 artifact 源
func NewDirArtifacts(root string) *DirArtifacts {
	return &DirArtifacts{Root: root, cache: make(map[string]*Artifact)}
}

// Artifact 查找 <Name>.json（跳过 .dbg.json），找到后同时注册其 ABI
func (d *DirArtifacts) Artifact(name string) (*Artifact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cached, ok := d.cache[name]; ok {
		return cached, nil
	}

	var matched string
	errStop := errors.New("artifact-found")
	target := name + ".json"

	walkErr := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		if entry.Name() == target {
			matched = path
			return errStop
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, errStop) {
		return nil, walkErr
	}
	if matched == "" {
		return nil, fmt.Errorf("artifact for %s not found under %s", name, d.Root)
	}

	art, err := LoadArtifact(matched)
	if err != nil {
		return nil, err
	}
	if art.ContractName == "" {
		art.ContractName = name
	}
	parsed, err := art.ABI()
	if err != nil {
		return nil, err
	}
	RegisterABI(name, parsed)

	d.cache[name] = art
	return art, nil
}

// LoadArtifact 读取单个 artifact 文件
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	return &art, nil
}
