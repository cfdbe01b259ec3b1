// Package deployments hardhat-deploy 风格的部署记录：<dir>/<network>/<Name>.json
package deployments

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("deployment not found")

// Record 单个合约的部署记录
type Record struct {
	Name        string         `json:"name"`
	Contract    string         `json:"contract"`
	Address     common.Address `json:"address"`
	Args        []string       `json:"args,omitempty"`
	TxHash      common.Hash    `json:"transactionHash"`
	BlockNumber uint64         `json:"blockNumber"`
	RunID       string         `json:"runId,omitempty"`
	DeployedAt  time.Time      `json:"deployedAt"`
}

// Store 部署记录存储
type Store interface {
	// Get 返回记录，不存在时返回 ErrNotFound
	Get(name string) (*Record, error)
	// GetOrNull 不存在时返回 nil, nil
	GetOrNull(name string) (*Record, error)
	Save(rec *Record) error
	List() ([]*Record, error)
}

// DirStore 以网络子目录保存 JSON 文件
type DirStore struct {
	dir string
	mu  sync.Mutex
}

var _ Store = (*DirStore)(nil)

// NewDirStore 创建目录存储：root/network/
func NewDirStore(root, network string) *DirStore {
	return &DirStore{dir: filepath.Join(root, network)}
}

// Dir 记录所在目录
func (s *DirStore) Dir() string { return s.dir }

func (s *DirStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Get 读取记录
func (s *DirStore) Get(name string) (*Record, error) {
	rec, err := s.GetOrNull(name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return rec, nil
}

// GetOrNull 读取记录，不存在返回 nil
func (s *DirStore) GetOrNull(name string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode deployment %s: %w", name, err)
	}
	if rec.Name == "" {
		rec.Name = name
	}
	return &rec, nil
}

// Save 写入记录（先写临时文件再重命名）
func (s *DirStore) Save(rec *Record) error {
	if rec.Name == "" {
		return fmt.Errorf("deployment record without name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(rec.Name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path(rec.Name)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	log.Printf("[Deployments] saved %s at %s", rec.Name, rec.Address.Hex())
	return nil
}

// List 按名称排序列出全部记录
func (s *DirStore) List() ([]*Record, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*Record
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rec, err := s.Get(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// MemoryStore 内存存储（测试与 dry-run）
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get 读取记录
func (m *MemoryStore) Get(name string) (*Record, error) {
	rec, _ := m.GetOrNull(name)
	if rec == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return rec, nil
}

// GetOrNull 读取记录，不存在返回 nil
func (m *MemoryStore) GetOrNull(name string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Save 写入记录
func (m *MemoryStore) Save(rec *Record) error {
	if rec.Name == "" {
		return fmt.Errorf("deployment record without name")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Name] = *rec
	return nil
}

// List 按名称排序列出全部记录
func (m *MemoryStore) List() ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		r := rec
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
