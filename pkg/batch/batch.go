// Package batch Safe Transaction Builder 批量交易文件
package batch

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// TxBuilderVersion 生成文件时标注的 Transaction Builder 版本
const TxBuilderVersion = "1.4.0"

// File 批量交易文件（Safe Transaction Builder 可直接导入）
type File struct {
	Version      string        `json:"version" yaml:"version"`
	ChainID      string        `json:"chainId" yaml:"chainId"`
	CreatedAt    int64         `json:"createdAt" yaml:"createdAt"`
	Meta         Meta          `json:"meta" yaml:"meta"`
	Transactions []Transaction `json:"transactions" yaml:"transactions"`
}

// Meta 文件元信息
type Meta struct {
	Name                    string `json:"name" yaml:"name"`
	Description             string `json:"description,omitempty" yaml:"description,omitempty"`
	TxBuilderVersion        string `json:"txBuilderVersion" yaml:"txBuilderVersion"`
	CreatedFromSafeAddress  string `json:"createdFromSafeAddress" yaml:"createdFromSafeAddress"`
	CreatedFromOwnerAddress string `json:"createdFromOwnerAddress" yaml:"createdFromOwnerAddress"`
	Checksum                string `json:"checksum" yaml:"checksum"`
}

// Transaction 单笔交易：contractMethod + contractInputsValues，或原始 data
type Transaction struct {
	To                   string            `json:"to" yaml:"to"`
	Value                string            `json:"value" yaml:"value"`
	Data                 *string           `json:"data,omitempty" yaml:"data,omitempty"`
	ContractMethod       *ContractMethod   `json:"contractMethod,omitempty" yaml:"contractMethod,omitempty"`
	ContractInputsValues map[string]string `json:"contractInputsValues,omitempty" yaml:"contractInputsValues,omitempty"`
}

// ContractMethod 方法描述
type ContractMethod struct {
	Inputs  []Input `json:"inputs" yaml:"inputs"`
	Name    string  `json:"name" yaml:"name"`
	Payable bool    `json:"payable" yaml:"payable"`
}

// Input 方法参数
type Input struct {
	InternalType string `json:"internalType" yaml:"internalType"`
	Name         string `json:"name" yaml:"name"`
	Type         string `json:"type" yaml:"type"`
}

// New 创建空批量文件
func New(name string, chainID *big.Int, safe common.Address) *File {
	return &File{
		Version:   "1.0",
		ChainID:   chainID.String(),
		CreatedAt: time.Now().UnixMilli(),
		Meta: Meta{
			Name:                   name,
			TxBuilderVersion:       TxBuilderVersion,
			CreatedFromSafeAddress: safe.Hex(),
		},
		Transactions: []Transaction{},
	}
}

// AddCall 按 ABI 方法追加一笔调用，参数值格式化为 Transaction Builder 的字符串形式
func (f *File) AddCall(to common.Address, method abi.Method, args ...interface{}) error {
	if len(args) != len(method.Inputs) {
		return fmt.Errorf("%s: want %d arguments, got %d", method.Name, len(method.Inputs), len(args))
	}
	cm := &ContractMethod{
		Name:    method.Name,
		Payable: method.Payable,
		Inputs:  make([]Input, len(method.Inputs)),
	}
	values := make(map[string]string, len(args))
	for i, in := range method.Inputs {
		name := in.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		typ := in.Type.String()
		cm.Inputs[i] = Input{InternalType: typ, Name: name, Type: typ}
		values[name] = FormatValue(args[i])
	}
	f.Transactions = append(f.Transactions, Transaction{
		To:                   to.Hex(),
		Value:                "0",
		ContractMethod:       cm,
		ContractInputsValues: values,
	})
	return nil
}

// AddRaw 追加一笔原始 calldata 交易
func (f *File) AddRaw(to common.Address, data []byte) {
	hexData := "0x" + common.Bytes2Hex(data)
	f.Transactions = append(f.Transactions, Transaction{To: to.Hex(), Value: "0", Data: &hexData})
}

// FormatValue 参数值的字符串表示
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case common.Address:
		return x.Hex()
	case *big.Int:
		return x.String()
	case []byte:
		return "0x" + common.Bytes2Hex(x)
	case [32]byte:
		return common.Hash(x).Hex()
	case bool:
		if x {
			return "true"
		}
		return "false"
	case []common.Address:
		parts := make([]string, len(x))
		for i, a := range x {
			parts[i] = a.Hex()
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return fmt.Sprint(v)
}

// Marshal 按格式（json / yaml）序列化
func (f *File) Marshal(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return json.MarshalIndent(f, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(f)
	}
	return nil, fmt.Errorf("unsupported batch format %q", format)
}

// Write 写入文件；格式由扩展名决定（.yaml/.yml 为 YAML，其余 JSON）
func (f *File) Write(path string) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	if format != "yaml" && format != "yml" {
		format = "json"
	}
	data, err := f.Marshal(format)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// 先写临时文件再重命名
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Read 读取批量文件（JSON 或 YAML）
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	default:
		err = json.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode batch %s: %w", path, err)
	}
	return &f, nil
}
