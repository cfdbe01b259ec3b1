package safe

import (
	"context"
	"fmt"
	"sync"

	"medici/pkg/batch"
	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// Recorder 不发送交易，把控制者调用记入 Transaction Builder 批量文件，
// 供多签 owner 在 Safe UI 中审批
type Recorder struct {
	mu      sync.Mutex
	address common.Address
	file    *batch.File
}

var _ chain.Executor = (*Recorder)(nil)

// NewRecorder 以 file 为输出创建记录器
func NewRecorder(address common.Address, file *batch.File) *Recorder {
	return &Recorder{address: address, file: file}
}

// Address Safe 地址
func (r *Recorder) Address() common.Address { return r.address }

// Execute 记录一笔调用，返回空回执（无事件）
func (r *Recorder) Execute(ctx context.Context, to common.Address, contract, method string, args ...interface{}) (*chain.Receipt, error) {
	parsed, err := contracts.ABI(contract)
	if err != nil {
		return nil, err
	}
	m, ok := parsed.Methods[method]
	if !ok {
		return nil, fmt.Errorf("%s has no method %s", contract, method)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.file.AddCall(to, m, args...); err != nil {
		return nil, err
	}
	return &chain.Receipt{}, nil
}

// File 已记录的批量文件
func (r *Recorder) File() *batch.File {
	return r.file
}
