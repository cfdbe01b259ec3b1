// Package chain 定义编排层所依赖的账本抽象（与具体链客户端无关）
package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SentinelModules Gnosis Safe 模块链表的哨兵地址
var SentinelModules = common.HexToAddress("0x0000000000000000000000000000000000000001")

// Ledger 账本客户端：部署合约、读调用、写交易、读取原始存储
//
// contract 为合约名（对应 pkg/contracts 中的 ABI），args 使用 go-ethereum ABI 的 Go 类型
// （common.Address / *big.Int / uint8 / bool / []byte ...）。
type Ledger interface {
	// Deploy 以 from 身份部署合约，返回新合约地址与部署回执
	Deploy(ctx context.Context, from common.Address, contract string, args ...interface{}) (common.Address, *Receipt, error)
	// Call 只读调用
	Call(ctx context.Context, from, to common.Address, contract, method string, args ...interface{}) ([]interface{}, error)
	// Transact 以 from 身份发送交易并等待确认
	Transact(ctx context.Context, from, to common.Address, contract, method string, args ...interface{}) (*Receipt, error)
	// StorageAt 读取存储槽
	StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error)
	// ChainID 当前链ID
	ChainID(ctx context.Context) (*big.Int, error)
	// Now 最新区块时间戳
	Now(ctx context.Context) (uint64, error)
}

// Executor "以控制者身份执行"的能力，背后可以是私钥直签或多签审批
type Executor interface {
	// Address 控制者地址（即 safe）
	Address() common.Address
	// Execute 以控制者身份对 to 执行 method 调用
	Execute(ctx context.Context, to common.Address, contract, method string, args ...interface{}) (*Receipt, error)
}

// Snapshotter 测试专用：链状态快照与回滚
type Snapshotter interface {
	Snapshot(ctx context.Context) (string, error)
	Revert(ctx context.Context, id string) error
}

// Receipt 交易回执（已解码事件）
type Receipt struct {
	TxHash      common.Hash    `json:"txHash"`
	BlockNumber uint64         `json:"blockNumber"`
	Status      uint64         `json:"status"`
	Contract    common.Address `json:"contractAddress,omitempty"`
	Events      []Event        `json:"events,omitempty"`
}

// Event 已解码的合约事件
type Event struct {
	Address common.Address         `json:"address"`
	Name    string                 `json:"name"`
	Args    map[string]interface{} `json:"args"`
}

// FindEvent 返回回执中第一个名为 name 的事件
func (r *Receipt) FindEvent(name string) (*Event, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Events {
		if r.Events[i].Name == name {
			return &r.Events[i], true
		}
	}
	return nil, false
}

// FindEventFrom 返回由 emitter 发出的第一个名为 name 的事件
func (r *Receipt) FindEventFrom(emitter common.Address, name string) (*Event, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Events {
		if r.Events[i].Name == name && r.Events[i].Address == emitter {
			return &r.Events[i], true
		}
	}
	return nil, false
}

// AddressArg 读取地址类型参数
func (e *Event) AddressArg(key string) (common.Address, bool) {
	v, ok := e.Args[key].(common.Address)
	return v, ok
}

// BigIntArg 读取 uint256 类型参数
func (e *Event) BigIntArg(key string) (*big.Int, bool) {
	v, ok := e.Args[key].(*big.Int)
	return v, ok
}
