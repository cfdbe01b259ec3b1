package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// 开发节点类型
const (
	FlavourHardhat = "hardhat"
	FlavourAnvil   = "anvil"
)

// Dev hardhat / anvil 开发节点扩展 RPC
type Dev struct {
	rpc    *rpc.Client
	prefix string
}

// NewDev 创建开发节点扩展，flavour 决定 impersonate/setBalance/mine/reset 的方法前缀
func NewDev(rc *rpc.Client, flavour string) (*Dev, error) {
	switch flavour {
	case FlavourHardhat, FlavourAnvil:
		return &Dev{rpc: rc, prefix: flavour}, nil
	default:
		return nil, fmt.Errorf("unsupported dev rpc %q (want %s or %s)", flavour, FlavourHardhat, FlavourAnvil)
	}
}

// Snapshot evm_snapshot
func (d *Dev) Snapshot(ctx context.Context) (string, error) {
	var id string
	if err := d.rpc.CallContext(ctx, &id, "evm_snapshot"); err != nil {
		return "", fmt.Errorf("evm_snapshot failed: %w", err)
	}
	return id, nil
}

// Revert evm_revert，快照只能使用一次
func (d *Dev) Revert(ctx context.Context, id string) error {
	var ok bool
	if err := d.rpc.CallContext(ctx, &ok, "evm_revert", id); err != nil {
		return fmt.Errorf("evm_revert failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("snapshot %s not found", id)
	}
	return nil
}

// Impersonate 允许以任意地址发送未签名交易
func (d *Dev) Impersonate(ctx context.Context, account common.Address) error {
	return d.call(ctx, "impersonateAccount", account)
}

// StopImpersonating 取消模拟
func (d *Dev) StopImpersonating(ctx context.Context, account common.Address) error {
	return d.call(ctx, "stopImpersonatingAccount", account)
}

// SetBalance 设置 ETH 余额（wei）
func (d *Dev) SetBalance(ctx context.Context, account common.Address, wei *big.Int) error {
	return d.call(ctx, "setBalance", account, (*hexutil.Big)(wei))
}

// Mine 出 n 个块
func (d *Dev) Mine(ctx context.Context, blocks uint64) error {
	if blocks == 0 {
		blocks = 1
	}
	return d.call(ctx, "mine", hexutil.Uint64(blocks))
}

// SetNextBlockTimestamp 设置下一个块的时间戳
func (d *Dev) SetNextBlockTimestamp(ctx context.Context, ts uint64) error {
	if err := d.rpc.CallContext(ctx, nil, "evm_setNextBlockTimestamp", hexutil.Uint64(ts)); err != nil {
		return fmt.Errorf("evm_setNextBlockTimestamp failed: %w", err)
	}
	return nil
}

// IncreaseTime 推进链上时间
func (d *Dev) IncreaseTime(ctx context.Context, seconds uint64) error {
	if err := d.rpc.CallContext(ctx, nil, "evm_increaseTime", hexutil.Uint64(seconds)); err != nil {
		return fmt.Errorf("evm_increaseTime failed: %w", err)
	}
	return nil
}

type forking struct {
	JSONRPCURL  string `json:"jsonRpcUrl"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
}

type resetParams struct {
	Forking *forking `json:"forking,omitempty"`
}

// Reset 重置为 fork 状态；url 为空时重置为空链
func (d *Dev) Reset(ctx context.Context, url string, block uint64) error {
	params := resetParams{}
	if url != "" {
		params.Forking = &forking{JSONRPCURL: url, BlockNumber: block}
	}
	return d.call(ctx, "reset", params)
}

func (d *Dev) call(ctx context.Context, method string, args ...interface{}) error {
	full := d.prefix + "_" + method
	if err := d.rpc.CallContext(ctx, nil, full, args...); err != nil {
		return fmt.Errorf("%s failed: %w", full, err)
	}
	return nil
}
