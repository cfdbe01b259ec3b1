// Package evm 基于 go-ethereum JSON-RPC 的账本后端
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Ledger 连接真实节点（或 hardhat/anvil 开发节点）的账本
//
// 持有私钥的账户用本地签名交易发送；其他账户通过 eth_sendTransaction 发送，
// 要求节点已解锁或模拟（impersonate）该账户。
type Ledger struct {
	rpc       *rpc.Client
	client    *ethclient.Client
	chainID   *big.Int
	artifacts contracts.ArtifactSource
	keys      map[common.Address]*ecdsa.PrivateKey
	gasLimit  uint64
	poll      time.Duration
	dev       *Dev
}

var (
	_ chain.Ledger      = (*Ledger)(nil)
	_ chain.Snapshotter = (*Ledger)(nil)
)

// Option 账本选项
type Option func(*Ledger) error

// WithArtifacts 部署时使用的 artifact 源
func WithArtifacts(src contracts.ArtifactSource) Option {
	return func(l *Ledger) error {
		l.artifacts = src
		return nil
	}
}

// WithKey 登记一个本地签名账户
func WithKey(key *ecdsa.PrivateKey) Option {
	return func(l *Ledger) error {
		if key == nil {
			return errors.New("nil private key")
		}
		l.keys[crypto.PubkeyToAddress(key.PublicKey)] = key
		return nil
	}
}

// WithGasLimit 固定 gas 上限（0 表示估算）
func WithGasLimit(limit uint64) Option {
	return func(l *Ledger) error {
		l.gasLimit = limit
		return nil
	}
}

// WithPollInterval 回执轮询间隔
func WithPollInterval(d time.Duration) Option {
	return func(l *Ledger) error {
		if d <= 0 {
			return fmt.Errorf("invalid poll interval %s", d)
		}
		l.poll = d
		return nil
	}
}

// WithDevRPC 启用开发节点扩展（hardhat / anvil）
func WithDevRPC(flavour string) Option {
	return func(l *Ledger) error {
		dev, err := NewDev(l.rpc, flavour)
		if err != nil {
			return err
		}
		l.dev = dev
		return nil
	}
}

// Dial 连接节点
func Dial(ctx context.Context, url string, opts ...Option) (*Ledger, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	l, err := NewWithClient(ctx, rc, opts...)
	if err != nil {
		rc.Close()
		return nil, err
	}
	log.Printf("[EVM] Connected to %s (chain %s)", url, l.chainID)
	return l, nil
}

// NewWithClient 基于已有 rpc 连接创建账本
func NewWithClient(ctx context.Context, rc *rpc.Client, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		rpc:    rc,
		client: ethclient.NewClient(rc),
		keys:   make(map[common.Address]*ecdsa.PrivateKey),
		poll:   time.Second,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	id, err := l.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	l.chainID = id
	return l, nil
}

// Close 关闭连接
func (l *Ledger) Close() {
	l.rpc.Close()
}

// Client 底层 ethclient
func (l *Ledger) Client() *ethclient.Client { return l.client }

// Dev 开发节点扩展，未启用时为 nil
func (l *Ledger) Dev() *Dev { return l.dev }

// Accounts 节点管理的账户（开发节点上即预置测试账户）
func (l *Ledger) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := l.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts failed: %w", err)
	}
	return accounts, nil
}

// Deploy 从 artifact 部署合约
func (l *Ledger) Deploy(ctx context.Context, from common.Address, contract string, args ...interface{}) (common.Address, *chain.Receipt, error) {
	if l.artifacts == nil {
		return common.Address{}, nil, fmt.Errorf("cannot deploy %s: no artifact source configured", contract)
	}
	artifact, err := l.artifacts.Artifact(contract)
	if err != nil {
		return common.Address{}, nil, err
	}
	parsed, err := artifact.ABI()
	if err != nil {
		return common.Address{}, nil, err
	}
	code, err := artifact.Code()
	if err != nil {
		return common.Address{}, nil, err
	}
	contracts.RegisterABI(contract, parsed)

	packedArgs, err := parsed.Pack("", args...)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("failed to pack %s constructor: %w", contract, err)
	}
	input := append(append([]byte(nil), code...), packedArgs...)
	if err := l.preflight(ctx, from, nil, input); err != nil {
		return common.Address{}, nil, fmt.Errorf("deploy %s: %w", contract, err)
	}

	var hash common.Hash
	if key, ok := l.keys[from]; ok {
		opts, err := l.transactor(ctx, key)
		if err != nil {
			return common.Address{}, nil, err
		}
		_, tx, _, err := bind.DeployContract(opts, *parsed, code, l.client, args...)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("failed to deploy %s: %w", contract, err)
		}
		hash = tx.Hash()
	} else {
		hash, err = l.sendUnsigned(ctx, from, nil, input)
		if err != nil {
			return common.Address{}, nil, fmt.Errorf("failed to deploy %s: %w", contract, err)
		}
	}
	log.Printf("[EVM] Deploying %s, tx: %s", contract, hash.Hex())

	receipt, err := l.confirm(ctx, from, nil, input, hash)
	if err != nil {
		return common.Address{}, nil, fmt.Errorf("deploy %s: %w", contract, err)
	}
	return receipt.Contract, receipt, nil
}

// Call 只读调用
func (l *Ledger) Call(ctx context.Context, from, to common.Address, contract, method string, args ...interface{}) ([]interface{}, error) {
	parsed, err := contracts.ABI(contract)
	if err != nil {
		return nil, err
	}
	bound := bind.NewBoundContract(to, *parsed, l.client, l.client, l.client)
	var out []interface{}
	if err := bound.Call(&bind.CallOpts{Context: ctx, From: from}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", contract, method, toRevert(err))
	}
	return out, nil
}

// Transact 发送交易并等待确认
func (l *Ledger) Transact(ctx context.Context, from, to common.Address, contract, method string, args ...interface{}) (*chain.Receipt, error) {
	parsed, err := contracts.ABI(contract)
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s.%s: %w", contract, method, err)
	}
	if err := l.preflight(ctx, from, &to, data); err != nil {
		return nil, fmt.Errorf("%s.%s: %w", contract, method, err)
	}

	var hash common.Hash
	if key, ok := l.keys[from]; ok {
		opts, err := l.transactor(ctx, key)
		if err != nil {
			return nil, err
		}
		// GasPrice/GasLimit 未指定时由 bind 自动建议与估算
		bound := bind.NewBoundContract(to, *parsed, l.client, l.client, l.client)
		tx, err := bound.Transact(opts, method, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to send %s.%s: %w", contract, method, err)
		}
		hash = tx.Hash()
	} else {
		hash, err = l.sendUnsigned(ctx, from, &to, data)
		if err != nil {
			return nil, fmt.Errorf("failed to send %s.%s: %w", contract, method, err)
		}
	}
	log.Printf("[EVM] %s.%s tx: %s", contract, method, hash.Hex())

	receipt, err := l.confirm(ctx, from, &to, data, hash)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", contract, method, err)
	}
	return receipt, nil
}

// StorageAt 读取存储槽
func (l *Ledger) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	raw, err := l.client.StorageAt(ctx, addr, slot, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to read storage %s@%s: %w", slot.Hex(), addr.Hex(), err)
	}
	return common.BytesToHash(raw), nil
}

// ChainID 链ID
func (l *Ledger) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.chainID), nil
}

// Now 最新区块时间戳
func (l *Ledger) Now(ctx context.Context) (uint64, error) {
	header, err := l.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest header: %w", err)
	}
	return header.Time, nil
}

// Snapshot 需要开发节点
func (l *Ledger) Snapshot(ctx context.Context) (string, error) {
	if l.dev == nil {
		return "", errors.New("snapshots require a dev RPC (hardhat or anvil)")
	}
	return l.dev.Snapshot(ctx)
}

// Revert 回滚到快照
func (l *Ledger) Revert(ctx context.Context, id string) error {
	if l.dev == nil {
		return errors.New("snapshots require a dev RPC (hardhat or anvil)")
	}
	return l.dev.Revert(ctx, id)
}

func (l *Ledger) transactor(ctx context.Context, key *ecdsa.PrivateKey) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(key, l.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	if l.gasLimit > 0 {
		opts.GasLimit = l.gasLimit
	}
	return opts, nil
}

// preflight 估算 gas，revert 时提前返回解码后的原因
func (l *Ledger) preflight(ctx context.Context, from common.Address, to *common.Address, data []byte) error {
	if l.gasLimit > 0 {
		return nil
	}
	_, err := l.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: to, Data: data})
	if err != nil {
		return toRevert(err)
	}
	return nil
}

func (l *Ledger) sendUnsigned(ctx context.Context, from common.Address, to *common.Address, data []byte) (common.Hash, error) {
	args := map[string]interface{}{
		"from": from,
		"data": hexutil.Bytes(data),
	}
	if to != nil {
		args["to"] = *to
	}
	if l.gasLimit > 0 {
		args["gas"] = hexutil.Uint64(l.gasLimit)
	}
	var hash common.Hash
	if err := l.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, toRevert(err)
	}
	return hash, nil
}

// confirm 等待回执；失败的交易在其区块上重放以取得 revert 原因
func (l *Ledger) confirm(ctx context.Context, from common.Address, to *common.Address, data []byte, hash common.Hash) (*chain.Receipt, error) {
	receipt, err := l.waitReceipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		msg := ethereum.CallMsg{From: from, To: to, Data: data}
		_, callErr := l.client.CallContract(ctx, msg, receipt.BlockNumber)
		if callErr != nil {
			return nil, fmt.Errorf("transaction %s failed: %w", hash.Hex(), toRevert(callErr))
		}
		return nil, fmt.Errorf("transaction %s failed: %w", hash.Hex(), &chain.RevertError{})
	}
	return convertReceipt(receipt), nil
}

func (l *Ledger) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		receipt, err := l.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func convertReceipt(r *types.Receipt) *chain.Receipt {
	out := &chain.Receipt{
		TxHash:   r.TxHash,
		Status:   r.Status,
		Contract: r.ContractAddress,
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	for _, lg := range r.Logs {
		if ev, ok := decodeLog(lg); ok {
			out.Events = append(out.Events, ev)
		}
	}
	return out
}

// decodeLog 按已知 ABI 解码日志，未知事件跳过
func decodeLog(lg *types.Log) (chain.Event, bool) {
	if lg == nil || len(lg.Topics) == 0 {
		return chain.Event{}, false
	}
	ev, ok := contracts.EventByID(lg.Topics[0])
	if !ok {
		return chain.Event{}, false
	}
	args := make(map[string]interface{})
	if err := ev.Inputs.NonIndexed().UnpackIntoMap(args, lg.Data); err != nil {
		return chain.Event{}, false
	}
	var indexed abi.Arguments
	for _, input := range ev.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
			return chain.Event{}, false
		}
	}
	return chain.Event{Address: lg.Address, Name: ev.Name, Args: args}, true
}

// toRevert 把节点返回的 revert 数据转成 *chain.RevertError
func toRevert(err error) error {
	var de rpc.DataError
	if errors.As(err, &de) {
		if s, ok := de.ErrorData().(string); ok {
			if data, decErr := hexutil.Decode(s); decErr == nil && len(data) > 0 {
				return chain.RevertFromData(data)
			}
		}
	}
	// 部分节点只在 message 中给出原因
	if msg := err.Error(); strings.Contains(msg, "execution reverted: ") {
		reason := msg[strings.Index(msg, "execution reverted: ")+len("execution reverted: "):]
		return chain.Revert(strings.TrimSpace(reason))
	}
	return err
}
