// Package memledger 确定性的内存合约账本
//
// 以 Go 实现 AuthRegistry、ExtRegistry、ERC20、Gnosis Safe（含模块链表与签名校验）、
// Safe 代理工厂、可配置的策略/跨链模块以及兑换报价合约。调用数据一律经过 pkg/contracts
// 中的 ABI 编解码，因此与 evm 后端对调用方表现一致。
//
// 时间不随交易自动前进，需通过 AdvanceTime / SetTime 推进。
package memledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultChainID hardhat 本地链ID
const DefaultChainID = 31337

// contract 内存合约
type contract interface {
	// abiName 在 pkg/contracts 中的 ABI 名称
	abiName() string
	// invoke 执行已解码的方法调用
	invoke(e *env, method string, args []interface{}) ([]interface{}, error)
	clone() contract
}

// storageReader 可选：暴露原始存储槽
type storageReader interface {
	storageAt(slot common.Hash) common.Hash
}

// Factory 根据构造参数创建合约实例
type Factory func(e *env, args []interface{}) (contract, error)

type state struct {
	contracts map[common.Address]contract
	names     map[common.Address]string
	nonces    map[common.Address]uint64
	block     uint64
	now       uint64
}

func (s *state) clone() *state {
	c := &state{
		contracts: make(map[common.Address]contract, len(s.contracts)),
		names:     make(map[common.Address]string, len(s.names)),
		nonces:    make(map[common.Address]uint64, len(s.nonces)),
		block:     s.block,
		now:       s.now,
	}
	for addr, ct := range s.contracts {
		c.contracts[addr] = ct.clone()
	}
	for addr, n := range s.names {
		c.names[addr] = n
	}
	for addr, n := range s.nonces {
		c.nonces[addr] = n
	}
	return c
}

// Ledger 内存账本，实现 chain.Ledger 与 chain.Snapshotter
type Ledger struct {
	mu        sync.Mutex
	chainID   *big.Int
	st        *state
	factories map[string]Factory
	snapshots map[string]*state
	snapSeq   int
}

var (
	_ chain.Ledger      = (*Ledger)(nil)
	_ chain.Snapshotter = (*Ledger)(nil)
)

// Option 账本选项
type Option func(*Ledger)

// WithChainID 设置链ID
func WithChainID(id uint64) Option {
	return func(l *Ledger) { l.chainID = new(big.Int).SetUint64(id) }
}

// WithTime 设置初始区块时间
func WithTime(ts uint64) Option {
	return func(l *Ledger) { l.st.now = ts }
}

// New 创建内存账本，内置 AuthRegistry / ExtRegistry / ERC20 / GnosisSafe /
// GnosisSafeProxyFactory / ExchangeDataProvider 工厂
func New(opts ...Option) *Ledger {
	l := &Ledger{
		chainID: big.NewInt(DefaultChainID),
		st: &state{
			contracts: make(map[common.Address]contract),
			names:     make(map[common.Address]string),
			nonces:    make(map[common.Address]uint64),
			block:     1,
			now:       1700000000,
		},
		factories: make(map[string]Factory),
		snapshots: make(map[string]*state),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.factories[contracts.AuthRegistry] = newAuthRegistry
	l.factories[contracts.ExtRegistry] = newExtRegistry
	l.factories[contracts.ERC20] = newToken
	l.factories[contracts.GnosisSafe] = newSafe
	l.factories[contracts.GnosisSafeProxyFactory] = newProxyFactory
	l.factories[contracts.ExchangeDataProvider] = newExchange
	return l
}

// RegisterFactory 注册自定义合约工厂
func (l *Ledger) RegisterFactory(name string, f Factory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.factories[name] = f
}

// Deploy 部署合约
func (l *Ledger) Deploy(ctx context.Context, from common.Address, name string, args ...interface{}) (common.Address, *chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return common.Address{}, nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	factory, ok := l.factories[name]
	if !ok {
		return common.Address{}, nil, fmt.Errorf("no factory registered for contract %q", name)
	}

	saved := l.st.clone()
	receipt := l.newReceipt(from, []byte(name))
	e := &env{l: l, sender: from, receipt: receipt}

	addr := l.nextAddress(from)
	e.self = addr
	ct, err := factory(e, args)
	if err != nil {
		l.st = saved
		return common.Address{}, nil, err
	}
	l.st.contracts[addr] = ct
	l.st.names[addr] = name
	receipt.Contract = addr
	l.st.block++
	return addr, receipt, nil
}

// Call 只读调用（非 view 方法在临时状态上执行后丢弃）
func (l *Ledger) Call(ctx context.Context, from, to common.Address, name, method string, args ...interface{}) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := contracts.Pack(name, method, args...)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	saved := l.st.clone()
	defer func() { l.st = saved }()

	e := &env{l: l, sender: from, self: to, receipt: &chain.Receipt{}}
	return l.dispatch(e, to, data)
}

// Transact 发送交易；revert 时整笔交易状态回滚
func (l *Ledger) Transact(ctx context.Context, from, to common.Address, name, method string, args ...interface{}) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := contracts.Pack(name, method, args...)
	if err != nil {
		return nil, err
	}
	return l.TransactRaw(ctx, from, to, data)
}

// TransactRaw 发送原始 calldata
func (l *Ledger) TransactRaw(ctx context.Context, from, to common.Address, data []byte) (*chain.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	saved := l.st.clone()
	receipt := l.newReceipt(from, data)
	l.st.nonces[from]++

	e := &env{l: l, sender: from, self: to, receipt: receipt}
	if _, err := l.dispatch(e, to, data); err != nil {
		l.st = saved
		return nil, err
	}
	l.st.block++
	return receipt, nil
}

// StorageAt 读取存储槽（仅注册表暴露 slot 0 = owner）
func (l *Ledger) StorageAt(ctx context.Context, addr common.Address, slot common.Hash) (common.Hash, error) {
	if err := ctx.Err(); err != nil {
		return common.Hash{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if sr, ok := l.st.contracts[addr].(storageReader); ok {
		return sr.storageAt(slot), nil
	}
	return common.Hash{}, nil
}

// ChainID 链ID
func (l *Ledger) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(l.chainID), nil
}

// Now 当前区块时间
func (l *Ledger) Now(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.now, nil
}

// AdvanceTime 推进区块时间
func (l *Ledger) AdvanceTime(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.now += uint64(d / time.Second)
}

// SetTime 设置区块时间（不允许倒退）
func (l *Ledger) SetTime(ts uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ts < l.st.now {
		return fmt.Errorf("timestamp %d is before current block time %d", ts, l.st.now)
	}
	l.st.now = ts
	return nil
}

// Snapshot 保存当前状态
func (l *Ledger) Snapshot(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapSeq++
	id := "0x" + strconv.FormatInt(int64(l.snapSeq), 16)
	l.snapshots[id] = l.st.clone()
	return id, nil
}

// Revert 回滚到快照；与 evm_revert 一致，快照使用一次后失效
func (l *Ledger) Revert(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap, ok := l.snapshots[id]
	if !ok {
		return fmt.Errorf("unknown snapshot %s", id)
	}
	l.st = snap
	delete(l.snapshots, id)
	return nil
}

// ContractName 返回地址上部署的合约名
func (l *Ledger) ContractName(addr common.Address) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name, ok := l.st.names[addr]
	return name, ok
}

// Mint 给账户铸造代币（测试中代替"从巨鲸转账"）
func (l *Ledger) Mint(token, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tk, ok := l.st.contracts[token].(*erc20)
	if !ok {
		return fmt.Errorf("%s is not an ERC20 token", token.Hex())
	}
	return tk.mint(to, amount)
}

func (l *Ledger) newReceipt(from common.Address, salt []byte) *chain.Receipt {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], l.st.block)
	binary.BigEndian.PutUint64(buf[8:], l.st.nonces[from])
	return &chain.Receipt{
		TxHash:      crypto.Keccak256Hash(from[:], buf[:], salt),
		BlockNumber: l.st.block,
		Status:      1,
	}
}

func (l *Ledger) nextAddress(from common.Address) common.Address {
	n := l.st.nonces[from]
	l.st.nonces[from] = n + 1
	return crypto.CreateAddress(from, n)
}

// dispatch 按目标合约自身的 ABI 解码 calldata 并执行，返回值经 ABI 归一化
func (l *Ledger) dispatch(e *env, to common.Address, data []byte) ([]interface{}, error) {
	ct, ok := l.st.contracts[to]
	if !ok {
		return nil, chain.Revertf("call to non-contract %s", to.Hex())
	}
	method, args, err := contracts.DecodeCall(ct.abiName(), data)
	if err != nil {
		return nil, chain.Revertf("%v", err)
	}
	out, err := ct.invoke(e, method.Name, args)
	if err != nil {
		return nil, err
	}
	return normalizeOutputs(method, out)
}

func normalizeOutputs(method *abi.Method, out []interface{}) ([]interface{}, error) {
	if len(method.Outputs) == 0 {
		return nil, nil
	}
	packed, err := method.Outputs.Pack(out...)
	if err != nil {
		return nil, fmt.Errorf("memledger: bad return values for %s: %w", method.Name, err)
	}
	return method.Outputs.Unpack(packed)
}

// env 单次调用的执行环境
type env struct {
	l       *Ledger
	sender  common.Address
	self    common.Address
	receipt *chain.Receipt
}

func (e *env) now() uint64 {
	return e.l.st.now
}

func (e *env) emit(name string, args map[string]interface{}) {
	e.receipt.Events = append(e.receipt.Events, chain.Event{Address: e.self, Name: name, Args: args})
}

// callRaw 以 self 身份调用其他合约（msg.sender = self）
func (e *env) callRaw(to common.Address, data []byte) ([]interface{}, error) {
	inner := &env{l: e.l, sender: e.self, self: to, receipt: e.receipt}
	return e.l.dispatch(inner, to, data)
}

func (e *env) token(addr common.Address) (*erc20, error) {
	tk, ok := e.l.st.contracts[addr].(*erc20)
	if !ok {
		return nil, chain.Revertf("%s is not a token", addr.Hex())
	}
	return tk, nil
}

func (e *env) hasRole(auth, account common.Address, role uint8) bool {
	reg, ok := e.l.st.contracts[auth].(*authRegistry)
	if !ok {
		return false
	}
	return reg.roles[roleKey{account, role}]
}

func (e *env) moduleEnabled(safeAddr, module common.Address) bool {
	s, ok := e.l.st.contracts[safeAddr].(*gnosisSafe)
	if !ok {
		return false
	}
	return s.isModuleEnabled(module)
}

// transferToken 在 token 上记账 from -> to 并发出 Transfer 事件
func (e *env) transferToken(token, from, to common.Address, amount *big.Int) error {
	tk, err := e.token(token)
	if err != nil {
		return err
	}
	if err := tk.move(from, to, amount); err != nil {
		return err
	}
	e.receipt.Events = append(e.receipt.Events, chain.Event{
		Address: token,
		Name:    "Transfer",
		Args:    map[string]interface{}{"from": from, "to": to, "value": new(big.Int).Set(amount)},
	})
	return nil
}

func argAddress(args []interface{}, i int) (common.Address, error) {
	if i >= len(args) {
		return common.Address{}, chain.Revertf("missing constructor argument #%d", i)
	}
	switch v := args[i].(type) {
	case common.Address:
		return v, nil
	case string:
		if common.IsHexAddress(v) {
			return common.HexToAddress(v), nil
		}
	}
	return common.Address{}, chain.Revertf("constructor argument #%d is not an address: %v", i, args[i])
}
