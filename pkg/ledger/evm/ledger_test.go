package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ethService struct{}

func (ethService) ChainId() *hexutil.Big { return (*hexutil.Big)(big.NewInt(31337)) }

func (ethService) Accounts() []common.Address {
	return []common.Address{common.HexToAddress("0xd0"), common.HexToAddress("0xd1")}
}

func (ethService) GetStorageAt(addr common.Address, slot common.Hash, block string) hexutil.Bytes {
	return common.LeftPadBytes(addr.Bytes(), 32)
}

type evmService struct {
	snapshots int
	nextTs    uint64
}

func (s *evmService) Snapshot() string {
	s.snapshots++
	return fmt.Sprintf("0x%x", s.snapshots)
}

func (s *evmService) Revert(id string) bool { return id == "0x1" }

func (s *evmService) SetNextBlockTimestamp(ts hexutil.Uint64) { s.nextTs = uint64(ts) }

type hardhatService struct {
	impersonated []common.Address
	balances     map[common.Address]*big.Int
	mined        uint64
	reset        *resetParams
}

func (h *hardhatService) ImpersonateAccount(account common.Address) {
	h.impersonated = append(h.impersonated, account)
}

func (h *hardhatService) SetBalance(account common.Address, wei *hexutil.Big) {
	h.balances[account] = wei.ToInt()
}

func (h *hardhatService) Mine(blocks hexutil.Uint64) { h.mined += uint64(blocks) }

func (h *hardhatService) Reset(params resetParams) bool {
	h.reset = &params
	return true
}

func newTestServer(t *testing.T) (*rpc.Client, *evmService, *hardhatService) {
	t.Helper()
	server := rpc.NewServer()
	evm := &evmService{}
	hh := &hardhatService{balances: make(map[common.Address]*big.Int)}
	require.NoError(t, server.RegisterName("eth", ethService{}))
	require.NoError(t, server.RegisterName("evm", evm))
	require.NoError(t, server.RegisterName("hardhat", hh))
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return client, evm, hh
}

// TestLedgerDevRPC 测试 hardhat 扩展方法与快照代理
func TestLedgerDevRPC(t *testing.T) {
	ctx := context.Background()
	rc, evm, hh := newTestServer(t)

	l, err := NewWithClient(ctx, rc, WithDevRPC(FlavourHardhat))
	require.NoError(t, err)

	id, err := l.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(31337), id.Int64())

	accounts, err := l.Accounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	owner := common.HexToAddress("0xabc")
	word, err := l.StorageAt(ctx, owner, common.Hash{})
	require.NoError(t, err)
	assert.Equal(t, owner, common.BytesToAddress(word.Bytes()))

	t.Run("snapshot", func(t *testing.T) {
		snap, err := l.Snapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, "0x1", snap)
		require.NoError(t, l.Revert(ctx, snap))
		assert.Error(t, l.Revert(ctx, "0x9"))
		assert.Equal(t, 1, evm.snapshots)
	})

	t.Run("dev helpers", func(t *testing.T) {
		dev := l.Dev()
		whale := common.HexToAddress("0x0bad")
		require.NoError(t, dev.Impersonate(ctx, whale))
		require.NoError(t, dev.SetBalance(ctx, whale, big.NewInt(1e18)))
		require.NoError(t, dev.Mine(ctx, 0))
		require.NoError(t, dev.Mine(ctx, 2))
		require.NoError(t, dev.SetNextBlockTimestamp(ctx, 1700000100))
		require.NoError(t, dev.Reset(ctx, "https://archive.example", 14655838))

		assert.Equal(t, []common.Address{whale}, hh.impersonated)
		assert.Equal(t, int64(1e18), hh.balances[whale].Int64())
		assert.Equal(t, uint64(3), hh.mined)
		assert.Equal(t, uint64(1700000100), evm.nextTs)
		require.NotNil(t, hh.reset)
		require.NotNil(t, hh.reset.Forking)
		assert.Equal(t, "https://archive.example", hh.reset.Forking.JSONRPCURL)
		assert.Equal(t, uint64(14655838), hh.reset.Forking.BlockNumber)
	})
}

// TestLedgerWithoutDev 测试未启用开发节点时的行为
func TestLedgerWithoutDev(t *testing.T) {
	ctx := context.Background()
	rc, _, _ := newTestServer(t)
	l, err := NewWithClient(ctx, rc)
	require.NoError(t, err)
	assert.Nil(t, l.Dev())

	_, err = l.Snapshot(ctx)
	assert.Error(t, err)

	_, _, err = l.Deploy(ctx, common.HexToAddress("0xd0"), contracts.AuthRegistry)
	assert.Error(t, err, "没有 artifact 源时无法部署")

	_, err = NewDev(rc, "ganache")
	assert.Error(t, err)
}

type dataError struct{ data string }

func (e dataError) Error() string          { return "execution reverted" }
func (e dataError) ErrorData() interface{} { return e.data }

// TestToRevert 测试节点错误中 revert 原因的解码
func TestToRevert(t *testing.T) {
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack("AC1")
	require.NoError(t, err)
	payload := append(common.FromHex("0x08c379a0"), packed...)

	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"error data", fmt.Errorf("wrapped: %w", dataError{data: hexutil.Encode(payload)}), "AC1"},
		{"message only", errors.New("execution reverted: GS013"), "GS013"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []string{tt.reason}, chain.RevertReasons(toRevert(tt.err)))
		})
	}

	plain := errors.New("connection refused")
	assert.Equal(t, plain, toRevert(plain))
}

// TestDecodeLog 测试按 topic0 解码已知事件
func TestDecodeLog(t *testing.T) {
	erc20 := contracts.MustABI(contracts.ERC20)
	transfer := erc20.Events["Transfer"]
	from := common.HexToAddress("0xa1")
	to := common.HexToAddress("0xb2")
	data, err := transfer.Inputs.NonIndexed().Pack(big.NewInt(42))
	require.NoError(t, err)

	token := common.HexToAddress("0x70")
	ev, ok := decodeLog(&types.Log{
		Address: token,
		Topics:  []common.Hash{transfer.ID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
		Data:    data,
	})
	require.True(t, ok)
	assert.Equal(t, "Transfer", ev.Name)
	assert.Equal(t, token, ev.Address)
	got, _ := ev.AddressArg("from")
	assert.Equal(t, from, got)
	got, _ = ev.AddressArg("to")
	assert.Equal(t, to, got)
	value, _ := ev.BigIntArg("value")
	assert.Equal(t, int64(42), value.Int64())

	_, ok = decodeLog(&types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}})
	assert.False(t, ok)

	receipt := convertReceipt(&types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(7),
		Logs:        []*types.Log{{Address: token, Topics: []common.Hash{transfer.ID, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())}, Data: data}},
	})
	assert.Equal(t, uint64(7), receipt.BlockNumber)
	_, ok = receipt.FindEventFrom(token, "Transfer")
	assert.True(t, ok)
}
