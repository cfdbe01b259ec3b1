// Package quote 收益兑换报价：为 harvest 计算 extraData
package quote

import (
	"context"
	"fmt"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// Request 报价请求
type Request struct {
	// Recipient 兑换收款方（safe）
	Recipient common.Address
	// Harvests 已过滤掉 0 数量的奖励
	Harvests    []contracts.Harvest
	OutputToken common.Address
}

// Quoter 报价数据源
type Quoter interface {
	Quote(ctx context.Context, req Request) ([]byte, error)
}

// DataProvider 调用链上 ExchangeDataProvider：swaps 求最优路径后 encode
type DataProvider struct {
	Ledger       chain.Ledger
	Address      common.Address
	Routers      []common.Address
	WrappedToken common.Address
}

var _ Quoter = (*DataProvider)(nil)

// Quote 返回编码后的兑换列表
func (p *DataProvider) Quote(ctx context.Context, req Request) ([]byte, error) {
	if len(req.Harvests) == 0 {
		return []byte{}, nil
	}
	out, err := p.Ledger.Call(ctx, common.Address{}, p.Address, contracts.ExchangeDataProvider, "swaps",
		req.Recipient, req.Harvests, p.Routers, p.WrappedToken, req.OutputToken)
	if err != nil {
		return nil, fmt.Errorf("swaps quote failed: %w", err)
	}
	swaps, err := contracts.DecodeSwaps(out[0])
	if err != nil {
		return nil, err
	}

	out, err = p.Ledger.Call(ctx, common.Address{}, p.Address, contracts.ExchangeDataProvider, "encode", swaps)
	if err != nil {
		return nil, fmt.Errorf("swaps encode failed: %w", err)
	}
	data, ok := out[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected encode result %T", out[0])
	}
	return data, nil
}

// Static 固定 extraData（离线计算好的 payload 或空）
type Static []byte

var _ Quoter = Static(nil)

// Quote 返回固定数据
func (s Static) Quote(ctx context.Context, req Request) ([]byte, error) {
	if s == nil {
		return []byte{}, nil
	}
	return append([]byte(nil), s...), nil
}
