package memledger

import (
	"math/big"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// exchange ExchangeDataProvider：每个奖励代币一条 router[0] 上的兑换，按 1:1 报价
type exchange struct{}

func newExchange(e *env, args []interface{}) (contract, error) {
	return &exchange{}, nil
}

func (x *exchange) abiName() string { return contracts.ExchangeDataProvider }

func (x *exchange) clone() contract { return &exchange{} }

func (x *exchange) invoke(e *env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "swaps":
		harvests, err := contracts.DecodeHarvests(args[1])
		if err != nil {
			return nil, err
		}
		routers := args[2].([]common.Address)
		wrapped, output := args[3].(common.Address), args[4].(common.Address)
		if len(routers) == 0 {
			return nil, chain.Revert("no routers")
		}

		swaps := make([]contracts.Swap, 0, len(harvests))
		for _, h := range harvests {
			if h.Amount == nil || h.Amount.Sign() == 0 || h.Token == output {
				continue
			}
			path := []common.Address{h.Token}
			if wrapped != (common.Address{}) && h.Token != wrapped && output != wrapped {
				path = append(path, wrapped)
			}
			path = append(path, output)
			swaps = append(swaps, contracts.Swap{
				Router:    routers[0],
				Path:      path,
				AmountIn:  new(big.Int).Set(h.Amount),
				AmountOut: new(big.Int).Set(h.Amount),
			})
		}
		return []interface{}{swaps}, nil
	case "encode":
		swaps, err := contracts.DecodeSwaps(args[0])
		if err != nil {
			return nil, err
		}
		data, err := encodeSwapData(swaps)
		if err != nil {
			return nil, err
		}
		return []interface{}{data}, nil
	}
	return nil, chain.Revertf("ExchangeDataProvider: unsupported method %s", method)
}

func encodeSwapData(swaps []contracts.Swap) ([]byte, error) {
	method := contracts.MustABI(contracts.ExchangeDataProvider).Methods["encode"]
	return method.Inputs.Pack(swaps)
}

func decodeSwapData(data []byte) ([]contracts.Swap, error) {
	method := contracts.MustABI(contracts.ExchangeDataProvider).Methods["encode"]
	values, err := method.Inputs.Unpack(data)
	if err != nil {
		return nil, err
	}
	return contracts.DecodeSwaps(values[0])
}
