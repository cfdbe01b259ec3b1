package memledger

import (
	"math/big"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type erc20 struct {
	symbol     string
	decimals   uint8
	balances   map[common.Address]*uint256.Int
	allowances map[[2]common.Address]*uint256.Int
}

// newToken 构造参数 (symbol string, decimals uint8)，缺省为 ("TKN", 18)
func newToken(e *env, args []interface{}) (contract, error) {
	tk := &erc20{
		symbol:     "TKN",
		decimals:   18,
		balances:   make(map[common.Address]*uint256.Int),
		allowances: make(map[[2]common.Address]*uint256.Int),
	}
	if len(args) > 0 {
		s, ok := args[0].(string)
		if !ok {
			return nil, chain.Revertf("token symbol must be a string, got %T", args[0])
		}
		tk.symbol = s
	}
	if len(args) > 1 {
		switch d := args[1].(type) {
		case uint8:
			tk.decimals = d
		case int:
			tk.decimals = uint8(d)
		default:
			return nil, chain.Revertf("token decimals must be uint8, got %T", args[1])
		}
	}
	return tk, nil
}

func (t *erc20) abiName() string { return contracts.ERC20 }

func (t *erc20) clone() contract {
	c := &erc20{
		symbol:     t.symbol,
		decimals:   t.decimals,
		balances:   make(map[common.Address]*uint256.Int, len(t.balances)),
		allowances: make(map[[2]common.Address]*uint256.Int, len(t.allowances)),
	}
	for k, v := range t.balances {
		c.balances[k] = v.Clone()
	}
	for k, v := range t.allowances {
		c.allowances[k] = v.Clone()
	}
	return c
}

func (t *erc20) balanceOf(account common.Address) *uint256.Int {
	if b, ok := t.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (t *erc20) mint(to common.Address, amount *big.Int) error {
	v, overflow := uint256.FromBig(amount)
	if overflow || amount.Sign() < 0 {
		return chain.Revertf("mint amount out of range: %s", amount)
	}
	sum, carry := new(uint256.Int).AddOverflow(t.balanceOf(to), v)
	if carry {
		return chain.Revert("ERC20: balance overflow")
	}
	t.balances[to] = sum
	return nil
}

func (t *erc20) move(from, to common.Address, amount *big.Int) error {
	v, overflow := uint256.FromBig(amount)
	if overflow || amount.Sign() < 0 {
		return chain.Revertf("transfer amount out of range: %s", amount)
	}
	rest, borrow := new(uint256.Int).SubOverflow(t.balanceOf(from), v)
	if borrow {
		return chain.Revert("ERC20: transfer amount exceeds balance")
	}
	t.balances[from] = rest
	t.balances[to] = new(uint256.Int).Add(t.balanceOf(to), v)
	return nil
}

func (t *erc20) invoke(e *env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "symbol":
		return []interface{}{t.symbol}, nil
	case "decimals":
		return []interface{}{t.decimals}, nil
	case "balanceOf":
		return []interface{}{t.balanceOf(args[0].(common.Address)).ToBig()}, nil
	case "transfer":
		if err := e.transferToken(e.self, e.sender, args[0].(common.Address), args[1].(*big.Int)); err != nil {
			return nil, err
		}
		return []interface{}{true}, nil
	case "approve":
		v, overflow := uint256.FromBig(args[1].(*big.Int))
		if overflow {
			return nil, chain.Revert("approve amount out of range")
		}
		t.allowances[[2]common.Address{e.sender, args[0].(common.Address)}] = v
		return []interface{}{true}, nil
	}
	return nil, chain.Revertf("ERC20: unsupported method %s", method)
}
