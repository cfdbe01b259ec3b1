package memledger

import (
	"math/big"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// BridgeConfig 内存跨链模块参数
type BridgeConfig struct {
	Name    string
	Version string
	// Token 被跨链的代币；bridge data 的第一个 uint256 是数量
	Token common.Address
}

type receiverKey struct {
	safe     common.Address
	chainID  uint64
	receiver common.Address
}

type bridge struct {
	cfg       BridgeConfig
	ext, auth common.Address
	args      []interface{}
	contracts map[uint64]common.Address
	receivers map[receiverKey]bool
}

// RegisterBridge 注册一个跨链模块合约名（构造参数 ext, auth, ...args）
//
// cfg.Token 为空时取第一个额外构造参数（如 BridgeBouncerHop(token)）。
func (l *Ledger) RegisterBridge(name string, cfg BridgeConfig) {
	contracts.RegisterAlias(name, contracts.AbstractBridge)
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.Version == "" {
		cfg.Version = "1.0"
	}
	l.RegisterFactory(name, func(e *env, args []interface{}) (contract, error) {
		ext, err := argAddress(args, 0)
		if err != nil {
			return nil, err
		}
		auth, err := argAddress(args, 1)
		if err != nil {
			return nil, err
		}
		c := cfg
		if c.Token == (common.Address{}) && len(args) > 2 {
			if c.Token, err = argAddress(args, 2); err != nil {
				return nil, err
			}
		}
		return &bridge{
			cfg:       c,
			ext:       ext,
			auth:      auth,
			args:      append([]interface{}(nil), args[2:]...),
			contracts: make(map[uint64]common.Address),
			receivers: make(map[receiverKey]bool),
		}, nil
	})
}

func (b *bridge) abiName() string { return contracts.AbstractBridge }

func (b *bridge) clone() contract {
	c := &bridge{
		cfg: b.cfg, ext: b.ext, auth: b.auth, args: b.args,
		contracts: make(map[uint64]common.Address, len(b.contracts)),
		receivers: make(map[receiverKey]bool, len(b.receivers)),
	}
	for k, v := range b.contracts {
		c.contracts[k] = v
	}
	for k, v := range b.receivers {
		c.receivers[k] = v
	}
	return c
}

func chainKey(id *big.Int) (uint64, error) {
	if !id.IsUint64() {
		return 0, chain.Revertf("invalid chain id %s", id)
	}
	return id.Uint64(), nil
}

func (b *bridge) invoke(e *env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "NAME":
		return []interface{}{b.cfg.Name}, nil
	case "VERSION":
		return []interface{}{b.cfg.Version}, nil
	case "bridgeContracts":
		id, err := chainKey(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{b.contracts[id]}, nil
	case "isReceiverAllowed":
		id, err := chainKey(args[1].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{b.receivers[receiverKey{args[0].(common.Address), id, args[2].(common.Address)}]}, nil
	case "allowBridgeContract":
		if !e.hasRole(b.auth, e.sender, roleBridgeAdmin) {
			return nil, chain.Revert(chain.ReasonAccessControl)
		}
		id, err := chainKey(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		b.contracts[id] = args[1].(common.Address)
		return nil, nil
	case "allowReceiverAddress":
		if !e.hasRole(b.auth, e.sender, roleBridgeAdmin) {
			return nil, chain.Revert(chain.ReasonAccessControl)
		}
		id, err := chainKey(args[1].(*big.Int))
		if err != nil {
			return nil, err
		}
		key := receiverKey{args[0].(common.Address), id, args[2].(common.Address)}
		if args[3].(bool) {
			b.receivers[key] = true
		} else {
			delete(b.receivers, key)
		}
		return nil, nil
	case "bridge":
		return nil, b.bridge(e, args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int), args[4].([]byte))
	}
	return nil, chain.Revertf("%s: unsupported method %s", b.cfg.Name, method)
}

func (b *bridge) bridge(e *env, safe, receiver common.Address, chainID *big.Int, data []byte) error {
	if !e.hasRole(b.auth, e.sender, roleBridgeOperator) {
		return chain.Revert(chain.ReasonAccessControl)
	}
	if !e.moduleEnabled(safe, e.self) {
		return chain.Revert(chain.ReasonSafeNotModule)
	}
	id, err := chainKey(chainID)
	if err != nil {
		return err
	}
	if b.contracts[id] == (common.Address{}) || !b.receivers[receiverKey{safe, id, receiver}] {
		return chain.Revert(chain.ReasonRouteNotAllowed)
	}
	if len(data) < 32 {
		return chain.Revert("invalid bridge data")
	}
	amount := new(big.Int).SetBytes(data[:32])
	if amount.Sign() > 0 {
		if err := e.transferToken(b.cfg.Token, safe, b.contracts[id], amount); err != nil {
			return err
		}
	}
	e.emit("Bridged", map[string]interface{}{"safe": safe, "receiver": receiver, "chainId": new(big.Int).Set(chainID), "amount": amount})
	return nil
}
