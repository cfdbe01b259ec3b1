package memledger

import (
	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
)

type roleKey struct {
	account common.Address
	role    uint8
}

// owned 两个注册表共用的单一 owner 规则
type owned struct {
	owner common.Address
}

func (o *owned) onlyOwner(e *env) error {
	if e.sender != o.owner {
		return chain.Revert(chain.ReasonAccessControl)
	}
	return nil
}

func (o *owned) setSafe(e *env, args []interface{}) error {
	if err := o.onlyOwner(e); err != nil {
		return err
	}
	newSafe := args[0].(common.Address)
	if newSafe == (common.Address{}) {
		return chain.Revert("invalid safe")
	}
	o.owner = newSafe
	e.emit("SafeUpdated", map[string]interface{}{"newSafe": newSafe})
	return nil
}

// storageAt slot 0 保存 owner
func (o *owned) storageAt(slot common.Hash) common.Hash {
	if slot == (common.Hash{}) {
		return common.BytesToHash(o.owner[:])
	}
	return common.Hash{}
}

type authRegistry struct {
	owned
	roles map[roleKey]bool
}

func newAuthRegistry(e *env, args []interface{}) (contract, error) {
	owner, err := argAddress(args, 0)
	if err != nil {
		return nil, err
	}
	return &authRegistry{owned: owned{owner: owner}, roles: make(map[roleKey]bool)}, nil
}

func (r *authRegistry) abiName() string { return contracts.AuthRegistry }

func (r *authRegistry) clone() contract {
	c := &authRegistry{owned: r.owned, roles: make(map[roleKey]bool, len(r.roles))}
	for k, v := range r.roles {
		c.roles[k] = v
	}
	return c
}

func (r *authRegistry) invoke(e *env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "safe":
		return []interface{}{r.owner}, nil
	case "setSafe":
		return nil, r.setSafe(e, args)
	case "hasRole":
		return []interface{}{r.roles[roleKey{args[0].(common.Address), args[1].(uint8)}]}, nil
	case "setRole":
		if err := r.onlyOwner(e); err != nil {
			return nil, err
		}
		account, role, enabled := args[0].(common.Address), args[1].(uint8), args[2].(bool)
		key := roleKey{account, role}
		if enabled {
			r.roles[key] = true
		} else {
			delete(r.roles, key)
		}
		e.emit("RoleUpdated", map[string]interface{}{"account": account, "role": role, "enabled": enabled})
		return nil, nil
	}
	return nil, chain.Revertf("AuthRegistry: unsupported method %s", method)
}

type extRegistry struct {
	owned
	allowed map[common.Address]bool
}

func newExtRegistry(e *env, args []interface{}) (contract, error) {
	owner, err := argAddress(args, 0)
	if err != nil {
		return nil, err
	}
	return &extRegistry{owned: owned{owner: owner}, allowed: make(map[common.Address]bool)}, nil
}

func (r *extRegistry) abiName() string { return contracts.ExtRegistry }

func (r *extRegistry) clone() contract {
	c := &extRegistry{owned: r.owned, allowed: make(map[common.Address]bool, len(r.allowed))}
	for k, v := range r.allowed {
		c.allowed[k] = v
	}
	return c
}

func (r *extRegistry) invoke(e *env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "safe":
		return []interface{}{r.owner}, nil
	case "setSafe":
		return nil, r.setSafe(e, args)
	case "isExternalAddressAllowed":
		return []interface{}{r.allowed[args[0].(common.Address)]}, nil
	case "setExternalAddress":
		if err := r.onlyOwner(e); err != nil {
			return nil, err
		}
		addr, enabled := args[0].(common.Address), args[1].(bool)
		if enabled {
			r.allowed[addr] = true
		} else {
			delete(r.allowed, addr)
		}
		e.emit("ExternalAddressUpdated", map[string]interface{}{"externalAddress": addr, "enabled": enabled})
		return nil, nil
	}
	return nil, chain.Revertf("ExtRegistry: unsupported method %s", method)
}
