package memledger

import (
	"bytes"
	"math/big"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// gnosisSafe Safe v1.3 语义；getModulesPaginated 采用 v1.4.1 的 next 规则
type gnosisSafe struct {
	owners    []common.Address
	threshold uint64
	nonce     uint64
	modules   map[common.Address]common.Address
	approved  map[common.Address]map[common.Hash]bool
	setupDone bool
}

func newSafe(e *env, args []interface{}) (contract, error) {
	return &gnosisSafe{
		modules:  make(map[common.Address]common.Address),
		approved: make(map[common.Address]map[common.Hash]bool),
	}, nil
}

func (s *gnosisSafe) abiName() string { return contracts.GnosisSafe }

func (s *gnosisSafe) clone() contract {
	c := &gnosisSafe{
		owners:    append([]common.Address(nil), s.owners...),
		threshold: s.threshold,
		nonce:     s.nonce,
		modules:   make(map[common.Address]common.Address, len(s.modules)),
		approved:  make(map[common.Address]map[common.Hash]bool, len(s.approved)),
		setupDone: s.setupDone,
	}
	for k, v := range s.modules {
		c.modules[k] = v
	}
	for owner, hashes := range s.approved {
		m := make(map[common.Hash]bool, len(hashes))
		for h, ok := range hashes {
			m[h] = ok
		}
		c.approved[owner] = m
	}
	return c
}

func (s *gnosisSafe) isOwner(addr common.Address) bool {
	for _, o := range s.owners {
		if o == addr {
			return true
		}
	}
	return false
}

func (s *gnosisSafe) isModuleEnabled(module common.Address) bool {
	return module != chain.SentinelModules && module != (common.Address{}) && s.modules[module] != (common.Address{})
}

func (s *gnosisSafe) authorized(e *env) error {
	if e.sender != e.self {
		return chain.Revert(chain.ReasonSafeOnlySelf)
	}
	return nil
}

func (s *gnosisSafe) invoke(e *env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "setup":
		return nil, s.setup(args[0].([]common.Address), args[1].(*big.Int))
	case "nonce":
		return []interface{}{new(big.Int).SetUint64(s.nonce)}, nil
	case "getOwners":
		return []interface{}{append([]common.Address(nil), s.owners...)}, nil
	case "getThreshold":
		return []interface{}{new(big.Int).SetUint64(s.threshold)}, nil
	case "getTransactionHash":
		tx := safeTxFromArgs(args)
		tx.Nonce = args[9].(*big.Int)
		return []interface{}{tx.Hash(e.l.chainID, e.self)}, nil
	case "approveHash":
		if !s.isOwner(e.sender) {
			return nil, chain.Revert("GS030")
		}
		hash := common.Hash(args[0].([32]byte))
		if s.approved[e.sender] == nil {
			s.approved[e.sender] = make(map[common.Hash]bool)
		}
		s.approved[e.sender][hash] = true
		e.emit("ApproveHash", map[string]interface{}{"approvedHash": hash, "owner": e.sender})
		return nil, nil
	case "execTransaction":
		ok, err := s.execTransaction(e, args)
		if err != nil {
			return nil, err
		}
		return []interface{}{ok}, nil
	case "enableModule":
		return nil, s.enableModule(e, args[0].(common.Address))
	case "disableModule":
		return nil, s.disableModule(e, args[0].(common.Address), args[1].(common.Address))
	case "isModuleEnabled":
		return []interface{}{s.isModuleEnabled(args[0].(common.Address))}, nil
	case "getModulesPaginated":
		array, next, err := s.modulesPaginated(args[0].(common.Address), args[1].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{array, next}, nil
	}
	return nil, chain.Revertf("GnosisSafe: unsupported method %s", method)
}

func (s *gnosisSafe) setup(owners []common.Address, threshold *big.Int) error {
	if s.setupDone {
		return chain.Revert("GS200")
	}
	if threshold.Sign() <= 0 {
		return chain.Revert("GS202")
	}
	if threshold.Cmp(big.NewInt(int64(len(owners)))) > 0 {
		return chain.Revert("GS201")
	}
	seen := make(map[common.Address]bool, len(owners))
	for _, o := range owners {
		if o == (common.Address{}) || o == chain.SentinelModules || seen[o] {
			return chain.Revert("GS203")
		}
		seen[o] = true
	}
	s.owners = append([]common.Address(nil), owners...)
	s.threshold = threshold.Uint64()
	s.modules[chain.SentinelModules] = chain.SentinelModules
	s.setupDone = true
	return nil
}

func safeTxFromArgs(args []interface{}) contracts.SafeTx {
	return contracts.SafeTx{
		To:             args[0].(common.Address),
		Value:          args[1].(*big.Int),
		Data:           args[2].([]byte),
		Operation:      args[3].(uint8),
		SafeTxGas:      args[4].(*big.Int),
		BaseGas:        args[5].(*big.Int),
		GasPrice:       args[6].(*big.Int),
		GasToken:       args[7].(common.Address),
		RefundReceiver: args[8].(common.Address),
	}
}

func (s *gnosisSafe) execTransaction(e *env, args []interface{}) (bool, error) {
	tx := safeTxFromArgs(args)
	tx.Nonce = new(big.Int).SetUint64(s.nonce)
	signatures := args[9].([]byte)

	hash := tx.Hash(e.l.chainID, e.self)
	s.nonce++

	if err := s.checkSignatures(e, hash, signatures); err != nil {
		return false, err
	}
	if tx.Operation != contracts.OperationCall {
		return false, chain.Revert("delegatecall not supported")
	}

	if _, err := e.callRaw(tx.To, tx.Data); err != nil {
		// safeTxGas == 0 && gasPrice == 0 时内部失败导致整笔 revert
		cause, _ := err.(*chain.RevertError)
		if cause == nil {
			cause = chain.Revertf("%v", err)
		}
		return false, &chain.RevertError{Reason: chain.ReasonSafeTxFailed, Cause: cause}
	}

	e.emit("ExecutionSuccess", map[string]interface{}{"txHash": hash, "payment": new(big.Int)})
	return true, nil
}

// checkSignatures 按 owner 升序校验 threshold 个签名
func (s *gnosisSafe) checkSignatures(e *env, hash common.Hash, signatures []byte) error {
	if s.threshold == 0 {
		return chain.Revert("GS001")
	}
	if uint64(len(signatures)) < s.threshold*65 {
		return chain.Revert(chain.ReasonSafeSigsTooFew)
	}

	var last common.Address
	for i := uint64(0); i < s.threshold; i++ {
		sig := signatures[i*65 : (i+1)*65]
		r, v := sig[:32], sig[64]

		var owner common.Address
		switch {
		case v == 0:
			return chain.Revert("GS021")
		case v == 1:
			owner = common.BytesToAddress(r)
			if e.sender != owner && !s.approved[owner][hash] {
				return chain.Revert(chain.ReasonSafeHashNotApprove)
			}
		case v > 30:
			recovered, err := recoverSigner(accounts.TextHash(hash[:]), sig, v-4)
			if err != nil {
				return chain.Revert(chain.ReasonSafeInvalidOwner)
			}
			owner = recovered
		default:
			recovered, err := recoverSigner(hash[:], sig, v)
			if err != nil {
				return chain.Revert(chain.ReasonSafeInvalidOwner)
			}
			owner = recovered
		}

		if bytes.Compare(owner[:], last[:]) <= 0 || !s.isOwner(owner) {
			return chain.Revert(chain.ReasonSafeInvalidOwner)
		}
		last = owner
	}
	return nil
}

func recoverSigner(digest, sig []byte, v byte) (common.Address, error) {
	raw := make([]byte, 65)
	copy(raw, sig[:64])
	raw[64] = v - 27
	pub, err := crypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func (s *gnosisSafe) enableModule(e *env, module common.Address) error {
	if err := s.authorized(e); err != nil {
		return err
	}
	if module == (common.Address{}) || module == chain.SentinelModules {
		return chain.Revert(chain.ReasonSafeInvalidModule)
	}
	if s.modules[module] != (common.Address{}) {
		return chain.Revert(chain.ReasonSafeModuleExists)
	}
	s.modules[module] = s.modules[chain.SentinelModules]
	s.modules[chain.SentinelModules] = module
	e.emit("EnabledModule", map[string]interface{}{"module": module})
	return nil
}

func (s *gnosisSafe) disableModule(e *env, prev, module common.Address) error {
	if err := s.authorized(e); err != nil {
		return err
	}
	if module == (common.Address{}) || module == chain.SentinelModules {
		return chain.Revert(chain.ReasonSafeInvalidModule)
	}
	if s.modules[prev] != module {
		return chain.Revert(chain.ReasonSafePrevModule)
	}
	s.modules[prev] = s.modules[module]
	delete(s.modules, module)
	e.emit("DisabledModule", map[string]interface{}{"module": module})
	return nil
}

func (s *gnosisSafe) modulesPaginated(start common.Address, pageSize *big.Int) ([]common.Address, common.Address, error) {
	if start != chain.SentinelModules && !s.isModuleEnabled(start) {
		return nil, common.Address{}, chain.Revert("GS105")
	}
	if pageSize.Sign() <= 0 {
		return nil, common.Address{}, chain.Revert("GS106")
	}

	limit := pageSize.Uint64()
	array := make([]common.Address, 0)
	next := s.modules[start]
	for next != (common.Address{}) && next != chain.SentinelModules && uint64(len(array)) < limit {
		array = append(array, next)
		next = s.modules[next]
	}
	if next != chain.SentinelModules && len(array) > 0 {
		next = array[len(array)-1]
	}
	return array, next, nil
}

// proxyFactory 创建 Safe 代理并执行 setup 初始化
type proxyFactory struct{}

func newProxyFactory(e *env, args []interface{}) (contract, error) {
	return &proxyFactory{}, nil
}

func (f *proxyFactory) abiName() string { return contracts.GnosisSafeProxyFactory }

func (f *proxyFactory) clone() contract { return &proxyFactory{} }

func (f *proxyFactory) invoke(e *env, method string, args []interface{}) ([]interface{}, error) {
	if method != "createProxy" {
		return nil, chain.Revertf("GnosisSafeProxyFactory: unsupported method %s", method)
	}
	singleton, data := args[0].(common.Address), args[1].([]byte)
	if _, ok := e.l.st.contracts[singleton].(*gnosisSafe); !ok {
		return nil, chain.Revert("Invalid singleton address provided")
	}

	proxy := e.l.nextAddress(e.self)
	e.l.st.contracts[proxy] = &gnosisSafe{
		modules:  make(map[common.Address]common.Address),
		approved: make(map[common.Address]map[common.Hash]bool),
	}
	e.l.st.names[proxy] = contracts.GnosisSafe

	if len(data) > 0 {
		if _, err := e.callRaw(proxy, data); err != nil {
			return nil, err
		}
	}
	e.emit("ProxyCreation", map[string]interface{}{"proxy": proxy, "singleton": singleton})
	return []interface{}{proxy}, nil
}
