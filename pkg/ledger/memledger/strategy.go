package memledger

import (
	"math/big"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// 角色值与链上 AuthRegistry 一致
const (
	roleStrategist     uint8 = 2
	roleHarvester      uint8 = 3
	roleBridgeAdmin    uint8 = 4
	roleBridgeOperator uint8 = 5
)

var erc165Interface = [4]byte{0x01, 0xff, 0xc9, 0xa7}

// Pool 策略池
type Pool struct {
	Name         string
	DepositToken common.Address
}

// Reward 每次 claim 可领取的奖励
type Reward struct {
	Token  common.Address
	Amount *big.Int
}

// StrategyConfig 内存策略模块的行为参数
type StrategyConfig struct {
	Name    string
	Version string
	Pools   []Pool
	// FeeBps 存款手续费（基点）
	FeeBps uint64
	// Cooldown 存款后锁定秒数，0 表示不锁定
	Cooldown uint64
	// Rewards 有持仓时 simulateClaim 返回的奖励；Amount 为 0 的项同样返回
	Rewards     []Reward
	OutputToken common.Address
}

type position struct {
	deposited   *uint256.Int
	lockedUntil uint64
}

type posKey struct {
	pool uint64
	safe common.Address
}

type strategy struct {
	cfg       StrategyConfig
	ext, auth common.Address
	args      []interface{}
	positions map[posKey]*position
}

// RegisterStrategy 注册一个策略模块合约名（构造参数 ext, auth, ...args）
func (l *Ledger) RegisterStrategy(name string, cfg StrategyConfig) {
	contracts.RegisterAlias(name, contracts.AbstractStrategy)
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
		return &strategy{
			cfg:       cfg,
			ext:       ext,
			auth:      auth,
			args:      append([]interface{}(nil), args[2:]...),
			positions: make(map[posKey]*position),
		}, nil
	})
}

func (s *strategy) abiName() string { return contracts.AbstractStrategy }

func (s *strategy) clone() contract {
	c := &strategy{cfg: s.cfg, ext: s.ext, auth: s.auth, args: s.args, positions: make(map[posKey]*position, len(s.positions))}
	for k, p := range s.positions {
		c.positions[k] = &position{deposited: p.deposited.Clone(), lockedUntil: p.lockedUntil}
	}
	return c
}

func (s *strategy) position(pool uint64, safe common.Address) *position {
	key := posKey{pool, safe}
	p, ok := s.positions[key]
	if !ok {
		p = &position{deposited: new(uint256.Int)}
		s.positions[key] = p
	}
	return p
}

func (s *strategy) peek(pool uint64, safe common.Address) (*uint256.Int, uint64) {
	if p, ok := s.positions[posKey{pool, safe}]; ok {
		return p.deposited, p.lockedUntil
	}
	return new(uint256.Int), 0
}

func (s *strategy) pool(id *big.Int) (uint64, *Pool, error) {
	if !id.IsUint64() || id.Uint64() >= uint64(len(s.cfg.Pools)) {
		return 0, nil, chain.Revertf("invalid pool %s", id)
	}
	return id.Uint64(), &s.cfg.Pools[id.Uint64()], nil
}

// guard 角色 + 模块启用检查
func (s *strategy) guard(e *env, role uint8, safe common.Address) error {
	if !e.hasRole(s.auth, e.sender, role) {
		return chain.Revert(chain.ReasonAccessControl)
	}
	if !e.moduleEnabled(safe, e.self) {
		return chain.Revert(chain.ReasonSafeNotModule)
	}
	return nil
}

func (s *strategy) invoke(e *env, method string, args []interface{}) ([]interface{}, error) {
	switch method {
	case "NAME":
		return []interface{}{s.cfg.Name}, nil
	case "VERSION":
		return []interface{}{s.cfg.Version}, nil
	case "supportsInterface":
		id := args[0].([4]byte)
		for _, sel := range contracts.StrategySelectors() {
			if sel == id {
				return []interface{}{true}, nil
			}
		}
		return []interface{}{id == erc165Interface}, nil
	case "poolName":
		_, p, err := s.pool(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{p.Name}, nil
	case "depositToken":
		_, p, err := s.pool(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{p.DepositToken}, nil
	case "depositedAmount":
		id, _, err := s.pool(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		dep, _ := s.peek(id, args[1].(common.Address))
		return []interface{}{dep.ToBig()}, nil
	case "lockedUntil":
		id, _, err := s.pool(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		_, until := s.peek(id, args[1].(common.Address))
		return []interface{}{new(big.Int).SetUint64(until)}, nil
	case "simulateClaim":
		id, _, err := s.pool(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{s.claimable(id, args[1].(common.Address))}, nil
	case "deposit":
		return nil, s.deposit(e, args[0].(*big.Int), args[1].(common.Address), args[2].(*big.Int))
	case "withdraw":
		return nil, s.withdraw(e, args[0].(*big.Int), args[1].(common.Address), args[2].(*big.Int), args[3].(bool), args[4].([]byte))
	case "harvest":
		if err := s.guardPool(e, roleHarvester, args[0].(*big.Int), args[1].(common.Address)); err != nil {
			return nil, err
		}
		return nil, s.harvest(e, args[0].(*big.Int), args[1].(common.Address), args[2].([]byte))
	}
	return nil, chain.Revertf("%s: unsupported method %s", s.cfg.Name, method)
}

func (s *strategy) guardPool(e *env, role uint8, pool *big.Int, safe common.Address) error {
	if err := s.guard(e, role, safe); err != nil {
		return err
	}
	_, _, err := s.pool(pool)
	return err
}

func (s *strategy) claimable(pool uint64, safe common.Address) []contracts.Harvest {
	dep, _ := s.peek(pool, safe)
	out := make([]contracts.Harvest, 0, len(s.cfg.Rewards))
	for _, r := range s.cfg.Rewards {
		amount := new(big.Int)
		if !dep.IsZero() && r.Amount != nil {
			amount.Set(r.Amount)
		}
		out = append(out, contracts.Harvest{Token: r.Token, Amount: amount})
	}
	return out
}

func (s *strategy) deposit(e *env, poolID *big.Int, safe common.Address, amount *big.Int) error {
	if err := s.guard(e, roleStrategist, safe); err != nil {
		return err
	}
	id, p, err := s.pool(poolID)
	if err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return chain.Revert("invalid amount")
	}
	if err := e.transferToken(p.DepositToken, safe, e.self, amount); err != nil {
		return err
	}

	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(s.cfg.FeeBps))
	fee.Div(fee, big.NewInt(10000))
	net := new(big.Int).Sub(amount, fee)
	netU, _ := uint256.FromBig(net)

	pos := s.position(id, safe)
	pos.deposited = new(uint256.Int).Add(pos.deposited, netU)
	if s.cfg.Cooldown > 0 {
		pos.lockedUntil = e.now() + s.cfg.Cooldown
	}
	e.emit("Deposited", map[string]interface{}{"pool": new(big.Int).Set(poolID), "safe": safe, "amount": net})
	return nil
}

func (s *strategy) withdraw(e *env, poolID *big.Int, safe common.Address, amount *big.Int, harvest bool, data []byte) error {
	if err := s.guard(e, roleStrategist, safe); err != nil {
		return err
	}
	id, p, err := s.pool(poolID)
	if err != nil {
		return err
	}
	pos := s.position(id, safe)
	if e.now() < pos.lockedUntil {
		return chain.Revert(chain.ReasonLockActive)
	}
	if harvest {
		if err := s.harvest(e, poolID, safe, nil); err != nil {
			return err
		}
	}

	want, overflow := uint256.FromBig(amount)
	if overflow || amount.Sign() < 0 {
		return chain.Revert("invalid amount")
	}
	if want.Gt(pos.deposited) {
		want = pos.deposited.Clone()
	}
	pos.deposited = new(uint256.Int).Sub(pos.deposited, want)

	out := want.ToBig()
	if out.Sign() > 0 {
		if err := e.transferToken(p.DepositToken, e.self, safe, out); err != nil {
			return err
		}
	}
	e.emit("Withdrew", map[string]interface{}{"pool": new(big.Int).Set(poolID), "safe": safe, "amount": out})
	return nil
}

// harvest data 为 ExchangeDataProvider.encode 的兑换列表时按 amountOut 入账输出代币，
// 否则将奖励代币原样转给 safe
func (s *strategy) harvest(e *env, poolID *big.Int, safe common.Address, data []byte) error {
	id, _, err := s.pool(poolID)
	if err != nil {
		return err
	}
	claims := s.claimable(id, safe)

	if len(data) > 0 && s.cfg.OutputToken != (common.Address{}) {
		swaps, err := decodeSwapData(data)
		if err != nil {
			return chain.Revertf("invalid swap data: %v", err)
		}
		total := new(big.Int)
		for _, sw := range swaps {
			total.Add(total, sw.AmountOut)
		}
		if total.Sign() > 0 {
			if err := e.mintTo(s.cfg.OutputToken, safe, total); err != nil {
				return err
			}
		}
	} else {
		for _, c := range claims {
			if c.Amount.Sign() == 0 {
				continue
			}
			if err := e.mintTo(c.Token, safe, c.Amount); err != nil {
				return err
			}
		}
	}
	e.emit("Harvested", map[string]interface{}{"pool": new(big.Int).Set(poolID), "safe": safe})
	return nil
}

func (e *env) mintTo(token, to common.Address, amount *big.Int) error {
	tk, err := e.token(token)
	if err != nil {
		return err
	}
	if err := tk.mint(to, amount); err != nil {
		return err
	}
	e.receipt.Events = append(e.receipt.Events, chain.Event{
		Address: token,
		Name:    "Transfer",
		Args:    map[string]interface{}{"from": common.Address{}, "to": to, "value": new(big.Int).Set(amount)},
	})
	return nil
}
