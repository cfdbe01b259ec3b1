package vault

import (
	"context"
	"fmt"
	"log"

	"medici/pkg/batch"
	"medici/pkg/chain"
	"medici/pkg/contracts"
	"medici/pkg/safe"

	"github.com/ethereum/go-ethereum/common"
)

// ModuleInfo list-modules 输出的一项
type ModuleInfo struct {
	Address    common.Address
	Name       string
	Version    string
	IsStrategy bool
}

// ModulesPage 读取一页模块；next 为下一页起点，回到哨兵表示结束
func (o *Orchestrator) ModulesPage(ctx context.Context, safeAddr, start common.Address, size int) ([]common.Address, common.Address, error) {
	out, err := o.ledger.Call(ctx, common.Address{}, safeAddr, contracts.GnosisSafe, "getModulesPaginated", start, bigInt(uint64(size)))
	if err != nil {
		return nil, common.Address{}, classify(err)
	}
	page, err := callResult[[]common.Address](out, 0, "getModulesPaginated")
	if err != nil {
		return nil, common.Address{}, err
	}
	next, err := callResult[common.Address](out, 1, "getModulesPaginated")
	if err != nil {
		return nil, common.Address{}, err
	}
	return page, next, nil
}

// ModuleAddresses 从哨兵开始按页枚举完整模块链表
func (o *Orchestrator) ModuleAddresses(ctx context.Context, safeAddr common.Address) ([]common.Address, error) {
	var modules []common.Address
	seen := make(map[common.Address]bool)
	next := chain.SentinelModules
	for {
		page, cursor, err := o.ModulesPage(ctx, safeAddr, next, o.pageSize)
		if err != nil {
			return nil, err
		}
		for _, m := range page {
			if seen[m] {
				return nil, fmt.Errorf("module list of %s loops at %s", safeAddr.Hex(), m.Hex())
			}
			seen[m] = true
			modules = append(modules, m)
		}
		if cursor == chain.SentinelModules || cursor == (common.Address{}) {
			return modules, nil
		}
		if len(page) == 0 {
			return nil, fmt.Errorf("empty module page before sentinel (cursor %s)", cursor.Hex())
		}
		next = cursor
	}
}

// ListModules 枚举模块并读取名称、版本，按 supportsInterface 判定是否为策略
func (o *Orchestrator) ListModules(ctx context.Context, safeAddr common.Address) ([]ModuleInfo, error) {
	addrs, err := o.ModuleAddresses(ctx, safeAddr)
	if err != nil {
		return nil, err
	}
	infos := make([]ModuleInfo, 0, len(addrs))
	for _, addr := range addrs {
		info := ModuleInfo{Address: addr}
		if out, err := o.ledger.Call(ctx, common.Address{}, addr, contracts.AbstractStrategy, "NAME"); err == nil {
			info.Name, _ = callResult[string](out, 0, "NAME")
		}
		if out, err := o.ledger.Call(ctx, common.Address{}, addr, contracts.AbstractStrategy, "VERSION"); err == nil {
			info.Version, _ = callResult[string](out, 0, "VERSION")
		}
		info.IsStrategy = o.isStrategy(ctx, addr)
		infos = append(infos, info)
	}
	return infos, nil
}

func (o *Orchestrator) isStrategy(ctx context.Context, addr common.Address) bool {
	supported := make(map[[4]byte]bool)
	for _, sel := range contracts.StrategySelectors() {
		out, err := o.ledger.Call(ctx, common.Address{}, addr, contracts.AbstractStrategy, "supportsInterface", sel)
		if err != nil {
			return false
		}
		ok, _ := callResult[bool](out, 0, "supportsInterface")
		supported[sel] = ok
	}
	return contracts.HasSelector(supported, contracts.StrategySelectors()...)
}

// Removal 一条 disableModule(prev, module) 指令
type Removal struct {
	Prev   common.Address
	Module common.Address
}

type link struct {
	prev, next common.Address
}

// PlanRemovals 在原始链表快照上计算移除指令。
// list 为不含哨兵的模块顺序；按 remove 的顺序在内存中模拟移除，
// 每条指令的 prev 是其在此前指令全部执行后的前驱，顺序执行即可成功。
func PlanRemovals(list, remove []common.Address) ([]Removal, error) {
	links := make(map[common.Address]*link, len(list))
	for i, m := range list {
		l := &link{prev: chain.SentinelModules, next: chain.SentinelModules}
		if i > 0 {
			l.prev = list[i-1]
		}
		if i < len(list)-1 {
			l.next = list[i+1]
		}
		links[m] = l
	}

	actions := make([]Removal, 0, len(remove))
	for _, m := range remove {
		l, ok := links[m]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not in the module list", ErrNotEnabled, m.Hex())
		}
		if p, ok := links[l.prev]; ok {
			p.next = l.next
		}
		if n, ok := links[l.next]; ok {
			n.prev = l.prev
		}
		delete(links, m)
		actions = append(actions, Removal{Prev: l.prev, Module: m})
	}
	return actions, nil
}

// PlanDisable 枚举链表后计划移除
func (o *Orchestrator) PlanDisable(ctx context.Context, safeAddr common.Address, remove []common.Address) ([]Removal, error) {
	var actions []Removal
	err := o.step("planDisable", func() error {
		modules, err := o.ModuleAddresses(ctx, safeAddr)
		if err != nil {
			return err
		}
		log.Printf("[Pipeline] %s has %d modules, removing %d", safeAddr.Hex(), len(modules), len(remove))
		actions, err = PlanRemovals(modules, remove)
		return err
	})
	return actions, err
}

// DisableModules 计划并逐条执行移除
func (o *Orchestrator) DisableModules(ctx context.Context, ctrl chain.Executor, remove []common.Address) ([]Removal, error) {
	actions, err := o.PlanDisable(ctx, ctrl.Address(), remove)
	if err != nil {
		return nil, err
	}
	for _, a := range actions {
		a := a
		if err := o.step("disableModule", func() error {
			_, err := ctrl.Execute(ctx, ctrl.Address(), contracts.GnosisSafe, "disableModule", a.Prev, a.Module)
			return err
		}); err != nil {
			return nil, err
		}
	}
	return actions, nil
}

// DisableBatch 不发送交易，把移除指令写成 Transaction Builder 批量文件
func (o *Orchestrator) DisableBatch(ctx context.Context, safeAddr common.Address, remove []common.Address) (*batch.File, error) {
	chainID, err := o.ledger.ChainID(ctx)
	if err != nil {
		return nil, classify(err)
	}
	rec := safe.NewRecorder(safeAddr, batch.New("Clear unused modules", chainID, safeAddr))
	if _, err := o.DisableModules(ctx, rec, remove); err != nil {
		return nil, err
	}
	return rec.File(), nil
}
