package safe

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"medici/pkg/chain"
	"medici/pkg/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// SetupConfig 新 Safe 的部署参数
type SetupConfig struct {
	Owners    []common.Address
	Threshold uint64
	// Factory / Singleton 为空时先行部署
	Factory   common.Address
	Singleton common.Address
}

// Deployed Setup 的结果
type Deployed struct {
	Safe      common.Address
	Factory   common.Address
	Singleton common.Address
	Receipt   *chain.Receipt
}

// Setup 部署（或复用）代理工厂与 singleton，createProxy 并以 setup 初始化
func Setup(ctx context.Context, ledger chain.Ledger, from common.Address, cfg SetupConfig) (*Deployed, error) {
	if len(cfg.Owners) == 0 {
		cfg.Owners = []common.Address{from}
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 1
	}

	out := &Deployed{Factory: cfg.Factory, Singleton: cfg.Singleton}
	var err error
	if out.Factory == (common.Address{}) {
		if out.Factory, _, err = ledger.Deploy(ctx, from, contracts.GnosisSafeProxyFactory); err != nil {
			return nil, fmt.Errorf("failed to deploy proxy factory: %w", err)
		}
	}
	if out.Singleton == (common.Address{}) {
		if out.Singleton, _, err = ledger.Deploy(ctx, from, contracts.GnosisSafe); err != nil {
			return nil, fmt.Errorf("failed to deploy safe singleton: %w", err)
		}
	}

	zero := common.Address{}
	initializer, err := contracts.Pack(contracts.GnosisSafe, "setup",
		cfg.Owners, new(big.Int).SetUint64(cfg.Threshold), zero, []byte{}, zero, zero, new(big.Int), zero)
	if err != nil {
		return nil, err
	}

	receipt, err := ledger.Transact(ctx, from, out.Factory, contracts.GnosisSafeProxyFactory, "createProxy", out.Singleton, initializer)
	if err != nil {
		return nil, fmt.Errorf("createProxy failed: %w", err)
	}
	ev, ok := receipt.FindEventFrom(out.Factory, "ProxyCreation")
	if !ok {
		return nil, fmt.Errorf("createProxy receipt %s has no ProxyCreation event", receipt.TxHash.Hex())
	}
	proxy, ok := ev.AddressArg("proxy")
	if !ok {
		return nil, fmt.Errorf("ProxyCreation event without proxy address")
	}

	out.Safe = proxy
	out.Receipt = receipt
	log.Printf("[Safe] created %s (%d/%d owners)", proxy.Hex(), cfg.Threshold, len(cfg.Owners))
	return out, nil
}

// Owners 读取 Safe owner 列表
func Owners(ctx context.Context, ledger chain.Ledger, safe common.Address) ([]common.Address, error) {
	out, err := ledger.Call(ctx, common.Address{}, safe, contracts.GnosisSafe, "getOwners")
	if err != nil {
		return nil, err
	}
	owners, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected getOwners result %T", out[0])
	}
	return owners, nil
}
