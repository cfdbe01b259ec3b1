package vault

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"medici/pkg/batch"
	"medici/pkg/chain"
	"medici/pkg/contracts"
	"medici/pkg/deployments"

	"github.com/ethereum/go-ethereum/common"
)

// 注册表在部署记录中的名字
const (
	AuthRegistryName = "AuthRegistry"
	ExtRegistryName  = "ExtRegistry"
)

// Registries 一对注册表地址
type Registries struct {
	Auth common.Address
	Ext  common.Address
	// Status 每个注册表的准备结果：nil 为新建，ErrAlreadyProvisioned 为跳过
	Status map[string]error
}

// AlreadyProvisioned 两个注册表均已存在（本次调用无任何部署）
func (r *Registries) AlreadyProvisioned() bool {
	return errors.Is(r.Status[AuthRegistryName], ErrAlreadyProvisioned) &&
		errors.Is(r.Status[ExtRegistryName], ErrAlreadyProvisioned)
}

// LoadRegistries 从部署记录读取已存在的注册表
func (o *Orchestrator) LoadRegistries() (*Registries, error) {
	auth, err := o.store.Get(AuthRegistryName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", AuthRegistryName, err)
	}
	ext, err := o.store.Get(ExtRegistryName)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ExtRegistryName, err)
	}
	return &Registries{Auth: auth.Address, Ext: ext.Address, Status: map[string]error{
		AuthRegistryName: ErrAlreadyProvisioned,
		ExtRegistryName:  ErrAlreadyProvisioned,
	}}, nil
}

// ProvisionRegistries 以 from 部署两个注册表，owner 为唯一所有者。
// 部署记录中已有同名记录的注册表跳过，跳过不是失败。
func (o *Orchestrator) ProvisionRegistries(ctx context.Context, from, owner common.Address) (*Registries, error) {
	regs := &Registries{Status: make(map[string]error, 2)}
	for _, item := range []struct {
		name string
		addr *common.Address
	}{
		{ExtRegistryName, &regs.Ext},
		{AuthRegistryName, &regs.Auth},
	} {
		name, addr := item.name, item.addr
		err := o.step("provision:"+name, func() error {
			existing, err := o.store.GetOrNull(name)
			if err != nil {
				return err
			}
			if existing != nil {
				*addr = existing.Address
				return fmt.Errorf("%w: %s at %s", ErrAlreadyProvisioned, name, existing.Address.Hex())
			}
			deployed, err := o.deploy(ctx, from, name, name, owner)
			if err != nil {
				return err
			}
			*addr = deployed
			return nil
		})
		if err != nil && !errors.Is(err, ErrAlreadyProvisioned) {
			return nil, err
		}
		regs.Status[name] = unwrapStatus(err)
	}
	return regs, nil
}

func unwrapStatus(err error) error {
	if errors.Is(err, ErrAlreadyProvisioned) {
		return ErrAlreadyProvisioned
	}
	return err
}

// RegistryOwner 读取注册表 owner（存储槽 0）
func (o *Orchestrator) RegistryOwner(ctx context.Context, registry common.Address) (common.Address, error) {
	word, err := o.ledger.StorageAt(ctx, registry, common.Hash{})
	if err != nil {
		return common.Address{}, classify(err)
	}
	return common.BytesToAddress(word.Bytes()), nil
}

// TransferOwnership setSafe：把注册表交给新的控制者（不可逆）
func (o *Orchestrator) TransferOwnership(ctx context.Context, ctrl chain.Executor, registry common.Address, contract string, newSafe common.Address) error {
	return o.step("setSafe:"+contract, func() error {
		_, err := ctrl.Execute(ctx, registry, contract, "setSafe", newSafe)
		return err
	})
}

// deploy 部署并写入部署记录
func (o *Orchestrator) deploy(ctx context.Context, from common.Address, name, contract string, args ...interface{}) (common.Address, error) {
	addr, receipt, err := o.ledger.Deploy(ctx, from, contract, args...)
	if err != nil {
		return common.Address{}, err
	}
	rec := &deployments.Record{
		Name:       name,
		Contract:   contract,
		Address:    addr,
		RunID:      o.runID,
		DeployedAt: time.Now().UTC(),
	}
	for _, a := range args {
		rec.Args = append(rec.Args, batch.FormatValue(a))
	}
	if receipt != nil {
		rec.TxHash = receipt.TxHash
		rec.BlockNumber = receipt.BlockNumber
	}
	if err := o.store.Save(rec); err != nil {
		return common.Address{}, fmt.Errorf("failed to record %s: %w", name, err)
	}
	log.Printf("[Pipeline] deployed %s (%s) at %s", name, contracts.Resolve(contract), addr.Hex())
	return addr, nil
}
