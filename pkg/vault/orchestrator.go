// Package vault 策略/跨链模块的编排核心：注册表准备、权限播种、模块部署与启用、生命周期调用
//
// 所有步骤严格串行：每一步发送一笔状态变更并等待确认后才进行下一步。
// 控制者（safe）身份通过 chain.Executor 提供，可以是私钥直签、多签或批量文件记录。
package vault

import (
	"errors"
	"log"
	"time"

	"medici/pkg/chain"
	"medici/pkg/deployments"
	"medici/pkg/metrics"
	"medici/pkg/quote"
)

// DefaultPageSize getModulesPaginated 默认页大小
const DefaultPageSize = 10

// Observer 步骤观测（metrics.Recorder 实现了它）
type Observer interface {
	ObserveStep(step, outcome string, elapsed time.Duration)
}

// Orchestrator 编排器
type Orchestrator struct {
	ledger   chain.Ledger
	store    deployments.Store
	observer Observer
	quoter   quote.Quoter
	pageSize int
	runID    string
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithStore 部署记录存储（默认内存）
func WithStore(store deployments.Store) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithObserver 步骤观测器
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithQuoter harvest 使用的报价源（默认空 extraData）
func WithQuoter(q quote.Quoter) Option {
	return func(o *Orchestrator) { o.quoter = q }
}

// WithPageSize 模块枚举页大小
func WithPageSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithRunID 写入部署记录的运行标识
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// New 创建编排器
func New(ledger chain.Ledger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		ledger:   ledger,
		store:    deployments.NewMemoryStore(),
		quoter:   quote.Static(nil),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Ledger 底层账本
func (o *Orchestrator) Ledger() chain.Ledger { return o.ledger }

// Store 部署记录存储
func (o *Orchestrator) Store() deployments.Store { return o.store }

// step 执行一个带名字的步骤：错误分类后包装为 *StepError，并上报观测
func (o *Orchestrator) step(name string, fn func() error) error {
	start := time.Now()
	err := classify(fn())

	outcome := metrics.OutcomeOK
	switch {
	case errors.Is(err, ErrAlreadyProvisioned):
		outcome = metrics.OutcomeSkipped
	case err != nil:
		outcome = metrics.OutcomeError
	}
	if o.observer != nil {
		o.observer.ObserveStep(name, outcome, time.Since(start))
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAlreadyProvisioned) {
		log.Printf("[Pipeline] %s skipped: %v", name, err)
	}
	if _, ok := err.(*StepError); ok {
		return err
	}
	return &StepError{Step: name, Err: err}
}
