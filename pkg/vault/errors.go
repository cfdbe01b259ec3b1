package vault

import (
	"errors"
	"fmt"

	"medici/pkg/chain"
)

// 编排层错误分类，使用 errors.Is 判断
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAlreadyProvisioned = errors.New("already provisioned")
	ErrRouteNotAllowed    = errors.New("route not allowed")
	ErrLockActive         = errors.New("position lock active")
	ErrAlreadyEnabled     = errors.New("module already enabled")
	ErrNotEnabled         = errors.New("module not enabled")
	ErrInfrastructure     = errors.New("infrastructure failure")
	ErrEventMissing       = errors.New("expected event missing")
)

// StepError 流水线某一步的失败
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// callResult 取 method 的第 i 个返回值；个数或类型不符时返回错误
func callResult[T any](out []interface{}, i int, method string) (T, error) {
	var zero T
	if i >= len(out) {
		return zero, fmt.Errorf("%s returned %d values, want at least %d", method, len(out), i+1)
	}
	v, ok := out[i].(T)
	if !ok {
		return zero, fmt.Errorf("unexpected %s result #%d: %T", method, i, out[i])
	}
	return v, nil
}

// reasonErrors revert 原因码到错误分类
var reasonErrors = map[string]error{
	chain.ReasonAccessControl:      ErrUnauthorized,
	chain.ReasonLockActive:         ErrLockActive,
	chain.ReasonRouteNotAllowed:    ErrRouteNotAllowed,
	chain.ReasonSafeOnlySelf:       ErrUnauthorized,
	chain.ReasonSafeInvalidOwner:   ErrUnauthorized,
	chain.ReasonSafeHashNotApprove: ErrUnauthorized,
	chain.ReasonSafeModuleExists:   ErrAlreadyEnabled,
	chain.ReasonSafeNotModule:      ErrNotEnabled,
	chain.ReasonSafePrevModule:     ErrNotEnabled,
	chain.ReasonSafeSigsTooFew:     ErrUnauthorized,
}

// classify 给账本错误挂上分类；最内层的已知原因优先（GS013 只是外壳）
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrUnauthorized, ErrAlreadyProvisioned, ErrRouteNotAllowed,
		ErrLockActive, ErrAlreadyEnabled, ErrNotEnabled, ErrInfrastructure, ErrEventMissing} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	reasons := chain.RevertReasons(err)
	for i := len(reasons) - 1; i >= 0; i-- {
		if sentinel, ok := reasonErrors[reasons[i]]; ok {
			return fmt.Errorf("%w: %w", sentinel, err)
		}
	}
	// EVM 后端拿不到 execTransaction 的内层原因，只剩 GS013，按权限失败处理
	if len(reasons) == 1 && reasons[0] == chain.ReasonSafeTxFailed {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if chain.IsRevert(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInfrastructure, err)
}
