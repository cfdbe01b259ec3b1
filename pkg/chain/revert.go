package chain

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// 合约 revert 原因码
const (
	ReasonAccessControl   = "AC1" // 调用者缺少角色或不是 owner
	ReasonLockActive      = "LK1" // 冷却期内提款
	ReasonRouteNotAllowed = "BR1" // 跨链目标/接收者未预先登记

	// Gnosis Safe
	ReasonSafeTxFailed       = "GS013" // 内部调用失败
	ReasonSafeSigsTooFew     = "GS020"
	ReasonSafeHashNotApprove = "GS025"
	ReasonSafeInvalidOwner   = "GS026"
	ReasonSafeOnlySelf       = "GS031"
	ReasonSafeInvalidModule  = "GS101"
	ReasonSafeModuleExists   = "GS102"
	ReasonSafePrevModule     = "GS103"
	ReasonSafeNotModule      = "GS104"
)

// RevertError 合约执行 revert
type RevertError struct {
	Reason string
	Data   []byte
	// Cause 内层调用的 revert（仅在本地账本可得，例如 Safe 的 GS013 包裹的原因）
	Cause *RevertError
}

func (e *RevertError) Error() string {
	msg := "execution reverted"
	if e.Reason != "" {
		msg += ": " + e.Reason
	} else if len(e.Data) > 0 {
		msg += ": 0x" + hex.EncodeToString(e.Data)
	}
	if e.Cause != nil {
		msg += " (" + e.Cause.Error() + ")"
	}
	return msg
}

// Revert 构造 revert 错误
func Revert(reason string) *RevertError {
	return &RevertError{Reason: reason}
}

// Revertf 构造带格式化原因的 revert 错误
func Revertf(format string, args ...interface{}) *RevertError {
	return &RevertError{Reason: fmt.Sprintf(format, args...)}
}

// RevertFromData 从返回数据解码 revert 原因
func RevertFromData(data []byte) *RevertError {
	re := &RevertError{Data: data}
	if msg, err := abi.UnpackRevert(data); err == nil {
		re.Reason = msg
	}
	return re
}

// RevertReasons 返回错误链中所有 revert 原因，外层在前
func RevertReasons(err error) []string {
	var re *RevertError
	if !errors.As(err, &re) {
		return nil
	}
	var reasons []string
	for cur := re; cur != nil; cur = cur.Cause {
		if cur.Reason != "" {
			reasons = append(reasons, cur.Reason)
		}
	}
	return reasons
}

// IsRevert 判断错误是否为合约 revert
func IsRevert(err error) bool {
	var re *RevertError
	return errors.As(err, &re)
}
