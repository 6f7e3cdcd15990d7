package tradelocker

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailed 表示重新认证后仍被拒绝，会话级致命错误。
	ErrAuthFailed = errors.New("tradelocker: authentication failed")
	// ErrCircuitOpen 表示该端点类别的熔断器处于打开状态。
	ErrCircuitOpen = errors.New("tradelocker: circuit open")
	// ErrTransient marks network/5xx failures that exhausted the retry budget.
	ErrTransient = errors.New("tradelocker: transient failure")
	// ErrAmbiguousSubmission marks a place-order call whose outcome is unknown:
	// the request was issued but no definitive broker response arrived. The
	// caller must reconcile by polling orders before reporting a final state.
	ErrAmbiguousSubmission = errors.New("tradelocker: submission outcome unknown")
)

// APIError 是经纪商明确拒绝的请求（4xx 或 s!="ok"），不可重试。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("tradelocker: broker rejected request (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("tradelocker: broker rejected request: %s", e.Message)
}
