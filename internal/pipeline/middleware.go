package pipeline

import (
	"context"
	"errors"
	"time"
)

// Middleware 描述执行链上的一个步骤。
type Middleware interface {
	Meta() MiddlewareMeta
	Handle(ctx context.Context, sc *SignalContext) error
}

// MiddlewareMeta 提供调度所需元信息。同一 stage 的步骤并发执行，
// stage 之间串行。
type MiddlewareMeta struct {
	Name     string
	Stage    int
	Critical bool
	Timeout  time.Duration
	// Advance 是该步骤成功后信号推进到的状态。零值表示不推进。
	Advance State
}

// DeniedError 表示闸门或定量的业务拒绝：信号终态为 REJECTED，
// 不是系统故障。原因随终态上报。
type DeniedError struct {
	Gate   string
	Reason string
}

func (e *DeniedError) Error() string {
	return e.Gate + ": " + e.Reason
}

// AsDenied 解出链路错误中的业务拒绝。
func AsDenied(err error) (*DeniedError, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied, true
	}
	return nil, false
}

// MiddlewareError 封装步骤失败信息。
type MiddlewareError struct {
	Middleware string
	Stage      int
	Critical   bool
	Err        error
}

func (e *MiddlewareError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return e.Middleware
	}
	return e.Middleware + ": " + e.Err.Error()
}

func (e *MiddlewareError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
