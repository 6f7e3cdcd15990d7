// Package middlewares contains the execution-chain steps: boundary
// validation, account snapshot, the two gates, risk sizing, and submission.
package middlewares

import (
	"context"
	"time"

	"tlbot/internal/pipeline"
)

// Validate 是链入口的严格边界校验：畸形信号在进入闸门链之前
// 就以业务拒绝终结，不信任上游的松散结构。
type Validate struct {
	meta pipeline.MiddlewareMeta
}

func NewValidate(stage int) *Validate {
	return &Validate{meta: pipeline.MiddlewareMeta{
		Name:     "validate",
		Stage:    stage,
		Critical: true,
		Timeout:  time.Second,
	}}
}

func (m *Validate) Meta() pipeline.MiddlewareMeta { return m.meta }

func (m *Validate) Handle(_ context.Context, sc *pipeline.SignalContext) error {
	if err := sc.Signal.Validate(); err != nil {
		return &pipeline.DeniedError{Gate: "validate", Reason: err.Error()}
	}
	return nil
}
