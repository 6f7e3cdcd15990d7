package middlewares

import (
	"context"
	"fmt"
	"time"

	"tlbot/internal/gate"
	"tlbot/internal/pipeline"
)

// NewsCheck 执行高影响新闻禁入窗口裁定。
type NewsCheck struct {
	meta pipeline.MiddlewareMeta
	gate *gate.NewsGate
}

func NewNewsCheck(stage int, g *gate.NewsGate) *NewsCheck {
	return &NewsCheck{
		meta: pipeline.MiddlewareMeta{
			Name:     "news_gate",
			Stage:    stage,
			Critical: true,
			Timeout:  time.Second,
			Advance:  pipeline.StateNewsChecked,
		},
		gate: g,
	}
}

func (m *NewsCheck) Meta() pipeline.MiddlewareMeta { return m.meta }

func (m *NewsCheck) Handle(_ context.Context, sc *pipeline.SignalContext) error {
	if d := m.gate.Check(sc.Signal, time.Now().UTC()); !d.Allowed {
		return &pipeline.DeniedError{Gate: "news", Reason: d.Reason}
	}
	return nil
}

// DrawdownCheck 用链首的账户快照执行日内回撤裁定。
type DrawdownCheck struct {
	meta pipeline.MiddlewareMeta
	gate *gate.DrawdownGate
}

func NewDrawdownCheck(stage int, g *gate.DrawdownGate) *DrawdownCheck {
	return &DrawdownCheck{
		meta: pipeline.MiddlewareMeta{
			Name:     "drawdown_gate",
			Stage:    stage,
			Critical: true,
			Timeout:  5 * time.Second,
			Advance:  pipeline.StateDrawdownChecked,
		},
		gate: g,
	}
}

func (m *DrawdownCheck) Meta() pipeline.MiddlewareMeta { return m.meta }

func (m *DrawdownCheck) Handle(_ context.Context, sc *pipeline.SignalContext) error {
	state, ok := sc.Account()
	if !ok {
		return fmt.Errorf("回撤裁定缺少账户快照")
	}
	if d := m.gate.Check(state, time.Now().UTC()); !d.Allowed {
		return &pipeline.DeniedError{Gate: "drawdown", Reason: d.Reason}
	}
	return nil
}
