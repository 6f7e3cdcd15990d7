package notifier

import (
	"context"

	"tlbot/internal/logger"
	"tlbot/internal/monitor"
	"tlbot/internal/pipeline"
)

// Sink 把通知器挂接到流水线与监控循环。发送异步进行，失败只记日志，
// 绝不阻塞交易路径。
type Sink struct {
	notifier TextNotifier
}

func NewSink(n TextNotifier) *Sink {
	return &Sink{notifier: n}
}

var (
	_ pipeline.Sink       = (*Sink)(nil)
	_ monitor.ClosureSink = (*Sink)(nil)
)

func (s *Sink) Record(_ context.Context, o pipeline.Outcome) {
	s.send(OutcomeMessage(o))
}

func (s *Sink) PositionClosed(_ context.Context, ev monitor.ClosureEvent) {
	s.send(ClosureMessage(ev))
}

func (s *Sink) send(msg StructuredMessage) {
	if s == nil || s.notifier == nil {
		return
	}
	go func() {
		if err := s.notifier.SendText(msg.RenderMarkdown()); err != nil {
			logger.Warnf("[notifier] 推送失败: %v", err)
		}
	}()
}
