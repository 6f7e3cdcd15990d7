package middlewares

import (
	"context"
	"fmt"
	"time"

	"tlbot/internal/pipeline"
)

// Snapshot 在闸门裁定前拉取一份账户状态。之后的新闻、回撤、定量
// 全部基于这一份快照，决策中途绝不刷新。
type Snapshot struct {
	meta   pipeline.MiddlewareMeta
	broker pipeline.Broker
}

func NewSnapshot(stage int, broker pipeline.Broker) *Snapshot {
	return &Snapshot{
		meta: pipeline.MiddlewareMeta{
			Name:     "account_snapshot",
			Stage:    stage,
			Critical: true,
			Timeout:  15 * time.Second,
		},
		broker: broker,
	}
}

func (m *Snapshot) Meta() pipeline.MiddlewareMeta { return m.meta }

func (m *Snapshot) Handle(ctx context.Context, sc *pipeline.SignalContext) error {
	state, err := m.broker.GetAccountState(ctx)
	if err != nil {
		return fmt.Errorf("拉取账户状态失败: %w", err)
	}
	sc.SetAccount(state)
	return nil
}
