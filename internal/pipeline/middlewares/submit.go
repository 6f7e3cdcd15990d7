package middlewares

import (
	"context"
	"fmt"
	"time"

	"tlbot/internal/logger"
	"tlbot/internal/pipeline"
)

// Submit 向经纪商提交定量后的订单。每个信号恰好提交一次，
// 这里不做任何可能导致重复下单的重试。
type Submit struct {
	meta   pipeline.MiddlewareMeta
	broker pipeline.Broker
}

func NewSubmit(stage int, broker pipeline.Broker) *Submit {
	return &Submit{
		meta: pipeline.MiddlewareMeta{
			Name:     "submit_order",
			Stage:    stage,
			Critical: true,
			Timeout:  30 * time.Second,
			Advance:  pipeline.StateSubmitted,
		},
		broker: broker,
	}
}

func (m *Submit) Meta() pipeline.MiddlewareMeta { return m.meta }

func (m *Submit) Handle(ctx context.Context, sc *pipeline.SignalContext) error {
	intent := sc.Intent()
	if !intent.Qty.IsPositive() {
		return fmt.Errorf("提交前缺少有效的下单数量")
	}
	orderID, err := m.broker.PlaceOrder(ctx, intent)
	if err != nil {
		return err
	}
	sc.SetOrderID(orderID)
	logger.Infof("[pipeline] 信号 %s 已提交订单 %s", sc.Signal.ID, orderID)
	return nil
}
