package app

import (
	"context"
	"fmt"

	"tlbot/internal/logger"
	"tlbot/internal/monitor"
	"tlbot/internal/pipeline"
	"tlbot/internal/store/auditlog"
	"tlbot/internal/store/gormstore"
)

// sinkFanout 把一个终态广播给多个消费者。
type sinkFanout []pipeline.Sink

func (f sinkFanout) Record(ctx context.Context, o pipeline.Outcome) {
	for _, s := range f {
		s.Record(ctx, o)
	}
}

// closureFanout 同理广播平仓事件。
type closureFanout []monitor.ClosureSink

func (f closureFanout) PositionClosed(ctx context.Context, ev monitor.ClosureEvent) {
	for _, s := range f {
		s.PositionClosed(ctx, ev)
	}
}

// outcomeAudit 把信号终态写进只追加审计库，并走审计日志行。
type outcomeAudit struct {
	store *auditlog.Store
}

func (s outcomeAudit) Record(ctx context.Context, o pipeline.Outcome) {
	logger.Audit("outcome", string(o.State), o.Instrument, o.Side, o.TraceID, o.Reason)
	err := s.store.Append(ctx, auditlog.Entry{
		TraceID:    o.TraceID,
		Kind:       "outcome",
		Instrument: o.Instrument,
		Side:       o.Side,
		State:      string(o.State),
		Detail:     fmt.Sprintf("order_id=%s qty=%s reason=%s", o.OrderID, o.Quantity, o.Reason),
	})
	if err != nil {
		logger.Errorf("[app] 审计终态写入失败: %v", err)
	}
}

// closureAudit 把平仓事件写进审计库。
type closureAudit struct {
	store *auditlog.Store
}

func (s closureAudit) PositionClosed(ctx context.Context, ev monitor.ClosureEvent) {
	logger.Audit("closure", ev.PositionID, ev.Instrument, ev.FinalPnL.String())
	err := s.store.Append(ctx, auditlog.Entry{
		TraceID:    ev.PositionID,
		Kind:       "closure",
		Instrument: ev.Instrument,
		Detail:     fmt.Sprintf("final_pnl=%s close_time=%s", ev.FinalPnL, ev.CloseTime.UTC().Format("2006-01-02T15:04:05Z")),
	})
	if err != nil {
		logger.Errorf("[app] 审计平仓写入失败: %v", err)
	}
}

// planRegistrar 在订单成交后把保护位计划登记给监控循环并缓存订单。
type planRegistrar struct {
	monitor *monitor.Monitor
	store   *gormstore.GormStore
}

func (r planRegistrar) Record(ctx context.Context, o pipeline.Outcome) {
	if o.State != pipeline.StateFilled || o.Intent == nil {
		return
	}
	r.monitor.RegisterPlan(monitor.Plan{
		Instrument:           o.Intent.Instrument,
		TradableInstrumentID: o.Intent.TradableInstrumentID,
		Side:                 o.Intent.Side,
		Entry:                o.Intent.Price,
		StopLoss:             o.Intent.StopLoss,
		TakeProfit:           o.Intent.TakeProfit,
	})
	if o.OrderID != "" {
		if err := r.store.CacheOrder(ctx, o.OrderID, *o.Intent); err != nil {
			logger.Warnf("[app] 订单缓存失败: %v", err)
		}
	}
}
