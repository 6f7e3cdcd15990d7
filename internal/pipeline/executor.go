package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tlbot/internal/broker/tradelocker"
	"tlbot/internal/logger"
	"tlbot/internal/signal"
)

// Sink 接收每个信号的终态记录。任何终态都必须上报，绝不静默丢弃。
type Sink interface {
	Record(ctx context.Context, outcome Outcome)
}

// SinkFunc 适配函数为 Sink。
type SinkFunc func(ctx context.Context, outcome Outcome)

func (f SinkFunc) Record(ctx context.Context, outcome Outcome) { f(ctx, outcome) }

const (
	reconcileAttempts = 5
	reconcileInterval = 2 * time.Second
)

// Executor 消费信号源并为每个信号跑一遍执行链。多个信号的链路
// 并行运行，在限流器处对同类别调用排队。认证失败或重试预算耗尽
// 后停牌：新信号直接终结为 FAILED，直到一次探测调用恢复成功。
type Executor struct {
	pipe   *Pipeline
	broker Broker
	sink   Sink
	halted atomic.Bool
	wg     sync.WaitGroup
}

func NewExecutor(pipe *Pipeline, broker Broker, sink Sink) *Executor {
	return &Executor{pipe: pipe, broker: broker, sink: sink}
}

// Run 消费信号直到源关闭或 ctx 结束，等待在途链路收尾后返回。
func (e *Executor) Run(ctx context.Context, src signal.Source) error {
	defer e.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-src.Signals():
			if !ok {
				return nil
			}
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.Process(ctx, sig)
			}()
		}
	}
}

// Process 执行单个信号的完整链路并上报终态。
func (e *Executor) Process(ctx context.Context, sig signal.Signal) Outcome {
	sc := NewSignalContext(sig)

	if e.halted.Load() && !e.probeRecovery(ctx) {
		sc.Finish(StateFailed, "会话已停牌（认证失败或连续网络故障），等待恢复")
		return e.report(ctx, sc)
	}

	err := e.pipe.Run(ctx, sc)
	switch {
	case err == nil:
		sc.Finish(StateFilled, "经纪商已受理订单")

	case isDenial(err):
		denied, _ := AsDenied(err)
		sc.Finish(StateRejected, denied.Reason)

	case errors.Is(err, tradelocker.ErrAmbiguousSubmission):
		e.reconcile(ctx, sc, err)

	case errors.Is(err, tradelocker.ErrAuthFailed):
		e.halted.Store(true)
		sc.Finish(StateFailed, fmt.Sprintf("认证失败，停止新提交: %v", err))

	case errors.Is(err, tradelocker.ErrTransient), errors.Is(err, tradelocker.ErrCircuitOpen):
		e.halted.Store(true)
		sc.Finish(StateFailed, fmt.Sprintf("经纪商不可达，停止新提交: %v", err))

	default:
		sc.Finish(StateFailed, err.Error())
	}
	return e.report(ctx, sc)
}

// Halted 报告执行器是否处于停牌状态。
func (e *Executor) Halted() bool {
	return e.halted.Load()
}

func isDenial(err error) bool {
	_, ok := AsDenied(err)
	return ok
}

// probeRecovery 用一次账户状态调用探测经纪商是否恢复。
func (e *Executor) probeRecovery(ctx context.Context) bool {
	if _, err := e.broker.GetAccountState(ctx); err != nil {
		logger.Warnf("[pipeline] 停牌探测仍失败: %v", err)
		return false
	}
	e.halted.Store(false)
	logger.Infof("[pipeline] 经纪商恢复可达，解除停牌")
	return true
}

// reconcile 处理提交超时后的悬而未决状态：下单请求已发出但没有
// 确定性应答，重发可能双重下单，所以只轮询订单/持仓核对结果。
func (e *Executor) reconcile(ctx context.Context, sc *SignalContext, cause error) {
	intent := sc.Intent()
	logger.Warnf("[pipeline] 信号 %s 提交结果未知，开始核对: %v", sc.Signal.ID, cause)

	for attempt := 0; attempt < reconcileAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(reconcileInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				sc.Finish(StateFailed, "核对悬置提交时被中断")
				return
			case <-timer.C:
			}
		}
		if orderID, ok := e.findSubmitted(ctx, sc, intent); ok {
			sc.SetOrderID(orderID)
			sc.Advance(StateSubmitted)
			sc.Finish(StateFilled, "提交超时后经核对确认订单已受理")
			return
		}
	}
	sc.Finish(StateFailed, fmt.Sprintf("提交结果未知且核对未找到订单: %v", cause))
}

func (e *Executor) findSubmitted(ctx context.Context, sc *SignalContext, intent tradelocker.OrderIntent) (string, bool) {
	if orders, err := e.broker.GetOrders(ctx); err == nil {
		for _, o := range orders {
			if o.TradableInstrumentID == intent.TradableInstrumentID &&
				o.Side == intent.Side &&
				o.Qty.Equal(intent.Qty) &&
				!o.CreatedDate.Before(sc.StartedAt.UTC().Truncate(time.Second)) {
				return o.ID, true
			}
		}
	} else {
		logger.Warnf("[pipeline] 核对时拉取订单失败: %v", err)
	}
	if positions, err := e.broker.GetPositions(ctx); err == nil {
		for _, p := range positions {
			if p.TradableInstrumentID == intent.TradableInstrumentID &&
				p.Side == intent.Side &&
				p.Qty.Equal(intent.Qty) &&
				!p.OpenDate.Before(sc.StartedAt.UTC().Truncate(time.Second)) {
				return p.ID, true
			}
		}
	} else {
		logger.Warnf("[pipeline] 核对时拉取持仓失败: %v", err)
	}
	return "", false
}

func (e *Executor) report(ctx context.Context, sc *SignalContext) Outcome {
	outcome := sc.Outcome()
	switch outcome.State {
	case StateFilled:
		logger.Infof("[pipeline] 信号 %s %s: %s", outcome.SignalID, outcome.State, outcome.Reason)
	default:
		logger.Warnf("[pipeline] 信号 %s %s %s %s: %s",
			outcome.SignalID, outcome.Instrument, outcome.Side, outcome.State, outcome.Reason)
	}
	if e.sink != nil {
		e.sink.Record(ctx, outcome)
	}
	return outcome
}
