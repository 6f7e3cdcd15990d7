package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tlbot/internal/broker/tradelocker"
	"tlbot/internal/config"
	"tlbot/internal/logger"
)

// ClosureEvent 在某个持仓从经纪商快照中消失时发出，每个持仓恰好一次。
// FinalPnL 取该持仓最后一次被观测到的未实现盈亏。
type ClosureEvent struct {
	PositionID string
	Instrument string
	FinalPnL   decimal.Decimal
	CloseTime  time.Time
}

// ClosureSink 消费平仓事件（记账/通知方实现）。
type ClosureSink interface {
	PositionClosed(ctx context.Context, ev ClosureEvent)
}

// ClosureSinkFunc 适配函数为 ClosureSink。
type ClosureSinkFunc func(ctx context.Context, ev ClosureEvent)

func (f ClosureSinkFunc) PositionClosed(ctx context.Context, ev ClosureEvent) { f(ctx, ev) }

// Broker 是监控循环依赖的最小经纪商接口。
type Broker interface {
	GetPositions(ctx context.Context) ([]tradelocker.Position, error)
	GetQuote(ctx context.Context, routeID, tradableInstrumentID int64) (tradelocker.Quote, error)
	ModifyPosition(ctx context.Context, positionID string, patch tradelocker.PositionPatch) error
}

// Plan 是下单方登记的保护位计划：持仓出现后据此执行移动止损。
// TakeProfit 为 TP1，触及后把止损推到入场价并按入场距离挂移动偏移。
type Plan struct {
	Instrument           string
	TradableInstrumentID int64
	Side                 string
	Entry                decimal.Decimal
	StopLoss             decimal.Decimal
	TakeProfit           decimal.Decimal
}

// track 保存单个持仓的监控状态。
type track struct {
	plan       Plan
	hasPlan    bool
	trailing   bool
	lastUpdate time.Time
	lastPnL    decimal.Decimal
	instrument string
}

// Monitor 周期性比对持仓快照：消失的持仓发平仓事件，存续的持仓按
// 计划推进保护位。止损只收紧不放松。
type Monitor struct {
	broker   Broker
	sink     ClosureSink
	cooldown time.Duration

	mu     sync.Mutex
	seeded bool
	tracks map[string]*track
	plans  []Plan

	now func() time.Time // 测试用
}

func New(cfg config.MonitorConfig, broker Broker, sink ClosureSink) *Monitor {
	cooldown := time.Duration(cfg.CooldownSeconds) * time.Second
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Monitor{
		broker:   broker,
		sink:     sink,
		cooldown: cooldown,
		tracks:   make(map[string]*track),
		now:      time.Now,
	}
}

// RegisterPlan 登记一笔已提交订单的保护位计划。持仓在后续周期出现时
// 按品种与方向认领，认领后计划即消耗。
func (m *Monitor) RegisterPlan(p Plan) {
	if p.TakeProfit.LessThanOrEqual(decimal.Zero) {
		return
	}
	m.mu.Lock()
	m.plans = append(m.plans, p)
	m.mu.Unlock()
	logger.Debugf("[monitor] 登记保护位计划 %s %s entry=%s tp1=%s",
		p.Instrument, p.Side, p.Entry, p.TakeProfit)
}

// Cycle 执行一次监控周期。首个周期只建立基线，不发平仓事件。
func (m *Monitor) Cycle(ctx context.Context) error {
	positions, err := m.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("monitor: 拉取持仓失败: %w", err)
	}

	closures, active := m.diff(positions)
	for _, ev := range closures {
		logger.Infof("[monitor] 持仓 %s (%s) 已平仓, 最终盈亏 %s", ev.PositionID, ev.Instrument, ev.FinalPnL)
		if m.sink != nil {
			m.sink.PositionClosed(ctx, ev)
		}
	}

	for _, p := range active {
		m.manage(ctx, p)
	}
	return nil
}

// diff 在锁内比对前后快照：返回消失持仓的平仓事件和当前持仓列表，
// 并刷新每个存续持仓的最后已知盈亏。
func (m *Monitor) diff(positions []tradelocker.Position) ([]ClosureEvent, []tradelocker.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := make(map[string]struct{}, len(positions))
	for _, p := range positions {
		current[p.ID] = struct{}{}
		tr, ok := m.tracks[p.ID]
		if !ok {
			tr = &track{}
			tr.plan, tr.hasPlan = m.claimPlanLocked(p)
			if tr.hasPlan {
				tr.instrument = tr.plan.Instrument
			} else {
				// 无计划持仓（重启前下的单）至少带上品种编号，平仓事件不能空品种。
				tr.instrument = fmt.Sprintf("tid:%d", p.TradableInstrumentID)
			}
			m.tracks[p.ID] = tr
		}
		tr.lastPnL = p.UnrealizedPl
	}

	var closures []ClosureEvent
	for id, tr := range m.tracks {
		if _, ok := current[id]; ok {
			continue
		}
		if m.seeded {
			closures = append(closures, ClosureEvent{
				PositionID: id,
				Instrument: tr.instrument,
				FinalPnL:   tr.lastPnL,
				CloseTime:  m.now().UTC(),
			})
		}
		delete(m.tracks, id)
	}
	m.seeded = true
	return closures, positions
}

// claimPlanLocked 按品种与方向为新出现的持仓认领计划，先到先得。
func (m *Monitor) claimPlanLocked(p tradelocker.Position) (Plan, bool) {
	for i, plan := range m.plans {
		if plan.TradableInstrumentID == p.TradableInstrumentID && plan.Side == p.Side {
			m.plans = append(m.plans[:i], m.plans[i+1:]...)
			return plan, true
		}
	}
	return Plan{}, false
}

// manage 对单个持仓推进保护位：TP1 触及后把止损推到入场价（保本），
// 同时按入场距离挂移动偏移，之后止损只随行情收紧。
func (m *Monitor) manage(ctx context.Context, p tradelocker.Position) {
	m.mu.Lock()
	tr, ok := m.tracks[p.ID]
	if !ok || !tr.hasPlan || tr.trailing {
		m.mu.Unlock()
		return
	}
	if m.now().Sub(tr.lastUpdate) < m.cooldown {
		m.mu.Unlock()
		return
	}
	tr.lastUpdate = m.now()
	plan := tr.plan
	m.mu.Unlock()

	quote, err := m.broker.GetQuote(ctx, p.RouteID, p.TradableInstrumentID)
	if err != nil {
		logger.Warnf("[monitor] 持仓 %s 拉取报价失败: %v", p.ID, err)
		return
	}
	price := quote.PriceFor(p.Side)
	if !tp1Hit(p.Side, price, plan.TakeProfit) {
		return
	}

	entry := p.AvgPrice
	if entry.LessThanOrEqual(decimal.Zero) {
		entry = plan.Entry
	}
	// 保本位必须比现有止损更紧，否则宁可不动。
	if plan.StopLoss.IsPositive() && !tightens(p.Side, entry, plan.StopLoss) {
		return
	}

	offset := trailingPoints(plan.Instrument, price.Sub(entry).Abs())
	patch := tradelocker.PositionPatch{StopLoss: &entry}
	if offset.IsPositive() {
		patch.TrailingOffset = &offset
	}
	if err := m.broker.ModifyPosition(ctx, p.ID, patch); err != nil {
		logger.Errorf("[monitor] 持仓 %s 移动止损失败: %v", p.ID, err)
		return
	}

	m.mu.Lock()
	tr.trailing = true
	m.mu.Unlock()
	logger.Infof("[monitor] 持仓 %s (%s) 触及 TP1=%s, 止损推至保本 %s, 移动偏移 %s 点",
		p.ID, plan.Instrument, plan.TakeProfit, entry, offset)
}

func tp1Hit(side string, price, tp decimal.Decimal) bool {
	if side == "sell" {
		return price.LessThanOrEqual(tp)
	}
	return price.GreaterThanOrEqual(tp)
}

// tightens 判断 candidate 是否比 existing 更靠近行情的安全侧。
func tightens(side string, candidate, existing decimal.Decimal) bool {
	if side == "sell" {
		return candidate.LessThan(existing)
	}
	return candidate.GreaterThan(existing)
}
