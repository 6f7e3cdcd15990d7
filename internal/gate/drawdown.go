package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tlbot/internal/broker/tradelocker"
	"tlbot/internal/config"
	"tlbot/internal/logger"
)

// DayRecord 是单个交易日的回撤账目。由 DrawdownGate 独占写入。
type DayRecord struct {
	DayKey         string
	StartingEquity decimal.Decimal
	RealizedLoss   decimal.Decimal
	Breached       bool
}

// DayStore 持久化日记录，进程重启后当日的触发状态不丢失。
type DayStore interface {
	LoadDay(key string) (DayRecord, bool, error)
	SaveDay(rec DayRecord) error
}

// DrawdownGate 实现粘性的日内回撤上限：当日回撤一旦达到限额，
// 闸门整日关闭，权益回升也不重新放行。交易日边界按经纪商定义
// （默认纽约 17:00），不是自然日零点。
type DrawdownGate struct {
	mu        sync.Mutex
	limit     decimal.Decimal
	resetHour int
	loc       *time.Location
	store     DayStore

	current DayRecord
	loaded  bool
}

func NewDrawdownGate(cfg config.DrawdownConfig, store DayStore) (*DrawdownGate, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("drawdown: 无效时区 %q: %w", cfg.Timezone, err)
	}
	limit := decimal.NewFromFloat(cfg.DailyLimitPct)
	if !limit.IsPositive() {
		return nil, fmt.Errorf("drawdown: 日限额 %s 必须为正", limit)
	}
	return &DrawdownGate{
		limit:     limit,
		resetHour: cfg.ResetHour,
		loc:       loc,
		store:     store,
	}, nil
}

// Check 用一份账户快照裁定当前信号。整个读-判-写在锁内完成，
// 两个并发信号不可能都看到未触发状态而双双放行。
func (g *DrawdownGate) Check(state tradelocker.AccountState, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := g.dayKey(now)
	if !g.loaded || g.current.DayKey != key {
		g.rollDay(key, state)
	}
	rec := &g.current

	if rec.Breached {
		return Deny(fmt.Sprintf("日内回撤已触发（交易日 %s），当日停止开仓", rec.DayKey))
	}

	equity := state.Equity()
	if loss := rec.StartingEquity.Sub(equity); loss.GreaterThan(rec.RealizedLoss) {
		rec.RealizedLoss = loss
	}
	if !rec.StartingEquity.IsPositive() {
		return Deny("起始权益非正数，拒绝开仓")
	}

	drop := rec.StartingEquity.Sub(equity).Div(rec.StartingEquity)
	if drop.GreaterThanOrEqual(g.limit) {
		rec.Breached = true
		g.persist()
		logger.Warnf("drawdown: 触发日内上限 %s，起始权益 %s 当前权益 %s", g.limit, rec.StartingEquity, equity)
		return Deny(fmt.Sprintf("日内回撤 %s 达到上限 %s", drop.Round(4), g.limit))
	}
	g.persist()
	return Allow(fmt.Sprintf("日内回撤 %s 低于上限 %s", drop.Round(4), g.limit))
}

// Breached 报告当前交易日是否已触发上限，供对外状态接口使用。
func (g *DrawdownGate) Breached(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loaded && g.current.DayKey == g.dayKey(now) && g.current.Breached
}

// Snapshot 返回当前日记录的副本。
func (g *DrawdownGate) Snapshot() (DayRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current, g.loaded
}

// rollDay 切换到新交易日：优先恢复持久化记录（重启场景），
// 否则用当前权益初始化。
func (g *DrawdownGate) rollDay(key string, state tradelocker.AccountState) {
	if g.store != nil {
		if rec, ok, err := g.store.LoadDay(key); err != nil {
			logger.Warnf("drawdown: 读取日记录失败: %v", err)
		} else if ok {
			g.current = rec
			g.loaded = true
			return
		}
	}
	g.current = DayRecord{
		DayKey:         key,
		StartingEquity: state.Equity(),
	}
	g.loaded = true
	logger.Infof("drawdown: 新交易日 %s，起始权益 %s", key, g.current.StartingEquity)
	g.persist()
}

func (g *DrawdownGate) persist() {
	if g.store == nil {
		return
	}
	if err := g.store.SaveDay(g.current); err != nil {
		logger.Warnf("drawdown: 保存日记录失败: %v", err)
	}
}

// dayKey 把时刻映射到所属交易日。交易日在 resetHour 翻转，
// 以翻转后进入的自然日命名。
func (g *DrawdownGate) dayKey(now time.Time) string {
	local := now.In(g.loc)
	shifted := local.Add(time.Duration(24-g.resetHour) * time.Hour)
	return shifted.Format("2006-01-02")
}
