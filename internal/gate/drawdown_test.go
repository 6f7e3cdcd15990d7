package gate

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlbot/internal/broker/tradelocker"
	"tlbot/internal/config"
)

type memDayStore struct {
	mu   sync.Mutex
	days map[string]DayRecord
}

func newMemDayStore() *memDayStore {
	return &memDayStore{days: make(map[string]DayRecord)}
}

func (s *memDayStore) LoadDay(key string) (DayRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.days[key]
	return rec, ok, nil
}

func (s *memDayStore) SaveDay(rec DayRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[rec.DayKey] = rec
	return nil
}

func equityState(equity string) tradelocker.AccountState {
	return tradelocker.AccountState{ProjectedBalance: decimal.RequireFromString(equity)}
}

func newDrawdownGate(t *testing.T, store DayStore) *DrawdownGate {
	t.Helper()
	g, err := NewDrawdownGate(config.DrawdownConfig{
		DailyLimitPct: 0.05,
		ResetHour:     17,
		Timezone:      "America/New_York",
	}, store)
	require.NoError(t, err)
	return g
}

func TestDrawdownGateStickyBreach(t *testing.T) {
	g := newDrawdownGate(t, newMemDayStore())
	now := time.Date(2024, 7, 5, 12, 0, 0, 0, time.UTC)

	// 首次裁定以当前权益 10000 初始化当日起始权益。
	assert.True(t, g.Check(equityState("10000"), now).Allowed)

	// 回撤 4% 仍放行。
	assert.True(t, g.Check(equityState("9600"), now.Add(time.Hour)).Allowed)

	// 权益跌到 9500，回撤达到 5%，拒绝。
	d := g.Check(equityState("9500"), now.Add(2*time.Hour))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "回撤")

	// 粘性：权益回升到 9800 当日依旧拒绝。
	assert.False(t, g.Check(equityState("9800"), now.Add(3*time.Hour)).Allowed)
	assert.True(t, g.Breached(now.Add(3*time.Hour)))
}

func TestDrawdownGateResetsNextTradingDay(t *testing.T) {
	g := newDrawdownGate(t, newMemDayStore())
	now := time.Date(2024, 7, 5, 12, 0, 0, 0, time.UTC)

	assert.True(t, g.Check(equityState("10000"), now).Allowed)
	assert.False(t, g.Check(equityState("9400"), now.Add(time.Hour)).Allowed)

	// 纽约 17:00 之后进入新交易日，闸门以新的起始权益重新放行。
	nextDay := time.Date(2024, 7, 5, 21, 30, 0, 0, time.UTC) // 17:30 America/New_York
	assert.True(t, g.Check(equityState("9400"), nextDay).Allowed)

	rec, ok := g.Snapshot()
	require.True(t, ok)
	assert.True(t, rec.StartingEquity.Equal(decimal.RequireFromString("9400")))
	assert.False(t, rec.Breached)
}

func TestDrawdownGateTradingDayBoundary(t *testing.T) {
	g := newDrawdownGate(t, newMemDayStore())

	// 纽约 16:59 与 17:01 分属两个交易日。
	before := time.Date(2024, 7, 5, 20, 59, 0, 0, time.UTC)
	after := time.Date(2024, 7, 5, 21, 1, 0, 0, time.UTC)
	assert.NotEqual(t, g.dayKey(before), g.dayKey(after))

	// 同一交易日内跨自然日零点不翻转。
	evening := time.Date(2024, 7, 5, 23, 0, 0, 0, time.UTC)  // 19:00 NY
	morning := time.Date(2024, 7, 6, 12, 0, 0, 0, time.UTC)  // 08:00 NY next day
	assert.Equal(t, g.dayKey(evening), g.dayKey(morning))
}

func TestDrawdownGateBreachSurvivesRestart(t *testing.T) {
	store := newMemDayStore()
	now := time.Date(2024, 7, 5, 12, 0, 0, 0, time.UTC)

	g1 := newDrawdownGate(t, store)
	assert.True(t, g1.Check(equityState("10000"), now).Allowed)
	assert.False(t, g1.Check(equityState("9500"), now.Add(time.Hour)).Allowed)

	// 重启：新实例从持久化记录恢复触发状态。
	g2 := newDrawdownGate(t, store)
	assert.False(t, g2.Check(equityState("10000"), now.Add(2*time.Hour)).Allowed)
}

func TestDrawdownGateConcurrentChecksAdmitConsistently(t *testing.T) {
	g := newDrawdownGate(t, newMemDayStore())
	now := time.Date(2024, 7, 5, 12, 0, 0, 0, time.UTC)
	require.True(t, g.Check(equityState("10000"), now).Allowed)

	// 两个并发信号都带着触线权益进入，最多一个在触发前被放行。
	var wg sync.WaitGroup
	denied := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			denied <- !g.Check(equityState("9500"), now.Add(time.Hour)).Allowed
		}()
	}
	wg.Wait()
	close(denied)
	for d := range denied {
		assert.True(t, d)
	}
}
