package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tlbot/internal/broker/tradelocker"
	"tlbot/internal/config"
)

type MockBroker struct {
	mock.Mock
}

func (m *MockBroker) GetPositions(ctx context.Context) ([]tradelocker.Position, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]tradelocker.Position), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBroker) GetQuote(ctx context.Context, routeID, tradableInstrumentID int64) (tradelocker.Quote, error) {
	args := m.Called(ctx, routeID, tradableInstrumentID)
	return args.Get(0).(tradelocker.Quote), args.Error(1)
}

func (m *MockBroker) ModifyPosition(ctx context.Context, positionID string, patch tradelocker.PositionPatch) error {
	args := m.Called(ctx, positionID, patch)
	return args.Error(0)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func eurusdPosition(id string, pnl string) tradelocker.Position {
	return tradelocker.Position{
		ID:                   id,
		TradableInstrumentID: 278,
		RouteID:              901,
		Side:                 "buy",
		Qty:                  d("20000"),
		AvgPrice:             d("1.0850"),
		UnrealizedPl:         d(pnl),
	}
}

func eurusdPlan() Plan {
	return Plan{
		Instrument:           "EURUSD",
		TradableInstrumentID: 278,
		Side:                 "buy",
		Entry:                d("1.0850"),
		StopLoss:             d("1.0800"),
		TakeProfit:           d("1.0900"),
	}
}

type closureCollector struct {
	events []ClosureEvent
}

func (c *closureCollector) PositionClosed(_ context.Context, ev ClosureEvent) {
	c.events = append(c.events, ev)
}

func newMonitor(broker Broker, sink ClosureSink) (*Monitor, *time.Time) {
	m := New(config.MonitorConfig{PollSeconds: 3, CooldownSeconds: 30}, broker, sink)
	clock := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, &clock
}

func TestCycleEmitsExactlyOneClosureEvent(t *testing.T) {
	broker := &MockBroker{}
	sink := &closureCollector{}
	m, _ := newMonitor(broker, sink)

	// 第一周期建立基线，无事件。
	broker.On("GetPositions", mock.Anything).Return([]tradelocker.Position{eurusdPosition("p1", "12.5")}, nil).Once()
	require.NoError(t, m.Cycle(context.Background()))
	assert.Empty(t, sink.events)

	// 持仓消失，恰好一个事件，盈亏取最后一次观测值。
	broker.On("GetPositions", mock.Anything).Return([]tradelocker.Position{}, nil)
	require.NoError(t, m.Cycle(context.Background()))
	require.Len(t, sink.events, 1)
	assert.Equal(t, "p1", sink.events[0].PositionID)
	assert.True(t, sink.events[0].FinalPnL.Equal(d("12.5")))

	// 后续周期不重复发。
	require.NoError(t, m.Cycle(context.Background()))
	assert.Len(t, sink.events, 1)
}

func TestFirstCycleDisappearanceIsSilent(t *testing.T) {
	broker := &MockBroker{}
	sink := &closureCollector{}
	m, _ := newMonitor(broker, sink)

	// 重启后第一轮看到空快照不能把历史持仓当成刚刚平仓。
	broker.On("GetPositions", mock.Anything).Return([]tradelocker.Position{}, nil)
	require.NoError(t, m.Cycle(context.Background()))
	require.NoError(t, m.Cycle(context.Background()))
	assert.Empty(t, sink.events)
}

func TestTakeProfitHitMovesStopToBreakeven(t *testing.T) {
	broker := &MockBroker{}
	m, clock := newMonitor(broker, &closureCollector{})
	m.RegisterPlan(eurusdPlan())

	pos := eurusdPosition("p1", "0")
	broker.On("GetPositions", mock.Anything).Return([]tradelocker.Position{pos}, nil)
	// 买方向用 bid 估值；bid 越过 TP1。
	broker.On("GetQuote", mock.Anything, int64(901), int64(278)).
		Return(tradelocker.Quote{Ask: d("1.0907"), Bid: d("1.0905")}, nil)
	broker.On("ModifyPosition", mock.Anything, "p1", mock.MatchedBy(func(patch tradelocker.PositionPatch) bool {
		// 止损推到入场价，偏移 = (1.0905-1.0850)*10000 = 55 点。
		return patch.StopLoss != nil && patch.StopLoss.Equal(d("1.0850")) &&
			patch.TrailingOffset != nil && patch.TrailingOffset.Equal(d("55"))
	})).Return(nil).Once()

	require.NoError(t, m.Cycle(context.Background()))

	// 激活后不再重复修改，即使冷却期已过。
	*clock = clock.Add(5 * time.Minute)
	require.NoError(t, m.Cycle(context.Background()))
	broker.AssertNumberOfCalls(t, "ModifyPosition", 1)
}

func TestQuoteBelowTakeProfitLeavesStopAlone(t *testing.T) {
	broker := &MockBroker{}
	m, clock := newMonitor(broker, &closureCollector{})
	m.RegisterPlan(eurusdPlan())

	broker.On("GetPositions", mock.Anything).Return([]tradelocker.Position{eurusdPosition("p1", "0")}, nil)
	broker.On("GetQuote", mock.Anything, int64(901), int64(278)).
		Return(tradelocker.Quote{Ask: d("1.0872"), Bid: d("1.0870")}, nil)

	require.NoError(t, m.Cycle(context.Background()))
	*clock = clock.Add(time.Minute)
	require.NoError(t, m.Cycle(context.Background()))

	broker.AssertNotCalled(t, "ModifyPosition", mock.Anything, mock.Anything, mock.Anything)
	broker.AssertNumberOfCalls(t, "GetQuote", 2)
}

func TestCooldownThrottlesQuotePolling(t *testing.T) {
	broker := &MockBroker{}
	m, clock := newMonitor(broker, &closureCollector{})
	m.RegisterPlan(eurusdPlan())

	broker.On("GetPositions", mock.Anything).Return([]tradelocker.Position{eurusdPosition("p1", "0")}, nil)
	broker.On("GetQuote", mock.Anything, int64(901), int64(278)).
		Return(tradelocker.Quote{Ask: d("1.0862"), Bid: d("1.0860")}, nil)

	require.NoError(t, m.Cycle(context.Background()))
	// 冷却期内的周期跳过报价。
	*clock = clock.Add(10 * time.Second)
	require.NoError(t, m.Cycle(context.Background()))
	broker.AssertNumberOfCalls(t, "GetQuote", 1)

	*clock = clock.Add(time.Minute)
	require.NoError(t, m.Cycle(context.Background()))
	broker.AssertNumberOfCalls(t, "GetQuote", 2)
}

func TestUnplannedPositionStillProducesClosure(t *testing.T) {
	broker := &MockBroker{}
	sink := &closureCollector{}
	m, _ := newMonitor(broker, sink)

	// 没有登记计划的持仓（例如重启前下的单）：不做移动止损，但平仓照常上报。
	broker.On("GetPositions", mock.Anything).Return([]tradelocker.Position{eurusdPosition("p9", "-7")}, nil).Once()
	require.NoError(t, m.Cycle(context.Background()))
	broker.AssertNotCalled(t, "GetQuote", mock.Anything, mock.Anything, mock.Anything)

	broker.On("GetPositions", mock.Anything).Return([]tradelocker.Position{}, nil)
	require.NoError(t, m.Cycle(context.Background()))
	require.Len(t, sink.events, 1)
	assert.True(t, sink.events[0].FinalPnL.Equal(d("-7")))
	assert.Equal(t, "tid:278", sink.events[0].Instrument)
}

func TestTrailingPoints(t *testing.T) {
	cases := []struct {
		instrument string
		distance   string
		want       string
	}{
		{"EURUSD", "0.0055", "55"},
		{"USDJPY", "0.50", "50"},
		{"XAUUSD", "25", "2500"},
		{"NDX100", "30", "30"},
		{"BTCUSD", "120", "120"},
	}
	for _, tc := range cases {
		t.Run(tc.instrument, func(t *testing.T) {
			got := trailingPoints(tc.instrument, d(tc.distance))
			assert.True(t, got.Equal(d(tc.want)), "got %s", got)
		})
	}
}
