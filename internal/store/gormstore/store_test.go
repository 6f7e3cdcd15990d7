package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlbot/internal/gate"
	"tlbot/internal/monitor"
	"tlbot/internal/pipeline"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDayRecordRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.LoadDay("2026-03-02")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := gate.DayRecord{
		DayKey:         "2026-03-02",
		StartingEquity: decimal.RequireFromString("10000"),
		RealizedLoss:   decimal.RequireFromString("123.45"),
	}
	require.NoError(t, s.SaveDay(rec))

	// 破限标记通过 upsert 覆盖并在重新加载后保留。
	rec.Breached = true
	require.NoError(t, s.SaveDay(rec))

	got, ok, err := s.LoadDay("2026-03-02")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Breached)
	assert.True(t, got.StartingEquity.Equal(rec.StartingEquity))
	assert.True(t, got.RealizedLoss.Equal(rec.RealizedLoss))
}

func TestRecordOutcomeAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.Record(ctx, pipeline.Outcome{
		SignalID:   "sig-1",
		TraceID:    "trace-1",
		Instrument: "EURUSD",
		Side:       "buy",
		State:      pipeline.StateRejected,
		Reason:     "高影响 USD 事件处于禁入窗口",
		Warnings:   []string{"日历已过期"},
		FinishedAt: time.Now(),
	})

	rows, err := s.ListOutcomes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "EURUSD", rows[0].Instrument)
	assert.Equal(t, string(pipeline.StateRejected), rows[0].State)
	assert.Contains(t, string(rows[0].Warnings), "日历已过期")
}

func TestPositionClosedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := monitor.ClosureEvent{
		PositionID: "p1",
		Instrument: "XAUUSD",
		FinalPnL:   decimal.RequireFromString("-42.5"),
		CloseTime:  time.Now(),
	}
	s.PositionClosed(ctx, ev)
	s.PositionClosed(ctx, ev)

	rows, err := s.ListClosures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "-42.5", rows[0].FinalPnL)
}
