package gate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tlbot/internal/calendar"
	"tlbot/internal/config"
	"tlbot/internal/signal"
)

func newsFixture(windowMinutes int) (*NewsGate, signal.Signal) {
	cal := calendar.New([]calendar.Event{
		{Title: "FOMC Statement", Currency: "USD", Impact: calendar.ImpactHigh,
			Time: time.Date(2024, 7, 5, 14, 30, 0, 0, time.UTC)},
		{Title: "CPI y/y", Currency: "EUR", Impact: calendar.ImpactLow,
			Time: time.Date(2024, 7, 5, 14, 0, 0, 0, time.UTC)},
	})
	g := NewNewsGate(config.NewsConfig{Enabled: true, WindowMinutes: windowMinutes}, calendar.NewStore(cal))
	return g, signal.Signal{ID: "s-1", Instrument: "EURUSD", Side: signal.SideBuy}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 7, 5, hour, minute, 0, 0, time.UTC)
}

func TestNewsGateBlackoutWindow(t *testing.T) {
	g, sig := newsFixture(30)

	// 事件 14:30，窗口 ±30 分钟。
	assert.False(t, g.Check(sig, at(14, 10)).Allowed)
	assert.False(t, g.Check(sig, at(14, 45)).Allowed)
	assert.True(t, g.Check(sig, at(13, 55)).Allowed)
	assert.True(t, g.Check(sig, at(15, 5)).Allowed)
}

func TestNewsGateDenyCarriesReason(t *testing.T) {
	g, sig := newsFixture(30)
	d := g.Check(sig, at(14, 30))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "FOMC Statement")
	assert.Contains(t, d.Reason, "USD")
}

func TestNewsGateWindowIsConfigurable(t *testing.T) {
	g, sig := newsFixture(5)
	// 窗口缩到 ±5 分钟后，14:10 不再命中。
	assert.True(t, g.Check(sig, at(14, 10)).Allowed)
	assert.False(t, g.Check(sig, at(14, 28)).Allowed)
}

func TestNewsGateLowImpactIgnored(t *testing.T) {
	g, sig := newsFixture(30)
	// 14:00 的 EUR 事件是低影响，13:50 只受它覆盖，应放行。
	assert.True(t, g.Check(sig, at(13, 35)).Allowed)
}

func TestNewsGateScopeAllHitsEveryInstrument(t *testing.T) {
	cal := calendar.New([]calendar.Event{
		{Title: "Bank Holiday", Currency: "ALL", Impact: calendar.ImpactHigh,
			Time: time.Date(2024, 7, 5, 14, 30, 0, 0, time.UTC)},
	})
	g := NewNewsGate(config.NewsConfig{Enabled: true, WindowMinutes: 30}, calendar.NewStore(cal))
	sig := signal.Signal{ID: "s-2", Instrument: "GBPJPY", Side: signal.SideSell}
	assert.False(t, g.Check(sig, at(14, 20)).Allowed)
}

func TestNewsGateDisabledAlwaysAllows(t *testing.T) {
	cal := calendar.New(nil)
	g := NewNewsGate(config.NewsConfig{Enabled: false, WindowMinutes: 30}, calendar.NewStore(cal))
	sig := signal.Signal{ID: "s-3", Instrument: "EURUSD"}
	assert.True(t, g.Check(sig, at(14, 30)).Allowed)
}

func TestInstrumentCurrencies(t *testing.T) {
	assert.Equal(t, []string{"EUR", "USD"}, InstrumentCurrencies("EURUSD"))
	assert.Equal(t, []string{"USD"}, InstrumentCurrencies("XAUUSD"))
	assert.Equal(t, []string{"USD"}, InstrumentCurrencies("DJI30"))
	assert.Equal(t, []string{"USD"}, InstrumentCurrencies("NDX100"))
	assert.Equal(t, []string{"GBP", "JPY"}, InstrumentCurrencies("gbpjpy"))
}
