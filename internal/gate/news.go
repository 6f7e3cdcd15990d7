package gate

import (
	"fmt"
	"strings"
	"time"

	"tlbot/internal/calendar"
	"tlbot/internal/config"
	"tlbot/internal/logger"
	"tlbot/internal/signal"
)

// CalendarProvider 提供当前生效的日历快照。
type CalendarProvider interface {
	Current() *calendar.Calendar
}

// NewsGate 实现高影响新闻禁入窗口：事件前后各 window 的时段内拒单。
// 多个事件的窗口取并集，任一命中即拒。
type NewsGate struct {
	enabled  bool
	window   time.Duration
	provider CalendarProvider
}

func NewNewsGate(cfg config.NewsConfig, provider CalendarProvider) *NewsGate {
	window := time.Duration(cfg.WindowMinutes) * time.Minute
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &NewsGate{enabled: cfg.Enabled, window: window, provider: provider}
}

// Check 判定 now 时刻该信号是否处于任何高影响事件的禁入窗口内。
func (g *NewsGate) Check(sig signal.Signal, now time.Time) Decision {
	if !g.enabled {
		return Allow("新闻过滤未启用")
	}
	cal := g.provider.Current()
	if cal == nil || len(cal.Events()) == 0 {
		logger.Warnf("newsgate: 日历为空，放行信号 %s", sig.ID)
		return Allow("无已加载的日历事件")
	}

	currencies := InstrumentCurrencies(sig.Instrument)
	hits := cal.HighImpactFor(currencies, now.Add(-g.window), now.Add(g.window))
	if len(hits) == 0 {
		return Allow("窗口内无高影响事件")
	}
	ev := hits[0]
	return Deny(fmt.Sprintf("高影响 %s 事件 %q (%s) 处于 ±%s 禁入窗口",
		ev.Currency, ev.Title, ev.Time.UTC().Format("15:04"), g.window))
}

// InstrumentCurrencies 从品种名提取受影响的货币。
// 六位外汇对拆成基准与计价货币；黄金白银和美指只看 USD。
func InstrumentCurrencies(instrument string) []string {
	name := strings.ToUpper(strings.TrimSpace(instrument))
	switch name {
	case "XAUUSD", "XAGUSD", "DJI30", "NDX100":
		return []string{"USD"}
	}
	if len(name) == 6 && isAlpha(name) {
		return []string{name[:3], name[3:]}
	}
	return []string{name}
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
