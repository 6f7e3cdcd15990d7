package config

// Rate-limit defaults mirror the broker's published per-category quotas. They
// only apply until the live /trade/config document has been fetched.
var fallbackRateLimitRules = []RateLimitRule{
	{Category: "AUTH", Measure: "seconds", IntervalNum: 10, Limit: 5},
	{Category: "TRADE_CONFIG", Measure: "minutes", IntervalNum: 1, Limit: 10},
	{Category: "GET_ORDERS", Measure: "seconds", IntervalNum: 1, Limit: 5},
	{Category: "GET_ORDERS_HISTORY", Measure: "minutes", IntervalNum: 1, Limit: 30},
	{Category: "GET_POSITIONS", Measure: "seconds", IntervalNum: 1, Limit: 5},
	{Category: "GET_ACCOUNT_STATE", Measure: "seconds", IntervalNum: 1, Limit: 5},
	{Category: "PLACE_ORDER", Measure: "seconds", IntervalNum: 1, Limit: 2},
	{Category: "MODIFY_ORDER", Measure: "seconds", IntervalNum: 1, Limit: 2},
	{Category: "CLOSE_POSITION", Measure: "seconds", IntervalNum: 1, Limit: 2},
	{Category: "QUOTES", Measure: "seconds", IntervalNum: 1, Limit: 10},
	{Category: "QUOTES_HISTORY", Measure: "minutes", IntervalNum: 1, Limit: 30},
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.Env == "" {
		c.App.Env = "live"
	}
	if c.Broker.TimeoutSeconds <= 0 {
		c.Broker.TimeoutSeconds = 10
	}
	if c.Broker.HistoryMaxRows <= 0 {
		c.Broker.HistoryMaxRows = 500
	}
	if c.Risk.Fraction <= 0 {
		c.Risk.Fraction = 0.01
	}
	if c.Risk.ReducedFraction <= 0 {
		c.Risk.ReducedFraction = c.Risk.Fraction / 2
	}
	if c.Risk.AccountCurrency == "" {
		c.Risk.AccountCurrency = "USD"
	}
	if c.Drawdown.DailyLimitPct <= 0 {
		c.Drawdown.DailyLimitPct = 0.04
	}
	if c.Drawdown.ResetHour == 0 {
		c.Drawdown.ResetHour = 17
	}
	if c.Drawdown.Timezone == "" {
		c.Drawdown.Timezone = "America/New_York"
	}
	if c.News.WindowMinutes <= 0 {
		// 合规窗口的修订值在 5 与 30 分钟之间变动过，取更严格的一档。
		c.News.WindowMinutes = 30
	}
	if c.News.CalendarURL == "" {
		c.News.CalendarURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.csv"
	}
	if c.News.CachePath == "" {
		c.News.CachePath = "data/economic_events.csv"
	}
	if c.News.RefreshHours <= 0 {
		c.News.RefreshHours = 6
	}
	if c.Monitor.PollSeconds <= 0 {
		c.Monitor.PollSeconds = 5
	}
	if c.Monitor.CooldownSeconds <= 0 {
		c.Monitor.CooldownSeconds = 30
	}
	if len(c.RateLimit.Rules) == 0 {
		c.RateLimit.Rules = append([]RateLimitRule(nil), fallbackRateLimitRules...)
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/tlbot.db"
	}
	if c.Store.AuditPath == "" {
		c.Store.AuditPath = "data/audit.db"
	}
}
