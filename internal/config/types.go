package config

// Config 是 tlbot 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Broker    BrokerConfig    `toml:"broker"`
	Risk      RiskConfig      `toml:"risk"`
	Drawdown  DrawdownConfig  `toml:"drawdown"`
	News      NewsConfig      `toml:"news"`
	Monitor   MonitorConfig   `toml:"monitor"`
	RateLimit RateLimitConfig `toml:"ratelimit"`
	Store     StoreConfig     `toml:"store"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	AuditLog string `toml:"audit_log_path"`
	HTTPAddr string `toml:"http_addr"`
}

// BrokerConfig 描述 TradeLocker 风格经纪商的访问方式。
type BrokerConfig struct {
	BaseURL            string `toml:"base_url"`
	Email              string `toml:"email"`
	Password           string `toml:"password"`
	Server             string `toml:"server"`
	AccountID          int64  `toml:"account_id"`
	AccNum             int    `toml:"acc_num"`
	TimeoutSeconds     int    `toml:"timeout_seconds"`
	HistoryMaxRows     int    `toml:"history_max_rows"` // 单次历史查询返回的最大行数
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// RiskConfig 控制头寸风险占比。reduced 档对应信号标注的小仓位模式。
type RiskConfig struct {
	Fraction        float64 `toml:"fraction"`         // 0~0.1, e.g. 0.01 for 1%
	ReducedFraction float64 `toml:"reduced_fraction"` // used when a signal is flagged reduced-risk
	AccountCurrency string  `toml:"account_currency"` // quote-currency conversions target this
	SettingsPath    string  `toml:"settings_path"`    // optional hot-reloadable overrides file
}

type DrawdownConfig struct {
	DailyLimitPct float64 `toml:"daily_limit_pct"` // e.g. 0.05 for 5%
	ResetHour     int     `toml:"reset_hour"`      // broker trading-day boundary, local to Timezone
	Timezone      string  `toml:"timezone"`
}

type NewsConfig struct {
	Enabled       bool   `toml:"enabled"`
	WindowMinutes int    `toml:"window_minutes"` // blackout half-width around high-impact events
	CalendarURL   string `toml:"calendar_url"`
	CachePath     string `toml:"cache_path"`
	RefreshHours  int    `toml:"refresh_hours"`
}

type MonitorConfig struct {
	PollSeconds     int `toml:"poll_seconds"`
	CooldownSeconds int `toml:"cooldown_seconds"` // min seconds between SL updates per position
}

// RateLimitRule 是在经纪商配置拉取失败时使用的本地兜底限流规则。
type RateLimitRule struct {
	Category    string `toml:"category"`
	Measure     string `toml:"measure"` // "seconds" | "minutes"
	IntervalNum int    `toml:"interval_num"`
	Limit       int    `toml:"limit"`
}

type RateLimitConfig struct {
	Rules []RateLimitRule `toml:"rules"`
}

type StoreConfig struct {
	Path      string `toml:"path"`
	AuditPath string `toml:"audit_path"` // append-only decision audit database
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}
