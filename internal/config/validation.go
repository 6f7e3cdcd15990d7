package config

import (
	"fmt"
	"strings"
	"time"
)

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Broker.BaseURL) == "" {
		return fmt.Errorf("broker.base_url 不能为空")
	}
	if strings.TrimSpace(cfg.Broker.Email) == "" || strings.TrimSpace(cfg.Broker.Password) == "" {
		return fmt.Errorf("broker.email / broker.password 不能为空")
	}
	if cfg.Broker.AccountID <= 0 {
		return fmt.Errorf("broker.account_id 必须为正数")
	}
	if cfg.Broker.AccNum <= 0 {
		return fmt.Errorf("broker.acc_num 必须为正数")
	}
	if cfg.Risk.Fraction <= 0 || cfg.Risk.Fraction > 0.1 {
		return fmt.Errorf("risk.fraction 必须位于 (0, 0.1]，当前=%v", cfg.Risk.Fraction)
	}
	if cfg.Risk.ReducedFraction > cfg.Risk.Fraction {
		return fmt.Errorf("risk.reduced_fraction 不能高于 risk.fraction")
	}
	if cfg.Drawdown.DailyLimitPct <= 0 || cfg.Drawdown.DailyLimitPct >= 1 {
		return fmt.Errorf("drawdown.daily_limit_pct 必须位于 (0, 1)，当前=%v", cfg.Drawdown.DailyLimitPct)
	}
	if cfg.Drawdown.ResetHour < 0 || cfg.Drawdown.ResetHour > 23 {
		return fmt.Errorf("drawdown.reset_hour 必须位于 [0, 23]")
	}
	if _, err := time.LoadLocation(cfg.Drawdown.Timezone); err != nil {
		return fmt.Errorf("drawdown.timezone 无效: %w", err)
	}
	for i, rule := range cfg.RateLimit.Rules {
		if err := validateRateLimitRule(rule); err != nil {
			return fmt.Errorf("ratelimit.rules[%d]: %w", i, err)
		}
	}
	seen := make(map[string]bool, len(cfg.RateLimit.Rules))
	for _, rule := range cfg.RateLimit.Rules {
		key := strings.ToUpper(rule.Category)
		if seen[key] {
			return fmt.Errorf("ratelimit.rules: 类别 %s 重复", rule.Category)
		}
		seen[key] = true
	}
	return nil
}

func validateRateLimitRule(rule RateLimitRule) error {
	if strings.TrimSpace(rule.Category) == "" {
		return fmt.Errorf("category 不能为空")
	}
	switch strings.ToLower(rule.Measure) {
	case "seconds", "minutes":
	default:
		return fmt.Errorf("measure 仅支持 seconds/minutes，当前=%q", rule.Measure)
	}
	if rule.IntervalNum <= 0 {
		return fmt.Errorf("interval_num 必须为正数")
	}
	if rule.Limit <= 0 {
		return fmt.Errorf("limit 必须为正数")
	}
	return nil
}
