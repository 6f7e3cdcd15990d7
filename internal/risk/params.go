package risk

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"tlbot/internal/config"
)

// Params 持有当前生效的风险比例，支持运行期热更新。
type Params struct {
	mu       sync.RWMutex
	fraction decimal.Decimal
	reduced  decimal.Decimal
	currency string
}

func NewParams(cfg config.RiskConfig) *Params {
	currency := strings.ToUpper(strings.TrimSpace(cfg.AccountCurrency))
	if currency == "" {
		currency = "USD"
	}
	return &Params{
		fraction: decimal.NewFromFloat(cfg.Fraction),
		reduced:  decimal.NewFromFloat(cfg.ReducedFraction),
		currency: currency,
	}
}

// AccountCurrency 返回账户计价货币。热更新只覆盖比例，不改货币。
func (p *Params) AccountCurrency() string {
	return p.currency
}

// FractionFor 返回信号适用的风险比例。reduced 对应信号标注的小仓位模式。
func (p *Params) FractionFor(reduced bool) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if reduced {
		return p.reduced
	}
	return p.fraction
}

// Apply 应用热更新后的参数文件内容。
func (p *Params) Apply(ov config.RiskOverrides) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fraction = decimal.NewFromFloat(ov.Fraction)
	p.reduced = decimal.NewFromFloat(ov.ReducedFraction)
}
