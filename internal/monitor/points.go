package monitor

import (
	"strings"

	"github.com/shopspring/decimal"
)

var indexNames = []string{
	"DJI30", "DOW", "US30", "NDX100", "NAS100", "NASDAQ",
	"SPX500", "SP500", "GER30", "DAX", "UK100", "FTSE",
	"JPN225", "NIKKEI", "AUS200", "HK50",
}

var metalNames = []string{"XAUUSD", "GOLD", "XAU", "XAGUSD", "SILVER", "XAG"}

var cryptoNames = []string{"BTC", "ETH", "LTC", "XRP", "ADA", "SOL"}

// trailingPoints 把价格距离换算成经纪商 trailingOffset 要求的点数。
// 指数与加密 1:1，金银和 JPY 对 ×100，其余外汇对 ×10000。
func trailingPoints(instrument string, distance decimal.Decimal) decimal.Decimal {
	name := strings.ToUpper(instrument)
	scale := decimal.NewFromInt(10000)
	switch {
	case containsAny(name, indexNames), containsAny(name, cryptoNames):
		scale = decimal.NewFromInt(1)
	case containsAny(name, metalNames), strings.HasSuffix(name, "JPY"):
		scale = decimal.NewFromInt(100)
	}
	return distance.Mul(scale).Floor()
}

func containsAny(name string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}
