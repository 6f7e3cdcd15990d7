package risk

import (
	"strings"

	"github.com/shopspring/decimal"
)

type InstrumentKind string

const (
	KindForex InstrumentKind = "FOREX"
	KindCFD   InstrumentKind = "EQUITY_CFD"
)

// InstrumentSpec 描述定量所需的品种参数。外汇数量以货币单位计，
// 指数/贵金属 CFD 以手计。
type InstrumentSpec struct {
	Name         string
	Kind         InstrumentKind
	PointValue   decimal.Decimal // 每单位数量每 1.0 价格点的亏损额
	MinIncrement decimal.Decimal
}

// 指数与黄金的每手点值，经纪商合约规格。
var cfdSpecs = map[string]InstrumentSpec{
	"NDX100": {Name: "NDX100", Kind: KindCFD, PointValue: decimal.NewFromInt(20), MinIncrement: decimal.RequireFromString("0.01")},
	"DJI30":  {Name: "DJI30", Kind: KindCFD, PointValue: decimal.NewFromInt(5), MinIncrement: decimal.RequireFromString("0.01")},
	"XAUUSD": {Name: "XAUUSD", Kind: KindCFD, PointValue: decimal.NewFromInt(100), MinIncrement: decimal.RequireFromString("0.01")},
}

// SpecFor 返回品种的定量参数。未登记的名称一律按外汇处理：
// 点值 1（数量即货币单位），最小增量 1000（0.01 标准手）。
func SpecFor(name string) InstrumentSpec {
	key := strings.ToUpper(strings.TrimSpace(name))
	if spec, ok := cfdSpecs[key]; ok {
		return spec
	}
	return InstrumentSpec{
		Name:         key,
		Kind:         KindForex,
		PointValue:   decimal.NewFromInt(1),
		MinIncrement: decimal.NewFromInt(1000),
	}
}

// BaseCurrency 返回货币对的基础货币。CFD 与无法拆分的名称返回品种名本身。
func BaseCurrency(name string) string {
	key := strings.ToUpper(strings.TrimSpace(name))
	if _, ok := cfdSpecs[key]; ok {
		return key
	}
	if len(key) == 6 {
		return key[:3]
	}
	return key
}

// QuoteCurrency 返回品种的计价货币：货币对取后三位，CFD 一律美元计价。
// 单位亏损以计价货币表示，账户货币不同时需要换算。
func QuoteCurrency(name string) string {
	key := strings.ToUpper(strings.TrimSpace(name))
	if _, ok := cfdSpecs[key]; ok {
		return "USD"
	}
	if len(key) == 6 {
		return key[3:]
	}
	return "USD"
}

// PipSize 返回品种的一个点的价格跨度：JPY 对 0.01，其他外汇 0.0001，
// CFD 类 1.0。监控回路换算移动止损偏移时使用。
func PipSize(name string) decimal.Decimal {
	key := strings.ToUpper(strings.TrimSpace(name))
	if _, ok := cfdSpecs[key]; ok {
		return decimal.NewFromInt(1)
	}
	if strings.HasSuffix(key, "JPY") {
		return decimal.RequireFromString("0.01")
	}
	return decimal.RequireFromString("0.0001")
}

// StopDistancePips 把入场-止损距离换算成点数。
func StopDistancePips(name string, entry, stop decimal.Decimal) decimal.Decimal {
	return entry.Sub(stop).Abs().Div(PipSize(name))
}
