package tradelocker

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position 对应 positions 表的一行。字段标签与列标识一一对应。
type Position struct {
	ID                   string          `mapstructure:"id"`
	TradableInstrumentID int64           `mapstructure:"tradableInstrumentId"`
	RouteID              int64           `mapstructure:"routeId"`
	Side                 string          `mapstructure:"side"`
	Qty                  decimal.Decimal `mapstructure:"qty"`
	AvgPrice             decimal.Decimal `mapstructure:"avgPrice"`
	StopLossID           string          `mapstructure:"stopLossId"`
	TakeProfitID         string          `mapstructure:"takeProfitId"`
	OpenDate             time.Time       `mapstructure:"openDate"`
	UnrealizedPl         decimal.Decimal `mapstructure:"unrealizedPl"`
}

// Order 对应 orders / ordersHistory 表的一行。
type Order struct {
	ID                   string          `mapstructure:"id"`
	TradableInstrumentID int64           `mapstructure:"tradableInstrumentId"`
	RouteID              int64           `mapstructure:"routeId"`
	Qty                  decimal.Decimal `mapstructure:"qty"`
	Side                 string          `mapstructure:"side"`
	Type                 string          `mapstructure:"type"`
	Status               string          `mapstructure:"status"`
	FilledQty            decimal.Decimal `mapstructure:"filledQty"`
	AvgPrice             decimal.Decimal `mapstructure:"avgPrice"`
	Price                decimal.Decimal `mapstructure:"price"`
	StopPrice            decimal.Decimal `mapstructure:"stopPrice"`
	Validity             string          `mapstructure:"validity"`
	CreatedDate          time.Time       `mapstructure:"createdDate"`
	LastModified         time.Time       `mapstructure:"lastModified"`
	PositionID           string          `mapstructure:"positionId"`
	StopLoss             decimal.Decimal `mapstructure:"stopLoss"`
	TakeProfit           decimal.Decimal `mapstructure:"takeProfit"`
}

// FilledOrder 对应 filledOrders 表的一行。
type FilledOrder struct {
	ID                   string          `mapstructure:"id"`
	TradableInstrumentID int64           `mapstructure:"tradableInstrumentId"`
	RouteID              int64           `mapstructure:"routeId"`
	Qty                  decimal.Decimal `mapstructure:"qty"`
	Side                 string          `mapstructure:"side"`
	Type                 string          `mapstructure:"type"`
	FilledQty            decimal.Decimal `mapstructure:"filledQty"`
	AvgPrice             decimal.Decimal `mapstructure:"avgPrice"`
	PositionID           string          `mapstructure:"positionId"`
	FilledDate           time.Time       `mapstructure:"filledDate"`
}

// AccountState 对应 accountDetails 表（单行）。
type AccountState struct {
	Balance          decimal.Decimal `mapstructure:"balance"`
	ProjectedBalance decimal.Decimal `mapstructure:"projectedBalance"`
	AvailableFunds   decimal.Decimal `mapstructure:"availableFunds"`
	MarginUsed       decimal.Decimal `mapstructure:"marginUsed"`
	MarginAvailable  decimal.Decimal `mapstructure:"marginAvailable"`
	OpenNetPnL       decimal.Decimal `mapstructure:"openNetPnL"`
	TodayNet         decimal.Decimal `mapstructure:"todayNet"`
	TodayFees        decimal.Decimal `mapstructure:"todayFees"`
	PositionsCount   int64           `mapstructure:"positionsCount"`
	OrdersCount      int64           `mapstructure:"ordersCount"`
	FetchedAt        time.Time       `mapstructure:"-"`
}

// Equity 返回含浮动盈亏的权益，即回撤闸门使用的口径。
func (s AccountState) Equity() decimal.Decimal {
	return s.ProjectedBalance
}

// Instrument 描述可交易品种，来自 /trade/accounts/{id}/instruments。
type Instrument struct {
	Name                 string `json:"name"`
	TradableInstrumentID int64  `json:"tradableInstrumentId"`
	Routes               []struct {
		ID   int64  `json:"id"`
		Type string `json:"type"`
	} `json:"routes"`
}

// TradeRouteID 取下单路由（TRADE 优先，否则首个）。
func (i Instrument) TradeRouteID() int64 {
	for _, r := range i.Routes {
		if r.Type == "TRADE" {
			return r.ID
		}
	}
	if len(i.Routes) > 0 {
		return i.Routes[0].ID
	}
	return 0
}

// Quote 是 /trade/quotes 返回的即时报价。
type Quote struct {
	Ask decimal.Decimal
	Bid decimal.Decimal
}

// PriceFor returns the side-correct mark price: a long position is valued
// against the bid, a short against the ask.
func (q Quote) PriceFor(side string) decimal.Decimal {
	if side == "sell" {
		return q.Ask
	}
	return q.Bid
}

// Mid 返回买卖中间价，汇率换算用。
func (q Quote) Mid() decimal.Decimal {
	return q.Ask.Add(q.Bid).Div(decimal.NewFromInt(2))
}

// OrderIntent 是风险定量后的下单请求，仅存在于定量与提交之间。
type OrderIntent struct {
	Instrument           string
	TradableInstrumentID int64
	RouteID              int64
	Side                 string // "buy" | "sell"
	Type                 string // "market" | "limit" | "stop"
	Qty                  decimal.Decimal
	Price                decimal.Decimal // limit/stop 单必填
	StopPrice            decimal.Decimal // stop 单必填
	StopLoss             decimal.Decimal
	TakeProfit           decimal.Decimal
}

// payload 构造经纪商要求的下单 JSON。None 字段不发送。
func (o OrderIntent) payload() map[string]any {
	p := map[string]any{
		"qty":                  o.Qty.InexactFloat64(),
		"routeId":              o.RouteID,
		"side":                 o.Side,
		"tradableInstrumentId": o.TradableInstrumentID,
		"type":                 o.Type,
		"validity":             "IOC",
		"price":                0.0,
	}
	if o.Type == "limit" || o.Type == "stop" {
		p["validity"] = "GTC"
		p["price"] = o.Price.InexactFloat64()
	}
	if o.Type == "stop" {
		p["stopPrice"] = o.StopPrice.InexactFloat64()
	}
	if o.StopLoss.IsPositive() {
		p["stopLoss"] = o.StopLoss.InexactFloat64()
		p["stopLossType"] = "absolute"
	}
	if o.TakeProfit.IsPositive() {
		p["takeProfit"] = o.TakeProfit.InexactFloat64()
		p["takeProfitType"] = "absolute"
	}
	return p
}

// PositionPatch 是 PATCH /trade/positions/{id} 的可选字段集合。
type PositionPatch struct {
	StopLoss       *decimal.Decimal
	TakeProfit     *decimal.Decimal
	TrailingOffset *decimal.Decimal
}

func (p PositionPatch) payload() map[string]any {
	out := map[string]any{}
	if p.StopLoss != nil {
		out["stopLoss"] = p.StopLoss.InexactFloat64()
	}
	if p.TakeProfit != nil {
		out["takeProfit"] = p.TakeProfit.InexactFloat64()
	}
	if p.TrailingOffset != nil {
		out["trailingOffset"] = p.TrailingOffset.InexactFloat64()
	}
	return out
}

// OrderPatch 是 PATCH /trade/orders/{id} 的可选字段集合。
type OrderPatch struct {
	Qty        *decimal.Decimal
	Price      *decimal.Decimal
	StopPrice  *decimal.Decimal
	StopLoss   *decimal.Decimal
	TakeProfit *decimal.Decimal
}

func (p OrderPatch) payload() map[string]any {
	out := map[string]any{}
	if p.Qty != nil {
		out["qty"] = p.Qty.InexactFloat64()
	}
	if p.Price != nil {
		out["price"] = p.Price.InexactFloat64()
	}
	if p.StopPrice != nil {
		out["stopPrice"] = p.StopPrice.InexactFloat64()
	}
	if p.StopLoss != nil {
		out["stopLoss"] = p.StopLoss.InexactFloat64()
		out["stopLossType"] = "absolute"
	}
	if p.TakeProfit != nil {
		out["takeProfit"] = p.TakeProfit.InexactFloat64()
		out["takeProfitType"] = "absolute"
	}
	return out
}
