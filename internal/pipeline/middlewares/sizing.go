package middlewares

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tlbot/internal/broker/tradelocker"
	"tlbot/internal/logger"
	"tlbot/internal/pipeline"
	"tlbot/internal/risk"
	"tlbot/internal/signal"
)

// Sizing 把信号与账户快照换算成下单数量，并组装 OrderIntent。
// 市价单没有入场价时用即时报价代入定量公式。
type Sizing struct {
	meta   pipeline.MiddlewareMeta
	broker pipeline.Broker
	params *risk.Params
}

func NewSizing(stage int, broker pipeline.Broker, params *risk.Params) *Sizing {
	return &Sizing{
		meta: pipeline.MiddlewareMeta{
			Name:     "risk_sizing",
			Stage:    stage,
			Critical: true,
			Timeout:  15 * time.Second,
			Advance:  pipeline.StateSized,
		},
		broker: broker,
		params: params,
	}
}

func (m *Sizing) Meta() pipeline.MiddlewareMeta { return m.meta }

func (m *Sizing) Handle(ctx context.Context, sc *pipeline.SignalContext) error {
	state, ok := sc.Account()
	if !ok {
		return fmt.Errorf("定量缺少账户快照")
	}
	sig := sc.Signal

	instrument, err := m.broker.InstrumentByName(ctx, sig.Instrument)
	if err != nil {
		return fmt.Errorf("查找品种失败: %w", err)
	}
	routeID := instrument.TradeRouteID()

	entry := sig.EntryPrice
	if sig.Kind == signal.KindMarket && !entry.IsPositive() {
		quote, err := m.broker.GetQuote(ctx, routeID, instrument.TradableInstrumentID)
		if err != nil {
			return fmt.Errorf("拉取报价失败: %w", err)
		}
		// 市价买按卖价入场，市价卖按买价入场。
		if sig.Side == signal.SideBuy {
			entry = quote.Ask
		} else {
			entry = quote.Bid
		}
	}

	rate, err := m.conversionRate(ctx, sig.Instrument, entry)
	if err != nil {
		return err
	}

	qty, err := risk.Size(risk.Input{
		AvailableFunds: state.AvailableFunds,
		Entry:          entry,
		Stop:           sig.StopLoss,
		Side:           sig.Side,
		Fraction:       m.params.FractionFor(sig.ReducedRisk),
		Spec:           risk.SpecFor(sig.Instrument),
		ConversionRate: rate,
	})
	if err != nil {
		if errors.Is(err, risk.ErrInvalidStopDistance) || errors.Is(err, risk.ErrSizingRejected) {
			return &pipeline.DeniedError{Gate: "sizing", Reason: err.Error()}
		}
		return err
	}
	logger.Debugf("[sizing] %s %s 止损距离 %s 点，数量 %s（汇率 %s）",
		sig.Instrument, sig.Side, risk.StopDistancePips(sig.Instrument, entry, sig.StopLoss), qty, rate)

	intent := tradelocker.OrderIntent{
		Instrument:           sig.Instrument,
		TradableInstrumentID: instrument.TradableInstrumentID,
		RouteID:              routeID,
		Side:                 string(sig.Side),
		Type:                 string(sig.Kind),
		Qty:                  qty,
		StopLoss:             sig.StopLoss,
	}
	if sig.Kind != signal.KindMarket {
		intent.Price = sig.EntryPrice
	}
	if sig.Kind == signal.KindStop {
		intent.StopPrice = sig.EntryPrice
		intent.Price = decimal.Zero
	}
	if tps := sig.SortedTakeProfits(); len(tps) > 0 {
		intent.TakeProfit = tps[0]
		if len(tps) > 1 {
			sc.AddWarning(fmt.Sprintf("信号含 %d 个止盈位，仅首个 %s 挂入订单，其余交由持仓监控", len(tps), tps[0]))
		}
	}
	sc.SetIntent(intent)
	return nil
}

// conversionRate 返回账户货币到品种计价货币的汇率，风险额按它换算后才能
// 与计价货币的单位亏损相除。计价货币即账户货币时为 1；账户货币是基础
// 货币（如美元账户下的 USDJPY）时品种自身价格就是汇率；交叉盘（如
// EURJPY）再向经纪商查一次换算对的报价。
func (m *Sizing) conversionRate(ctx context.Context, name string, entry decimal.Decimal) (decimal.Decimal, error) {
	account := m.params.AccountCurrency()
	quoted := risk.QuoteCurrency(name)
	if quoted == account {
		return decimal.NewFromInt(1), nil
	}
	if risk.BaseCurrency(name) == account {
		return entry, nil
	}
	if mid, err := m.pairMid(ctx, account+quoted); err == nil && mid.IsPositive() {
		return mid, nil
	}
	mid, err := m.pairMid(ctx, quoted+account)
	if err != nil {
		return decimal.Zero, fmt.Errorf("无法取得 %s→%s 换算汇率: %w", account, quoted, err)
	}
	if !mid.IsPositive() {
		return decimal.Zero, fmt.Errorf("换算对 %s 报价非正数", quoted+account)
	}
	return decimal.NewFromInt(1).Div(mid), nil
}

func (m *Sizing) pairMid(ctx context.Context, pair string) (decimal.Decimal, error) {
	inst, err := m.broker.InstrumentByName(ctx, pair)
	if err != nil {
		return decimal.Zero, err
	}
	quote, err := m.broker.GetQuote(ctx, inst.TradeRouteID(), inst.TradableInstrumentID)
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Mid(), nil
}
