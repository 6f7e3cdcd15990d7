// Package risk computes order quantities from a single account snapshot and a
// validated signal. Pure arithmetic, no I/O: currency conversion rates are an
// input, never fetched here.
package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"tlbot/internal/signal"
)

var (
	// ErrInvalidStopDistance 表示止损与方向矛盾（买单止损在入场之上等）。
	ErrInvalidStopDistance = errors.New("risk: invalid stop distance")
	// ErrSizingRejected 表示按当前资金与风险参数算不出正数仓位。
	ErrSizingRejected = errors.New("risk: sizing rejected")
)

// Input 是一次定量计算的全部输入。快照语义：取自同一个账户状态，
// 计算中途不刷新。
type Input struct {
	AvailableFunds decimal.Decimal
	Entry          decimal.Decimal
	Stop           decimal.Decimal
	Side           signal.Side
	Fraction       decimal.Decimal
	Spec           InstrumentSpec
	// ConversionRate 把账户货币的风险额换算到品种计价货币，
	// 计价货币即账户货币时为 1。零值按 1 处理。
	ConversionRate decimal.Decimal
}

// Size 返回按风险比例定出的下单数量，已向下取整到品种最小增量。
// 风险额 = available_funds * fraction；单位亏损 = |entry-stop| * 点值。
func Size(in Input) (decimal.Decimal, error) {
	if !in.Fraction.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: 风险比例 %s 非正数", ErrSizingRejected, in.Fraction)
	}
	if !in.AvailableFunds.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: 可用资金 %s 非正数", ErrSizingRejected, in.AvailableFunds)
	}
	if err := checkStop(in.Side, in.Entry, in.Stop); err != nil {
		return decimal.Zero, err
	}

	rate := in.ConversionRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	pointValue := in.Spec.PointValue
	if pointValue.IsZero() {
		pointValue = decimal.NewFromInt(1)
	}

	riskAmount := in.AvailableFunds.Mul(in.Fraction).Mul(rate)
	perUnitLoss := in.Entry.Sub(in.Stop).Abs().Mul(pointValue)
	qty := riskAmount.Div(perUnitLoss)

	if inc := in.Spec.MinIncrement; inc.IsPositive() {
		qty = qty.Div(inc).Floor().Mul(inc)
	}
	if !qty.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: 风险额 %s 不足以覆盖一个最小增量", ErrSizingRejected, riskAmount)
	}
	return qty, nil
}

func checkStop(side signal.Side, entry, stop decimal.Decimal) error {
	if !entry.IsPositive() || !stop.IsPositive() {
		return fmt.Errorf("%w: 入场 %s 止损 %s 必须为正", ErrInvalidStopDistance, entry, stop)
	}
	switch side {
	case signal.SideBuy:
		if stop.GreaterThanOrEqual(entry) {
			return fmt.Errorf("%w: 买单止损 %s 不得高于或等于入场 %s", ErrInvalidStopDistance, stop, entry)
		}
	case signal.SideSell:
		if stop.LessThanOrEqual(entry) {
			return fmt.Errorf("%w: 卖单止损 %s 不得低于或等于入场 %s", ErrInvalidStopDistance, stop, entry)
		}
	default:
		return fmt.Errorf("%w: 未知方向 %q", ErrInvalidStopDistance, side)
	}
	return nil
}

// SplitAcross 把总量均分到 n 个目标位，每份向下取整到最小增量。
// 取整导致的零头并入第一份，保证合计不超过总量且不丢量。
func SplitAcross(total decimal.Decimal, n int, inc decimal.Decimal) []decimal.Decimal {
	if n <= 0 || !total.IsPositive() {
		return nil
	}
	if n == 1 {
		return []decimal.Decimal{total}
	}
	per := total.Div(decimal.NewFromInt(int64(n)))
	if inc.IsPositive() {
		per = per.Div(inc).Floor().Mul(inc)
	}
	out := make([]decimal.Decimal, n)
	used := decimal.Zero
	for i := 1; i < n; i++ {
		out[i] = per
		used = used.Add(per)
	}
	out[0] = total.Sub(used)
	return out
}
