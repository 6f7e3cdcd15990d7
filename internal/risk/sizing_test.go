package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlbot/internal/signal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestSizeForexAnchor(t *testing.T) {
	// 10000 * 1% = 100 风险额；每单位亏损 0.0050 → 20000 单位。
	qty, err := Size(Input{
		AvailableFunds: d("10000"),
		Entry:          d("1.0850"),
		Stop:           d("1.0800"),
		Side:           signal.SideBuy,
		Fraction:       d("0.01"),
		Spec:           SpecFor("EURUSD"),
	})
	require.NoError(t, err)
	assert.True(t, qty.Equal(d("20000")), "got %s", qty)
}

func TestSizeJPYPairConvertsRiskAmount(t *testing.T) {
	// 100 USD 风险额 × 150 = 15000 JPY；每单位亏损 0.50 JPY → 30000 单位。
	qty, err := Size(Input{
		AvailableFunds: d("10000"),
		Entry:          d("150.00"),
		Stop:           d("149.50"),
		Side:           signal.SideBuy,
		Fraction:       d("0.01"),
		Spec:           SpecFor("USDJPY"),
		ConversionRate: d("150.00"),
	})
	require.NoError(t, err)
	assert.True(t, qty.Equal(d("30000")), "got %s", qty)
}

func TestSizeJPYPairWithoutConversionUnderflows(t *testing.T) {
	// 不换算时 100/0.50=200 单位，够不上 1000 的最小增量，必须拒绝：
	// 换算汇率是定量的硬输入，不是修饰项。
	_, err := Size(Input{
		AvailableFunds: d("10000"),
		Entry:          d("150.00"),
		Stop:           d("149.50"),
		Side:           signal.SideBuy,
		Fraction:       d("0.01"),
		Spec:           SpecFor("USDJPY"),
	})
	require.ErrorIs(t, err, ErrSizingRejected)
}

func TestCurrencyLegs(t *testing.T) {
	assert.Equal(t, "USD", QuoteCurrency("EURUSD"))
	assert.Equal(t, "JPY", QuoteCurrency("USDJPY"))
	assert.Equal(t, "JPY", QuoteCurrency("EURJPY"))
	assert.Equal(t, "USD", QuoteCurrency("XAUUSD"))
	assert.Equal(t, "USD", QuoteCurrency("NDX100"))
	assert.Equal(t, "EUR", BaseCurrency("EURJPY"))
	assert.Equal(t, "USD", BaseCurrency("USDJPY"))
	assert.Equal(t, "NDX100", BaseCurrency("NDX100"))
}

func TestSizeFloorsToIncrement(t *testing.T) {
	// 97.3 风险额 / 0.0050 = 19460 → 向下取整到 19000。
	qty, err := Size(Input{
		AvailableFunds: d("9730"),
		Entry:          d("1.0850"),
		Stop:           d("1.0800"),
		Side:           signal.SideBuy,
		Fraction:       d("0.01"),
		Spec:           SpecFor("EURUSD"),
	})
	require.NoError(t, err)
	assert.True(t, qty.Equal(d("19000")), "got %s", qty)
}

func TestSizeMonotonicInFraction(t *testing.T) {
	base := Input{
		AvailableFunds: d("10000"),
		Entry:          d("1.0850"),
		Stop:           d("1.0800"),
		Side:           signal.SideBuy,
		Spec:           SpecFor("EURUSD"),
	}
	prev := decimal.Zero
	for _, f := range []string{"0.005", "0.01", "0.015", "0.02", "0.05"} {
		in := base
		in.Fraction = d(f)
		qty, err := Size(in)
		require.NoError(t, err)
		assert.True(t, qty.GreaterThanOrEqual(prev), "fraction %s shrank quantity: %s < %s", f, qty, prev)
		prev = qty
	}
}

func TestSizeInvalidStopSide(t *testing.T) {
	_, err := Size(Input{
		AvailableFunds: d("10000"),
		Entry:          d("1.0850"),
		Stop:           d("1.0900"), // 买单止损在入场之上
		Side:           signal.SideBuy,
		Fraction:       d("0.01"),
		Spec:           SpecFor("EURUSD"),
	})
	require.ErrorIs(t, err, ErrInvalidStopDistance)

	_, err = Size(Input{
		AvailableFunds: d("10000"),
		Entry:          d("1.0850"),
		Stop:           d("1.0850"), // 零距离
		Side:           signal.SideSell,
		Fraction:       d("0.01"),
		Spec:           SpecFor("EURUSD"),
	})
	require.ErrorIs(t, err, ErrInvalidStopDistance)
}

func TestSizeRejectsUnsizeable(t *testing.T) {
	// 风险额太小，不足一个最小增量。
	_, err := Size(Input{
		AvailableFunds: d("10"),
		Entry:          d("1.0850"),
		Stop:           d("1.0800"),
		Side:           signal.SideBuy,
		Fraction:       d("0.0001"),
		Spec:           SpecFor("EURUSD"),
	})
	require.ErrorIs(t, err, ErrSizingRejected)

	_, err = Size(Input{
		AvailableFunds: d("0"),
		Entry:          d("1.0850"),
		Stop:           d("1.0800"),
		Side:           signal.SideBuy,
		Fraction:       d("0.01"),
		Spec:           SpecFor("EURUSD"),
	})
	require.ErrorIs(t, err, ErrSizingRejected)
}

func TestSizeGoldUsesContractPointValue(t *testing.T) {
	// 200 风险额 / (10 点 * 100 每手点值) = 0.2 手。
	qty, err := Size(Input{
		AvailableFunds: d("10000"),
		Entry:          d("2400"),
		Stop:           d("2390"),
		Side:           signal.SideBuy,
		Fraction:       d("0.02"),
		Spec:           SpecFor("XAUUSD"),
	})
	require.NoError(t, err)
	assert.True(t, qty.Equal(d("0.2")), "got %s", qty)
}

func TestSplitAcrossConservesTotal(t *testing.T) {
	parts := SplitAcross(d("20000"), 3, d("1000"))
	require.Len(t, parts, 3)
	sum := decimal.Zero
	for _, p := range parts {
		sum = sum.Add(p)
	}
	assert.True(t, sum.Equal(d("20000")), "got sum %s", sum)
	assert.True(t, parts[1].Equal(d("6000")))
	assert.True(t, parts[2].Equal(d("6000")))
	assert.True(t, parts[0].Equal(d("8000")))
}

func TestStopDistancePips(t *testing.T) {
	assert.True(t, StopDistancePips("EURUSD", d("1.0850"), d("1.0800")).Equal(d("50")))
	assert.True(t, StopDistancePips("USDJPY", d("155.20"), d("154.70")).Equal(d("50")))
	assert.True(t, StopDistancePips("XAUUSD", d("2400"), d("2390")).Equal(d("10")))
}
