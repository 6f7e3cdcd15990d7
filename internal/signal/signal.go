// Package signal defines the validated trading-signal record handed over by the
// channel listener. The listener delivers each signal at most once; everything
// past Validate treats the struct as immutable.
package signal

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderKind string

const (
	KindMarket OrderKind = "market"
	KindLimit  OrderKind = "limit"
	KindStop   OrderKind = "stop"
)

// Signal 是上游解析完成的交易信号。进入流水线前必须通过 Validate。
type Signal struct {
	ID          string
	Instrument  string
	Side        Side
	Kind        OrderKind
	EntryPrice  decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfits []decimal.Decimal
	ReducedRisk bool
	ReceivedAt  time.Time
}

// Validate 在流水线入口做严格边界校验：上游是松散文本解析，
// 这里是唯一一道把关，绝不信任深处的字段再去检查。
func (s *Signal) Validate() error {
	if s == nil {
		return fmt.Errorf("signal is nil")
	}
	if strings.TrimSpace(s.ID) == "" {
		s.ID = uuid.NewString()
	}
	s.Instrument = strings.ToUpper(strings.TrimSpace(s.Instrument))
	if s.Instrument == "" {
		return fmt.Errorf("signal %s: instrument is empty", s.ID)
	}
	switch s.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("signal %s: invalid side %q", s.ID, s.Side)
	}
	switch s.Kind {
	case KindMarket, KindLimit, KindStop:
	default:
		return fmt.Errorf("signal %s: invalid order kind %q", s.ID, s.Kind)
	}
	if s.Kind != KindMarket && s.EntryPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("signal %s: %s order requires a positive entry price", s.ID, s.Kind)
	}
	if s.EntryPrice.IsNegative() {
		return fmt.Errorf("signal %s: negative entry price", s.ID)
	}
	if s.StopLoss.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("signal %s: stop loss is required", s.ID)
	}
	if len(s.TakeProfits) == 0 {
		return fmt.Errorf("signal %s: at least one take profit is required", s.ID)
	}
	for i, tp := range s.TakeProfits {
		if tp.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("signal %s: take profit #%d is not positive", s.ID, i+1)
		}
	}
	if s.ReceivedAt.IsZero() {
		s.ReceivedAt = time.Now().UTC()
	}
	return nil
}

// SortedTakeProfits 按离入场价由近及远返回目标位。
func (s Signal) SortedTakeProfits() []decimal.Decimal {
	tps := append([]decimal.Decimal(nil), s.TakeProfits...)
	sort.Slice(tps, func(i, j int) bool {
		if s.Side == SideSell {
			return tps[i].GreaterThan(tps[j])
		}
		return tps[i].LessThan(tps[j])
	})
	return tps
}

func (s Signal) Describe() string {
	return fmt.Sprintf("%s %s %s entry=%s stop=%s tps=%d", s.Instrument, s.Side, s.Kind,
		s.EntryPrice.String(), s.StopLoss.String(), len(s.TakeProfits))
}

// Source 是消息频道监听器的抽象：实现方保证每个信号至多投递一次。
type Source interface {
	Signals() <-chan Signal
}

// ChanSource 是最小实现，供监听器进程内投递使用。
type ChanSource struct {
	ch chan Signal
}

func NewChanSource(buffer int) *ChanSource {
	if buffer < 0 {
		buffer = 0
	}
	return &ChanSource{ch: make(chan Signal, buffer)}
}

func (c *ChanSource) Signals() <-chan Signal { return c.ch }

func (c *ChanSource) Publish(sig Signal) {
	c.ch <- sig
}

func (c *ChanSource) Close() { close(c.ch) }
