package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tlbot/internal/broker/tradelocker"
	"tlbot/internal/signal"
)

// State 是信号在执行链上的位置。每个信号单调前进，终态只有三个。
type State string

const (
	StateReceived        State = "RECEIVED"
	StateNewsChecked     State = "NEWS_CHECKED"
	StateDrawdownChecked State = "DRAWDOWN_CHECKED"
	StateSized           State = "SIZED"
	StateSubmitted       State = "SUBMITTED"
	StateFilled          State = "FILLED"
	StateRejected        State = "REJECTED"
	StateFailed          State = "FAILED"
)

// Terminal 报告该状态是否为终态。
func (s State) Terminal() bool {
	switch s {
	case StateFilled, StateRejected, StateFailed:
		return true
	}
	return false
}

// SignalContext 表示单个信号在一次执行链运行中的上下文。
// 账户快照在链首拉取一次，之后所有裁定共用同一份，中途不刷新。
type SignalContext struct {
	Signal    signal.Signal
	TraceID   string
	StartedAt time.Time

	mu       sync.RWMutex
	state    State
	reason   string
	account  tradelocker.AccountState
	hasSnap  bool
	intent   tradelocker.OrderIntent
	orderID  string
	warnings []string
}

func NewSignalContext(sig signal.Signal) *SignalContext {
	return &SignalContext{
		Signal:    sig,
		TraceID:   uuid.NewString(),
		StartedAt: time.Now(),
		state:     StateReceived,
	}
}

func (sc *SignalContext) State() State {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.state
}

// Advance 把状态推进到 next。终态一经落定不再改写。
func (sc *SignalContext) Advance(next State) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.state.Terminal() {
		return
	}
	sc.state = next
}

// Finish 落定终态并记录原因。
func (sc *SignalContext) Finish(state State, reason string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.state.Terminal() {
		return
	}
	sc.state = state
	sc.reason = reason
}

func (sc *SignalContext) Reason() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.reason
}

func (sc *SignalContext) SetAccount(state tradelocker.AccountState) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.account = state
	sc.hasSnap = true
}

func (sc *SignalContext) Account() (tradelocker.AccountState, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.account, sc.hasSnap
}

func (sc *SignalContext) SetIntent(intent tradelocker.OrderIntent) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.intent = intent
}

func (sc *SignalContext) Intent() tradelocker.OrderIntent {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.intent
}

func (sc *SignalContext) SetOrderID(id string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.orderID = id
}

func (sc *SignalContext) OrderID() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.orderID
}

func (sc *SignalContext) AddWarning(msg string) {
	if msg == "" {
		return
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.warnings = append(sc.warnings, msg)
}

func (sc *SignalContext) Warnings() []string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return append([]string(nil), sc.warnings...)
}

// Outcome 是对外上报的终态记录：状态、原因与信号要点，绝不静默丢弃。
type Outcome struct {
	SignalID   string
	TraceID    string
	Instrument string
	Side       string
	State      State
	Reason     string
	OrderID    string
	Quantity   string
	Intent     *tradelocker.OrderIntent
	Warnings   []string
	FinishedAt time.Time
}

func (sc *SignalContext) Outcome() Outcome {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	var intent *tradelocker.OrderIntent
	if sc.intent.Qty.IsPositive() {
		copied := sc.intent
		intent = &copied
	}
	return Outcome{
		SignalID:   sc.Signal.ID,
		TraceID:    sc.TraceID,
		Instrument: sc.Signal.Instrument,
		Side:       string(sc.Signal.Side),
		State:      sc.state,
		Reason:     sc.reason,
		OrderID:    sc.orderID,
		Quantity:   sc.intent.Qty.String(),
		Intent:     intent,
		Warnings:   append([]string(nil), sc.warnings...),
		FinishedAt: time.Now(),
	}
}
