package circuit

import (
	"sync"
	"time"

	"tlbot/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker 为单个经纪商端点类别提供熔断保护：
// 连续失败达到阈值后打开，超时后进入 HALF-OPEN 放行一次探测。
type Breaker struct {
	mu          sync.Mutex
	state       State
	failures    int
	threshold   int
	probeAfter  time.Duration
	lastFailure time.Time
	name        string
}

func NewBreaker(name string, threshold int, probeAfter time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if probeAfter <= 0 {
		probeAfter = time.Minute
	}
	return &Breaker{name: name, threshold: threshold, probeAfter: probeAfter, state: StateClosed}
}

// Allow reports whether a call may proceed right now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailure) > b.probeAfter {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.transition(StateClosed)
		b.failures = 0
	case StateClosed:
		b.failures = 0
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	logger.Warnf("circuit %s: %s -> %s (failures=%d/%d)", b.name, from, to, b.failures, b.threshold)
}
