// Package ratelimit enforces the broker's per-endpoint-category quotas locally.
// Exceeding a broker limit is a protocol violation, not a recoverable error, so
// Acquire blocks until a token is available instead of rejecting.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"tlbot/internal/logger"
)

// Rule 定义单个端点类别的配额：在 intervalNum*measure 的窗口内最多 limit 次调用。
type Rule struct {
	Category    string
	Measure     string // "seconds" | "minutes"
	IntervalNum int
	Limit       int
}

// Window returns the measurement window of the rule.
func (r Rule) Window() (time.Duration, error) {
	if r.IntervalNum <= 0 || r.Limit <= 0 {
		return 0, fmt.Errorf("ratelimit: rule %s has non-positive interval/limit", r.Category)
	}
	switch strings.ToLower(r.Measure) {
	case "seconds":
		return time.Duration(r.IntervalNum) * time.Second, nil
	case "minutes":
		return time.Duration(r.IntervalNum) * time.Minute, nil
	default:
		return 0, fmt.Errorf("ratelimit: rule %s has unknown measure %q", r.Category, r.Measure)
	}
}

// Limiter keeps one independent token bucket per category. Admission within a
// category is FIFO by arrival; categories never starve each other.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

func New(rules []Rule) (*Limiter, error) {
	l := &Limiter{buckets: make(map[string]*bucket, len(rules))}
	if err := l.Install(rules); err != nil {
		return nil, err
	}
	return l, nil
}

// Install 覆盖安装一组规则。每个类别只保留一条生效规则；
// 替换时丢弃旧桶的令牌状态，从满桶重新开始。
func (l *Limiter) Install(rules []Rule) error {
	fresh := make(map[string]*bucket, len(rules))
	for _, rule := range rules {
		cat := strings.ToUpper(strings.TrimSpace(rule.Category))
		if cat == "" {
			return fmt.Errorf("ratelimit: rule with empty category")
		}
		if _, dup := fresh[cat]; dup {
			return fmt.Errorf("ratelimit: duplicate rule for category %s", cat)
		}
		window, err := rule.Window()
		if err != nil {
			return err
		}
		fresh[cat] = newBucket(float64(rule.Limit), float64(rule.Limit)/window.Seconds())
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for cat, b := range fresh {
		l.buckets[cat] = b
	}
	return nil
}

// Acquire blocks until the category admits one call, FIFO by arrival.
// Unknown categories pass through unthrottled; that only happens when the
// broker introduces an endpoint the config document does not cover yet.
func (l *Limiter) Acquire(ctx context.Context, category string) error {
	b := l.bucket(category)
	if b == nil {
		logger.Debugf("ratelimit: no rule for category %s, admitting", category)
		return nil
	}
	return b.acquire(ctx)
}

// Penalize widens the category's cool-down after a broker-side 429: no token is
// handed out before the cool-down elapses, regardless of the bucket balance.
func (l *Limiter) Penalize(category string, cooldown time.Duration) {
	b := l.bucket(category)
	if b == nil || cooldown <= 0 {
		return
	}
	b.penalize(cooldown)
	logger.Warnf("ratelimit: category %s penalized for %s after broker 429", category, cooldown)
}

func (l *Limiter) bucket(category string) *bucket {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.buckets[strings.ToUpper(strings.TrimSpace(category))]
}

type bucket struct {
	mu           sync.Mutex
	tokens       float64
	capacity     float64
	refillPerSec float64
	lastRefill   time.Time
	penaltyUntil time.Time
	waiters      []chan struct{}
	wakePending  bool
	nowFn        func() time.Time
}

func newBucket(capacity, refillPerSec float64) *bucket {
	return &bucket{
		tokens:       capacity,
		capacity:     capacity,
		refillPerSec: refillPerSec,
		lastRefill:   time.Now(),
		nowFn:        time.Now,
	}
}

func (b *bucket) acquire(ctx context.Context) error {
	b.mu.Lock()
	b.refill()
	if len(b.waiters) == 0 && b.tokens >= 1 && !b.penalized() {
		b.tokens--
		b.mu.Unlock()
		return nil
	}
	grant := make(chan struct{})
	b.waiters = append(b.waiters, grant)
	b.scheduleWake()
	b.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		b.mu.Lock()
		removed := b.removeWaiter(grant)
		if !removed {
			// 已被授予但未消费：把令牌退回桶里。
			b.tokens = minFloat(b.tokens+1, b.capacity)
		}
		b.mu.Unlock()
		return ctx.Err()
	}
}

func (b *bucket) penalize(cooldown time.Duration) {
	b.mu.Lock()
	until := b.nowFn().Add(cooldown)
	if until.After(b.penaltyUntil) {
		b.penaltyUntil = until
	}
	b.mu.Unlock()
}

// refill must be called with mu held.
func (b *bucket) refill() {
	now := b.nowFn()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = minFloat(b.tokens+elapsed*b.refillPerSec, b.capacity)
	}
	b.lastRefill = now
}

func (b *bucket) penalized() bool {
	return b.nowFn().Before(b.penaltyUntil)
}

// scheduleWake arms a timer for the moment the head waiter can be admitted.
// Must be called with mu held.
func (b *bucket) scheduleWake() {
	if b.wakePending || len(b.waiters) == 0 {
		return
	}
	b.wakePending = true
	time.AfterFunc(b.nextAdmitDelay(), b.wake)
}

func (b *bucket) wake() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wakePending = false
	b.refill()
	for len(b.waiters) > 0 && b.tokens >= 1 && !b.penalized() {
		b.tokens--
		close(b.waiters[0])
		b.waiters = b.waiters[1:]
	}
	b.scheduleWake()
}

// nextAdmitDelay must be called with mu held.
func (b *bucket) nextAdmitDelay() time.Duration {
	var tokenWait time.Duration
	if b.tokens < 1 {
		missing := 1 - b.tokens
		tokenWait = time.Duration(missing / b.refillPerSec * float64(time.Second))
	}
	if penaltyWait := b.penaltyUntil.Sub(b.nowFn()); penaltyWait > tokenWait {
		tokenWait = penaltyWait
	}
	if tokenWait < time.Millisecond {
		tokenWait = time.Millisecond
	}
	return tokenWait
}

func (b *bucket) removeWaiter(grant chan struct{}) bool {
	for i, w := range b.waiters {
		if w == grant {
			b.waiters = append(b.waiters[:i], b.waiters[i+1:]...)
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
