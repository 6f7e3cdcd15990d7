// Package calendar loads and serves the weekly economic-event calendar the
// news gate filters against. Events are immutable once loaded; a refresh
// swaps the whole set.
package calendar

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type Impact string

const (
	ImpactLow    Impact = "Low"
	ImpactMedium Impact = "Medium"
	ImpactHigh   Impact = "High"
)

// Event 是一条定时经济事件。Currency 为 "ALL" 时影响所有品种。
type Event struct {
	Title    string
	Currency string
	Impact   Impact
	Time     time.Time // UTC
}

// Calendar 是一次加载的事件快照，按时间升序，只读。
type Calendar struct {
	events   []Event
	loadedAt time.Time
}

func New(events []Event) *Calendar {
	sorted := append([]Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })
	return &Calendar{events: sorted, loadedAt: time.Now().UTC()}
}

func (c *Calendar) Events() []Event {
	if c == nil {
		return nil
	}
	return c.events
}

func (c *Calendar) LoadedAt() time.Time {
	if c == nil {
		return time.Time{}
	}
	return c.loadedAt
}

// HighImpactFor 返回指定货币集合在 [from, to] 内的高影响事件。
// 范围作用域（ALL）的事件对任何货币都命中。
func (c *Calendar) HighImpactFor(currencies []string, from, to time.Time) []Event {
	if c == nil {
		return nil
	}
	set := make(map[string]bool, len(currencies))
	for _, cur := range currencies {
		set[strings.ToUpper(cur)] = true
	}
	var out []Event
	for _, ev := range c.events {
		if ev.Impact != ImpactHigh {
			continue
		}
		cur := strings.ToUpper(ev.Currency)
		if cur != "ALL" && !set[cur] {
			continue
		}
		if ev.Time.Before(from) || ev.Time.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Store 持有当前生效的日历快照，刷新协程写、闸门读。
type Store struct {
	mu  sync.RWMutex
	cal *Calendar
}

func NewStore(cal *Calendar) *Store {
	return &Store{cal: cal}
}

func (s *Store) Current() *Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cal
}

func (s *Store) Replace(cal *Calendar) {
	if cal == nil {
		return
	}
	s.mu.Lock()
	s.cal = cal
	s.mu.Unlock()
}
