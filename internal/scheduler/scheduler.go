package scheduler

import (
	"context"
	"time"

	"tlbot/internal/logger"
)

// IntervalScheduler 以固定间隔驱动一个任务，直到 ctx 取消。
// 任务自身的失败不会中断循环，由任务内部记录并返回。
type IntervalScheduler struct {
	Name           string
	Interval       time.Duration
	RunImmediately bool

	nowFn func() time.Time
}

func NewIntervalScheduler(name string, interval time.Duration) *IntervalScheduler {
	return &IntervalScheduler{
		Name:     name,
		Interval: interval,
		nowFn:    time.Now,
	}
}

// Start 阻塞运行调度循环，ctx 取消后返回。
func (s *IntervalScheduler) Start(ctx context.Context, task func(context.Context) error) {
	if s == nil || task == nil {
		logger.Warnf("IntervalScheduler: task is nil, exit")
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("IntervalScheduler[%s]: invalid interval=%s, exit", s.Name, s.Interval)
		return
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}

	startAt := s.nowFn().UTC()
	logger.Infof("IntervalScheduler[%s]: started interval=%s run_immediately=%v at=%s",
		s.Name, s.Interval, s.RunImmediately, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		s.runOnce(ctx, task)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Infof("IntervalScheduler[%s]: 上下文取消, 退出调度循环 | uptime=%s",
				s.Name, s.nowFn().UTC().Sub(startAt).Truncate(time.Second))
			return
		case <-ticker.C:
			s.runOnce(ctx, task)
		}
	}
}

func (s *IntervalScheduler) runOnce(ctx context.Context, task func(context.Context) error) {
	if err := task(ctx); err != nil && ctx.Err() == nil {
		logger.Warnf("IntervalScheduler[%s]: 本轮执行失败: %v", s.Name, err)
	}
}
