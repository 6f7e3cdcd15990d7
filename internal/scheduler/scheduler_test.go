package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIntervalSchedulerRunsUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	s := NewIntervalScheduler("test", 10*time.Millisecond)
	s.RunImmediately = true
	done := make(chan struct{})
	go func() {
		s.Start(ctx, func(context.Context) error {
			runs.Add(1)
			return nil
		})
		close(done)
	}()

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("调度循环未随 ctx 取消退出")
	}
}

func TestIntervalSchedulerRejectsInvalidInterval(t *testing.T) {
	var runs atomic.Int32
	s := NewIntervalScheduler("bad", 0)
	s.Start(context.Background(), func(context.Context) error {
		runs.Add(1)
		return nil
	})
	assert.Zero(t, runs.Load())
}
