package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maximilianalessandronmartin/taskquest/internal/scheduler"
)

type (
	testTimerConstructor struct {
		created chan *fakeTimer
	}

	fakeTimer struct {
		ch      chan time.Time
		resets  chan time.Duration
		stops   chan struct{}
		stopped atomic.Bool
	}
)

const schedulerWaitTimeout = time.Second

func TestScheduleTask(t *testing.T) {
	withFakeScheduler(t, func(
		s *scheduler.Scheduler, timer *fakeTimer, now time.Time,
	) {
		done := make(chan struct{}, 1)

		s.Schedule(context.Background(), "run",
			now.Add(40*time.Millisecond),
			func() (time.Time, error) {
				done <- struct{}{}
				return time.Time{}, nil
			},
		)
		assert.Equal(t, 40*time.Millisecond, timer.WaitReset(t))
		timer.Fire(now)

		select {
		case <-done:
		case <-time.After(schedulerWaitTimeout):
			t.Fatal("scheduled task did not run")
		}
	})
}

func TestScheduleTaskReplacesSameKey(t *testing.T) {
	withFakeScheduler(t, func(
		s *scheduler.Scheduler, timer *fakeTimer, now time.Time,
	) {
		var firstRuns atomic.Int32
		var secondRuns atomic.Int32
		secondDone := make(chan struct{}, 1)
		ctx := context.Background()

		s.Schedule(ctx, "replace", now.Add(300*time.Millisecond),
			func() (time.Time, error) {
				firstRuns.Add(1)
				return time.Time{}, nil
			},
		)
		assert.Equal(t, 300*time.Millisecond, timer.WaitReset(t))

		s.Schedule(ctx, "replace", now.Add(40*time.Millisecond),
			func() (time.Time, error) {
				secondRuns.Add(1)
				secondDone <- struct{}{}
				return time.Time{}, nil
			},
		)
		assert.Equal(t, 40*time.Millisecond, timer.WaitReset(t))
		timer.Fire(now)

		select {
		case <-secondDone:
		case <-time.After(schedulerWaitTimeout):
			t.Fatal("replacement task did not run")
		}
		assert.Equal(t, int32(0), firstRuns.Load())
		assert.Equal(t, int32(1), secondRuns.Load())
	})
}

func TestRecurringTaskReschedules(t *testing.T) {
	withFakeScheduler(t, func(
		s *scheduler.Scheduler, timer *fakeTimer, now time.Time,
	) {
		runs := make(chan int32, 4)
		var count atomic.Int32

		s.Schedule(context.Background(), "sweep", now.Add(time.Second),
			func() (time.Time, error) {
				runs <- count.Add(1)
				return now.Add(time.Second), errors.New("ignored")
			},
		)
		assert.Equal(t, time.Second, timer.WaitReset(t))

		timer.Fire(now)
		assert.Equal(t, int32(1), waitRun(t, runs))
		assert.Equal(t, time.Second, timer.WaitReset(t))

		timer.Fire(now)
		assert.Equal(t, int32(2), waitRun(t, runs))
	})
}

func TestCancelTask(t *testing.T) {
	withFakeScheduler(t, func(
		s *scheduler.Scheduler, timer *fakeTimer, now time.Time,
	) {
		var ran atomic.Bool
		ctx := context.Background()

		s.Schedule(ctx, "cancel", now.Add(100*time.Millisecond),
			func() (time.Time, error) {
				ran.Store(true)
				return time.Time{}, nil
			},
		)
		assert.Equal(t, 100*time.Millisecond, timer.WaitReset(t))
		s.Cancel(ctx, "cancel")
		timer.WaitStop(t)
		timer.Fire(now)

		time.Sleep(50 * time.Millisecond)
		assert.False(t, ran.Load())
	})
}

func TestSystemTimer(t *testing.T) {
	timer := scheduler.NewTimer(time.Millisecond)
	select {
	case <-timer.Channel():
	case <-time.After(schedulerWaitTimeout):
		t.Fatal("system timer did not fire")
	}
	assert.False(t, timer.Stop())
}

func (c *testTimerConstructor) NewTimer(
	delay time.Duration,
) scheduler.Timer {
	timer := newFakeTimer()
	select {
	case c.created <- timer:
	default:
	}
	return timer
}

func (c *testTimerConstructor) WaitTimer(t *testing.T) *fakeTimer {
	t.Helper()
	select {
	case timer := <-c.created:
		return timer
	case <-time.After(schedulerWaitTimeout):
		t.Fatal("scheduler timer was not created")
		return nil
	}
}

func (t *fakeTimer) Channel() <-chan time.Time {
	return t.ch
}

func (t *fakeTimer) Reset(delay time.Duration) bool {
	t.stopped.Store(false)
	drainTimeChan(t.ch)
	t.resets <- delay
	return true
}

func (t *fakeTimer) Stop() bool {
	alreadyStopped := t.stopped.Load()
	t.stopped.Store(true)
	drainTimeChan(t.ch)
	t.stops <- struct{}{}
	return !alreadyStopped
}

func (t *fakeTimer) Fire(at time.Time) {
	if t.stopped.Load() {
		return
	}
	select {
	case t.ch <- at:
	default:
	}
}

func (t *fakeTimer) WaitReset(test *testing.T) time.Duration {
	test.Helper()
	select {
	case delay := <-t.resets:
		return delay
	case <-time.After(schedulerWaitTimeout):
		test.Fatal("scheduler timer reset not observed")
		return 0
	}
}

func (t *fakeTimer) WaitStop(test *testing.T) {
	test.Helper()
	select {
	case <-t.stops:
	case <-time.After(schedulerWaitTimeout):
		test.Fatal("scheduler timer stop not observed")
	}
}

func (t *fakeTimer) drain() {
	for {
		select {
		case <-t.resets:
		case <-t.stops:
		default:
			return
		}
	}
}

func withFakeScheduler(
	t *testing.T, fn func(*scheduler.Scheduler, *fakeTimer, time.Time),
) {
	t.Helper()
	now := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)
	tc := &testTimerConstructor{created: make(chan *fakeTimer, 1)}
	s := scheduler.New(func() time.Time { return now }, tc.NewTimer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	timer := tc.WaitTimer(t)
	timer.WaitStop(t)
	timer.drain()
	fn(s, timer, now)
}

func waitRun(t *testing.T, runs <-chan int32) int32 {
	t.Helper()
	select {
	case n := <-runs:
		return n
	case <-time.After(schedulerWaitTimeout):
		t.Fatal("recurring task did not run")
		return 0
	}
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{
		ch:     make(chan time.Time, 1),
		resets: make(chan time.Duration, 16),
		stops:  make(chan struct{}, 16),
	}
}

func drainTimeChan(ch <-chan time.Time) {
	select {
	case <-ch:
	default:
	}
}
