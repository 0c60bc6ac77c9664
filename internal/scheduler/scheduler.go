package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/maximilianalessandronmartin/taskquest/pkg/log"
)

type (
	// Scheduler runs keyed delayed tasks on a single goroutine. A task
	// that returns a non-zero deadline is rescheduled under the same key
	Scheduler struct {
		now       Clock
		makeTimer TimerConstructor
		tasks     chan taskReq
	}

	// TaskFunc is called when its run time arrives. It returns the next
	// deadline for rescheduling, or the zero time to stop
	TaskFunc func() (time.Time, error)

	taskReqOp uint8

	taskReq struct {
		op   taskReqOp
		task *Task
		key  string
	}
)

const (
	taskReqSchedule taskReqOp = iota
	taskReqCancel
)

const requestBufferSize = 100

// New creates a scheduler using the provided clock and timer constructor
func New(now Clock, makeTimer TimerConstructor) *Scheduler {
	if now == nil {
		now = time.Now
	}
	if makeTimer == nil {
		makeTimer = NewTimer
	}
	return &Scheduler{
		now:       now,
		makeTimer: makeTimer,
		tasks:     make(chan taskReq, requestBufferSize),
	}
}

// Schedule enqueues a task to run at the requested time, replacing any
// task already registered under key
func (s *Scheduler) Schedule(
	ctx context.Context, key string, at time.Time, fn TaskFunc,
) {
	s.scheduleTaskReq(ctx, taskReq{
		op:   taskReqSchedule,
		task: &Task{Func: fn, At: at, Key: key},
	})
}

// Cancel removes the task registered under key
func (s *Scheduler) Cancel(ctx context.Context, key string) {
	s.scheduleTaskReq(ctx, taskReq{op: taskReqCancel, key: key})
}

// Run processes scheduler requests until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	timer := s.makeTimer(0)
	var timerCh <-chan time.Time
	tasks := NewTaskHeap()

	resetTimer := func() {
		var next time.Time
		if t := tasks.Peek(); t != nil {
			next = t.At
		}
		if next.IsZero() {
			timer.Stop()
			timerCh = nil
			return
		}
		delay := max(0, next.Sub(s.now()))
		timer.Reset(delay)
		timerCh = timer.Channel()
	}

	resetTimer()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case req := <-s.tasks:
			switch req.op {
			case taskReqSchedule:
				tasks.Insert(req.task)
			case taskReqCancel:
				tasks.Cancel(req.key)
			}
			resetTimer()
		case <-timerCh:
			task := tasks.PopTask()
			if task == nil {
				resetTimer()
				continue
			}
			next, err := task.Func()
			if err != nil {
				slog.Error("Scheduled task failed",
					slog.String("key", task.Key),
					log.Error(err))
			}
			if !next.IsZero() {
				tasks.Insert(&Task{Func: task.Func, At: next, Key: task.Key})
			}
			resetTimer()
		}
	}
}

func (s *Scheduler) scheduleTaskReq(ctx context.Context, req taskReq) {
	select {
	case s.tasks <- req:
	case <-ctx.Done():
	}
}
