// Package sweeper periodically advances every running timer so that
// countdowns complete even when no client is watching
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maximilianalessandronmartin/taskquest/internal/metrics"
	"github.com/maximilianalessandronmartin/taskquest/internal/scheduler"
	"github.com/maximilianalessandronmartin/taskquest/internal/service"
	"github.com/maximilianalessandronmartin/taskquest/internal/store"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
	"github.com/maximilianalessandronmartin/taskquest/pkg/log"
)

type (
	// Sweeper drives timer sweeps from a keyed scheduler
	Sweeper struct {
		store    store.TaskStore
		timers   Ticker
		sched    *scheduler.Scheduler
		now      scheduler.Clock
		cancel   context.CancelFunc
		done     chan struct{}
		interval time.Duration
		mu       sync.Mutex
	}

	// Ticker advances a single running timer
	Ticker interface {
		Tick(ctx context.Context, id api.TaskID) (bool, error)
	}

	// Config controls sweep cadence. Clock and MakeTimer default to the
	// system implementations
	Config struct {
		Clock     scheduler.Clock
		MakeTimer scheduler.TimerConstructor
		Interval  time.Duration
	}

	// Result summarizes one sweep pass
	Result struct {
		Active  int
		Changed int
		Failed  int
	}
)

const sweepKey = "timer/sweep"

var (
	ErrAlreadyStarted = errors.New("sweeper already started")
	ErrTaskPanicked   = errors.New("timer tick panicked")
)

// New creates a Sweeper that lists running timers from st and advances
// each one through timers
func New(st store.TaskStore, timers Ticker, cfg Config) *Sweeper {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		store:    st,
		timers:   timers,
		sched:    scheduler.New(now, cfg.MakeTimer),
		now:      now,
		interval: interval,
	}
}

// Start runs the scheduler and registers the recurring sweep. The first
// pass happens one interval from now
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		s.sched.Run(ctx)
	}()

	s.sched.Schedule(ctx, sweepKey, s.now().Add(s.interval),
		func() (time.Time, error) {
			_, err := s.Sweep(ctx)
			return s.now().Add(s.interval), err
		},
	)
	slog.Info("Timer sweeper started",
		slog.Duration("interval", s.interval))
	return nil
}

// Stop cancels the recurring sweep and waits for the scheduler to exit. A
// pass already in progress finishes first
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	ctx, stop := context.WithTimeout(context.Background(), time.Second)
	s.sched.Cancel(ctx, sweepKey)
	stop()
	cancel()
	<-done
	slog.Info("Timer sweeper stopped")
}

// Sweep runs a single pass over every running timer. A failing or
// panicking timer is logged and counted without affecting the others
func (s *Sweeper) Sweep(ctx context.Context) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.TimerSweepDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.TimerSweeps.Inc()

	tasks, err := s.store.ListActiveTimers(ctx)
	if err != nil {
		slog.Error("Failed to list running timers", log.Error(err))
		return nil, fmt.Errorf("list running timers: %w", err)
	}

	res := &Result{Active: len(tasks)}
	metrics.TimersActive.Set(float64(res.Active))
	slog.Debug("Timer sweep",
		slog.Int("active", res.Active))

	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		changed, err := s.tick(ctx, t.ID)
		if errors.Is(err, service.ErrTaskNotFound) {
			continue
		}
		if err != nil {
			res.Failed++
			metrics.TimerSweepFailures.Inc()
			slog.Error("Timer sweep failed",
				log.TaskID(t.ID),
				log.Error(err))
			continue
		}
		if changed {
			res.Changed++
		}
	}
	return res, nil
}

func (s *Sweeper) tick(ctx context.Context, id api.TaskID) (ch bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ch, err = false, fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return s.timers.Tick(ctx, id)
}
