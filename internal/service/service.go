// Package service orchestrates timer transitions against the task store.
// Every mutation is computed inside an atomic store update, so accounting
// always starts from the row as persisted at write time. Completion
// notifications and realtime pushes are sent only after the write commits
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maximilianalessandronmartin/taskquest/internal/metrics"
	"github.com/maximilianalessandronmartin/taskquest/internal/store"
	"github.com/maximilianalessandronmartin/taskquest/internal/timer"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
	"github.com/maximilianalessandronmartin/taskquest/pkg/log"
)

type (
	// TimerService exposes the timer operations for an acting user
	TimerService struct {
		store    store.TaskStore
		engine   *timer.Engine
		pusher   Pusher
		notifier Notifier
		now      timer.Clock
	}

	// Dependencies are the collaborators a TimerService needs. Engine and
	// Clock default when nil; a nil Pusher or Notifier disables that output
	Dependencies struct {
		Store    store.TaskStore
		Engine   *timer.Engine
		Pusher   Pusher
		Notifier Notifier
		Clock    timer.Clock
	}

	// Pusher broadcasts timer snapshots to realtime subscribers
	Pusher interface {
		PushTimerSnapshot(api.TaskID, api.TimerSnapshot) error
	}

	// Notifier announces a timer that ran out
	Notifier interface {
		TimerCompleted(context.Context, *api.Task) error
	}

	// transition computes the next timer state from the persisted one. It
	// may return store.ErrSkipUpdate to leave the row untouched
	transition func(api.TimerState, time.Time) (api.TimerState, bool, error)

	// outcome is what a committed transition observed
	outcome struct {
		task      *api.Task
		completed bool
		changed   bool
	}
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrAccessDenied      = errors.New("access denied")
	ErrUserRequired      = errors.New("acting user required")
	ErrInvalidTimerState = timer.ErrInvalidTimerState
)

// NewTimerService creates a TimerService from its dependencies
func NewTimerService(deps Dependencies) *TimerService {
	eng := deps.Engine
	if eng == nil {
		eng = timer.NewEngine(
			api.DefaultCompletionTolerance, api.DefaultTimerDuration,
		)
	}
	now := deps.Clock
	if now == nil {
		now = timer.SystemClock()
	}
	return &TimerService{
		store:    deps.Store,
		engine:   eng,
		pusher:   deps.Pusher,
		notifier: deps.Notifier,
		now:      now,
	}
}

// StartTimer activates the task's countdown, restarting an exhausted one
// from its full duration
func (s *TimerService) StartTimer(
	ctx context.Context, id api.TaskID, user api.UserID,
) (*api.TaskView, error) {
	return s.apply(ctx, id, user, true,
		func(st api.TimerState, now time.Time) (api.TimerState, bool, error) {
			next, done := s.engine.Start(st, now)
			return next, done, nil
		},
	)
}

// PauseTimer freezes the countdown at its current accounting. If the
// countdown ran out in the meantime, completion is announced first
func (s *TimerService) PauseTimer(
	ctx context.Context, id api.TaskID, user api.UserID,
) (*api.TaskView, error) {
	return s.apply(ctx, id, user, true,
		func(st api.TimerState, now time.Time) (api.TimerState, bool, error) {
			next, done := s.engine.Pause(st, now)
			return next, done, nil
		},
	)
}

// ResetTimer restores the full configured duration and stops the countdown
func (s *TimerService) ResetTimer(
	ctx context.Context, id api.TaskID, user api.UserID,
) (*api.TaskView, error) {
	return s.apply(ctx, id, user, true,
		func(st api.TimerState, _ time.Time) (api.TimerState, bool, error) {
			return s.engine.Reset(st), false, nil
		},
	)
}

// UpdateTimer applies client supplied overrides to the countdown
func (s *TimerService) UpdateTimer(
	ctx context.Context, id api.TaskID, req *api.TimerUpdateRequest,
	user api.UserID,
) (*api.TaskView, error) {
	if req == nil {
		req = &api.TimerUpdateRequest{}
	}
	return s.apply(ctx, id, user, true,
		func(st api.TimerState, now time.Time) (api.TimerState, bool, error) {
			return s.engine.Update(st, req, now)
		},
	)
}

// GetTask returns the task with its timer accounted up to now. A running
// timer's accounting is persisted, and a completion observed here is
// announced like any other
func (s *TimerService) GetTask(
	ctx context.Context, id api.TaskID, user api.UserID,
) (*api.TaskView, error) {
	return s.apply(ctx, id, user, false,
		func(st api.TimerState, now time.Time) (api.TimerState, bool, error) {
			if !st.Active || st.LastUpdate == nil {
				return st, false, store.ErrSkipUpdate
			}
			if !now.Before(*st.LastUpdate) && timer.Elapsed(st, now) == 0 {
				return st, false, store.ErrSkipUpdate
			}
			next, done := s.engine.Advance(st, now)
			return next, done, nil
		},
	)
}

// CanAccess reports whether user may observe the task's timer
func (s *TimerService) CanAccess(
	ctx context.Context, id api.TaskID, user api.UserID,
) error {
	if user == "" {
		return ErrUserRequired
	}
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return taskError(err, id)
	}
	if !t.HasAccess(user) {
		return fmt.Errorf("%w: task %s", ErrAccessDenied, id)
	}
	return nil
}

// Snapshot returns the task's current timer snapshot for a subscriber that
// has already been authorized. It does not persist anything
func (s *TimerService) Snapshot(
	ctx context.Context, id api.TaskID,
) (api.TimerSnapshot, error) {
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return api.TimerSnapshot{}, taskError(err, id)
	}
	st, _ := s.engine.Advance(t.Timer, s.now())
	return st.Snapshot(), nil
}

// Tick advances a running timer on behalf of the background sweep. It
// reports whether anything was persisted. A running timer that was never
// stamped is stamped with the current time and nothing else
func (s *TimerService) Tick(ctx context.Context, id api.TaskID) (bool, error) {
	var stamped bool
	out, err := s.commit(ctx, id, "",
		func(st api.TimerState, now time.Time) (api.TimerState, bool, error) {
			stamped = false
			if !st.Active {
				return st, false, store.ErrSkipUpdate
			}
			if st.LastUpdate == nil {
				stamped = true
				return st.WithLastUpdate(now), false, nil
			}
			if timer.Elapsed(st, now) == 0 {
				return st, false, store.ErrSkipUpdate
			}
			next, done := s.engine.Advance(st, now)
			return next, done, nil
		},
	)
	if err != nil {
		return false, err
	}
	if stamped {
		slog.Warn("Running timer had no last update",
			log.TaskID(id))
		return true, nil
	}
	s.afterCommit(ctx, out, metrics.SourceSweep, true)
	return out.changed, nil
}

func (s *TimerService) apply(
	ctx context.Context, id api.TaskID, user api.UserID, push bool,
	tr transition,
) (*api.TaskView, error) {
	if user == "" {
		return nil, ErrUserRequired
	}
	out, err := s.commit(ctx, id, user, tr)
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, out, metrics.SourceRequest, push)
	return out.task.View(user), nil
}

// commit runs tr inside an atomic store update. The outcome reflects only
// the attempt that was actually committed. An empty user skips the access
// check
func (s *TimerService) commit(
	ctx context.Context, id api.TaskID, user api.UserID, tr transition,
) (*outcome, error) {
	out := &outcome{}
	task, err := s.store.UpdateTask(ctx, id, func(t *api.Task) error {
		out.completed, out.changed = false, false
		if user != "" && !t.HasAccess(user) {
			return ErrAccessDenied
		}
		next, done, err := tr(t.Timer, s.now())
		if err != nil {
			return err
		}
		t.Timer = next
		out.completed, out.changed = done, true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccessDenied) {
			return nil, fmt.Errorf("%w: task %s", ErrAccessDenied, id)
		}
		return nil, taskError(err, id)
	}
	out.task = task
	return out, nil
}

func (s *TimerService) afterCommit(
	ctx context.Context, out *outcome, source string, push bool,
) {
	task := out.task
	if out.completed {
		metrics.TimerCompletions.WithLabelValues(source).Inc()
		slog.Info("Timer completed",
			log.TaskID(task.ID),
			slog.String("source", source))
		if s.notifier != nil {
			if err := s.notifier.TimerCompleted(ctx, task); err != nil {
				metrics.NotificationFailures.Inc()
				slog.Warn("Completion notifications incomplete",
					log.TaskID(task.ID),
					log.Error(err))
			}
		}
	}
	if !push || !out.changed || s.pusher == nil {
		return
	}
	err := s.pusher.PushTimerSnapshot(task.ID, task.Timer.Snapshot())
	if err != nil {
		slog.Warn("Timer push failed",
			log.TaskID(task.ID),
			log.Error(err))
	}
}

func taskError(err error, id api.TaskID) error {
	if errors.Is(err, store.ErrTaskNotFound) {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return err
}
