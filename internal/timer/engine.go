package timer

import (
	"errors"
	"fmt"
	"time"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// Engine applies timer transitions with a fixed completion tolerance and
// default countdown length
type Engine struct {
	Tolerance       int64
	DefaultDuration int64
}

var (
	// ErrInvalidTimerState is returned when an update would violate
	// 0 <= remaining <= configured duration
	ErrInvalidTimerState = errors.New("invalid timer state")

	ErrNegativeRemaining = fmt.Errorf(
		"%w: remaining time cannot be negative", ErrInvalidTimerState,
	)
	ErrRemainingTooLarge = fmt.Errorf(
		"%w: remaining time exceeds configured duration", ErrInvalidTimerState,
	)
)

// NewEngine creates an Engine. Non-positive arguments select the defaults
func NewEngine(tolerance, defaultDuration int64) *Engine {
	if tolerance < 0 {
		tolerance = api.DefaultCompletionTolerance
	}
	if defaultDuration <= 0 {
		defaultDuration = api.DefaultTimerDuration
	}
	return &Engine{
		Tolerance:       tolerance,
		DefaultDuration: defaultDuration,
	}
}

// Advance folds the time elapsed since the last update into st using the
// default completion tolerance
func Advance(st api.TimerState, now time.Time) (api.TimerState, bool) {
	return advance(st, now, api.DefaultCompletionTolerance)
}

// Elapsed returns the milliseconds between st.LastUpdate and now. It is
// zero for inactive or never started timers and when the clock moved
// backwards
func Elapsed(st api.TimerState, now time.Time) int64 {
	if !st.Active || st.LastUpdate == nil {
		return 0
	}
	return max(0, now.Sub(*st.LastUpdate).Milliseconds())
}

// Advance folds the time elapsed since the last update into st. The second
// result is true only when this call observed the countdown crossing zero
func (e *Engine) Advance(
	st api.TimerState, now time.Time,
) (api.TimerState, bool) {
	return advance(st, now, e.Tolerance)
}

// Start activates the countdown. A missing duration is defaulted and an
// exhausted countdown restarts from the full duration. Starting a running
// timer first folds in the elapsed time, so it may report a completion
func (e *Engine) Start(
	st api.TimerState, now time.Time,
) (api.TimerState, bool) {
	res, completed := e.Advance(e.normalize(st), now)
	if res.Remaining <= 0 {
		res.Remaining = res.ConfiguredDuration
	}
	res.Active = true
	res.LastUpdate = &now
	return res, completed
}

// Pause freezes the countdown at its current accounting. Pausing an
// already paused timer leaves the remaining time untouched
func (e *Engine) Pause(
	st api.TimerState, now time.Time,
) (api.TimerState, bool) {
	res, completed := e.Advance(e.normalize(st), now)
	res.Active = false
	return res, completed
}

// Reset restores the full configured duration and stops the countdown
func (e *Engine) Reset(st api.TimerState) api.TimerState {
	res := e.normalize(st)
	res.Remaining = res.ConfiguredDuration
	res.Active = false
	return res
}

// Update applies client overrides. A running timer has its elapsed time
// folded in before the overrides are applied, and an explicit remaining
// time replaces the accounted value verbatim
func (e *Engine) Update(
	st api.TimerState, req *api.TimerUpdateRequest, now time.Time,
) (api.TimerState, bool, error) {
	res := e.normalize(st)
	if req.RemainingMillis != nil {
		if err := checkRemaining(res, *req.RemainingMillis); err != nil {
			return st, false, err
		}
	}

	var completed bool
	if res.Active {
		res, completed = e.Advance(res, now)
	}

	if req.RemainingMillis != nil {
		res.Remaining = *req.RemainingMillis
	}
	if req.Active != nil {
		res.Active = *req.Active
	}
	if res.Active && res.Remaining <= 0 {
		res.Active = false
	}
	if res.Active {
		res.LastUpdate = &now
	}
	return res, completed, nil
}

func (e *Engine) normalize(st api.TimerState) api.TimerState {
	if st.ConfiguredDuration <= 0 {
		st.ConfiguredDuration = e.DefaultDuration
	}
	st.Remaining = min(max(st.Remaining, 0), st.ConfiguredDuration)
	return st
}

func checkRemaining(st api.TimerState, remaining int64) error {
	if remaining < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeRemaining, remaining)
	}
	if remaining > st.ConfiguredDuration {
		return fmt.Errorf("%w: %d > %d",
			ErrRemainingTooLarge, remaining, st.ConfiguredDuration)
	}
	return nil
}

func advance(
	st api.TimerState, now time.Time, tolerance int64,
) (api.TimerState, bool) {
	if !st.Active || st.LastUpdate == nil {
		return st, false
	}

	remaining := max(0, st.Remaining-Elapsed(st, now))
	completed := st.Remaining > 0 && remaining <= tolerance

	// only whole milliseconds are consumed; the remainder carries over
	res := st
	if now.Before(*st.LastUpdate) {
		// a clock stepped backwards restarts accounting from now
		res.LastUpdate = &now
	} else if elapsed := Elapsed(st, now); elapsed > 0 {
		last := st.LastUpdate.Add(time.Duration(elapsed) * time.Millisecond)
		res.LastUpdate = &last
	}
	if remaining <= tolerance {
		res.Remaining = 0
		res.Active = false
		return res, completed
	}
	res.Remaining = remaining
	return res, completed
}
