package api

import "time"

type (
	// TimerState is the Pomodoro countdown embedded in a task. When Active
	// is false, Remaining is exact. When Active is true, Remaining is a
	// snapshot as of LastUpdate and the true value is Remaining minus the
	// time elapsed since then
	TimerState struct {
		LastUpdate         *time.Time `json:"last_update_timestamp"`
		ConfiguredDuration int64      `json:"configured_duration_millis"`
		Remaining          int64      `json:"remaining_millis"`
		Active             bool       `json:"active"`
	}

	// TimerSnapshot is the point-in-time pair pushed to subscribed clients
	TimerSnapshot struct {
		RemainingMillis int64 `json:"remainingMillis"`
		Active          bool  `json:"active"`
	}

	// TimerUpdateRequest carries optional client overrides for a timer
	TimerUpdateRequest struct {
		RemainingMillis *int64 `json:"remainingMillis,omitempty"`
		Active          *bool  `json:"active,omitempty"`
	}
)

// Durations in milliseconds
const (
	Millisecond int64 = 1
	Second            = Millisecond * 1000
	Minute            = Second * 60
	Hour              = Minute * 60
)

const (
	// DefaultTimerDuration is the length of a fresh Pomodoro countdown
	DefaultTimerDuration = 25 * Minute

	// DefaultCompletionTolerance absorbs sweep granularity so that a timer
	// ending between two sweeps is neither missed nor reported twice
	DefaultCompletionTolerance = Second
)

// NewTimerState returns an inactive, never started timer of the given
// duration. A non-positive duration selects DefaultTimerDuration
func NewTimerState(duration int64) TimerState {
	if duration <= 0 {
		duration = DefaultTimerDuration
	}
	return TimerState{
		ConfiguredDuration: duration,
		Remaining:          duration,
	}
}

// Snapshot returns the client-facing view of the timer
func (s TimerState) Snapshot() TimerSnapshot {
	return TimerSnapshot{
		RemainingMillis: s.Remaining,
		Active:          s.Active,
	}
}

// WithLastUpdate returns a copy of the state with LastUpdate set to at
func (s TimerState) WithLastUpdate(at time.Time) TimerState {
	res := s
	res.LastUpdate = &at
	return res
}
