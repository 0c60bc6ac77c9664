package assert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maximilianalessandronmartin/taskquest/internal/config"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// Wrapper wraps testify assertions with timer-specific helpers
type Wrapper struct {
	*testing.T
	*assert.Assertions
	Require *assert.Assertions
}

// DefaultRetryInterval is the default polling interval for Eventually checks
const DefaultRetryInterval = 10 * time.Millisecond

// New creates a new test assertion wrapper with both assert and require from
// testify plus timer-specific helpers
func New(t *testing.T) *Wrapper {
	return &Wrapper{
		T:          t,
		Assertions: assert.New(t),
		Require:    assert.New(t),
	}
}

// TimerRunning asserts that a timer is counting down from remaining
func (w *Wrapper) TimerRunning(st api.TimerState, remaining int64) {
	w.Helper()
	w.True(st.Active, "timer should be running")
	w.Equal(remaining, st.Remaining)
	w.NotNil(st.LastUpdate, "running timer should have a last update")
}

// TimerStopped asserts that a timer is paused at remaining
func (w *Wrapper) TimerStopped(st api.TimerState, remaining int64) {
	w.Helper()
	w.False(st.Active, "timer should be stopped")
	w.Equal(remaining, st.Remaining)
}

// TimerValid asserts the timer's structural invariants
func (w *Wrapper) TimerValid(st api.TimerState) {
	w.Helper()
	w.Positive(st.ConfiguredDuration)
	w.GreaterOrEqual(st.Remaining, int64(0))
	w.LessOrEqual(st.Remaining, st.ConfiguredDuration)
	if st.Active {
		w.Positive(st.Remaining, "running timer cannot be exhausted")
	}
}

// ConfigValid asserts that a configuration is valid
func (w *Wrapper) ConfigValid(cfg *config.Config) {
	w.Helper()
	w.NoError(cfg.Validate())
	w.True(cfg.APIPort > 0 && cfg.APIPort <= 65535)
	w.True(cfg.Timer.SweepInterval > 0)
}

// ConfigInvalid asserts that a configuration is invalid
func (w *Wrapper) ConfigInvalid(cfg *config.Config, contains string) {
	w.Helper()
	err := cfg.Validate()
	w.Error(err)
	if contains != "" && err != nil {
		w.Contains(err.Error(), contains)
	}
}

// Eventually runs a condition repeatedly until it passes or times out
func (w *Wrapper) Eventually(
	condition func() bool, timeout time.Duration, msg string, args ...any,
) {
	w.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(DefaultRetryInterval)
	}
	w.Fail(msg, args...)
}
