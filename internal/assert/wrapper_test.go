package assert_test

import (
	"testing"
	"time"

	"github.com/maximilianalessandronmartin/taskquest/internal/assert"
	"github.com/maximilianalessandronmartin/taskquest/internal/config"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

func TestNew(t *testing.T) {
	w := assert.New(t)
	if w.T != t {
		t.Error("Wrapper.T should be set to the testing.T instance")
	}
	if w.Assertions == nil || w.Require == nil {
		t.Error("Wrapper assertions should be initialized")
	}
}

func TestTimerHelpers(t *testing.T) {
	w := assert.New(t)
	now := time.Now()

	running := api.NewTimerState(60_000).WithLastUpdate(now)
	running.Active = true
	w.TimerRunning(running, 60_000)
	w.TimerValid(running)

	stopped := api.NewTimerState(60_000)
	stopped.Remaining = 0
	w.TimerStopped(stopped, 0)
	w.TimerValid(stopped)
}

func TestConfigHelpers(t *testing.T) {
	w := assert.New(t)
	cfg := config.NewDefaultConfig()
	w.ConfigValid(cfg)

	cfg.APIPort = 0
	w.ConfigInvalid(cfg, "invalid API port")
}

func TestEventually(t *testing.T) {
	w := assert.New(t)
	calls := 0
	w.Eventually(func() bool {
		calls++
		return calls == 3
	}, time.Second, "condition never passed")
}
