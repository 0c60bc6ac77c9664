package helpers

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/maximilianalessandronmartin/taskquest/internal/config"
	"github.com/maximilianalessandronmartin/taskquest/internal/hub"
	"github.com/maximilianalessandronmartin/taskquest/internal/notify"
	"github.com/maximilianalessandronmartin/taskquest/internal/service"
	"github.com/maximilianalessandronmartin/taskquest/internal/store"
	"github.com/maximilianalessandronmartin/taskquest/internal/timer"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// TestTimerEnv holds all the components needed for timer service testing.
// Pushes and notifications are recorded by mocks rather than delivered
type TestTimerEnv struct {
	Store      store.Store
	Redis      *miniredis.Miniredis
	Clock      *ManualClock
	Pusher     *MockPusher
	Dispatcher *MockDispatcher
	Config     *config.Config
	Timers     *service.TimerService
}

// TestServerEnv wires the real notification service and push hub so that
// transports can be exercised end to end
type TestServerEnv struct {
	Store         store.Store
	Clock         *ManualClock
	Hub           *hub.Hub
	Notifications *notify.Service
	Config        *config.Config
	Timers        *service.TimerService
}

// NewTestConfig creates a default configuration with debug logging and the
// in-memory store
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.Store.Driver = config.DriverMemory
	return cfg
}

// NewTestTimerEnv creates a timer service over the in-memory store
func NewTestTimerEnv(t *testing.T) *TestTimerEnv {
	t.Helper()
	return newTestTimerEnv(t, store.NewMemory(), nil)
}

// NewRedisTimerEnv creates a timer service over a miniredis backed store
func NewRedisTimerEnv(t *testing.T) *TestTimerEnv {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	st := store.NewRedis(client, "test-timers")
	t.Cleanup(func() { _ = st.Close() })
	return newTestTimerEnv(t, st, server)
}

func newTestTimerEnv(
	t *testing.T, st store.Store, server *miniredis.Miniredis,
) *TestTimerEnv {
	cfg := NewTestConfig()
	clock := NewManualClock(Epoch)
	pusher := NewMockPusher()
	dispatcher := NewMockDispatcher()

	return &TestTimerEnv{
		Store:      st,
		Redis:      server,
		Clock:      clock,
		Pusher:     pusher,
		Dispatcher: dispatcher,
		Config:     cfg,
		Timers: service.NewTimerService(service.Dependencies{
			Store:    st,
			Engine:   NewTestEngine(cfg),
			Pusher:   pusher,
			Notifier: notify.NewCompletionNotifier(dispatcher),
			Clock:    clock.Now,
		}),
	}
}

// NewTestServerEnv creates a timer service wired to a real hub and
// notification service over the in-memory store
func NewTestServerEnv(t *testing.T) *TestServerEnv {
	t.Helper()

	cfg := NewTestConfig()
	st := store.NewMemory()
	clock := NewManualClock(Epoch)
	h := hub.New()
	t.Cleanup(h.Close)

	notes := notify.NewService(st, h)
	return &TestServerEnv{
		Store:         st,
		Clock:         clock,
		Hub:           h,
		Notifications: notes,
		Config:        cfg,
		Timers: service.NewTimerService(service.Dependencies{
			Store:    st,
			Engine:   NewTestEngine(cfg),
			Pusher:   h,
			Notifier: notify.NewCompletionNotifier(notes),
			Clock:    clock.Now,
		}),
	}
}

// NewTestEngine creates a timer engine from the configured accounting
func NewTestEngine(cfg *config.Config) *timer.Engine {
	return timer.NewEngine(cfg.Timer.Tolerance, cfg.Timer.DefaultDuration)
}

// NewTestTask creates and persists a task owned by owner and shared with
// the given users. A positive duration overrides the default countdown
func NewTestTask(
	t *testing.T, st store.TaskStore, owner api.UserID, duration int64,
	shared ...api.UserID,
) *api.Task {
	t.Helper()
	task := &api.Task{
		Name:       "Test Task",
		OwnerID:    owner,
		SharedWith: shared,
		Timer:      api.NewTimerState(duration),
	}
	require.NoError(t, st.CreateTask(context.Background(), task))
	return task
}

// CreateTask persists a new task in the environment's store
func (e *TestTimerEnv) CreateTask(
	t *testing.T, owner api.UserID, duration int64, shared ...api.UserID,
) *api.Task {
	t.Helper()
	return NewTestTask(t, e.Store, owner, duration, shared...)
}

// StoredTimer loads the persisted timer state of a task
func (e *TestTimerEnv) StoredTimer(
	t *testing.T, id api.TaskID,
) api.TimerState {
	t.Helper()
	task, err := e.Store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return task.Timer
}

// CreateTask persists a new task in the environment's store
func (e *TestServerEnv) CreateTask(
	t *testing.T, owner api.UserID, duration int64, shared ...api.UserID,
) *api.Task {
	t.Helper()
	return NewTestTask(t, e.Store, owner, duration, shared...)
}
