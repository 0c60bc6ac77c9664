package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/maximilianalessandronmartin/taskquest/internal/assert"
	"github.com/maximilianalessandronmartin/taskquest/internal/assert/helpers"
	"github.com/maximilianalessandronmartin/taskquest/internal/metrics"
	"github.com/maximilianalessandronmartin/taskquest/internal/service"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

func ptr[T any](v T) *T {
	return &v
}

func TestStartTimer(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	view, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.True(view.IsOwner)
	as.TimerRunning(view.Timer, 60_000)
	as.Equal(env.Clock.Now(), *view.Timer.LastUpdate)
	as.TimerRunning(env.StoredTimer(t, task.ID), 60_000)

	last, ok := env.Pusher.Last(task.ID)
	as.True(ok)
	as.Equal(api.TimerSnapshot{RemainingMillis: 60_000, Active: true}, last)
}

func TestStartExhaustedTimerRestarts(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	_, err := env.Timers.UpdateTimer(ctx, task.ID,
		&api.TimerUpdateRequest{RemainingMillis: ptr[int64](0)}, "alice",
	)
	require.NoError(t, err)

	view, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.TimerRunning(view.Timer, 60_000)
}

func TestSweepCompletionScenario(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)

	env.Clock.AdvanceMillis(65_000)
	changed, err := env.Timers.Tick(ctx, task.ID)
	require.NoError(t, err)
	as.True(changed)
	as.TimerStopped(env.StoredTimer(t, task.ID), 0)

	sent := env.Dispatcher.Sent()
	as.Len(sent, 1)
	as.Equal(api.UserID("alice"), sent[0].Recipient)
	as.Equal(api.NotificationTaskCompleted, sent[0].Type)
	as.Equal(api.TaskCompletedPayload{TaskID: task.ID}, sent[0].Payload)

	last, _ := env.Pusher.Last(task.ID)
	as.Equal(api.TimerSnapshot{RemainingMillis: 0, Active: false}, last)

	env.Clock.AdvanceMillis(1_000)
	changed, err = env.Timers.Tick(ctx, task.ID)
	require.NoError(t, err)
	as.False(changed)

	_, err = env.Timers.GetTask(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.Len(env.Dispatcher.Sent(), 1)
}

func TestUpdateFoldsElapsedBeforeReactivation(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 0)
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	env.Clock.AdvanceMillis(10_000)

	view, err := env.Timers.UpdateTimer(ctx, task.ID,
		&api.TimerUpdateRequest{Active: ptr(true)}, "alice",
	)
	require.NoError(t, err)
	as.TimerRunning(view.Timer, api.DefaultTimerDuration-10_000)
	as.Equal(env.Clock.Now(), *view.Timer.LastUpdate)
}

func TestUpdateOverrideIsVerbatim(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	env.Clock.AdvanceMillis(10_000)

	view, err := env.Timers.UpdateTimer(ctx, task.ID,
		&api.TimerUpdateRequest{RemainingMillis: ptr[int64](30_000)}, "alice",
	)
	require.NoError(t, err)
	as.TimerRunning(view.Timer, 30_000)

	view, err = env.Timers.UpdateTimer(ctx, task.ID,
		&api.TimerUpdateRequest{Active: ptr(false)}, "alice",
	)
	require.NoError(t, err)
	as.TimerStopped(view.Timer, 30_000)
}

func TestUpdateRejectsInvalidRemaining(t *testing.T) {
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	for _, remaining := range []int64{-1, 60_001} {
		_, err := env.Timers.UpdateTimer(ctx, task.ID,
			&api.TimerUpdateRequest{RemainingMillis: ptr(remaining)}, "alice",
		)
		require.ErrorIs(t, err, service.ErrInvalidTimerState)
	}
	assert.New(t).TimerStopped(env.StoredTimer(t, task.ID), 60_000)
}

func TestPauseIsIdempotent(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	env.Clock.AdvanceMillis(5_000)

	view, err := env.Timers.PauseTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.TimerStopped(view.Timer, 55_000)

	env.Clock.AdvanceMillis(5_000)
	view, err = env.Timers.PauseTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.TimerStopped(view.Timer, 55_000)
	as.Empty(env.Dispatcher.Sent())
}

func TestPauseAfterExpiryNotifies(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000, "bob")
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "bob")
	require.NoError(t, err)
	env.Clock.AdvanceMillis(61_000)

	view, err := env.Timers.PauseTimer(ctx, task.ID, "bob")
	require.NoError(t, err)
	as.False(view.IsOwner)
	as.TimerStopped(view.Timer, 0)
	as.Equal([]api.UserID{"alice", "bob"}, env.Dispatcher.Recipients())

	sent := env.Dispatcher.Sent()
	as.NotEqual(sent[0].Message, sent[1].Message)
	as.Contains(sent[1].Message, "shared with you")
}

func TestResetRestoresFullDuration(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	env.Clock.AdvanceMillis(20_000)

	view, err := env.Timers.ResetTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.TimerStopped(view.Timer, 60_000)

	last, _ := env.Pusher.Last(task.ID)
	as.Equal(api.TimerSnapshot{RemainingMillis: 60_000}, last)
}

func TestGetTaskPersistsAccounting(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000, "bob")
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	pushes := len(env.Pusher.Pushed(task.ID))
	env.Clock.AdvanceMillis(10_000)

	view, err := env.Timers.GetTask(ctx, task.ID, "bob")
	require.NoError(t, err)
	as.False(view.IsOwner)
	as.TimerRunning(view.Timer, 50_000)
	as.TimerRunning(env.StoredTimer(t, task.ID), 50_000)
	as.Len(env.Pusher.Pushed(task.ID), pushes)

	env.Clock.AdvanceMillis(50_000)
	view, err = env.Timers.GetTask(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.TimerStopped(view.Timer, 0)
	as.Equal([]api.UserID{"alice", "bob"}, env.Dispatcher.Recipients())
}

func TestGetTaskRestampsAfterClockStepsBack(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)

	skewed := helpers.Epoch.Add(-10 * time.Second)
	env.Clock.Set(skewed)
	view, err := env.Timers.GetTask(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.TimerRunning(view.Timer, 60_000)
	as.Equal(skewed, *env.StoredTimer(t, task.ID).LastUpdate)

	env.Clock.AdvanceMillis(5_000)
	view, err = env.Timers.GetTask(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.TimerRunning(view.Timer, 55_000)
	as.TimerRunning(env.StoredTimer(t, task.ID), 55_000)
}

func TestGetTaskInactiveDoesNotWrite(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	before, err := env.Store.GetTask(ctx, task.ID)
	require.NoError(t, err)

	env.Clock.AdvanceMillis(10_000)
	view, err := env.Timers.GetTask(ctx, task.ID, "alice")
	require.NoError(t, err)
	as.TimerStopped(view.Timer, 60_000)

	after, err := env.Store.GetTask(ctx, task.ID)
	require.NoError(t, err)
	as.Equal(before.UpdatedAt, after.UpdatedAt)
}

func TestAccessEnforcement(t *testing.T) {
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000, "bob")
	ctx := context.Background()

	ops := map[string]func(api.TaskID, api.UserID) error{
		"start": func(id api.TaskID, u api.UserID) error {
			_, err := env.Timers.StartTimer(ctx, id, u)
			return err
		},
		"pause": func(id api.TaskID, u api.UserID) error {
			_, err := env.Timers.PauseTimer(ctx, id, u)
			return err
		},
		"reset": func(id api.TaskID, u api.UserID) error {
			_, err := env.Timers.ResetTimer(ctx, id, u)
			return err
		},
		"update": func(id api.TaskID, u api.UserID) error {
			_, err := env.Timers.UpdateTimer(ctx, id,
				&api.TimerUpdateRequest{Active: ptr(true)}, u,
			)
			return err
		},
		"get": func(id api.TaskID, u api.UserID) error {
			_, err := env.Timers.GetTask(ctx, id, u)
			return err
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, op(task.ID, "mallory"), service.ErrAccessDenied)
			require.ErrorIs(t, op("missing", "alice"), service.ErrTaskNotFound)
			require.ErrorIs(t, op(task.ID, ""), service.ErrUserRequired)
		})
	}

	as := assert.New(t)
	as.TimerStopped(env.StoredTimer(t, task.ID), 60_000)
	as.Empty(env.Pusher.Pushed(task.ID))

	as.NoError(env.Timers.CanAccess(ctx, task.ID, "bob"))
	as.ErrorIs(env.Timers.CanAccess(ctx, task.ID, "mallory"),
		service.ErrAccessDenied)
	as.ErrorIs(env.Timers.CanAccess(ctx, "missing", "bob"),
		service.ErrTaskNotFound)
}

func TestPushFailureDoesNotFailOperation(t *testing.T) {
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	env.Pusher.SetError(errors.New("hub down"))

	view, err := env.Timers.StartTimer(context.Background(), task.ID, "alice")
	require.NoError(t, err)
	assert.New(t).TimerRunning(view.Timer, 60_000)
}

func TestNotificationFailureIsCounted(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000, "bob")
	ctx := context.Background()
	env.Dispatcher.SetError("bob", errors.New("inbox unavailable"))

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	env.Clock.AdvanceMillis(60_000)

	before := testutil.ToFloat64(metrics.NotificationFailures)
	changed, err := env.Timers.Tick(ctx, task.ID)
	require.NoError(t, err)
	as.True(changed)
	as.TimerStopped(env.StoredTimer(t, task.ID), 0)
	as.Equal([]api.UserID{"alice"}, env.Dispatcher.Recipients())
	as.Equal(before+1, testutil.ToFloat64(metrics.NotificationFailures))
}

func TestTickStampsMissingLastUpdate(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	ctx := context.Background()

	task := &api.Task{OwnerID: "alice", Timer: api.NewTimerState(60_000)}
	task.Timer.Active = true
	require.NoError(t, env.Store.CreateTask(ctx, task))

	changed, err := env.Timers.Tick(ctx, task.ID)
	require.NoError(t, err)
	as.True(changed)

	st := env.StoredTimer(t, task.ID)
	as.TimerRunning(st, 60_000)
	as.Equal(env.Clock.Now(), *st.LastUpdate)
	as.Empty(env.Dispatcher.Sent())
	as.Empty(env.Pusher.Pushed(task.ID))
}

func TestTickSkipsWithoutElapsedTime(t *testing.T) {
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	pushes := len(env.Pusher.Pushed(task.ID))

	changed, err := env.Timers.Tick(ctx, task.ID)
	require.NoError(t, err)
	assert.New(t).False(changed)
	assert.New(t).Len(env.Pusher.Pushed(task.ID), pushes)
}

func TestSnapshotIsReadOnly(t *testing.T) {
	as := assert.New(t)
	env := helpers.NewTestTimerEnv(t)
	task := env.CreateTask(t, "alice", 60_000)
	ctx := context.Background()

	_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
	require.NoError(t, err)
	env.Clock.AdvanceMillis(15_000)

	snap, err := env.Timers.Snapshot(ctx, task.ID)
	require.NoError(t, err)
	as.Equal(api.TimerSnapshot{RemainingMillis: 45_000, Active: true}, snap)
	as.TimerRunning(env.StoredTimer(t, task.ID), 60_000)

	_, err = env.Timers.Snapshot(ctx, "missing")
	as.ErrorIs(err, service.ErrTaskNotFound)
}

func TestConcurrentObserversNotifyOnce(t *testing.T) {
	for name, newEnv := range map[string]func(*testing.T) *helpers.TestTimerEnv{
		"memory": helpers.NewTestTimerEnv,
		"redis":  helpers.NewRedisTimerEnv,
	} {
		t.Run(name, func(t *testing.T) {
			env := newEnv(t)
			task := env.CreateTask(t, "alice", 60_000, "bob")
			ctx := context.Background()

			_, err := env.Timers.StartTimer(ctx, task.ID, "alice")
			require.NoError(t, err)
			env.Clock.AdvanceMillis(70_000)

			as := assert.New(t)
			var wg sync.WaitGroup
			for i := range 10 {
				wg.Go(func() {
					if i%2 == 0 {
						_, err := env.Timers.Tick(ctx, task.ID)
						as.NoError(err)
						return
					}
					_, err := env.Timers.GetTask(ctx, task.ID, "bob")
					as.NoError(err)
				})
			}
			wg.Wait()

			as.TimerStopped(env.StoredTimer(t, task.ID), 0)
			as.Equal([]api.UserID{"alice", "bob"}, env.Dispatcher.Recipients())
		})
	}
}
