package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maximilianalessandronmartin/taskquest/internal/notify"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

type (
	sent struct {
		recipient api.UserID
		typ       api.NotificationType
		message   string
		payload   any
	}

	recorder struct {
		fail map[api.UserID]bool
		sent []sent
		mu   sync.Mutex
	}
)

func (r *recorder) Notify(
	_ context.Context, recipient api.UserID, typ api.NotificationType,
	message string, payload any,
) (*api.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[recipient] {
		return nil, errors.New("unreachable")
	}
	r.sent = append(r.sent, sent{recipient, typ, message, payload})
	return &api.Notification{RecipientID: recipient, Type: typ}, nil
}

func TestTimerCompletedOwnerThenShared(t *testing.T) {
	rec := &recorder{}
	n := notify.NewCompletionNotifier(rec)

	task := &api.Task{
		ID:         "t1",
		Name:       "Write report",
		OwnerID:    "alice",
		SharedWith: []api.UserID{"bob", "carol", "alice"},
	}
	require.NoError(t, n.TimerCompleted(context.Background(), task))

	require.Len(t, rec.sent, 3)
	assert.Equal(t, api.UserID("alice"), rec.sent[0].recipient)
	assert.Equal(t, api.UserID("bob"), rec.sent[1].recipient)
	assert.Equal(t, api.UserID("carol"), rec.sent[2].recipient)

	assert.Equal(t,
		`The Pomodoro timer for task "Write report" has expired!`,
		rec.sent[0].message,
	)
	assert.Equal(t,
		`The Pomodoro timer for task "Write report", `+
			`which was shared with you, has expired!`,
		rec.sent[1].message,
	)
	for _, s := range rec.sent {
		assert.Equal(t, api.NotificationTaskCompleted, s.typ)
		assert.Equal(t, api.TaskCompletedPayload{TaskID: "t1"}, s.payload)
	}
}

func TestTimerCompletedContinuesAfterFailure(t *testing.T) {
	rec := &recorder{fail: map[api.UserID]bool{"bob": true}}
	n := notify.NewCompletionNotifier(rec)

	task := &api.Task{
		ID:         "t1",
		OwnerID:    "alice",
		SharedWith: []api.UserID{"bob", "carol"},
	}
	err := n.TimerCompleted(context.Background(), task)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "bob")

	require.Len(t, rec.sent, 2)
	assert.Equal(t, api.UserID("alice"), rec.sent[0].recipient)
	assert.Equal(t, api.UserID("carol"), rec.sent[1].recipient)
}
