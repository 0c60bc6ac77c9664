package api_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

func TestHasAccess(t *testing.T) {
	task := &api.Task{
		ID:         "task-1",
		OwnerID:    "alice",
		SharedWith: []api.UserID{"bob"},
	}

	assert.True(t, task.HasAccess("alice"))
	assert.True(t, task.HasAccess("bob"))
	assert.False(t, task.HasAccess("carol"))
	assert.False(t, task.HasAccess(""))
}

func TestHasAccessEmptyOwner(t *testing.T) {
	task := &api.Task{ID: "task-1"}
	assert.False(t, task.HasAccess(""))
}

func TestIsOwner(t *testing.T) {
	task := &api.Task{OwnerID: "alice", SharedWith: []api.UserID{"bob"}}
	assert.True(t, task.IsOwner("alice"))
	assert.False(t, task.IsOwner("bob"))
	assert.False(t, task.IsOwner(""))
}

func TestRecipients(t *testing.T) {
	task := &api.Task{
		OwnerID:    "alice",
		SharedWith: []api.UserID{"bob", "alice", "", "carol", "bob"},
	}
	assert.Equal(t,
		[]api.UserID{"alice", "bob", "carol"}, task.Recipients(),
	)
}

func TestCloneIsDeep(t *testing.T) {
	now := time.UnixMilli(1_000)
	task := &api.Task{
		ID:         "task-1",
		OwnerID:    "alice",
		SharedWith: []api.UserID{"bob"},
		Timer:      api.NewTimerState(0).WithLastUpdate(now),
	}

	cl := task.Clone()
	cl.SharedWith[0] = "mallory"
	*cl.Timer.LastUpdate = now.Add(time.Hour)

	assert.Equal(t, api.UserID("bob"), task.SharedWith[0])
	assert.Equal(t, now, *task.Timer.LastUpdate)
}

func TestView(t *testing.T) {
	task := &api.Task{
		ID:         "task-1",
		OwnerID:    "alice",
		SharedWith: []api.UserID{"bob"},
		Timer:      api.NewTimerState(0),
	}

	assert.True(t, task.View("alice").IsOwner)
	assert.False(t, task.View("bob").IsOwner)

	data, err := json.Marshal(task.View("alice"))
	assert.NoError(t, err)

	var got map[string]any
	assert.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "task-1", got["id"])
	assert.Equal(t, true, got["is_owner"])
	timer, ok := got["timer"].(map[string]any)
	assert.True(t, ok)
	assert.Equal(t, float64(api.DefaultTimerDuration),
		timer["configured_duration_millis"])
	assert.Nil(t, timer["last_update_timestamp"])
}
