package api

import (
	"slices"
	"time"
)

type (
	// Task is the persisted task row. Only the fields the timer subsystem
	// needs are modeled here; general task metadata belongs to the CRUD
	// collaborator
	Task struct {
		CreatedAt  time.Time  `json:"created_at"`
		UpdatedAt  time.Time  `json:"updated_at"`
		ID         TaskID     `json:"id"`
		Name       string     `json:"name"`
		OwnerID    UserID     `json:"owner_id"`
		SharedWith []UserID   `json:"shared_with"`
		Timer      TimerState `json:"timer"`
	}

	// TaskView is a task as seen by a specific acting user
	TaskView struct {
		Task
		IsOwner bool `json:"is_owner"`
	}
)

// HasAccess reports whether user may read or mutate the task's timer. The
// owner and every user the task is shared with have access
func (t *Task) HasAccess(user UserID) bool {
	if user == "" {
		return false
	}
	return t.OwnerID == user || slices.Contains(t.SharedWith, user)
}

// IsOwner reports whether user created the task
func (t *Task) IsOwner(user UserID) bool {
	return user != "" && t.OwnerID == user
}

// Recipients returns the owner followed by every distinct shared user
func (t *Task) Recipients() []UserID {
	res := make([]UserID, 0, len(t.SharedWith)+1)
	if t.OwnerID != "" {
		res = append(res, t.OwnerID)
	}
	for _, u := range t.SharedWith {
		if u == "" || slices.Contains(res, u) {
			continue
		}
		res = append(res, u)
	}
	return res
}

// Clone returns a deep copy of the task
func (t *Task) Clone() *Task {
	res := *t
	res.SharedWith = slices.Clone(t.SharedWith)
	if t.Timer.LastUpdate != nil {
		at := *t.Timer.LastUpdate
		res.Timer.LastUpdate = &at
	}
	return &res
}

// View returns the task as seen by user
func (t *Task) View(user UserID) *TaskView {
	return &TaskView{
		Task:    *t.Clone(),
		IsOwner: t.IsOwner(user),
	}
}
