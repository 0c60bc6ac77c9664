// Package store persists tasks, their embedded timers, and notifications
//
// Three backends implement the same contract: an in-memory store for tests
// and single-process development, Redis (the default), and SQLite. Every
// timer mutation goes through UpdateTask, which recomputes from the row as
// persisted at write time rather than from a caller's stale copy
package store

import (
	"context"
	"errors"
	"time"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

type (
	// TaskStore persists task rows and their embedded timer state
	TaskStore interface {
		// CreateTask inserts a task, filling in an id, timestamps and a
		// default timer when they are missing
		CreateTask(context.Context, *api.Task) error

		// GetTask returns a copy of the persisted task
		GetTask(context.Context, api.TaskID) (*api.Task, error)

		// UpdateTask atomically applies fn to the persisted task. fn may
		// be called more than once when a concurrent writer interferes.
		// If fn returns ErrSkipUpdate nothing is written and the current
		// row is returned; any other error aborts without writing
		UpdateTask(context.Context, api.TaskID, UpdateFunc) (*api.Task, error)

		// ListActiveTimers returns every task whose timer is running
		ListActiveTimers(context.Context) ([]*api.Task, error)

		// DeleteTask removes the task together with its timer
		DeleteTask(context.Context, api.TaskID) error
	}

	// UpdateFunc mutates a task in place inside UpdateTask
	UpdateFunc func(*api.Task) error

	// NotificationStore persists per-user notifications
	NotificationStore interface {
		AddNotification(context.Context, *api.Notification) error
		ListUnread(context.Context, api.UserID) ([]*api.Notification, error)
		MarkRead(context.Context, api.UserID, api.NotificationID) error
		MarkAllRead(context.Context, api.UserID) (int, error)
		DeleteNotification(
			context.Context, api.UserID, api.NotificationID,
		) error
	}

	// Store combines both stores behind a single backend
	Store interface {
		TaskStore
		NotificationStore
		Close() error
	}
)

var (
	ErrTaskNotFound         = errors.New("task not found")
	ErrTaskExists           = errors.New("task already exists")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrConflict             = errors.New("concurrent update conflict")

	// ErrSkipUpdate may be returned by an UpdateFunc to leave the row as is
	ErrSkipUpdate = errors.New("skip update")
)

// prepareTask fills the defaults every backend applies on insert
func prepareTask(t *api.Task, now time.Time) {
	if t.ID == "" {
		t.ID = api.NewTaskID()
	}
	if t.Timer.ConfiguredDuration <= 0 {
		t.Timer = api.NewTimerState(0)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}

// prepareNotification fills the defaults every backend applies on insert
func prepareNotification(n *api.Notification, now time.Time) {
	if n.ID == "" {
		n.ID = api.NewNotificationID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
}
