package api

import "github.com/google/uuid"

type (
	// TaskID is a unique identifier for a task
	TaskID string

	// UserID identifies a user. Users are managed by the authentication
	// collaborator; this service only ever sees their ids
	UserID string

	// NotificationID is a unique identifier for a persisted notification
	NotificationID string
)

// NewTaskID generates a random task identifier
func NewTaskID() TaskID {
	return TaskID(uuid.NewString())
}

// NewNotificationID generates a random notification identifier
func NewNotificationID() NotificationID {
	return NotificationID(uuid.NewString())
}
