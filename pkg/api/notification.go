package api

import (
	"encoding/json"
	"time"
)

type (
	// NotificationType classifies a user notification
	NotificationType string

	// Notification is a persisted message for a single recipient
	Notification struct {
		CreatedAt   time.Time        `json:"created_at"`
		ID          NotificationID   `json:"id"`
		RecipientID UserID           `json:"recipient_id"`
		Type        NotificationType `json:"type"`
		Message     string           `json:"message"`
		Payload     json.RawMessage  `json:"payload,omitempty"`
		Read        bool             `json:"read"`
	}

	// TaskCompletedPayload is the structured payload of a timer completion
	TaskCompletedPayload struct {
		TaskID TaskID `json:"taskId"`
	}
)

const (
	NotificationTaskCompleted       NotificationType = "TASK_COMPLETED"
	NotificationTaskShared          NotificationType = "TASK_SHARED"
	NotificationFriendRequest       NotificationType = "FRIEND_REQUEST"
	NotificationAchievementUnlocked NotificationType = "ACHIEVEMENT_UNLOCKED"
)
