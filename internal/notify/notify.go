// Package notify persists user notifications and pushes them to the
// recipient's realtime topic
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maximilianalessandronmartin/taskquest/internal/hub"
	"github.com/maximilianalessandronmartin/taskquest/internal/metrics"
	"github.com/maximilianalessandronmartin/taskquest/internal/store"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
	"github.com/maximilianalessandronmartin/taskquest/pkg/log"
)

type (
	// Dispatcher creates a notification for a single recipient
	Dispatcher interface {
		Notify(
			ctx context.Context, recipient api.UserID,
			typ api.NotificationType, message string, payload any,
		) (*api.Notification, error)
	}

	// Publisher pushes a payload to realtime subscribers of a topic
	Publisher interface {
		Publish(topic string, payload any) error
	}

	// Service persists notifications and publishes them to the recipient
	Service struct {
		store store.NotificationStore
		pub   Publisher
	}
)

var (
	ErrRecipientRequired    = errors.New("notification recipient required")
	ErrNotificationNotFound = errors.New("notification not found")
)

var _ Dispatcher = (*Service)(nil)

// NewService creates a notification service. pub may be nil, in which case
// notifications are only persisted
func NewService(st store.NotificationStore, pub Publisher) *Service {
	return &Service{
		store: st,
		pub:   pub,
	}
}

// Notify persists the notification, then publishes it on the recipient's
// notification topic. A failed publish is logged and does not fail the call
func (s *Service) Notify(
	ctx context.Context, recipient api.UserID, typ api.NotificationType,
	message string, payload any,
) (*api.Notification, error) {
	if recipient == "" {
		return nil, ErrRecipientRequired
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	n := &api.Notification{
		RecipientID: recipient,
		Type:        typ,
		Message:     message,
		Payload:     raw,
	}
	if err := s.store.AddNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	metrics.NotificationsSent.WithLabelValues(string(typ)).Inc()

	if s.pub != nil {
		if err := s.pub.Publish(hub.NotificationTopic(recipient), n); err != nil {
			slog.Warn("Notification push failed",
				log.UserID(recipient),
				slog.String("notification_id", string(n.ID)),
				log.Error(err))
		}
	}
	return n, nil
}

// Unread lists the user's unread notifications, newest first
func (s *Service) Unread(
	ctx context.Context, user api.UserID,
) ([]*api.Notification, error) {
	res, err := s.store.ListUnread(ctx, user)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []*api.Notification{}
	}
	return res, nil
}

// MarkRead marks one of the user's notifications as read
func (s *Service) MarkRead(
	ctx context.Context, user api.UserID, id api.NotificationID,
) error {
	return notFound(s.store.MarkRead(ctx, user, id), id)
}

// MarkAllRead marks every unread notification of the user as read and
// returns how many changed
func (s *Service) MarkAllRead(
	ctx context.Context, user api.UserID,
) (int, error) {
	return s.store.MarkAllRead(ctx, user)
}

// Delete removes one of the user's notifications
func (s *Service) Delete(
	ctx context.Context, user api.UserID, id api.NotificationID,
) error {
	return notFound(s.store.DeleteNotification(ctx, user, id), id)
}

func notFound(err error, id api.NotificationID) error {
	if errors.Is(err, store.ErrNotificationNotFound) {
		return fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	return err
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode notification payload: %w", err)
		}
		return data, nil
	}
}
