package helpers

import (
	"context"
	"sync"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

type (
	// MockDispatcher records notifications instead of delivering them
	MockDispatcher struct {
		errors map[api.UserID]error
		sent   []*Dispatched
		mu     sync.Mutex
	}

	// Dispatched is one recorded Notify call
	Dispatched struct {
		Recipient api.UserID
		Type      api.NotificationType
		Message   string
		Payload   any
	}
)

// NewMockDispatcher creates an empty MockDispatcher
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{
		errors: map[api.UserID]error{},
	}
}

// Notify records the call, or fails if an error is set for recipient
func (d *MockDispatcher) Notify(
	_ context.Context, recipient api.UserID, typ api.NotificationType,
	message string, payload any,
) (*api.Notification, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.errors[recipient]; ok {
		return nil, err
	}
	d.sent = append(d.sent, &Dispatched{
		Recipient: recipient,
		Type:      typ,
		Message:   message,
		Payload:   payload,
	})
	return &api.Notification{
		ID:          api.NewNotificationID(),
		RecipientID: recipient,
		Type:        typ,
		Message:     message,
	}, nil
}

// SetError makes every Notify for recipient fail with err
func (d *MockDispatcher) SetError(recipient api.UserID, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors[recipient] = err
}

// Sent returns the recorded calls, oldest first
func (d *MockDispatcher) Sent() []*Dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := make([]*Dispatched, len(d.sent))
	copy(res, d.sent)
	return res
}

// Recipients returns the recipient of each recorded call, oldest first
func (d *MockDispatcher) Recipients() []api.UserID {
	d.mu.Lock()
	defer d.mu.Unlock()
	res := make([]api.UserID, len(d.sent))
	for i, s := range d.sent {
		res[i] = s.Recipient
	}
	return res
}
