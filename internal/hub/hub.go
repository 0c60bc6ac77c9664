// Package hub fans realtime messages out to connected transports. Every
// message carries a topic; consumers filter for the topics they hold
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// Hub publishes push messages on a single in-process topic
type Hub struct {
	queue  topic.Topic[*api.PushMessage]
	prod   topic.Producer[*api.PushMessage]
	now    func() time.Time
	closed bool
	mu     sync.RWMutex
}

const (
	taskTopicPrefix    = "task/"
	timerTopicSuffix   = "/timer"
	userTopicPrefix    = "user/"
	notificationSuffix = "/notifications"
)

var (
	ErrHubClosed    = errors.New("hub closed")
	ErrInvalidTopic = errors.New("invalid topic")
)

// New creates an open hub
func New() *Hub {
	t := caravan.NewTopic[*api.PushMessage]()
	return &Hub{
		queue: t,
		prod:  t.NewProducer(),
		now:   time.Now,
	}
}

// Publish marshals payload and sends it to every consumer under name
func (h *Hub) Publish(name string, payload any) error {
	if name == "" {
		return ErrInvalidTopic
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrHubClosed
	}
	message.Send(h.prod, &api.PushMessage{
		Topic:     name,
		Data:      data,
		Timestamp: h.now().UnixMilli(),
	})
	return nil
}

// PushTimerSnapshot publishes a timer snapshot on the task's timer topic
func (h *Hub) PushTimerSnapshot(id api.TaskID, snap api.TimerSnapshot) error {
	return h.Publish(TimerTopic(id), snap)
}

// NewConsumer returns a consumer that sees every message published after
// it was created. Callers must Close it
func (h *Hub) NewConsumer() topic.Consumer[*api.PushMessage] {
	return h.queue.NewConsumer()
}

// Close stops publishing. Messages sent afterward are rejected
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.prod.Close()
}

// TimerTopic is the topic a task's timer snapshots are published on
func TimerTopic(id api.TaskID) string {
	return taskTopicPrefix + string(id) + timerTopicSuffix
}

// NotificationTopic is the topic a user's notifications are published on
func NotificationTopic(user api.UserID) string {
	return userTopicPrefix + string(user) + notificationSuffix
}

// ParseTimerTopic extracts the task id from a timer topic
func ParseTimerTopic(name string) (api.TaskID, bool) {
	id, ok := parseTopic(name, taskTopicPrefix, timerTopicSuffix)
	return api.TaskID(id), ok
}

// ParseNotificationTopic extracts the user id from a notification topic
func ParseNotificationTopic(name string) (api.UserID, bool) {
	id, ok := parseTopic(name, userTopicPrefix, notificationSuffix)
	return api.UserID(id), ok
}

func parseTopic(name, prefix, suffix string) (string, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, suffix)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
