package helpers

import (
	"testing"
	"time"

	"github.com/kode4food/caravan/topic"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// PushWaiter waits for hub messages on a topic. Create it before triggering
// the action
type PushWaiter struct {
	consumer topic.Consumer[*api.PushMessage]
	topic    string
}

// DefaultWaitTimeout bounds how long a PushWaiter blocks
const DefaultWaitTimeout = 5 * time.Second

// NewPushWaiter subscribes to every message published on name
func NewPushWaiter(
	cons topic.Consumer[*api.PushMessage], name string,
) *PushWaiter {
	return &PushWaiter{
		consumer: cons,
		topic:    name,
	}
}

// Wait blocks until a message on the waiter's topic arrives
func (w *PushWaiter) Wait(t *testing.T) *api.PushMessage {
	t.Helper()

	deadline := time.NewTimer(DefaultWaitTimeout)
	defer deadline.Stop()

	for {
		select {
		case msg, ok := <-w.consumer.Receive():
			if !ok {
				t.Fatalf("consumer closed waiting for %s", w.topic)
			}
			if msg != nil && msg.Topic == w.topic {
				return msg
			}
		case <-deadline.C:
			t.Fatalf("timeout waiting for %s", w.topic)
		}
	}
}

// Close releases the underlying consumer
func (w *PushWaiter) Close() {
	w.consumer.Close()
}
