package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
	"github.com/maximilianalessandronmartin/taskquest/pkg/log"
)

// CompletionNotifier tells everyone with access to a task that its timer
// ran out
type CompletionNotifier struct {
	dispatcher Dispatcher
}

const (
	ownerCompletedMessage  = "The Pomodoro timer for task %q has expired!"
	sharedCompletedMessage = "The Pomodoro timer for task %q, " +
		"which was shared with you, has expired!"
)

// NewCompletionNotifier creates a notifier that sends through d
func NewCompletionNotifier(d Dispatcher) *CompletionNotifier {
	return &CompletionNotifier{dispatcher: d}
}

// TimerCompleted sends one TASK_COMPLETED notification to the owner and
// then one to each shared user. A recipient that fails is logged and
// skipped; the joined failures are returned
func (n *CompletionNotifier) TimerCompleted(
	ctx context.Context, task *api.Task,
) error {
	payload := api.TaskCompletedPayload{TaskID: task.ID}

	var errs []error
	for _, user := range task.Recipients() {
		msg := fmt.Sprintf(sharedCompletedMessage, task.Name)
		if task.IsOwner(user) {
			msg = fmt.Sprintf(ownerCompletedMessage, task.Name)
		}

		_, err := n.dispatcher.Notify(
			ctx, user, api.NotificationTaskCompleted, msg, payload,
		)
		if err != nil {
			slog.Error("Completion notification failed",
				log.TaskID(task.ID),
				log.UserID(user),
				log.Error(err))
			errs = append(errs, fmt.Errorf("notify %s: %w", user, err))
		}
	}
	return errors.Join(errs...)
}
