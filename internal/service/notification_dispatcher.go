package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/hse-dms-api/pkg/jobs"
)

// NotificationDispatcher pushes notifications through the background job
// queue so request handlers never wait on delivery.
type NotificationDispatcher struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewNotificationDispatcher builds the dispatcher around a Notifier.
func NewNotificationDispatcher(notifier Notifier, cfg jobs.QueueConfig) *NotificationDispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := func(ctx context.Context, job jobs.Job) error {
		notification, ok := job.Payload.(Notification)
		if !ok {
			return fmt.Errorf("unexpected payload type %T", job.Payload)
		}
		return notifier.Send(ctx, notification)
	}
	return &NotificationDispatcher{
		queue:  jobs.NewQueue("notifications", handler, cfg),
		logger: logger,
	}
}

// Start launches the queue workers.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.queue.Start(ctx)
}

// Stop drains the workers.
func (d *NotificationDispatcher) Stop() {
	d.queue.Stop()
}

// Enqueue submits one notification. Failures are logged, never returned.
func (d *NotificationDispatcher) Enqueue(n Notification) {
	err := d.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    n.Kind,
		Payload: n,
	})
	if err != nil {
		d.logger.Sugar().Warnw("failed to enqueue notification", "kind", n.Kind, "recipient", n.RecipientID, "error", err)
	}
}
