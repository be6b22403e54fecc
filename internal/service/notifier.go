package service

import (
	"context"

	"go.uber.org/zap"
)

// Notification is a fire-and-forget message to one recipient. Delivery
// transport (WhatsApp, push, email) lives outside this service.
type Notification struct {
	RecipientID string `json:"recipientId"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Body        string `json:"body"`
}

// Notification kinds emitted by the engine.
const (
	NotifyKindPendingDecision  = "PENDING_DECISION"
	NotifyKindWorkflowClosed   = "WORKFLOW_CLOSED"
	NotifyKindDistribution     = "DISTRIBUTION"
	NotifyKindDeadlineOverdue  = "DEADLINE_OVERDUE"
	NotifyKindAssigneesMissing = "ASSIGNEES_MISSING"
)

// Notifier delivers notifications. Errors are logged, never propagated to
// the triggering request.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log. It stands in for the real
// gateway in development and tests.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs the notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Send implements Notifier.
func (n *LogNotifier) Send(_ context.Context, notification Notification) error {
	n.logger.Sugar().Infow("notification",
		"recipient", notification.RecipientID,
		"kind", notification.Kind,
		"title", notification.Title,
	)
	return nil
}
