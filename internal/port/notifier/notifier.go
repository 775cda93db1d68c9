// Package notifier defines the port for telling people about execution
// state changes, chiefly that a plan is waiting for their approval.
package notifier

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when a notifier lacks its destination.
var ErrNotConfigured = errors.New("notifier: not configured")

// Event names carried in Notification.Event.
const (
	EventPendingApproval = "execution.pending_approval"
	EventCompleted       = "execution.completed"
	EventFailed          = "execution.failed"
	EventRejected        = "execution.rejected"
)

// Notification is the payload sent through a Notifier.
type Notification struct {
	ExecutionID string `json:"execution_id"`
	Event       string `json:"event"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	Level       string `json:"level"`          // "info", "success", "warning", "error"
	Link        string `json:"link,omitempty"` // API URL of the execution
}

// Notifier delivers notifications to one channel.
type Notifier interface {
	// Name returns the provider name (e.g. "slack").
	Name() string

	// Send delivers a notification.
	Send(ctx context.Context, n Notification) error
}
