package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain/execution"
	"github.com/Strob0t/agentrelay/internal/port/notifier"
)

// notifyTimeout bounds one delivery attempt to one channel.
const notifyTimeout = 10 * time.Second

// NotificationService tells reviewers when an execution needs them and
// when it ends. Deliveries run in the background so a slow webhook never
// holds up an execution.
type NotificationService struct {
	notifiers     []notifier.Notifier
	enabledEvents map[string]bool
	baseURL       string

	wg sync.WaitGroup
}

// NewNotificationService creates a NotificationService. An empty
// enabledEvents list enables every event. baseURL, when set, is the
// externally reachable API root used to build execution links.
func NewNotificationService(notifiers []notifier.Notifier, enabledEvents []string, baseURL string) *NotificationService {
	enabled := make(map[string]bool, len(enabledEvents))
	for _, e := range enabledEvents {
		enabled[e] = true
	}
	return &NotificationService{
		notifiers:     notifiers,
		enabledEvents: enabled,
		baseURL:       strings.TrimRight(baseURL, "/"),
	}
}

// ExecutionChanged notifies about st when its status is one people act on
// or wait for. Other transitions are ignored.
func (s *NotificationService) ExecutionChanged(ctx context.Context, st *execution.State) {
	n, ok := s.notificationFor(st)
	if !ok {
		return
	}
	s.Notify(ctx, n)
}

// Notify sends n to every notifier in the background. Errors are logged
// and do not affect delivery to other notifiers.
func (s *NotificationService) Notify(ctx context.Context, n notifier.Notification) {
	if len(s.enabledEvents) > 0 && !s.enabledEvents[n.Event] {
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, provider := range s.notifiers {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
			defer cancel()

			if err := provider.Send(sendCtx, n); err != nil {
				slog.WarnContext(ctx, "notification send failed",
					"provider", provider.Name(),
					"event", n.Event,
					"execution_id", n.ExecutionID,
					"error", err,
				)
				return
			}
			slog.DebugContext(ctx, "notification sent", "provider", provider.Name(), "event", n.Event)
		}()
	}
}

// Wait blocks until in-flight deliveries finish.
func (s *NotificationService) Wait() { s.wg.Wait() }

// NotifierCount returns the number of configured notifiers.
func (s *NotificationService) NotifierCount() int {
	return len(s.notifiers)
}

func (s *NotificationService) notificationFor(st *execution.State) (notifier.Notification, bool) {
	n := notifier.Notification{ExecutionID: st.ID}
	if s.baseURL != "" {
		n.Link = s.baseURL + "/api/v1/executions/" + st.ID
	}
	subject := st.ID
	if st.Plan.Goal != "" {
		subject = fmt.Sprintf("%q (%s)", st.Plan.Goal, st.ID)
	}

	switch st.Status {
	case execution.StatusPendingApproval:
		n.Event, n.Level, n.Title = notifier.EventPendingApproval, "warning", "Approval required"
		n.Message = fmt.Sprintf("Execution %s is waiting for approval before group %d of %d.",
			subject, st.Cursor+1, st.GroupCount())
	case execution.StatusCompleted:
		n.Event, n.Level, n.Title = notifier.EventCompleted, "success", "Execution completed"
		n.Message = fmt.Sprintf("Execution %s completed with %d results.", subject, len(st.Results))
		if st.Degraded {
			n.Level = "warning"
			n.Message += " Some steps failed and were skipped over."
		}
	case execution.StatusFailed:
		n.Event, n.Level, n.Title = notifier.EventFailed, "error", "Execution failed"
		n.Message = fmt.Sprintf("Execution %s failed: %s", subject, st.Error)
	case execution.StatusRejected:
		n.Event, n.Level, n.Title = notifier.EventRejected, "info", "Execution rejected"
		n.Message = fmt.Sprintf("Execution %s was rejected.", subject)
		if st.Error != "" {
			n.Message += " Reason: " + st.Error
		}
	default:
		return n, false
	}
	return n, true
}
