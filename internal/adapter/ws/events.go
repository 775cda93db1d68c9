package ws

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/agentrelay/internal/domain/execution"
)

// EventExecutionStatus is sent whenever an execution's status is persisted.
const EventExecutionStatus = "execution.status"

// ExecutionStatusEvent is the payload of EventExecutionStatus.
type ExecutionStatusEvent struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	Cursor      int    `json:"cursor"`
	Groups      int    `json:"groups"`
	Degraded    bool   `json:"degraded,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ExecutionChanged broadcasts st to clients watching its status.
func (h *Hub) ExecutionChanged(_ context.Context, st *execution.State) {
	data, err := json.Marshal(ExecutionStatusEvent{
		ExecutionID: st.ID,
		Status:      string(st.Status),
		Cursor:      st.Cursor,
		Groups:      st.GroupCount(),
		Degraded:    st.Degraded,
		Error:       st.Error,
	})
	if err != nil {
		slog.Error("marshal ws event payload", "type", EventExecutionStatus, "error", err)
		return
	}
	h.broadcast(Message{Type: EventExecutionStatus, Payload: data}, st.Status)
}
