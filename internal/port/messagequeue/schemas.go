package messagequeue

import "time"

// ResumeRequestedPayload is the schema for executions.resume messages.
type ResumeRequestedPayload struct {
	ExecutionID string    `json:"execution_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// ExecutionStatusPayload is the schema for executions.status messages.
type ExecutionStatusPayload struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	Cursor      int    `json:"cursor"`
	Groups      int    `json:"groups"`
	Degraded    bool   `json:"degraded,omitempty"`
	Error       string `json:"error,omitempty"`
}

// NotifyPayload is the schema for notify.{topic} messages.
type NotifyPayload struct {
	Agent       string         `json:"agent"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Data        map[string]any `json:"data"`
}
