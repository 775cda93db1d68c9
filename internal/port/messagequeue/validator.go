package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errMissingExecutionID = errors.New("execution_id is required")

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case subject == SubjectExecutionResume:
		var p ResumeRequestedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.ExecutionID == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errMissingExecutionID)
		}
	case subject == SubjectExecutionStatus:
		var p ExecutionStatusPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
	case strings.HasPrefix(subject, SubjectNotify+"."):
		var p NotifyPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
	}
	return nil
}
