package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateValidResume(t *testing.T) {
	data := []byte(`{"execution_id":"e1","requested_at":"2026-01-02T03:04:05Z"}`)
	if err := Validate(SubjectExecutionResume, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateResumeRequiresExecutionID(t *testing.T) {
	err := Validate(SubjectExecutionResume, []byte(`{}`))
	if err == nil {
		t.Fatal("expected error for missing execution_id")
	}
	if !strings.Contains(err.Error(), "execution_id is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateValidStatus(t *testing.T) {
	data := []byte(`{"execution_id":"e1","status":"PENDING_APPROVAL","cursor":1,"groups":3}`)
	if err := Validate(SubjectExecutionStatus, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateNotifySubject(t *testing.T) {
	data := []byte(`{"agent":"announce-change","data":{"record":"r1"}}`)
	if err := Validate(SubjectNotify+".changes", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	// Unknown subjects should pass.
	data := []byte(`{"foo":"bar"}`)
	if err := Validate("unknown.subject", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	err := Validate(SubjectExecutionStatus, []byte(`{not valid json`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected 'invalid JSON' in error, got: %v", err)
	}
}

func TestValidateInvalidSchema(t *testing.T) {
	err := Validate(SubjectExecutionStatus, []byte(`"just a string"`))
	if err == nil {
		t.Fatal("expected schema validation error")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected 'schema validation failed' in error, got: %v", err)
	}
}
