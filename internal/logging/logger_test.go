package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v (raw: %s)", err, buf.String())
	}
	return entry
}

func TestPlainEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("postroom-test", &buf)

	logger.Plain().Info("hello")

	entry := decodeEntry(t, &buf)
	if entry["msg"] != "hello" {
		t.Errorf("msg = %v, want %q", entry["msg"], "hello")
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want %q", entry["level"], "info")
	}
	if entry["service"] != "postroom-test" {
		t.Errorf("service = %v, want %q", entry["service"], "postroom-test")
	}
}

func TestDomainFieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("postroom-test", &buf)

	logger.Plain().
		WithActor("actor-1").
		WithIssue("issue-2").
		WithRecipient("sub@example.com").
		Warn("skipping")

	entry := decodeEntry(t, &buf)
	if entry["actor_id"] != "actor-1" {
		t.Errorf("actor_id = %v, want %q", entry["actor_id"], "actor-1")
	}
	if entry["issue_id"] != "issue-2" {
		t.Errorf("issue_id = %v, want %q", entry["issue_id"], "issue-2")
	}
	if entry["recipient"] != "sub@example.com" {
		t.Errorf("recipient = %v, want %q", entry["recipient"], "sub@example.com")
	}
}

func TestWithError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantField bool
	}{
		{
			name:      "non-nil error recorded",
			err:       errors.New("boom"),
			wantField: true,
		},
		{
			name:      "nil error omitted",
			err:       nil,
			wantField: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter("postroom-test", &buf)

			logger.Plain().WithError(tt.err).Error("failed")

			entry := decodeEntry(t, &buf)
			fields, ok := entry["fields"].(map[string]any)
			if tt.wantField {
				if !ok || fields["error"] != "boom" {
					t.Errorf("fields.error = %v, want %q", entry["fields"], "boom")
				}
			} else if ok {
				if _, present := fields["error"]; present {
					t.Errorf("fields.error present for nil error: %v", fields)
				}
			}
		})
	}
}

func TestWithContextNoTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("postroom-test", &buf)

	logger.WithContext(context.Background()).Info("no trace")

	entry := decodeEntry(t, &buf)
	if _, present := entry["trace_id"]; present {
		t.Errorf("trace_id present without an active span: %v", entry)
	}
}

func TestEmptyFieldsOmitted(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("postroom-test", &buf)

	logger.Plain().Info("bare")

	entry := decodeEntry(t, &buf)
	if _, present := entry["fields"]; present {
		t.Errorf("fields present on bare entry: %v", entry)
	}
}
