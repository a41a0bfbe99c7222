package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"worklane.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	orig := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(orig) })
	return &buf
}

func TestLogEventEnrichesFromContext(t *testing.T) {
	buf := captureLog(t)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithActor(ctx, "user-1", "org-1")

	if err := LogEvent(ctx, "invitation.sent", map[string]any{"email": "new@example.com"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("entry is not valid JSON: %v", err)
	}
	if entry["event"] != "invitation.sent" || entry["type"] != "audit" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("request_id = %v", entry["request_id"])
	}
	if entry["user_id"] != "user-1" || entry["organization_id"] != "org-1" {
		t.Fatalf("actor not enriched: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["email"] != "new@example.com" {
		t.Fatalf("fields not carried: %v", entry["fields"])
	}
}

func TestLogEventWarnSeverity(t *testing.T) {
	buf := captureLog(t)

	if err := LogEventWarn(context.Background(), "user.hard_delete", nil); err != nil {
		t.Fatalf("LogEventWarn: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("entry is not valid JSON: %v", err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("level = %v, want warn", entry["level"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for blank event name")
	}
}
