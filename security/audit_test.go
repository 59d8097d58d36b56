package security

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/thephpleague/oauth2-server-sub003/events"
)

func TestAuditorLogsGrantEvents(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), true)

	emitter := events.New()
	auditor.Attach(emitter)

	emitter.Emit(context.Background(), &events.Event{
		Name:     events.AccessTokenIssued,
		ClientID: "client-1",
		UserID:   "user-1",
	})

	out := buf.String()
	if !strings.Contains(out, "security_audit") {
		t.Fatalf("expected audit record, got %q", out)
	}
	if !strings.Contains(out, events.AccessTokenIssued) {
		t.Errorf("audit record should name the event, got %q", out)
	}
	if !strings.Contains(out, "client-1") {
		t.Errorf("audit record should carry the client ID, got %q", out)
	}
	// User identifiers are hashed before logging.
	if strings.Contains(out, "user_id_hash=user-1") {
		t.Errorf("raw user ID leaked into the audit log: %q", out)
	}
}

func TestAuditorDisabled(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), false)

	auditor.LogAuthFailure("user-1", "client-1", "203.0.113.5", "bad secret")
	auditor.LogRateLimitExceeded("203.0.113.5", "/token")

	if buf.Len() != 0 {
		t.Errorf("disabled auditor should write nothing, got %q", buf.String())
	}
}

func TestAuditorDampsRepeatedEvents(t *testing.T) {
	var buf bytes.Buffer
	auditor := NewAuditor(slog.New(slog.NewTextHandler(&buf, nil)), true)

	for range auditLogBurst + 50 {
		auditor.LogAuthFailure("user-1", "client-1", "203.0.113.5", "bad secret")
	}

	got := strings.Count(buf.String(), "security_audit")
	if got > auditLogBurst+1 {
		t.Errorf("flood produced %d audit records, want at most %d", got, auditLogBurst+1)
	}
	if got == 0 {
		t.Error("damping should not suppress the first record")
	}

	// Other event types keep their own budget.
	buf.Reset()
	auditor.LogRateLimitExceeded("203.0.113.5", "/token")
	if !strings.Contains(buf.String(), "security_audit") {
		t.Error("a different event type should not be damped by the flood")
	}
}

func TestHashForLogging(t *testing.T) {
	if got := hashForLogging(""); got != "" {
		t.Errorf("empty value should hash to empty, got %q", got)
	}

	a := hashForLogging("user-1")
	b := hashForLogging("user-1")
	c := hashForLogging("user-2")

	if len(a) != 16 {
		t.Errorf("hash length = %d, want 16", len(a))
	}
	if a != b {
		t.Error("hashing should be deterministic")
	}
	if a == c {
		t.Error("different values should hash differently")
	}
	if a == "user-1" {
		t.Error("hash should not equal the input")
	}
}
