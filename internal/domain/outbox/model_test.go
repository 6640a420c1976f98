package outbox

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newEntry(t *testing.T) Entry {
	t.Helper()
	e, err := NewEntry("e1", "n1", Message{To: []string{"a@uni.edu"}, Subject: "Hi"}, errors.New("timeout"), t0)
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	return e
}

// TestNewEntry verifies a fresh entry counts the failed first send.
func TestNewEntry(t *testing.T) {
	e := newEntry(t)
	if e.Status != StatusRetrying || e.Attempts != 1 || e.ErrorMessage != "timeout" {
		t.Errorf("unexpected entry %+v", e)
	}
	if err := e.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	msg, err := e.Message()
	if err != nil || msg.Subject != "Hi" {
		t.Errorf("Message() = %+v, %v", msg, err)
	}

	if _, err := NewEntry("e2", "n1", Message{}, nil, t0); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("empty recipients: got %v", err)
	}
}

// TestEntry_Validate verifies malformed payloads are rejected.
func TestEntry_Validate(t *testing.T) {
	e := newEntry(t)
	e.Payload = "{"
	if err := e.Validate(); !errors.Is(err, ErrMalformedEntry) {
		t.Errorf("got %v, want ErrMalformedEntry", err)
	}
	e = newEntry(t)
	e.Kind = ""
	if err := e.Validate(); !errors.Is(err, ErrEmptyKind) {
		t.Errorf("got %v, want ErrEmptyKind", err)
	}
}

// TestEntry_Lifecycle verifies failures run out at MaxAttempts.
func TestEntry_Lifecycle(t *testing.T) {
	e := newEntry(t)
	e.MaxAttempts = 2

	e.MarkAttempt(t0.Add(time.Minute))
	e.MarkFailed(errors.New("still down"))
	if e.Status != StatusFailed || !e.IsTerminal() {
		t.Fatalf("after max attempts: status %s terminal %v", e.Status, e.IsTerminal())
	}

	if err := e.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if e.IsTerminal() || e.MaxAttempts != 3 {
		t.Errorf("reopened entry = %+v", e)
	}
	e.MarkAttempt(t0.Add(time.Hour))
	e.MarkSuccess("msg-1")
	if e.Status != StatusDone || e.MessageID != "msg-1" || e.ErrorMessage != "" {
		t.Errorf("after success = %+v", e)
	}
	if err := e.Reopen(); !errors.Is(err, ErrTerminal) {
		t.Errorf("reopen done entry: got %v", err)
	}
}

// TestEntry_Backoff verifies the delay doubles and is capped.
func TestEntry_Backoff(t *testing.T) {
	base, maxDelay := time.Minute, 10*time.Minute
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 0},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute},
		{30, 10 * time.Minute},
	}
	for _, tt := range tests {
		e := Entry{Attempts: tt.attempts}
		if got := e.NextRetryDelay(base, maxDelay); got != tt.want {
			t.Errorf("attempts=%d: got %s, want %s", tt.attempts, got, tt.want)
		}
	}

	e := newEntry(t)
	if e.Due(t0.Add(30*time.Second), base, maxDelay) {
		t.Error("entry should wait out the first minute")
	}
	if !e.Due(t0.Add(time.Minute), base, maxDelay) {
		t.Error("entry should be due after a minute")
	}
	e.MarkAbandoned()
	if e.Due(t0.Add(time.Hour), base, maxDelay) {
		t.Error("abandoned entries are never due")
	}
}
