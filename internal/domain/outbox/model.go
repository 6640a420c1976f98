// Package outbox models announcement emails that could not be delivered on
// the first try and are waiting to be sent again.
package outbox

import (
	"encoding/json"
	"errors"
	"time"
)

// Status constants for the delivery lifecycle.
const (
	StatusPending   = "pending"
	StatusRetrying  = "retrying"
	StatusDone      = "done"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
)

// KindAnnouncement is the only kind of message queued today.
const KindAnnouncement = "announcement"

// DefaultMaxAttempts applies when an entry is created without a limit.
const DefaultMaxAttempts = 5

// Domain errors.
var (
	ErrEmptyKind      = errors.New("kind is required")
	ErrNoRecipient    = errors.New("at least one recipient is required")
	ErrTerminal       = errors.New("entry is finished and cannot be retried")
	ErrMalformedEntry = errors.New("entry payload is malformed")
)

// Message is the stored form of one email. It mirrors the sender request
// without tying the domain to the email adapter.
type Message struct {
	To      []string          `json:"to"`
	From    string            `json:"from"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html"`
	Text    string            `json:"text"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// Entry is one queued message and its delivery history.
type Entry struct {
	ID              string
	Kind            string
	NoticeID        string
	Payload         string // JSON encoded Message
	Status          string
	Attempts        int
	MaxAttempts     int
	LastAttemptedAt time.Time
	CreatedAt       time.Time
	MessageID       string // provider id once delivered
	ErrorMessage    string
}

// NewEntry queues msg for the notice with the given id. The first failed
// attempt has already happened, so Attempts starts at one.
// PRE: msg has at least one recipient
// POST: Status is retrying with LastAttemptedAt = now
func NewEntry(id, noticeID string, msg Message, cause error, now time.Time) (Entry, error) {
	if len(msg.To) == 0 {
		return Entry{}, ErrNoRecipient
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		ID:              id,
		Kind:            KindAnnouncement,
		NoticeID:        noticeID,
		Payload:         string(payload),
		Status:          StatusRetrying,
		Attempts:        1,
		MaxAttempts:     DefaultMaxAttempts,
		LastAttemptedAt: now,
		CreatedAt:       now,
	}
	if cause != nil {
		e.ErrorMessage = cause.Error()
	}
	return e, nil
}

// Validate checks that the Entry has valid data.
// POST: MaxAttempts is defaulted when unset
func (e *Entry) Validate() error {
	if e.Kind == "" {
		return ErrEmptyKind
	}
	if e.CreatedAt.IsZero() {
		return errors.New("created_at must be set")
	}
	if _, err := e.Message(); err != nil {
		return err
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = DefaultMaxAttempts
	}
	return nil
}

// Message decodes the payload.
func (e Entry) Message() (Message, error) {
	var m Message
	if err := json.Unmarshal([]byte(e.Payload), &m); err != nil {
		return Message{}, ErrMalformedEntry
	}
	if len(m.To) == 0 {
		return Message{}, ErrNoRecipient
	}
	return m, nil
}

// IsTerminal reports whether the entry will never be sent again.
func (e Entry) IsTerminal() bool {
	switch e.Status {
	case StatusDone, StatusAbandoned:
		return true
	case StatusFailed:
		return e.Attempts >= e.MaxAttempts
	}
	return false
}

// MarkAttempt records the start of a delivery attempt.
// PRE: !IsTerminal()
// POST: Attempts incremented, status retrying
func (e *Entry) MarkAttempt(now time.Time) {
	e.Attempts++
	e.LastAttemptedAt = now
	e.Status = StatusRetrying
}

// MarkSuccess records delivery.
func (e *Entry) MarkSuccess(messageID string) {
	e.Status = StatusDone
	e.MessageID = messageID
	e.ErrorMessage = ""
}

// MarkFailed records a failed attempt. Once MaxAttempts is reached the entry
// is failed for good.
func (e *Entry) MarkFailed(err error) {
	e.ErrorMessage = err.Error()
	if e.Attempts >= e.MaxAttempts {
		e.Status = StatusFailed
	}
}

// MarkAbandoned stops any further delivery.
func (e *Entry) MarkAbandoned() {
	e.Status = StatusAbandoned
}

// Reopen gives a failed entry one more attempt on an admin's request.
// PRE: Status is failed
// POST: MaxAttempts = Attempts + 1
func (e *Entry) Reopen() error {
	if e.Status != StatusFailed {
		return ErrTerminal
	}
	e.MaxAttempts = e.Attempts + 1
	e.Status = StatusRetrying
	return nil
}

// NextRetryDelay doubles baseDelay per attempt already made, capped at maxDelay.
func (e Entry) NextRetryDelay(baseDelay, maxDelay time.Duration) time.Duration {
	if e.Attempts <= 0 {
		return 0
	}
	delay := baseDelay
	for i := 1; i < e.Attempts; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return min(delay, maxDelay)
}

// Due reports whether the backoff since the last attempt has elapsed.
func (e Entry) Due(now time.Time, baseDelay, maxDelay time.Duration) bool {
	if e.IsTerminal() {
		return false
	}
	if e.LastAttemptedAt.IsZero() {
		return true
	}
	return !now.Before(e.LastAttemptedAt.Add(e.NextRetryDelay(baseDelay, maxDelay)))
}
