package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"noticeboard/internal/adapters/email"
	"noticeboard/internal/domain/audit"
	"noticeboard/internal/domain/outbox"
)

// AnnouncementQueue stores announcement emails awaiting another attempt.
type AnnouncementQueue interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// OutboxStore is the part of the outbox store the retry orchestrators use.
type OutboxStore interface {
	AnnouncementQueue
	GetByID(ctx context.Context, id string) (outbox.Entry, error)
	ListPending(ctx context.Context, limit int) ([]outbox.Entry, error)
}

// Retry defaults.
const (
	DefaultRetryBaseDelay = time.Minute
	DefaultRetryMaxDelay  = time.Hour
	DefaultRetryBatchSize = 50
)

// ErrQueueDisabled is returned when no outbox store is configured.
var ErrQueueDisabled = errors.New("announcement queue is not configured")

func messageFromRequest(req email.SendRequest) outbox.Message {
	return outbox.Message{To: req.To, From: req.From, Subject: req.Subject, HTML: req.HTML, Text: req.Text, Tags: req.Tags}
}

func requestFromMessage(m outbox.Message) email.SendRequest {
	return email.SendRequest{To: m.To, From: m.From, Subject: m.Subject, HTML: m.HTML, Text: m.Text, Tags: m.Tags}
}

// enqueueAnnouncements stores each undelivered request and returns how many were saved.
func enqueueAnnouncements(ctx context.Context, q AnnouncementQueue, noticeID string, reqs []email.SendRequest, cause error, now time.Time) int {
	if q == nil {
		return 0
	}
	saved := 0
	for _, req := range reqs {
		e, err := outbox.NewEntry(uuid.New().String(), noticeID, messageFromRequest(req), cause, now)
		if err == nil {
			err = q.Save(ctx, e)
		}
		if err != nil {
			slog.Error("outbox_enqueue_failed", "notice_id", noticeID, "error", err)
			continue
		}
		saved++
	}
	return saved
}

// RetryAnnouncementsDeps holds dependencies for the retry orchestrators.
type RetryAnnouncementsDeps struct {
	Outbox    OutboxStore
	Sender    email.Sender
	BaseDelay time.Duration
	MaxDelay  time.Duration
	BatchSize int
	Now       func() time.Time
}

func (d RetryAnnouncementsDeps) delays() (time.Duration, time.Duration) {
	base, maxDelay := d.BaseDelay, d.MaxDelay
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultRetryMaxDelay
	}
	return base, maxDelay
}

// RetryReport summarises one pass over the queue.
type RetryReport struct {
	Due       int
	Delivered int
	Failed    int
}

// ExecuteRetryAnnouncements sends every queued announcement whose backoff has
// elapsed. Entries that exhaust their attempts are left failed for an admin.
// PRE: deps.Outbox and deps.Sender are set
// POST: every due entry has one more attempt recorded
func ExecuteRetryAnnouncements(ctx context.Context, deps RetryAnnouncementsDeps) (RetryReport, error) {
	if deps.Outbox == nil || deps.Sender == nil {
		return RetryReport{}, ErrQueueDisabled
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = DefaultRetryBatchSize
	}
	entries, err := deps.Outbox.ListPending(ctx, batch)
	if err != nil {
		return RetryReport{}, fmt.Errorf("list pending announcements: %w", err)
	}

	base, maxDelay := deps.delays()
	now := deps.Now()
	var report RetryReport
	for _, entry := range entries {
		if !entry.Due(now, base, maxDelay) {
			continue
		}
		report.Due++
		if deliver(ctx, deps, &entry, now) {
			report.Delivered++
		} else {
			report.Failed++
		}
	}
	if report.Due > 0 {
		slog.Info("outbox_retry_complete", "due", report.Due, "delivered", report.Delivered, "failed", report.Failed)
	}
	return report, nil
}

// deliver makes one attempt and saves the outcome.
func deliver(ctx context.Context, deps RetryAnnouncementsDeps, entry *outbox.Entry, now time.Time) bool {
	entry.MarkAttempt(now)
	ok := false
	msg, err := entry.Message()
	if err == nil {
		var res email.SendResult
		res, err = deps.Sender.Send(ctx, requestFromMessage(msg))
		if err == nil {
			entry.MarkSuccess(res.MessageID)
			ok = true
		}
	}
	if err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_retry_failed", "entry_id", entry.ID, "notice_id", entry.NoticeID, "attempt", entry.Attempts, "error", err)
	} else {
		slog.Info("outbox_retry_delivered", "entry_id", entry.ID, "notice_id", entry.NoticeID, "attempt", entry.Attempts, "message_id", entry.MessageID)
	}
	if saveErr := deps.Outbox.Save(ctx, *entry); saveErr != nil {
		slog.Error("outbox_save_failed", "entry_id", entry.ID, "error", saveErr)
	}
	return ok
}

// OutboxActionInput identifies the entry an admin acts on.
type OutboxActionInput struct {
	Actor   Actor
	EntryID string
}

// ExecuteRetryEntry sends one entry now, ignoring its backoff. A failed entry
// gets one extra attempt.
// PRE: EntryID is non-empty
// POST: the entry is done, or failed with the new error recorded
func ExecuteRetryEntry(ctx context.Context, input OutboxActionInput, deps RetryAnnouncementsDeps, rec AuditRecorder) (outbox.Entry, error) {
	if deps.Outbox == nil || deps.Sender == nil {
		return outbox.Entry{}, ErrQueueDisabled
	}
	entry, err := deps.Outbox.GetByID(ctx, input.EntryID)
	if err != nil {
		return outbox.Entry{}, fmt.Errorf("get outbox entry: %w", err)
	}
	if entry.IsTerminal() {
		if err := entry.Reopen(); err != nil {
			return entry, err
		}
	}
	now := deps.Now()
	delivered := deliver(ctx, deps, &entry, now)
	recordAudit(ctx, rec, input.Actor.event(audit.CategorySystem, audit.ActionUpdate, now).
		WithResource("announcement", entry.ID).
		WithDescription(fmt.Sprintf("retried announcement for notice %s (delivered: %t)", entry.NoticeID, delivered)))
	return entry, nil
}

// ExecuteAbandonEntry stops delivery of one entry.
// PRE: EntryID is non-empty
// POST: the entry is abandoned
func ExecuteAbandonEntry(ctx context.Context, input OutboxActionInput, deps RetryAnnouncementsDeps, rec AuditRecorder) error {
	if deps.Outbox == nil {
		return ErrQueueDisabled
	}
	entry, err := deps.Outbox.GetByID(ctx, input.EntryID)
	if err != nil {
		return fmt.Errorf("get outbox entry: %w", err)
	}
	if entry.Status == outbox.StatusDone {
		return outbox.ErrTerminal
	}
	entry.MarkAbandoned()
	if err := deps.Outbox.Save(ctx, entry); err != nil {
		return err
	}
	recordAudit(ctx, rec, input.Actor.event(audit.CategorySystem, audit.ActionUpdate, deps.Now()).
		WithResource("announcement", entry.ID).
		WithDescription("abandoned announcement for notice "+entry.NoticeID))
	slog.Info("outbox_entry_abandoned", "entry_id", entry.ID, "by", input.Actor.UID)
	return nil
}
