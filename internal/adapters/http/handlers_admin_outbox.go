package web

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"noticeboard/internal/application/orchestrators"
	"noticeboard/internal/domain/outbox"
)

const (
	defaultOutboxLimit = 50
	maxOutboxLimit     = 200
)

var outboxStatuses = []string{
	outbox.StatusRetrying, outbox.StatusFailed, outbox.StatusDone, outbox.StatusAbandoned,
}

var outboxFlash = map[string]string{
	"retried":   "Announcement resent.",
	"failed":    "Resend failed; the error is shown below.",
	"abandoned": "Announcement abandoned.",
	"finished":  "That announcement is already finished.",
}

// outboxRow is an entry with its decoded message for display.
type outboxRow struct {
	outbox.Entry
	To      string
	Subject string
}

func retryDeps() orchestrators.RetryAnnouncementsDeps {
	d := orchestrators.RetryAnnouncementsDeps{Outbox: deps.Outbox, Now: timeNow}
	if deps.Announcer != nil {
		d.Sender = deps.Announcer.Sender
	}
	return d
}

func outboxDisabled(w http.ResponseWriter, r *http.Request) bool {
	if deps.Outbox != nil {
		return false
	}
	renderTemplate(w, r, "error.html", map[string]any{
		"Title":   "Announcement queue",
		"Message": "The announcement queue is not enabled on this server.",
		"Status":  http.StatusServiceUnavailable,
	})
	return true
}

// handleAdminOutbox lists queued announcement emails (GET /admin/outbox)
// PRE: the admin gate has run
func handleAdminOutbox(w http.ResponseWriter, r *http.Request) {
	if outboxDisabled(w, r) {
		return
	}
	ctx := r.Context()
	q := r.URL.Query()
	status := q.Get("status")
	limit := defaultOutboxLimit
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 && n <= maxOutboxLimit {
		limit = n
	}

	entries, err := deps.Outbox.List(ctx, status, limit)
	if err != nil {
		internalError(w, r, err)
		return
	}
	counts, err := deps.Outbox.CountByStatus(ctx)
	if err != nil {
		internalError(w, r, err)
		return
	}

	rows := make([]outboxRow, 0, len(entries))
	for _, e := range entries {
		row := outboxRow{Entry: e}
		if msg, err := e.Message(); err == nil {
			row.To, row.Subject = msg.To[0], msg.Subject
		}
		rows = append(rows, row)
	}

	renderTemplate(w, r, "admin_outbox.html", map[string]any{
		"Title":    "Announcement queue",
		"Rows":     rows,
		"Counts":   counts,
		"Status":   status,
		"Statuses": outboxStatuses,
		"Flash":    outboxFlash[q.Get("result")],
	})
}

// handleAdminOutboxRetry resends one entry now (POST /admin/outbox/{id}/retry)
func handleAdminOutboxRetry(w http.ResponseWriter, r *http.Request) {
	if outboxDisabled(w, r) {
		return
	}
	input := orchestrators.OutboxActionInput{Actor: actorFrom(r), EntryID: r.PathValue("id")}
	entry, err := orchestrators.ExecuteRetryEntry(r.Context(), input, retryDeps(), deps.Audit)
	result := "retried"
	switch {
	case errors.Is(err, sql.ErrNoRows):
		http.NotFound(w, r)
		return
	case errors.Is(err, outbox.ErrTerminal):
		result = "finished"
	case err != nil:
		internalError(w, r, err)
		return
	case entry.Status != outbox.StatusDone:
		result = "failed"
	}
	http.Redirect(w, r, "/admin/outbox?result="+result, http.StatusSeeOther)
}

// handleAdminOutboxAbandon stops delivery of one entry (POST /admin/outbox/{id}/abandon)
func handleAdminOutboxAbandon(w http.ResponseWriter, r *http.Request) {
	if outboxDisabled(w, r) {
		return
	}
	input := orchestrators.OutboxActionInput{Actor: actorFrom(r), EntryID: r.PathValue("id")}
	err := orchestrators.ExecuteAbandonEntry(r.Context(), input, retryDeps(), deps.Audit)
	result := "abandoned"
	switch {
	case errors.Is(err, sql.ErrNoRows):
		http.NotFound(w, r)
		return
	case errors.Is(err, outbox.ErrTerminal):
		result = "finished"
	case err != nil:
		internalError(w, r, err)
		return
	}
	http.Redirect(w, r, "/admin/outbox?result="+result, http.StatusSeeOther)
}
