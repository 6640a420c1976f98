package orchestrators

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	"time"

	"noticeboard/internal/adapters/email"
	"noticeboard/internal/application/noticequery"
	"noticeboard/internal/domain/audit"
	"noticeboard/internal/domain/notice"
	"noticeboard/internal/domain/subcategory"
)

// NoticeMutator is the notice list a mutation goes through so it is re-queried afterwards.
type NoticeMutator interface {
	Create(ctx context.Context, d notice.Draft) noticequery.Result
	Update(ctx context.Context, id string, d notice.Draft) noticequery.Result
	Delete(ctx context.Context, id string) noticequery.Result
}

// AuditRecorder persists local activity events.
type AuditRecorder interface {
	Save(ctx context.Context, e audit.Event) error
}

// Actor identifies who triggered an operation and from where.
type Actor struct {
	UID       string
	Email     string
	Role      string
	IP        string
	UserAgent string
}

func (a Actor) event(category audit.Category, action audit.Action, now time.Time) audit.Event {
	return audit.NewEvent(a.UID, a.Email, a.Role, category, action, now).WithRequest(a.IP, a.UserAgent)
}

// recordAudit saves e; a failure is logged and never fails the caller.
func recordAudit(ctx context.Context, rec AuditRecorder, e audit.Event) {
	if rec == nil {
		return
	}
	if err := rec.Save(ctx, e); err != nil {
		slog.Warn("audit_save_failed", "action", e.Action, "category", e.Category, "error", err)
	}
}

// Announcer mails high-priority notices to a fixed list. Messages the
// provider did not accept go to Queue, when set, for a later retry.
type Announcer struct {
	Sender     email.Sender
	Recipients []string
	From       string
	BaseURL    string              // absolute site URL for the "view notice" link
	Render     func(string) string // Markdown to HTML
	Queue      AnnouncementQueue
}

// Enabled reports whether announcements can go out.
func (a *Announcer) Enabled() bool {
	return a != nil && a.Sender != nil && len(a.Recipients) > 0
}

var announcementTmpl = template.Must(template.New("announce").Parse(
	`<h2>{{.Title}}</h2>
<p><strong>{{.Scope}}</strong> &middot; high priority</p>
<div>{{.Body}}</div>
{{if .Link}}<p><a href="{{.Link}}">View on the notice board</a></p>{{end}}`))

// requests builds one message per recipient so addresses are not shared.
func (a *Announcer) requests(n notice.Notice) ([]email.SendRequest, error) {
	render := a.Render
	if render == nil {
		render = template.HTMLEscapeString
	}
	link := ""
	if a.BaseURL != "" && n.ID != "" {
		link = strings.TrimRight(a.BaseURL, "/") + "/notices/" + n.ID
	}
	scope := "All notices"
	if n.Category != notice.CategoryMain {
		scope = n.SubcategoryName()
	}

	var body strings.Builder
	err := announcementTmpl.Execute(&body, map[string]any{
		"Title": n.Title,
		"Scope": scope,
		"Body":  template.HTML(render(n.Content)), // #nosec G203 -- renderer sanitizes
		"Link":  link,
	})
	if err != nil {
		return nil, fmt.Errorf("render announcement: %w", err)
	}

	text := n.Title + "\n\n" + n.Content
	if link != "" {
		text += "\n\n" + link
	}
	reqs := make([]email.SendRequest, 0, len(a.Recipients))
	for _, to := range a.Recipients {
		reqs = append(reqs, email.SendRequest{
			To:      []string{to},
			From:    a.From,
			Subject: "[High priority] " + n.Title,
			HTML:    body.String(),
			Text:    text,
			Tags:    map[string]string{"kind": "announcement", "category": string(n.Category)},
		})
	}
	return reqs, nil
}

// announce sends n when it is high priority and returns how many messages the
// provider accepted. A failure never fails the mutation: the undelivered
// messages are queued, or logged when there is no queue.
func (a *Announcer) announce(ctx context.Context, n notice.Notice, now time.Time) int {
	if !a.Enabled() || n.Priority != notice.PriorityHigh {
		return 0
	}
	reqs, err := a.requests(n)
	if err != nil {
		slog.Error("notice_announce_failed", "notice_id", n.ID, "error", err)
		return 0
	}
	results, err := a.Sender.SendBatch(ctx, reqs)
	if err != nil {
		slog.Error("notice_announce_failed", "notice_id", n.ID, "sent", len(results), "error", err)
		// Batches go out in order, so everything past the accepted results is undelivered.
		queued := enqueueAnnouncements(ctx, a.Queue, n.ID, reqs[min(len(results), len(reqs)):], err, now)
		slog.Info("notice_announce_queued", "notice_id", n.ID, "queued", queued)
	}
	return len(results)
}

// --- Create Notice ---

// CreateNoticeInput carries input for the create notice orchestrator.
type CreateNoticeInput struct {
	Actor Actor
	Form  NoticeForm
}

// CreateNoticeDeps holds dependencies for CreateNotice.
type CreateNoticeDeps struct {
	Notices   NoticeMutator
	Registry  subcategory.Registry
	Audit     AuditRecorder
	Announcer *Announcer
	Now       func() time.Time
}

// ExecuteCreateNotice validates the form, creates the notice through the list
// hook and records the outcome. High-priority notices are announced by email.
// PRE: Actor.UID is non-empty
// POST: on success the backend holds the notice and the hook shows the current page
func ExecuteCreateNotice(ctx context.Context, input CreateNoticeInput, deps CreateNoticeDeps) (noticequery.Result, error) {
	now := deps.Now()
	d, err := input.Form.Draft(deps.Registry, now)
	if err != nil {
		return noticequery.Result{}, err
	}

	res := deps.Notices.Create(ctx, d)
	if !res.Success {
		slog.Warn("notice_event", "event", "notice_create_failed", "actor", input.Actor.UID, "error", res.Error)
		return res, nil
	}

	created := *res.Data
	e := input.Actor.event(audit.CategoryNotice, audit.ActionCreate, now).
		WithResource("notice", created.ID).
		WithDescription("created \"" + created.Title + "\" in " + created.Scope().String())
	recordAudit(ctx, deps.Audit, e)

	sent := deps.Announcer.announce(ctx, created, now)
	slog.Info("notice_event", "event", "notice_created", "notice_id", created.ID,
		"scope", created.Scope().String(), "priority", created.Priority, "created_by", input.Actor.UID, "announced", sent)
	return res, nil
}

// --- Update Notice ---

// UpdateNoticeInput carries input for the update notice orchestrator.
type UpdateNoticeInput struct {
	Actor    Actor
	NoticeID string
	Form     NoticeForm
	// Previous is the notice as loaded into the editor, used to detect a priority raise.
	Previous *notice.Notice
}

// UpdateNoticeDeps holds dependencies for UpdateNotice.
type UpdateNoticeDeps struct {
	Notices   NoticeMutator
	Registry  subcategory.Registry
	Audit     AuditRecorder
	Announcer *Announcer
	Now       func() time.Time
}

// ExecuteUpdateNotice replaces a notice's editable fields. A notice raised to
// high priority is announced; one that was already high is not.
// PRE: NoticeID is non-empty
// POST: on success the hook shows the current page
func ExecuteUpdateNotice(ctx context.Context, input UpdateNoticeInput, deps UpdateNoticeDeps) (noticequery.Result, error) {
	if input.NoticeID == "" {
		return noticequery.Result{}, fmt.Errorf("notice ID is required")
	}
	now := deps.Now()
	d, err := input.Form.Draft(deps.Registry, now)
	if err != nil {
		return noticequery.Result{}, err
	}

	res := deps.Notices.Update(ctx, input.NoticeID, d)
	if !res.Success {
		slog.Warn("notice_event", "event", "notice_update_failed", "notice_id", input.NoticeID, "error", res.Error)
		return res, nil
	}

	updated := *res.Data
	if updated.ID == "" {
		updated.ID = input.NoticeID
	}
	recordAudit(ctx, deps.Audit, input.Actor.event(audit.CategoryNotice, audit.ActionUpdate, now).
		WithResource("notice", updated.ID).
		WithDescription("updated \""+updated.Title+"\""))

	sent := 0
	if input.Previous == nil || input.Previous.Priority != notice.PriorityHigh {
		sent = deps.Announcer.announce(ctx, updated, now)
	}
	slog.Info("notice_event", "event", "notice_updated", "notice_id", updated.ID, "updated_by", input.Actor.UID, "announced", sent)
	return res, nil
}

// --- Delete Notice ---

// DeleteNoticeInput carries input for the delete notice orchestrator.
type DeleteNoticeInput struct {
	Actor    Actor
	NoticeID string
	Title    string // for the activity feed; may be empty
}

// DeleteNoticeDeps holds dependencies for DeleteNotice.
type DeleteNoticeDeps struct {
	Notices NoticeMutator
	Audit   AuditRecorder
	Now     func() time.Time
}

// ExecuteDeleteNotice deletes a notice through the list hook.
// PRE: NoticeID is non-empty
// POST: on success the hook shows the current page without the notice
func ExecuteDeleteNotice(ctx context.Context, input DeleteNoticeInput, deps DeleteNoticeDeps) (noticequery.Result, error) {
	if input.NoticeID == "" {
		return noticequery.Result{}, fmt.Errorf("notice ID is required")
	}
	res := deps.Notices.Delete(ctx, input.NoticeID)
	if !res.Success {
		slog.Warn("notice_event", "event", "notice_delete_failed", "notice_id", input.NoticeID, "error", res.Error)
		return res, nil
	}

	desc := "deleted notice " + input.NoticeID
	if input.Title != "" {
		desc = "deleted \"" + input.Title + "\""
	}
	recordAudit(ctx, deps.Audit, input.Actor.event(audit.CategoryNotice, audit.ActionDelete, deps.Now()).
		WithSeverity(audit.SeverityWarning).
		WithResource("notice", input.NoticeID).
		WithDescription(desc))

	slog.Info("notice_event", "event", "notice_deleted", "notice_id", input.NoticeID, "deleted_by", input.Actor.UID)
	return res, nil
}
