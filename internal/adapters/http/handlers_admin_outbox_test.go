package web

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"noticeboard/internal/domain/outbox"
)

func (a *testApp) queue(t *testing.T, id string) outbox.Entry {
	t.Helper()
	msg := outbox.Message{To: []string{"list@uni.edu"}, Subject: "[High priority] Exams moved"}
	e, err := outbox.NewEntry(id, "n-7", msg, errors.New("provider unavailable"), timeNow())
	if err != nil {
		t.Fatalf("NewEntry: %v", err)
	}
	if err := a.outbox.Save(t.Context(), e); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return e
}

// TestHandleAdminOutbox_Lists verifies queued announcements and their errors are shown.
func TestHandleAdminOutbox_Lists(t *testing.T) {
	app := newTestApp(t)
	app.queue(t, "q1")
	admin := app.signIn(t, "admin@uni.edu")

	rec := app.get("/admin/outbox", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Exams moved", "provider unavailable", "/admin/outbox/q1/retry", "retrying: 1"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}

	if body := app.get("/admin/outbox?status=done", admin).Body.String(); strings.Contains(body, "Exams moved") {
		t.Error("status filter should hide the retrying entry")
	}
}

// TestHandleAdminOutbox_StudentForbidden verifies the queue is admin only.
func TestHandleAdminOutbox_StudentForbidden(t *testing.T) {
	app := newTestApp(t)
	stu := app.signIn(t, "stu@uni.edu")
	if rec := app.get("/admin/outbox", stu); rec.Code != http.StatusForbidden {
		t.Errorf("got %d, want 403", rec.Code)
	}
}

// TestHandleAdminOutboxRetry verifies a manual retry delivers and is audited.
func TestHandleAdminOutboxRetry(t *testing.T) {
	app := newTestApp(t)
	app.queue(t, "q1")
	admin := app.signIn(t, "admin@uni.edu")

	rec := app.postForm(t, "/admin/outbox", "/admin/outbox/q1/retry", url.Values{}, admin)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/admin/outbox?result=retried" {
		t.Fatalf("got %d to %q", rec.Code, rec.Header().Get("Location"))
	}
	got, err := app.outbox.GetByID(t.Context(), "q1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != outbox.StatusDone {
		t.Errorf("status = %s, want done", got.Status)
	}
	if len(app.mail.Sent()) != 1 {
		t.Errorf("sent %d emails, want 1", len(app.mail.Sent()))
	}

	rec = app.postForm(t, "/admin/outbox", "/admin/outbox/q1/retry", url.Values{}, admin)
	if loc := rec.Header().Get("Location"); loc != "/admin/outbox?result=finished" {
		t.Errorf("second retry redirected to %q", loc)
	}
	rec = app.postForm(t, "/admin/outbox", "/admin/outbox/missing/retry", url.Values{}, admin)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown entry: got %d, want 404", rec.Code)
	}

	if body := app.get("/admin/activity?category=system", admin).Body.String(); !strings.Contains(body, "retried announcement") {
		t.Error("retry should appear in the activity log")
	}
}

// TestHandleAdminOutboxAbandon verifies abandoned entries are not sent.
func TestHandleAdminOutboxAbandon(t *testing.T) {
	app := newTestApp(t)
	app.queue(t, "q1")
	admin := app.signIn(t, "admin@uni.edu")

	rec := app.postForm(t, "/admin/outbox", "/admin/outbox/q1/abandon", url.Values{}, admin)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/admin/outbox?result=abandoned" {
		t.Fatalf("got %d to %q", rec.Code, rec.Header().Get("Location"))
	}
	got, _ := app.outbox.GetByID(t.Context(), "q1")
	if got.Status != outbox.StatusAbandoned {
		t.Errorf("status = %s, want abandoned", got.Status)
	}
	if len(app.mail.Sent()) != 0 {
		t.Error("abandoning must not send")
	}
}
