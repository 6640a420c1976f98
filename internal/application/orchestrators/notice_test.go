package orchestrators

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"noticeboard/internal/adapters/email"
	"noticeboard/internal/application/noticequery"
	"noticeboard/internal/domain/audit"
	"noticeboard/internal/domain/notice"
	"noticeboard/internal/domain/subcategory"
)

// mockMutator implements NoticeMutator for testing.
type mockMutator struct {
	fail    string
	created []notice.Draft
	updated map[string]notice.Draft
	deleted []string
}

func newMockMutator() *mockMutator {
	return &mockMutator{updated: map[string]notice.Draft{}}
}

func (m *mockMutator) Create(_ context.Context, d notice.Draft) noticequery.Result {
	if m.fail != "" {
		return noticequery.Result{Error: m.fail}
	}
	m.created = append(m.created, d)
	n := notice.Notice{ID: "n-1", Title: d.Title, Content: d.Content, Category: d.Category, Subcategory: d.Subcategory, Priority: d.Priority, ExpiresAt: d.ExpiresAt}
	return noticequery.Result{Success: true, Data: &n}
}

func (m *mockMutator) Update(_ context.Context, id string, d notice.Draft) noticequery.Result {
	if m.fail != "" {
		return noticequery.Result{Error: m.fail}
	}
	m.updated[id] = d
	n := notice.Notice{ID: id, Title: d.Title, Content: d.Content, Category: d.Category, Subcategory: d.Subcategory, Priority: d.Priority}
	return noticequery.Result{Success: true, Data: &n}
}

func (m *mockMutator) Delete(_ context.Context, id string) noticequery.Result {
	if m.fail != "" {
		return noticequery.Result{Error: m.fail}
	}
	m.deleted = append(m.deleted, id)
	return noticequery.Result{Success: true}
}

// mockAudit implements AuditRecorder for testing.
type mockAudit struct {
	mu     sync.Mutex
	events []audit.Event
	err    error
}

func (m *mockAudit) Save(_ context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

var admin = Actor{UID: "uid-admin", Email: "admin@uni.edu", Role: "admin", IP: "10.0.0.9", UserAgent: "test"}

func validForm() NoticeForm {
	return NoticeForm{
		Title:       "Mid-term schedule",
		Content:     "Exams start **Monday**.",
		Category:    "department",
		Subcategory: "CSE",
		Priority:    "medium",
	}
}

// --- ExecuteCreateNotice tests ---

// TestExecuteCreateNotice_Valid verifies a valid form is created, audited and not announced.
func TestExecuteCreateNotice_Valid(t *testing.T) {
	mut := newMockMutator()
	rec := &mockAudit{}
	sender := email.NewNoopSender()

	res, err := ExecuteCreateNotice(context.Background(), CreateNoticeInput{Actor: admin, Form: validForm()}, CreateNoticeDeps{
		Notices:   mut,
		Registry:  subcategory.Fallback(),
		Audit:     rec,
		Announcer: &Announcer{Sender: sender, Recipients: []string{"all@uni.edu"}},
		Now:       fixedNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success || res.Data == nil || res.Data.ID != "n-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(mut.created) != 1 {
		t.Fatalf("expected 1 create, got %d", len(mut.created))
	}
	d := mut.created[0]
	if d.Subcategory == nil || *d.Subcategory != "CSE" {
		t.Errorf("expected subcategory CSE, got %v", d.Subcategory)
	}
	if !d.ExpiresAt.Equal(fixedTime.Add(notice.DefaultExpiry)) {
		t.Errorf("expected default expiry, got %v", d.ExpiresAt)
	}
	if len(rec.events) != 1 || rec.events[0].Action != audit.ActionCreate || rec.events[0].ResourceID != "n-1" {
		t.Errorf("unexpected audit events: %+v", rec.events)
	}
	if rec.events[0].IPAddress != "10.0.0.9" {
		t.Errorf("expected request IP on audit event, got %q", rec.events[0].IPAddress)
	}
	if len(sender.Sent()) != 0 {
		t.Errorf("medium priority notice should not be announced")
	}
}

// TestExecuteCreateNotice_HighPriorityAnnounced verifies one email per recipient.
func TestExecuteCreateNotice_HighPriorityAnnounced(t *testing.T) {
	sender := email.NewNoopSender()
	form := validForm()
	form.Priority = "high"

	_, err := ExecuteCreateNotice(context.Background(), CreateNoticeInput{Actor: admin, Form: form}, CreateNoticeDeps{
		Notices:  newMockMutator(),
		Registry: subcategory.Fallback(),
		Announcer: &Announcer{
			Sender:     sender,
			Recipients: []string{"a@uni.edu", "b@uni.edu"},
			BaseURL:    "https://notices.uni.edu/",
			Render:     func(s string) string { return "<p>" + s + "</p>" },
		},
		Now: fixedNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := sender.Sent()
	if len(sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(sent))
	}
	if len(sent[0].To) != 1 || sent[0].To[0] != "a@uni.edu" {
		t.Errorf("expected single recipient per message, got %v", sent[0].To)
	}
	if sent[0].Subject != "[High priority] Mid-term schedule" {
		t.Errorf("unexpected subject %q", sent[0].Subject)
	}
	if !strings.Contains(sent[0].HTML, "https://notices.uni.edu/notices/n-1") {
		t.Errorf("expected notice link in HTML: %s", sent[0].HTML)
	}
	if !strings.Contains(sent[0].HTML, "<p>Exams start **Monday**.</p>") {
		t.Errorf("expected rendered body in HTML: %s", sent[0].HTML)
	}
}

// TestExecuteCreateNotice_InvalidForm verifies field messages and no backend call.
func TestExecuteCreateNotice_InvalidForm(t *testing.T) {
	mut := newMockMutator()
	_, err := ExecuteCreateNotice(context.Background(), CreateNoticeInput{Actor: admin, Form: NoticeForm{
		Title:    "  ",
		Category: "club",
		Priority: "low",
	}}, CreateNoticeDeps{Notices: mut, Registry: subcategory.Fallback(), Now: fixedNow})

	fields, ok := IsFormError(err)
	if !ok {
		t.Fatalf("expected FormError, got %v", err)
	}
	if fields["Title"] != "Title is required" {
		t.Errorf("Title message = %q", fields["Title"])
	}
	if fields["Content"] != "Content is required" {
		t.Errorf("Content message = %q", fields["Content"])
	}
	if fields["Subcategory"] != "Please select a subcategory" {
		t.Errorf("Subcategory message = %q", fields["Subcategory"])
	}
	if len(mut.created) != 0 {
		t.Error("backend should not be called for an invalid form")
	}
}

// TestExecuteCreateNotice_BackendFailure verifies the backend message is passed through unaudited.
func TestExecuteCreateNotice_BackendFailure(t *testing.T) {
	mut := newMockMutator()
	mut.fail = "Not authorized"
	rec := &mockAudit{}

	res, err := ExecuteCreateNotice(context.Background(), CreateNoticeInput{Actor: admin, Form: validForm()}, CreateNoticeDeps{
		Notices: mut, Registry: subcategory.Fallback(), Audit: rec, Now: fixedNow,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Error != "Not authorized" {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(rec.events) != 0 {
		t.Errorf("failed create should not be audited")
	}
}

// TestExecuteCreateNotice_AuditFailureIgnored verifies audit errors never fail the mutation.
func TestExecuteCreateNotice_AuditFailureIgnored(t *testing.T) {
	res, err := ExecuteCreateNotice(context.Background(), CreateNoticeInput{Actor: admin, Form: validForm()}, CreateNoticeDeps{
		Notices: newMockMutator(), Registry: subcategory.Fallback(), Audit: &mockAudit{err: errors.New("disk full")}, Now: fixedNow,
	})
	if err != nil || !res.Success {
		t.Errorf("expected success, got %+v, %v", res, err)
	}
}

// --- ExecuteUpdateNotice tests ---

// TestExecuteUpdateNotice_RaiseToHighAnnounces verifies a priority raise is announced once.
func TestExecuteUpdateNotice_RaiseToHighAnnounces(t *testing.T) {
	sender := email.NewNoopSender()
	form := validForm()
	form.Priority = "high"
	deps := UpdateNoticeDeps{
		Notices:   newMockMutator(),
		Registry:  subcategory.Fallback(),
		Announcer: &Announcer{Sender: sender, Recipients: []string{"a@uni.edu"}},
		Now:       fixedNow,
	}

	prev := notice.Notice{ID: "7", Priority: notice.PriorityLow}
	if _, err := ExecuteUpdateNotice(context.Background(), UpdateNoticeInput{Actor: admin, NoticeID: "7", Form: form, Previous: &prev}, deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.Sent()) != 1 {
		t.Fatalf("expected announcement on raise, got %d", len(sender.Sent()))
	}

	prev.Priority = notice.PriorityHigh
	if _, err := ExecuteUpdateNotice(context.Background(), UpdateNoticeInput{Actor: admin, NoticeID: "7", Form: form, Previous: &prev}, deps); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.Sent()) != 1 {
		t.Errorf("already-high notice should not be announced again")
	}
}

// TestExecuteUpdateNotice_MainDropsSubcategory verifies main notices are sent without a subcategory.
func TestExecuteUpdateNotice_MainDropsSubcategory(t *testing.T) {
	mut := newMockMutator()
	form := validForm()
	form.Category = "main"

	res, err := ExecuteUpdateNotice(context.Background(), UpdateNoticeInput{Actor: admin, NoticeID: "3", Form: form}, UpdateNoticeDeps{
		Notices: mut, Registry: subcategory.Fallback(), Now: fixedNow,
	})
	if err != nil || !res.Success {
		t.Fatalf("unexpected outcome: %+v, %v", res, err)
	}
	if mut.updated["3"].Subcategory != nil {
		t.Errorf("expected nil subcategory for main notice")
	}
}

// TestExecuteUpdateNotice_EmptyID verifies the ID is required.
func TestExecuteUpdateNotice_EmptyID(t *testing.T) {
	_, err := ExecuteUpdateNotice(context.Background(), UpdateNoticeInput{Form: validForm()}, UpdateNoticeDeps{Now: fixedNow})
	if err == nil {
		t.Error("expected error for empty notice ID")
	}
}

// --- ExecuteDeleteNotice tests ---

// TestExecuteDeleteNotice_Valid verifies deletion is audited with warning severity.
func TestExecuteDeleteNotice_Valid(t *testing.T) {
	mut := newMockMutator()
	rec := &mockAudit{}
	res, err := ExecuteDeleteNotice(context.Background(), DeleteNoticeInput{Actor: admin, NoticeID: "9", Title: "Old"}, DeleteNoticeDeps{
		Notices: mut, Audit: rec, Now: fixedNow,
	})
	if err != nil || !res.Success {
		t.Fatalf("unexpected outcome: %+v, %v", res, err)
	}
	if len(mut.deleted) != 1 || mut.deleted[0] != "9" {
		t.Errorf("unexpected deletes: %v", mut.deleted)
	}
	if len(rec.events) != 1 || rec.events[0].Severity != audit.SeverityWarning || rec.events[0].Description != `deleted "Old"` {
		t.Errorf("unexpected audit: %+v", rec.events)
	}
}

// TestExecuteDeleteNotice_Failure verifies backend errors are returned in the Result.
func TestExecuteDeleteNotice_Failure(t *testing.T) {
	mut := newMockMutator()
	mut.fail = "Notice not found"
	res, err := ExecuteDeleteNotice(context.Background(), DeleteNoticeInput{Actor: admin, NoticeID: "9"}, DeleteNoticeDeps{Notices: mut, Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success || res.Error != "Notice not found" {
		t.Errorf("unexpected result: %+v", res)
	}
}
