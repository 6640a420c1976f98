//go:build browser

package browser_test

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"noticeboard/internal/adapters/api"
	"noticeboard/internal/adapters/email"
	web "noticeboard/internal/adapters/http"
	"noticeboard/internal/adapters/http/middleware"
	"noticeboard/internal/adapters/identity"
	"noticeboard/internal/adapters/markdown"
	"noticeboard/internal/adapters/storage"
	auditStore "noticeboard/internal/adapters/storage/audit"
	outboxStore "noticeboard/internal/adapters/storage/outbox"
	"noticeboard/internal/application/orchestrators"
	"noticeboard/internal/application/subcategories"
	"noticeboard/internal/domain/account"
	"noticeboard/internal/domain/notice"
	"noticeboard/internal/domain/subcategory"
)

const testPassword = "TestPass123!"

// --- Fakes: identity provider and notice API ---

type provider struct{}

func (provider) SignIn(_ context.Context, email, password string) (identity.Principal, error) {
	if password != testPassword {
		return identity.Principal{}, &identity.Error{Code: identity.CodeWrongPassword}
	}
	return identity.Principal{UID: "uid:" + email, Email: email, IDToken: "tok:" + email}, nil
}

func (provider) SignUp(_ context.Context, email, _ string) (identity.Principal, error) {
	return identity.Principal{UID: "uid:" + email, Email: email, IDToken: "tok:" + email}, nil
}

func (provider) Refresh(_ context.Context, rt string) (identity.Principal, error) {
	return identity.Principal{}, errors.New("refresh not supported in browser tests")
}

type backend struct {
	mu      sync.Mutex
	users   map[string]account.User
	notices []notice.Notice
	next    int
}

func newBackend() *backend {
	b := &backend{users: map[string]account.User{}}
	for _, u := range []account.User{
		{Email: "admin@uni.edu", Name: "Ada Admin", Role: account.RoleAdmin, IsActive: true},
		{Email: "stu@uni.edu", Name: "Sam Student", Role: account.RoleStudent, Department: "CSE", IsActive: true},
	} {
		u.UID = "uid:" + u.Email
		b.users["tok:"+u.Email] = u
	}
	return b
}

func (b *backend) CurrentUser(_ context.Context, token string) (*account.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[token]
	if !ok {
		return nil, &api.Error{Op: "me", Status: http.StatusNotFound}
	}
	return &u, nil
}

func (b *backend) RegisterUser(_ context.Context, token string, reg account.Registration) (account.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := account.User{UID: reg.UID, Email: reg.Email, Name: reg.Name, Role: reg.Role, Department: reg.Department, IsActive: true}
	b.users[token] = u
	return u, nil
}

func (b *backend) ListNotices(_ context.Context, _ string, p api.ListParams) (api.ListResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var match []notice.Notice
	for i := len(b.notices) - 1; i >= 0; i-- {
		n := b.notices[i]
		if p.Category != "" && n.Category != p.Category {
			continue
		}
		if p.Subcategory != "" && n.SubcategoryName() != p.Subcategory {
			continue
		}
		match = append(match, n)
	}
	start := min((p.Page-1)*p.PerPage, len(match))
	end := min(start+p.PerPage, len(match))
	return api.ListResult{Notices: append([]notice.Notice{}, match[start:end]...), Total: len(match), Page: p.Page, PerPage: p.PerPage}, nil
}

func (b *backend) GetNotice(_ context.Context, _ string, id string) (notice.Notice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notices {
		if n.ID == id {
			return n, nil
		}
	}
	return notice.Notice{}, &api.Error{Op: "get notice", Status: http.StatusNotFound, Detail: "Notice not found"}
}

func (b *backend) CreateNotice(_ context.Context, _ string, d notice.Draft) (notice.Notice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	n := notice.Notice{
		ID: fmt.Sprintf("n%d", b.next), Title: d.Title, Content: d.Content,
		Category: d.Category, Subcategory: d.Subcategory, Priority: d.Priority,
		ExpiresAt: d.ExpiresAt, CreatedAt: time.Now(),
	}
	b.notices = append(b.notices, n)
	return n, nil
}

func (b *backend) UpdateNotice(_ context.Context, _ string, id string, d notice.Draft) (notice.Notice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.notices {
		if n.ID == id {
			n.Title, n.Content, n.Category, n.Subcategory, n.Priority, n.ExpiresAt = d.Title, d.Content, d.Category, d.Subcategory, d.Priority, d.ExpiresAt
			b.notices[i] = n
			return n, nil
		}
	}
	return notice.Notice{}, &api.Error{Op: "update notice", Status: http.StatusNotFound}
}

func (b *backend) DeleteNotice(_ context.Context, _ string, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.notices {
		if n.ID == id {
			b.notices = append(b.notices[:i], b.notices[i+1:]...)
			return nil
		}
	}
	return &api.Error{Op: "delete notice", Status: http.StatusNotFound}
}

func (b *backend) Subcategories(context.Context, string) (subcategory.Registry, error) {
	return subcategory.Registry{Departments: []string{"CSE", "ECE"}, Clubs: []string{"IEEE", "Music Club"}}, nil
}

// --- Test app ---

// testApp holds the running server and Playwright handles.
type testApp struct {
	BaseURL string
	Backend *backend
	Mail    *email.NoopSender
	PW      *playwright.Playwright
	Browser playwright.Browser
}

// newTestApp wires the real handler stack over in-memory fakes and starts a browser.
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}

	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test DB: %v", err)
	}
	if err := storage.MigrateDB(db); err != nil {
		t.Fatalf("failed to migrate test DB: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	be := newBackend()
	mail := email.NewNoopSender()
	queue := outboxStore.NewSQLiteStore(db)
	sessions := middleware.NewSessionStore(provider{}, be, 5)
	handler := web.NewMux(&web.Deps{
		API:           be,
		Sessions:      sessions,
		Subcategories: subcategories.New(be),
		Audit:         auditStore.NewSQLiteStore(db),
		Outbox:        queue,
		Announcer: &orchestrators.Announcer{
			Sender: mail, Recipients: []string{"list@uni.edu"}, BaseURL: baseURL,
			Render: markdown.ToHTML, Queue: queue,
		},
		Background: t.Context(),
		Options: web.Options{
			CSRFKey:        []byte("0123456789abcdef0123456789abcdef"),
			TrustedOrigins: []string{fmt.Sprintf("127.0.0.1:%d", port)},
			RateLimitRPS:   1000,
			RateLimitBurst: 1000,
		},
	})

	srv := &http.Server{Handler: handler}
	go func() {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			log.Printf("test server error: %v", err)
		}
	}()

	pw, err := playwright.Run()
	if err != nil {
		t.Fatalf("failed to start Playwright: %v", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		t.Fatalf("failed to launch browser: %v", err)
	}

	t.Cleanup(func() {
		browser.Close()
		pw.Stop()
		srv.Close()
		sessions.CloseAll()
		db.Close()
	})

	return &testApp{BaseURL: baseURL, Backend: be, Mail: mail, PW: pw, Browser: browser}
}

// newPage creates a new browser page (tab).
func (a *testApp) newPage(t *testing.T) playwright.Page {
	t.Helper()
	page, err := a.Browser.NewPage()
	if err != nil {
		t.Fatalf("failed to create page: %v", err)
	}
	t.Cleanup(func() { page.Close() })
	return page
}

// login signs in through the form and waits for the feed.
func (a *testApp) login(t *testing.T, page playwright.Page, email string) {
	t.Helper()
	if _, err := page.Goto(a.BaseURL + "/login"); err != nil {
		t.Fatalf("failed to navigate to login: %v", err)
	}
	if err := page.Locator("input[name=email]").Fill(email); err != nil {
		t.Fatalf("failed to fill email: %v", err)
	}
	if err := page.Locator("input[name=password]").Fill(testPassword); err != nil {
		t.Fatalf("failed to fill password: %v", err)
	}
	if err := page.Locator("main button[type=submit]").Click(); err != nil {
		t.Fatalf("failed to click login: %v", err)
	}
	if err := page.WaitForURL(a.BaseURL+"/", playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(10000),
	}); err != nil {
		t.Fatalf("login did not land on the feed: %v", err)
	}
}
