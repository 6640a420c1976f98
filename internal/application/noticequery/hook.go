// Package noticequery keeps one scoped, paginated notice list for a browser
// session and the mutations that refresh it.
package noticequery

import (
	"context"
	"log/slog"
	"sync"

	"noticeboard/internal/adapters/api"
	"noticeboard/internal/domain/notice"
)

// DefaultPerPage is the page size of every scoped list.
const DefaultPerPage = 10

// Backend is the part of the API client the hook needs.
type Backend interface {
	ListNotices(ctx context.Context, token string, p api.ListParams) (api.ListResult, error)
	CreateNotice(ctx context.Context, token string, d notice.Draft) (notice.Notice, error)
	UpdateNotice(ctx context.Context, token, id string, d notice.Draft) (notice.Notice, error)
	DeleteNotice(ctx context.Context, token, id string) error
}

// TokenSource yields the caller's current credential.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Result is the outcome of a mutation. Data is set on successful create and update.
type Result struct {
	Success bool
	Data    *notice.Notice
	Error   string
}

// Snapshot is a consistent copy of the hook's state for rendering.
// Unauthorized reports that the backend rejected the caller's credential.
type Snapshot struct {
	Scope        notice.Scope
	Page         notice.Page
	Loading      bool
	Error        string
	Unauthorized bool
}

// Hook is the notice list for one scope. Each fetch is tagged with a
// sequence number and only the latest issued fetch may write the page.
type Hook struct {
	backend Backend
	tokens  TokenSource
	perPage int

	mu      sync.Mutex
	scope   notice.Scope
	page    notice.Page
	loading bool
	err     string
	seq     uint64
}

// New creates an empty hook for scope. Nothing is fetched until Query.
// POST: Snapshot().Page.CurrentPage == 1
func New(backend Backend, tokens TokenSource, scope notice.Scope, perPage int) *Hook {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	return &Hook{
		backend: backend,
		tokens:  tokens,
		perPage: perPage,
		scope:   scope,
		page:    notice.NewPage([]notice.Notice{}, 1, perPage, 0),
	}
}

// Snapshot returns the current state.
func (h *Hook) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{Scope: h.scope, Page: clonePage(h.page), Loading: h.loading, Error: h.err}
}

// Scope returns the scope the hook lists.
func (h *Hook) Scope() notice.Scope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scope
}

// Query fetches page for the current scope, unexpired notices only. The
// page is replaced wholesale; on failure the list is emptied and the error
// recorded. A response older than the latest issued fetch does not touch the
// shared state.
// POST: the returned Snapshot is the page this call fetched, stale or not
func (h *Hook) Query(ctx context.Context, page int) Snapshot {
	if page < 1 {
		page = 1
	}
	h.mu.Lock()
	h.seq++
	seq := h.seq
	scope := h.scope
	h.loading = true
	h.mu.Unlock()

	res, err := h.backend.ListNotices(ctx, h.token(ctx), api.ListParams{
		Page:           page,
		PerPage:        h.perPage,
		Category:       scope.Category,
		Subcategory:    scope.Subcategory,
		IncludeExpired: false,
	})

	out := Snapshot{Scope: scope}
	if err != nil {
		slog.Warn("notice_query_failed", "scope", scope.String(), "page", page, "error", err)
		out.Page = notice.NewPage([]notice.Notice{}, page, h.perPage, 0)
		out.Error = api.Message(err)
		out.Unauthorized = api.IsUnauthorized(err)
	} else {
		out.Page = notice.NewPage(res.Notices, page, h.perPage, res.Total)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if seq != h.seq {
		slog.Debug("stale_notice_page_dropped", "scope", scope.String(), "page", page)
		return out
	}
	h.loading = false
	h.page = out.Page
	h.err = out.Error
	out.Page = clonePage(out.Page)
	return out
}

// ChangePage queries page n. Pages outside [1, TotalPages] are ignored.
func (h *Hook) ChangePage(ctx context.Context, n int) (Snapshot, bool) {
	h.mu.Lock()
	ok := h.page.InRange(n)
	h.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return h.Query(ctx, n), true
}

// Refresh re-queries the current page.
func (h *Hook) Refresh(ctx context.Context) Snapshot {
	return h.Query(ctx, h.currentPage())
}

// SetScope switches the list to scope and queries its first page. An
// unchanged scope does nothing.
func (h *Hook) SetScope(ctx context.Context, scope notice.Scope) {
	h.mu.Lock()
	if h.scope == scope {
		h.mu.Unlock()
		return
	}
	h.scope = scope
	h.mu.Unlock()
	h.Query(ctx, 1)
}

// Create posts a notice, then re-queries the current page whatever the outcome.
func (h *Hook) Create(ctx context.Context, d notice.Draft) Result {
	n, err := h.backend.CreateNotice(ctx, h.token(ctx), d)
	h.Refresh(ctx)
	if err != nil {
		return Result{Error: api.Message(err)}
	}
	return Result{Success: true, Data: &n}
}

// Update replaces a notice's editable fields, then re-queries the current page.
func (h *Hook) Update(ctx context.Context, id string, d notice.Draft) Result {
	n, err := h.backend.UpdateNotice(ctx, h.token(ctx), id, d)
	h.Refresh(ctx)
	if err != nil {
		return Result{Error: api.Message(err)}
	}
	return Result{Success: true, Data: &n}
}

// Delete removes a notice, then re-queries the current page.
func (h *Hook) Delete(ctx context.Context, id string) Result {
	err := h.backend.DeleteNotice(ctx, h.token(ctx), id)
	h.Refresh(ctx)
	if err != nil {
		return Result{Error: api.Message(err)}
	}
	return Result{Success: true}
}

func clonePage(p notice.Page) notice.Page {
	p.Items = append([]notice.Notice(nil), p.Items...)
	return p
}

func (h *Hook) currentPage() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.page.CurrentPage < 1 {
		return 1
	}
	return h.page.CurrentPage
}

// token returns "" for anonymous callers; the backend decides what they may see.
func (h *Hook) token(ctx context.Context) string {
	if h.tokens == nil {
		return ""
	}
	tok, err := h.tokens.Token(ctx)
	if err != nil {
		return ""
	}
	return tok
}
