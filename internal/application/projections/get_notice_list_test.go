package projections

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"noticeboard/internal/adapters/api"
	"noticeboard/internal/application/listutil"
	"noticeboard/internal/application/noticequery"
	"noticeboard/internal/domain/notice"
)

// pagedBackend serves total notices in pages and records requested page
// numbers. A fetch of a page with a gate waits until the gate is closed.
type pagedBackend struct {
	mu    sync.Mutex
	total int
	pages []int
	gates map[int]chan struct{}
}

func (b *pagedBackend) requested(page int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.pages {
		if p == page {
			return true
		}
	}
	return false
}

func (b *pagedBackend) ListNotices(_ context.Context, _ string, p api.ListParams) (api.ListResult, error) {
	b.mu.Lock()
	b.pages = append(b.pages, p.Page)
	gate := b.gates[p.Page]
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	items := []notice.Notice{}
	for i := (p.Page - 1) * p.PerPage; i < p.Page*p.PerPage && i < b.total; i++ {
		pri := notice.PriorityLow
		if i%2 == 0 {
			pri = notice.PriorityHigh
		}
		items = append(items, notice.Notice{
			ID: fmt.Sprint(i + 1), Title: fmt.Sprintf("Notice %d", i+1), Content: "body",
			Category: notice.CategoryMain, Priority: pri, CreatedAt: listNow.Add(-time.Duration(i) * time.Hour),
		})
	}
	return api.ListResult{Notices: items, Total: b.total, Page: p.Page, PerPage: p.PerPage}, nil
}

func (b *pagedBackend) CreateNotice(context.Context, string, notice.Draft) (notice.Notice, error) {
	return notice.Notice{}, nil
}

func (b *pagedBackend) UpdateNotice(context.Context, string, string, notice.Draft) (notice.Notice, error) {
	return notice.Notice{}, nil
}

func (b *pagedBackend) DeleteNotice(context.Context, string, string) error { return nil }

var listNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func listParams(page int, f notice.FilterState) listutil.ListParams {
	return listutil.ListParams{Page: page, Filter: f.Normalize()}
}

// TestGetNoticeList_FirstPage verifies page 1 is fetched and paginated.
func TestGetNoticeList_FirstPage(t *testing.T) {
	b := &pagedBackend{total: 23}
	hook := noticequery.New(b, nil, notice.Scope{}, 10)

	res := GetNoticeList(context.Background(), GetNoticeListQuery{Params: listParams(1, notice.DefaultFilter()), Now: listNow},
		GetNoticeListDeps{Hook: hook})

	if res.Page.Total != 23 || res.Page.TotalPages != 3 || len(res.Visible) != 10 {
		t.Fatalf("page = %+v, visible = %d", res.Page, len(res.Visible))
	}
	if !res.ShowPagination || len(res.PageNumbers) != 3 {
		t.Errorf("pagination = %v %v", res.ShowPagination, res.PageNumbers)
	}
	if res.Filtered {
		t.Error("default filter reported as filtered")
	}
}

// TestGetNoticeList_DeepLink verifies a fresh hook learns the page count before jumping.
func TestGetNoticeList_DeepLink(t *testing.T) {
	b := &pagedBackend{total: 23}
	hook := noticequery.New(b, nil, notice.Scope{}, 10)

	res := GetNoticeList(context.Background(), GetNoticeListQuery{Params: listParams(3, notice.DefaultFilter()), Now: listNow},
		GetNoticeListDeps{Hook: hook})

	if res.Page.CurrentPage != 3 || len(res.Visible) != 3 {
		t.Errorf("current = %d visible = %d, want 3 and 3", res.Page.CurrentPage, len(res.Visible))
	}
	if fmt.Sprint(b.pages) != "[1 3]" {
		t.Errorf("requested pages = %v, want [1 3]", b.pages)
	}
	if res.Params.Page != 3 {
		t.Errorf("Params.Page = %d, want 3", res.Params.Page)
	}
}

// TestGetNoticeList_OutOfRange verifies an unknown page keeps the current page.
func TestGetNoticeList_OutOfRange(t *testing.T) {
	b := &pagedBackend{total: 15}
	hook := noticequery.New(b, nil, notice.Scope{}, 10)
	GetNoticeList(context.Background(), GetNoticeListQuery{Params: listParams(2, notice.DefaultFilter()), Now: listNow},
		GetNoticeListDeps{Hook: hook})

	res := GetNoticeList(context.Background(), GetNoticeListQuery{Params: listParams(9, notice.DefaultFilter()), Now: listNow},
		GetNoticeListDeps{Hook: hook})

	if res.Page.CurrentPage != 2 {
		t.Errorf("current = %d, want 2", res.Page.CurrentPage)
	}
	if res.Params.Page != 2 {
		t.Errorf("links point at page %d, want 2", res.Params.Page)
	}
}

// TestGetNoticeList_FilterScopedToPage verifies the filter only sees the fetched page.
func TestGetNoticeList_FilterScopedToPage(t *testing.T) {
	b := &pagedBackend{total: 23}
	hook := noticequery.New(b, nil, notice.Scope{}, 10)
	f := notice.DefaultFilter()
	f.Priority = string(notice.PriorityHigh)

	res := GetNoticeList(context.Background(), GetNoticeListQuery{Params: listParams(1, f), Now: listNow},
		GetNoticeListDeps{Hook: hook})

	if len(res.Page.Items) != 10 || len(res.Visible) != 5 {
		t.Errorf("items = %d visible = %d, want 10 and 5", len(res.Page.Items), len(res.Visible))
	}
	if !res.Filtered {
		t.Error("priority filter not reported")
	}
	for _, n := range res.Visible {
		if n.Priority != notice.PriorityHigh {
			t.Errorf("notice %s has priority %s", n.ID, n.Priority)
		}
	}
}

// TestGetNoticeList_OverlappingRequests verifies a slow page 2 request is not
// answered with the page a later request fetched on the same hook.
func TestGetNoticeList_OverlappingRequests(t *testing.T) {
	gate := make(chan struct{})
	b := &pagedBackend{total: 23, gates: map[int]chan struct{}{2: gate}}
	hook := noticequery.New(b, nil, notice.Scope{}, 10)

	slow := make(chan NoticeListResult)
	go func() {
		slow <- GetNoticeList(context.Background(), GetNoticeListQuery{Params: listParams(2, notice.DefaultFilter()), Now: listNow},
			GetNoticeListDeps{Hook: hook})
	}()
	deadline := time.Now().Add(time.Second)
	for !b.requested(2) {
		if time.Now().After(deadline) {
			t.Fatal("page 2 was never requested")
		}
		time.Sleep(5 * time.Millisecond)
	}

	fast := GetNoticeList(context.Background(), GetNoticeListQuery{Params: listParams(1, notice.DefaultFilter()), Now: listNow},
		GetNoticeListDeps{Hook: hook})
	close(gate)
	res := <-slow

	if fast.Page.CurrentPage != 1 || fast.Visible[0].ID != "1" {
		t.Errorf("page 1 request rendered page %d starting at %s", fast.Page.CurrentPage, fast.Visible[0].ID)
	}
	if res.Page.CurrentPage != 2 || len(res.Visible) == 0 || res.Visible[0].ID != "11" {
		t.Fatalf("page 2 request rendered page %d with %d items", res.Page.CurrentPage, len(res.Visible))
	}
	if res.Params.Page != 2 {
		t.Errorf("links point at page %d, want 2", res.Params.Page)
	}
	if got := hook.Snapshot().Page.CurrentPage; got != 1 {
		t.Errorf("shared list is on page %d, want the latest request's page 1", got)
	}
}

// TestGetNoticeList_RejectedCredential verifies a 401 from the backend is reported.
func TestGetNoticeList_RejectedCredential(t *testing.T) {
	hook := noticequery.New(&rejectingBackend{}, nil, notice.Scope{}, 10)

	res := GetNoticeList(context.Background(), GetNoticeListQuery{Params: listParams(1, notice.DefaultFilter()), Now: listNow},
		GetNoticeListDeps{Hook: hook})

	if !res.Unauthorized || len(res.Visible) != 0 {
		t.Errorf("result = %+v, want an empty unauthorized page", res)
	}
}

// rejectingBackend answers every list call with 401.
type rejectingBackend struct{ pagedBackend }

func (*rejectingBackend) ListNotices(context.Context, string, api.ListParams) (api.ListResult, error) {
	return api.ListResult{}, &api.Error{Op: "list_notices", Status: http.StatusUnauthorized, Detail: "Invalid token"}
}
