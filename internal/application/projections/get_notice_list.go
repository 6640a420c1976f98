package projections

import (
	"context"
	"time"

	"noticeboard/internal/application/listutil"
	"noticeboard/internal/application/noticequery"
	"noticeboard/internal/domain/notice"
)

// NoticeListHook is the scoped notice list a list page reads from.
type NoticeListHook interface {
	Query(ctx context.Context, page int) noticequery.Snapshot
	Refresh(ctx context.Context) noticequery.Snapshot
	Snapshot() noticequery.Snapshot
}

// GetNoticeListQuery carries query parameters.
type GetNoticeListQuery struct {
	Params listutil.ListParams
	Now    time.Time
}

// GetNoticeListDeps holds dependencies for GetNoticeList.
type GetNoticeListDeps struct {
	Hook NoticeListHook
}

// NoticeListResult is one rendered list page.
type NoticeListResult struct {
	Scope notice.Scope
	// Page is the page as fetched; Visible is Page.Items after the view filter.
	Page           notice.Page
	Visible        []notice.Notice
	Params         listutil.ListParams
	PageNumbers    []int
	ShowPagination bool
	Filtered       bool
	Error          string
	// Unauthorized is set when the backend rejected the session's credential.
	Unauthorized bool
}

// GetNoticeList loads the requested page through the hook and applies the
// view filter to it. A page outside the known range leaves the hook on its
// current page, which is re-fetched. The result is built from this call's
// own fetch, so overlapping requests on one hook each get their page.
// PRE: Params came from listutil.ParseListParams
// POST: Visible only ever holds notices from Page.Items
// INVARIANT: the filter never widens the fetched page
func GetNoticeList(ctx context.Context, query GetNoticeListQuery, deps GetNoticeListDeps) NoticeListResult {
	want := max(query.Params.Page, 1)
	known := deps.Hook.Snapshot()
	var snap noticequery.Snapshot
	fetched := false
	if want > 1 && known.Page.TotalPages == 0 {
		snap = deps.Hook.Query(ctx, 1)
		known, fetched = snap, true
	}

	switch {
	case want == 1:
		snap = deps.Hook.Query(ctx, 1)
	case known.Page.InRange(want):
		snap = deps.Hook.Query(ctx, want)
	case !fetched:
		snap = deps.Hook.Refresh(ctx)
	}

	params := query.Params.WithPage(snap.Page.CurrentPage)
	return NoticeListResult{
		Scope:          snap.Scope,
		Page:           snap.Page,
		Visible:        notice.Apply(snap.Page.Items, params.Filter, query.Now),
		Params:         params,
		PageNumbers:    listutil.PageNumbers(snap.Page),
		ShowPagination: listutil.ShowPagination(snap.Page),
		Filtered:       !params.Filter.IsDefault(),
		Error:          snap.Error,
		Unauthorized:   snap.Unauthorized,
	}
}
