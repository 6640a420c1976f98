// Package listutil turns list-view query strings into notice filter state and
// back, and lays out pagination controls.
package listutil

import (
	"net/url"
	"strconv"

	"noticeboard/internal/domain/notice"
)

// Query parameter names shared by every notice list page.
const (
	ParamPage     = "page"
	ParamSearch   = "q"
	ParamPriority = "priority"
	ParamDate     = "date"
	ParamSort     = "sort"
)

// maxButtons is how many numbered page links are shown at once.
const maxButtons = 5

// ListParams combines all list view parameters.
type ListParams struct {
	Page   int
	Filter notice.FilterState
}

// ParsePage extracts the 1-indexed page number.
// POST: returns >= 1
func ParsePage(q url.Values) int {
	page, _ := strconv.Atoi(q.Get(ParamPage))
	if page < 1 {
		page = 1
	}
	return page
}

// ParseFilter extracts the search, priority, date range and sort selection.
// POST: unknown values are replaced with defaults
func ParseFilter(q url.Values) notice.FilterState {
	return notice.FilterState{
		Search:    q.Get(ParamSearch),
		Priority:  q.Get(ParamPriority),
		DateRange: q.Get(ParamDate),
		Sort:      q.Get(ParamSort),
	}.Normalize()
}

// ParseListParams parses all list parameters from URL query values.
func ParseListParams(q url.Values) ListParams {
	return ListParams{Page: ParsePage(q), Filter: ParseFilter(q)}
}

// Values encodes p, omitting defaults so links stay short.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	f := p.Filter.Normalize()
	def := notice.DefaultFilter()
	if p.Page > 1 {
		v.Set(ParamPage, strconv.Itoa(p.Page))
	}
	if f.Search != "" {
		v.Set(ParamSearch, f.Search)
	}
	if f.Priority != def.Priority {
		v.Set(ParamPriority, f.Priority)
	}
	if f.DateRange != def.DateRange {
		v.Set(ParamDate, f.DateRange)
	}
	if f.Sort != def.Sort {
		v.Set(ParamSort, f.Sort)
	}
	return v
}

// Link returns path with p's query string.
func (p ListParams) Link(path string) string {
	if enc := p.Values().Encode(); enc != "" {
		return path + "?" + enc
	}
	return path
}

// WithPage returns a copy of p pointing at page n.
func (p ListParams) WithPage(n int) ListParams {
	p.Page = n
	return p
}

// PageNumbers returns the page numbers to display in pagination controls.
// Shows at most 5 pages centered around the current page.
// PRE: page is a computed notice.Page
// POST: returns an empty slice when there are no pages
func PageNumbers(page notice.Page) []int {
	if page.TotalPages < 1 {
		return []int{}
	}
	start := page.CurrentPage - maxButtons/2
	if start < 1 {
		start = 1
	}
	end := start + maxButtons - 1
	if end > page.TotalPages {
		end = page.TotalPages
		start = end - maxButtons + 1
		if start < 1 {
			start = 1
		}
	}
	pages := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		pages = append(pages, i)
	}
	return pages
}

// ShowPagination reports whether pagination controls should be displayed.
func ShowPagination(page notice.Page) bool {
	return page.TotalPages > 1
}
