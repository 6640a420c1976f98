package notice

import (
	"sort"
	"strings"
	"time"
)

// Date range buckets
const (
	DateAll   = "all"
	DateToday = "today"
	DateWeek  = "week"
	DateMonth = "month"
)

// Sort keys
const (
	SortLatest   = "latest"
	SortOldest   = "oldest"
	SortPriority = "priority"
)

// PriorityAll disables the priority filter.
const PriorityAll = "all"

// FilterState is the view-local search, filter and sort selection.
// It only ever applies to the page of notices already loaded.
type FilterState struct {
	Search    string
	Priority  string
	DateRange string
	Sort      string
}

// DefaultFilter returns the state shown before the user touches any control.
func DefaultFilter() FilterState {
	return FilterState{Priority: PriorityAll, DateRange: DateAll, Sort: SortLatest}
}

// Normalize replaces unknown values with their defaults.
// INVARIANT: Search is preserved apart from surrounding whitespace
func (f FilterState) Normalize() FilterState {
	out := DefaultFilter()
	out.Search = strings.TrimSpace(f.Search)
	if Priority(f.Priority).IsValid() {
		out.Priority = f.Priority
	}
	switch f.DateRange {
	case DateToday, DateWeek, DateMonth:
		out.DateRange = f.DateRange
	}
	switch f.Sort {
	case SortOldest, SortPriority:
		out.Sort = f.Sort
	}
	return out
}

// IsDefault reports whether the state filters nothing and uses the default sort.
func (f FilterState) IsDefault() bool {
	return f.Normalize() == DefaultFilter()
}

// Apply filters items by search text, priority and creation date, then sorts
// them. The input slice is not modified. Filters are conjunctive, so their
// order does not matter; sorting is stable.
// PRE: now is the wall-clock time the view is rendered at
// POST: Returns a new slice containing only matching notices
func Apply(items []Notice, f FilterState, now time.Time) []Notice {
	since, bounded := f.since(now)
	query := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]Notice, 0, len(items))
	for _, n := range items {
		if query != "" && !matchesSearch(n, query) {
			continue
		}
		if f.Priority != "" && f.Priority != PriorityAll && n.Priority != Priority(f.Priority) {
			continue
		}
		if bounded && n.CreatedAt.Before(since) {
			continue
		}
		out = append(out, n)
	}

	switch f.Sort {
	case SortLatest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	case SortOldest:
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	case SortPriority:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Priority.Rank() > out[j].Priority.Rank() })
	}
	return out
}

// since returns the earliest creation time admitted by the date range.
// Buckets are measured back from local midnight of now.
func (f FilterState) since(now time.Time) (time.Time, bool) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch f.DateRange {
	case DateToday:
		return midnight, true
	case DateWeek:
		return midnight.AddDate(0, 0, -7), true
	case DateMonth:
		return midnight.AddDate(0, -1, 0), true
	}
	return time.Time{}, false
}

func matchesSearch(n Notice, query string) bool {
	return strings.Contains(strings.ToLower(n.Title), query) ||
		strings.Contains(strings.ToLower(n.Content), query)
}
