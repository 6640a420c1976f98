package projections

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"noticeboard/internal/adapters/api"
	"noticeboard/internal/adapters/http/perf"
	auditstore "noticeboard/internal/adapters/storage/audit"
	"noticeboard/internal/domain/audit"
	"noticeboard/internal/domain/notice"
	"noticeboard/internal/domain/subcategory"
)

// DashboardNoticeLister defines the API surface needed by the dashboard projection.
type DashboardNoticeLister interface {
	ListNotices(ctx context.Context, token string, p api.ListParams) (api.ListResult, error)
}

// DashboardAuditStore defines the audit store interface needed by the dashboard projection.
type DashboardAuditStore interface {
	List(ctx context.Context, filter auditstore.Filter, limit int) ([]audit.Event, error)
	CountByAction(ctx context.Context, since time.Time) (map[audit.Action]int, error)
}

// Dashboard defaults
const (
	DefaultActivityLimit = 10
	recentNoticeCount    = 5
	countConcurrency     = 4
	activityWindow       = 7 * 24 * time.Hour
)

// GetDashboardQuery carries input for the dashboard projection.
type GetDashboardQuery struct {
	Token         string
	Registry      subcategory.Registry
	Now           time.Time
	ActivityLimit int
}

// GetDashboardDeps holds dependencies for the dashboard projection.
type GetDashboardDeps struct {
	Notices   DashboardNoticeLister
	Audit     DashboardAuditStore // optional: nil skips the activity panel
	Collector *perf.Collector     // optional: nil skips upstream status
}

// ScopeCount is the number of live notices in one department or club.
type ScopeCount struct {
	Name        string
	Notices     int
	Unavailable bool
}

// DashboardResult carries the output of the dashboard projection.
type DashboardResult struct {
	ActiveNotices  int
	ExpiredNotices int
	Departments    []ScopeCount
	Clubs          []ScopeCount
	RecentNotices  []notice.Notice

	RecentActivity []audit.Event
	WeeklyActivity map[audit.Action]int

	APIHealthy     bool
	AuditHealthy   bool
	UpstreamP95Ms  float64
	UpstreamErrors int

	Warnings []string
}

// GetDashboard gathers notice totals per scope from the backend plus local
// activity. Failures of individual panels become warnings so the page still renders.
// PRE: query.Token belongs to an admin
// POST: Departments and Clubs follow the registry order
func GetDashboard(ctx context.Context, query GetDashboardQuery, deps GetDashboardDeps) (DashboardResult, error) {
	if query.ActivityLimit <= 0 {
		query.ActivityLimit = DefaultActivityLimit
	}
	result := DashboardResult{
		Departments: scopeRows(query.Registry.Departments),
		Clubs:       scopeRows(query.Registry.Clubs),
	}

	var mu sync.Mutex
	warn := func(msg string, err error) {
		slog.Warn("dashboard_panel_failed", "panel", msg, "error", err)
		mu.Lock()
		result.Warnings = append(result.Warnings, msg+": "+api.Message(err))
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)

	g.Go(func() error {
		res, err := deps.Notices.ListNotices(gctx, query.Token, api.ListParams{Page: 1, PerPage: recentNoticeCount})
		if err != nil {
			warn("Active notices", err)
			return nil
		}
		mu.Lock()
		result.APIHealthy = true
		result.ActiveNotices = res.Total
		result.RecentNotices = res.Notices
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		res, err := deps.Notices.ListNotices(gctx, query.Token, api.ListParams{Page: 1, PerPage: 1, IncludeExpired: true})
		if err != nil {
			warn("All notices", err)
			return nil
		}
		mu.Lock()
		result.ExpiredNotices = res.Total
		mu.Unlock()
		return nil
	})
	countScopes(gctx, g, deps.Notices, query.Token, notice.CategoryDepartment, result.Departments, &mu)
	countScopes(gctx, g, deps.Notices, query.Token, notice.CategoryClub, result.Clubs, &mu)

	if err := g.Wait(); err != nil {
		return DashboardResult{}, err
	}
	if ctx.Err() != nil {
		return DashboardResult{}, ctx.Err()
	}
	if result.ExpiredNotices >= result.ActiveNotices {
		result.ExpiredNotices -= result.ActiveNotices
	} else {
		result.ExpiredNotices = 0
	}

	if deps.Audit != nil {
		events, err := deps.Audit.List(ctx, auditstore.Filter{}, query.ActivityLimit)
		counts, cerr := deps.Audit.CountByAction(ctx, query.Now.Add(-activityWindow))
		switch {
		case err != nil:
			warn("Recent activity", err)
		case cerr != nil:
			warn("Weekly activity", cerr)
		default:
			result.AuditHealthy = true
			result.RecentActivity = events
			result.WeeklyActivity = counts
		}
	}

	if deps.Collector != nil {
		snap := deps.Collector.Snapshot(query.Now.Add(-time.Hour), 5)
		result.UpstreamP95Ms = snap.UpstreamP95Ms
		result.UpstreamErrors = snap.UpstreamErrors
	}
	return result, nil
}

func scopeRows(names []string) []ScopeCount {
	rows := make([]ScopeCount, len(names))
	for i, name := range names {
		rows[i] = ScopeCount{Name: name}
	}
	return rows
}

// countScopes schedules one count per row. Each goroutine writes only its own row.
func countScopes(ctx context.Context, g *errgroup.Group, lister DashboardNoticeLister, token string, category notice.Category, rows []ScopeCount, mu *sync.Mutex) {
	for i := range rows {
		g.Go(func() error {
			res, err := lister.ListNotices(ctx, token, api.ListParams{
				Page:        1,
				PerPage:     1,
				Category:    category,
				Subcategory: rows[i].Name,
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("dashboard_count_failed", "category", category, "subcategory", rows[i].Name, "error", err)
				rows[i].Unavailable = true
				return nil
			}
			rows[i].Notices = res.Total
			return nil
		})
	}
}
