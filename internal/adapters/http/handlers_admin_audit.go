package web

import (
	"net/http"
	"strconv"
	"time"

	auditstore "noticeboard/internal/adapters/storage/audit"
	"noticeboard/internal/domain/audit"
)

// Activity log paging bounds
const (
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
)

// activityActions are the actions offered in the activity log filter.
var activityActions = []audit.Action{
	audit.ActionCreate, audit.ActionUpdate, audit.ActionDelete,
	audit.ActionSignIn, audit.ActionSignOut, audit.ActionSignUp,
	audit.ActionDenied, audit.ActionPrune,
}

// handleAdminActivity renders the local activity log (GET /admin/activity)
// PRE: the admin gate has run
// POST: Renders events newest first with optional filters
func handleAdminActivity(w http.ResponseWriter, r *http.Request) {
	if deps.Audit == nil {
		renderTemplate(w, r, "error.html", map[string]any{
			"Title":   "Activity log",
			"Message": "The activity log is not enabled on this server.",
			"Status":  http.StatusServiceUnavailable,
		})
		return
	}

	q := r.URL.Query()
	filter := auditstore.Filter{
		Category:   audit.Category(q.Get("category")),
		Action:     audit.Action(q.Get("action")),
		ActorUID:   q.Get("actor"),
		ResourceID: q.Get("resource_id"),
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.ParseInLocation("2006-01-02", from, time.Local); err == nil {
			filter.Since = t
		}
	}

	limit := defaultActivityLimit
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= maxActivityLimit {
		limit = l
	}

	events, err := deps.Audit.List(r.Context(), filter, limit)
	if err != nil {
		internalError(w, r, err)
		return
	}

	renderTemplate(w, r, "admin_activity.html", map[string]any{
		"Title":      "Activity log",
		"Events":     events,
		"Filter":     filter,
		"From":       q.Get("from"),
		"Limit":      limit,
		"Actions":    activityActions,
		"Categories": []audit.Category{audit.CategoryNotice, audit.CategorySession, audit.CategoryAccount, audit.CategorySecurity, audit.CategorySystem},
	})
}
