package web

import (
	"net/http"
	"net/url"
	"strings"

	"noticeboard/internal/adapters/api"
	"noticeboard/internal/adapters/http/middleware"
	"noticeboard/internal/application/listutil"
	"noticeboard/internal/application/projections"
	"noticeboard/internal/domain/notice"
)

// flashMessages maps the ?notice= codes set by redirects after a mutation.
var flashMessages = map[string]string{
	"created":       "Notice created.",
	"updated":       "Notice updated.",
	"deleted":       "Notice deleted.",
	"delete_failed": "The notice could not be deleted. Please try again.",
}

// listPath returns the list page for scope.
func listPath(scope notice.Scope) string {
	switch scope.Category {
	case notice.CategoryDepartment:
		return "/departments/" + url.PathEscape(scope.Subcategory)
	case notice.CategoryClub:
		return "/clubs/" + url.PathEscape(scope.Subcategory)
	}
	return "/notices"
}

// scopeFromPath maps a list page path back to its scope. Anything that is
// not a list page falls back to the main feed.
func scopeFromPath(path string) (notice.Scope, string) {
	for prefix, category := range map[string]notice.Category{
		"/departments/": notice.CategoryDepartment,
		"/clubs/":       notice.CategoryClub,
	} {
		if rest, ok := strings.CutPrefix(path, prefix); ok {
			name, err := url.PathUnescape(rest)
			if err == nil && name != "" && !strings.Contains(name, "/") {
				scope := notice.Scope{Category: category, Subcategory: name}
				return scope, listPath(scope)
			}
		}
	}
	return notice.Scope{}, "/notices"
}

// scopeHeading names the list for its page header.
func scopeHeading(scope notice.Scope) string {
	switch scope.Category {
	case notice.CategoryDepartment:
		return "Department: " + scope.Subcategory
	case notice.CategoryClub:
		return "Club: " + scope.Subcategory
	}
	return "All Notices"
}

// handleMainFeed handles GET / and GET /notices
func handleMainFeed(w http.ResponseWriter, r *http.Request) {
	renderNoticeList(w, r, notice.Scope{})
}

// handleDepartment handles GET /departments/{name}
func handleDepartment(w http.ResponseWriter, r *http.Request) {
	renderNoticeList(w, r, notice.Scope{Category: notice.CategoryDepartment, Subcategory: r.PathValue("name")})
}

// handleClub handles GET /clubs/{name}
func handleClub(w http.ResponseWriter, r *http.Request) {
	renderNoticeList(w, r, notice.Scope{Category: notice.CategoryClub, Subcategory: r.PathValue("name")})
}

func renderNoticeList(w http.ResponseWriter, r *http.Request, scope notice.Scope) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	path := listPath(scope)
	if scope.IsAll() && r.URL.Path == "/" {
		path = "/"
	}

	res := projections.GetNoticeList(r.Context(), projections.GetNoticeListQuery{
		Params: listutil.ParseListParams(r.URL.Query()),
		Now:    timeNow(),
	}, projections.GetNoticeListDeps{Hook: sess.Hook(scope)})
	if res.Unauthorized {
		sess.Auth.Invalidate(r.Context())
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	newLink := "/notices/new"
	if !scope.IsAll() {
		newLink += "?" + url.Values{"category": {string(scope.Category)}, "subcategory": {scope.Subcategory}}.Encode()
	}

	renderTemplate(w, r, "notices.html", map[string]any{
		"Title":   scopeHeading(scope),
		"Heading": scopeHeading(scope),
		"Scope":   scope,
		"Path":    path,
		"List":    res,
		"Cards":   cards(res.Visible),
		"NewLink": newLink,
		"Flash":   flashMessages[r.URL.Query().Get("notice")],
		"Filter":  res.Params.Filter,
	})
}

// handleNoticeDetail handles GET /notices/{id}
func handleNoticeDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := deps.API.GetNotice(r.Context(), sessionToken(r), id)
	if err != nil {
		handleUpstreamError(w, r, err)
		return
	}
	renderTemplate(w, r, "notice.html", map[string]any{
		"Title":   n.Title,
		"Notice":  n,
		"Back":    listPath(n.Scope()),
		"Expired": n.IsExpired(timeNow()),
	})
}

// handleProfile handles GET /profile
func handleProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.CurrentUser(r.Context())
	if user == nil {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	renderTemplate(w, r, "profile.html", map[string]any{
		"Title": "Profile",
		"User":  user,
	})
}

// handleUpstreamError turns a failed backend read into a page. A rejected
// credential signs the session out.
func handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case api.IsUnauthorized(err):
		if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
			sess.Auth.Invalidate(r.Context())
		}
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	case api.IsStatus(err, http.StatusNotFound):
		renderTemplate(w, r, "error.html", map[string]any{
			"Title":   "Not found",
			"Message": "That notice does not exist or has been removed.",
			"Status":  http.StatusNotFound,
		})
	default:
		renderTemplate(w, r, "error.html", map[string]any{
			"Title":   "Something went wrong",
			"Message": api.Message(err),
			"Status":  http.StatusBadGateway,
		})
	}
}

// handleCatchAll redirects any unknown path to the main feed.
func handleCatchAll(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
