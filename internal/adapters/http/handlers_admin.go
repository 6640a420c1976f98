package web

import (
	"net/http"
	"net/url"

	"noticeboard/internal/adapters/http/middleware"
	"noticeboard/internal/application/noticequery"
	"noticeboard/internal/application/orchestrators"
	"noticeboard/internal/application/projections"
	"noticeboard/internal/domain/notice"
	"noticeboard/internal/domain/subcategory"
)

// handleAdminDashboard handles GET /admin
func handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	q := projections.GetDashboardQuery{
		Token:    sessionToken(r),
		Registry: registry(r),
		Now:      timeNow(),
	}
	d := projections.GetDashboardDeps{Notices: deps.API, Collector: deps.Collector}
	if deps.Audit != nil {
		d.Audit = deps.Audit
	}
	result, err := projections.GetDashboard(r.Context(), q, d)
	if err != nil {
		internalError(w, r, err)
		return
	}
	renderTemplate(w, r, "admin_dashboard.html", map[string]any{
		"Title":     "Dashboard",
		"Dashboard": result,
		"User":      middleware.CurrentUser(r.Context()),
		"Fallback":  deps.Subcategories != nil && deps.Subcategories.UsingFallback(),
	})
}

func formFromRequest(r *http.Request) orchestrators.NoticeForm {
	return orchestrators.NoticeForm{
		Title:       r.FormValue("title"),
		Content:     r.FormValue("content"),
		Category:    r.FormValue("category"),
		Subcategory: r.FormValue("subcategory"),
		Priority:    r.FormValue("priority"),
		ExpiresAt:   r.FormValue("expires_at"),
	}
}

// returnTarget resolves the list a form came from and the hook that shows it.
func returnTarget(r *http.Request) (*noticequery.Hook, string) {
	scope, path := scopeFromPath(r.FormValue("return"))
	sess, _ := middleware.GetSessionFromContext(r.Context())
	return sess.Hook(scope), path
}

type noticeFormView struct {
	Heading string
	Action  string
	Submit  string
	Return  string
	Form    orchestrators.NoticeForm
	Fields  map[string]string
	Error   string
}

func renderNoticeForm(w http.ResponseWriter, r *http.Request, view noticeFormView, reg subcategory.Registry, status int) {
	renderTemplate(w, r, "notice_form.html", map[string]any{
		"Title":      view.Heading,
		"View":       view,
		"Categories": notice.ValidCategories,
		"Priorities": notice.ValidPriorities,
		"Registry":   reg,
		"Status":     status,
	})
}

// handleCreateNotice handles GET (form) and POST (create) for
// /admin/create-notice and /notices/new
func handleCreateNotice(w http.ResponseWriter, r *http.Request) {
	reg := registry(r)
	view := noticeFormView{Heading: "Create Notice", Action: r.URL.Path, Submit: "Publish"}

	if r.Method == http.MethodGet {
		q := r.URL.Query()
		view.Form = orchestrators.NewNoticeForm(timeNow())
		view.Return = "/notices"
		if c := q.Get("category"); c == string(notice.CategoryDepartment) || c == string(notice.CategoryClub) {
			view.Form.Category = c
			if reg.Contains(c, q.Get("subcategory")) {
				view.Form.Subcategory = q.Get("subcategory")
				view.Return = listPath(notice.Scope{Category: notice.Category(c), Subcategory: view.Form.Subcategory})
			}
		}
		renderNoticeForm(w, r, view, reg, 0)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	hook, back := returnTarget(r)
	view.Form = formFromRequest(r)
	view.Return = back

	res, err := orchestrators.ExecuteCreateNotice(r.Context(), orchestrators.CreateNoticeInput{
		Actor: actorFrom(r),
		Form:  view.Form,
	}, orchestrators.CreateNoticeDeps{
		Notices:   hook,
		Registry:  reg,
		Audit:     deps.Audit,
		Announcer: deps.Announcer,
		Now:       timeNow,
	})
	if fields, ok := orchestrators.IsFormError(err); ok {
		view.Fields = fields
		renderNoticeForm(w, r, view, reg, http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !res.Success {
		view.Error = res.Error
		renderNoticeForm(w, r, view, reg, http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, back+"?notice=created", http.StatusSeeOther)
}

// handleEditNotice handles GET (form) and POST (update) for /admin/notices/{id}/edit
func handleEditNotice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	reg := registry(r)
	view := noticeFormView{Heading: "Edit Notice", Action: "/admin/notices/" + url.PathEscape(id) + "/edit", Submit: "Save changes"}

	current, err := deps.API.GetNotice(r.Context(), sessionToken(r), id)
	if r.Method == http.MethodGet {
		if err != nil {
			handleUpstreamError(w, r, err)
			return
		}
		view.Form = orchestrators.NoticeFormFrom(current)
		view.Return = r.URL.Query().Get("return")
		if _, path := scopeFromPath(view.Return); path != view.Return {
			view.Return = listPath(current.Scope())
		}
		renderNoticeForm(w, r, view, reg, 0)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	var previous *notice.Notice
	if err == nil {
		previous = &current
	}
	hook, back := returnTarget(r)
	view.Form = formFromRequest(r)
	view.Return = back

	res, err := orchestrators.ExecuteUpdateNotice(r.Context(), orchestrators.UpdateNoticeInput{
		Actor:    actorFrom(r),
		NoticeID: id,
		Form:     view.Form,
		Previous: previous,
	}, orchestrators.UpdateNoticeDeps{
		Notices:   hook,
		Registry:  reg,
		Audit:     deps.Audit,
		Announcer: deps.Announcer,
		Now:       timeNow,
	})
	if fields, ok := orchestrators.IsFormError(err); ok {
		view.Fields = fields
		renderNoticeForm(w, r, view, reg, http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !res.Success {
		view.Error = res.Error
		renderNoticeForm(w, r, view, reg, http.StatusBadGateway)
		return
	}
	http.Redirect(w, r, back+"?notice=updated", http.StatusSeeOther)
}

// handleDeleteNotice handles POST /admin/notices/{id}/delete
func handleDeleteNotice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	hook, back := returnTarget(r)
	res, err := orchestrators.ExecuteDeleteNotice(r.Context(), orchestrators.DeleteNoticeInput{
		Actor:    actorFrom(r),
		NoticeID: r.PathValue("id"),
		Title:    r.FormValue("title"),
	}, orchestrators.DeleteNoticeDeps{
		Notices: hook,
		Audit:   deps.Audit,
		Now:     timeNow,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	code := "deleted"
	if !res.Success {
		code = "delete_failed"
	}
	http.Redirect(w, r, back+"?notice="+code, http.StatusSeeOther)
}
