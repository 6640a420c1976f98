package web

import (
	"net/http"
	"time"

	"noticeboard/internal/adapters/api"
	"noticeboard/internal/adapters/http/middleware"
	"noticeboard/internal/application/listutil"
	"noticeboard/internal/application/noticequery"
	"noticeboard/internal/application/orchestrators"
	"noticeboard/internal/application/projections"
	"noticeboard/internal/domain/notice"
)

// noticeRequest is the JSON body of POST /api/notices and PUT /api/notices/{id}.
type noticeRequest struct {
	Title       string `json:"title"`
	Content     string `json:"content"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
	Priority    string `json:"priority"`
	ExpiresAt   string `json:"expires_at"` // YYYY-MM-DD, empty for the default
}

func (req noticeRequest) form(now time.Time) orchestrators.NoticeForm {
	f := orchestrators.NoticeForm{
		Title:       req.Title,
		Content:     req.Content,
		Category:    req.Category,
		Subcategory: req.Subcategory,
		Priority:    req.Priority,
		ExpiresAt:   req.ExpiresAt,
	}
	if f.Priority == "" {
		f.Priority = string(notice.PriorityMedium)
	}
	if f.ExpiresAt == "" {
		f.ExpiresAt = orchestrators.NewNoticeForm(now).ExpiresAt
	}
	return f
}

type noticeListResponse struct {
	Scope       string          `json:"scope"`
	Items       []notice.Notice `json:"items"`
	CurrentPage int             `json:"current_page"`
	TotalPages  int             `json:"total_pages"`
	Total       int             `json:"total"`
	Filtered    bool            `json:"filtered"`
	Error       string          `json:"error,omitempty"`
}

// apiScope reads ?category=&subcategory= into a list scope.
func apiScope(r *http.Request) notice.Scope {
	q := r.URL.Query()
	c := notice.Category(q.Get("category"))
	if c != notice.CategoryDepartment && c != notice.CategoryClub {
		return notice.Scope{}
	}
	return notice.Scope{Category: c, Subcategory: q.Get("subcategory")}
}

func apiHook(r *http.Request) (*noticequery.Hook, bool) {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		return nil, false
	}
	return sess.Hook(apiScope(r)), true
}

// writeMutation maps an orchestrator outcome to a JSON response.
func writeMutation(w http.ResponseWriter, res noticequery.Result, err error, okStatus int) {
	if fields, ok := orchestrators.IsFormError(err); ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fields})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": res.Error})
		return
	}
	if res.Data == nil {
		w.WriteHeader(okStatus)
		return
	}
	writeJSON(w, okStatus, res.Data)
}

// handleAPINotices handles GET /api/notices
func handleAPINotices(w http.ResponseWriter, r *http.Request) {
	hook, ok := apiHook(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	res := projections.GetNoticeList(r.Context(), projections.GetNoticeListQuery{
		Params: listutil.ParseListParams(r.URL.Query()),
		Now:    timeNow(),
	}, projections.GetNoticeListDeps{Hook: hook})
	if res.Unauthorized {
		if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
			sess.Auth.Invalidate(r.Context())
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": res.Error})
		return
	}

	writeJSON(w, http.StatusOK, noticeListResponse{
		Scope:       res.Scope.String(),
		Items:       res.Visible,
		CurrentPage: res.Page.CurrentPage,
		TotalPages:  res.Page.TotalPages,
		Total:       res.Page.Total,
		Filtered:    res.Filtered,
		Error:       res.Error,
	})
}

// handleAPICreateNotice handles POST /api/notices
func handleAPICreateNotice(w http.ResponseWriter, r *http.Request) {
	hook, ok := apiHook(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req noticeRequest
	if err := strictDecode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	res, err := orchestrators.ExecuteCreateNotice(r.Context(), orchestrators.CreateNoticeInput{
		Actor: actorFrom(r),
		Form:  req.form(timeNow()),
	}, orchestrators.CreateNoticeDeps{
		Notices:   hook,
		Registry:  registry(r),
		Audit:     deps.Audit,
		Announcer: deps.Announcer,
		Now:       timeNow,
	})
	writeMutation(w, res, err, http.StatusCreated)
}

// handleAPIUpdateNotice handles PUT /api/notices/{id}
func handleAPIUpdateNotice(w http.ResponseWriter, r *http.Request) {
	hook, ok := apiHook(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	id := r.PathValue("id")
	var req noticeRequest
	if err := strictDecode(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	var previous *notice.Notice
	current, err := deps.API.GetNotice(r.Context(), sessionToken(r), id)
	switch {
	case err == nil:
		previous = &current
	case api.IsStatus(err, http.StatusNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": api.Message(err)})
		return
	}

	res, err := orchestrators.ExecuteUpdateNotice(r.Context(), orchestrators.UpdateNoticeInput{
		Actor:    actorFrom(r),
		NoticeID: id,
		Form:     req.form(timeNow()),
		Previous: previous,
	}, orchestrators.UpdateNoticeDeps{
		Notices:   hook,
		Registry:  registry(r),
		Audit:     deps.Audit,
		Announcer: deps.Announcer,
		Now:       timeNow,
	})
	writeMutation(w, res, err, http.StatusOK)
}

// handleAPIDeleteNotice handles DELETE /api/notices/{id}
func handleAPIDeleteNotice(w http.ResponseWriter, r *http.Request) {
	hook, ok := apiHook(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	res, err := orchestrators.ExecuteDeleteNotice(r.Context(), orchestrators.DeleteNoticeInput{
		Actor:    actorFrom(r),
		NoticeID: r.PathValue("id"),
	}, orchestrators.DeleteNoticeDeps{
		Notices: hook,
		Audit:   deps.Audit,
		Now:     timeNow,
	})
	writeMutation(w, res, err, http.StatusNoContent)
}

// handleAPISubcategories handles GET /api/subcategories
func handleAPISubcategories(w http.ResponseWriter, r *http.Request) {
	reg := registry(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"departments": reg.Departments,
		"clubs":       reg.Clubs,
		"fallback":    deps.Subcategories == nil || deps.Subcategories.UsingFallback(),
	})
}

// healthWindow is how far back /healthz looks for upstream errors.
const healthWindow = 5 * time.Minute

// handleHealthz handles GET /healthz
func handleHealthz(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "sessions": sessions.Len()}
	if deps.Collector != nil {
		snap := deps.Collector.Snapshot(timeNow().Add(-healthWindow), 1)
		body["upstream_errors"] = snap.UpstreamErrors
	}
	writeJSON(w, http.StatusOK, body)
}
