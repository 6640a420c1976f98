package web

import (
	"bytes"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/csrf"

	"noticeboard/internal/adapters/http/middleware"
	"noticeboard/internal/adapters/markdown"
	"noticeboard/internal/application/listutil"
	"noticeboard/internal/application/orchestrators"
	"noticeboard/internal/domain/account"
	"noticeboard/internal/domain/notice"
	"noticeboard/internal/domain/subcategory"
)

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("internal_error", "error", err.Error(), "path", r.URL.Path,
		"request_id", middleware.RequestIDFromContext(r.Context()))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json_encode_failed", "error", err)
	}
}

func isHTMLRequest(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") || strings.Contains(accept, "application/xhtml+xml")
}

// noticeCard is a notice prepared for a list card.
type noticeCard struct {
	notice.Notice
	Body      template.HTML // full rendering when short enough
	Preview   string        // plain-text excerpt when Truncated
	Truncated bool
}

func cards(items []notice.Notice) []noticeCard {
	out := make([]noticeCard, 0, len(items))
	for _, n := range items {
		c := noticeCard{Notice: n}
		if _, cut := n.Preview(); cut {
			plain := notice.Notice{Content: markdown.Plain(n.Content)}
			c.Preview, _ = plain.Preview()
			c.Truncated = true
		} else {
			c.Body = markdown.Render(n.Content)
		}
		out = append(out, c)
	}
	return out
}

// registry returns the subcategories visible to the request's user.
func registry(r *http.Request) subcategory.Registry {
	if deps == nil || deps.Subcategories == nil {
		return subcategory.Fallback()
	}
	return deps.Subcategories.Get(r.Context(), sessionToken(r))
}

// sessionToken returns the signed-in user's credential, or "".
func sessionToken(r *http.Request) string {
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		return ""
	}
	tok, err := sess.Auth.Token(r.Context())
	if err != nil {
		return ""
	}
	return tok
}

// actorFrom describes the signed-in user making r.
func actorFrom(r *http.Request) orchestrators.Actor {
	a := orchestrators.Actor{IP: middleware.ClientIP(r), UserAgent: r.UserAgent()}
	if u := middleware.CurrentUser(r.Context()); u != nil {
		a.UID, a.Email, a.Role = u.UID, u.Email, u.Role
	}
	return a
}

func priorityClass(p notice.Priority) string {
	if p.IsValid() {
		return "priority-" + string(p)
	}
	return "priority-default"
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "Recently"
	}
	return t.Local().Format("Jan 2, 2006 03:04 PM")
}

func renderTemplate(w http.ResponseWriter, r *http.Request, templateName string, data map[string]any) {
	user := middleware.CurrentUser(r.Context())
	if user == nil {
		user = &account.User{}
	}
	signedIn := user.UID != ""

	var nav subcategory.Registry
	if signedIn {
		nav = registry(r)
	}

	funcMap := template.FuncMap{
		"currentUser":    func() *account.User { return user },
		"isLoggedIn":     func() bool { return signedIn },
		"isAdmin":        func() bool { return user.IsAdmin() },
		"canAuthor":      func() bool { return user.CanAuthor() },
		"csrfField":      func() template.HTML { return csrf.TemplateField(r) },
		"navDepartments": func() []string { return nav.Departments },
		"navClubs":       func() []string { return nav.Clubs },
		"renderMarkdown": markdown.Render,
		"priorityClass":  priorityClass,
		"formatDate":     formatDate,
		"pageLink": func(path string, p listutil.ListParams, n int) string {
			return p.WithPage(n).Link(path)
		},
		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },
	}

	tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(assets, "templates/layout.html", "templates/"+templateName)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["Title"]; !ok {
		data["Title"] = "Notice Board"
	}

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if status, ok := data["Status"].(int); ok && status != 0 {
		w.WriteHeader(status)
	}
	_, _ = buf.WriteTo(w)
}
