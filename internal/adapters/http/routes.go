package web

import (
	"net/http"

	"noticeboard/internal/adapters/http/middleware"
	"noticeboard/internal/domain/account"
)

// registerRoutes attaches every page and API handler to mux.
// PRE: deps and sessions are set
func registerRoutes(mux *http.ServeMux) {
	timeout := deps.Options.ReadyTimeout
	if timeout <= 0 {
		timeout = middleware.DefaultReadyTimeout
	}
	authed := middleware.RequireAuth(timeout)
	admin := middleware.RequireRole(timeout, account.RoleAdmin)
	author := middleware.RequireRole(timeout, account.RoleAdmin, account.RoleFaculty)

	page := func(gate func(http.Handler) http.Handler, h http.HandlerFunc) http.Handler {
		return gate(h)
	}

	// Public
	mux.HandleFunc("GET /login", handleLogin)
	mux.HandleFunc("POST /login", handleLogin)
	mux.HandleFunc("GET /signup", handleSignup)
	mux.HandleFunc("POST /signup", handleSignup)
	mux.HandleFunc("POST /logout", handleLogout)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	// Signed in
	mux.Handle("GET /{$}", page(authed, handleMainFeed))
	mux.Handle("GET /notices", page(authed, handleMainFeed))
	mux.Handle("GET /departments/{name}", page(authed, handleDepartment))
	mux.Handle("GET /clubs/{name}", page(authed, handleClub))
	mux.Handle("GET /notices/{id}", page(authed, handleNoticeDetail))
	mux.Handle("GET /profile", page(authed, handleProfile))

	// Authors
	mux.Handle("GET /notices/new", page(author, handleCreateNotice))
	mux.Handle("POST /notices/new", page(author, handleCreateNotice))

	// Admin
	mux.Handle("GET /admin", page(admin, handleAdminDashboard))
	mux.Handle("GET /admin/activity", page(admin, handleAdminActivity))
	mux.Handle("GET /admin/outbox", page(admin, handleAdminOutbox))
	mux.Handle("POST /admin/outbox/{id}/retry", page(admin, handleAdminOutboxRetry))
	mux.Handle("POST /admin/outbox/{id}/abandon", page(admin, handleAdminOutboxAbandon))
	mux.Handle("GET /admin/create-notice", page(admin, handleCreateNotice))
	mux.Handle("POST /admin/create-notice", page(admin, handleCreateNotice))
	mux.Handle("GET /admin/notices/{id}/edit", page(admin, handleEditNotice))
	mux.Handle("POST /admin/notices/{id}/edit", page(admin, handleEditNotice))
	mux.Handle("POST /admin/notices/{id}/delete", page(admin, handleDeleteNotice))

	// JSON API
	mux.Handle("GET /api/notices", page(authed, handleAPINotices))
	mux.Handle("POST /api/notices", page(author, handleAPICreateNotice))
	mux.Handle("PUT /api/notices/{id}", page(admin, handleAPIUpdateNotice))
	mux.Handle("DELETE /api/notices/{id}", page(admin, handleAPIDeleteNotice))
	mux.Handle("GET /api/subcategories", page(authed, handleAPISubcategories))

	mux.HandleFunc("/", handleCatchAll)
}
