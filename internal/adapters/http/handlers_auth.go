package web

import (
	"context"
	"net/http"

	"noticeboard/internal/adapters/http/middleware"
	"noticeboard/internal/application/orchestrators"
	"noticeboard/internal/domain/account"
)

func sessionDeps(sess *middleware.Session) orchestrators.SessionDeps {
	return orchestrators.SessionDeps{Session: sess.Auth, Audit: deps.Audit, Now: timeNow}
}

// settleContext bounds how long a sign-in waits for the backend account exchange.
func settleContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := deps.Options.ReadyTimeout
	if timeout <= 0 {
		timeout = middleware.DefaultReadyTimeout
	}
	return context.WithTimeout(r.Context(), timeout)
}

// handleLogin handles GET (form) and POST (authenticate) for /login
func handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if middleware.CurrentUser(r.Context()) != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		renderTemplate(w, r, "login.html", map[string]any{"Title": "Sign in", "Email": ""})
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	sess, err := sessions.Ensure(w, r)
	if err != nil {
		internalError(w, r, err)
		return
	}

	ctx, cancel := settleContext(r)
	defer cancel()
	res := orchestrators.ExecuteSignIn(ctx, orchestrators.SignInInput{
		Email:     r.FormValue("email"),
		Password:  r.FormValue("password"),
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}, sessionDeps(sess))
	if !res.Success {
		renderTemplate(w, r, "login.html", map[string]any{
			"Title":  "Sign in",
			"Error":  res.Error,
			"Email":  r.FormValue("email"),
			"Status": http.StatusUnauthorized,
		})
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleSignup handles GET (form) and POST (register) for /signup
func handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if middleware.CurrentUser(r.Context()) != nil {
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		renderTemplate(w, r, "signup.html", map[string]any{
			"Title":  "Create account",
			"Form":   orchestrators.SignUpForm{Role: account.DefaultRole, Department: account.DefaultDepartment},
			"Roles":  account.SelfServiceRoles,
			"Fields": map[string]string{},
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form submission", http.StatusBadRequest)
		return
	}
	form := orchestrators.SignUpForm{
		Email:           r.FormValue("email"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
		Name:            r.FormValue("name"),
		Role:            r.FormValue("role"),
		Department:      r.FormValue("department"),
	}
	rerender := func(status int, msg string, fields map[string]string) {
		form.Password, form.ConfirmPassword = "", ""
		renderTemplate(w, r, "signup.html", map[string]any{
			"Title":  "Create account",
			"Form":   form,
			"Roles":  account.SelfServiceRoles,
			"Error":  msg,
			"Fields": fields,
			"Status": status,
		})
	}

	sess, err := sessions.Ensure(w, r)
	if err != nil {
		internalError(w, r, err)
		return
	}
	ctx, cancel := settleContext(r)
	defer cancel()
	res, err := orchestrators.ExecuteSignUp(ctx, orchestrators.SignUpInput{
		Form:      form,
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}, sessionDeps(sess))
	if fields, ok := orchestrators.IsFormError(err); ok {
		rerender(http.StatusUnprocessableEntity, "", fields)
		return
	}
	if err != nil {
		internalError(w, r, err)
		return
	}
	if !res.Success {
		rerender(http.StatusBadRequest, res.Error, nil)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleLogout handles POST /logout
func handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		orchestrators.ExecuteSignOut(r.Context(), orchestrators.SignOutInput{
			IP:        middleware.ClientIP(r),
			UserAgent: r.UserAgent(),
		}, sessionDeps(sess))
	}
	sessions.Destroy(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
