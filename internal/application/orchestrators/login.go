package orchestrators

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"noticeboard/internal/application/authsession"
	"noticeboard/internal/domain/account"
	"noticeboard/internal/domain/audit"
)

// ErrMsgAccountUnavailable is shown when the identity provider accepted the
// credentials but the backend would not load the matching account.
const ErrMsgAccountUnavailable = "Your notice board account could not be loaded. Please try again or contact an administrator."

// AuthSession is the per-browser auth store the session orchestrators drive.
type AuthSession interface {
	SignIn(ctx context.Context, email, password string) authsession.Result
	SignUp(ctx context.Context, email, password string, profile authsession.Profile) authsession.Result
	SignOut(ctx context.Context) authsession.Result
	WaitReady(ctx context.Context) error
	State() authsession.State
	User() *account.User
}

// SessionDeps holds dependencies shared by the sign-in, sign-up and sign-out orchestrators.
type SessionDeps struct {
	Session AuthSession
	Audit   AuditRecorder
	Now     func() time.Time
}

// --- Sign In ---

// SignInInput carries input for the sign-in orchestrator.
type SignInInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// ExecuteSignIn signs in through the identity provider and waits for the
// backend account exchange to settle, so the caller can redirect into a gated page.
// PRE: ctx bounds how long the exchange may take
// POST: Success implies the session is authenticated
func ExecuteSignIn(ctx context.Context, input SignInInput, deps SessionDeps) authsession.Result {
	emailAddr := strings.TrimSpace(input.Email)
	res := deps.Session.SignIn(ctx, emailAddr, input.Password)
	if !res.Success {
		slog.Info("auth_event", "event", "login_failed", "email", emailAddr, "reason", res.Error)
		recordAudit(ctx, deps.Audit, audit.NewEvent("", emailAddr, "", audit.CategorySecurity, audit.ActionDenied, deps.Now()).
			WithSeverity(audit.SeverityWarning).
			WithRequest(input.IP, input.UserAgent).
			WithDescription("sign-in failed: "+res.Error))
		return res
	}

	return settle(ctx, deps, audit.ActionSignIn, emailAddr, input.IP, input.UserAgent)
}

// --- Sign Up ---

// SignUpInput carries input for the sign-up orchestrator.
type SignUpInput struct {
	Form      SignUpForm
	IP        string
	UserAgent string
}

// ExecuteSignUp validates the registration form, creates the identity and
// backend accounts, and waits for the resulting sign-in to settle.
// POST: a *FormError is returned for invalid input; otherwise the Result reports the outcome
func ExecuteSignUp(ctx context.Context, input SignUpInput, deps SessionDeps) (authsession.Result, error) {
	if err := input.Form.Check(); err != nil {
		return authsession.Result{}, err
	}
	emailAddr := strings.TrimSpace(input.Form.Email)
	res := deps.Session.SignUp(ctx, emailAddr, input.Form.Password, authsession.Profile{
		Name:       input.Form.Name,
		Role:       input.Form.Role,
		Department: input.Form.Department,
	})
	if !res.Success {
		slog.Info("auth_event", "event", "signup_failed", "email", emailAddr, "reason", res.Error)
		return res, nil
	}
	return settle(ctx, deps, audit.ActionSignUp, emailAddr, input.IP, input.UserAgent), nil
}

// settle waits for the session to leave the loading state and records the result.
func settle(ctx context.Context, deps SessionDeps, action audit.Action, emailAddr, ip, ua string) authsession.Result {
	if err := deps.Session.WaitReady(ctx); err != nil {
		slog.Warn("auth_event", "event", "session_not_ready", "email", emailAddr, "error", err)
		return authsession.Result{Error: ErrMsgAccountUnavailable}
	}
	user := deps.Session.User()
	if deps.Session.State() != authsession.StateAuthenticated || user == nil {
		slog.Info("auth_event", "event", "account_unavailable", "email", emailAddr)
		return authsession.Result{Error: ErrMsgAccountUnavailable}
	}

	recordAudit(ctx, deps.Audit, audit.NewEvent(user.UID, user.Email, user.Role, audit.CategorySession, action, deps.Now()).
		WithRequest(ip, ua).
		WithResource("user", user.UID))
	slog.Info("auth_event", "event", string(action), "email", user.Email, "role", user.Role)
	return authsession.Result{Success: true}
}

// --- Sign Out ---

// SignOutInput carries input for the sign-out orchestrator.
type SignOutInput struct {
	IP        string
	UserAgent string
}

// ExecuteSignOut signs the session out and records who left.
// POST: the session is anonymous
func ExecuteSignOut(ctx context.Context, input SignOutInput, deps SessionDeps) authsession.Result {
	user := deps.Session.User()
	res := deps.Session.SignOut(ctx)
	if user != nil {
		recordAudit(ctx, deps.Audit, audit.NewEvent(user.UID, user.Email, user.Role, audit.CategorySession, audit.ActionSignOut, deps.Now()).
			WithRequest(input.IP, input.UserAgent))
		slog.Info("auth_event", "event", "sign_out", "email", user.Email)
	}
	return res
}
