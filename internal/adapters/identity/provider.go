// Package identity talks to the hosted identity provider that owns user
// credentials, and keeps one signed-in principal per browser session.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Error codes surfaced to callers. They follow the provider's client SDK naming.
const (
	CodeUserNotFound      = "auth/user-not-found"
	CodeWrongPassword     = "auth/wrong-password"
	CodeInvalidCredential = "auth/invalid-credential"
	CodeTooManyRequests   = "auth/too-many-requests"
	CodeEmailInUse        = "auth/email-already-in-use"
	CodeWeakPassword      = "auth/weak-password"
	CodeInvalidEmail      = "auth/invalid-email"
	CodeUserDisabled      = "auth/user-disabled"
	CodeTokenExpired      = "auth/user-token-expired"
	CodeNetwork           = "auth/network-request-failed"
	CodeNoSession         = "auth/no-current-user"
)

// ErrNotSignedIn is returned by Session operations that need a principal.
var ErrNotSignedIn = &Error{Code: CodeNoSession, Message: "no user is signed in"}

// Principal is an identity the provider has authenticated.
type Principal struct {
	UID          string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// ExpiresWithin reports whether the ID token expires within d of now.
// A zero ExpiresAt is treated as never expiring.
func (p Principal) ExpiresWithin(d time.Duration, now time.Time) bool {
	if p.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(p.ExpiresAt)
}

// Provider is the identity provider's credential API.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Principal, error)
	SignUp(ctx context.Context, email, password string) (Principal, error)
	Refresh(ctx context.Context, refreshToken string) (Principal, error)
}

// Error is a provider failure carrying a code like "auth/wrong-password".
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Unwrap exposes the underlying transport error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf extracts the provider code from err, or "" when err carries none.
func CodeOf(err error) string {
	var idErr *Error
	if errors.As(err, &idErr) {
		return idErr.Code
	}
	return ""
}

// providerCodes maps REST error messages to SDK-style codes.
var providerCodes = map[string]string{
	"EMAIL_NOT_FOUND":             CodeUserNotFound,
	"INVALID_PASSWORD":            CodeWrongPassword,
	"INVALID_LOGIN_CREDENTIALS":   CodeInvalidCredential,
	"TOO_MANY_ATTEMPTS_TRY_LATER": CodeTooManyRequests,
	"EMAIL_EXISTS":                CodeEmailInUse,
	"WEAK_PASSWORD":               CodeWeakPassword,
	"INVALID_EMAIL":               CodeInvalidEmail,
	"MISSING_EMAIL":               CodeInvalidEmail,
	"USER_DISABLED":               CodeUserDisabled,
	"TOKEN_EXPIRED":               CodeTokenExpired,
	"INVALID_REFRESH_TOKEN":       CodeTokenExpired,
	"USER_NOT_FOUND":              CodeUserNotFound,
}

// codeFromMessage converts "WEAK_PASSWORD : Password should be at least 6
// characters" into "auth/weak-password". Unknown messages are kebab-cased.
func codeFromMessage(msg string) (code, detail string) {
	key, detail, _ := strings.Cut(msg, ":")
	key = strings.TrimSpace(key)
	detail = strings.TrimSpace(detail)
	if c, ok := providerCodes[key]; ok {
		return c, detail
	}
	if key == "" {
		return "auth/internal-error", detail
	}
	return "auth/" + strings.ToLower(strings.ReplaceAll(key, "_", "-")), detail
}
