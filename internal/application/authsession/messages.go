package authsession

import (
	"errors"
	"strings"

	"noticeboard/internal/adapters/api"
	"noticeboard/internal/adapters/identity"
	"noticeboard/internal/domain/account"
)

// SignInMessage converts a sign-in failure into the message shown on the form.
func SignInMessage(err error) string {
	code := identity.CodeOf(err)
	switch code {
	case identity.CodeUserNotFound, identity.CodeWrongPassword, identity.CodeInvalidCredential:
		return "Invalid email or password."
	case identity.CodeTooManyRequests:
		return "Too many failed attempts. Please try again later."
	case "":
		return "Failed to sign in. Please check your credentials."
	}
	return "Authentication error: " + strings.TrimPrefix(code, "auth/")
}

// SignUpMessage converts a registration failure into the message shown on the form.
// Backend failures surface the backend's detail.
func SignUpMessage(err error) string {
	code := identity.CodeOf(err)
	switch code {
	case identity.CodeEmailInUse:
		return "This email is already registered. Please sign in instead."
	case identity.CodeWeakPassword:
		return "Please choose a stronger password."
	case "":
	default:
		return "Registration error: " + strings.TrimPrefix(code, "auth/")
	}

	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message()
	}
	for _, known := range []error{account.ErrEmptyEmail, account.ErrInvalidEmail, account.ErrInvalidRole, account.ErrEmptyUID} {
		if errors.Is(err, known) {
			return "Registration error: " + known.Error()
		}
	}
	return "Registration failed. Please try again."
}
