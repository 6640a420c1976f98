package api

import (
	"context"
	"net/http"

	"noticeboard/internal/domain/account"
)

const (
	currentUserPath = "/api/v1/users/me"
	registerPath    = "/api/v1/auth/register"
)

// CurrentUser fetches the profile bound to token.
// POST: Returns (nil, nil) when the backend has no profile for the identity (404)
func (c *Client) CurrentUser(ctx context.Context, token string) (*account.User, error) {
	var u account.User
	if err := c.do(ctx, "current_user", http.MethodGet, currentUserPath, nil, token, nil, &u); err != nil {
		if IsStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	u.Token = token
	return &u, nil
}

// RegisterUser creates the backend profile for a freshly created identity.
func (c *Client) RegisterUser(ctx context.Context, token string, reg account.Registration) (account.User, error) {
	var u account.User
	if err := c.do(ctx, "register_user", http.MethodPost, registerPath, nil, token, reg, &u); err != nil {
		return account.User{}, err
	}
	u.Token = token
	return u, nil
}
