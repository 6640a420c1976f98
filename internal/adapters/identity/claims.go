package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the fields this front end reads from an ID token.
type Claims struct {
	UID       string
	Email     string
	ExpiresAt time.Time
}

// ParseClaims reads claims from an ID token without verifying its signature.
// Verification happens at the backend.
func ParseClaims(idToken string) (Claims, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(idToken, jwt.MapClaims{})
	if err != nil {
		return Claims{}, fmt.Errorf("parse id token: %w", err)
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New("parse id token: unexpected claims type")
	}

	var c Claims
	if uid, ok := mc["user_id"].(string); ok && uid != "" {
		c.UID = uid
	} else if sub, err := mc.GetSubject(); err == nil {
		c.UID = sub
	}
	if email, ok := mc["email"].(string); ok {
		c.Email = email
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
