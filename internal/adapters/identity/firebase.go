package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"noticeboard/internal/adapters/http/perf"
)

// Default provider endpoints.
const (
	DefaultBaseURL  = "https://identitytoolkit.googleapis.com/v1"
	DefaultTokenURL = "https://securetoken.googleapis.com/v1/token"
)

// FirebaseOptions configures a FirebaseProvider.
type FirebaseOptions struct {
	APIKey        string
	BaseURL       string
	TokenURL      string
	HTTPClient    *http.Client
	Collector     *perf.Collector
	Metrics       *perf.Metrics
	SlowThreshold time.Duration
}

// FirebaseProvider implements Provider over the Identity Toolkit REST API.
type FirebaseProvider struct {
	apiKey   string
	baseURL  string
	tokenURL string
	http     *http.Client
	now      func() time.Time
}

// NewFirebaseProvider creates a provider. Calls made through it are timed.
// PRE: opts.APIKey is non-empty
func NewFirebaseProvider(opts FirebaseOptions) (*FirebaseProvider, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("identity provider API key is required")
	}
	base := opts.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	transport := hc.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	slow := opts.SlowThreshold
	if slow <= 0 {
		slow = 500 * time.Millisecond
	}
	timed := *hc
	timed.Transport = &timedTransport{base: transport, collector: opts.Collector, metrics: opts.Metrics, slow: slow}

	return &FirebaseProvider{
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimRight(base, "/"),
		tokenURL: tokenURL,
		http:     &timed,
		now:      time.Now,
	}, nil
}

type passwordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type passwordResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// SignIn verifies an email and password.
func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (Principal, error) {
	return p.passwordCall(ctx, "accounts:signInWithPassword", email, password)
}

// SignUp creates an account and returns it already signed in.
func (p *FirebaseProvider) SignUp(ctx context.Context, email, password string) (Principal, error) {
	return p.passwordCall(ctx, "accounts:signUp", email, password)
}

func (p *FirebaseProvider) passwordCall(ctx context.Context, method, email, password string) (Principal, error) {
	body, err := json.Marshal(passwordRequest{Email: email, Password: password, ReturnSecureToken: true})
	if err != nil {
		return Principal{}, fmt.Errorf("encode %s: %w", method, err)
	}
	target := p.baseURL + "/" + method + "?key=" + url.QueryEscape(p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Principal{}, fmt.Errorf("build %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return Principal{}, &Error{Code: CodeNetwork, Message: "identity provider unreachable", Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Principal{}, &Error{Code: CodeNetwork, Message: "reading identity response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Principal{}, decodeProviderError(resp.StatusCode, data)
	}

	var out passwordResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Principal{}, fmt.Errorf("decode %s: %w", method, err)
	}
	return p.principal(out.LocalID, out.Email, out.IDToken, out.RefreshToken, out.ExpiresIn), nil
}

// Refresh exchanges a refresh token for a new ID token.
func (p *FirebaseProvider) Refresh(ctx context.Context, refreshToken string) (Principal, error) {
	if refreshToken == "" {
		return Principal{}, ErrNotSignedIn
	}
	cfg := oauth2.Config{
		Endpoint: oauth2.Endpoint{
			TokenURL:  p.tokenURL + "?key=" + url.QueryEscape(p.apiKey),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.http)
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return Principal{}, decodeProviderError(re.Response.StatusCode, re.Body)
		}
		return Principal{}, &Error{Code: CodeNetwork, Message: "token refresh failed", Err: err}
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		idToken = tok.AccessToken
	}
	uid, _ := tok.Extra("user_id").(string)
	rt := tok.RefreshToken
	if rt == "" {
		rt = refreshToken
	}
	pr := p.principal(uid, "", idToken, rt, "")
	if pr.ExpiresAt.IsZero() && !tok.Expiry.IsZero() {
		pr.ExpiresAt = tok.Expiry
	}
	return pr, nil
}

// principal assembles a Principal, preferring the ID token's own claims.
func (p *FirebaseProvider) principal(uid, email, idToken, refreshToken, expiresIn string) Principal {
	pr := Principal{UID: uid, Email: email, IDToken: idToken, RefreshToken: refreshToken}
	if c, err := ParseClaims(idToken); err == nil {
		if pr.UID == "" {
			pr.UID = c.UID
		}
		if pr.Email == "" {
			pr.Email = c.Email
		}
		pr.ExpiresAt = c.ExpiresAt
	}
	if pr.ExpiresAt.IsZero() {
		if secs, err := strconv.Atoi(expiresIn); err == nil && secs > 0 {
			pr.ExpiresAt = p.now().Add(time.Duration(secs) * time.Second)
		}
	}
	return pr
}

// decodeProviderError reads {"error": {"message": "EMAIL_EXISTS"}}.
func decodeProviderError(status int, body []byte) *Error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		return &Error{Code: "auth/internal-error", Message: fmt.Sprintf("identity provider returned status %d", status)}
	}
	code, detail := codeFromMessage(envelope.Error.Message)
	return &Error{Code: code, Message: detail}
}
