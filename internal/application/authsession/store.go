// Package authsession holds the signed-in user for one browser session and
// keeps it in step with the identity provider.
package authsession

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"noticeboard/internal/adapters/identity"
	"noticeboard/internal/domain/account"
)

// RefreshWindow is how close to expiry a token may get before Token refreshes it.
const RefreshWindow = time.Minute

// ErrNotAuthenticated is returned by Token when no user is signed in.
var ErrNotAuthenticated = errors.New("not authenticated")

// State is the session's authentication status.
type State int

// Session states
const (
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Result is the outcome of a user-initiated auth operation.
type Result struct {
	Success bool
	Error   string
}

// Profile holds the optional registration fields.
type Profile struct {
	Name       string
	Role       string
	Department string
}

// IdentitySession is the identity provider connection for one browser.
type IdentitySession interface {
	OnAuthStateChanged(fn identity.Listener) func()
	SignInWithEmailAndPassword(ctx context.Context, email, password string) (identity.Principal, error)
	CreateUser(ctx context.Context, email, password string) (identity.Principal, error)
	SignOut(ctx context.Context) error
	RefreshToken(ctx context.Context) (identity.Principal, error)
}

// Backend is the part of the API client the store needs.
type Backend interface {
	CurrentUser(ctx context.Context, token string) (*account.User, error)
	RegisterUser(ctx context.Context, token string, reg account.Registration) (account.User, error)
}

// Store is the auth state for one browser session. The identity provider's
// notifications are its only writer of the authenticated state; SignOut and
// failed refreshes may clear it.
type Store struct {
	identity IdentitySession
	backend  Backend
	now      func() time.Time

	mu        sync.Mutex
	state     State
	user      *account.User
	expiresAt time.Time
	pending   int
	changed   chan struct{}

	unsubscribe func()
}

// New creates a Store in the unknown state and subscribes it to id.
// POST: the state leaves unknown once id delivers its first notification
func New(id IdentitySession, backend Backend) *Store {
	s := &Store{
		identity: id,
		backend:  backend,
		now:      time.Now,
		state:    StateUnknown,
		changed:  make(chan struct{}),
	}
	s.unsubscribe = id.OnAuthStateChanged(s.observe)
	return s
}

// Close stops listening for identity notifications.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// State returns the current authentication status.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns a copy of the signed-in user, or nil.
func (s *Store) User() *account.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// WaitReady blocks until the state is known and no sign-in is still being
// exchanged with the backend.
func (s *Store) WaitReady(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.state != StateUnknown && s.pending == 0 {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SignIn authenticates with the identity provider. On success the user
// becomes authenticated once the provider's notification has been exchanged
// with the backend; WaitReady observes that.
func (s *Store) SignIn(ctx context.Context, email, password string) Result {
	email = strings.TrimSpace(email)
	s.beginPending()
	if _, err := s.identity.SignInWithEmailAndPassword(ctx, email, password); err != nil {
		s.endPending()
		slog.Info("auth_event", "event", "sign_in_failed", "code", identity.CodeOf(err))
		return Result{Error: SignInMessage(err)}
	}
	return Result{Success: true}
}

// SignUp creates the identity account, registers the profile with the
// backend, then signs in. An identity account whose registration fails is
// left in place.
func (s *Store) SignUp(ctx context.Context, email, password string, profile Profile) Result {
	email = strings.TrimSpace(email)
	p, err := s.identity.CreateUser(ctx, email, password)
	if err != nil {
		slog.Info("auth_event", "event", "sign_up_failed", "stage", "identity", "code", identity.CodeOf(err))
		return Result{Error: SignUpMessage(err)}
	}

	reg, err := account.NewRegistration(email, p.UID, profile.Name, profile.Role, profile.Department)
	if err != nil {
		return Result{Error: SignUpMessage(err)}
	}
	if _, err := s.backend.RegisterUser(ctx, p.IDToken, reg); err != nil {
		slog.Warn("auth_event", "event", "sign_up_failed", "stage", "register", "uid", p.UID, "error", err)
		return Result{Error: SignUpMessage(err)}
	}

	s.beginPending()
	if _, err := s.identity.SignInWithEmailAndPassword(ctx, email, password); err != nil {
		s.endPending()
		return Result{Error: SignUpMessage(err)}
	}
	return Result{Success: true}
}

// SignOut signs out at the identity provider and clears local state.
func (s *Store) SignOut(ctx context.Context) Result {
	if err := s.identity.SignOut(ctx); err != nil {
		return Result{Error: "Failed to sign out. Please try again."}
	}
	s.setAnonymous()
	return Result{Success: true}
}

// Token returns the current credential, refreshing it when it is within
// RefreshWindow of expiry. A failed refresh signs the session out.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.state != StateAuthenticated || s.user == nil {
		s.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	token := s.user.Token
	exp := s.expiresAt
	s.mu.Unlock()

	if exp.IsZero() || s.now().Add(RefreshWindow).Before(exp) {
		return token, nil
	}

	fresh, err := s.identity.RefreshToken(ctx)
	if err != nil {
		slog.Warn("token_refresh_failed", "code", identity.CodeOf(err), "error", err)
		s.forceSignOut(ctx)
		return "", ErrNotAuthenticated
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return "", ErrNotAuthenticated
	}
	s.user.Token = fresh.IDToken
	s.expiresAt = fresh.ExpiresAt
	return fresh.IDToken, nil
}

// Invalidate signs the session out after the backend rejected its credential.
func (s *Store) Invalidate(ctx context.Context) {
	slog.Warn("session_invalidated", "reason", "credential_rejected")
	s.forceSignOut(ctx)
}

// observe applies one identity notification. It runs on the identity
// session's dispatcher, so notifications are applied in order.
func (s *Store) observe(ctx context.Context, p *identity.Principal) {
	if p == nil {
		s.setAnonymous()
		return
	}
	defer s.endPending()

	user, err := s.backend.CurrentUser(ctx, p.IDToken)
	if err != nil || user == nil {
		slog.Warn("session_rejected", "uid", p.UID, "error", err, "profile_found", user != nil)
		s.forceSignOut(ctx)
		return
	}
	if user.UID == "" {
		user.UID = p.UID
	}
	if user.Email == "" {
		user.Email = p.Email
	}
	user.Token = p.IDToken

	s.mu.Lock()
	s.state = StateAuthenticated
	s.user = user
	s.expiresAt = p.ExpiresAt
	s.broadcastLocked()
	s.mu.Unlock()
	slog.Info("auth_event", "event", "session_established", "uid", user.UID, "role", user.Role)
}

func (s *Store) forceSignOut(ctx context.Context) {
	if err := s.identity.SignOut(ctx); err != nil {
		slog.Warn("forced_sign_out_failed", "error", err)
	}
	s.setAnonymous()
}

func (s *Store) setAnonymous() {
	s.mu.Lock()
	s.state = StateAnonymous
	s.user = nil
	s.expiresAt = time.Time{}
	s.broadcastLocked()
	s.mu.Unlock()
}

func (s *Store) beginPending() {
	s.mu.Lock()
	s.pending++
	s.broadcastLocked()
	s.mu.Unlock()
}

func (s *Store) endPending() {
	s.mu.Lock()
	if s.pending > 0 {
		s.pending--
	}
	s.broadcastLocked()
	s.mu.Unlock()
}

// PRE: s.mu is held
func (s *Store) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
