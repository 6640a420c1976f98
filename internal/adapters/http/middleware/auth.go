package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"noticeboard/internal/adapters/identity"
	"noticeboard/internal/application/authsession"
	"noticeboard/internal/application/noticequery"
	"noticeboard/internal/domain/account"
	"noticeboard/internal/domain/notice"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const sessionContextKey contextKey = "session"

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "noticeboard_session"

// DefaultReadyTimeout bounds how long a gated request waits for a session in
// the loading state before it is treated as signed out.
const DefaultReadyTimeout = 10 * time.Second

// MaxHooksPerSession bounds the notice lists one session keeps. Scope names
// come from the URL, so the least recently used list is dropped past it.
const MaxHooksPerSession = 16

// Backend is the API surface a browser session needs for auth and notice lists.
type Backend interface {
	authsession.Backend
	noticequery.Backend
}

// Session is the server-side state of one browser: its auth store and one
// notice list per scope it has visited.
type Session struct {
	Auth *authsession.Store

	id      string
	idp     *identity.Session
	backend noticequery.Backend
	perPage int

	mu        sync.Mutex
	hooks     map[notice.Scope]*noticequery.Hook
	hookOrder []notice.Scope // least recently used first
	lastSeen  time.Time
}

// Hook returns the notice list for scope, creating it on first use.
// INVARIANT: at most one hook per scope and MaxHooksPerSession hooks per session
func (s *Session) Hook(scope notice.Scope) *noticequery.Hook {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hooks[scope]; ok {
		s.touchHookLocked(scope)
		return h
	}
	if len(s.hookOrder) >= MaxHooksPerSession {
		oldest := s.hookOrder[0]
		s.hookOrder = s.hookOrder[1:]
		delete(s.hooks, oldest)
	}
	h := noticequery.New(s.backend, s.Auth, scope, s.perPage)
	s.hooks[scope] = h
	s.hookOrder = append(s.hookOrder, scope)
	return h
}

func (s *Session) touchHookLocked(scope notice.Scope) {
	for i, sc := range s.hookOrder {
		if sc == scope {
			s.hookOrder = append(s.hookOrder[:i], s.hookOrder[i+1:]...)
			break
		}
	}
	s.hookOrder = append(s.hookOrder, scope)
}

// ID returns the session token stored in the cookie.
func (s *Session) ID() string {
	return s.id
}

// User returns the signed-in user, or nil.
func (s *Session) User() *account.User {
	if s == nil || s.Auth == nil {
		return nil
	}
	return s.Auth.User()
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(before time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen.Before(before)
}

func (s *Session) close() {
	if s.Auth != nil {
		s.Auth.Close()
	}
	if s.idp != nil {
		s.idp.Close()
	}
}

// SessionStore keeps browser sessions in memory, keyed by cookie token.
type SessionStore struct {
	provider identity.Provider
	backend  Backend
	perPage  int
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store whose sessions sign in through
// provider and load accounts and notices from backend.
func NewSessionStore(provider identity.Provider, backend Backend, perPage int) *SessionStore {
	return &SessionStore{
		provider: provider,
		backend:  backend,
		perPage:  perPage,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new signed-out session and returns its token.
// POST: the session is stored and its auth store subscribed to a fresh identity session
func (ss *SessionStore) Create() (*Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	idp := identity.NewSession(ss.provider)
	sess := &Session{
		Auth:     authsession.New(idp, ss.backend),
		id:       token,
		idp:      idp,
		backend:  ss.backend,
		perPage:  ss.perPage,
		hooks:    make(map[notice.Scope]*noticequery.Hook),
		lastSeen: ss.now(),
	}
	ss.mu.Lock()
	ss.sessions[token] = sess
	ss.mu.Unlock()
	return sess, nil
}

// Get retrieves a session by token.
func (ss *SessionStore) Get(token string) (*Session, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	sess, ok := ss.sessions[token]
	return sess, ok
}

// Delete removes and closes the session with the given token.
func (ss *SessionStore) Delete(token string) {
	ss.mu.Lock()
	sess, ok := ss.sessions[token]
	delete(ss.sessions, token)
	ss.mu.Unlock()
	if ok {
		sess.close()
	}
}

// Len reports how many sessions are held.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// SweepIdle closes sessions not seen since before.
// POST: returns how many sessions were removed
func (ss *SessionStore) SweepIdle(ctx context.Context, before time.Time) int {
	ss.mu.Lock()
	var stale []*Session
	for token, sess := range ss.sessions {
		if ctx.Err() != nil {
			break
		}
		if sess.idleSince(before) {
			stale = append(stale, sess)
			delete(ss.sessions, token)
		}
	}
	ss.mu.Unlock()

	for _, sess := range stale {
		sess.close()
	}
	return len(stale)
}

// CloseAll removes and closes every session whatever its age and returns
// how many were closed. It takes no deadline so shutdown always finishes it.
func (ss *SessionStore) CloseAll() int {
	ss.mu.Lock()
	all := make([]*Session, 0, len(ss.sessions))
	for token, sess := range ss.sessions {
		all = append(all, sess)
		delete(ss.sessions, token)
	}
	ss.mu.Unlock()

	for _, sess := range all {
		sess.close()
	}
	return len(all)
}

// Ensure returns the request's session, creating one and setting its cookie
// when the browser has none.
func (ss *SessionStore) Ensure(w http.ResponseWriter, r *http.Request) (*Session, error) {
	if sess, ok := GetSessionFromContext(r.Context()); ok {
		return sess, nil
	}
	sess, err := ss.Create()
	if err != nil {
		return nil, err
	}
	SetSessionCookie(w, sess.id, isSecure(r))
	return sess, nil
}

// Destroy removes the request's session and clears its cookie.
func (ss *SessionStore) Destroy(w http.ResponseWriter, r *http.Request) {
	if sess, ok := GetSessionFromContext(r.Context()); ok {
		ss.Delete(sess.id)
	}
	ClearSessionCookie(w, isSecure(r))
}

// Auth returns middleware that extracts the session from the cookie and sets it in context.
// It does NOT block unauthenticated requests; use RequireAuth or RequireRole for that.
func (ss *SessionStore) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err == nil && cookie.Value != "" {
			if sess, ok := ss.Get(cookie.Value); ok {
				sess.touch(ss.now())
				r = r.WithContext(ContextWithSession(r.Context(), sess))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth returns middleware that blocks requests without a signed-in
// user. A session still loading is waited on for up to timeout.
func RequireAuth(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := authenticated(r, timeout); !ok {
				deny(w, r, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole returns middleware that blocks requests from users without one of the specified roles.
func RequireRole(timeout time.Duration, roles ...string) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := authenticated(r, timeout)
			if !ok {
				deny(w, r, http.StatusUnauthorized)
				return
			}
			if !roleSet[user.Role] {
				slog.Warn("auth_denied", "uid", user.UID, "role", user.Role, "path", r.URL.Path)
				deny(w, r, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// authenticated waits for the request's session to settle and returns its user.
func authenticated(r *http.Request, timeout time.Duration) (*account.User, bool) {
	sess, ok := GetSessionFromContext(r.Context())
	if !ok {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()
	if err := sess.Auth.WaitReady(ctx); err != nil {
		slog.Warn("session_not_ready", "path", r.URL.Path, "error", err)
		return nil, false
	}
	if sess.Auth.State() != authsession.StateAuthenticated {
		return nil, false
	}
	user := sess.User()
	return user, user != nil
}

// deny answers API callers with a status and browsers with a redirect to /login
// (or a plain 403 when signed in without the needed role).
func deny(w http.ResponseWriter, r *http.Request, status int) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if status == http.StatusForbidden {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// GetSessionFromContext extracts the session from the request context.
func GetSessionFromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionContextKey).(*Session)
	return sess, ok && sess != nil
}

// ContextWithSession returns a context with the given session set.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// CurrentUser returns the signed-in user for ctx, or nil.
func CurrentUser(ctx context.Context) *account.User {
	sess, ok := GetSessionFromContext(ctx)
	if !ok {
		return nil
	}
	return sess.User()
}

// IsRole checks if the signed-in user has one of the given roles.
func IsRole(ctx context.Context, roles ...string) bool {
	user := CurrentUser(ctx)
	if user == nil {
		return false
	}
	for _, r := range roles {
		if user.Role == r {
			return true
		}
	}
	return false
}

// IsAdmin checks if the signed-in user is an admin.
func IsAdmin(ctx context.Context) bool {
	return IsRole(ctx, account.RoleAdmin)
}

// SetSessionCookie sets the session cookie on the response.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   86400,
	})
}

// ClearSessionCookie removes the session cookie.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
		MaxAge:   -1,
	})
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
