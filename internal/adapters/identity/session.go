package identity

import (
	"context"
	"sync"
)

// Listener receives auth state changes. A nil principal means signed out.
type Listener func(ctx context.Context, p *Principal)

// Session is one browser's connection to the identity provider. It holds the
// signed-in principal and delivers state changes to listeners one at a time,
// in the order the changes happened, on a single dispatcher goroutine.
type Session struct {
	provider Provider

	mu        sync.Mutex
	current   *Principal
	listeners map[int]Listener
	nextID    int
	queue     []func()
	closed    bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession starts a signed-out session backed by provider.
// POST: the dispatcher goroutine runs until Close
func NewSession(provider Provider) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		provider:  provider,
		listeners: make(map[int]Listener),
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

// OnAuthStateChanged registers fn and schedules one delivery of the current
// state to it. The returned func unsubscribes.
func (s *Session) OnAuthStateChanged(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	p := clonePrincipal(s.current)
	s.enqueueLocked(func() { fn(s.ctx, p) })
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SignInWithEmailAndPassword authenticates and, on success, notifies listeners
// asynchronously.
func (s *Session) SignInWithEmailAndPassword(ctx context.Context, email, password string) (Principal, error) {
	p, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return Principal{}, err
	}
	s.mu.Lock()
	s.setLocked(&p)
	s.mu.Unlock()
	return p, nil
}

// CreateUser creates an account at the provider without changing this
// session's state.
func (s *Session) CreateUser(ctx context.Context, email, password string) (Principal, error) {
	return s.provider.SignUp(ctx, email, password)
}

// SignOut clears the principal and notifies listeners. Signing out of a
// signed-out session still notifies.
func (s *Session) SignOut(context.Context) error {
	s.mu.Lock()
	s.setLocked(nil)
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the signed-in principal, or nil.
func (s *Session) Current() *Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clonePrincipal(s.current)
}

// RefreshToken exchanges the refresh token for a fresh ID token. It does not
// notify listeners: the identity is unchanged.
func (s *Session) RefreshToken(ctx context.Context) (Principal, error) {
	s.mu.Lock()
	cur := clonePrincipal(s.current)
	s.mu.Unlock()
	if cur == nil {
		return Principal{}, ErrNotSignedIn
	}

	fresh, err := s.provider.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		return Principal{}, err
	}
	if fresh.UID == "" {
		fresh.UID = cur.UID
	}
	if fresh.Email == "" {
		fresh.Email = cur.Email
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A sign-out or a different sign-in raced the refresh; keep that state.
	if s.current == nil || s.current.UID != cur.UID {
		return Principal{}, ErrNotSignedIn
	}
	s.current = &fresh
	return fresh, nil
}

// Close stops the dispatcher. Pending notifications are dropped.
// It must not be called from inside a Listener.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	s.cancel()
	<-s.done
}

// setLocked replaces the principal and queues a notification for every
// listener. Queueing under the lock keeps deliveries in change order.
// PRE: s.mu is held
func (s *Session) setLocked(p *Principal) {
	s.current = clonePrincipal(p)
	for _, fn := range s.listeners {
		fn := fn
		snapshot := clonePrincipal(p)
		s.enqueueLocked(func() { fn(s.ctx, snapshot) })
	}
}

// PRE: s.mu is held
func (s *Session) enqueueLocked(fn func()) {
	if s.closed {
		return
	}
	s.queue = append(s.queue, fn)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 || s.closed {
				s.mu.Unlock()
				break
			}
			fn := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			fn()
		}
	}
}

func clonePrincipal(p *Principal) *Principal {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
