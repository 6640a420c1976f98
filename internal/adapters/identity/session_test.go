package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider is a hand-written Provider for session tests.
type fakeProvider struct {
	mu         sync.Mutex
	signInErr  error
	refreshErr error
	refreshed  int
}

func (f *fakeProvider) SignIn(_ context.Context, email, _ string) (Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return Principal{}, f.signInErr
	}
	return Principal{UID: "uid-" + email, Email: email, IDToken: "tok-1", RefreshToken: "rt-1"}, nil
}

func (f *fakeProvider) SignUp(_ context.Context, email, _ string) (Principal, error) {
	return Principal{UID: "new-" + email, Email: email, IDToken: "tok-new"}, nil
}

func (f *fakeProvider) Refresh(_ context.Context, rt string) (Principal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refreshErr != nil {
		return Principal{}, f.refreshErr
	}
	f.refreshed++
	return Principal{IDToken: "tok-2", RefreshToken: rt}, nil
}

// recorder collects deliveries in order.
type recorder struct {
	mu     sync.Mutex
	events []string
	ch     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 16)}
}

func (r *recorder) listen(_ context.Context, p *Principal) {
	r.mu.Lock()
	if p == nil {
		r.events = append(r.events, "out")
	} else {
		r.events = append(r.events, "in:"+p.Email)
	}
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []string {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %d", i+1)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// TestSession_InitialDelivery verifies a new listener receives the current state.
func TestSession_InitialDelivery(t *testing.T) {
	s := NewSession(&fakeProvider{})
	defer s.Close()

	rec := newRecorder()
	s.OnAuthStateChanged(rec.listen)
	assert.Equal(t, []string{"out"}, rec.wait(t, 1))
}

// TestSession_DeliversInOrder verifies sign-in and sign-out arrive in change order.
func TestSession_DeliversInOrder(t *testing.T) {
	s := NewSession(&fakeProvider{})
	defer s.Close()
	rec := newRecorder()
	s.OnAuthStateChanged(rec.listen)

	_, err := s.SignInWithEmailAndPassword(context.Background(), "a@uni.edu", "pw")
	require.NoError(t, err)
	require.NoError(t, s.SignOut(context.Background()))
	_, err = s.SignInWithEmailAndPassword(context.Background(), "b@uni.edu", "pw")
	require.NoError(t, err)

	assert.Equal(t, []string{"out", "in:a@uni.edu", "out", "in:b@uni.edu"}, rec.wait(t, 4))
	require.NotNil(t, s.Current())
	assert.Equal(t, "b@uni.edu", s.Current().Email)
}

// TestSession_FailedSignInDoesNotNotify verifies provider errors leave state unchanged.
func TestSession_FailedSignInDoesNotNotify(t *testing.T) {
	s := NewSession(&fakeProvider{signInErr: &Error{Code: CodeWrongPassword}})
	defer s.Close()
	rec := newRecorder()
	s.OnAuthStateChanged(rec.listen)
	rec.wait(t, 1)

	_, err := s.SignInWithEmailAndPassword(context.Background(), "a@uni.edu", "bad")
	assert.Equal(t, CodeWrongPassword, CodeOf(err))
	assert.Nil(t, s.Current())

	select {
	case <-rec.ch:
		t.Fatal("unexpected delivery after failed sign-in")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSession_CreateUserKeepsState verifies account creation does not sign in.
func TestSession_CreateUserKeepsState(t *testing.T) {
	s := NewSession(&fakeProvider{})
	defer s.Close()

	p, err := s.CreateUser(context.Background(), "c@uni.edu", "pw")
	require.NoError(t, err)
	assert.Equal(t, "new-c@uni.edu", p.UID)
	assert.Nil(t, s.Current())
}

// TestSession_RefreshToken verifies the token is replaced and the identity kept.
func TestSession_RefreshToken(t *testing.T) {
	fp := &fakeProvider{}
	s := NewSession(fp)
	defer s.Close()

	_, err := s.RefreshToken(context.Background())
	assert.ErrorIs(t, err, ErrNotSignedIn)

	_, err = s.SignInWithEmailAndPassword(context.Background(), "a@uni.edu", "pw")
	require.NoError(t, err)
	p, err := s.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", p.IDToken)
	assert.Equal(t, "uid-a@uni.edu", p.UID)
	assert.Equal(t, "tok-2", s.Current().IDToken)

	fp.mu.Lock()
	fp.refreshErr = errors.New("boom")
	fp.mu.Unlock()
	_, err = s.RefreshToken(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "tok-2", s.Current().IDToken, "failed refresh leaves the principal alone")
}

// TestSession_Unsubscribe verifies removed listeners receive nothing further.
func TestSession_Unsubscribe(t *testing.T) {
	s := NewSession(&fakeProvider{})
	defer s.Close()
	rec := newRecorder()
	unsubscribe := s.OnAuthStateChanged(rec.listen)
	rec.wait(t, 1)
	unsubscribe()

	_, err := s.SignInWithEmailAndPassword(context.Background(), "a@uni.edu", "pw")
	require.NoError(t, err)
	select {
	case <-rec.ch:
		t.Fatal("delivery after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestSession_CloseIsIdempotent verifies Close can be called twice.
func TestSession_CloseIsIdempotent(t *testing.T) {
	s := NewSession(&fakeProvider{})
	s.Close()
	s.Close()
	_, err := s.SignInWithEmailAndPassword(context.Background(), "a@uni.edu", "pw")
	assert.NoError(t, err, "sign-in still succeeds; only delivery stops")
}
