package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdminClient struct {
	token string
	err   error
	calls int
}

func (f *fakeAdminClient) AdminLogin(context.Context, string, string) (string, error) {
	f.calls++
	return f.token, f.err
}

// manualTimers captures AfterFunc calls so tests can fire them by hand.
type manualTimers struct {
	mu    sync.Mutex
	delay []time.Duration
	fns   []func()
}

func (m *manualTimers) afterFunc(d time.Duration, f func()) *time.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = append(m.delay, d)
	m.fns = append(m.fns, f)
	return time.NewTimer(time.Hour)
}

func (m *manualTimers) fire(i int) {
	m.mu.Lock()
	f := m.fns[i]
	m.mu.Unlock()
	f()
}

func signedToken(t *testing.T, exp *time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "a1"}
	if exp != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*exp)
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return tok
}

func newTestAdmin(client AdminClient, store CredentialStore, now time.Time, opts ...AdminOption) (*AdminAuth, *manualTimers) {
	timers := &manualTimers{}
	a := NewAdminAuth(client, store, opts...)
	a.now = func() time.Time { return now }
	a.afterFunc = timers.afterFunc
	return a, timers
}

func TestAdminAuth_ExpiryFromClaim(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(15 * time.Minute)
	store := NewMemoryCredentials()
	expired := 0

	a, timers := newTestAdmin(&fakeAdminClient{token: signedToken(t, &exp)}, store, now,
		WithOnExpire(func() { expired++ }))

	require.NoError(t, a.Login(t.Context(), "admin", "pw"))
	require.Equal(t, []time.Duration{15 * time.Minute}, timers.delay)
	assert.True(t, a.Active(t.Context()))

	timers.fire(0)
	assert.False(t, a.Active(t.Context()))
	assert.Equal(t, 1, expired)
}

func TestAdminAuth_FallbackTTL(t *testing.T) {
	now := time.Now()
	cases := map[string]string{
		"jwt without exp": signedToken(t, nil),
		"opaque token":    "opaque-token",
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			a, timers := newTestAdmin(&fakeAdminClient{token: tok}, NewMemoryCredentials(), now)
			require.NoError(t, a.Login(t.Context(), "admin", "pw"))
			assert.Equal(t, []time.Duration{DefaultAdminTTL}, timers.delay)
		})
	}
}

func TestAdminAuth_AlreadyExpiredToken(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	store := NewMemoryCredentials()
	a, timers := newTestAdmin(&fakeAdminClient{token: signedToken(t, &past)}, store, now)

	require.ErrorIs(t, a.Login(t.Context(), "admin", "pw"), ErrCredentialExpired)
	assert.Empty(t, timers.delay)
	assert.False(t, a.Active(t.Context()))
}

func TestAdminAuth_Validation(t *testing.T) {
	client := &fakeAdminClient{token: "tok"}
	a, _ := newTestAdmin(client, NewMemoryCredentials(), time.Now())

	require.ErrorIs(t, a.Login(t.Context(), "", "pw"), ErrValidation)
	require.ErrorIs(t, a.Login(t.Context(), "admin", ""), ErrValidation)
	assert.Zero(t, client.calls)
}

func TestAdminAuth_LogoutCancelsExpiry(t *testing.T) {
	store := NewMemoryCredentials()
	expired := 0
	a, timers := newTestAdmin(&fakeAdminClient{token: "tok"}, store, time.Now(),
		WithOnExpire(func() { expired++ }))

	require.NoError(t, a.Login(t.Context(), "admin", "pw"))
	require.NoError(t, a.Logout(t.Context()))
	assert.False(t, a.Active(t.Context()))

	timers.fire(0)
	assert.Zero(t, expired, "stale timer is ignored")
}

func TestAdminAuth_ReloginReplacesTimer(t *testing.T) {
	store := NewMemoryCredentials()
	expired := 0
	a, timers := newTestAdmin(&fakeAdminClient{token: "tok"}, store, time.Now(),
		WithOnExpire(func() { expired++ }))

	require.NoError(t, a.Login(t.Context(), "admin", "pw"))
	require.NoError(t, a.Login(t.Context(), "admin", "pw"))

	timers.fire(0)
	assert.True(t, a.Active(t.Context()))
	assert.Zero(t, expired)

	timers.fire(1)
	assert.False(t, a.Active(t.Context()))
	assert.Equal(t, 1, expired)
}

func TestAdminAuth_RealTimer(t *testing.T) {
	done := make(chan struct{})
	a := NewAdminAuth(&fakeAdminClient{token: "tok"}, NewMemoryCredentials(),
		WithFallbackTTL(10*time.Millisecond),
		WithOnExpire(func() { close(done) }))

	require.NoError(t, a.Login(t.Context(), "admin", "pw"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("credential did not expire")
	}
	assert.False(t, a.Active(t.Context()))
}

// slowClearStore blocks Clear until release is closed.
type slowClearStore struct {
	*MemoryCredentials
	entered chan struct{}
	release chan struct{}
}

func (s *slowClearStore) Clear(ctx context.Context) error {
	s.entered <- struct{}{}
	<-s.release
	return s.MemoryCredentials.Clear(ctx)
}

func TestAdminAuth_ExpiryDoesNotClearNewerLogin(t *testing.T) {
	store := &slowClearStore{
		MemoryCredentials: NewMemoryCredentials(),
		entered:           make(chan struct{}, 1),
		release:           make(chan struct{}),
	}
	client := &fakeAdminClient{token: "opaque-1"}
	var expired atomic.Int32
	a, timers := newTestAdmin(client, store, time.Now(),
		WithOnExpire(func() { expired.Add(1) }))
	require.NoError(t, a.Login(t.Context(), "admin", "pw"))

	fired := make(chan struct{})
	go func() {
		defer close(fired)
		timers.fire(0)
	}()
	<-store.entered

	client.token = "opaque-2"
	relogin := make(chan error, 1)
	go func() { relogin <- a.Login(context.Background(), "admin", "pw") }()

	select {
	case err := <-relogin:
		t.Fatalf("login finished while the expired token was being cleared: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(store.release)
	<-fired
	require.NoError(t, <-relogin)

	tok, ok, err := store.Get(t.Context())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "opaque-2", tok)
	assert.EqualValues(t, 1, expired.Load(), "only the first token expired")
}
