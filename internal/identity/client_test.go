package identity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"BookStore/internal/auth"
	"BookStore/internal/identity"
	"BookStore/internal/session"
)

func newAuthTS(t *testing.T) *httptest.Server {
	t.Helper()

	s := &auth.Server{
		Log:      zap.NewNop(),
		Store:    auth.NewMemStoreWithCost(bcrypt.MinCost),
		JWT:      auth.NewTokenMaker("identity-test-secret-identity-test", "bookstore-auth"),
		TokenTTL: time.Hour,
	}
	ts := httptest.NewServer(auth.NewHandler(s, auth.HTTPDeps{Log: zap.NewNop(), Service: "auth"}))
	t.Cleanup(ts.Close)
	return ts
}

type providerFunc func(ctx context.Context) (session.Identity, error)

func (f providerFunc) Authenticate(ctx context.Context) (session.Identity, error) { return f(ctx) }

func TestClient_RegisterSignInRestore(t *testing.T) {
	ts := newAuthTS(t)
	c := identity.New(ts.URL)
	ctx := t.Context()

	var seen []*session.Identity
	unsub := c.OnAuthStateChanged(func(u *session.Identity) { seen = append(seen, u) })
	defer unsub()

	created, err := c.CreateUser(ctx, "reader@example.com", "long-enough")
	require.NoError(t, err)
	assert.NotEmpty(t, created.UID)
	assert.NotEmpty(t, created.Token)
	assert.Equal(t, "reader@example.com", created.Email)

	signed, err := c.SignIn(ctx, "reader@example.com", "long-enough")
	require.NoError(t, err)
	assert.Equal(t, created.UID, signed.UID)

	restored, err := identity.New(ts.URL).Restore(ctx, signed.Token)
	require.NoError(t, err)
	assert.Equal(t, signed.UID, restored.UID)
	assert.Equal(t, signed.Token, restored.Token)

	require.NoError(t, c.SignOut(ctx))

	require.Len(t, seen, 4)
	assert.Nil(t, seen[0], "subscribe reports the current user")
	assert.Equal(t, created.UID, seen[1].UID)
	assert.Equal(t, signed.UID, seen[2].UID)
	assert.Nil(t, seen[3])
}

func TestClient_ErrorsMapToSessionSentinels(t *testing.T) {
	ts := newAuthTS(t)
	c := identity.New(ts.URL)
	ctx := t.Context()

	_, err := c.SignIn(ctx, "not-an-email", "long-enough")
	require.ErrorIs(t, err, session.ErrInvalidEmail)

	_, err = c.CreateUser(ctx, "a@example.com", "short")
	require.ErrorIs(t, err, session.ErrWeakPassword)
	var apiErr *identity.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)

	_, err = c.CreateUser(ctx, "a@example.com", "long-enough")
	require.NoError(t, err)
	_, err = c.CreateUser(ctx, "a@example.com", "long-enough")
	require.ErrorIs(t, err, session.ErrEmailExists)

	_, err = c.SignIn(ctx, "a@example.com", "wrong-password")
	require.ErrorIs(t, err, session.ErrInvalidCredentials)

	_, err = c.Restore(ctx, "garbage")
	require.ErrorIs(t, err, session.ErrInvalidCredentials)
}

func TestClient_Unavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := identity.New(url).SignIn(t.Context(), "a@b.co", "pw")
	require.ErrorIs(t, err, identity.ErrUnavailable)
}

func TestClient_MalformedResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":""}`))
	}))
	t.Cleanup(ts.Close)

	_, err := identity.New(ts.URL).SignIn(t.Context(), "a@b.co", "pw")
	require.ErrorIs(t, err, identity.ErrMalformedResponse)
}

func TestClient_SignInWithProvider(t *testing.T) {
	_, err := identity.New("http://unused").SignInWithProvider(t.Context())
	require.ErrorIs(t, err, session.ErrProviderNotConfigured)

	c := identity.New("http://unused", identity.WithProvider(providerFunc(func(context.Context) (session.Identity, error) {
		return session.Identity{UID: "g-1", Email: "g@example.com", Token: "gtok"}, nil
	})))

	var last *session.Identity
	c.OnAuthStateChanged(func(u *session.Identity) { last = u })

	id, err := c.SignInWithProvider(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "g-1", id.UID)
	require.NotNil(t, last)
	assert.Equal(t, "g-1", last.UID)
}

func TestClient_DrivesSessionProvider(t *testing.T) {
	ts := newAuthTS(t)
	p := session.NewProvider(identity.New(ts.URL), zap.NewNop())
	p.Start()
	t.Cleanup(p.Close)

	assert.Equal(t, session.Anonymous, p.Session().State)

	_, err := p.RegisterUser(t.Context(), "shopper@example.com", "long-enough")
	require.NoError(t, err)
	s := p.Session()
	require.Equal(t, session.Authenticated, s.State)
	assert.Equal(t, "shopper@example.com", s.User.Email)

	require.NoError(t, p.Logout(t.Context()))
	assert.Equal(t, session.Anonymous, p.Session().State)
}
