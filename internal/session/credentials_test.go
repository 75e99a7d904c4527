package session

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCredentials(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryCredentials()
	m.now = func() time.Time { return now }
	ctx := t.Context()

	_, ok, err := m.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "tok", time.Minute))
	tok, ok, err := m.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)

	now = now.Add(time.Minute)
	_, ok, _ = m.Get(ctx)
	assert.False(t, ok, "expired at ttl")

	require.NoError(t, m.Set(ctx, "forever", 0))
	now = now.Add(24 * time.Hour)
	tok, ok, _ = m.Get(ctx)
	assert.True(t, ok)
	assert.Equal(t, "forever", tok)

	require.NoError(t, m.Clear(ctx))
	_, ok, _ = m.Get(ctx)
	assert.False(t, ok)
}

func TestRedisCredentials(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := NewRedisCredentials(client, "")
	ctx := t.Context()

	_, ok, err := r.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "tok", time.Hour))
	tok, ok, err := r.Get(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)
	assert.Equal(t, time.Hour, mr.TTL(DefaultCredentialKey))

	mr.FastForward(time.Hour)
	_, ok, err = r.Get(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "tok2", 0))
	require.NoError(t, r.Clear(ctx))
	assert.False(t, mr.Exists(DefaultCredentialKey))
	require.NoError(t, r.Clear(ctx), "clearing twice is fine")
}

func TestRedisCredentials_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	r := NewRedisCredentials(client, "k")
	_, _, err := r.Get(t.Context())
	require.Error(t, err)

	src := CredentialTokenSource{Store: r}
	_, ok := src.Token(t.Context())
	assert.False(t, ok)
}

func TestCredentialTokenSource(t *testing.T) {
	m := NewMemoryCredentials()
	src := CredentialTokenSource{Store: m}

	_, ok := src.Token(t.Context())
	assert.False(t, ok)

	require.NoError(t, m.Set(t.Context(), "tok", 0))
	tok, ok := src.Token(t.Context())
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)
}
