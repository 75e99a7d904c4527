package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CredentialStore holds the single bearer credential of the running client.
// A ttl of zero stores the token without expiry.
type CredentialStore interface {
	Get(ctx context.Context) (token string, ok bool, err error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Clear(ctx context.Context) error
}

type MemoryCredentials struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	now       func() time.Time
}

func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{now: time.Now}
}

func (m *MemoryCredentials) Get(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" {
		return "", false, nil
	}
	if !m.expiresAt.IsZero() && !m.now().Before(m.expiresAt) {
		m.token, m.expiresAt = "", time.Time{}
		return "", false, nil
	}
	return m.token, true, nil
}

func (m *MemoryCredentials) Set(_ context.Context, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
	m.expiresAt = time.Time{}
	if ttl > 0 {
		m.expiresAt = m.now().Add(ttl)
	}
	return nil
}

func (m *MemoryCredentials) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token, m.expiresAt = "", time.Time{}
	return nil
}

const DefaultCredentialKey = "bookstore:credential"

// RedisCredentials keeps the credential under one Redis key; the key TTL
// matches the credential's lifetime.
type RedisCredentials struct {
	client redis.Cmdable
	key    string
}

func NewRedisCredentials(client redis.Cmdable, key string) *RedisCredentials {
	if key == "" {
		key = DefaultCredentialKey
	}
	return &RedisCredentials{client: client, key: key}
}

func (r *RedisCredentials) Get(ctx context.Context) (string, bool, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redis get credential")
	}
	return val, true, nil
}

func (r *RedisCredentials) Set(ctx context.Context, token string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.key, token, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set credential")
	}
	return nil
}

func (r *RedisCredentials) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return errors.Wrap(err, "redis clear credential")
	}
	return nil
}

// CredentialTokenSource exposes a CredentialStore as a catalog client token
// source. Store errors are logged and treated as "no credential".
type CredentialTokenSource struct {
	Store CredentialStore
	Log   *zap.Logger
}

func (s CredentialTokenSource) Token(ctx context.Context) (string, bool) {
	tok, ok, err := s.Store.Get(ctx)
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("credential lookup failed", zap.Error(err))
		}
		return "", false
	}
	return tok, ok
}
