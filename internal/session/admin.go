package session

import (
	"context"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultAdminTTL applies to admin tokens that carry no exp claim.
const DefaultAdminTTL = time.Hour

// AdminClient exchanges admin credentials for a bearer token.
type AdminClient interface {
	AdminLogin(ctx context.Context, username, password string) (token string, err error)
}

// AdminAuth signs the admin in, keeps the token in a CredentialStore and
// clears it when it expires.
type AdminAuth struct {
	client   AdminClient
	store    CredentialStore
	log      *zap.Logger
	onExpire func()
	fallback time.Duration

	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer

	// writeMu orders store writes with the generation check, so an old
	// timer cannot clear a newer login's token.
	writeMu sync.Mutex

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

type AdminOption func(*AdminAuth)

// WithOnExpire sets the callback run after an expired credential has been
// cleared.
func WithOnExpire(fn func()) AdminOption {
	return func(a *AdminAuth) { a.onExpire = fn }
}

func WithFallbackTTL(d time.Duration) AdminOption {
	return func(a *AdminAuth) { a.fallback = d }
}

func WithAdminLogger(log *zap.Logger) AdminOption {
	return func(a *AdminAuth) { a.log = log }
}

func NewAdminAuth(client AdminClient, store CredentialStore, opts ...AdminOption) *AdminAuth {
	a := &AdminAuth{
		client:    client,
		store:     store,
		log:       zap.NewNop(),
		fallback:  DefaultAdminTTL,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type adminCredentials struct {
	Username string
	Password string
}

// Login authenticates the admin, stores the token and arms the expiry
// timer. A previous login's timer is replaced.
func (a *AdminAuth) Login(ctx context.Context, username, password string) error {
	c := adminCredentials{Username: username, Password: password}
	if err := validation.ValidateStruct(&c,
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	); err != nil {
		return &InputError{Err: err}
	}

	tok, err := a.client.AdminLogin(ctx, username, password)
	if err != nil {
		return err
	}

	ttl := a.lifetime(tok)
	if ttl <= 0 {
		return ErrCredentialExpired
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	if err := a.store.Set(ctx, tok, ttl); err != nil {
		return err
	}

	a.mu.Lock()
	a.stopLocked()
	a.gen++
	gen := a.gen
	a.timer = a.afterFunc(ttl, func() { a.expire(gen) })
	a.mu.Unlock()

	a.log.Info("admin signed in", zap.Duration("expires_in", ttl))
	return nil
}

// Logout forgets the credential and cancels its expiry timer.
func (a *AdminAuth) Logout(ctx context.Context) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	a.stopLocked()
	a.gen++
	a.mu.Unlock()

	return a.store.Clear(ctx)
}

// Close cancels the expiry timer without touching the stored credential.
func (a *AdminAuth) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
	a.gen++
}

// Active reports whether an admin credential is currently stored.
func (a *AdminAuth) Active(ctx context.Context) bool {
	_, ok, err := a.store.Get(ctx)
	return err == nil && ok
}

func (a *AdminAuth) expire(gen uint64) {
	if !a.clearExpired(gen) {
		return
	}
	a.log.Info("admin credential expired")
	if a.onExpire != nil {
		a.onExpire()
	}
}

// clearExpired clears the store if gen is still the current login.
func (a *AdminAuth) clearExpired(gen uint64) bool {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return false
	}
	a.timer = nil
	a.mu.Unlock()

	if err := a.store.Clear(context.Background()); err != nil {
		a.log.Warn("clear expired credential", zap.Error(err))
	}
	return true
}

func (a *AdminAuth) stopLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
}

// lifetime reads the exp claim without verifying the signature. Opaque
// tokens and tokens without exp get the fallback lifetime.
func (a *AdminAuth) lifetime(tok string) time.Duration {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil || claims.ExpiresAt == nil {
		return a.fallback
	}
	return claims.ExpiresAt.Sub(a.now())
}
