// Package session tracks who is signed in and holds the admin bearer
// credential used for catalog writes.
package session

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"go.uber.org/zap"
)

var (
	ErrValidation            = errors.New("session: invalid input")
	ErrInvalidEmail          = errors.New("session: invalid email")
	ErrWeakPassword          = errors.New("session: weak password")
	ErrInvalidCredentials    = errors.New("session: invalid credentials")
	ErrEmailExists           = errors.New("session: email already registered")
	ErrProviderNotConfigured = errors.New("session: no sign-in provider configured")
	ErrCredentialExpired     = errors.New("session: credential already expired")
)

// InputError is returned when input is rejected before any call is made.
// It matches ErrValidation and unwraps to the field errors.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return ErrValidation.Error() + ": " + e.Err.Error() }

func (e *InputError) Unwrap() error { return e.Err }

func (e *InputError) Is(target error) bool { return target == ErrValidation }

// Identity is a signed-in user as reported by the identity service.
type Identity struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	Token       string
}

// IdentityService is the external system of record for user sign-in.
// OnAuthStateChanged calls fn with the current user (nil when signed out)
// whenever it changes, and returns a func that stops the notifications.
type IdentityService interface {
	CreateUser(ctx context.Context, email, password string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignInWithProvider(ctx context.Context) (Identity, error)
	SignOut(ctx context.Context) error
	OnAuthStateChanged(fn func(*Identity)) (unsubscribe func())
}

type State int

const (
	Unknown State = iota
	Loading
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Session is a snapshot of the provider. User is nil unless State is
// Authenticated.
type Session struct {
	State   State
	User    *Identity
	Loading bool
}

type listener struct {
	id int
	fn func(Session)
}

// Provider is the session state machine:
// Unknown -> Loading (Start) -> Authenticated | Anonymous.
type Provider struct {
	svc IdentityService
	log *zap.Logger

	mu        sync.Mutex
	state     State
	user      *Identity
	listeners []listener
	nextID    int
	started   bool
	unsub     func()
}

func NewProvider(svc IdentityService, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	return &Provider{svc: svc, log: log}
}

// Start subscribes to the identity service and enters Loading until its
// first notification arrives. Calling Start again does nothing.
func (p *Provider) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	var ls []func(Session)
	var snap Session
	if p.state == Unknown {
		p.state = Loading
		snap = p.snapshotLocked()
		ls = p.listenersLocked()
	}
	p.mu.Unlock()

	broadcast(ls, snap)

	unsub := p.svc.OnAuthStateChanged(p.apply)
	p.mu.Lock()
	p.unsub = unsub
	p.mu.Unlock()
}

// Close stops listening to the identity service. The last known session
// stays readable.
func (p *Provider) Close() {
	p.mu.Lock()
	unsub := p.unsub
	p.unsub = nil
	p.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (p *Provider) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Subscribe registers fn for session changes. The returned func
// unregisters it.
func (p *Provider) Subscribe(fn func(Session)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners = append(p.listeners, listener{id: id, fn: fn})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

func (p *Provider) RegisterUser(ctx context.Context, email, password string) (Identity, error) {
	if err := validateCredentials(email, password); err != nil {
		return Identity{}, err
	}
	id, err := p.svc.CreateUser(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	p.apply(&id)
	return id, nil
}

func (p *Provider) Login(ctx context.Context, email, password string) (Identity, error) {
	if err := validateCredentials(email, password); err != nil {
		return Identity{}, err
	}
	id, err := p.svc.SignIn(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	p.apply(&id)
	return id, nil
}

func (p *Provider) LoginWithProvider(ctx context.Context) (Identity, error) {
	id, err := p.svc.SignInWithProvider(ctx)
	if err != nil {
		return Identity{}, err
	}
	p.apply(&id)
	return id, nil
}

// Logout signs out at the identity service and moves to Anonymous. On
// failure the session is left as it was.
func (p *Provider) Logout(ctx context.Context) error {
	if err := p.svc.SignOut(ctx); err != nil {
		return err
	}
	p.apply(nil)
	return nil
}

// apply moves the machine to Authenticated (u != nil) or Anonymous and
// notifies subscribers if anything changed.
func (p *Provider) apply(u *Identity) {
	p.mu.Lock()
	next := Anonymous
	var user *Identity
	if u != nil {
		next = Authenticated
		cp := *u
		user = &cp
	}
	if next == p.state && sameIdentity(p.user, user) {
		p.mu.Unlock()
		return
	}
	p.state = next
	p.user = user
	snap := p.snapshotLocked()
	ls := p.listenersLocked()
	p.mu.Unlock()

	if user != nil {
		p.log.Info("session authenticated", zap.String("uid", user.UID))
	} else {
		p.log.Info("session anonymous")
	}
	broadcast(ls, snap)
}

func (p *Provider) snapshotLocked() Session {
	s := Session{State: p.state, Loading: p.state == Loading}
	if p.user != nil {
		cp := *p.user
		s.User = &cp
	}
	return s
}

func (p *Provider) listenersLocked() []func(Session) {
	out := make([]func(Session), len(p.listeners))
	for i, l := range p.listeners {
		out[i] = l.fn
	}
	return out
}

func broadcast(ls []func(Session), s Session) {
	for _, fn := range ls {
		fn(s)
	}
}

func sameIdentity(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

type credentials struct {
	Email    string
	Password string
}

func validateCredentials(email, password string) error {
	c := credentials{Email: email, Password: password}
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, validation.Required),
	)
	if err != nil {
		return &InputError{Err: err}
	}
	return nil
}
