// Package identity is the HTTP adapter for the email/password identity
// service. It implements session.IdentityService.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"BookStore/internal/session"
	"BookStore/pkg/kit"
)

const (
	defaultTimeout = 5 * time.Second
	maxRespBytes   = 1 << 20
)

var (
	ErrUnavailable       = errors.New("identity: unavailable")
	ErrMalformedResponse = errors.New("identity: malformed response")
	ErrServer            = errors.New("identity: server error")
)

// Error is a non-2xx answer from the identity service. Known codes unwrap
// to the session sentinels.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("identity: status=%d code=%s: %s", e.Status, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.Code {
	case "invalid_email":
		return session.ErrInvalidEmail
	case "weak_password":
		return session.ErrWeakPassword
	case "email_exists":
		return session.ErrEmailExists
	case "invalid_credentials", "invalid_token", "missing_token":
		return session.ErrInvalidCredentials
	default:
		return ErrServer
	}
}

// ProviderAuthenticator performs a federated sign-in (for example an OAuth
// popup) and returns the resulting identity.
type ProviderAuthenticator interface {
	Authenticate(ctx context.Context) (session.Identity, error)
}

type listener struct {
	id int
	fn func(*session.Identity)
}

type Client struct {
	baseURL  string
	http     *http.Client
	provider ProviderAuthenticator
	log      *zap.Logger

	mu        sync.Mutex
	current   *session.Identity
	listeners []listener
	nextID    int
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithProvider(p ProviderAuthenticator) Option {
	return func(cl *Client) { cl.provider = p }
}

func WithLogger(log *zap.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ session.IdentityService = (*Client)(nil)

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url"`
}

type tokenResp struct {
	AccessToken string   `json:"access_token"`
	ExpiresIn   int64    `json:"expires_in"`
	User        userView `json:"user"`
}

func (c *Client) CreateUser(ctx context.Context, email, password string) (session.Identity, error) {
	return c.signIn(ctx, "/auth/register", email, password)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (session.Identity, error) {
	return c.signIn(ctx, "/auth/login", email, password)
}

func (c *Client) SignInWithProvider(ctx context.Context) (session.Identity, error) {
	if c.provider == nil {
		return session.Identity{}, session.ErrProviderNotConfigured
	}
	id, err := c.provider.Authenticate(ctx)
	if err != nil {
		return session.Identity{}, err
	}
	c.setCurrent(&id)
	return id, nil
}

// SignOut forgets the current user. Tokens are stateless, so nothing is
// sent to the service.
func (c *Client) SignOut(context.Context) error {
	c.setCurrent(nil)
	return nil
}

// Restore resumes a session from a previously issued access token.
func (c *Client) Restore(ctx context.Context, token string) (session.Identity, error) {
	var u userView
	if err := c.do(ctx, http.MethodGet, "/auth/whoami", token, nil, &u); err != nil {
		return session.Identity{}, err
	}
	if u.ID == "" {
		return session.Identity{}, errors.Wrap(ErrMalformedResponse, "whoami: missing user id")
	}
	id := identityOf(u, token)
	c.setCurrent(&id)
	return id, nil
}

// OnAuthStateChanged calls fn with the current user right away and again
// on every change.
func (c *Client) OnAuthStateChanged(fn func(*session.Identity)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	cur := copyIdentity(c.current)
	c.mu.Unlock()

	fn(cur)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

func (c *Client) signIn(ctx context.Context, path, email, password string) (session.Identity, error) {
	var resp tokenResp
	if err := c.do(ctx, http.MethodPost, path, "", credentialsReq{Email: email, Password: password}, &resp); err != nil {
		return session.Identity{}, err
	}
	if resp.AccessToken == "" || resp.User.ID == "" {
		return session.Identity{}, errors.Wrapf(ErrMalformedResponse, "%s: missing token or user", path)
	}
	id := identityOf(resp.User, resp.AccessToken)
	c.setCurrent(&id)
	return id, nil
}

func (c *Client) setCurrent(id *session.Identity) {
	c.mu.Lock()
	c.current = copyIdentity(id)
	fns := make([]func(*session.Identity), len(c.listeners))
	for i, l := range c.listeners {
		fns[i] = l.fn
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(copyIdentity(id))
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode body")
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("identity request failed", zap.String("path", path), zap.Error(err))
		return errors.Wrapf(ErrUnavailable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er kit.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxRespBytes)).Decode(&er)
		if er.Error == "" {
			er.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Code: er.Code, Message: er.Error}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRespBytes)).Decode(out); err != nil {
		return errors.Wrapf(ErrMalformedResponse, "%s %s: %v", method, path, err)
	}
	return nil
}

func identityOf(u userView, token string) session.Identity {
	return session.Identity{
		UID:         u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		Token:       token,
	}
}

func copyIdentity(id *session.Identity) *session.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	return &cp
}
