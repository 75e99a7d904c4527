// Package catalogclient talks to the remote book catalog over HTTP.
package catalogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"BookStore/internal/book"
)

const (
	defaultTimeout = 5 * time.Second
	maxRespBytes   = 4 << 20

	booksPath      = "/api/books"
	adminLoginPath = "/api/auth/admin"
)

var (
	ErrNotFound          = errors.New("catalog: book not found")
	ErrUnauthorized      = errors.New("catalog: unauthorized")
	ErrBadStatus         = errors.New("catalog: bad status")
	ErrUnavailable       = errors.New("catalog: unavailable")
	ErrMalformedResponse = errors.New("catalog: malformed response")
)

// MalformedError is a 2xx answer that could not be decoded or failed book
// validation. It matches ErrMalformedResponse and unwraps to the cause, so
// book.ErrInvalid and its field errors stay reachable.
type MalformedError struct {
	Op  string
	Err error
}

func (e *MalformedError) Error() string {
	return ErrMalformedResponse.Error() + ": " + e.Op + ": " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformedResponse }

// APIError is a non-2xx answer from the catalog service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("catalog: status=%d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	default:
		return ErrBadStatus
	}
}

// TokenSource yields the bearer credential attached to outgoing requests.
// ok is false when no credential is stored.
type TokenSource interface {
	Token(ctx context.Context) (token string, ok bool)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithTokenSource(ts TokenSource) Option {
	return func(cl *Client) { cl.tokens = ts }
}

func WithLogger(log *zap.Logger) Option {
	return func(cl *Client) { cl.log = log }
}

func New(baseURL string, opts ...Option) *Client {
	if u, err := url.Parse(baseURL); err == nil && u.Scheme != "" && u.Host != "" {
		baseURL = strings.TrimRight(baseURL, "/")
	}
	c := &Client{
		baseURL: baseURL,
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

type mutationResp struct {
	Message string    `json:"message"`
	Book    book.Book `json:"book"`
}

func (c *Client) ListBooks(ctx context.Context) ([]book.Book, error) {
	var out []book.Book
	if err := c.do(ctx, http.MethodGet, booksPath, nil, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if err := out[i].Validate(); err != nil {
			return nil, &MalformedError{Op: fmt.Sprintf("list: book %d", i), Err: err}
		}
	}
	return out, nil
}

func (c *Client) GetBook(ctx context.Context, id string) (book.Book, error) {
	var b book.Book
	if err := c.do(ctx, http.MethodGet, bookPath(id), nil, &b); err != nil {
		return book.Book{}, err
	}
	if err := b.Validate(); err != nil {
		return book.Book{}, &MalformedError{Op: "get " + id, Err: err}
	}
	return b, nil
}

func (c *Client) CreateBook(ctx context.Context, b book.Book) (book.Book, error) {
	if err := b.ValidateNew(); err != nil {
		return book.Book{}, err
	}
	return c.mutate(ctx, http.MethodPost, booksPath+"/create-book", b)
}

func (c *Client) UpdateBook(ctx context.Context, id string, p book.Patch) (book.Book, error) {
	if err := p.Validate(); err != nil {
		return book.Book{}, err
	}
	return c.mutate(ctx, http.MethodPut, booksPath+"/edit/"+url.PathEscape(id), p)
}

func (c *Client) DeleteBook(ctx context.Context, id string) error {
	var resp mutationResp
	return c.do(ctx, http.MethodDelete, bookPath(id), nil, &resp)
}

// AdminLogin exchanges admin credentials for a bearer token. Rejected
// credentials unwrap to ErrUnauthorized.
func (c *Client) AdminLogin(ctx context.Context, username, password string) (string, error) {
	req := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, adminLoginPath, req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errors.Wrap(ErrMalformedResponse, "admin login: empty token")
	}
	return resp.Token, nil
}

func (c *Client) mutate(ctx context.Context, method, path string, body any) (book.Book, error) {
	var resp mutationResp
	if err := c.do(ctx, method, path, body, &resp); err != nil {
		return book.Book{}, err
	}
	if err := resp.Book.Validate(); err != nil {
		return book.Book{}, &MalformedError{Op: method + " " + path, Err: err}
	}
	return resp.Book, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
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
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("catalog request failed",
			zap.String("method", method), zap.String("path", path), zap.Error(err))
		return errors.Wrapf(ErrUnavailable, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRespBytes)).Decode(out); err != nil {
		return &MalformedError{Op: method + " " + path, Err: err}
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxRespBytes)).Decode(&body)

	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func bookPath(id string) string {
	return booksPath + "/" + url.PathEscape(id)
}
