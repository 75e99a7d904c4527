package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"BookStore/internal/book"
)

var (
	ErrNotFound           = errors.New("book not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Store persists the catalog. List returns books oldest first.
type Store interface {
	List(ctx context.Context) ([]book.Book, error)
	Get(ctx context.Context, id string) (book.Book, error)
	Create(ctx context.Context, b book.Book) error
	Update(ctx context.Context, id string, p book.Patch, at time.Time) (book.Book, error)
	Delete(ctx context.Context, id string) (book.Book, error)
	Ping(ctx context.Context) error
}

type Admin struct {
	ID       string
	Username string
	Hash     []byte
}

type AdminStore interface {
	Verify(ctx context.Context, username, password string) (Admin, error)
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimSpace(u))
}
