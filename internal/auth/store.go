package auth

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
)

var (
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID          string
	Email       string
	DisplayName string
	PhotoURL    string
	Hash        []byte
	Role        string
}

type UserStore interface {
	Create(ctx context.Context, u User, password string) error
	Verify(ctx context.Context, email, password string) (User, error)
	Get(ctx context.Context, id string) (User, bool, error)
	Ping(ctx context.Context) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePassword(password string) string {
	return strings.TrimSpace(password)
}
