package auth

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
	pgUniqueCode = "23505"
)

//go:embed schema.sql
var schema string

// Migrate creates the users table when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return errors.Wrap(err, "migrate auth schema")
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Create(ctx context.Context, u User, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(normalizePassword(password)), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (id, email, display_name, photo_url, pass_hash, role)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, u.ID, normalizeEmail(u.Email), u.DisplayName, u.PhotoURL, hash, u.Role)

		if err == nil {
			return nil
		}
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return errors.Wrap(err, "insert user")
	})
}

func (s *PostgresStore) Verify(ctx context.Context, email, password string) (User, error) {
	u, found, err := s.scanOne(ctx, `WHERE email = $1`, normalizeEmail(email))
	if err != nil {
		return User{}, err
	}
	if !found {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.Hash, []byte(normalizePassword(password))); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (User, bool, error) {
	return s.scanOne(ctx, `WHERE id = $1`, id)
}

func (s *PostgresStore) scanOne(ctx context.Context, where string, arg any) (User, bool, error) {
	var u User
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, email, display_name, photo_url, pass_hash, role
			FROM users `+where, arg).
			Scan(&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.Hash, &u.Role)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, errors.Wrap(err, "select user")
	}
	return u, true, nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}
