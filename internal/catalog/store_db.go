package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/bcrypt"

	"BookStore/internal/book"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second

	bookColumns = `id, title, description, category, trending, cover_image, old_price, new_price, created_at, updated_at`
)

//go:embed schema.sql
var schema string

// Migrate creates the books and admins tables when missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return errors.Wrap(err, "migrate catalog schema")
}

// PostgresStore keeps books in the "books" table. Prices are NUMERIC and
// scan straight into decimal.Decimal.
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (book.Book, error) {
	var b book.Book
	err := row.Scan(&b.ID, &b.Title, &b.Description, &b.Category, &b.Trending,
		&b.CoverImage, &b.OldPrice, &b.NewPrice, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (s *PostgresStore) List(ctx context.Context) ([]book.Book, error) {
	var out []book.Book

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+bookColumns+`
			FROM books
			ORDER BY created_at ASC, id ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]book.Book, 0, 16)
		for rows.Next() {
			b, err := scanBook(rows)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, errors.Wrap(err, "list books")
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (book.Book, error) {
	var b book.Book
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		b, err = scanBook(s.db.QueryRowContext(ctx, `
			SELECT `+bookColumns+`
			FROM books
			WHERE id = $1
		`, id))
		return err
	})
	return b, notFound(err, "get book")
}

func (s *PostgresStore) Create(ctx context.Context, b book.Book) error {
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO books (`+bookColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, b.ID, b.Title, b.Description, b.Category, b.Trending,
			b.CoverImage, b.OldPrice, b.NewPrice, b.CreatedAt, b.UpdatedAt)
		return err
	})
	return errors.Wrap(err, "insert book")
}

// Update applies p inside a transaction so the read-modify-write is atomic.
func (s *PostgresStore) Update(ctx context.Context, id string, p book.Patch, at time.Time) (book.Book, error) {
	var out book.Book

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		cur, err := scanBook(tx.QueryRowContext(ctx, `
			SELECT `+bookColumns+`
			FROM books
			WHERE id = $1
			FOR UPDATE
		`, id))
		if err != nil {
			return err
		}

		out = p.Apply(cur)
		out.UpdatedAt = at

		_, err = tx.ExecContext(ctx, `
			UPDATE books
			SET title = $2, description = $3, category = $4, trending = $5,
			    cover_image = $6, old_price = $7, new_price = $8, updated_at = $9
			WHERE id = $1
		`, id, out.Title, out.Description, out.Category, out.Trending,
			out.CoverImage, out.OldPrice, out.NewPrice, out.UpdatedAt)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return book.Book{}, notFound(err, "update book")
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (book.Book, error) {
	var b book.Book
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		var err error
		b, err = scanBook(s.db.QueryRowContext(ctx, `
			DELETE FROM books
			WHERE id = $1
			RETURNING `+bookColumns, id))
		return err
	})
	return b, notFound(err, "delete book")
}

type PostgresAdminStore struct {
	db *sql.DB
}

func NewPostgresAdminStore(db *sql.DB) *PostgresAdminStore {
	return &PostgresAdminStore{db: db}
}

// Add creates the admin or resets its password.
func (s *PostgresAdminStore) Add(ctx context.Context, id, username, password string, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}
	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO admins (id, username, pass_hash)
			VALUES ($1, $2, $3)
			ON CONFLICT (username) DO UPDATE SET pass_hash = EXCLUDED.pass_hash
		`, id, normalizeUsername(username), hash)
		return err
	})
	return errors.Wrap(err, "upsert admin")
}

// Seed inserts books that are not stored yet.
func (s *PostgresStore) Seed(ctx context.Context, books []book.Book) error {
	for _, b := range books {
		err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO books (`+bookColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				ON CONFLICT (id) DO NOTHING
			`, b.ID, b.Title, b.Description, b.Category, b.Trending,
				b.CoverImage, b.OldPrice, b.NewPrice, b.CreatedAt, b.UpdatedAt)
			return err
		})
		if err != nil {
			return errors.Wrapf(err, "seed book %s", b.ID)
		}
	}
	return nil
}

func (s *PostgresAdminStore) Verify(ctx context.Context, username, password string) (Admin, error) {
	var a Admin
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, username, pass_hash
			FROM admins
			WHERE username = $1
		`, normalizeUsername(username)).Scan(&a.ID, &a.Username, &a.Hash)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Admin{}, ErrInvalidCredentials
	}
	if err != nil {
		return Admin{}, errors.Wrap(err, "select admin")
	}
	if err := bcrypt.CompareHashAndPassword(a.Hash, []byte(password)); err != nil {
		return Admin{}, ErrInvalidCredentials
	}
	return a, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return errors.Wrap(err, op)
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
