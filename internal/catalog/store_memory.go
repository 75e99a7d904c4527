package catalog

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"BookStore/internal/book"
)

type MemStore struct {
	mu    sync.RWMutex
	m     map[string]book.Book
	order []string
}

func NewMemStore(seed ...book.Book) *MemStore {
	s := &MemStore{m: make(map[string]book.Book, len(seed))}
	for _, b := range seed {
		s.m[b.ID] = b
		s.order = append(s.order, b.ID)
	}
	return s
}

// SeedBooks is the demo catalog served by the dev binary.
func SeedBooks(now time.Time) []book.Book {
	mk := func(id, title, category, desc, cover, oldPrice, newPrice string, trending bool) book.Book {
		return book.Book{
			ID:          id,
			Title:       title,
			Description: desc,
			Category:    category,
			Trending:    trending,
			CoverImage:  cover,
			OldPrice:    decimal.RequireFromString(oldPrice),
			NewPrice:    decimal.RequireFromString(newPrice),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	return []book.Book{
		mk("b1", "How to Grow Your Online Store", "business",
			"Learn the best strategies to grow your online store.", "book-1.png", "29.99", "19.99", true),
		mk("b2", "Top 10 Fiction Books This Year", "books",
			"A curated list of the best fiction books of the year.", "book-2.png", "24.99", "14.99", true),
		mk("b3", "Mastering SEO in 2024", "marketing",
			"Tips and tricks to boost your search engine rankings.", "book-3.png", "39.99", "29.99", false),
		mk("b4", "The Haunting of Hill House", "horror",
			"A classic ghost story of four seekers and a house.", "book-4.png", "18.99", "12.99", false),
		mk("b5", "Walking in the Footsteps", "adventure",
			"A journey across continents on foot.", "book-5.png", "21.99", "15.99", true),
	}
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) List(context.Context) ([]book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]book.Book, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.m[id])
	}
	return out, nil
}

func (s *MemStore) Get(_ context.Context, id string) (book.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.m[id]
	if !ok {
		return book.Book{}, ErrNotFound
	}
	return b, nil
}

func (s *MemStore) Create(_ context.Context, b book.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.m[b.ID] = b
	s.order = append(s.order, b.ID)
	return nil
}

func (s *MemStore) Update(_ context.Context, id string, p book.Patch, at time.Time) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.m[id]
	if !ok {
		return book.Book{}, ErrNotFound
	}
	b = p.Apply(b)
	b.UpdatedAt = at
	s.m[id] = b
	return b, nil
}

func (s *MemStore) Delete(_ context.Context, id string) (book.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.m[id]
	if !ok {
		return book.Book{}, ErrNotFound
	}
	delete(s.m, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return b, nil
}

type MemAdminStore struct {
	mu     sync.RWMutex
	byName map[string]Admin
}

func NewMemAdminStore() *MemAdminStore {
	return &MemAdminStore{byName: make(map[string]Admin)}
}

// Add registers an admin with a bcrypt hash of password.
func (s *MemAdminStore) Add(id, username, password string, cost int) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[normalizeUsername(username)] = Admin{ID: id, Username: username, Hash: hash}
	return nil
}

func (s *MemAdminStore) Verify(_ context.Context, username, password string) (Admin, error) {
	s.mu.RLock()
	a, ok := s.byName[normalizeUsername(username)]
	s.mu.RUnlock()

	if !ok {
		return Admin{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.Hash, []byte(password)); err != nil {
		return Admin{}, ErrInvalidCredentials
	}
	return a, nil
}
