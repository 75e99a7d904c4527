package auth

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

type MemStore struct {
	mu      sync.RWMutex
	byEmail map[string]User
	byID    map[string]string
	cost    int
}

func NewMemStore() *MemStore {
	return NewMemStoreWithCost(bcrypt.DefaultCost)
}

// NewMemStoreWithCost hashes passwords with the given bcrypt cost.
func NewMemStoreWithCost(cost int) *MemStore {
	return &MemStore{
		byEmail: make(map[string]User),
		byID:    make(map[string]string),
		cost:    cost,
	}
}

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) Create(_ context.Context, u User, password string) error {
	u.Email = normalizeEmail(u.Email)

	hash, err := bcrypt.GenerateFromPassword([]byte(normalizePassword(password)), s.cost)
	if err != nil {
		return err
	}
	u.Hash = hash

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[u.Email]; ok {
		return ErrEmailExists
	}
	s.byEmail[u.Email] = u
	s.byID[u.ID] = u.Email
	return nil
}

func (s *MemStore) Verify(_ context.Context, email, password string) (User, error) {
	s.mu.RLock()
	u, ok := s.byEmail[normalizeEmail(email)]
	s.mu.RUnlock()

	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.Hash, []byte(normalizePassword(password))); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

func (s *MemStore) Get(_ context.Context, id string) (User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.byID[id]
	if !ok {
		return User{}, false, nil
	}
	return s.byEmail[email], true, nil
}
