// Package cart holds the shopper's in-memory cart.
package cart

import (
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"BookStore/internal/book"
)

// Notice is a user-visible outcome of a cart operation.
type Notice int

const (
	Added Notice = iota + 1
	AlreadyInCart
	Cleared
)

func (n Notice) String() string {
	switch n {
	case Added:
		return "added to cart"
	case AlreadyInCart:
		return "already in cart"
	case Cleared:
		return "cart cleared"
	default:
		return "unknown"
	}
}

type Notifier interface {
	Notify(n Notice, b book.Book)
}

type NotifierFunc func(n Notice, b book.Book)

func (f NotifierFunc) Notify(n Notice, b book.Book) { f(n, b) }

// Store is an ordered set of books keyed by ID. Insertion order is display
// order; a book appears at most once.
type Store struct {
	mu       sync.Mutex
	items    []book.Book
	notifier Notifier
}

// New returns an empty cart. notifier may be nil.
func New(notifier Notifier) *Store {
	return &Store{notifier: notifier}
}

// Add appends b unless a book with the same ID is already present. A
// duplicate leaves the cart unchanged and reports AlreadyInCart.
func (s *Store) Add(b book.Book) Notice {
	s.mu.Lock()
	n := Added
	if s.indexLocked(b.ID) >= 0 {
		n = AlreadyInCart
	} else {
		s.items = append(s.items, b)
	}
	s.mu.Unlock()

	s.notify(n, b)
	return n
}

// Remove drops the book with b's ID. Unknown IDs are ignored.
func (s *Store) Remove(b book.Book) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(b.ID)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true
}

// Clear empties the cart and emits a single Cleared notice. Clearing an
// empty cart does nothing.
func (s *Store) Clear() bool {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return false
	}
	s.items = nil
	s.mu.Unlock()

	s.notify(Cleared, book.Book{})
	return true
}

func (s *Store) Items() []book.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0
}

// Subtotal sums the current price of every item.
func (s *Store) Subtotal() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, b := range s.items {
		total = total.Add(b.NewPrice)
	}
	return total
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.items, func(b book.Book) bool { return b.ID == id })
}

func (s *Store) notify(n Notice, b book.Book) {
	if s.notifier != nil {
		s.notifier.Notify(n, b)
	}
}
