// Package search filters the catalog for the navigation search box.
package search

import (
	"strings"

	"BookStore/internal/book"
)

const DefaultLimit = 5

// Books returns up to limit books whose title, category or description
// contains query, case-insensitively, in catalog order. A blank query
// matches nothing. limit <= 0 means DefaultLimit.
func Books(books []book.Book, query string, limit int) []book.Book {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	var out []book.Book
	for _, b := range books {
		if matches(b, q) {
			out = append(out, b)
			if len(out) == limit {
				break
			}
		}
	}
	return out
}

func matches(b book.Book, q string) bool {
	for _, field := range []string{b.Title, b.Category, b.Description} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}
