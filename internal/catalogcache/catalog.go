package catalogcache

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"BookStore/internal/book"
)

// Remote is the network side of the catalog.
type Remote interface {
	ListBooks(ctx context.Context) ([]book.Book, error)
	GetBook(ctx context.Context, id string) (book.Book, error)
	CreateBook(ctx context.Context, b book.Book) (book.Book, error)
	UpdateBook(ctx context.Context, id string, p book.Patch) (book.Book, error)
	DeleteBook(ctx context.Context, id string) error
}

const (
	endpointFetchAll  = "fetchAllBooks"
	endpointFetchByID = "fetchBookById"
)

func AllBooksKey() Key { return Key{Endpoint: endpointFetchAll} }

func BookKey(id string) Key { return Key{Endpoint: endpointFetchByID, Params: id} }

// Catalog is the book catalog as cached queries and invalidating mutations.
type Catalog struct {
	cache  *Cache
	remote Remote
	log    *zap.Logger
}

func NewCatalog(remote Remote, cache *Cache, log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Catalog{cache: cache, remote: remote, log: log}
}

func (c *Catalog) Cache() *Cache { return c.cache }

// FetchAll returns the whole catalog. The entry provides ListTag and one
// BookTag per book, so updating or deleting any listed book refreshes it.
func (c *Catalog) FetchAll(ctx context.Context) ([]book.Book, error) {
	books, err := query(ctx, c.cache, AllBooksKey(), []Tag{ListTag, AnyBookTag}, func(ctx context.Context) ([]book.Book, []Tag, error) {
		books, err := c.remote.ListBooks(ctx)
		if err != nil {
			return nil, nil, err
		}
		tags := make([]Tag, 0, len(books)+1)
		tags = append(tags, ListTag)
		for _, b := range books {
			tags = append(tags, BookTag(b.ID))
		}
		return books, tags, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(books), nil
}

func (c *Catalog) FetchByID(ctx context.Context, id string) (book.Book, error) {
	return query(ctx, c.cache, BookKey(id), []Tag{BookTag(id)}, func(ctx context.Context) (book.Book, []Tag, error) {
		b, err := c.remote.GetBook(ctx, id)
		if err != nil {
			return book.Book{}, nil, err
		}
		return b, []Tag{BookTag(id)}, nil
	})
}

func (c *Catalog) Create(ctx context.Context, b book.Book) (book.Book, error) {
	created, err := c.remote.CreateBook(ctx, b)
	if err != nil {
		return book.Book{}, err
	}
	c.cache.Invalidate(ListTag)
	c.log.Info("book created", zap.String("id", created.ID))
	return created, nil
}

func (c *Catalog) Update(ctx context.Context, id string, p book.Patch) (book.Book, error) {
	updated, err := c.remote.UpdateBook(ctx, id, p)
	if err != nil {
		return book.Book{}, err
	}
	c.cache.Invalidate(BookTag(id))
	c.log.Info("book updated", zap.String("id", id))
	return updated, nil
}

func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.remote.DeleteBook(ctx, id); err != nil {
		return err
	}
	c.cache.Invalidate(BookTag(id))
	c.log.Info("book deleted", zap.String("id", id))
	return nil
}

func query[T any](ctx context.Context, c *Cache, key Key, watch []Tag, fetch func(context.Context) (T, []Tag, error)) (T, error) {
	v, err := c.Query(ctx, key, func(ctx context.Context) (any, []Tag, error) {
		return fetch(ctx)
	}, watch...)
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
