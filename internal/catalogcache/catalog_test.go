package catalogcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BookStore/internal/book"
)

var errBoom = errors.New("boom")

// fakeRemote is an in-memory catalog that counts network calls. When gate is
// non-nil, ListBooks blocks until it is closed.
type fakeRemote struct {
	mu     sync.Mutex
	books  []book.Book
	nextID int

	listCalls atomic.Int32
	getCalls  atomic.Int32
	gate      chan struct{}
	listErr   error
	writeErr  error
}

func newFakeRemote(books ...book.Book) *fakeRemote {
	return &fakeRemote{books: books}
}

func (f *fakeRemote) ListBooks(ctx context.Context) ([]book.Book, error) {
	f.listCalls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]book.Book, len(f.books))
	copy(out, f.books)
	return out, nil
}

func (f *fakeRemote) GetBook(_ context.Context, id string) (book.Book, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.books {
		if b.ID == id {
			return b, nil
		}
	}
	return book.Book{}, errors.Wrap(errBoom, "not found")
}

func (f *fakeRemote) CreateBook(_ context.Context, b book.Book) (book.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return book.Book{}, f.writeErr
	}
	f.nextID++
	b.ID = "new-" + string(rune('0'+f.nextID))
	f.books = append(f.books, b)
	return b, nil
}

func (f *fakeRemote) UpdateBook(_ context.Context, id string, p book.Patch) (book.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return book.Book{}, f.writeErr
	}
	for i, b := range f.books {
		if b.ID == id {
			f.books[i] = p.Apply(b)
			return f.books[i], nil
		}
	}
	return book.Book{}, errBoom
}

func (f *fakeRemote) DeleteBook(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	for i, b := range f.books {
		if b.ID == id {
			f.books = append(f.books[:i], f.books[i+1:]...)
			return nil
		}
	}
	return errBoom
}

func seed() []book.Book {
	return []book.Book{
		{ID: "b1", Title: "Dune", Category: "fiction"},
		{ID: "b2", Title: "Emma", Category: "classics"},
	}
}

func ids(books []book.Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.ID)
	}
	return out
}

func TestCatalog_FetchAllIsCached(t *testing.T) {
	remote := newFakeRemote(seed()...)
	cat := NewCatalog(remote, New(), nil)

	for range 3 {
		books, err := cat.FetchAll(t.Context())
		require.NoError(t, err)
		assert.Equal(t, []string{"b1", "b2"}, ids(books))
	}
	assert.EqualValues(t, 1, remote.listCalls.Load())
}

func TestCatalog_CallersDoNotAliasCachedSlice(t *testing.T) {
	cat := NewCatalog(newFakeRemote(seed()...), New(), nil)

	first, err := cat.FetchAll(t.Context())
	require.NoError(t, err)
	first[0].Title = "scribbled"

	second, err := cat.FetchAll(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Dune", second[0].Title)
}

func TestCatalog_MutationsInvalidate(t *testing.T) {
	remote := newFakeRemote(seed()...)
	cat := NewCatalog(remote, New(), nil)
	ctx := t.Context()

	_, err := cat.FetchAll(ctx)
	require.NoError(t, err)

	created, err := cat.Create(ctx, book.Book{Title: "Ulysses"})
	require.NoError(t, err)

	books, err := cat.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", created.ID}, ids(books))

	title := "Emma (annotated)"
	_, err = cat.Update(ctx, "b2", book.Patch{Title: &title})
	require.NoError(t, err)

	books, err = cat.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, title, books[1].Title)

	require.NoError(t, cat.Delete(ctx, "b1"))

	books, err = cat.FetchAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b2", created.ID}, ids(books))
	assert.EqualValues(t, 4, remote.listCalls.Load())
}

func TestCatalog_PerEntityInvalidation(t *testing.T) {
	remote := newFakeRemote(seed()...)
	cat := NewCatalog(remote, New(), nil)
	ctx := t.Context()

	_, err := cat.FetchByID(ctx, "b1")
	require.NoError(t, err)
	_, err = cat.FetchByID(ctx, "b2")
	require.NoError(t, err)

	title := "Dune Messiah"
	_, err = cat.Update(ctx, "b1", book.Patch{Title: &title})
	require.NoError(t, err)

	_, state, ok := cat.Cache().Peek(BookKey("b1"))
	require.True(t, ok)
	assert.Equal(t, Invalidated, state)

	_, state, ok = cat.Cache().Peek(BookKey("b2"))
	require.True(t, ok)
	assert.Equal(t, Fresh, state, "unrelated book stays cached")

	b, err := cat.FetchByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", b.Title)
	assert.EqualValues(t, 3, remote.getCalls.Load())

	_, err = cat.Create(ctx, book.Book{Title: "New"})
	require.NoError(t, err)
	_, state, _ = cat.Cache().Peek(BookKey("b2"))
	assert.Equal(t, Fresh, state, "creating a book only touches the list")
}

func TestCatalog_FailedWriteInvalidatesNothing(t *testing.T) {
	remote := newFakeRemote(seed()...)
	cat := NewCatalog(remote, New(), nil)

	_, err := cat.FetchAll(t.Context())
	require.NoError(t, err)

	remote.writeErr = errBoom
	require.ErrorIs(t, cat.Delete(t.Context(), "b1"), errBoom)

	_, state, _ := cat.Cache().Peek(AllBooksKey())
	assert.Equal(t, Fresh, state)
}

func TestCatalog_FailureIsNotCached(t *testing.T) {
	remote := newFakeRemote(seed()...)
	remote.listErr = errBoom
	cat := NewCatalog(remote, New(), nil)

	_, err := cat.FetchAll(t.Context())
	require.ErrorIs(t, err, errBoom)

	_, _, ok := cat.Cache().Peek(AllBooksKey())
	assert.False(t, ok)

	remote.mu.Lock()
	remote.listErr = nil
	remote.mu.Unlock()

	books, err := cat.FetchAll(t.Context())
	require.NoError(t, err)
	assert.Len(t, books, 2)
	assert.EqualValues(t, 2, remote.listCalls.Load(), "no automatic retry, one call per query")
}

func TestCatalog_ConcurrentFetchAllDeduplicated(t *testing.T) {
	remote := newFakeRemote(seed()...)
	remote.gate = make(chan struct{})
	m := NewMetrics(prometheus.NewRegistry())
	cat := NewCatalog(remote, New(WithMetrics(m)), nil)

	var wg sync.WaitGroup
	results := make([][]book.Book, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = cat.FetchAll(context.Background())
		}()
	}

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Lookups.WithLabelValues(resultMiss)) == 2
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(remote.gate)
	wg.Wait()

	for i := range 2 {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"b1", "b2"}, ids(results[i]))
	}
	assert.EqualValues(t, 1, remote.listCalls.Load())
	assert.EqualValues(t, 2, testutil.ToFloat64(m.Shared))
}

func TestCache_InvalidationDuringFlightMarksResultStale(t *testing.T) {
	c := New()
	key := Key{Endpoint: "q"}
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	fetch := func(context.Context) (any, []Tag, error) {
		n := calls.Add(1)
		if n == 1 {
			close(started)
			<-release
			return "old", []Tag{ListTag}, nil
		}
		return "new", []Tag{ListTag}, nil
	}

	done := make(chan any)
	go func() {
		v, _ := c.Query(context.Background(), key, fetch)
		done <- v
	}()

	<-started
	c.Invalidate(ListTag)

	v, err := c.Query(t.Context(), key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "new", v, "callers after an invalidation start a new fetch")

	close(release)
	assert.Equal(t, "old", <-done)

	_, state, ok := c.Peek(key)
	require.True(t, ok)
	assert.Equal(t, Invalidated, state)

	v, err = c.Query(t.Context(), key, fetch)
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.EqualValues(t, 3, calls.Load())
}

func TestCache_UnrelatedInvalidationKeepsDedup(t *testing.T) {
	for name, tc := range map[string]struct {
		invalidate Tag
		wantCalls  int32
	}{
		"other book": {invalidate: BookTag("zzz"), wantCalls: 1},
		"list":       {invalidate: ListTag, wantCalls: 1},
		"same book":  {invalidate: BookTag("a"), wantCalls: 2},
	} {
		t.Run(name, func(t *testing.T) {
			m := NewMetrics(prometheus.NewRegistry())
			c := New(WithMetrics(m))
			started := make(chan struct{}, 2)
			release := make(chan struct{})
			var calls atomic.Int32
			fetch := func(context.Context) (any, []Tag, error) {
				calls.Add(1)
				started <- struct{}{}
				<-release
				return "a", []Tag{BookTag("a")}, nil
			}

			var wg sync.WaitGroup
			query := func() {
				defer wg.Done()
				v, err := c.Query(context.Background(), BookKey("a"), fetch, BookTag("a"))
				assert.NoError(t, err)
				assert.Equal(t, "a", v)
			}

			wg.Add(1)
			go query()
			<-started
			c.Invalidate(tc.invalidate)

			wg.Add(1)
			go query()
			require.Eventually(t, func() bool {
				return testutil.ToFloat64(m.Lookups.WithLabelValues(resultMiss)) == 2
			}, time.Second, time.Millisecond)
			time.Sleep(20 * time.Millisecond)
			close(release)
			wg.Wait()

			assert.Equal(t, tc.wantCalls, calls.Load())
		})
	}
}

func TestCatalog_BookUpdateSplitsRunningListFetch(t *testing.T) {
	remote := newFakeRemote(seed()...)
	remote.gate = make(chan struct{})
	cat := NewCatalog(remote, New(), nil)

	first := make(chan []book.Book)
	go func() {
		books, _ := cat.FetchAll(context.Background())
		first <- books
	}()
	require.Eventually(t, func() bool { return remote.listCalls.Load() == 1 }, time.Second, time.Millisecond)

	title := "Renamed"
	_, err := cat.Update(t.Context(), "b2", book.Patch{Title: &title})
	require.NoError(t, err)

	second := make(chan []book.Book)
	go func() {
		books, _ := cat.FetchAll(context.Background())
		second <- books
	}()
	require.Eventually(t, func() bool { return remote.listCalls.Load() == 2 }, time.Second, time.Millisecond)
	close(remote.gate)

	assert.Len(t, <-first, 2)
	assert.Equal(t, title, (<-second)[1].Title)
	assert.EqualValues(t, 2, remote.listCalls.Load())
}

func TestCache_TagSequencesArePruned(t *testing.T) {
	c := New()
	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Query(context.Background(), BookKey("a"), func(context.Context) (any, []Tag, error) {
			close(started)
			<-release
			return "a", []Tag{BookTag("a")}, nil
		}, BookTag("a"))
	}()
	<-started

	for _, id := range []string{"x", "y", "a"} {
		c.Invalidate(BookTag(id))
	}
	c.mu.Lock()
	assert.Len(t, c.tagSeq, 3, "kept while a fetch may observe them")
	c.mu.Unlock()

	close(release)
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Empty(t, c.tagSeq)
	assert.Empty(t, c.running)
	assert.Equal(t, Invalidated, c.entries[BookKey("a")].state)

	c.Invalidate(BookTag("q"))
	assert.Empty(t, c.tagSeq, "nothing recorded with no fetch running")
}

func TestCache_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	c := New()
	key := Key{Endpoint: "q"}
	release := make(chan struct{})
	fetchCtxErr := make(chan error, 1)

	fetch := func(ctx context.Context) (any, []Tag, error) {
		<-release
		fetchCtxErr <- ctx.Err()
		return 42, nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, key, fetch)
		errCh <- err
	}()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	assert.NoError(t, <-fetchCtxErr)

	require.Eventually(t, func() bool {
		_, state, ok := c.Peek(key)
		return ok && state == Fresh
	}, time.Second, time.Millisecond)
}

func TestCache_MaxAge(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithMaxAge(time.Minute))
	c.now = func() time.Time { return now }

	var calls int
	fetch := func(context.Context) (any, []Tag, error) {
		calls++
		return calls, nil, nil
	}

	v, _ := c.Query(t.Context(), Key{Endpoint: "q"}, fetch)
	assert.Equal(t, 1, v)
	v, _ = c.Query(t.Context(), Key{Endpoint: "q"}, fetch)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	v, _ = c.Query(t.Context(), Key{Endpoint: "q"}, fetch)
	assert.Equal(t, 2, v)
}

func TestCache_SubscribeAndReset(t *testing.T) {
	c := New()
	var got []Invalidation
	unsubscribe := c.Subscribe(func(inv Invalidation) { got = append(got, inv) })

	_, err := c.Query(t.Context(), BookKey("b1"), func(context.Context) (any, []Tag, error) {
		return "b1", []Tag{BookTag("b1")}, nil
	})
	require.NoError(t, err)

	c.Invalidate(BookTag("b1"), BookTag("b9"))
	require.Len(t, got, 1)
	assert.Equal(t, []Key{BookKey("b1")}, got[0].Keys)

	unsubscribe()
	c.Invalidate(BookTag("b1"))
	assert.Len(t, got, 1)

	c.Reset()
	_, _, ok := c.Peek(BookKey("b1"))
	assert.False(t, ok)
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "fetchAllBooks", AllBooksKey().String())
	assert.Equal(t, "fetchBookById(b1)", BookKey("b1").String())
	assert.Equal(t, Tag("Books:b1"), BookTag("b1"))
}
