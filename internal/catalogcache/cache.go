// Package catalogcache serves catalog reads as cached, deduplicated queries
// and invalidates them by tag when a mutation succeeds.
package catalogcache

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Tag labels cached reads. Invalidating a tag marks every entry carrying it
// as stale.
type Tag string

const (
	ListTag Tag = "Books:list"
	// AnyBookTag matches every tag in the Books namespace when watched by a
	// query.
	AnyBookTag Tag = "Books:*"
)

func BookTag(id string) Tag { return Tag("Books:" + id) }

// matches reports whether invalidating u affects a query watching t.
func (t Tag) matches(u Tag) bool {
	if prefix, ok := strings.CutSuffix(string(t), "*"); ok {
		return strings.HasPrefix(string(u), prefix)
	}
	return t == u
}

// Key identifies a query by endpoint and its encoded parameters.
type Key struct {
	Endpoint string
	Params   string
}

func (k Key) String() string {
	if k.Params == "" {
		return k.Endpoint
	}
	return k.Endpoint + "(" + k.Params + ")"
}

type State int

const (
	Fresh State = iota
	Invalidated
)

func (s State) String() string {
	if s == Fresh {
		return "fresh"
	}
	return "invalidated"
}

type entry struct {
	value     any
	tags      []Tag
	state     State
	fetchedAt time.Time
}

// Invalidation describes one Invalidate call: the tags named and the cached
// keys that went stale because of them.
type Invalidation struct {
	Tags []Tag
	Keys []Key
}

type Listener func(Invalidation)

// FetchFunc performs the network read for a query and reports the tags the
// result provides.
type FetchFunc func(ctx context.Context) (value any, tags []Tag, err error)

// flight is one network fetch for a key. Callers join the latest flight for
// their key until an invalidation touches a tag it watches.
type flight struct {
	name  string
	watch []Tag
	stale bool
	start uint64
}

func (f *flight) affectedBy(tags []Tag) bool {
	if len(f.watch) == 0 {
		return true
	}
	for _, w := range f.watch {
		for _, t := range tags {
			if w.matches(t) {
				return true
			}
		}
	}
	return false
}

// Cache is the tag-aware query cache. The zero value is not usable; use New.
//
// Every Invalidate bumps a sequence number. A fetch remembers the sequence it
// started at: its result is stored as Invalidated if any of its tags was
// invalidated meanwhile. tagSeq only holds invalidations newer than the
// oldest running fetch.
type Cache struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	byTag     map[Tag]map[Key]struct{}
	tagSeq    map[Tag]uint64
	seq       uint64
	resetSeq  uint64
	latest    map[Key]*flight
	running   map[*flight]struct{}
	flightID  uint64
	listeners map[int]Listener
	nextID    int

	group   singleflight.Group
	maxAge  time.Duration
	now     func() time.Time
	metrics *Metrics
	log     *zap.Logger
}

type Option func(*Cache)

// WithMaxAge treats entries older than d as stale. Zero keeps entries until
// they are invalidated.
func WithMaxAge(d time.Duration) Option {
	return func(c *Cache) { c.maxAge = d }
}

func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) { c.log = log }
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries:   make(map[Key]*entry),
		byTag:     make(map[Tag]map[Key]struct{}),
		tagSeq:    make(map[Tag]uint64),
		latest:    make(map[Key]*flight),
		running:   make(map[*flight]struct{}),
		listeners: make(map[int]Listener),
		now:       time.Now,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = NewMetrics(nil)
	}
	return c
}

// Query returns the cached value for key, or runs fetch when the entry is
// missing or stale. Concurrent queries for the same key share one fetch.
//
// watch names the tags the result can provide. A caller does not join a
// running fetch once one of those tags has been invalidated after it was
// started; with no watch tags any invalidation counts.
//
// The shared fetch is detached from the caller's cancellation and runs to
// completion; a caller whose ctx ends stops waiting and gets ctx.Err().
// A failed fetch leaves the cache untouched.
func (c *Cache) Query(ctx context.Context, key Key, fetch FetchFunc, watch ...Tag) (any, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.usableLocked(e) {
		v := e.value
		c.mu.Unlock()
		c.metrics.lookup(resultHit)
		return v, nil
	}
	f := c.latest[key]
	if f == nil || f.stale {
		c.flightID++
		f = &flight{
			name:  key.String() + "#" + strconv.FormatUint(c.flightID, 10),
			watch: watch,
		}
		c.latest[key] = f
	}
	c.mu.Unlock()
	c.metrics.lookup(resultMiss)

	ch := c.group.DoChan(f.name, func() (any, error) {
		start := c.begin(f)
		v, tags, err := fetch(context.WithoutCancel(ctx))
		c.finish(key, f, start, v, tags, err)
		if err != nil {
			c.metrics.fetch(outcomeError)
			c.log.Debug("catalog query failed", zap.Stringer("key", key), zap.Error(err))
			return nil, err
		}
		c.metrics.fetch(outcomeOK)
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.Shared.Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) begin(f *flight) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	f.start = c.seq
	c.running[f] = struct{}{}
	return f.start
}

func (c *Cache) finish(key Key, f *flight, start uint64, v any, tags []Tag, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err == nil {
		c.storeLocked(key, v, tags, start)
	}
	delete(c.running, f)
	if c.latest[key] == f {
		delete(c.latest, key)
	}
	c.pruneLocked()
}

// pruneLocked drops tag sequences no running fetch can observe.
func (c *Cache) pruneLocked() {
	if len(c.running) == 0 {
		clear(c.tagSeq)
		return
	}
	oldest := c.seq
	for f := range c.running {
		oldest = min(oldest, f.start)
	}
	for t, seq := range c.tagSeq {
		if seq <= oldest {
			delete(c.tagSeq, t)
		}
	}
}

func (c *Cache) usableLocked(e *entry) bool {
	if e.state != Fresh {
		return false
	}
	return c.maxAge <= 0 || c.now().Sub(e.fetchedAt) < c.maxAge
}

func (c *Cache) storeLocked(key Key, v any, tags []Tag, start uint64) {
	if start < c.resetSeq {
		return
	}

	state := Fresh
	for _, t := range tags {
		if c.tagSeq[t] > start {
			state = Invalidated
			break
		}
	}

	c.unindexLocked(key)
	c.entries[key] = &entry{
		value:     v,
		tags:      tags,
		state:     state,
		fetchedAt: c.now(),
	}
	for _, t := range tags {
		keys := c.byTag[t]
		if keys == nil {
			keys = make(map[Key]struct{})
			c.byTag[t] = keys
		}
		keys[key] = struct{}{}
	}
}

func (c *Cache) unindexLocked(key Key) {
	old, ok := c.entries[key]
	if !ok {
		return
	}
	for _, t := range old.tags {
		if keys := c.byTag[t]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.byTag, t)
			}
		}
	}
}

// Invalidate marks every entry carrying any of tags as stale so the next
// Query refetches it, then notifies listeners.
func (c *Cache) Invalidate(tags ...Tag) Invalidation {
	c.mu.Lock()
	c.seq++
	inv := Invalidation{Tags: tags}
	seen := make(map[Key]struct{})
	for _, t := range tags {
		if len(c.running) > 0 {
			c.tagSeq[t] = c.seq
		}
		for k := range c.byTag[t] {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			c.entries[k].state = Invalidated
			inv.Keys = append(inv.Keys, k)
		}
	}
	for _, f := range c.latest {
		if f.affectedBy(tags) {
			f.stale = true
		}
	}
	listeners := c.listenersLocked()
	c.mu.Unlock()

	c.metrics.Invalidations.Add(float64(len(inv.Keys)))
	c.log.Debug("catalog cache invalidated",
		zap.Int("tags", len(tags)), zap.Int("keys", len(inv.Keys)))

	for _, l := range listeners {
		l(inv)
	}
	return inv
}

// Reset drops every entry. Fetches already in flight are not stored.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.resetSeq = c.seq
	clear(c.entries)
	clear(c.byTag)
	clear(c.tagSeq)
	for _, f := range c.latest {
		f.stale = true
	}
}

// Peek reports the cached value and state for key without fetching.
func (c *Cache) Peek(key Key) (value any, state State, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, Invalidated, false
	}
	state = e.state
	if state == Fresh && !c.usableLocked(e) {
		state = Invalidated
	}
	return e.value, state, true
}

// Subscribe registers l for invalidation notices. The returned func
// unregisters it.
func (c *Cache) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Cache) listenersLocked() []Listener {
	out := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}
