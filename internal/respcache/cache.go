package respcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/aegis-signal/pkg/logger"
)

// L2 is an optional shared second level (Redis)
type L2 interface {
	Get(ctx context.Context, key string) ([]byte, time.Duration, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Observer receives cache events (metrics)
type Observer interface {
	ObserveCache(event string)
}

// Cache events
const (
	EventHit       = "hit"
	EventMiss      = "miss"
	EventCoalesced = "coalesced"
	EventL2Hit     = "l2_hit"
)

type entry struct {
	value   []byte
	expires time.Time
}

// Cache is the category-TTL response cache shared by every task of every run.
// Entries expire lazily on read; PurgeExpired drops the ones nobody reads again.
// ⭐ SSOT: 업스트림 응답 캐시 + 동일 요청 합치기(coalescing)
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	inflight map[string]*Call

	hits      uint64
	misses    uint64
	coalesced uint64

	ttl      TTLPolicy
	now      func() time.Time
	l2       L2
	observer Observer
	logger   *logger.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithClock replaces the time source (tests)
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithL2 adds a shared second level
func WithL2(l2 L2) Option {
	return func(c *Cache) { c.l2 = l2 }
}

// WithObserver sets the metrics observer
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(c *Cache) { c.logger = log.WithComponent("respcache") }
}

// New creates a cache with the given TTL policy
func New(ttl TTLPolicy, opts ...Option) *Cache {
	c := &Cache{
		entries:  make(map[string]entry),
		inflight: make(map[string]*Call),
		ttl:      ttl,
		now:      time.Now,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a live entry. An expired entry is removed and reported absent.
func (c *Cache) Get(params map[string]string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.lookupLocked(Key(params))
	c.countLocked(ok)
	return value, ok
}

// Put stores a value with the TTL of its category
func (c *Cache) Put(params map[string]string, category Category, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(Key(params), value, c.ttl.For(category))
}

// GetInFlight returns the marker of a call underway for the same key
func (c *Cache) GetInFlight(params map[string]string) (*Call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.inflight[Key(params)]
	return call, ok
}

// SetInFlight registers a marker. If one already exists it is returned with created=false.
func (c *Cache) SetInFlight(params map[string]string) (call *Call, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(params)
	if existing, ok := c.inflight[key]; ok {
		return existing, false
	}
	call = newCall()
	c.inflight[key] = call
	return call, true
}

// RemoveInFlight drops the marker for params
func (c *Cache) RemoveInFlight(params map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, Key(params))
}

// Do runs the coalescing protocol: cache, then an existing in-flight call,
// then L2, then fetch. The fetch result (value or error) reaches every waiter
// and the marker is removed whatever the outcome. A leader that stops because
// its own ctx ended does not fail the waiters: one whose ctx is still live
// takes over and fetches again.
func (c *Cache) Do(ctx context.Context, category Category, params map[string]string, fetch func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	key := Key(params)

	for {
		c.mu.Lock()
		if value, ok := c.lookupLocked(key); ok {
			c.countLocked(true)
			c.mu.Unlock()
			return value, nil
		}
		c.countLocked(false)

		if call, ok := c.inflight[key]; ok {
			c.coalesced++
			c.mu.Unlock()
			c.observe(EventCoalesced)
			c.logger.WithField("key", key).Debug("attached to in-flight request")

			value, err := call.Wait(ctx)
			if ctx.Err() == nil && call.abandoned {
				c.logger.WithField("key", key).Debug("in-flight leader canceled, fetching again")
				continue
			}
			return value, err
		}

		call := newCall()
		c.inflight[key] = call
		c.mu.Unlock()

		value, err := c.load(ctx, key, category, fetch)

		// 대기자가 재시도할 때 같은 marker를 다시 보지 않도록 먼저 제거
		c.mu.Lock()
		if c.inflight[key] == call {
			delete(c.inflight, key)
		}
		c.mu.Unlock()

		if err != nil && ctx.Err() != nil {
			call.abandon(err)
		} else {
			call.Resolve(value, err)
		}
		return value, err
	}
}

// load performs the actual load for the leader of a key
func (c *Cache) load(ctx context.Context, key string, category Category, fetch func(ctx context.Context) ([]byte, error)) (value []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("upstream fetch panicked: %v", r)
		}
	}()

	if c.l2 != nil {
		if data, remaining, ok, l2Err := c.l2.Get(ctx, key); l2Err == nil && ok {
			c.observe(EventL2Hit)
			c.mu.Lock()
			c.putLocked(key, data, remaining)
			c.mu.Unlock()
			return data, nil
		} else if l2Err != nil {
			c.logger.WithError(l2Err).Warn("L2 cache read failed")
		}
	}

	value, err = fetch(ctx)
	if err != nil {
		return nil, err
	}

	ttl := c.ttl.For(category)
	c.mu.Lock()
	c.putLocked(key, value, ttl)
	c.mu.Unlock()

	if c.l2 != nil {
		if l2Err := c.l2.Set(ctx, key, value, ttl); l2Err != nil {
			c.logger.WithError(l2Err).Warn("L2 cache write failed")
		}
	}

	return value, nil
}

func (c *Cache) lookupLocked(key string) ([]byte, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *Cache) putLocked(key string, value []byte, ttl time.Duration) {
	c.entries[key] = entry{value: value, expires: c.now().Add(ttl)}
}

func (c *Cache) countLocked(hit bool) {
	if hit {
		c.hits++
		c.observe(EventHit)
	} else {
		c.misses++
		c.observe(EventMiss)
	}
}

func (c *Cache) observe(event string) {
	if c.observer != nil {
		c.observer.ObserveCache(event)
	}
}

// PurgeExpired removes expired entries and returns how many were dropped
func (c *Cache) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

// Stats is a snapshot of cache counters
type Stats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Coalesced uint64  `json:"coalesced"`
	HitRate   float64 `json:"hit_rate"`
	Entries   int     `json:"entries"`
	InFlight  int     `json:"in_flight"`
}

// Stats returns counters; HitRate is hits/(hits+misses), 0 when idle
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Coalesced: c.coalesced,
		Entries:   len(c.entries),
		InFlight:  len(c.inflight),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}
