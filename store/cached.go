package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ilcreatore32/odoograph/projector"
)

var (
	// cacheLookups counts ids served by Cached.
	// Labels: kind, result (hit, miss)
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "odoograph",
		Subsystem: "store",
		Name:      "cache_lookups_total",
		Help:      "Record ids requested from the lookup cache",
	}, []string{"kind", "result"})

	// backendLatency measures lookups that reached the wrapped store.
	backendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "odoograph",
		Subsystem: "store",
		Name:      "backend_lookup_seconds",
		Help:      "Latency of lookups forwarded past the cache",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind", "status"})
)

// DefaultTTL matches the session lifetime of the mobile API.
const DefaultTTL = time.Hour

type cacheKey struct {
	kind projector.Kind
	id   int64
}

type cacheEntry struct {
	rec      *projector.Record
	storedAt time.Time
}

// Cached puts a TTL cache in front of another lookup. Concurrent misses for
// the same ids share one backend call. Ids the backend does not return are
// not cached.
type Cached struct {
	next   projector.Lookup
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
	flight  singleflight.Group
}

// CacheOption configures a Cached lookup.
type CacheOption func(*Cached)

// WithTTL sets how long a record is served from the cache. Values <= 0 keep
// the default.
func WithTTL(d time.Duration) CacheOption {
	return func(c *Cached) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cached) {
		c.now = now
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cached) {
		c.logger = logger
	}
}

// NewCached wraps next.
func NewCached(next projector.Lookup, opts ...CacheOption) *Cached {
	c := &Cached{
		next:    next,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  zap.NewNop(),
		entries: map[cacheKey]cacheEntry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup implements projector.Lookup. Records come back in the order of ids.
func (c *Cached) Lookup(ctx context.Context, kind projector.Kind, ids []int64) ([]*projector.Record, error) {
	ids = uniqueIDs(ids)
	found := make(map[int64]*projector.Record, len(ids))
	var missing []int64

	now := c.now()
	c.mu.RLock()
	for _, id := range ids {
		entry, ok := c.entries[cacheKey{kind, id}]
		if ok && now.Sub(entry.storedAt) < c.ttl {
			found[id] = entry.rec
			continue
		}
		missing = append(missing, id)
	}
	c.mu.RUnlock()

	cacheLookups.WithLabelValues(string(kind), "hit").Add(float64(len(found)))
	cacheLookups.WithLabelValues(string(kind), "miss").Add(float64(len(missing)))

	if len(missing) > 0 {
		fetched, err := c.fetch(ctx, kind, missing)
		if err != nil {
			return nil, err
		}
		for _, rec := range fetched {
			found[rec.ID] = rec
		}
	}

	out := make([]*projector.Record, 0, len(found))
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *Cached) fetch(ctx context.Context, kind projector.Kind, ids []int64) ([]*projector.Record, error) {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	key := string(kind) + ":" + strings.Join(parts, ",")

	// The shared fetch outlives any single caller; each caller stops waiting
	// when its own ctx is done.
	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (any, error) {
		start := time.Now()
		recs, err := c.next.Lookup(shared, kind, sorted)
		if err != nil {
			backendLatency.WithLabelValues(string(kind), "error").Observe(time.Since(start).Seconds())
			return nil, err
		}
		backendLatency.WithLabelValues(string(kind), "ok").Observe(time.Since(start).Seconds())

		storedAt := c.now()
		c.mu.Lock()
		for _, rec := range recs {
			if rec != nil && rec.Kind == kind {
				c.entries[cacheKey{kind, rec.ID}] = cacheEntry{rec: rec, storedAt: storedAt}
			}
		}
		c.mu.Unlock()
		return recs, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		c.logger.Warn("Backend lookup failed",
			zap.String("kind", string(kind)),
			zap.Int64s("ids", sorted),
			zap.Error(res.Err),
		)
		return nil, fmt.Errorf("store: cached lookup %s: %w", kind, res.Err)
	}
	if res.Shared {
		c.logger.Debug("Backend lookup shared with a concurrent caller",
			zap.String("kind", string(kind)),
			zap.Int("ids", len(sorted)),
		)
	}

	recs := res.Val.([]*projector.Record)
	out := make([]*projector.Record, 0, len(recs))
	for _, rec := range recs {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Invalidate drops the cached records of kind with the given ids, or every
// record of kind when no id is given.
func (c *Cached) Invalidate(kind projector.Kind, ids ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) == 0 {
		for k := range c.entries {
			if k.kind == kind {
				delete(c.entries, k)
			}
		}
		return
	}
	for _, id := range ids {
		delete(c.entries, cacheKey{kind, id})
	}
}

// Purge drops expired entries and reports how many were removed.
func (c *Cached) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, entry := range c.entries {
		if now.Sub(entry.storedAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of cached records, expired ones included.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
