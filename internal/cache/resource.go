package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/meridianhq/meridian-go/internal/api"
	"github.com/meridianhq/meridian-go/internal/metrics"
)

// Fetcher loads the current value of a resource from the platform API.
type Fetcher func(ctx context.Context) (any, error)

// Options shapes the resource layer's freshness and retry behavior.
type Options struct {
	// ListFreshness is how long list entries are served without
	// revalidation (default 5m).
	ListFreshness time.Duration
	// DetailFreshness is how long detail entries are served without
	// revalidation (default 10m).
	DetailFreshness time.Duration
	// EntryTTL is the hard eviction horizon for stored entries
	// (default 30m).
	EntryTTL time.Duration
	// RetryAttempts bounds fetch attempts on transient failure
	// (default 3). Not-found responses are never retried.
	RetryAttempts int
	Logger        *slog.Logger
	Metrics       *metrics.Recorder
}

// ResourceCache is the single shared cache for server-fetched entities and
// lists. Reads and writes to a given key are linearizable from the caller's
// perspective; superseded in-flight fetches never overwrite fresher state.
type ResourceCache struct {
	store    Store
	log      *slog.Logger
	metrics  *metrics.Recorder
	attempts int

	listFresh   time.Duration
	detailFresh time.Duration
	entryTTL    time.Duration

	mu           sync.Mutex
	gens         map[string]uint64
	revalidating map[string]bool
	subs         map[uint64]*subscription
	nextSub      uint64

	wg sync.WaitGroup
}

type subscription struct {
	key   string
	fresh time.Duration
	fetch Fetcher
}

// Subscription represents an active detail subscription; Close suppresses
// further trigger-driven revalidations for it.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Close detaches the subscription.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// NewResource builds the resource layer over an entry store.
func NewResource(store Store, opts Options) *ResourceCache {
	if opts.ListFreshness <= 0 {
		opts.ListFreshness = 5 * time.Minute
	}
	if opts.DetailFreshness <= 0 {
		opts.DetailFreshness = 10 * time.Minute
	}
	if opts.EntryTTL <= 0 {
		opts.EntryTTL = 30 * time.Minute
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ResourceCache{
		store:        store,
		log:          log,
		metrics:      opts.Metrics,
		attempts:     opts.RetryAttempts,
		listFresh:    opts.ListFreshness,
		detailFresh:  opts.DetailFreshness,
		entryTTL:     opts.EntryTTL,
		gens:         make(map[string]uint64),
		revalidating: make(map[string]bool),
		subs:         make(map[uint64]*subscription),
	}
}

// QueryList resolves a filtered list query through the cache.
func (c *ResourceCache) QueryList(ctx context.Context, namespace string, filters map[string]string, fetch Fetcher) (json.RawMessage, error) {
	return c.Query(ctx, ListKey(namespace, filters), c.listFresh, fetch)
}

// QueryDetail resolves a single-entity query through the cache.
func (c *ResourceCache) QueryDetail(ctx context.Context, namespace, id string, fetch Fetcher) (json.RawMessage, error) {
	return c.Query(ctx, DetailKey(namespace, id), c.detailFresh, fetch)
}

// Query serves the cached payload when fresh, serves stale payload while
// revalidating in the background when present, and otherwise fetches with
// bounded retry.
func (c *ResourceCache) Query(ctx context.Context, key string, fresh time.Duration, fetch Fetcher) (json.RawMessage, error) {
	namespace := namespaceOf(key)
	start := time.Now()
	entry, ok, err := c.store.Lookup(ctx, key)
	if err != nil {
		c.metrics.ObserveCacheLookup(namespace, metrics.CacheLookupError, time.Since(start))
		c.log.Warn("cache lookup failed, falling through to fetch",
			slog.String("key", key), slog.Any("error", err))
		ok = false
	}

	now := time.Now()
	if ok && entry.Fresh(now) {
		c.metrics.ObserveCacheLookup(namespace, metrics.CacheLookupHit, time.Since(start))
		return entry.Payload, nil
	}
	if ok {
		// Stale-while-revalidate: the caller gets the old value now and a
		// background fetch refreshes the entry for the next read.
		c.metrics.ObserveCacheLookup(namespace, metrics.CacheLookupStaleHit, time.Since(start))
		c.revalidateAsync(key, fresh, fetch)
		return entry.Payload, nil
	}

	c.metrics.ObserveCacheLookup(namespace, metrics.CacheLookupMiss, time.Since(start))
	return c.fetchAndStore(ctx, key, fresh, fetch)
}

// Revalidate forces a synchronous fetch-and-store for a key regardless of
// freshness.
func (c *ResourceCache) Revalidate(ctx context.Context, key string, fresh time.Duration, fetch Fetcher) (json.RawMessage, error) {
	return c.fetchAndStore(ctx, key, fresh, fetch)
}

// Prefetch warms a key if it is missing or stale, discarding the value.
func (c *ResourceCache) Prefetch(ctx context.Context, key string, fresh time.Duration, fetch Fetcher) error {
	entry, ok, err := c.store.Lookup(ctx, key)
	if err == nil && ok && entry.Fresh(time.Now()) {
		return nil
	}
	_, err = c.fetchAndStore(ctx, key, fresh, fetch)
	return err
}

// SetEntry writes a value directly, e.g. after a confirmed mutation or an
// optimistic patch. The write supersedes any in-flight fetch for the key.
func (c *ResourceCache) SetEntry(ctx context.Context, key string, value any, fresh time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	return c.SetEntryRaw(ctx, key, payload, fresh)
}

// SetEntryRaw is SetEntry for already-encoded payloads, used to restore
// exact pre-mutation snapshots.
func (c *ResourceCache) SetEntryRaw(ctx context.Context, key string, payload json.RawMessage, fresh time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	return c.storeLocked(ctx, key, payload, fresh)
}

// RemoveEntry deletes one exact key. In-flight fetches for it are
// superseded so they cannot resurrect the entry.
func (c *ResourceCache) RemoveEntry(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key]++
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache: remove entry: %w", err)
	}
	return nil
}

// Invalidate drops every entry under the prefix and supersedes in-flight
// fetches for keys beneath it.
func (c *ResourceCache) Invalidate(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.gens {
		if strings.HasPrefix(key, prefix) {
			c.gens[key]++
		}
	}
	if err := c.store.DeletePrefix(ctx, prefix); err != nil {
		return fmt.Errorf("cache: invalidate %s: %w", prefix, err)
	}
	return nil
}

// Lookup exposes the raw entry for callers that need the pre-mutation
// snapshot (the mutation coordinator's rollback discipline).
func (c *ResourceCache) Lookup(ctx context.Context, key string) (Entry, bool, error) {
	return c.store.Lookup(ctx, key)
}

// DetailFreshness reports the configured detail staleness window.
func (c *ResourceCache) DetailFreshness() time.Duration { return c.detailFresh }

// ListFreshness reports the configured list staleness window.
func (c *ResourceCache) ListFreshness() time.Duration { return c.listFresh }

// Size reports the number of stored entries.
func (c *ResourceCache) Size(ctx context.Context) (int64, error) {
	return c.store.Size(ctx)
}

// Close waits for background revalidations and releases the store.
func (c *ResourceCache) Close(ctx context.Context) error {
	c.wg.Wait()
	return c.store.Close(ctx)
}

// Subscribe registers a detail key for trigger-driven revalidation and
// immediately revalidates it, honoring the always-refetch-on-mount rule.
func (c *ResourceCache) Subscribe(key string, fresh time.Duration, fetch Fetcher) *Subscription {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = &subscription{key: key, fresh: fresh, fetch: fetch}
	c.mu.Unlock()

	c.revalidateAsync(key, fresh, fetch)

	return &Subscription{cancel: func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}}
}

// NotifyReconnect revalidates every subscribed key after the network comes
// back.
func (c *ResourceCache) NotifyReconnect() {
	c.notifyAll()
}

// NotifyFocus revalidates every subscribed key when the window regains
// focus.
func (c *ResourceCache) NotifyFocus() {
	c.notifyAll()
}

// WaitIdle blocks until all background revalidations settle.
func (c *ResourceCache) WaitIdle() {
	c.wg.Wait()
}

func (c *ResourceCache) notifyAll() {
	c.mu.Lock()
	pending := make([]*subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		pending = append(pending, sub)
	}
	c.mu.Unlock()
	for _, sub := range pending {
		c.revalidateAsync(sub.key, sub.fresh, sub.fetch)
	}
}

func (c *ResourceCache) fetchAndStore(ctx context.Context, key string, fresh time.Duration, fetch Fetcher) (json.RawMessage, error) {
	c.mu.Lock()
	c.gens[key]++
	gen := c.gens[key]
	c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		value, err := fetch(ctx)
		if err == nil {
			payload, merr := json.Marshal(value)
			if merr != nil {
				return nil, fmt.Errorf("cache: encode fetched value: %w", merr)
			}
			c.storeIfCurrent(ctx, key, gen, payload, fresh)
			return payload, nil
		}
		lastErr = err
		if !transient(err) || ctx.Err() != nil {
			break
		}
		c.log.Debug("fetch attempt failed, retrying",
			slog.String("key", key),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}
	return nil, lastErr
}

func (c *ResourceCache) revalidateAsync(key string, fresh time.Duration, fetch Fetcher) {
	c.mu.Lock()
	if c.revalidating[key] {
		c.mu.Unlock()
		return
	}
	c.revalidating[key] = true
	c.gens[key]++
	gen := c.gens[key]
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.revalidating, key)
			c.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		value, err := fetch(ctx)
		if err != nil {
			// The stale value was already served; the next read retries.
			c.log.Debug("background revalidation failed",
				slog.String("key", key), slog.Any("error", err))
			return
		}
		payload, err := json.Marshal(value)
		if err != nil {
			c.log.Warn("background revalidation produced unencodable value",
				slog.String("key", key), slog.Any("error", err))
			return
		}
		c.storeIfCurrent(ctx, key, gen, payload, fresh)
	}()
}

// storeIfCurrent persists the payload unless a newer query, manual write,
// or invalidation superseded the fetch that produced it.
func (c *ResourceCache) storeIfCurrent(ctx context.Context, key string, gen uint64, payload json.RawMessage, fresh time.Duration) {
	start := time.Now()
	namespace := namespaceOf(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key] != gen {
		c.metrics.ObserveCacheStore(namespace, metrics.CacheStoreSuperseded, time.Since(start))
		return
	}
	if err := c.storeLocked(ctx, key, payload, fresh); err != nil {
		c.metrics.ObserveCacheStore(namespace, metrics.CacheStoreError, time.Since(start))
		c.log.Warn("cache store failed", slog.String("key", key), slog.Any("error", err))
		return
	}
	c.metrics.ObserveCacheStore(namespace, metrics.CacheStoreStored, time.Since(start))
}

func (c *ResourceCache) storeLocked(ctx context.Context, key string, payload json.RawMessage, fresh time.Duration) error {
	now := time.Now().UTC()
	return c.store.Store(ctx, key, Entry{
		Payload:   payload,
		FetchedAt: now,
		StaleAt:   now.Add(fresh),
		ExpiresAt: now.Add(c.entryTTL),
	})
}

// transient reports whether a fetch failure is worth retrying. Not-found is
// terminal by contract; validation, conflict, and rate-limit rejections are
// deterministic and retrying them only hammers the server.
func transient(err error) bool {
	switch {
	case api.IsNotFound(err), api.IsValidation(err), api.IsConflict(err), api.IsRateLimited(err):
		return false
	default:
		return true
	}
}

func namespaceOf(key string) string {
	if idx := strings.Index(key, ":"); idx > 0 {
		return key[:idx]
	}
	return key
}
