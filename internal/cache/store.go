// Package cache implements the client-side resource cache: a pluggable
// entry store (memory or Redis) underneath a stale-while-revalidate query
// layer with deterministic hierarchical keys, bounded retry, supersede
// tracking for in-flight fetches, and paged feed aggregation.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Entry holds one fetched resource payload together with its freshness
// bookkeeping. Payload is the raw JSON of the entity or list as fetched;
// StaleAt bounds the staleness window and ExpiresAt bounds hard eviction.
type Entry struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetchedAt"`
	StaleAt   time.Time       `json:"staleAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Fresh reports whether the entry may be served without revalidation.
func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.StaleAt)
}

// Store is the backend holding cache entries. Implementations must treat
// ExpiresAt as the eviction horizon; staleness is the resource layer's
// concern.
type Store interface {
	Lookup(ctx context.Context, key string) (Entry, bool, error)
	Store(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Size(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}
