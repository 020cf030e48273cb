package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

type memoryStore struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory builds the in-process entry store. ttl is the fallback eviction
// horizon applied when an entry carries no ExpiresAt of its own.
func NewMemory(ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &memoryStore{ttl: ttl, entries: make(map[string]Entry)}
}

func (s *memoryStore) Lookup(_ context.Context, key string) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(s.entries, key)
		return Entry{}, false, nil
	}
	return cloneEntry(entry), true, nil
}

func (s *memoryStore) Store(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now().UTC()
	}
	if entry.StaleAt.IsZero() {
		entry.StaleAt = entry.FetchedAt
	}
	if entry.ExpiresAt.IsZero() || entry.ExpiresAt.Before(entry.FetchedAt) {
		entry.ExpiresAt = entry.FetchedAt.Add(s.ttl)
	}
	s.entries[key] = cloneEntry(entry)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memoryStore) DeletePrefix(_ context.Context, prefix string) error {
	if prefix == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

func (s *memoryStore) Size(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func cloneEntry(in Entry) Entry {
	out := in
	if len(in.Payload) > 0 {
		out.Payload = append([]byte(nil), in.Payload...)
	}
	return out
}
