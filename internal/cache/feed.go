package cache

import "sync"

// Feed accumulates a paged, append-style list (the infinite blog feed).
// Pages can overlap when entities shift between fetches, so appends
// deduplicate by id; whether more pages exist comes from the server's
// reported page count, never from guessing at page sizes.
type Feed[T any] struct {
	id func(T) string

	mu    sync.Mutex
	items []T
	seen  map[string]struct{}
	page  int
	pages int
}

// NewFeed builds a feed keyed by the given id selector.
func NewFeed[T any](id func(T) string) *Feed[T] {
	return &Feed[T]{id: id, seen: make(map[string]struct{})}
}

// Append merges one fetched page into the feed. Items whose id was already
// seen are dropped; page/pages record the server-reported position.
func (f *Feed[T]) Append(items []T, page, pages int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range items {
		key := f.id(item)
		if _, dup := f.seen[key]; dup {
			continue
		}
		f.seen[key] = struct{}{}
		f.items = append(f.items, item)
	}
	f.page = page
	f.pages = pages
}

// Items returns a snapshot of the accumulated entries in append order.
func (f *Feed[T]) Items() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]T, len(f.items))
	copy(out, f.items)
	return out
}

// Len reports the number of unique entries accumulated so far.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// HasMore reports whether the server has pages beyond the last appended.
func (f *Feed[T]) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page < f.pages
}

// NextPage is the page number to request next.
func (f *Feed[T]) NextPage() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page + 1
}

// Reset clears the feed, e.g. when the filter set changes.
func (f *Feed[T]) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	f.seen = make(map[string]struct{})
	f.page = 0
	f.pages = 0
}
