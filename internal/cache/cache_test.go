package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestMemoryStoreLookup(t *testing.T) {
	store := NewMemory(time.Minute)
	ctx := context.Background()

	now := time.Now().UTC()
	entry := Entry{
		Payload:   json.RawMessage(`{"id":"b-1"}`),
		FetchedAt: now,
		StaleAt:   now.Add(5 * time.Minute),
		ExpiresAt: now.Add(time.Minute),
	}

	if err := store.Store(ctx, "blogs:detail:b-1", entry); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, ok, err := store.Lookup(ctx, "blogs:detail:b-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if string(got.Payload) != `{"id":"b-1"}` {
		t.Fatalf("unexpected payload: %s", got.Payload)
	}

	size, err := store.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 1 {
		t.Fatalf("expected size 1, got %d", size)
	}

	if err := store.DeletePrefix(ctx, "blogs:"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	_, ok, err = store.Lookup(ctx, "blogs:detail:b-1")
	if err != nil {
		t.Fatalf("lookup after delete: %v", err)
	}
	if ok {
		t.Fatalf("expected delete to remove key")
	}

	if err := store.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMemoryStoreExactDelete(t *testing.T) {
	store := NewMemory(time.Minute)
	ctx := context.Background()

	now := time.Now().UTC()
	entry := Entry{Payload: json.RawMessage(`1`), FetchedAt: now, StaleAt: now.Add(time.Minute), ExpiresAt: now.Add(time.Minute)}
	if err := store.Store(ctx, "blogs:detail:1", entry); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := store.Store(ctx, "blogs:detail:12", entry); err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := store.Delete(ctx, "blogs:detail:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Lookup(ctx, "blogs:detail:1"); ok {
		t.Fatalf("expected exact key removed")
	}
	// Deleting one id must not take out another whose id shares the prefix.
	if _, ok, _ := store.Lookup(ctx, "blogs:detail:12"); !ok {
		t.Fatalf("expected sibling key to survive")
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemory(time.Minute)
	ctx := context.Background()

	now := time.Now().UTC()
	entry := Entry{
		Payload:   json.RawMessage(`{}`),
		FetchedAt: now,
		StaleAt:   now,
		ExpiresAt: now.Add(10 * time.Millisecond),
	}
	if err := store.Store(ctx, "key", entry); err != nil {
		t.Fatalf("store: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	_, ok, err := store.Lookup(ctx, "key")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestRedisStoreLookup(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	store, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	ctx := context.Background()

	now := time.Now().UTC()
	entry := Entry{
		Payload:   json.RawMessage(`{"id":"s-1","active":true}`),
		FetchedAt: now,
		StaleAt:   now.Add(5 * time.Minute),
		ExpiresAt: now.Add(500 * time.Millisecond),
	}

	if err := store.Store(ctx, "services:detail:s-1", entry); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, ok, err := store.Lookup(ctx, "services:detail:s-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatalf("expected redis cache hit")
	}
	if string(got.Payload) != string(entry.Payload) {
		t.Fatalf("unexpected payload: %s", got.Payload)
	}

	server.FastForward(time.Second)
	_, ok, err = store.Lookup(ctx, "services:detail:s-1")
	if err != nil {
		t.Fatalf("lookup after ttl: %v", err)
	}
	if ok {
		t.Fatalf("expected redis entry to expire")
	}

	if err := store.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRedisStoreDeletePrefix(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	store, err := NewRedis(RedisConfig{Address: server.Addr()})
	if err != nil {
		t.Fatalf("new redis: %v", err)
	}
	ctx := context.Background()

	now := time.Now().UTC()
	entry := Entry{Payload: json.RawMessage(`{}`), FetchedAt: now, StaleAt: now.Add(time.Minute), ExpiresAt: now.Add(time.Minute)}
	for _, key := range []string{"blogs:list:a", "blogs:list:b", "blogs:detail:1", "services:detail:1"} {
		if err := store.Store(ctx, key, entry); err != nil {
			t.Fatalf("store %s: %v", key, err)
		}
	}

	if err := store.DeletePrefix(ctx, "blogs:list:"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	for _, key := range []string{"blogs:list:a", "blogs:list:b"} {
		if _, ok, _ := store.Lookup(ctx, key); ok {
			t.Fatalf("expected %s removed", key)
		}
	}
	for _, key := range []string{"blogs:detail:1", "services:detail:1"} {
		if _, ok, _ := store.Lookup(ctx, key); !ok {
			t.Fatalf("expected %s to survive", key)
		}
	}

	if err := store.Delete(ctx, "blogs:detail:1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Lookup(ctx, "blogs:detail:1"); ok {
		t.Fatalf("expected exact delete to remove key")
	}
}
