package cache

import (
	"testing"

	"github.com/meridianhq/meridian-go/internal/model"
)

func blogID(b model.Blog) string { return b.ID }

func TestFeedDeduplicatesAcrossPages(t *testing.T) {
	feed := NewFeed(blogID)

	feed.Append([]model.Blog{{ID: "b-1"}, {ID: "b-2"}}, 1, 3)
	// Page 2 overlaps page 1: b-2 drifted while paging.
	feed.Append([]model.Blog{{ID: "b-2"}, {ID: "b-3"}}, 2, 3)

	items := feed.Items()
	if len(items) != 3 {
		t.Fatalf("expected 3 unique items, got %d", len(items))
	}
	seen := map[string]int{}
	for _, item := range items {
		seen[item.ID]++
	}
	for id, count := range seen {
		if count != 1 {
			t.Fatalf("expected %s exactly once, got %d", id, count)
		}
	}
	if feed.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", feed.Len())
	}
}

func TestFeedHasMoreTracksServerPages(t *testing.T) {
	feed := NewFeed(blogID)

	feed.Append([]model.Blog{{ID: "b-1"}}, 1, 2)
	if !feed.HasMore() {
		t.Fatalf("expected more pages after page 1 of 2")
	}
	if feed.NextPage() != 2 {
		t.Fatalf("expected next page 2, got %d", feed.NextPage())
	}

	feed.Append([]model.Blog{{ID: "b-2"}}, 2, 2)
	if feed.HasMore() {
		t.Fatalf("expected no more pages after page 2 of 2")
	}
}

func TestFeedReset(t *testing.T) {
	feed := NewFeed(blogID)
	feed.Append([]model.Blog{{ID: "b-1"}}, 1, 1)
	feed.Reset()
	if feed.Len() != 0 || feed.HasMore() {
		t.Fatalf("expected empty feed after reset")
	}
	feed.Append([]model.Blog{{ID: "b-1"}}, 1, 1)
	if feed.Len() != 1 {
		t.Fatalf("expected reset to forget seen ids")
	}
}
