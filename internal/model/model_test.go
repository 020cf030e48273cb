package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadingTimeRoundsUp(t *testing.T) {
	require.Equal(t, 0, ReadingTime(Blog{}))
	require.Equal(t, 1, ReadingTime(Blog{Content: "a short post"}))

	long := strings.Repeat("word ", 201)
	require.Equal(t, 2, ReadingTime(Blog{Content: long}))
}

func TestLikeSelectors(t *testing.T) {
	blog := Blog{Likes: []string{"u1", "u2"}}
	require.Equal(t, 2, LikeCount(blog))
	require.True(t, LikedBy(blog, "u1"))
	require.False(t, LikedBy(blog, "u3"))
}

func TestCacheBustVersionsAssetURL(t *testing.T) {
	busted := CacheBust("https://cdn.meridian.dev/covers/abc.png", "tok-1")
	require.Equal(t, "https://cdn.meridian.dev/covers/abc.png?v=tok-1", busted)

	// An existing version must be replaced, not accumulated.
	again := CacheBust(busted, "tok-2")
	require.Equal(t, "https://cdn.meridian.dev/covers/abc.png?v=tok-2", again)

	require.Equal(t, "", CacheBust("", "tok"))
	require.Equal(t, "https://x/y", CacheBust("https://x/y", ""))
}

func TestAssetURLSelectorsReVersionPerCall(t *testing.T) {
	blog := Blog{CoverImage: "https://cdn.meridian.dev/covers/abc.png"}
	first := CoverImageURL(blog)
	second := CoverImageURL(blog)
	require.Contains(t, first, "v=")
	require.NotEqual(t, first, second, "each render must defeat stale HTTP caches")

	require.Equal(t, "", ThumbnailURL(Service{}))
}

func TestPageInfoHasMore(t *testing.T) {
	require.True(t, PageInfo{Page: 1, Pages: 3}.HasMore())
	require.False(t, PageInfo{Page: 3, Pages: 3}.HasMore())
	require.False(t, PageInfo{}.HasMore())
}
