package mutate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian-go/internal/api"
	"github.com/meridianhq/meridian-go/internal/cache"
	"github.com/meridianhq/meridian-go/internal/model"
)

type fixture struct {
	coordinator *Coordinator
	cache       *cache.ResourceCache
	server      *httptest.Server
	deleteCalls atomic.Int64
}

// newFixture stands up a fake platform API plus a coordinator over a memory
// cache. Handlers cover exactly the endpoints the tests exercise.
func newFixture(t *testing.T, coverFails, likeFails, toggleFails bool) *fixture {
	t.Helper()
	f := &fixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /blog", func(w http.ResponseWriter, r *http.Request) {
		var draft api.BlogDraft
		require.NoError(t, json.NewDecoder(r.Body).Decode(&draft))
		blog := model.Blog{
			ID:      "b-1",
			Title:   draft.Title,
			Content: draft.Content,
			Tags:    []string{},
			Likes:   []string{},
			Status:  "draft",
		}
		if draft.Tags != nil {
			blog.Tags = draft.Tags
		}
		writeJSON(t, w, http.StatusCreated, blog)
	})
	mux.HandleFunc("PATCH /blog/{id}/cover-image", func(w http.ResponseWriter, r *http.Request) {
		if coverFails {
			writeJSON(t, w, http.StatusInternalServerError, map[string]string{"message": "storage unavailable"})
			return
		}
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
		writeJSON(t, w, http.StatusOK, model.Blog{
			ID: r.PathValue("id"), Title: "Hello", Content: "World",
			Tags: []string{}, Likes: []string{}, CoverImage: "https://cdn.example.com/covers/b-1.png",
		})
	})
	mux.HandleFunc("POST /blog/{id}/like", func(w http.ResponseWriter, r *http.Request) {
		if likeFails {
			writeJSON(t, w, http.StatusConflict, map[string]string{"message": "blog is locked"})
			return
		}
		writeJSON(t, w, http.StatusOK, model.Blog{
			ID: r.PathValue("id"), Title: "Hello", Tags: []string{}, Likes: []string{"a-1"},
		})
	})
	mux.HandleFunc("DELETE /blog/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.deleteCalls.Add(1)
		writeJSON(t, w, http.StatusOK, api.DeleteResult{Success: true, Message: "blog deleted"})
	})
	mux.HandleFunc("PATCH /services/{id}/toggle-status", func(w http.ResponseWriter, r *http.Request) {
		if toggleFails {
			writeJSON(t, w, http.StatusUnprocessableEntity, map[string]string{"message": "service has open requests"})
			return
		}
		writeJSON(t, w, http.StatusOK, model.Service{ID: r.PathValue("id"), Title: "Branding", Active: true, Tags: []string{}})
	})
	mux.HandleFunc("POST /contact", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusCreated, model.Contact{ID: "c-1", Status: "new"})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	client, err := api.New(f.server.URL, api.Options{ThrottleLimit: 1000})
	require.NoError(t, err)

	f.cache = cache.NewResource(cache.NewMemory(time.Minute), cache.Options{EntryTTL: time.Minute})
	f.coordinator = New(Options{
		Blogs:    api.NewBlog(client),
		Services: api.NewService(client),
		Requests: api.NewServiceRequest(client),
		Contacts: api.NewContact(client),
		Cache:    f.cache,
	})
	return f
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestCreateBlogSurvivesCoverUploadFailure(t *testing.T) {
	f := newFixture(t, true, false, false)
	ctx := context.Background()

	result, err := f.coordinator.CreateBlog(ctx, "tok", api.BlogDraft{Title: "Hello", Content: "World"}, &api.Upload{
		Name: "cover.png", Body: strings.NewReader("png-bytes"),
	})
	require.NoError(t, err, "entity creation must stand when only the asset phase fails")
	require.Equal(t, "b-1", result.Blog.ID)
	require.Error(t, result.AssetErr)
	require.Empty(t, result.Blog.CoverImage)

	// The created entity must be visible through the cache immediately.
	entry, ok, err := f.cache.Lookup(ctx, cache.DetailKey(NamespaceBlogs, "b-1"))
	require.NoError(t, err)
	require.True(t, ok)
	var cached model.Blog
	require.NoError(t, json.Unmarshal(entry.Payload, &cached))
	require.Equal(t, "Hello", cached.Title)
}

func TestCreateBlogAttachesCover(t *testing.T) {
	f := newFixture(t, false, false, false)

	result, err := f.coordinator.CreateBlog(context.Background(), "tok",
		api.BlogDraft{Title: "Hello", Content: "World"},
		&api.Upload{Name: "cover.png", Body: strings.NewReader("png-bytes")})
	require.NoError(t, err)
	require.NoError(t, result.AssetErr)
	require.NotEmpty(t, result.Blog.CoverImage)
}

func TestToggleBlogLikeRollsBackExactSnapshot(t *testing.T) {
	f := newFixture(t, false, true, false)
	ctx := context.Background()
	key := cache.DetailKey(NamespaceBlogs, "b-1")

	// Field order and spacing in the snapshot are deliberate: rollback must
	// restore these exact bytes, not a re-encoded equivalent.
	snapshot := json.RawMessage(`{"id":"b-1","title":"Hello","likes":["a-9"],"tags":[]}`)
	require.NoError(t, f.cache.SetEntryRaw(ctx, key, snapshot, time.Minute))

	_, err := f.coordinator.ToggleBlogLike(ctx, "tok", "b-1", "a-1")
	require.Error(t, err)
	require.True(t, api.IsConflict(err))

	entry, ok, lookupErr := f.cache.Lookup(ctx, key)
	require.NoError(t, lookupErr)
	require.True(t, ok)
	require.Equal(t, string(snapshot), string(entry.Payload))
}

func TestToggleBlogLikeSettlesServerEntity(t *testing.T) {
	f := newFixture(t, false, false, false)
	ctx := context.Background()
	key := cache.DetailKey(NamespaceBlogs, "b-1")
	require.NoError(t, f.cache.SetEntry(ctx, key, model.Blog{ID: "b-1", Likes: []string{}}, time.Minute))

	blog, err := f.coordinator.ToggleBlogLike(ctx, "tok", "b-1", "a-1")
	require.NoError(t, err)
	require.True(t, model.LikedBy(blog, "a-1"))

	entry, ok, lookupErr := f.cache.Lookup(ctx, key)
	require.NoError(t, lookupErr)
	require.True(t, ok)
	var cached model.Blog
	require.NoError(t, json.Unmarshal(entry.Payload, &cached))
	require.Equal(t, []string{"a-1"}, cached.Likes)
}

func TestToggleServiceStatusRollsBack(t *testing.T) {
	f := newFixture(t, false, false, true)
	ctx := context.Background()
	key := cache.DetailKey(NamespaceServices, "s-1")
	require.NoError(t, f.cache.SetEntry(ctx, key, model.Service{ID: "s-1", Active: false}, time.Minute))

	_, err := f.coordinator.ToggleServiceStatus(ctx, "tok", "s-1")
	require.Error(t, err)
	require.True(t, api.IsValidation(err))

	entry, ok, lookupErr := f.cache.Lookup(ctx, key)
	require.NoError(t, lookupErr)
	require.True(t, ok)
	var cached model.Service
	require.NoError(t, json.Unmarshal(entry.Payload, &cached))
	require.False(t, cached.Active, "rollback must restore the pre-toggle state")
}

func TestDeleteBlogLifecycle(t *testing.T) {
	f := newFixture(t, false, false, false)
	ctx := context.Background()

	result, err := f.coordinator.CreateBlog(ctx, "tok", api.BlogDraft{Title: "Hello", Content: "World"}, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Blog.Tags, "server normalizes absent tags to an empty list")
	require.Len(t, result.Blog.Tags, 0)

	// Seed a list entry so the delete's invalidation is observable.
	listKey := cache.ListKey(NamespaceBlogs, map[string]string{"page": "1"})
	require.NoError(t, f.cache.SetEntry(ctx, listKey, []model.Blog{result.Blog}, time.Minute))

	// Unconfirmed deletion never reaches the server.
	_, err = f.coordinator.DeleteBlog(ctx, "tok", result.Blog.ID, false)
	require.ErrorIs(t, err, ErrNotConfirmed)
	require.Zero(t, f.deleteCalls.Load())

	deleted, err := f.coordinator.DeleteBlog(ctx, "tok", result.Blog.ID, true)
	require.NoError(t, err)
	require.True(t, deleted.Success)
	require.Equal(t, int64(1), f.deleteCalls.Load())

	_, ok, err := f.cache.Lookup(ctx, cache.DetailKey(NamespaceBlogs, result.Blog.ID))
	require.NoError(t, err)
	require.False(t, ok, "deleted entity must leave the cache")
	_, ok, err = f.cache.Lookup(ctx, listKey)
	require.NoError(t, err)
	require.False(t, ok, "lists naming the entity must be invalidated")
}

func TestSubmitContactInvalidatesLists(t *testing.T) {
	f := newFixture(t, false, false, false)
	ctx := context.Background()

	listKey := cache.ListKey(NamespaceContacts, nil)
	require.NoError(t, f.cache.SetEntry(ctx, listKey, []model.Contact{}, time.Minute))

	contact, err := f.coordinator.SubmitContact(ctx, api.ContactForm{
		Name: "Ada", Email: "ada@example.com", Subject: "Hi", Message: "Hello",
	})
	require.NoError(t, err)
	require.Equal(t, "c-1", contact.ID)

	_, ok, err := f.cache.Lookup(ctx, listKey)
	require.NoError(t, err)
	require.False(t, ok)
}
