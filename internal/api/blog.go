package api

import (
	"context"
	"net/http"

	"github.com/meridianhq/meridian-go/internal/model"
)

// BlogDraft is the writable subset of a blog sent on create and update.
// Nil slices are normalized server-side; the server always answers with
// tags present (possibly empty).
type BlogDraft struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags,omitempty"`
	Status  string   `json:"status,omitempty"`
}

// BlogList is the paged list response for blogs.
type BlogList struct {
	Items []model.Blog   `json:"items"`
	Page  model.PageInfo `json:"pageInfo"`
}

// BlogClient covers the public and authoring blog endpoints.
type BlogClient struct {
	c *Client
}

// NewBlog builds the blog domain client over the shared transport core.
func NewBlog(c *Client) *BlogClient {
	return &BlogClient{c: c}
}

// Create submits the non-asset fields of a new blog. Cover images are
// attached afterwards with UploadCover; see the two-phase flow in mutate.
func (b *BlogClient) Create(ctx context.Context, token string, draft BlogDraft) (model.Blog, error) {
	var out model.Blog
	err := b.c.doJSON(ctx, domainBlog, http.MethodPost, "/blog", token, draft, &out)
	return out, err
}

// List fetches a page of blogs matching the filters.
func (b *BlogClient) List(ctx context.Context, params ListParams) (BlogList, error) {
	var out BlogList
	err := b.c.doJSON(ctx, domainBlog, http.MethodGet, listQuery("/blog", params), "", nil, &out)
	return out, err
}

// Get fetches one blog by id.
func (b *BlogClient) Get(ctx context.Context, id string) (model.Blog, error) {
	var out model.Blog
	err := b.c.doJSON(ctx, domainBlog, http.MethodGet, "/blog/"+id, "", nil, &out)
	return out, err
}

// Update patches the non-asset fields of a blog.
func (b *BlogClient) Update(ctx context.Context, token, id string, draft BlogDraft) (model.Blog, error) {
	var out model.Blog
	err := b.c.doJSON(ctx, domainBlog, http.MethodPatch, "/blog/"+id, token, draft, &out)
	return out, err
}

// Delete removes a blog by id.
func (b *BlogClient) Delete(ctx context.Context, token, id string) (DeleteResult, error) {
	var out DeleteResult
	err := b.c.doJSON(ctx, domainBlog, http.MethodDelete, "/blog/"+id, token, nil, &out)
	return out, err
}

// ToggleLike flips the caller's like on a blog and returns the server's
// authoritative entity.
func (b *BlogClient) ToggleLike(ctx context.Context, token, id string) (model.Blog, error) {
	var out model.Blog
	err := b.c.doJSON(ctx, domainBlog, http.MethodPost, "/blog/"+id+"/like", token, nil, &out)
	return out, err
}

// UploadCover replaces a blog's cover image via multipart upload.
func (b *BlogClient) UploadCover(ctx context.Context, token, id string, upload Upload) (model.Blog, error) {
	if upload.Field == "" {
		upload.Field = "coverImage"
	}
	var out model.Blog
	err := b.c.doMultipart(ctx, domainBlog, http.MethodPatch, "/blog/"+id+"/cover-image", token, nil, upload, &out)
	return out, err
}

// ByAuthor fetches a page of blogs written by one author.
func (b *BlogClient) ByAuthor(ctx context.Context, authorID string, params ListParams) (BlogList, error) {
	var out BlogList
	err := b.c.doJSON(ctx, domainBlog, http.MethodGet, listQuery("/blog/author/"+authorID, params), "", nil, &out)
	return out, err
}
