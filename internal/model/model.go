// Package model holds the domain entities served by the Meridian platform
// API together with the derived, display-only values the client computes
// over them. Every identity in this package is server-assigned; the client
// never invents ids.
package model

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Actor is the authenticated identity behind a session (an admin user or a
// client contact). The profile is persisted alongside tokens so the UI can
// render without an extra round trip after bootstrap.
type Actor struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// PageInfo carries the server-reported pagination metadata returned with
// every list response.
type PageInfo struct {
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Total int `json:"total"`
	Limit int `json:"limit"`
}

// HasMore reports whether further pages exist after the current one.
func (p PageInfo) HasMore() bool {
	return p.Page < p.Pages
}

// Blog is a published or draft article. Likes holds the ids of actors that
// liked the post; the authoritative count always comes from the server.
type Blog struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Tags       []string  `json:"tags"`
	CoverImage string    `json:"coverImage,omitempty"`
	Likes      []string  `json:"likes"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Contact is a message submitted through the public contact form. Status is
// managed by admins (new, in-progress, resolved).
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service is a catalog entry clients can request.
type Service struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Active      bool      `json:"active"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Attachment is a client-uploaded file bound to a service request. PublicID
// is the storage handle used to delete the asset.
type Attachment struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	Name     string `json:"name,omitempty"`
}

// ServiceRequest is a client's ask against a catalog service. Status moves
// through pending, approved, in-progress, completed, rejected under admin
// control.
type ServiceRequest struct {
	ID          string       `json:"id"`
	ServiceID   string       `json:"serviceId"`
	ClientID    string       `json:"clientId"`
	Details     string       `json:"details"`
	Status      string       `json:"status"`
	Attachments []Attachment `json:"attachments"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// readingWordsPerMinute is the assumed reading speed for the display-only
// reading time estimate.
const readingWordsPerMinute = 200

// ReadingTime estimates the minutes needed to read a blog. Derived for
// display only and never sent back to the server.
func ReadingTime(b Blog) int {
	words := len(strings.Fields(b.Content))
	if words == 0 {
		return 0
	}
	minutes := (words + readingWordsPerMinute - 1) / readingWordsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// LikeCount returns the number of likes on a blog.
func LikeCount(b Blog) int {
	return len(b.Likes)
}

// LikedBy reports whether the given actor already liked the blog.
func LikedBy(b Blog, actorID string) bool {
	for _, id := range b.Likes {
		if id == actorID {
			return true
		}
	}
	return false
}

// CacheBust appends a client-generated version token to an asset URL. The
// server keeps the same path when the underlying bytes change, so every
// fresh fetch must re-version the URL to defeat browser and CDN caches.
// Invalid URLs are returned unchanged.
func CacheBust(rawURL, token string) string {
	if rawURL == "" || token == "" {
		return rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	values := parsed.Query()
	values.Set("v", token)
	parsed.RawQuery = values.Encode()
	return parsed.String()
}

// NewAssetVersion returns a fresh cache-busting token. Each fresh fetch
// gets its own token so a re-rendered asset URL always misses stale HTTP
// caches.
func NewAssetVersion() string {
	return uuid.NewString()
}

// CoverImageURL returns a display-ready, freshly versioned cover URL.
func CoverImageURL(b Blog) string {
	return CacheBust(b.CoverImage, NewAssetVersion())
}

// ThumbnailURL returns a display-ready, freshly versioned thumbnail URL.
func ThumbnailURL(s Service) string {
	return CacheBust(s.Thumbnail, NewAssetVersion())
}
