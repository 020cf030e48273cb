// Package mutate coordinates writes against the platform API with the
// shared resource cache. Every mutation settles the cache the same way:
// server-confirmed results are written through, optimistic patches are
// reconciled against the server's answer or rolled back to the exact
// pre-mutation snapshot, and deletions purge the entity and invalidate the
// lists that might still name it.
package mutate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/meridianhq/meridian-go/internal/api"
	"github.com/meridianhq/meridian-go/internal/cache"
	"github.com/meridianhq/meridian-go/internal/metrics"
	"github.com/meridianhq/meridian-go/internal/model"
)

// Cache namespaces shared by the read and write paths.
const (
	NamespaceBlogs    = "blogs"
	NamespaceServices = "services"
	NamespaceContacts = "contacts"
	NamespaceRequests = "service-requests"
)

// ErrNotConfirmed is returned when a deletion is attempted without the
// caller confirming it first. Deletions are never optimistic.
var ErrNotConfirmed = errors.New("mutate: deletion requires confirmation")

// Coordinator serializes mutations per cache key and keeps the cache
// consistent with the server across creates, updates, toggles, and deletes.
type Coordinator struct {
	blogs    *api.BlogClient
	services *api.ServiceClient
	requests *api.ServiceRequestClient
	contacts *api.ContactClient
	cache    *cache.ResourceCache
	log      *slog.Logger
	metrics  *metrics.Recorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options wires the coordinator's collaborators.
type Options struct {
	Blogs    *api.BlogClient
	Services *api.ServiceClient
	Requests *api.ServiceRequestClient
	Contacts *api.ContactClient
	Cache    *cache.ResourceCache
	Logger   *slog.Logger
	Metrics  *metrics.Recorder
}

// New builds a mutation coordinator.
func New(opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{
		blogs:    opts.Blogs,
		services: opts.Services,
		requests: opts.Requests,
		contacts: opts.Contacts,
		cache:    opts.Cache,
		log:      log,
		metrics:  opts.Metrics,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockKey serializes mutations touching the same cache key. Two concurrent
// toggles on one entity must observe each other's writes, not interleave.
func (c *Coordinator) lockKey(key string) func() {
	c.mu.Lock()
	lock, ok := c.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		c.locks[key] = lock
	}
	c.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// CreateBlogResult is the outcome of the two-phase blog create. AssetErr is
// non-nil when the entity was created but the cover upload failed; the
// entity stands either way.
type CreateBlogResult struct {
	Blog     model.Blog
	AssetErr error
}

// CreateBlog creates a blog and then attaches the optional cover image.
// Phase one failing fails the whole operation; phase two failing is
// reported but never undoes the created entity.
func (c *Coordinator) CreateBlog(ctx context.Context, token string, draft api.BlogDraft, cover *api.Upload) (CreateBlogResult, error) {
	blog, err := c.blogs.Create(ctx, token, draft)
	if err != nil {
		return CreateBlogResult{}, err
	}

	result := CreateBlogResult{Blog: blog}
	if cover != nil {
		updated, uploadErr := c.blogs.UploadCover(ctx, token, blog.ID, *cover)
		if uploadErr != nil {
			c.log.Warn("blog created but cover upload failed",
				slog.String("id", blog.ID), slog.Any("error", uploadErr))
			result.AssetErr = uploadErr
		} else {
			result.Blog = updated
		}
	}

	c.settleDetail(ctx, NamespaceBlogs, result.Blog.ID, result.Blog)
	return result, nil
}

// UpdateBlog patches a blog and optionally replaces its cover image with the
// same best-effort asset discipline as create.
func (c *Coordinator) UpdateBlog(ctx context.Context, token, id string, draft api.BlogDraft, cover *api.Upload) (CreateBlogResult, error) {
	unlock := c.lockKey(cache.DetailKey(NamespaceBlogs, id))
	defer unlock()

	blog, err := c.blogs.Update(ctx, token, id, draft)
	if err != nil {
		return CreateBlogResult{}, err
	}

	result := CreateBlogResult{Blog: blog}
	if cover != nil {
		updated, uploadErr := c.blogs.UploadCover(ctx, token, id, *cover)
		if uploadErr != nil {
			c.log.Warn("blog updated but cover upload failed",
				slog.String("id", id), slog.Any("error", uploadErr))
			result.AssetErr = uploadErr
		} else {
			result.Blog = updated
		}
	}

	c.settleDetail(ctx, NamespaceBlogs, id, result.Blog)
	return result, nil
}

// DeleteBlog removes a blog after explicit confirmation, then purges it from
// the cache.
func (c *Coordinator) DeleteBlog(ctx context.Context, token, id string, confirmed bool) (api.DeleteResult, error) {
	return c.confirmedDelete(ctx, NamespaceBlogs, id, confirmed, func() (api.DeleteResult, error) {
		return c.blogs.Delete(ctx, token, id)
	})
}

// ToggleBlogLike flips the actor's like optimistically: the cached entity is
// patched first, the server is asked second, and a rejection restores the
// exact cached bytes from before the patch.
func (c *Coordinator) ToggleBlogLike(ctx context.Context, token, id, actorID string) (model.Blog, error) {
	key := cache.DetailKey(NamespaceBlogs, id)
	unlock := c.lockKey(key)
	defer unlock()

	snapshot, hadSnapshot := c.snapshot(ctx, key)
	if hadSnapshot {
		var cached model.Blog
		if err := json.Unmarshal(snapshot, &cached); err == nil {
			if model.LikedBy(cached, actorID) {
				likes := make([]string, 0, len(cached.Likes))
				for _, liked := range cached.Likes {
					if liked != actorID {
						likes = append(likes, liked)
					}
				}
				cached.Likes = likes
			} else {
				cached.Likes = append(cached.Likes, actorID)
			}
			c.applyOptimistic(ctx, key, cached)
		}
	}

	blog, err := c.blogs.ToggleLike(ctx, token, id)
	if err != nil {
		c.rollback(ctx, NamespaceBlogs, key, snapshot, hadSnapshot)
		return model.Blog{}, err
	}

	c.settleDetail(ctx, NamespaceBlogs, id, blog)
	return blog, nil
}

// CreateServiceResult is the outcome of the two-phase service create.
type CreateServiceResult struct {
	Service  model.Service
	AssetErr error
}

// CreateService creates a service and then attaches the optional thumbnail,
// best effort.
func (c *Coordinator) CreateService(ctx context.Context, token string, draft api.ServiceDraft, thumbnail *api.Upload) (CreateServiceResult, error) {
	service, err := c.services.Create(ctx, token, draft)
	if err != nil {
		return CreateServiceResult{}, err
	}

	result := CreateServiceResult{Service: service}
	if thumbnail != nil {
		updated, uploadErr := c.services.UploadThumbnail(ctx, token, service.ID, *thumbnail)
		if uploadErr != nil {
			c.log.Warn("service created but thumbnail upload failed",
				slog.String("id", service.ID), slog.Any("error", uploadErr))
			result.AssetErr = uploadErr
		} else {
			result.Service = updated
		}
	}

	c.settleDetail(ctx, NamespaceServices, result.Service.ID, result.Service)
	return result, nil
}

// UpdateService patches a service and optionally replaces its thumbnail.
func (c *Coordinator) UpdateService(ctx context.Context, token, id string, draft api.ServiceDraft, thumbnail *api.Upload) (CreateServiceResult, error) {
	unlock := c.lockKey(cache.DetailKey(NamespaceServices, id))
	defer unlock()

	service, err := c.services.Update(ctx, token, id, draft)
	if err != nil {
		return CreateServiceResult{}, err
	}

	result := CreateServiceResult{Service: service}
	if thumbnail != nil {
		updated, uploadErr := c.services.UploadThumbnail(ctx, token, id, *thumbnail)
		if uploadErr != nil {
			c.log.Warn("service updated but thumbnail upload failed",
				slog.String("id", id), slog.Any("error", uploadErr))
			result.AssetErr = uploadErr
		} else {
			result.Service = updated
		}
	}

	c.settleDetail(ctx, NamespaceServices, id, result.Service)
	return result, nil
}

// DeleteService removes a service after explicit confirmation.
func (c *Coordinator) DeleteService(ctx context.Context, token, id string, confirmed bool) (api.DeleteResult, error) {
	return c.confirmedDelete(ctx, NamespaceServices, id, confirmed, func() (api.DeleteResult, error) {
		return c.services.Delete(ctx, token, id)
	})
}

// ToggleServiceStatus flips a service's active flag optimistically with
// exact-snapshot rollback on rejection.
func (c *Coordinator) ToggleServiceStatus(ctx context.Context, token, id string) (model.Service, error) {
	key := cache.DetailKey(NamespaceServices, id)
	unlock := c.lockKey(key)
	defer unlock()

	snapshot, hadSnapshot := c.snapshot(ctx, key)
	if hadSnapshot {
		var cached model.Service
		if err := json.Unmarshal(snapshot, &cached); err == nil {
			cached.Active = !cached.Active
			c.applyOptimistic(ctx, key, cached)
		}
	}

	service, err := c.services.ToggleStatus(ctx, token, id)
	if err != nil {
		c.rollback(ctx, NamespaceServices, key, snapshot, hadSnapshot)
		return model.Service{}, err
	}

	c.settleDetail(ctx, NamespaceServices, id, service)
	return service, nil
}

// SubmitContact sends the public contact form. The server enforces the
// submission quota; its rejection passes through untouched so the caller
// sees the server's own message.
func (c *Coordinator) SubmitContact(ctx context.Context, form api.ContactForm) (model.Contact, error) {
	contact, err := c.contacts.Create(ctx, form)
	if err != nil {
		return model.Contact{}, err
	}
	c.invalidateLists(ctx, NamespaceContacts)
	return contact, nil
}

// UpdateContactStatus moves a contact through triage (admin only).
func (c *Coordinator) UpdateContactStatus(ctx context.Context, token, id, status string) (model.Contact, error) {
	unlock := c.lockKey(cache.DetailKey(NamespaceContacts, id))
	defer unlock()

	contact, err := c.contacts.Update(ctx, token, id, status)
	if err != nil {
		return model.Contact{}, err
	}
	c.settleDetail(ctx, NamespaceContacts, id, contact)
	return contact, nil
}

// DeleteContact removes a contact after explicit confirmation (admin only).
func (c *Coordinator) DeleteContact(ctx context.Context, token, id string, confirmed bool) (api.DeleteResult, error) {
	return c.confirmedDelete(ctx, NamespaceContacts, id, confirmed, func() (api.DeleteResult, error) {
		return c.contacts.Delete(ctx, token, id)
	})
}

// CreateRequest opens a service request and optionally attaches a first
// file, best effort.
func (c *Coordinator) CreateRequest(ctx context.Context, token string, draft api.ServiceRequestDraft, attachment *api.Upload) (model.ServiceRequest, error) {
	request, err := c.requests.Create(ctx, token, draft)
	if err != nil {
		return model.ServiceRequest{}, err
	}

	if attachment != nil {
		updated, uploadErr := c.requests.UploadAttachment(ctx, token, request.ID, *attachment)
		if uploadErr != nil {
			c.log.Warn("request created but attachment upload failed",
				slog.String("id", request.ID), slog.Any("error", uploadErr))
		} else {
			request = updated
		}
	}

	c.settleDetail(ctx, NamespaceRequests, request.ID, request)
	return request, nil
}

// UpdateRequestDetails patches the caller's own request.
func (c *Coordinator) UpdateRequestDetails(ctx context.Context, token, id, details string) (model.ServiceRequest, error) {
	unlock := c.lockKey(cache.DetailKey(NamespaceRequests, id))
	defer unlock()

	request, err := c.requests.Update(ctx, token, id, details)
	if err != nil {
		return model.ServiceRequest{}, err
	}
	c.settleDetail(ctx, NamespaceRequests, id, request)
	return request, nil
}

// DeleteRequest withdraws a request after explicit confirmation.
func (c *Coordinator) DeleteRequest(ctx context.Context, token, id string, confirmed bool) (api.DeleteResult, error) {
	return c.confirmedDelete(ctx, NamespaceRequests, id, confirmed, func() (api.DeleteResult, error) {
		return c.requests.Delete(ctx, token, id)
	})
}

// AddRequestAttachment uploads a further file onto an existing request.
func (c *Coordinator) AddRequestAttachment(ctx context.Context, token, id string, upload api.Upload) (model.ServiceRequest, error) {
	unlock := c.lockKey(cache.DetailKey(NamespaceRequests, id))
	defer unlock()

	request, err := c.requests.UploadAttachment(ctx, token, id, upload)
	if err != nil {
		return model.ServiceRequest{}, err
	}
	c.settleDetail(ctx, NamespaceRequests, id, request)
	return request, nil
}

// RemoveRequestAttachment deletes one uploaded file by its storage handle.
func (c *Coordinator) RemoveRequestAttachment(ctx context.Context, token, id, publicID string) (model.ServiceRequest, error) {
	unlock := c.lockKey(cache.DetailKey(NamespaceRequests, id))
	defer unlock()

	request, err := c.requests.DeleteAttachment(ctx, token, id, publicID)
	if err != nil {
		return model.ServiceRequest{}, err
	}
	c.settleDetail(ctx, NamespaceRequests, id, request)
	return request, nil
}

// SetRequestStatus transitions a request's status optimistically (admin
// only) with exact-snapshot rollback on rejection.
func (c *Coordinator) SetRequestStatus(ctx context.Context, token, id, status string) (model.ServiceRequest, error) {
	key := cache.DetailKey(NamespaceRequests, id)
	unlock := c.lockKey(key)
	defer unlock()

	snapshot, hadSnapshot := c.snapshot(ctx, key)
	if hadSnapshot {
		var cached model.ServiceRequest
		if err := json.Unmarshal(snapshot, &cached); err == nil {
			cached.Status = status
			c.applyOptimistic(ctx, key, cached)
		}
	}

	request, err := c.requests.AdminSetStatus(ctx, token, id, status)
	if err != nil {
		c.rollback(ctx, NamespaceRequests, key, snapshot, hadSnapshot)
		return model.ServiceRequest{}, err
	}

	c.settleDetail(ctx, NamespaceRequests, id, request)
	return request, nil
}

// confirmedDelete runs the uniform delete flow: refuse without
// confirmation, call the server, and on success purge the detail entry and
// invalidate the namespace's lists.
func (c *Coordinator) confirmedDelete(ctx context.Context, namespace, id string, confirmed bool, call func() (api.DeleteResult, error)) (api.DeleteResult, error) {
	if !confirmed {
		return api.DeleteResult{}, ErrNotConfirmed
	}
	key := cache.DetailKey(namespace, id)
	unlock := c.lockKey(key)
	defer unlock()

	result, err := call()
	if err != nil {
		return api.DeleteResult{}, err
	}

	if err := c.cache.RemoveEntry(ctx, key); err != nil {
		c.log.Warn("deleted entity still cached", slog.String("key", key), slog.Any("error", err))
	}
	c.invalidateLists(ctx, namespace)
	return result, nil
}

// snapshot captures the exact cached bytes for rollback. Missing entries
// are fine: there is nothing to restore then.
func (c *Coordinator) snapshot(ctx context.Context, key string) (json.RawMessage, bool) {
	entry, ok, err := c.cache.Lookup(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	return entry.Payload, true
}

// applyOptimistic writes the locally patched entity so readers see the
// intended outcome before the server confirms it.
func (c *Coordinator) applyOptimistic(ctx context.Context, key string, value any) {
	if err := c.cache.SetEntry(ctx, key, value, c.cache.DetailFreshness()); err != nil {
		c.log.Warn("optimistic patch not cached", slog.String("key", key), slog.Any("error", err))
	}
}

// rollback restores the pre-mutation snapshot byte for byte, or removes the
// optimistic entry when there was nothing cached before.
func (c *Coordinator) rollback(ctx context.Context, namespace, key string, snapshot json.RawMessage, hadSnapshot bool) {
	c.metrics.ObserveRollback(namespace)
	if !hadSnapshot {
		if err := c.cache.RemoveEntry(ctx, key); err != nil {
			c.log.Warn("rollback cleanup failed", slog.String("key", key), slog.Any("error", err))
		}
		return
	}
	if err := c.cache.SetEntryRaw(ctx, key, snapshot, c.cache.DetailFreshness()); err != nil {
		c.log.Warn("rollback restore failed", slog.String("key", key), slog.Any("error", err))
	}
}

// settleDetail writes the server-confirmed entity through and invalidates
// the namespace's lists, which may order or filter differently now.
func (c *Coordinator) settleDetail(ctx context.Context, namespace, id string, value any) {
	if err := c.cache.SetEntry(ctx, cache.DetailKey(namespace, id), value, c.cache.DetailFreshness()); err != nil {
		c.log.Warn("confirmed entity not cached",
			slog.String("namespace", namespace), slog.String("id", id), slog.Any("error", err))
	}
	c.invalidateLists(ctx, namespace)
}

func (c *Coordinator) invalidateLists(ctx context.Context, namespace string) {
	if err := c.cache.Invalidate(ctx, cache.ListPrefix(namespace)); err != nil {
		c.log.Warn("list invalidation failed",
			slog.String("namespace", namespace), slog.Any("error", err))
	}
}
