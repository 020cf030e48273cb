package api

import (
	"context"
	"net/http"

	"github.com/meridianhq/meridian-go/internal/model"
)

// ServiceDraft is the writable subset of a catalog service.
type ServiceDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	Price       float64  `json:"price,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ServiceList is the paged list response for services.
type ServiceList struct {
	Items []model.Service `json:"items"`
	Page  model.PageInfo  `json:"pageInfo"`
}

// ServiceClient covers the services catalog endpoints.
type ServiceClient struct {
	c *Client
}

// NewService builds the services domain client over the shared transport core.
func NewService(c *Client) *ServiceClient {
	return &ServiceClient{c: c}
}

// Create submits the non-asset fields of a new service. Thumbnails attach
// afterwards with UploadThumbnail; see the two-phase flow in mutate.
func (s *ServiceClient) Create(ctx context.Context, token string, draft ServiceDraft) (model.Service, error) {
	var out model.Service
	err := s.c.doJSON(ctx, domainService, http.MethodPost, "/services", token, draft, &out)
	return out, err
}

// List fetches a page of services matching the filters.
func (s *ServiceClient) List(ctx context.Context, params ListParams) (ServiceList, error) {
	var out ServiceList
	err := s.c.doJSON(ctx, domainService, http.MethodGet, listQuery("/services", params), "", nil, &out)
	return out, err
}

// Get fetches one service by id.
func (s *ServiceClient) Get(ctx context.Context, id string) (model.Service, error) {
	var out model.Service
	err := s.c.doJSON(ctx, domainService, http.MethodGet, "/services/"+id, "", nil, &out)
	return out, err
}

// Update patches the non-asset fields of a service.
func (s *ServiceClient) Update(ctx context.Context, token, id string, draft ServiceDraft) (model.Service, error) {
	var out model.Service
	err := s.c.doJSON(ctx, domainService, http.MethodPatch, "/services/"+id, token, draft, &out)
	return out, err
}

// Delete removes a service by id.
func (s *ServiceClient) Delete(ctx context.Context, token, id string) (DeleteResult, error) {
	var out DeleteResult
	err := s.c.doJSON(ctx, domainService, http.MethodDelete, "/services/"+id, token, nil, &out)
	return out, err
}

// ToggleStatus flips a service between active and inactive and returns the
// server's authoritative entity.
func (s *ServiceClient) ToggleStatus(ctx context.Context, token, id string) (model.Service, error) {
	var out model.Service
	err := s.c.doJSON(ctx, domainService, http.MethodPatch, "/services/"+id+"/toggle-status", token, nil, &out)
	return out, err
}

// UploadThumbnail replaces a service's thumbnail via multipart upload.
func (s *ServiceClient) UploadThumbnail(ctx context.Context, token, id string, upload Upload) (model.Service, error) {
	if upload.Field == "" {
		upload.Field = "thumbnail"
	}
	var out model.Service
	err := s.c.doMultipart(ctx, domainService, http.MethodPost, "/services/"+id+"/thumbnail", token, nil, upload, &out)
	return out, err
}
