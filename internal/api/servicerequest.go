package api

import (
	"context"
	"net/http"

	"github.com/meridianhq/meridian-go/internal/model"
)

// ServiceRequestDraft is the writable subset of a service request.
type ServiceRequestDraft struct {
	ServiceID string `json:"serviceId"`
	Details   string `json:"details"`
}

// ServiceRequestList is the paged list response for service requests.
type ServiceRequestList struct {
	Items []model.ServiceRequest `json:"items"`
	Page  model.PageInfo         `json:"pageInfo"`
}

// ServiceRequestClient covers the client-facing and admin service-request
// endpoints.
type ServiceRequestClient struct {
	c *Client
}

// NewServiceRequest builds the service-request domain client over the
// shared transport core.
func NewServiceRequest(c *Client) *ServiceRequestClient {
	return &ServiceRequestClient{c: c}
}

// Create submits a new request against a catalog service.
func (s *ServiceRequestClient) Create(ctx context.Context, token string, draft ServiceRequestDraft) (model.ServiceRequest, error) {
	var out model.ServiceRequest
	err := s.c.doJSON(ctx, domainServiceRequest, http.MethodPost, "/service-request", token, draft, &out)
	return out, err
}

// List fetches a page of the caller's own requests.
func (s *ServiceRequestClient) List(ctx context.Context, token string, params ListParams) (ServiceRequestList, error) {
	var out ServiceRequestList
	err := s.c.doJSON(ctx, domainServiceRequest, http.MethodGet, listQuery("/service-request", params), token, nil, &out)
	return out, err
}

// Get fetches one request by id.
func (s *ServiceRequestClient) Get(ctx context.Context, token, id string) (model.ServiceRequest, error) {
	var out model.ServiceRequest
	err := s.c.doJSON(ctx, domainServiceRequest, http.MethodGet, "/service-request/"+id, token, nil, &out)
	return out, err
}

// Update patches the caller's own request details.
func (s *ServiceRequestClient) Update(ctx context.Context, token, id, details string) (model.ServiceRequest, error) {
	var out model.ServiceRequest
	body := map[string]string{"details": details}
	err := s.c.doJSON(ctx, domainServiceRequest, http.MethodPatch, "/service-request/"+id, token, body, &out)
	return out, err
}

// Delete withdraws a request by id.
func (s *ServiceRequestClient) Delete(ctx context.Context, token, id string) (DeleteResult, error) {
	var out DeleteResult
	err := s.c.doJSON(ctx, domainServiceRequest, http.MethodDelete, "/service-request/"+id, token, nil, &out)
	return out, err
}

// UploadAttachment adds a best-effort file to a request via multipart.
func (s *ServiceRequestClient) UploadAttachment(ctx context.Context, token, id string, upload Upload) (model.ServiceRequest, error) {
	if upload.Field == "" {
		upload.Field = "attachment"
	}
	var out model.ServiceRequest
	err := s.c.doMultipart(ctx, domainServiceRequest, http.MethodPost, "/service-request/"+id+"/attachments", token, nil, upload, &out)
	return out, err
}

// DeleteAttachment removes one uploaded file by its storage public id.
func (s *ServiceRequestClient) DeleteAttachment(ctx context.Context, token, id, publicID string) (model.ServiceRequest, error) {
	var out model.ServiceRequest
	err := s.c.doJSON(ctx, domainServiceRequest, http.MethodDelete, "/service-request/"+id+"/attachments/"+publicID, token, nil, &out)
	return out, err
}

// AdminAll fetches a page across every client's requests (admin only).
func (s *ServiceRequestClient) AdminAll(ctx context.Context, token string, params ListParams) (ServiceRequestList, error) {
	var out ServiceRequestList
	err := s.c.doJSON(ctx, domainServiceRequest, http.MethodGet, listQuery("/service-request/admin/all", params), token, nil, &out)
	return out, err
}

// AdminSetStatus transitions a request's status (admin only).
func (s *ServiceRequestClient) AdminSetStatus(ctx context.Context, token, id, status string) (model.ServiceRequest, error) {
	var out model.ServiceRequest
	body := map[string]string{"status": status}
	err := s.c.doJSON(ctx, domainServiceRequest, http.MethodPatch, "/service-request/admin/"+id+"/status", token, body, &out)
	return out, err
}
