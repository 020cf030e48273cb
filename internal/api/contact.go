package api

import (
	"context"
	"net/http"

	"github.com/meridianhq/meridian-go/internal/model"
)

// ContactForm is the public contact submission payload.
type ContactForm struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// ContactList is the paged list response for contacts.
type ContactList struct {
	Items []model.Contact `json:"items"`
	Page  model.PageInfo  `json:"pageInfo"`
}

// ContactClient covers the public contact form plus the admin and client
// self-service contact endpoints.
type ContactClient struct {
	c *Client
}

// NewContact builds the contact domain client over the shared transport core.
func NewContact(c *Client) *ContactClient {
	return &ContactClient{c: c}
}

// Create submits the public contact form. The server enforces the real
// submission quota; exceeding it surfaces as a KindRateLimited error.
func (cc *ContactClient) Create(ctx context.Context, form ContactForm) (model.Contact, error) {
	var out model.Contact
	err := cc.c.doJSON(ctx, domainContact, http.MethodPost, "/contact", "", form, &out)
	return out, err
}

// Auth performs the passwordless client login keyed on a prior contact.
func (cc *ContactClient) Auth(ctx context.Context, email string) (AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email}
	err := cc.c.doJSON(ctx, domainContact, http.MethodPost, "/contact/auth", "", body, &out)
	return out, err
}

// List fetches a page of contacts (admin only).
func (cc *ContactClient) List(ctx context.Context, token string, params ListParams) (ContactList, error) {
	var out ContactList
	err := cc.c.doJSON(ctx, domainContact, http.MethodGet, listQuery("/contact", params), token, nil, &out)
	return out, err
}

// Get fetches one contact by id (admin only).
func (cc *ContactClient) Get(ctx context.Context, token, id string) (model.Contact, error) {
	var out model.Contact
	err := cc.c.doJSON(ctx, domainContact, http.MethodGet, "/contact/"+id, token, nil, &out)
	return out, err
}

// Update patches a contact, typically its triage status (admin only).
func (cc *ContactClient) Update(ctx context.Context, token, id, status string) (model.Contact, error) {
	var out model.Contact
	body := map[string]string{"status": status}
	err := cc.c.doJSON(ctx, domainContact, http.MethodPatch, "/contact/"+id, token, body, &out)
	return out, err
}

// Delete removes a contact by id (admin only).
func (cc *ContactClient) Delete(ctx context.Context, token, id string) (DeleteResult, error) {
	var out DeleteResult
	err := cc.c.doJSON(ctx, domainContact, http.MethodDelete, "/contact/"+id, token, nil, &out)
	return out, err
}

// Me fetches the authenticated client's own contact profile.
func (cc *ContactClient) Me(ctx context.Context, token string) (model.Contact, error) {
	var out model.Contact
	err := cc.c.doJSON(ctx, domainContact, http.MethodGet, "/contact/client/me", token, nil, &out)
	return out, err
}
