package api

import (
	"context"
	"net/http"

	"github.com/meridianhq/meridian-go/internal/model"
)

// AuthResult is the session payload returned by login, passwordless auth,
// and token refresh calls.
type AuthResult struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	Profile      model.Actor `json:"profile"`
}

// DeleteResult is the confirmation shape returned by delete endpoints.
type DeleteResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AdminClient covers the admin back-office account endpoints.
type AdminClient struct {
	c *Client
}

// NewAdmin builds the admin domain client over the shared transport core.
func NewAdmin(c *Client) *AdminClient {
	return &AdminClient{c: c}
}

// Login exchanges admin credentials for a session.
func (a *AdminClient) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email, "password": password}
	err := a.c.doJSON(ctx, domainAdmin, http.MethodPost, "/admin/login", "", body, &out)
	return out, err
}

// Logout revokes the current session server-side.
func (a *AdminClient) Logout(ctx context.Context, token string) error {
	return a.c.doJSON(ctx, domainAdmin, http.MethodPost, "/admin/logout", token, nil, nil)
}

// RefreshToken trades a refresh token for a new session.
func (a *AdminClient) RefreshToken(ctx context.Context, refreshToken string) (AuthResult, error) {
	var out AuthResult
	body := map[string]string{"refreshToken": refreshToken}
	err := a.c.doJSON(ctx, domainAdmin, http.MethodPost, "/admin/refresh-token", "", body, &out)
	return out, err
}

// InitSuperadmin bootstraps the very first admin account on a fresh
// deployment. The server rejects the call once a superadmin exists.
func (a *AdminClient) InitSuperadmin(ctx context.Context, name, email, password string) (model.Actor, error) {
	var out model.Actor
	body := map[string]string{"name": name, "email": email, "password": password}
	err := a.c.doJSON(ctx, domainAdmin, http.MethodPost, "/admin/init-superadmin", "", body, &out)
	return out, err
}

// CreateAdmin provisions an additional admin account.
func (a *AdminClient) CreateAdmin(ctx context.Context, token, name, email, password string) (model.Actor, error) {
	var out model.Actor
	body := map[string]string{"name": name, "email": email, "password": password}
	err := a.c.doJSON(ctx, domainAdmin, http.MethodPost, "/admin/create-admin", token, body, &out)
	return out, err
}

// Delete removes an admin account by id.
func (a *AdminClient) Delete(ctx context.Context, token, id string) (DeleteResult, error) {
	var out DeleteResult
	err := a.c.doJSON(ctx, domainAdmin, http.MethodDelete, "/admin/"+id, token, nil, &out)
	return out, err
}

// ChangePassword rotates the calling admin's password.
func (a *AdminClient) ChangePassword(ctx context.Context, token, current, next string) error {
	body := map[string]string{"currentPassword": current, "newPassword": next}
	return a.c.doJSON(ctx, domainAdmin, http.MethodPost, "/admin/change-password", token, body, nil)
}

// RequestPasswordReset asks the server to mail a reset token.
func (a *AdminClient) RequestPasswordReset(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return a.c.doJSON(ctx, domainAdmin, http.MethodPost, "/admin/request-password-reset", "", body, nil)
}

// ResetPassword completes a password reset with a mailed token.
func (a *AdminClient) ResetPassword(ctx context.Context, resetToken, password string) error {
	body := map[string]string{"token": resetToken, "password": password}
	return a.c.doJSON(ctx, domainAdmin, http.MethodPost, "/admin/reset-password", "", body, nil)
}
