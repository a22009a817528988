package api

import (
	"context"
	"net/http"

	"devlink-client/internal/models"
)

// Register creates an account and returns the access token plus the stored
// user snapshot.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResult, error) {
	var out models.AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/users/register", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login exchanges credentials for an access token and user snapshot.
func (c *Client) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResult, error) {
	var out models.AuthResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/users/login", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ProfileDetails fetches the authenticated user's own profile. Used by the
// OAuth callback path, where the redirect hands over a token but no snapshot.
func (c *Client) ProfileDetails(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/profile-details", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout invalidates the server-side session. Callers treat failure as
// best-effort; local teardown proceeds regardless.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/users/logout", nil, nil, nil)
}
