// Package adminapi is the typed client for the admin proxy HTTP surface.
// Browser-side flows and tests use it instead of hand-rolled requests.
package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barangaylink/barangaylink/internal/admin"
	"github.com/barangaylink/barangaylink/internal/roles"
)

// Client talks to the admin proxy with a caller-supplied bearer token.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client for the proxy at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// ListUsers fetches the merged user listing.
func (c *Client) ListUsers(ctx context.Context, token string) ([]admin.UserRecord, error) {
	var records []admin.UserRecord
	if err := c.do(ctx, http.MethodGet, "/api/admin/users", token, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Invite asks the proxy to invite a new staff member.
func (c *Client) Invite(ctx context.Context, token, email string) error {
	body := map[string]string{"email": email}
	return c.do(ctx, http.MethodPost, "/api/admin/invite", token, body, nil)
}

// ChangeRole updates a user's role.
func (c *Client) ChangeRole(ctx context.Context, token string, userID uuid.UUID, role roles.Role) error {
	body := map[string]string{"role": string(role)}
	return c.do(ctx, http.MethodPatch, "/api/admin/users/"+userID.String()+"/role", token, body, nil)
}

// Deactivate disables a user account.
func (c *Client) Deactivate(ctx context.Context, token string, userID uuid.UUID) error {
	return c.do(ctx, http.MethodPatch, "/api/admin/users/"+userID.String()+"/deactivate", token, nil, nil)
}

// Reactivate re-enables a user account.
func (c *Client) Reactivate(ctx context.Context, token string, userID uuid.UUID) error {
	return c.do(ctx, http.MethodPatch, "/api/admin/users/"+userID.String()+"/reactivate", token, nil, nil)
}

// Activate completes the caller's own invitation: profile names plus the
// activation flip, performed by the proxy with elevated credentials.
func (c *Client) Activate(ctx context.Context, token string, userID uuid.UUID, firstName string, middleName *string, lastName string) error {
	body := map[string]any{
		"first_name":  firstName,
		"middle_name": middleName,
		"last_name":   lastName,
	}
	return c.do(ctx, http.MethodPatch, "/api/admin/users/"+userID.String()+"/activate", token, body, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("adminapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("adminapi: build request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("adminapi: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&payload)
		if payload.Error == "" {
			payload.Error = fmt.Sprintf("unexpected status %d", res.StatusCode)
		}
		return fmt.Errorf("adminapi: %s", payload.Error)
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("adminapi: decode response: %w", err)
		}
	}
	return nil
}
