package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/barangaylink/barangaylink/internal/shared"
)

// HTTPClient implements Client and AdminClient against the identity
// service's REST surface.
type HTTPClient struct {
	baseURL    string
	anonKey    string
	serviceKey string
	http       *http.Client
}

// NewHTTPClient constructs a client for the identity service. serviceKey may
// be empty for a low-privilege client; admin calls will then fail.
func NewHTTPClient(baseURL, anonKey, serviceKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		anonKey:    anonKey,
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

type userPayload struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
	CreatedAt    time.Time      `json:"created_at"`
	LastSignInAt *time.Time     `json:"last_sign_in_at"`
}

type sessionPayload struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int         `json:"expires_in"`
	User        userPayload `json:"user"`
}

type errorPayload struct {
	Message     string `json:"msg"`
	Description string `json:"error_description"`
}

func (p userPayload) toIdentity() (*Identity, error) {
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, fmt.Errorf("identity: parse user id %q: %w", p.ID, err)
	}
	return &Identity{ID: id, Email: p.Email, Metadata: p.UserMetadata, CreatedAt: p.CreatedAt, LastSignInAt: p.LastSignInAt}, nil
}

// VerifyToken resolves the access token to its identity. Any non-2xx answer
// maps to ErrTokenInvalid: the check fails closed and is never retried.
func (c *HTTPClient) VerifyToken(ctx context.Context, accessToken string) (*Identity, error) {
	if accessToken == "" {
		return nil, ErrTokenInvalid
	}
	var payload userPayload
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &payload); err != nil {
		return nil, ErrTokenInvalid
	}
	return payload.toIdentity()
}

// SignInWithPassword exchanges credentials for a session.
func (c *HTTPClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var payload sessionPayload
	if err := c.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", c.anonKey, body, &payload); err != nil {
		var httpErr *httpError
		if asHTTPError(err, &httpErr) && (httpErr.status == http.StatusBadRequest || httpErr.status == http.StatusUnauthorized) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	user, err := payload.User.toIdentity()
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken: payload.AccessToken,
		UserID:      user.ID,
		Email:       user.Email,
		ExpiresAt:   time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}

// SignOut revokes the session behind the access token.
func (c *HTTPClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// UpdatePassword sets a new password for the token's identity.
func (c *HTTPClient) UpdatePassword(ctx context.Context, accessToken, newPassword string) error {
	body := map[string]string{"password": newPassword}
	return c.do(ctx, http.MethodPut, "/auth/v1/user", accessToken, body, nil)
}

// GetUser fetches one identity with elevated credentials.
func (c *HTTPClient) GetUser(ctx context.Context, id uuid.UUID) (*Identity, error) {
	var payload userPayload
	if err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users/"+id.String(), c.serviceKey, nil, &payload); err != nil {
		var httpErr *httpError
		if asHTTPError(err, &httpErr) && httpErr.status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return payload.toIdentity()
}

// ListUsers fetches all identities with elevated credentials.
func (c *HTTPClient) ListUsers(ctx context.Context) ([]Identity, error) {
	var payload struct {
		Users []userPayload `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/v1/admin/users", c.serviceKey, nil, &payload); err != nil {
		return nil, err
	}
	identities := make([]Identity, 0, len(payload.Users))
	for _, u := range payload.Users {
		id, err := u.toIdentity()
		if err != nil {
			return nil, err
		}
		identities = append(identities, *id)
	}
	return identities, nil
}

// InviteByEmail creates an identity and sends the invitation email.
func (c *HTTPClient) InviteByEmail(ctx context.Context, email string, metadata map[string]any) (*Identity, error) {
	body := map[string]any{"email": email, "data": metadata}
	var payload userPayload
	if err := c.do(ctx, http.MethodPost, "/auth/v1/invite", c.serviceKey, body, &payload); err != nil {
		return nil, err
	}
	return payload.toIdentity()
}

// SignOutUser terminates every live session for the identity.
func (c *HTTPClient) SignOutUser(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, "/auth/v1/admin/users/"+id.String()+"/logout", c.serviceKey, nil, nil)
}

type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string {
	if e.message != "" {
		return e.message
	}
	return fmt.Sprintf("identity: unexpected status %d", e.status)
}

func asHTTPError(err error, target **httpError) bool {
	he, ok := err.(*httpError)
	if ok {
		*target = he
	}
	return ok
}

func (c *HTTPClient) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("identity: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("identity: build request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity: %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var payload errorPayload
		_ = json.NewDecoder(res.Body).Decode(&payload)
		message := payload.Message
		if message == "" {
			message = payload.Description
		}
		return &httpError{status: res.StatusCode, message: message}
	}

	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			return fmt.Errorf("identity: decode response: %w", err)
		}
	}
	return nil
}

var (
	_ Client      = (*HTTPClient)(nil)
	_ AdminClient = (*HTTPClient)(nil)
)
