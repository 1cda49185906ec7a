// Package client is a Go client for the dashboard REST API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Sentinels matched by APIError.Is on the response status.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// APIError is a non-2xx response. Validation failures carry their field
// messages and unwrap to *formschema.ValidationError.
type APIError struct {
	Status  int                 `json:"-"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Form    []string            `json:"form,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrConflict:
		return e.Status == http.StatusConflict
	}
	return false
}

func (e *APIError) Unwrap() error {
	if len(e.Fields) == 0 && len(e.Form) == 0 {
		return nil
	}
	return &formschema.ValidationError{Fields: e.Fields, Form: e.Form}
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err := json.Unmarshal(body, apiErr); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

// Client talks to one API server. It is safe for concurrent use.
type Client struct {
	base *url.URL
	http *http.Client

	mu    sync.RWMutex
	token string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New returns a client for the API rooted at baseURL, for example
// http://localhost:8080/api/v1.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Send performs a request and returns the response when its status is
// 2xx. Other statuses are returned as *APIError. The caller closes the
// body.
func (c *Client) Send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// Do sends a request and decodes a JSON response into out, which may be
// nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	resp, err := c.Send(ctx, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// GetJSON is Do for GET requests.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, "", out)
}

// PostJSON sends in as a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return c.Do(ctx, http.MethodPost, path, nil, bytes.NewReader(b), "application/json", out)
}

// Me is the authenticated user.
type Me struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	FullName string    `json:"full_name"`
	Roles    []string  `json:"roles"`
}

// Session is the result of a login.
type Session struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        Me        `json:"user"`
}

// Login exchanges credentials for a token and uses it for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var s Session
	in := map[string]string{"username": username, "password": password}
	if err := c.PostJSON(ctx, "/auth/login", in, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.AccessToken)
	return &s, nil
}

// Logout revokes the current token and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	err := c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil, "", nil)
	c.SetToken("")
	return err
}

func (c *Client) Me(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.GetJSON(ctx, "/auth/me", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}
