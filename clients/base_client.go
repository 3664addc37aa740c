package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenProvider supplies a bearer credential on demand. The client never
// caches the token: it is fetched fresh for every request, so a credential
// that shows up mid-session is picked up on the next call.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

type BaseClient struct {
	baseURL string
	client  *http.Client
	headers map[string]string
	tokens  TokenProvider
}

func NewBaseClient(baseURL string, tokens TokenProvider) *BaseClient {
	return &BaseClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: make(map[string]string),
		tokens:  tokens,
	}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.headers[key] = value
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

// ResolveAPIBase normalizes an externally configured base URL: trailing
// slashes are stripped, and an unset value falls back to the relative /api
// root so the client works behind a same-origin proxy.
func ResolveAPIBase(raw string) string {
	if raw == "" {
		return "/api"
	}
	return strings.TrimRight(raw, "/")
}

// MakeRequest performs one authenticated round trip. A missing credential
// yields ErrNoCredential before any network I/O; a non-2xx status yields an
// *APIError carrying the decoded message and raw body.
func (c *BaseClient) MakeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoCredential, err)
	}
	if token == "" {
		return nil, ErrNoCredential
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, responseBody)
	}

	return responseBody, nil
}

// newAPIError decodes an error body that may be JSON `{message}` or plain
// text; both shapes occur across backend deployments.
func newAPIError(status int, body []byte) *APIError {
	text := strings.TrimSpace(string(body))
	apiErr := &APIError{StatusCode: status, Body: text, Message: text}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		apiErr.Message = payload.Message
	}
	return apiErr
}

func (c *BaseClient) Get(ctx context.Context, endpoint string) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodGet, endpoint, nil)
}

func (c *BaseClient) Post(ctx context.Context, endpoint string, body io.Reader) ([]byte, error) {
	return c.MakeRequest(ctx, http.MethodPost, endpoint, body)
}
