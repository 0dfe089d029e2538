package pms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/gophygital/permit-agent/internal/errors"
)

var schemeRe = regexp.MustCompile(`(?i)^https?://`)

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator applies authentication to requests.
type Authenticator interface {
	Apply(req *http.Request) error
}

// TokenAuth authenticates with a static bearer token.
type TokenAuth struct {
	Token string
}

// Apply sets the Authorization header. An empty token is a configuration
// error and blocks the request before it leaves the process.
func (a *TokenAuth) Apply(req *http.Request) error {
	if a.Token == "" {
		return fmt.Errorf("bearer token missing: %w", perrors.ErrNotConfigured)
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)
	return nil
}

// Client wraps the PMS REST API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	auth       Authenticator
	logger     zerolog.Logger
}

// NewClient creates a new PMS API client. Bare hosts get an https scheme,
// matching how the backend hands out its base URL.
func NewClient(baseURL string, auth Authenticator, logger zerolog.Logger) *Client {
	if baseURL != "" && !schemeRe.MatchString(baseURL) {
		baseURL = "https://" + baseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
		logger:     logger.With().Str("component", "pms").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// BaseURL returns the base URL of the PMS instance.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do executes an authenticated API request. Non-2xx responses are mapped to
// *errors.APIError carrying whatever message the server supplied.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("base URL missing: %w", perrors.ErrNotConfigured)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	if err := c.auth.Apply(req); err != nil {
		return nil, fmt.Errorf("applying auth: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		resp.Body.Close()
		apiErr := perrors.NewAPIError("pms", resp.StatusCode, serverMessage(respBody))
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("method", method).
			Str("path", path).
			Msg("pms request failed")
		return nil, apiErr
	}

	return resp, nil
}

// serverMessage extracts a human-readable message from an error body.
// The backend is inconsistent about the key it uses.
func serverMessage(body []byte) string {
	var payload struct {
		Message string   `json:"message"`
		Error   string   `json:"error"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case len(payload.Errors) > 0:
			return strings.Join(payload.Errors, "; ")
		}
	}
	return strings.TrimSpace(string(body))
}

// decodeResponse reads and decodes a JSON response.
func decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// drainAndClose discards a response body so the transport can reuse the
// connection. Used by endpoints whose response content is ignored.
func drainAndClose(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
