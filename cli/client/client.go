// Package client provides the HTTP client for a running DebAI server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/debai-app/debai/internal/api"
	"github.com/debai-app/debai/internal/session"
)

// DefaultServer is used when neither a flag, the environment nor the CLI config names one
const DefaultServer = "http://localhost:8080"

// Client is the DebAI API client
type Client struct {
	// BaseURL is the DebAI server URL
	BaseURL string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// Debug enables request logging to stderr
	Debug bool

	// UserAgent to use for requests
	UserAgent string
}

// ClientOption configures the client
type ClientOption func(*Client)

// NewClient creates a new API client
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultServer
	}
	c := &Client{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		UserAgent: "debai-cli/1.0",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithDebug enables debug mode
func WithDebug(debug bool) ClientOption {
	return func(c *Client) {
		c.Debug = debug
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.HTTPClient.Timeout = timeout
	}
}

// Request makes an API request. A non-nil body is sent as JSON.
func (c *Client) Request(ctx context.Context, method, path string, body any, query url.Values) (*http.Response, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	if c.Debug {
		fmt.Printf("DEBUG: %s %s\n", method, u.String())
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// do performs a request and decodes a JSON response into target
func (c *Client) do(ctx context.Context, method, path string, body any, query url.Values, target any) error {
	resp, err := c.Request(ctx, method, path, body, query)
	if err != nil {
		return err
	}
	return DecodeResponse(resp, target)
}

// Health checks that the server answers
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// ListSessions returns the live sessions of the server
func (c *Client) ListSessions(ctx context.Context) ([]session.Summary, error) {
	var result struct {
		Sessions []session.Summary `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, nil, &result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// GetSession returns one session with its settings and chats
func (c *Client) GetSession(ctx context.Context, id string) (*api.SessionView, error) {
	var view api.SessionView
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Transcript returns the turns of one chat
func (c *Client) Transcript(ctx context.Context, sessionID, chatID string) (*api.TranscriptView, error) {
	var view api.TranscriptView
	path := sessionPath(sessionID) + "/chats/" + url.PathEscape(chatID) + "/transcript"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ExportReport streams the PDF report of a chat into w. An empty chatID
// exports the active chat.
func (c *Client) ExportReport(ctx context.Context, sessionID, chatID string, w io.Writer) (int64, error) {
	var query url.Values
	if chatID != "" {
		query = url.Values{"chat_id": []string{chatID}}
	}

	resp, err := c.Request(ctx, http.MethodGet, sessionPath(sessionID)+"/export.pdf", nil, query)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return 0, parseErrorBody(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read report: %w", err)
	}
	return n, nil
}

func sessionPath(id string) string {
	return "/api/v1/sessions/" + url.PathEscape(id)
}

// parseErrorBody parses an error response body
func parseErrorBody(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read error response: %v", err),
		}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}

// APIError is the server's {"error": ..., "code": ...} body
type APIError struct {
	StatusCode int    `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error with status %d", e.StatusCode)
}

// DecodeResponse decodes a successful response into the target
func DecodeResponse(resp *http.Response, target any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return parseErrorBody(resp)
	}

	if target == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(target)
}
