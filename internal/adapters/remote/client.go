package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jbctechsolutions/focusvault/internal/domain/errors"
	"github.com/jbctechsolutions/focusvault/internal/domain/outbox"
	"github.com/jbctechsolutions/focusvault/internal/domain/session"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client handles HTTP communication with the session service.
type Client struct {
	httpClient *http.Client
	config     Config
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.config.Timeout = timeout
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets the maximum number of retries for reads.
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *Client) {
		c.config.MaxRetries = maxRetries
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.config.BaseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewClient creates a session service client authenticated with token.
func NewClient(token string, opts ...ClientOption) *Client {
	config := DefaultConfig(token)

	client := &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// StartSession creates a session. Creation is never retried.
func (c *Client) StartSession(ctx context.Context, req session.StartRequest) (*session.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.NewError(errors.CodeValidation, "failed to marshal request", err)
	}

	resp, err := c.do(ctx, http.MethodPost, EndpointStart, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.handleErrorResponse(resp)
	}

	var sess session.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, errors.Transient("failed to decode session", err)
	}
	if sess.Status == "" {
		sess.Status = session.StatusActive
	}
	if err := sess.Validate(); err != nil {
		return nil, errors.NewError(errors.CodeValidation, "remote returned an invalid session", err)
	}
	return &sess, nil
}

// ActiveSessions returns the sessions that have not ended.
func (c *Client) ActiveSessions(ctx context.Context) ([]*session.Session, error) {
	resp, err := c.doRequestWithRetry(ctx, http.MethodGet, EndpointSessions, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp)
	}

	var all []*session.Session
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, errors.Transient("failed to decode sessions", err)
	}

	out := make([]*session.Session, 0, len(all))
	for _, s := range all {
		if s == nil || s.IsEnded() || s.Validate() != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Execute sends a mutating request and returns the response body. Writes
// are not retried here; failed session-state writes go to the queue.
func (c *Client) Execute(ctx context.Context, req outbox.WriteRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, c.handleErrorResponse(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Transient("failed to read response", err)
	}
	return data, nil
}

// Ping reports whether the service answers at all. Any response below 500
// counts as reachable, including an auth failure.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, EndpointSessions, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode >= 500 {
		return errors.Transient(fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
	}
	return nil
}

// doRequestWithRetry performs an idempotent request with exponential backoff.
func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var lastErr error
	baseDelay := 250 * time.Millisecond

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 250ms, 500ms, 1s...
			delay := baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, errors.Transient("request cancelled", ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := c.do(ctx, method, path, body)
		if err != nil {
			lastErr = err
			continue
		}

		if retryable(resp.StatusCode) {
			resp.Body.Close()
			lastErr = errors.Transient(fmt.Sprintf("HTTP %d", resp.StatusCode), nil)
			continue
		}

		return resp, nil
	}

	return nil, errors.Transient(
		fmt.Sprintf("request failed after %d attempts", c.config.MaxRetries+1), lastErr)
}

// do sends a single request. Transport failures become transient errors.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Transient(method+" "+path, err)
	}
	return resp, nil
}

// newRequest creates a new HTTP request with required headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	url := c.config.BaseURL + path

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, errors.NewError(errors.CodeValidation, "failed to create request", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	return req, nil
}

// handleErrorResponse maps a failed response onto a domain error: 5xx,
// 408 and 429 are transient, other statuses are rejections.
func (c *Client) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	msg := strings.TrimSpace(string(body))
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.text() != "" {
		msg = errResp.text()
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg)

	if retryable(resp.StatusCode) {
		return errors.Transient(msg, nil)
	}
	return errors.Rejected(msg, resp.StatusCode)
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}
