// Package webhook delivers job completion notifications to callback URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Static errors for webhook delivery.
var (
	// ErrURLRequired is returned when no callback URL is provided.
	ErrURLRequired = errors.New("webhook: URL is required")
	// ErrServerError is returned when the receiver returns a 5xx status code.
	ErrServerError = errors.New("webhook: server error")
	// ErrRateLimited is returned when the receiver returns a 429 status code.
	ErrRateLimited = errors.New("webhook: rate limited")
	// ErrRequestFailed is returned when delivery fails with a non-2xx status code.
	ErrRequestFailed = errors.New("webhook: request failed")
)

// Client posts JSON notifications to job callback URLs.
type Client struct {
	httpClient  *http.Client
	maxRetries  int
	baseBackoff time.Duration
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(wc *Client) {
		wc.httpClient = c
	}
}

// WithTimeout sets the per-delivery HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(wc *Client) {
		wc.httpClient.Timeout = d
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) Option {
	return func(wc *Client) {
		wc.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) Option {
	return func(wc *Client) {
		wc.baseBackoff = d
	}
}

// NewClient creates a webhook client with a 30 second delivery timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxRetries:  3,
		baseBackoff: 1 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify posts the payload as JSON to the callback URL.
// Transient failures (network errors, 5xx, 429) are retried with
// exponential backoff; other non-2xx responses are not.
func (c *Client) Notify(ctx context.Context, url string, payload any) error {
	if url == "" {
		return ErrURLRequired
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	var lastErr error
	backoff := c.baseBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("webhook: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := c.deliver(ctx, url, body)
		if err == nil {
			return nil
		}

		if !isRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("webhook: max retries exceeded: %w", lastErr)
}

// deliver performs a single delivery attempt.
func (c *Client) deliver(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("webhook: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain a bounded amount of the response so the connection can be
	// reused and error messages carry the receiver's reply.
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w: %s", ErrRateLimited, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	return nil
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryable returns true if the error should be retried.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
