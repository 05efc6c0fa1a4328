package detect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/autocrop/vertical-api/internal/geometry"
)

// Static errors for the HTTP detector adapter.
var (
	// ErrBaseURLRequired is returned when no service URL is provided.
	ErrBaseURLRequired = errors.New("detect: base URL is required")
	// ErrServerError is returned when the service returns a 5xx status code.
	ErrServerError = errors.New("detect: server error")
	// ErrRequestFailed is returned when the request fails with a non-2xx status code.
	ErrRequestFailed = errors.New("detect: request failed")
)

// HTTPDetector talks to a detection sidecar over JSON/HTTP.
// The service accepts a base64 JPEG and an object class and returns
// pixel-coordinate bounding boxes with confidences.
type HTTPDetector struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	minConfidence float64
	maxRetries    int
	baseBackoff   time.Duration
}

// Compile-time interface check.
var _ BoxDetector = (*HTTPDetector)(nil)

// HTTPOption configures an HTTPDetector.
type HTTPOption func(*HTTPDetector)

// WithAPIKey sets a bearer token for the detection service.
func WithAPIKey(key string) HTTPOption {
	return func(d *HTTPDetector) {
		d.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(d *HTTPDetector) {
		d.httpClient = c
	}
}

// WithMinConfidence drops detections below the given confidence.
func WithMinConfidence(min float64) HTTPOption {
	return func(d *HTTPDetector) {
		d.minConfidence = min
	}
}

// WithMaxRetries sets the maximum number of retries for transient failures.
func WithMaxRetries(n int) HTTPOption {
	return func(d *HTTPDetector) {
		d.maxRetries = n
	}
}

// WithBaseBackoff sets the initial backoff duration for retries.
func WithBaseBackoff(d time.Duration) HTTPOption {
	return func(det *HTTPDetector) {
		det.baseBackoff = d
	}
}

// NewHTTPDetector creates a detector client for an inference sidecar.
func NewHTTPDetector(baseURL string, opts ...HTTPOption) (*HTTPDetector, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	d := &HTTPDetector{
		baseURL:       baseURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		minConfidence: 0.25,
		maxRetries:    2,
		baseBackoff:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// detectRequest is the wire format of a detection call.
type detectRequest struct {
	Image string `json:"image"`
	Kind  string `json:"kind"`
}

// detectResponse is the wire format of a detection result.
type detectResponse struct {
	Boxes []struct {
		X1         int     `json:"x1"`
		Y1         int     `json:"y1"`
		X2         int     `json:"x2"`
		Y2         int     `json:"y2"`
		Confidence float64 `json:"confidence"`
	} `json:"boxes"`
	Error string `json:"error,omitempty"`
}

// DetectBoxes sends the image to the sidecar and returns boxes of the
// requested class above the confidence floor.
func (d *HTTPDetector) DetectBoxes(ctx context.Context, img *image.NRGBA, kind Kind) ([]geometry.Box, error) {
	jpeg, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(detectRequest{
		Image: base64.StdEncoding.EncodeToString(jpeg),
		Kind:  string(kind),
	})
	if err != nil {
		return nil, fmt.Errorf("detect: marshal request: %w", err)
	}

	var resp detectResponse
	if err := d.doRequestWithRetry(ctx, d.baseURL+"/detect", body, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}

	boxes := make([]geometry.Box, 0, len(resp.Boxes))
	for _, b := range resp.Boxes {
		if b.Confidence < d.minConfidence {
			continue
		}
		box := geometry.Box{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2}
		if box.Valid() {
			boxes = append(boxes, box)
		}
	}
	return boxes, nil
}

// doRequestWithRetry performs a POST with exponential backoff retry on
// transient failures.
func (d *HTTPDetector) doRequestWithRetry(ctx context.Context, url string, body []byte, result any) error {
	var lastErr error
	backoff := d.baseBackoff

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("detect: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2
			}
		}

		err := d.doRequest(ctx, url, body, result)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("detect: max retries exceeded: %w", lastErr)
}

// doRequest performs a single POST request.
func (d *HTTPDetector) doRequest(ctx context.Context, url string, body []byte, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("detect: create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return &retryableError{err: fmt.Errorf("detect: request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &retryableError{err: fmt.Errorf("detect: read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return &retryableError{err: fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))}
		}
		return fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("detect: unmarshal response: %w", err)
		}
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
