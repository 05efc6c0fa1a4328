package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/autocrop/vertical-api/internal/geometry"
)

// Static errors for the Ollama detector adapter.
var (
	// ErrModelRequired is returned when no vision model name is provided.
	ErrModelRequired = errors.New("detect: ollama model is required")
	// ErrEmptyResponse is returned when the model returns no content.
	ErrEmptyResponse = errors.New("detect: empty response from model")
)

const personPrompt = `Find every person in this image. Respond with ONLY a JSON array, no prose:
[{"x": 0.1, "y": 0.2, "w": 0.3, "h": 0.6, "confidence": 0.95}]
where x,y is the top-left corner and w,h the size of each person's bounding box,
all normalized to the 0..1 range relative to the image. Respond [] if no person is visible.`

const facePrompt = `Find every human face in this image. Respond with ONLY a JSON array, no prose:
[{"x": 0.4, "y": 0.1, "w": 0.2, "h": 0.25, "confidence": 0.9}]
where x,y is the top-left corner and w,h the size of each face's bounding box,
all normalized to the 0..1 range relative to the image. Respond [] if no face is visible.`

// OllamaDetector runs detection through an Ollama-hosted vision model.
type OllamaDetector struct {
	client        *api.Client
	model         string
	minConfidence float64
	timeout       time.Duration
}

// Compile-time interface check.
var _ BoxDetector = (*OllamaDetector)(nil)

// OllamaOption configures an OllamaDetector.
type OllamaOption func(*OllamaDetector)

// WithOllamaMinConfidence drops detections below the given confidence.
func WithOllamaMinConfidence(min float64) OllamaOption {
	return func(d *OllamaDetector) {
		d.minConfidence = min
	}
}

// WithOllamaTimeout bounds a single model call.
func WithOllamaTimeout(timeout time.Duration) OllamaOption {
	return func(d *OllamaDetector) {
		d.timeout = timeout
	}
}

// NewOllamaDetector creates a detector backed by an Ollama server.
// rawURL points at the server (any path component is ignored).
func NewOllamaDetector(rawURL, model string, opts ...OllamaOption) (*OllamaDetector, error) {
	if model == "" {
		return nil, ErrModelRequired
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("detect: invalid ollama URL %q", rawURL)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}

	d := &OllamaDetector{
		client:        api.NewClient(base, http.DefaultClient),
		model:         model,
		minConfidence: 0.25,
		timeout:       120 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// DetectBoxes asks the vision model for boxes of the requested class and
// converts its normalized coordinates into pixels.
func (d *OllamaDetector) DetectBoxes(ctx context.Context, img *image.NRGBA, kind Kind) ([]geometry.Box, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	jpeg, err := encodeJPEG(img)
	if err != nil {
		return nil, err
	}

	prompt := personPrompt
	if kind == KindFace {
		prompt = facePrompt
	}

	stream := false
	req := &api.ChatRequest{
		Model: d.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(jpeg)},
			},
		},
		Stream: &stream,
	}

	var content string
	err = d.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content += resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("detect: ollama chat: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyResponse
	}

	b := img.Bounds()
	return parseNormalizedBoxes(content, b.Dx(), b.Dy(), d.minConfidence), nil
}

// normalizedBox is the JSON shape the prompts ask the model for.
type normalizedBox struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	W          float64 `json:"w"`
	H          float64 `json:"h"`
	Confidence float64 `json:"confidence"`
}

// parseNormalizedBoxes extracts boxes from model output, tolerating code
// fences and trailing commas. Output that cannot be parsed yields no boxes
// rather than an error; vision models ramble sometimes.
func parseNormalizedBoxes(raw string, width, height int, minConfidence float64) []geometry.Box {
	raw = sanitizeModelJSON(raw)

	var parsed []normalizedBox
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}

	var boxes []geometry.Box
	for _, nb := range parsed {
		if nb.Confidence < minConfidence || nb.W <= 0 || nb.H <= 0 {
			continue
		}
		box := geometry.Box{
			X1: int(math.Round(nb.X * float64(width))),
			Y1: int(math.Round(nb.Y * float64(height))),
			X2: int(math.Round((nb.X + nb.W) * float64(width))),
			Y2: int(math.Round((nb.Y + nb.H) * float64(height))),
		}
		box = clampToFrame(box, width, height)
		if box.Valid() {
			boxes = append(boxes, box)
		}
	}
	return boxes
}

var (
	reBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailingComma = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON strips code fences, comments, and trailing commas, and
// slices out the outermost JSON array.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailingComma.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
