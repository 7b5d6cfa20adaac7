// Package embedding provides the image embedding adapter.
// Clean Architecture: This is an adapter that implements ports.EmbeddingService.
// It knows about the embedding server's wire format but the domain layer doesn't.
package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "http://localhost:8001"
	defaultModel     = "ViT-B-32"
	defaultDimension = 512
)

// ClipAdapter implements ports.EmbeddingService against a CLIP-style HTTP
// embedding server.
type ClipAdapter struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
	limiter   *rate.Limiter
}

// Options configures a ClipAdapter. Zero values select defaults.
type Options struct {
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
	// RatePerSecond bounds embedding calls; 0 means unlimited.
	RatePerSecond float64
}

// NewClipAdapter creates a new embedding adapter.
func NewClipAdapter(opts Options) *ClipAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Dimension <= 0 {
		opts.Dimension = defaultDimension
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &ClipAdapter{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		model:     opts.Model,
		dimension: opts.Dimension,
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// embedRequest is the embedding server request format.
type embedRequest struct {
	Model string `json:"model"`
	Image string `json:"image"` // base64 encoded image bytes
}

// embedResponse is the embedding server response format.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Dimension returns the vector length every Embed call yields.
func (a *ClipAdapter) Dimension() int {
	return a.dimension
}

// Embed returns the unit-length embedding of an encoded image.
func (a *ClipAdapter) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	jsonData, err := json.Marshal(embedRequest{
		Model: a.model,
		Image: base64.StdEncoding.EncodeToString(image),
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/embed", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned status %d", resp.StatusCode)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(embedResp.Embedding) != a.dimension {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(embedResp.Embedding), a.dimension)
	}

	logrus.WithFields(logrus.Fields{
		"model": a.model,
		"bytes": len(image),
	}).Debug("Embedded image")
	return normalize(embedResp.Embedding), nil
}

// Ping checks that the embedding server answers its health endpoint.
func (a *ClipAdapter) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling embedding server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding server returned status %d", resp.StatusCode)
	}
	return nil
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
