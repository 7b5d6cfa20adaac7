// Package fetcher loads candidate images from disk or over HTTP.
// Clean Architecture: Adapter implementing ports.ImageFetcher.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp" // register decoder
	"golang.org/x/time/rate"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultMaxBytes = 15 << 20
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Options configures an HTTPFetcher. Zero values select defaults.
type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	// RatePerSecond bounds remote downloads; 0 means unlimited.
	RatePerSecond float64
	Burst         int
	// LocalRoots lists the directories local references may point into.
	// Empty means local references are refused.
	LocalRoots    []string
}

// HTTPFetcher implements ports.ImageFetcher. References starting with
// http:// or https:// are downloaded, anything else is read from disk when it
// resolves below one of the local roots.
type HTTPFetcher struct {
	client   *http.Client
	limiter  *rate.Limiter
	maxBytes int64
	roots    []string
}

// ErrOutsideRoots is returned for local references outside every local root.
var ErrOutsideRoots = errors.New("local image outside allowed roots")

// NewHTTPFetcher creates a fetcher.
func NewHTTPFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultMaxBytes
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	roots := make([]string, 0, len(opts.LocalRoots))
	for _, r := range opts.LocalRoots {
		if r == "" {
			continue
		}
		if abs, err := resolve(r); err == nil {
			roots = append(roots, abs)
		}
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: opts.Timeout},
		limiter:  rate.NewLimiter(limit, opts.Burst),
		maxBytes: opts.MaxBytes,
		roots:    roots,
	}
}

// Fetch returns the bytes of a decodable image.
func (f *HTTPFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty image reference")
	}

	var (
		data []byte
		err  error
	)
	if isRemote(ref) {
		data, err = f.download(ctx, ref)
	} else {
		data, err = f.readLocal(ref)
	}
	if err != nil {
		return nil, err
	}

	if err := validateImage(data); err != nil {
		return nil, err
	}
	return data, nil
}

func (f *HTTPFetcher) download(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image server returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		logrus.WithFields(logrus.Fields{
			"url":          url,
			"content_type": ct,
		}).Debug("Rejected non-image response")
		return nil, fmt.Errorf("%w: content type %q", entities.ErrNotImage, ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}

func (f *HTTPFetcher) readLocal(path string) ([]byte, error) {
	if !f.allowed(path) {
		return nil, fmt.Errorf("%w: %s", ErrOutsideRoots, path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", entities.ErrNotImage, path)
	}
	if info.Size() > f.maxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", f.maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return data, nil
}

// allowed reports whether path, with symlinks resolved, lies below a root.
func (f *HTTPFetcher) allowed(path string) bool {
	abs, err := resolve(path)
	if err != nil {
		return false
	}
	for _, root := range f.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func isRemote(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// validateImage checks that data decodes as a supported image format.
func validateImage(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty body", entities.ErrNotImage)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%w: %v", entities.ErrNotImage, err)
	}
	return nil
}
