// Package loader provides file-system adapters for the image corpus.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

// ImageLoader lists and reads corpus images from disk.
type ImageLoader struct{}

// NewImageLoader creates a new image source.
func NewImageLoader() *ImageLoader {
	return &ImageLoader{}
}

// List walks root and returns every image file, sorted by path.
// Unreadable entries are logged and skipped.
func (l *ImageLoader) List(ctx context.Context, root string) ([]ports.ImageFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root %s is not a directory", root)
	}

	var files []ports.ImageFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logrus.WithError(err).WithField("path", path).Warn("Skipping unreadable corpus entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !entities.IsImagePath(path) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		files = append(files, ports.ImageFile{
			Path:    path,
			RelPath: filepath.ToSlash(rel),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// Read returns the raw bytes of one image.
func (l *ImageLoader) Read(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// SupportedExtensions returns the file extensions this loader lists.
func (l *ImageLoader) SupportedExtensions() []string {
	return slices.Clone(entities.ImageExtensions)
}

// CorpusWriter saves accepted images into the corpus tree, one folder per
// budget band and event, with a JSON metadata sidecar beside each image.
type CorpusWriter struct {
	root string
}

// NewCorpusWriter creates a writer rooted at the corpus directory.
func NewCorpusWriter(root string) *CorpusWriter {
	return &CorpusWriter{root: root}
}

// sidecar is the metadata written next to every saved image.
type sidecar struct {
	PinID        string    `json:"pin_id"`
	PinURL       string    `json:"pin_url"`
	ImageURL     string    `json:"image_url"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Source       string    `json:"source"`
	DownloadedAt time.Time `json:"downloaded_at"`
	EventType    string    `json:"event_type"`
	BudgetRange  string    `json:"budget_range"`
}

// Save writes the image and its sidecar and returns the image path.
func (w *CorpusWriter) Save(ctx context.Context, img ports.SelectedImage) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("%w: empty image", entities.ErrNotImage)
	}
	ext := extensionFor(img.Data)
	if ext == "" {
		return "", fmt.Errorf("%w: unsupported content", entities.ErrNotImage)
	}

	dir := filepath.Join(w.root,
		fmt.Sprintf("Welcome_board_decor_(%s)", img.Budget.Band()),
		img.Event.Title(),
		"user_selected",
	)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating corpus folder: %w", err)
	}

	savedAt := img.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}
	base := fmt.Sprintf("user_selected_%s_%s", safeKey(img.Candidate.Key()), savedAt.Format("20060102_150405"))
	path := filepath.Join(dir, base+ext)

	if err := os.WriteFile(path, img.Data, 0644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}

	meta, err := json.MarshalIndent(sidecar{
		PinID:        img.Candidate.PinID,
		PinURL:       img.Candidate.PinURL,
		ImageURL:     img.Candidate.ImageURL,
		Title:        img.Candidate.Title,
		Description:  img.Candidate.Description,
		Source:       string(img.Candidate.Source),
		DownloadedAt: savedAt,
		EventType:    string(img.Event),
		BudgetRange:  img.Budget.Band(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, base+".json"), meta, 0644); err != nil {
		return "", fmt.Errorf("writing metadata: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"path":  path,
		"key":   img.Candidate.Key(),
		"bytes": len(img.Data),
	}).Info("Saved selected image")
	return path, nil
}

// extensionFor sniffs the content type. Only formats the corpus indexes are accepted.
func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ""
}

var safeKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,40}$`)

// safeKey returns key when it is file-name safe and a short hash otherwise.
func safeKey(key string) string {
	if safeKeyRe.MatchString(key) {
		return key
	}
	hash := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(hash[:8])
}
