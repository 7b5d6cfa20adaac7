// Package ports defines interfaces for external dependencies.
// Clean Architecture: usecases depend on these abstractions, adapters implement them.
package ports

import (
	"context"
	"time"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

// EmbeddingService turns image bytes into a unit-length visual embedding.
type EmbeddingService interface {
	// Embed returns the L2-normalised embedding of an encoded image.
	Embed(ctx context.Context, image []byte) ([]float32, error)

	// Dimension is the fixed length of every vector Embed returns.
	Dimension() int
}

// ImageFetcher loads image bytes from a local path or a remote URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// CandidateProvider is one external source of raw candidates.
// Search never panics and reports failure through the result tag.
type CandidateProvider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) entities.ProviderResult
}

// ImageFile describes one image found under the corpus root.
type ImageFile struct {
	Path    string
	RelPath string
	Size    int64
	ModTime time.Time
}

// ImageSource enumerates and reads corpus images.
type ImageSource interface {
	// List returns every image below root, sorted by path.
	List(ctx context.Context, root string) ([]ImageFile, error)

	// Read returns the raw bytes of one image.
	Read(ctx context.Context, path string) ([]byte, error)
}

// SelectedImage is a downloaded candidate about to be written into the corpus.
type SelectedImage struct {
	Candidate entities.RawCandidate
	Event     entities.EventType
	Budget    entities.BudgetRange
	Data      []byte
	SavedAt   time.Time
}

// CorpusWriter stores accepted images inside the corpus tree.
type CorpusWriter interface {
	// Save writes the image and its metadata sidecar and returns the image path.
	Save(ctx context.Context, img SelectedImage) (string, error)
}

// EmbeddingCache persists corpus embeddings between builds.
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Put(ctx context.Context, key string, vec []float32) error
}

// ExclusionStore is the append-only set of identity keys already accepted.
type ExclusionStore interface {
	Contains(ctx context.Context, key string) (bool, error)
	Add(ctx context.Context, keys ...string) error
	Keys(ctx context.Context) ([]string, error)
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
