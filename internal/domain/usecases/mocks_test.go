package usecases

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

// mockEmbedder implements ports.EmbeddingService for testing.
// By default it decodes the "image bytes" as a vector name registered in vectors.
type mockEmbedder struct {
	embedFn func(data []byte) ([]float32, error)
	vectors map[string][]float32
	calls   atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, data []byte) ([]float32, error) {
	m.calls.Add(1)
	if m.embedFn != nil {
		return m.embedFn(data)
	}
	if v, ok := m.vectors[string(data)]; ok {
		return v, nil
	}
	return nil, errors.New("cannot embed")
}

func (m *mockEmbedder) Dimension() int { return 3 }

// mockFetcher implements ports.ImageFetcher. It returns the ref itself as bytes
// unless the ref is listed in failing.
type mockFetcher struct {
	failing map[string]bool
	calls   atomic.Int32
}

func (m *mockFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	m.calls.Add(1)
	if m.failing[ref] {
		return nil, errors.New("fetch failed")
	}
	return []byte(ref), nil
}

// mockProvider implements ports.CandidateProvider.
type mockProvider struct {
	name     string
	result   entities.ProviderResult
	searchFn func(ctx context.Context, query string) entities.ProviderResult
	mu       sync.Mutex
	queries  []string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Search(ctx context.Context, query string, maxResults int) entities.ProviderResult {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.searchFn != nil {
		return m.searchFn(ctx, query)
	}
	return m.result
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queries)
}

// mockImageSource implements ports.ImageSource over an in-memory file set.
// File contents are the vector names understood by mockEmbedder.
type mockImageSource struct {
	files   map[string]string // relative path -> content
	listErr error
}

func (m *mockImageSource) List(ctx context.Context, root string) ([]ports.ImageFile, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []ports.ImageFile
	for rel, content := range m.files {
		out = append(out, ports.ImageFile{
			Path:    root + "/" + rel,
			RelPath: rel,
			Size:    int64(len(content)),
			ModTime: time.Unix(1700000000, 0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *mockImageSource) Read(ctx context.Context, path string) ([]byte, error) {
	for rel, content := range m.files {
		if strings.HasSuffix(path, "/"+rel) {
			return []byte(content), nil
		}
	}
	return nil, errors.New("not found")
}

// mockEmbeddingCache implements ports.EmbeddingCache.
type mockEmbeddingCache struct {
	mu   sync.Mutex
	data map[string][]float32
}

func (m *mockEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockEmbeddingCache) Put(ctx context.Context, key string, vec []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string][]float32{}
	}
	m.data[key] = vec
	return nil
}

// mockExclusions implements ports.ExclusionStore.
type mockExclusions struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *mockExclusions) Contains(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *mockExclusions) Add(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	for _, k := range keys {
		m.keys[k] = true
	}
	return nil
}

func (m *mockExclusions) Keys(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for k := range m.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// mockWriter implements ports.CorpusWriter.
type mockWriter struct {
	saved []ports.SelectedImage
	err   error
}

func (m *mockWriter) Save(ctx context.Context, img ports.SelectedImage) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.saved = append(m.saved, img)
	return "corpus/" + img.Candidate.Key() + ".jpg", nil
}

// mockWatcher implements ports.FileWatcher with a caller-driven channel.
type mockWatcher struct {
	events chan ports.FileEvent
}

func (m *mockWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	return m.events, nil
}

func (m *mockWatcher) Stop() error { return nil }

func cands(urls ...string) []entities.RawCandidate {
	out := make([]entities.RawCandidate, len(urls))
	for i, u := range urls {
		out[i] = entities.RawCandidate{ImageURL: u, Source: entities.SourceWeb}
	}
	return out
}

func scored(scores ...float64) []entities.ScoredCandidate {
	out := make([]entities.ScoredCandidate, len(scores))
	for i, s := range scores {
		out[i] = entities.ScoredCandidate{RelevanceScore: s}
		out[i].ImageURL = string(rune('a' + i))
	}
	return out
}
