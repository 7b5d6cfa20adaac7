// Package usecases - corpus.go maintains the embedded local sample corpus.
package usecases

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

// Weights of the blended local-corpus score.
const (
	localEventWeight  = 0.4
	localBudgetWeight = 0.3
	localVisualWeight = 0.3
)

const defaultRebuildDebounce = 2 * time.Second

// corpusSnapshot is an immutable view of one completed build.
type corpusSnapshot struct {
	records []entities.SampleRecord // sorted by path
	byPath  map[string]int
	stats   entities.CorpusStats
}

func emptySnapshot() *corpusSnapshot {
	return &corpusSnapshot{
		byPath: map[string]int{},
		stats: entities.CorpusStats{
			ByPriceCategory: map[entities.PriceCategory]int{},
			ByEventType:     map[entities.EventType]int{},
			BySource:        map[string]int{},
		},
	}
}

// CorpusIndex scans the sample directory and holds one embedding per image.
// Readers always see a complete build: a rebuild fills a fresh snapshot and
// swaps it in.
type CorpusIndex struct {
	source   ports.ImageSource
	embedder ports.EmbeddingService
	cache    ports.EmbeddingCache

	mu       sync.Mutex // serialises builds
	root     string
	snapshot atomic.Pointer[corpusSnapshot]
}

// NewCorpusIndex creates an empty index. embedder and cache may be nil; without
// an embedder only cached embeddings can be loaded.
func NewCorpusIndex(source ports.ImageSource, embedder ports.EmbeddingService, cache ports.EmbeddingCache) *CorpusIndex {
	ci := &CorpusIndex{source: source, embedder: embedder, cache: cache}
	ci.snapshot.Store(emptySnapshot())
	return ci
}

// Build indexes every image below root and replaces the current index.
func (ci *CorpusIndex) Build(ctx context.Context, root string) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.root = root
	return ci.build(ctx)
}

// Rebuild re-indexes the last built root.
func (ci *CorpusIndex) Rebuild(ctx context.Context) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if ci.root == "" {
		return fmt.Errorf("corpus root not set")
	}
	return ci.build(ctx)
}

func (ci *CorpusIndex) build(ctx context.Context) error {
	start := time.Now()
	files, err := ci.source.List(ctx, ci.root)
	if err != nil {
		return fmt.Errorf("listing corpus %s: %w", ci.root, err)
	}

	snap := emptySnapshot()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("building corpus: %w", err)
		}

		price, event := ParseSampleMetadata(f.RelPath)
		snap.stats.TotalImages++
		snap.stats.ByPriceCategory[price]++
		snap.stats.ByEventType[event]++
		snap.stats.BySource[sampleSource(f.RelPath)]++

		vec, err := ci.embedFile(ctx, f)
		if err != nil {
			logrus.WithError(err).WithField("path", f.Path).Warn("Skipping corpus image")
			continue
		}
		snap.byPath[f.Path] = len(snap.records)
		snap.records = append(snap.records, entities.SampleRecord{
			Path:          f.Path,
			Embedding:     vec,
			PriceCategory: price,
			EventType:     event,
			Filename:      filepath.Base(f.Path),
		})
	}
	snap.stats.LastBuilt = time.Now()

	ci.snapshot.Store(snap)
	logrus.WithFields(logrus.Fields{
		"root":     ci.root,
		"files":    len(files),
		"embedded": len(snap.records),
		"took":     time.Since(start).String(),
	}).Info("Corpus index built")
	return nil
}

func (ci *CorpusIndex) embedFile(ctx context.Context, f ports.ImageFile) ([]float32, error) {
	key := fmt.Sprintf("%s|%d|%d", f.Path, f.Size, f.ModTime.UnixNano())
	if ci.cache != nil {
		vec, ok, err := ci.cache.Get(ctx, key)
		if err != nil {
			logrus.WithError(err).Debug("Embedding cache lookup failed")
		} else if ok {
			return vec, nil
		}
	}
	if ci.embedder == nil {
		return nil, entities.ErrEmbeddingUnavailable
	}

	data, err := ci.source.Read(ctx, f.Path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	vec, err := ci.embedder.Embed(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embedding image: %w", err)
	}
	vec = Normalize(vec)
	if ci.cache != nil {
		if err := ci.cache.Put(ctx, key, vec); err != nil {
			logrus.WithError(err).Debug("Embedding cache write failed")
		}
	}
	return vec, nil
}

// All returns the indexed samples sorted by path.
func (ci *CorpusIndex) All() []entities.SampleRecord {
	return slices.Clone(ci.snapshot.Load().records)
}

// Len returns the number of embedded samples.
func (ci *CorpusIndex) Len() int {
	return len(ci.snapshot.Load().records)
}

// Get looks up one sample by path.
func (ci *CorpusIndex) Get(path string) (entities.SampleRecord, bool) {
	snap := ci.snapshot.Load()
	i, ok := snap.byPath[path]
	if !ok {
		return entities.SampleRecord{}, false
	}
	return snap.records[i], true
}

// Stats summarises the last build.
func (ci *CorpusIndex) Stats() entities.CorpusStats {
	s := ci.snapshot.Load().stats
	s.ByPriceCategory = cloneMap(s.ByPriceCategory)
	s.ByEventType = cloneMap(s.ByEventType)
	s.BySource = cloneMap(s.BySource)
	return s
}

// FindSample returns the first sample of the event filed under the budget's
// price band, else the first sample of the event, else nothing.
func (ci *CorpusIndex) FindSample(event entities.EventType, budget entities.BudgetRange) (entities.SampleRecord, bool) {
	records := ci.snapshot.Load().records
	price := budget.PriceCategory()
	for _, r := range records {
		if r.EventType == event && r.PriceCategory == price {
			return r, true
		}
	}
	for _, r := range records {
		if r.EventType == event {
			return r, true
		}
	}
	return entities.SampleRecord{}, false
}

// FindLocalSimilar ranks corpus samples against a query embedding with the
// blended score 0.4*event match + 0.3*budget match + 0.3*visual similarity.
// A sample whose embedding equals the query is skipped. With a budget set only
// samples of that price band are considered.
func (ci *CorpusIndex) FindLocalSimilar(query []float32, event entities.EventType, budget entities.BudgetRange, topK int) []entities.ScoredCandidate {
	if len(query) == 0 {
		return []entities.ScoredCandidate{}
	}
	price := budget.PriceCategory()
	records := ci.snapshot.Load().records

	out := make([]entities.ScoredCandidate, 0, len(records))
	for _, r := range records {
		if slices.Equal(r.Embedding, query) {
			continue
		}
		if budget != "" && r.PriceCategory != price {
			continue
		}
		visual := CosineSimilarity(query, r.Embedding)
		score := localVisualWeight * visual
		if r.EventType == event {
			score += localEventWeight
		}
		if budget != "" && r.PriceCategory == price {
			score += localBudgetWeight
		}
		out = append(out, entities.ScoredCandidate{
			RawCandidate: entities.RawCandidate{
				ImageURL: r.Path,
				Title:    r.Filename,
				Source:   entities.SourceLocal,
			},
			RelevanceScore:   score,
			VisualSimilarity: &visual,
			Path:             r.Path,
			EventType:        r.EventType,
			PriceCategory:    r.PriceCategory,
		})
	}
	sortByScore(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// Watch rebuilds the index after image files change below the root.
// Bursts of events within debounce collapse into one rebuild. Watch blocks
// until ctx is done or the watcher closes its channel.
func (ci *CorpusIndex) Watch(ctx context.Context, watcher ports.FileWatcher, debounce time.Duration) error {
	ci.mu.Lock()
	root := ci.root
	ci.mu.Unlock()
	if root == "" {
		return fmt.Errorf("corpus root not set")
	}
	if debounce <= 0 {
		debounce = defaultRebuildDebounce
	}

	events, err := watcher.Watch(ctx, root)
	if err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if !entities.IsImagePath(ev.Path) {
				continue
			}
			logrus.WithField("path", ev.Path).Debug("Corpus change detected")
			timer.Reset(debounce)
		case <-timer.C:
			if err := ci.Rebuild(ctx); err != nil {
				logrus.WithError(err).Error("Corpus rebuild failed")
			}
		}
	}
}

// ParseSampleMetadata derives price band and event from a corpus-relative
// path. Segments are scanned in order and the first match of each kind wins.
func ParseSampleMetadata(relPath string) (entities.PriceCategory, entities.EventType) {
	price := entities.PriceUnknown
	event := entities.EventUnknown
	for _, seg := range strings.Split(filepath.ToSlash(relPath), "/") {
		seg = strings.ToLower(seg)
		if price == entities.PriceUnknown {
			for _, pt := range entities.PriceTokens {
				if strings.Contains(seg, pt.Token) {
					price = pt.Category
					break
				}
			}
		}
		if event == entities.EventUnknown {
			for _, e := range entities.EventTypes {
				if strings.Contains(seg, string(e)) {
					event = e
					break
				}
			}
		}
	}
	return price, event
}

func sampleSource(relPath string) string {
	p := filepath.ToSlash(relPath)
	switch {
	case strings.Contains(p, "provided_sample"):
		return "provided_sample"
	case strings.Contains(p, "user_selected"):
		return "user_selected"
	}
	return "other"
}

// Normalize scales v to unit length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func cloneMap[K comparable](m map[K]int) map[K]int {
	out := make(map[K]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
