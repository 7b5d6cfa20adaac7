// Package usecases - similarity.go ranks remote candidates by visual similarity
// to the local corpus.
package usecases

import (
	"context"
	"fmt"
	"math"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

// avgTopN is how many of the best sample similarities feed AvgSimilarity.
const avgTopN = 5

// CosineSimilarity returns dot(a,b)/(|a||b|). Vectors of different length or
// with zero norm have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SampleSource exposes the current corpus snapshot.
type SampleSource interface {
	All() []entities.SampleRecord
}

// RankFilter narrows the samples a candidate is compared against.
// Empty fields match everything.
type RankFilter struct {
	Event  entities.EventType
	Budget entities.BudgetRange
}

func (f RankFilter) matches(s entities.SampleRecord) bool {
	if f.Event != "" && s.EventType != f.Event {
		return false
	}
	if f.Budget != "" && s.PriceCategory != f.Budget.PriceCategory() {
		return false
	}
	return true
}

// SimilarityRanker downloads and embeds candidates, then scores each one by
// its best cosine similarity to the corpus.
type SimilarityRanker struct {
	corpus      SampleSource
	fetcher     ports.ImageFetcher
	embedder    ports.EmbeddingService
	cache       *lru.Cache[string, []float32]
	concurrency int
}

// NewSimilarityRanker creates a ranker. embedder may be nil, in which case
// every Rank call takes the degraded path.
func NewSimilarityRanker(
	corpus SampleSource,
	fetcher ports.ImageFetcher,
	embedder ports.EmbeddingService,
	cacheSize int,
	concurrency int,
) (*SimilarityRanker, error) {
	if cacheSize <= 0 {
		cacheSize = 512
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &SimilarityRanker{
		corpus:      corpus,
		fetcher:     fetcher,
		embedder:    embedder,
		cache:       cache,
		concurrency: concurrency,
	}, nil
}

// Rank returns at most topK candidates sorted by visual similarity.
// Candidates that cannot be fetched or embedded are dropped. When nothing can
// be compared (no corpus, no embedder, or every candidate failed) the input is
// returned truncated to topK with zero scores.
func (r *SimilarityRanker) Rank(ctx context.Context, candidates []entities.RawCandidate, filter RankFilter, topK int) []entities.ScoredCandidate {
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	samples := r.corpus.All()
	if len(samples) == 0 || r.embedder == nil || r.fetcher == nil {
		return zeroScored(candidates, topK)
	}

	targets := make([]entities.SampleRecord, 0, len(samples))
	for _, s := range samples {
		if filter.matches(s) {
			targets = append(targets, s)
		}
	}
	if len(targets) == 0 {
		targets = samples
	}

	// Results are slotted by input index so completion order never leaks.
	slots := make([]*entities.ScoredCandidate, len(candidates))
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			vec, err := r.embedCandidate(ctx, c)
			if err != nil {
				logrus.WithError(err).WithField("image_url", c.ImageURL).Debug("Skipping candidate")
				return nil
			}
			slots[i] = scoreAgainst(c, vec, targets)
			return nil
		})
	}
	_ = g.Wait()

	ranked := make([]entities.ScoredCandidate, 0, len(candidates))
	for _, s := range slots {
		if s != nil {
			ranked = append(ranked, *s)
		}
	}
	if len(ranked) == 0 {
		logrus.WithField("candidates", len(candidates)).Warn("No candidate could be embedded, returning unscored list")
		return zeroScored(candidates, topK)
	}

	sortByScore(ranked)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

func (r *SimilarityRanker) embedCandidate(ctx context.Context, c entities.RawCandidate) ([]float32, error) {
	if c.ImageURL == "" {
		return nil, fmt.Errorf("candidate has no image url")
	}
	if vec, ok := r.cache.Get(c.ImageURL); ok {
		return vec, nil
	}
	data, err := r.fetcher.Fetch(ctx, c.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching image: %w", err)
	}
	vec, err := r.embedder.Embed(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("embedding image: %w", err)
	}
	r.cache.Add(c.ImageURL, vec)
	return vec, nil
}

func scoreAgainst(c entities.RawCandidate, vec []float32, targets []entities.SampleRecord) *entities.ScoredCandidate {
	sims := make([]float64, len(targets))
	best := 0
	for i, s := range targets {
		sims[i] = CosineSimilarity(vec, s.Embedding)
		if sims[i] > sims[best] {
			best = i
		}
	}
	visual := sims[best]

	sorted := append([]float64(nil), sims...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	n := min(avgTopN, len(sorted))
	var sum float64
	for _, v := range sorted[:n] {
		sum += v
	}
	avg := sum / float64(n)

	match := targets[best]
	return &entities.ScoredCandidate{
		RawCandidate:     c,
		RelevanceScore:   visual,
		VisualSimilarity: &visual,
		AvgSimilarity:    &avg,
		BestMatch: &entities.BestMatch{
			Path:          match.Path,
			EventType:     match.EventType,
			PriceCategory: match.PriceCategory,
			Similarity:    visual,
		},
	}
}

func zeroScored(candidates []entities.RawCandidate, topK int) []entities.ScoredCandidate {
	if topK > len(candidates) {
		topK = len(candidates)
	}
	out := make([]entities.ScoredCandidate, topK)
	for i := range out {
		out[i] = entities.ScoredCandidate{RawCandidate: candidates[i]}
	}
	return out
}
