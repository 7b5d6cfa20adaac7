// Package usecases - search.go orchestrates the search paths over all families.
package usecases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

// SearchConfig bounds and tunes the search paths.
type SearchConfig struct {
	WebCap           int           // max web results in a bundle
	SocialCap        int           // max social results in a bundle
	LocalTopK        int           // max local corpus results
	DefaultPerSource int           // provider page size when the request has none
	DiversityGap     float64       // > 0 enables diversity selection on the similarity path
	ProviderTimeout  time.Duration // budget of one provider call
	QueryConcurrency int64         // query variants searched at once

	ScrapeRankK   int     // candidates kept after similarity ranking in ScrapeAndRank
	ScrapeDiverse int     // results kept after diversity selection in ScrapeAndRank
	ScrapeGap     float64 // minimum score gap in ScrapeAndRank
}

// DefaultSearchConfig returns the defaults used when a field is zero.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		WebCap:           8,
		SocialCap:        12,
		LocalTopK:        8,
		DefaultPerSource: 20,
		ProviderTimeout:  30 * time.Second,
		QueryConcurrency: 2,
		ScrapeRankK:      50,
		ScrapeDiverse:    25,
		ScrapeGap:        0.15,
	}
}

func (c SearchConfig) withDefaults() SearchConfig {
	d := DefaultSearchConfig()
	if c.WebCap <= 0 {
		c.WebCap = d.WebCap
	}
	if c.SocialCap <= 0 {
		c.SocialCap = d.SocialCap
	}
	if c.LocalTopK <= 0 {
		c.LocalTopK = d.LocalTopK
	}
	if c.DefaultPerSource <= 0 {
		c.DefaultPerSource = d.DefaultPerSource
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = d.ProviderTimeout
	}
	if c.QueryConcurrency <= 0 {
		c.QueryConcurrency = d.QueryConcurrency
	}
	if c.ScrapeRankK <= 0 {
		c.ScrapeRankK = d.ScrapeRankK
	}
	if c.ScrapeDiverse <= 0 {
		c.ScrapeDiverse = d.ScrapeDiverse
	}
	if c.ScrapeGap <= 0 {
		c.ScrapeGap = d.ScrapeGap
	}
	return c
}

// SearchUseCase composes the corpus, providers and rankers into the three
// search paths. One family failing never fails the others.
type SearchUseCase struct {
	corpus     *CorpusIndex
	web        ports.CandidateProvider
	social     *FallbackChain
	scorer     *RelevanceScorer
	ranker     *SimilarityRanker
	exclusions ports.ExclusionStore
	cfg        SearchConfig
}

// NewSearchUseCase creates a SearchUseCase with injected dependencies.
// web, exclusions and ranker may be nil.
func NewSearchUseCase(
	corpus *CorpusIndex,
	web ports.CandidateProvider,
	social *FallbackChain,
	scorer *RelevanceScorer,
	ranker *SimilarityRanker,
	exclusions ports.ExclusionStore,
	cfg SearchConfig,
) *SearchUseCase {
	if scorer == nil {
		scorer = NewRelevanceScorer(ScoreWeights{})
	}
	if social == nil {
		social = NewFallbackChain(cfg.ProviderTimeout)
	}
	return &SearchUseCase{
		corpus:     corpus,
		web:        web,
		social:     social,
		scorer:     scorer,
		ranker:     ranker,
		exclusions: exclusions,
		cfg:        cfg.withDefaults(),
	}
}

// Search runs the categorical path: term-scored web and social families plus
// the local corpus family blended by event, budget and visual similarity.
func (uc *SearchUseCase) Search(ctx context.Context, req entities.SearchRequest) (*entities.ResultBundle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	bundle := uc.newBundle(req)
	log := logrus.WithField("request_id", bundle.RequestID)
	bundle.Queries = BuildQueries(req.EventType, req.BudgetRange, bundle.ColorTermsUsed)
	perSource := uc.perSource(req)

	log.WithFields(logrus.Fields{
		"event":   req.EventType,
		"budget":  req.BudgetRange,
		"theme":   req.ColorTheme,
		"queries": len(bundle.Queries),
	}).Info("Starting search")

	var local, web, social []entities.ScoredCandidate
	var g errgroup.Group
	g.Go(func() error {
		local = uc.localFamily(req)
		return nil
	})
	g.Go(func() error {
		raw := uc.acrossQueries(ctx, bundle.Queries, func(ctx context.Context, q string) []entities.RawCandidate {
			return SearchOrEmpty(ctx, uc.web, q, perSource, uc.cfg.ProviderTimeout)
		})
		web = uc.scoreFamily(raw, req.EventType, bundle.ColorTermsUsed)
		return nil
	})
	g.Go(func() error {
		raw := uc.acrossQueries(ctx, bundle.Queries, func(ctx context.Context, q string) []entities.RawCandidate {
			return uc.social.Fetch(ctx, q, perSource)
		})
		social = uc.scoreFamily(raw, req.EventType, bundle.ColorTermsUsed)
		return nil
	})
	_ = g.Wait()

	excluded := uc.loadExclusions(ctx)
	var dropped int
	web, dropped = filterExcluded(web, excluded)
	bundle.FilteredExcluded += dropped
	social, dropped = filterExcluded(social, excluded)
	bundle.FilteredExcluded += dropped

	bundle.Local = entities.NewFamilyResult(local)
	bundle.Web = entities.NewFamilyResult(truncate(web, uc.cfg.WebCap))
	bundle.Social = entities.NewFamilyResult(truncate(social, uc.cfg.SocialCap))
	uc.finish(bundle, log)
	return bundle, nil
}

// UnifiedSearch runs the similarity path: one web query and the social chain
// on the first social keyword, both ranked by visual similarity to the corpus.
func (uc *SearchUseCase) UnifiedSearch(ctx context.Context, req entities.SearchRequest) (*entities.ResultBundle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	bundle := uc.newBundle(req)
	log := logrus.WithField("request_id", bundle.RequestID)
	webQuery := WebQuery(req.EventType, req.ColorTheme)
	keywords := SocialKeywords(req.EventType, req.BudgetRange, req.ColorTheme)
	bundle.Queries = []string{webQuery, keywords[0]}
	filter := RankFilter{Event: req.EventType, Budget: req.BudgetRange}
	perSource := uc.perSource(req)
	excluded := uc.loadExclusions(ctx)

	log.WithFields(logrus.Fields{
		"event":  req.EventType,
		"budget": req.BudgetRange,
		"theme":  req.ColorTheme,
	}).Info("Starting unified search")

	var web, social []entities.ScoredCandidate
	var webDropped, socialDropped int
	var g errgroup.Group
	g.Go(func() error {
		raw := Dedupe(SearchOrEmpty(ctx, uc.web, webQuery, max(perSource, uc.cfg.WebCap), uc.cfg.ProviderTimeout))
		raw, webDropped = filterExcludedRaw(raw, excluded)
		web = uc.rankFamily(ctx, raw, filter, uc.cfg.WebCap)
		return nil
	})
	g.Go(func() error {
		raw := Dedupe(uc.social.Fetch(ctx, keywords[0], max(perSource, uc.cfg.SocialCap)))
		raw, socialDropped = filterExcludedRaw(raw, excluded)
		social = uc.rankFamily(ctx, raw, filter, uc.cfg.SocialCap)
		return nil
	})
	_ = g.Wait()

	bundle.FilteredExcluded = webDropped + socialDropped
	bundle.Web = entities.NewFamilyResult(web)
	bundle.Social = entities.NewFamilyResult(social)
	uc.finish(bundle, log)
	return bundle, nil
}

// ScrapeAndRank runs the social chain only and returns a diverse selection of
// its best visual matches.
func (uc *SearchUseCase) ScrapeAndRank(ctx context.Context, req entities.SearchRequest) (*entities.ResultBundle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	bundle := uc.newBundle(req)
	log := logrus.WithField("request_id", bundle.RequestID)
	keywords := SocialKeywords(req.EventType, req.BudgetRange, req.ColorTheme)
	bundle.Queries = keywords[:1]

	raw := Dedupe(uc.social.Fetch(ctx, keywords[0], max(uc.perSource(req), uc.cfg.ScrapeRankK)))
	raw, bundle.FilteredExcluded = filterExcludedRaw(raw, uc.loadExclusions(ctx))

	var ranked []entities.ScoredCandidate
	if uc.ranker != nil {
		ranked = uc.ranker.Rank(ctx, raw, RankFilter{Event: req.EventType, Budget: req.BudgetRange}, uc.cfg.ScrapeRankK)
	} else {
		ranked = zeroScored(raw, uc.cfg.ScrapeRankK)
	}
	bundle.Social = entities.NewFamilyResult(SelectDiverse(ranked, uc.cfg.ScrapeDiverse, uc.cfg.ScrapeGap))
	uc.finish(bundle, log)
	return bundle, nil
}

func (uc *SearchUseCase) newBundle(req entities.SearchRequest) *entities.ResultBundle {
	terms := ResolveColorTerms(req.ColorTheme)
	if terms == nil {
		terms = []string{}
	}
	return &entities.ResultBundle{
		RequestID:      uuid.NewString(),
		EventType:      req.EventType,
		BudgetRange:    req.BudgetRange,
		ColorTheme:     req.ColorTheme,
		ColorTermsUsed: terms,
		Local:          entities.NewFamilyResult(nil),
		Web:            entities.NewFamilyResult(nil),
		Social:         entities.NewFamilyResult(nil),
	}
}

func (uc *SearchUseCase) finish(b *entities.ResultBundle, log *logrus.Entry) {
	b.CombinedTotal = b.Local.TotalResults + b.Web.TotalResults + b.Social.TotalResults
	b.Success = true
	log.WithFields(logrus.Fields{
		"local":    b.Local.TotalResults,
		"web":      b.Web.TotalResults,
		"social":   b.Social.TotalResults,
		"excluded": b.FilteredExcluded,
	}).Info("Search finished")
}

func (uc *SearchUseCase) perSource(req entities.SearchRequest) int {
	if req.MaxPerSource > 0 {
		return req.MaxPerSource
	}
	return uc.cfg.DefaultPerSource
}

func (uc *SearchUseCase) localFamily(req entities.SearchRequest) []entities.ScoredCandidate {
	if uc.corpus == nil {
		return nil
	}
	sample, ok := uc.corpus.FindSample(req.EventType, req.BudgetRange)
	if !ok {
		return nil
	}
	return uc.corpus.FindLocalSimilar(sample.Embedding, req.EventType, req.BudgetRange, uc.cfg.LocalTopK)
}

// acrossQueries runs fetch for each query with bounded concurrency and
// concatenates the results in query order.
func (uc *SearchUseCase) acrossQueries(ctx context.Context, queries []string, fetch func(context.Context, string) []entities.RawCandidate) []entities.RawCandidate {
	perQuery := make([][]entities.RawCandidate, len(queries))
	sem := semaphore.NewWeighted(uc.cfg.QueryConcurrency)
	var g errgroup.Group
	for i, q := range queries {
		i, q := i, q
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			perQuery[i] = fetch(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	var all []entities.RawCandidate
	for _, r := range perQuery {
		all = append(all, r...)
	}
	return all
}

func (uc *SearchUseCase) scoreFamily(raw []entities.RawCandidate, event entities.EventType, colorTerms []string) []entities.ScoredCandidate {
	ranked := uc.scorer.Rank(Dedupe(raw), event, colorTerms)
	valid := ranked[:0]
	for _, c := range ranked {
		if ValidateImageContent(c.ImageURL) {
			valid = append(valid, c)
		}
	}
	return valid
}

func (uc *SearchUseCase) rankFamily(ctx context.Context, raw []entities.RawCandidate, filter RankFilter, topK int) []entities.ScoredCandidate {
	var ranked []entities.ScoredCandidate
	if uc.ranker != nil {
		ranked = uc.ranker.Rank(ctx, raw, filter, topK)
	} else {
		ranked = zeroScored(raw, topK)
	}
	if uc.cfg.DiversityGap > 0 {
		ranked = SelectDiverse(ranked, topK, uc.cfg.DiversityGap)
	}
	return ranked
}

func (uc *SearchUseCase) loadExclusions(ctx context.Context) map[string]struct{} {
	set := map[string]struct{}{}
	if uc.exclusions == nil {
		return set
	}
	keys, err := uc.exclusions.Keys(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Loading exclusion list failed, results are unfiltered")
		return set
	}
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func filterExcluded(list []entities.ScoredCandidate, excluded map[string]struct{}) ([]entities.ScoredCandidate, int) {
	if len(excluded) == 0 {
		return list, 0
	}
	out := make([]entities.ScoredCandidate, 0, len(list))
	for _, c := range list {
		if _, ok := excluded[c.Key()]; ok {
			continue
		}
		out = append(out, c)
	}
	return out, len(list) - len(out)
}

func filterExcludedRaw(list []entities.RawCandidate, excluded map[string]struct{}) ([]entities.RawCandidate, int) {
	if len(excluded) == 0 {
		return list, 0
	}
	out := make([]entities.RawCandidate, 0, len(list))
	for _, c := range list {
		if _, ok := excluded[c.Key()]; ok {
			continue
		}
		out = append(out, c)
	}
	return out, len(list) - len(out)
}

func truncate(list []entities.ScoredCandidate, n int) []entities.ScoredCandidate {
	if n > 0 && len(list) > n {
		return list[:n]
	}
	return list
}
