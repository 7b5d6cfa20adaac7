// Command boardsearch serves the welcome-board image search API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/boardsearch-go/internal/adapters/embedding"
	"github.com/0xcro3dile/boardsearch-go/internal/adapters/fetcher"
	"github.com/0xcro3dile/boardsearch-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/boardsearch-go/internal/adapters/loader"
	"github.com/0xcro3dile/boardsearch-go/internal/adapters/providers"
	"github.com/0xcro3dile/boardsearch-go/internal/adapters/store"
	"github.com/0xcro3dile/boardsearch-go/internal/config"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/usecases"
	server "github.com/0xcro3dile/boardsearch-go/internal/infrastructure/http"
)

// caches is what the corpus index and the exclusion filter share.
type caches interface {
	ports.EmbeddingCache
	ports.ExclusionStore
	Close() error
}

// queryOptions selects one-shot mode: run a single search, print the bundle
// as JSON and exit instead of serving.
type queryOptions struct {
	event  string
	budget string
	theme  string
	mode   string
	max    int
}

func main() {
	var q queryOptions
	configPath := flag.String("config", "", "Path to boardsearch.yaml (defaults and environment only when empty)")
	flag.StringVar(&q.event, "event", "", "Run one search for this event type and exit")
	flag.StringVar(&q.budget, "budget", "mid", "Budget tier or rupee band for -event")
	flag.StringVar(&q.theme, "theme", "", "Color theme for -event")
	flag.StringVar(&q.mode, "mode", "search", "search, unified or scrape")
	flag.IntVar(&q.max, "max", 0, "Results per source (0 uses the configured default)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("boardsearch: %v", err)
	}
	if err := config.SetupLogging(cfg.Logging); err != nil {
		logrus.Fatalf("boardsearch: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, q); err != nil {
		logrus.Fatalf("boardsearch: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, q queryOptions) error {
	if err := os.MkdirAll(cfg.Corpus.Root, 0755); err != nil {
		return fmt.Errorf("create corpus root: %w", err)
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var embedder ports.EmbeddingService
	var clip *embedding.ClipAdapter
	if cfg.Embedding.Enabled {
		clip = embedding.NewClipAdapter(embedding.Options{
			BaseURL:       cfg.Embedding.BaseURL,
			Model:         cfg.Embedding.Model,
			Dimension:     cfg.Embedding.Dimension,
			Timeout:       cfg.Embedding.Timeout,
			RatePerSecond: cfg.Embedding.RatePerSecond,
		})
		embedder = clip
		if err := clip.Ping(ctx); err != nil {
			logrus.WithError(err).Warn("Embedding service not reachable, visual similarity degraded until it is")
		}
	} else {
		logrus.Info("Embeddings disabled, running keyword scoring only")
	}

	fetch := fetcher.NewHTTPFetcher(fetcher.Options{
		Timeout:       cfg.Fetch.Timeout,
		MaxBytes:      cfg.Fetch.MaxBytes,
		RatePerSecond: cfg.Fetch.RatePerSecond,
		LocalRoots:    []string{cfg.Corpus.Root},
	})

	corpus := usecases.NewCorpusIndex(loader.NewImageLoader(), embedder, st)
	if err := corpus.Build(ctx, cfg.Corpus.Root); err != nil {
		logrus.WithError(err).Error("Initial corpus build failed, serving with an empty corpus")
	}

	ranker, err := usecases.NewSimilarityRanker(corpus, fetch, embedder, cfg.Embedding.CacheSize, cfg.Embedding.Concurrency)
	if err != nil {
		return err
	}

	var web ports.CandidateProvider
	if cfg.Providers.Web.Enabled {
		web = providers.NewWebSearch(providers.WebSearchOptions{
			Engine:  providers.Engine(cfg.Providers.Web.Engine),
			BaseURL: cfg.Providers.Web.BaseURL,
			Timeout: cfg.Search.ProviderTimeout,
		})
	}

	social := usecases.NewFallbackChain(cfg.Search.ProviderTimeout,
		providers.NewApifyScraper(providers.ApifyOptions{
			Token:    cfg.Providers.Apify.Token,
			ActorID:  cfg.Providers.Apify.ActorID,
			BaseURL:  cfg.Providers.Apify.BaseURL,
			UseProxy: cfg.Providers.Apify.UseProxy,
			Timeout:  cfg.Providers.Apify.Timeout,
		}),
		providers.NewPinterestAPI(providers.PinterestOptions{
			Token:    cfg.Providers.Pinterest.Token,
			BaseURL:  cfg.Providers.Pinterest.BaseURL,
			PageSize: cfg.Providers.Pinterest.PageSize,
		}),
		providers.NewDataFile(cfg.Providers.DataFile.Path, cfg.Providers.DataFile.Columns),
	)

	search := usecases.NewSearchUseCase(
		corpus,
		web,
		social,
		usecases.NewRelevanceScorer(cfg.Weights),
		ranker,
		st,
		cfg.UseCaseSearchConfig(),
	)
	selection := usecases.NewSelectionUseCase(fetch, loader.NewCorpusWriter(cfg.Corpus.Root), st, corpus)

	if q.event != "" {
		return runQuery(ctx, search, q)
	}

	if cfg.Corpus.Watch {
		watcher, err := filewatcher.NewFSNotifyWatcher(nil)
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Stop()
		go func() {
			if err := corpus.Watch(ctx, watcher, cfg.Corpus.Debounce); err != nil {
				logrus.WithError(err).Warn("Corpus watcher stopped")
			}
		}()
	}

	opts := server.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		CORSOrigins:  cfg.Server.CORSOrigins,
	}
	if clip != nil {
		opts.Health = clip.Ping
	}

	logrus.WithFields(logrus.Fields{
		"corpus":        cfg.Corpus.Root,
		"corpus_images": corpus.Len(),
		"web":           cfg.Providers.Web.Enabled,
	}).Info("Board search ready")

	return server.NewServer(search, selection, corpus, opts).Start(ctx)
}

func openStore(cfg config.Config) (caches, error) {
	if cfg.Corpus.DataDir == "" {
		return store.NewMemoryStore(), nil
	}
	model := cfg.Embedding.Model
	if !cfg.Embedding.Enabled {
		model = "none"
	}
	st, err := store.NewSQLiteStore(cfg.Corpus.DataDir, model)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func runQuery(ctx context.Context, search *usecases.SearchUseCase, q queryOptions) error {
	req, err := entities.NewSearchRequest(q.event, q.budget, q.theme, q.max)
	if err != nil {
		return err
	}

	var bundle *entities.ResultBundle
	switch q.mode {
	case "search":
		bundle, err = search.Search(ctx, req)
	case "unified":
		bundle, err = search.UnifiedSearch(ctx, req)
	case "scrape":
		bundle, err = search.ScrapeAndRank(ctx, req)
	default:
		return fmt.Errorf("unknown mode %q", q.mode)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(bundle)
}
