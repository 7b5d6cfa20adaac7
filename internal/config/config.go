// Package config loads service configuration from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/boardsearch-go/internal/adapters/providers"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/usecases"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig          `yaml:"server"`
	Corpus    CorpusConfig          `yaml:"corpus"`
	Embedding EmbeddingConfig       `yaml:"embedding"`
	Fetch     FetchConfig           `yaml:"fetch"`
	Providers ProvidersConfig       `yaml:"providers"`
	Search    SearchConfig          `yaml:"search"`
	Weights   usecases.ScoreWeights `yaml:"weights"`
	Logging   LoggingConfig         `yaml:"logging"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type CorpusConfig struct {
	Root     string        `yaml:"root"`
	DataDir  string        `yaml:"data_dir"` // empty keeps caches in memory
	Watch    bool          `yaml:"watch"`
	Debounce time.Duration `yaml:"debounce"`
}

type EmbeddingConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	Dimension     int           `yaml:"dimension"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	CacheSize     int           `yaml:"cache_size"`  // remote image embeddings kept in memory
	Concurrency   int           `yaml:"concurrency"` // candidate embeddings in flight
}

type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxBytes      int64         `yaml:"max_bytes"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

type ProvidersConfig struct {
	Web       WebConfig       `yaml:"web"`
	Apify     ApifyConfig     `yaml:"apify"`
	Pinterest PinterestConfig `yaml:"pinterest"`
	DataFile  DataFileConfig  `yaml:"data_file"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Engine  string `yaml:"engine"`
	BaseURL string `yaml:"base_url"`
}

type ApifyConfig struct {
	Token    string        `yaml:"token"`
	ActorID  string        `yaml:"actor_id"`
	BaseURL  string        `yaml:"base_url"`
	UseProxy bool          `yaml:"use_proxy"`
	Timeout  time.Duration `yaml:"timeout"`
}

type PinterestConfig struct {
	Token    string `yaml:"token"`
	BaseURL  string `yaml:"base_url"`
	PageSize int    `yaml:"page_size"`
}

type DataFileConfig struct {
	Path    string                  `yaml:"path"`
	Columns providers.ColumnMapping `yaml:"columns"`
}

type SearchConfig struct {
	WebCap           int           `yaml:"web_cap"`
	SocialCap        int           `yaml:"social_cap"`
	LocalTopK        int           `yaml:"local_top_k"`
	DefaultPerSource int           `yaml:"default_per_source"`
	DiversityGap     float64       `yaml:"diversity_gap"`
	ProviderTimeout  time.Duration `yaml:"provider_timeout"`
	QueryConcurrency int64         `yaml:"query_concurrency"`
	ScrapeRankK      int           `yaml:"scrape_rank_k"`
	ScrapeDiverse    int           `yaml:"scrape_diverse"`
	ScrapeGap        float64       `yaml:"scrape_gap"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Default returns the configuration used when no file is given.
func Default() Config {
	sc := usecases.DefaultSearchConfig()
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute,
			CORSOrigins:  []string{"*"},
		},
		Corpus: CorpusConfig{
			Root:     "./downloaded_images",
			DataDir:  "./data",
			Watch:    true,
			Debounce: 2 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Enabled:     true,
			BaseURL:     "http://localhost:8001",
			Model:       "ViT-B-32",
			Dimension:   512,
			Timeout:     60 * time.Second,
			CacheSize:   512,
			Concurrency: 4,
		},
		Fetch: FetchConfig{
			Timeout:       10 * time.Second,
			MaxBytes:      15 << 20,
			RatePerSecond: 5,
		},
		Providers: ProvidersConfig{
			Web: WebConfig{Enabled: true, Engine: "google"},
			Pinterest: PinterestConfig{
				PageSize: 25,
			},
			DataFile: DataFileConfig{
				Columns: providers.DefaultColumnMapping(),
			},
		},
		Search: SearchConfig{
			WebCap:           sc.WebCap,
			SocialCap:        sc.SocialCap,
			LocalTopK:        sc.LocalTopK,
			DefaultPerSource: sc.DefaultPerSource,
			DiversityGap:     sc.DiversityGap,
			ProviderTimeout:  sc.ProviderTimeout,
			QueryConcurrency: sc.QueryConcurrency,
			ScrapeRankK:      sc.ScrapeRankK,
			ScrapeDiverse:    sc.ScrapeDiverse,
			ScrapeGap:        sc.ScrapeGap,
		},
		Weights: usecases.DefaultScoreWeights(),
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overrides fields from BOARDSEARCH_* variables. Provider tokens
// also honour their conventional names.
func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("BOARDSEARCH_ADDR", c.Server.Addr)
	c.Corpus.Root = getEnv("BOARDSEARCH_CORPUS_ROOT", c.Corpus.Root)
	c.Corpus.DataDir = getEnv("BOARDSEARCH_DATA_DIR", c.Corpus.DataDir)
	c.Corpus.Watch = getEnvBool("BOARDSEARCH_WATCH", c.Corpus.Watch)
	c.Embedding.Enabled = getEnvBool("BOARDSEARCH_EMBEDDING_ENABLED", c.Embedding.Enabled)
	c.Embedding.BaseURL = getEnv("BOARDSEARCH_EMBEDDING_URL", c.Embedding.BaseURL)
	c.Embedding.Model = getEnv("BOARDSEARCH_EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimension = getEnvInt("BOARDSEARCH_EMBEDDING_DIMENSION", c.Embedding.Dimension)
	c.Providers.Web.Enabled = getEnvBool("BOARDSEARCH_WEB_ENABLED", c.Providers.Web.Enabled)
	c.Providers.Web.Engine = getEnv("BOARDSEARCH_WEB_ENGINE", c.Providers.Web.Engine)
	c.Providers.Apify.Token = getEnv("APIFY_API_TOKEN", c.Providers.Apify.Token)
	c.Providers.Apify.Token = getEnv("BOARDSEARCH_APIFY_TOKEN", c.Providers.Apify.Token)
	c.Providers.Pinterest.Token = getEnv("PINTEREST_API_TOKEN", c.Providers.Pinterest.Token)
	c.Providers.Pinterest.Token = getEnv("BOARDSEARCH_PINTEREST_TOKEN", c.Providers.Pinterest.Token)
	c.Providers.DataFile.Path = getEnv("BOARDSEARCH_DATA_FILE", c.Providers.DataFile.Path)
	c.Search.DiversityGap = getEnvFloat("BOARDSEARCH_DIVERSITY_GAP", c.Search.DiversityGap)
	c.Search.ProviderTimeout = getEnvDuration("BOARDSEARCH_PROVIDER_TIMEOUT", c.Search.ProviderTimeout)
	c.Logging.Level = getEnv("BOARDSEARCH_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("BOARDSEARCH_LOG_FORMAT", c.Logging.Format)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Corpus.Root == "" {
		errs = append(errs, errors.New("corpus.root is required"))
	}
	if c.Embedding.Enabled && c.Embedding.Dimension <= 0 {
		errs = append(errs, errors.New("embedding.dimension must be positive"))
	}
	switch strings.ToLower(c.Providers.Web.Engine) {
	case "google", "bing":
	default:
		errs = append(errs, fmt.Errorf("providers.web.engine %q must be google or bing", c.Providers.Web.Engine))
	}
	if c.Search.DiversityGap < 0 || c.Search.DiversityGap >= 1 {
		errs = append(errs, errors.New("search.diversity_gap must be in [0, 1)"))
	}
	if c.Search.ScrapeGap < 0 || c.Search.ScrapeGap >= 1 {
		errs = append(errs, errors.New("search.scrape_gap must be in [0, 1)"))
	}
	if c.Search.WebCap < 0 || c.Search.SocialCap < 0 || c.Search.LocalTopK < 0 {
		errs = append(errs, errors.New("search caps must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be text or json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// UseCaseSearchConfig converts the search section for the use case layer.
func (c Config) UseCaseSearchConfig() usecases.SearchConfig {
	s := c.Search
	return usecases.SearchConfig{
		WebCap:           s.WebCap,
		SocialCap:        s.SocialCap,
		LocalTopK:        s.LocalTopK,
		DefaultPerSource: s.DefaultPerSource,
		DiversityGap:     s.DiversityGap,
		ProviderTimeout:  s.ProviderTimeout,
		QueryConcurrency: s.QueryConcurrency,
		ScrapeRankK:      s.ScrapeRankK,
		ScrapeDiverse:    s.ScrapeDiverse,
		ScrapeGap:        s.ScrapeGap,
	}
}

// SetupLogging configures the package-level logrus logger.
func SetupLogging(cfg LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if cfg.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
