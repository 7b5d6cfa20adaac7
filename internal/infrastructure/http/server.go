// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

// SearchService runs the three search paths.
type SearchService interface {
	Search(ctx context.Context, req entities.SearchRequest) (*entities.ResultBundle, error)
	UnifiedSearch(ctx context.Context, req entities.SearchRequest) (*entities.ResultBundle, error)
	ScrapeAndRank(ctx context.Context, req entities.SearchRequest) (*entities.ResultBundle, error)
}

// SelectionService accepts user-picked candidates into the corpus.
type SelectionService interface {
	Accept(ctx context.Context, event entities.EventType, budget entities.BudgetRange, candidates []entities.RawCandidate) entities.SelectionReport
}

// CorpusService exposes corpus maintenance.
type CorpusService interface {
	Stats() entities.CorpusStats
	Rebuild(ctx context.Context) error
}

// Options configures the server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	// Health reports dependency problems; nil means always healthy.
	Health func(ctx context.Context) error
}

// Server is the HTTP server for the search API.
type Server struct {
	search    SearchService
	selection SelectionService
	corpus    CorpusService
	opts      Options
	router    *gin.Engine
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

type searchRequest struct {
	EventType    string `json:"event_type" binding:"required"`
	BudgetRange  string `json:"budget_range" binding:"required"`
	ColorTheme   string `json:"color_theme"`
	MaxPerSource int    `json:"max_per_source" binding:"gte=0"`
}

type selectionRequest struct {
	EventType   string                  `json:"event_type" binding:"required"`
	BudgetRange string                  `json:"budget_range" binding:"required"`
	Candidates  []entities.RawCandidate `json:"candidates" binding:"required,min=1"`
}

// NewServer creates a new HTTP server.
func NewServer(search SearchService, selection SelectionService, corpus CorpusService, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Minute
	}
	s := &Server{
		search:    search,
		selection: selection,
		corpus:    corpus,
		opts:      opts,
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	config := cors.DefaultConfig()
	if len(s.opts.CORSOrigins) == 0 || (len(s.opts.CORSOrigins) == 1 && s.opts.CORSOrigins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = s.opts.CORSOrigins
	}
	r.Use(cors.New(config))

	api := r.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.POST("/search", s.handleSearch(s.search.Search))
		api.POST("/unified-search", s.handleSearch(s.search.UnifiedSearch))
		api.POST("/scrape", s.handleSearch(s.search.ScrapeAndRank))
		api.POST("/selections", s.handleSelections)
		api.GET("/corpus/stats", s.handleCorpusStats)
		api.POST("/corpus/rebuild", s.handleCorpusRebuild)
	}
	return r
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	logrus.WithField("addr", s.opts.Addr).Info("Board search server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Warn("Server shutdown")
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type searchFunc func(ctx context.Context, req entities.SearchRequest) (*entities.ResultBundle, error)

func (s *Server) handleSearch(run searchFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body searchRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		req, err := entities.NewSearchRequest(body.EventType, body.BudgetRange, body.ColorTheme, body.MaxPerSource)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		bundle, err := run(c.Request.Context(), req)
		if err != nil {
			c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, bundle)
	}
}

func (s *Server) handleSelections(c *gin.Context) {
	var body selectionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	event, err := entities.ParseEventType(body.EventType)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	budget, err := entities.ParseBudgetRange(body.BudgetRange)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	report := s.selection.Accept(c.Request.Context(), event, budget, body.Candidates)
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleCorpusStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.corpus.Stats())
}

func (s *Server) handleCorpusRebuild(c *gin.Context) {
	if err := s.corpus.Rebuild(c.Request.Context()); err != nil {
		logrus.WithError(err).Error("Corpus rebuild failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.corpus.Stats())
}

// handleHealth returns server health status.
func (s *Server) handleHealth(c *gin.Context) {
	resp := gin.H{
		"status":        "ok",
		"corpus_images": s.corpus.Stats().TotalImages,
	}
	if s.opts.Health != nil {
		if err := s.opts.Health(c.Request.Context()); err != nil {
			resp["status"] = "degraded"
			resp["error"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(err error) int {
	if errors.Is(err, entities.ErrInvalidEventType) || errors.Is(err, entities.ErrInvalidBudget) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"client":  c.ClientIP(),
		}).Info("HTTP request")
	}
}
