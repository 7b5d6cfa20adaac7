package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

type fakeSearch struct {
	lastReq entities.SearchRequest
	calls   map[string]int
	err     error
}

func (f *fakeSearch) run(kind string, req entities.SearchRequest) (*entities.ResultBundle, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[kind]++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &entities.ResultBundle{
		RequestID:   "req-1",
		Success:     true,
		EventType:   req.EventType,
		BudgetRange: req.BudgetRange,
		ColorTheme:  req.ColorTheme,
	}, nil
}

func (f *fakeSearch) Search(_ context.Context, req entities.SearchRequest) (*entities.ResultBundle, error) {
	return f.run("search", req)
}

func (f *fakeSearch) UnifiedSearch(_ context.Context, req entities.SearchRequest) (*entities.ResultBundle, error) {
	return f.run("unified", req)
}

func (f *fakeSearch) ScrapeAndRank(_ context.Context, req entities.SearchRequest) (*entities.ResultBundle, error) {
	return f.run("scrape", req)
}

type fakeSelection struct {
	got []entities.RawCandidate
}

func (f *fakeSelection) Accept(_ context.Context, _ entities.EventType, _ entities.BudgetRange, cands []entities.RawCandidate) entities.SelectionReport {
	f.got = cands
	report := entities.SelectionReport{}
	for _, c := range cands {
		report.Saved = append(report.Saved, entities.SavedImage{Key: c.PinID, Path: "/corpus/" + c.PinID + ".jpg"})
	}
	return report
}

type fakeCorpus struct {
	rebuilds   int
	rebuildErr error
}

func (f *fakeCorpus) Stats() entities.CorpusStats {
	return entities.CorpusStats{TotalImages: 7}
}

func (f *fakeCorpus) Rebuild(context.Context) error {
	f.rebuilds++
	return f.rebuildErr
}

func setupTestServer(opts Options) (*Server, *fakeSearch, *fakeSelection, *fakeCorpus) {
	gin.SetMode(gin.TestMode)
	search := &fakeSearch{}
	selection := &fakeSelection{}
	corpus := &fakeCorpus{}
	return NewServer(search, selection, corpus, opts), search, selection, corpus
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandleSearch_Routes(t *testing.T) {
	server, search, _, _ := setupTestServer(Options{})

	body := map[string]any{"event_type": "Wedding", "budget_range": "5001-8000", "color_theme": " red gold ", "max_per_source": 5}
	for path, kind := range map[string]string{
		"/api/search":         "search",
		"/api/unified-search": "unified",
		"/api/scrape":         "scrape",
	} {
		w := doJSON(t, server.Handler(), http.MethodPost, path, body)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, 1, search.calls[kind], path)

		var bundle entities.ResultBundle
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bundle))
		assert.True(t, bundle.Success)
		assert.Equal(t, entities.EventWedding, bundle.EventType)
	}

	assert.Equal(t, entities.BudgetMid, search.lastReq.BudgetRange)
	assert.Equal(t, "red gold", search.lastReq.ColorTheme)
	assert.Equal(t, 5, search.lastReq.MaxPerSource)
}

func TestHandleSearch_BadRequests(t *testing.T) {
	server, search, _, _ := setupTestServer(Options{})

	tests := []struct {
		name string
		body any
	}{
		{"missing event", map[string]any{"budget_range": "low"}},
		{"unknown event", map[string]any{"event_type": "birthday", "budget_range": "low"}},
		{"unknown budget", map[string]any{"event_type": "haldi", "budget_range": "luxury"}},
		{"negative max", map[string]any{"event_type": "haldi", "budget_range": "low", "max_per_source": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, server.Handler(), http.MethodPost, "/api/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
	assert.Zero(t, search.calls["search"])
}

func TestHandleSearch_MalformedJSON(t *testing.T) {
	server, _, _, _ := setupTestServer(Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSearch_UseCaseError(t *testing.T) {
	server, search, _, _ := setupTestServer(Options{})
	search.err = errors.New("corpus exploded")

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/search",
		map[string]any{"event_type": "sangeet", "budget_range": "high"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "corpus exploded")
}

func TestHandleSelections(t *testing.T) {
	server, _, selection, _ := setupTestServer(Options{})

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/selections", map[string]any{
		"event_type":   "mehendi",
		"budget_range": "low",
		"candidates": []entities.RawCandidate{
			{ImageURL: "https://img.example/a.jpg", PinID: "111", Source: entities.SourceScrapeAPI},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, selection.got, 1)
	assert.Equal(t, "https://img.example/a.jpg", selection.got[0].ImageURL)

	var report entities.SelectionReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Saved, 1)
	assert.Equal(t, "111", report.Saved[0].Key)
}

func TestHandleSelections_Invalid(t *testing.T) {
	server, _, selection, _ := setupTestServer(Options{})

	w := doJSON(t, server.Handler(), http.MethodPost, "/api/selections", map[string]any{
		"event_type":   "mehendi",
		"budget_range": "low",
		"candidates":   []entities.RawCandidate{},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, server.Handler(), http.MethodPost, "/api/selections", map[string]any{
		"event_type":   "birthday",
		"budget_range": "low",
		"candidates":   []entities.RawCandidate{{ImageURL: "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, selection.got)
}

func TestCorpusEndpoints(t *testing.T) {
	server, _, _, corpus := setupTestServer(Options{})

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/corpus/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats entities.CorpusStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 7, stats.TotalImages)

	w = doJSON(t, server.Handler(), http.MethodPost, "/api/corpus/rebuild", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, corpus.rebuilds)

	corpus.rebuildErr = errors.New("disk gone")
	w = doJSON(t, server.Handler(), http.MethodPost, "/api/corpus/rebuild", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleHealth(t *testing.T) {
	server, _, _, _ := setupTestServer(Options{})

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, float64(7), resp["corpus_images"])
}

func TestHandleHealth_Degraded(t *testing.T) {
	server, _, _, _ := setupTestServer(Options{
		Health: func(context.Context) error { return entities.ErrEmbeddingUnavailable },
	})

	w := doJSON(t, server.Handler(), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")
}

func TestCORS_Preflight(t *testing.T) {
	server, _, _, _ := setupTestServer(Options{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	server, _, _, _ := setupTestServer(Options{Addr: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Start(ctx) }()
	cancel()

	assert.NoError(t, <-done)
}
