package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

func corpusEmbedder() *mockEmbedder {
	return &mockEmbedder{vectors: map[string][]float32{
		"wm1": {2, 0, 0},
		"wm2": {0.8, 0.6, 0},
		"wl":  {0, 1, 0},
		"hl":  {0, 0, 1},
	}}
}

func corpusFiles() map[string]string {
	return map[string]string{
		"Welcome_board_decor_(5001-8000)/Wedding/provided_sample/a.jpg": "wm1",
		"Welcome_board_decor_(5001-8000)/Wedding/user_selected/b.jpg":   "wm2",
		"Welcome_board_decor_(3000-5000)/Wedding/c.png":                 "wl",
		"Welcome_board_decor_(3000-5000)/Haldi/d.webp":                  "hl",
		"misc/broken.jpg": "unknown-bytes",
	}
}

func TestParseSampleMetadata(t *testing.T) {
	tests := []struct {
		path  string
		price entities.PriceCategory
		event entities.EventType
	}{
		{"Welcome_board_decor_(5001-8000)/Wedding/provided_sample/img1.jpg", entities.PriceMid, entities.EventWedding},
		{"Haldi/Welcome_board_decor_(8001-15000)/x.png", entities.PriceHigh, entities.EventHaldi},
		{"Reception/Sangeet/x.png", entities.PriceUnknown, entities.EventReception},
		{"misc/foo.jpg", entities.PriceUnknown, entities.EventUnknown},
	}
	for _, tt := range tests {
		price, event := ParseSampleMetadata(tt.path)
		assert.Equal(t, tt.price, price, tt.path)
		assert.Equal(t, tt.event, event, tt.path)
	}
}

func TestCorpusIndex_BuildSkipsFailuresAndNormalizes(t *testing.T) {
	ci := NewCorpusIndex(&mockImageSource{files: corpusFiles()}, corpusEmbedder(), nil)
	require.NoError(t, ci.Build(context.Background(), "root"))

	all := ci.All()
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Path, all[i].Path)
	}

	rec, ok := ci.Get("root/Welcome_board_decor_(5001-8000)/Wedding/provided_sample/a.jpg")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0, 0}, rec.Embedding)
	assert.Equal(t, "a.jpg", rec.Filename)
	assert.Equal(t, entities.PriceMid, rec.PriceCategory)

	stats := ci.Stats()
	assert.Equal(t, 5, stats.TotalImages)
	assert.Equal(t, 2, stats.ByPriceCategory[entities.PriceMid])
	assert.Equal(t, 1, stats.BySource["provided_sample"])
	assert.Equal(t, 1, stats.BySource["user_selected"])
	assert.Equal(t, 3, stats.BySource["other"])
	assert.Equal(t, 3, stats.ByEventType[entities.EventWedding])
}

func TestCorpusIndex_ListFailureKeepsIndex(t *testing.T) {
	src := &mockImageSource{files: corpusFiles()}
	ci := NewCorpusIndex(src, corpusEmbedder(), nil)
	require.NoError(t, ci.Build(context.Background(), "root"))

	src.listErr = errors.New("gone")
	assert.Error(t, ci.Rebuild(context.Background()))
	assert.Equal(t, 4, ci.Len())
}

func TestCorpusIndex_RebuildNeedsRoot(t *testing.T) {
	ci := NewCorpusIndex(&mockImageSource{}, nil, nil)
	assert.Error(t, ci.Rebuild(context.Background()))
	assert.Empty(t, ci.All())
}

func TestCorpusIndex_UsesEmbeddingCache(t *testing.T) {
	cache := &mockEmbeddingCache{}
	files := corpusFiles()
	embedder := corpusEmbedder()
	ci := NewCorpusIndex(&mockImageSource{files: files}, embedder, cache)
	require.NoError(t, ci.Build(context.Background(), "root"))
	first := embedder.calls.Load()

	require.NoError(t, ci.Rebuild(context.Background()))
	// only the image that failed to embed is retried
	assert.Equal(t, first+1, embedder.calls.Load())

	offline := NewCorpusIndex(&mockImageSource{files: files}, nil, cache)
	require.NoError(t, offline.Build(context.Background(), "root"))
	assert.Equal(t, 4, offline.Len())
}

func TestCorpusIndex_FindSample(t *testing.T) {
	ci := NewCorpusIndex(&mockImageSource{files: corpusFiles()}, corpusEmbedder(), nil)
	require.NoError(t, ci.Build(context.Background(), "root"))

	s, ok := ci.FindSample(entities.EventWedding, entities.BudgetLow)
	require.True(t, ok)
	assert.Equal(t, "c.png", s.Filename)

	s, ok = ci.FindSample(entities.EventHaldi, entities.BudgetHigh)
	require.True(t, ok)
	assert.Equal(t, "d.webp", s.Filename)

	_, ok = ci.FindSample(entities.EventSangeet, entities.BudgetMid)
	assert.False(t, ok)

	empty := NewCorpusIndex(&mockImageSource{}, nil, nil)
	_, ok = empty.FindSample(entities.EventWedding, entities.BudgetMid)
	assert.False(t, ok)
}

func TestCorpusIndex_FindLocalSimilar(t *testing.T) {
	ci := NewCorpusIndex(&mockImageSource{files: corpusFiles()}, corpusEmbedder(), nil)
	require.NoError(t, ci.Build(context.Background(), "root"))
	sample, _ := ci.FindSample(entities.EventWedding, entities.BudgetMid)

	out := ci.FindLocalSimilar(sample.Embedding, entities.EventWedding, entities.BudgetMid, 8)

	// the sample itself is skipped and only mid-band samples remain
	require.Len(t, out, 1)
	assert.Equal(t, "b.jpg", out[0].Title)
	assert.Equal(t, entities.SourceLocal, out[0].Source)
	assert.InDelta(t, 0.4+0.3+0.3*0.8, out[0].RelevanceScore, 1e-6)

	all := ci.FindLocalSimilar([]float32{0, 1, 0}, entities.EventHaldi, "", 8)
	require.Len(t, all, 3)
	assert.Equal(t, "d.webp", all[0].Title) // event match outweighs the closer wedding sample
	assert.Empty(t, ci.FindLocalSimilar(nil, entities.EventHaldi, "", 8))
}

func TestCorpusIndex_ReadersNeverSeePartialBuild(t *testing.T) {
	src := &mockImageSource{files: map[string]string{
		"Wedding/a.jpg": "wm1",
		"Wedding/b.jpg": "wm2",
	}}
	slow := corpusEmbedder()
	inner := slow.vectors
	slow.embedFn = func(data []byte) ([]float32, error) {
		time.Sleep(2 * time.Millisecond)
		return inner[string(data)], nil
	}
	ci := NewCorpusIndex(src, slow, nil)
	require.NoError(t, ci.Build(context.Background(), "root"))

	src.files = corpusFiles()
	delete(src.files, "misc/broken.jpg")

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				n := len(ci.All())
				if n != 2 && n != 4 {
					t.Errorf("observed partial index of %d samples", n)
					return
				}
			}
		}
	}()
	require.NoError(t, ci.Rebuild(context.Background()))
	close(done)
	wg.Wait()
	assert.Equal(t, 4, ci.Len())
}

func TestCorpusIndex_WatchDebouncesRebuild(t *testing.T) {
	src := &mockImageSource{files: map[string]string{"Wedding/a.jpg": "wm1"}}
	ci := NewCorpusIndex(src, corpusEmbedder(), nil)
	require.NoError(t, ci.Build(context.Background(), "root"))

	watcher := &mockWatcher{events: make(chan ports.FileEvent, 10)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ci.Watch(ctx, watcher, 20*time.Millisecond) }()

	src.files["Haldi/d.webp"] = "hl"
	watcher.events <- ports.FileEvent{Path: "root/notes.txt", Operation: ports.FileCreated}
	watcher.events <- ports.FileEvent{Path: "root/Haldi/d.webp", Operation: ports.FileCreated}
	watcher.events <- ports.FileEvent{Path: "root/Haldi/d.webp", Operation: ports.FileModified}

	require.Eventually(t, func() bool { return ci.Len() == 2 }, time.Second, 10*time.Millisecond)
}
