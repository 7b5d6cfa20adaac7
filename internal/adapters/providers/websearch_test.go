package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

var (
	_ ports.CandidateProvider = (*WebSearch)(nil)
	_ ports.CandidateProvider = (*ApifyScraper)(nil)
	_ ports.CandidateProvider = (*PinterestAPI)(nil)
	_ ports.CandidateProvider = (*DataFile)(nil)
)

const googlePage = `<html><body>
<img src="https://cdn.example.com/logo.png">
<img data-src="https://cdn.example.com/pastel-stand.jpg" alt="Pastel stand">
<img src="https://cdn.example.com/welcome-board-floral.jpg" alt="Floral welcome board">
<img src="/relative/icon.gif">
<script>var d = {"ou":"https://img.example.com/sketch-board.png","url":"https://img.example.com/wedding-entrance.webp"};</script>
</body></html>`

func TestWebSearch_Google(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "isch", r.URL.Query().Get("tbm"))
		assert.Equal(t, "wedding welcome board", r.URL.Query().Get("q"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(googlePage))
	}))
	defer server.Close()

	ws := NewWebSearch(WebSearchOptions{Engine: EngineGoogle, BaseURL: server.URL})
	res := ws.Search(context.Background(), "wedding welcome board", 10)

	require.True(t, res.OK())
	urls := make([]string, len(res.Candidates))
	for i, c := range res.Candidates {
		urls[i] = c.ImageURL
		assert.Equal(t, entities.SourceWeb, c.Source)
	}
	assert.NotContains(t, urls, "https://cdn.example.com/logo.png")
	assert.NotContains(t, urls, "https://img.example.com/sketch-board.png")
	assert.Contains(t, urls, "https://cdn.example.com/pastel-stand.jpg")
	assert.Contains(t, urls, "https://img.example.com/wedding-entrance.webp")

	// Welcome-looking URLs are ordered ahead of the rest.
	assert.Equal(t, "https://cdn.example.com/welcome-board-floral.jpg", urls[0])
	assert.Equal(t, "https://cdn.example.com/pastel-stand.jpg", urls[len(urls)-1])
	assert.Equal(t, "Floral welcome board", res.Candidates[0].Title)
}

func TestWebSearch_BingMurl(t *testing.T) {
	page := `<a m="{&quot;murl&quot;:&quot;https://photos.example.com/entrance-sign.jpg&quot;}"></a>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/search", r.URL.Path)
		w.Write([]byte(page))
	}))
	defer server.Close()

	ws := NewWebSearch(WebSearchOptions{Engine: EngineBing, BaseURL: server.URL})
	assert.Equal(t, "bing", ws.Name())

	res := ws.Search(context.Background(), "engagement welcome board", 5)
	require.True(t, res.OK())
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "https://photos.example.com/entrance-sign.jpg", res.Candidates[0].ImageURL)
	assert.Equal(t, "Bing Images Result", res.Candidates[0].Title)
}

func TestWebSearch_Limit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(googlePage))
	}))
	defer server.Close()

	res := NewWebSearch(WebSearchOptions{BaseURL: server.URL}).Search(context.Background(), "q", 1)
	require.True(t, res.OK())
	assert.Len(t, res.Candidates, 1)
}

func TestWebSearch_Failures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	res := NewWebSearch(WebSearchOptions{BaseURL: server.URL}).Search(context.Background(), "q", 5)
	assert.Equal(t, entities.ProviderError, res.Status)
	assert.Error(t, res.Err)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html></html>"))
	}))
	defer empty.Close()

	res = NewWebSearch(WebSearchOptions{BaseURL: empty.URL}).Search(context.Background(), "q", 5)
	assert.Equal(t, entities.ProviderEmpty, res.Status)
}

func TestCleanWebURL(t *testing.T) {
	assert.Equal(t, "https://a.com/x.jpg?a=1&b=2", cleanWebURL(`https://a.com/x.jpg?a=1&b=2`))
	assert.Equal(t, "https://a.com/y.png", cleanWebURL(`{"purl":"x","murl":"https://a.com/y.png`))
	assert.False(t, acceptWebURL("ftp://a.com/x.jpg"))
	assert.False(t, acceptWebURL("https://a.com/page.html"))
	assert.True(t, acceptWebURL("https://a.com/x.JPEG"))
}
