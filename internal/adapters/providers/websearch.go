package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

// Engine selects the results page layout a WebSearch scrapes.
type Engine string

const (
	EngineGoogle Engine = "google"
	EngineBing   Engine = "bing"
)

var (
	googlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`https://[^\s"<>]+\.(?:jpg|jpeg|png|webp|gif)`),
		regexp.MustCompile(`"ou":"([^"]+)"`),
		regexp.MustCompile(`"ru":"([^"]+)"`),
		regexp.MustCompile(`data-src="([^"]+)"`),
		regexp.MustCompile(`src="([^"]+)"`),
		regexp.MustCompile(`"original":"([^"]+)"`),
		regexp.MustCompile(`"url":"([^"]+)"`),
	}
	bingPatterns = []*regexp.Regexp{
		regexp.MustCompile(`murl&quot;:&quot;([^&]+)&quot;`),
		regexp.MustCompile(`https://[^\s"<>]+\.(?:jpg|jpeg|png|webp|gif)`),
		regexp.MustCompile(`data-src="([^"]+)"`),
		regexp.MustCompile(`src="([^"]+)"`),
	}

	// skipTerms drop page chrome and off-topic imagery.
	skipTerms = []string{
		".svg", "icon", "branding", "gstatic.com/bar", "googleusercontent.com/bar",
		"logo", "data:", "bing.com/rp", "bing.com/bar", "ssl.gstatic.com/gb",
		"invitation", "card", "cake", "cake-topper", "favor", "gift",
		"sketch", "drawing", "render", "illustration", "vector", "clipart",
		"graphic", "template", "mockup", "cartoon", "anime", "painting",
	}

	// welcomeTerms promote URLs that look like real welcome boards.
	welcomeTerms = []string{
		"welcome", "sign", "board", "display", "entrance", "ceremony", "entry",
		"reception", "gate", "door", "photo", "real", "actual", "diy",
		"wedding", "event", "decor",
	}

	imageExts = []string{".jpg", ".jpeg", ".png", ".webp"}
)

// WebSearchOptions configures a WebSearch. Zero values select defaults.
type WebSearchOptions struct {
	Engine  Engine
	BaseURL string
	Timeout time.Duration
}

// WebSearch scrapes a keyword image search results page.
type WebSearch struct {
	engine  Engine
	baseURL string
	client  *http.Client
}

// NewWebSearch creates a web image search provider.
func NewWebSearch(opts WebSearchOptions) *WebSearch {
	if opts.Engine == "" {
		opts.Engine = EngineGoogle
	}
	if opts.BaseURL == "" {
		switch opts.Engine {
		case EngineBing:
			opts.BaseURL = "https://www.bing.com"
		default:
			opts.BaseURL = "https://www.google.com"
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &WebSearch{
		engine:  opts.Engine,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  newClient(opts.Timeout),
	}
}

// Name returns the provider name.
func (w *WebSearch) Name() string {
	return string(w.engine)
}

// Search fetches one results page and extracts image candidates from it.
func (w *WebSearch) Search(ctx context.Context, query string, maxResults int) entities.ProviderResult {
	if maxResults <= 0 {
		return entities.Succeeded(nil)
	}

	pageURL := w.searchURL(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return entities.Failed(fmt.Errorf("creating request: %w", err))
	}
	setBrowserHeaders(req)

	resp, err := w.client.Do(req)
	if err != nil {
		return entities.Failed(fmt.Errorf("%s search: %w", w.engine, err))
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return entities.Failed(fmt.Errorf("%s search: %w", w.engine, err))
	}

	base, _ := url.Parse(pageURL)
	cands := w.extract(body, base, maxResults)

	logrus.WithFields(logrus.Fields{
		"engine":  w.engine,
		"query":   query,
		"results": len(cands),
	}).Debug("Web search complete")
	return entities.Succeeded(cands)
}

func (w *WebSearch) searchURL(query string) string {
	q := url.QueryEscape(query)
	if w.engine == EngineBing {
		return w.baseURL + "/images/search?q=" + q
	}
	return w.baseURL + "/search?q=" + q + "&tbm=isch"
}

type webHit struct {
	url      string
	title    string
	priority int
}

// extract collects candidate image URLs from <img> elements first, then from
// regex patterns over the raw page, and orders welcome-board-looking URLs first.
func (w *WebSearch) extract(body []byte, base *url.URL, maxResults int) []entities.RawCandidate {
	limit := maxResults * 2
	seen := make(map[string]bool)
	var hits []webHit

	add := func(raw, title string) bool {
		u := cleanWebURL(raw)
		if u == "" || seen[u] || !acceptWebURL(u) {
			return len(hits) >= limit
		}
		seen[u] = true
		if title == "" {
			title = w.defaultTitle()
		}
		hits = append(hits, webHit{url: u, title: title, priority: welcomePriority(u)})
		return len(hits) >= limit
	}

	if doc, err := html.Parse(bytes.NewReader(body)); err == nil {
		for _, img := range imgSources(doc, base) {
			if add(img.src, img.alt) {
				break
			}
		}
	}

	patterns := googlePatterns
	if w.engine == EngineBing {
		patterns = bingPatterns
	}
	page := string(body)
outer:
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(page, -1) {
			match := m[0]
			if len(m) > 1 {
				match = m[1]
			}
			if len(hits) >= limit || add(match, "") {
				break outer
			}
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].priority > hits[j].priority
	})
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}

	out := make([]entities.RawCandidate, len(hits))
	for i, h := range hits {
		out[i] = entities.RawCandidate{
			ImageURL: h.url,
			Title:    h.title,
			Source:   entities.SourceWeb,
		}
	}
	return out
}

func (w *WebSearch) defaultTitle() string {
	if w.engine == EngineBing {
		return "Bing Images Result"
	}
	return "Google Images Result"
}

type imgRef struct {
	src string
	alt string
}

func imgSources(n *html.Node, base *url.URL) []imgRef {
	var refs []imgRef
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			var src, dataSrc, alt string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "src":
					src = attr.Val
				case "data-src":
					dataSrc = attr.Val
				case "alt":
					alt = attr.Val
				}
			}
			for _, s := range []string{dataSrc, src} {
				if s == "" {
					continue
				}
				if base != nil {
					if parsed, err := url.Parse(s); err == nil {
						s = base.ResolveReference(parsed).String()
					}
				}
				refs = append(refs, imgRef{src: s, alt: alt})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return refs
}

func cleanWebURL(raw string) string {
	u := strings.ReplaceAll(raw, "&quot;", `"`)
	u = strings.ReplaceAll(u, "&amp;", "&")
	if i := strings.Index(u, `","murl":"`); i >= 0 {
		u = u[i+len(`","murl":"`):]
	}
	u = strings.ReplaceAll(u, `\u003d`, "=")
	u = strings.ReplaceAll(u, `\u0026`, "&")
	return strings.TrimSpace(u)
}

func acceptWebURL(u string) bool {
	if !strings.HasPrefix(u, "http") {
		return false
	}
	lower := strings.ToLower(u)
	for _, s := range skipTerms {
		if strings.Contains(lower, s) {
			return false
		}
	}
	for _, ext := range imageExts {
		if strings.Contains(lower, ext) {
			return true
		}
	}
	return false
}

func welcomePriority(u string) int {
	lower := strings.ToLower(u)
	for _, t := range welcomeTerms {
		if strings.Contains(lower, t) {
			return 1
		}
	}
	return 0
}
