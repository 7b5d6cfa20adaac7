package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

const (
	defaultApifyBase  = "https://api.apify.com"
	defaultApifyActor = "NmOWmFiz40AgzJNxT"
)

// ApifyOptions configures an ApifyScraper.
type ApifyOptions struct {
	Token    string
	ActorID  string
	BaseURL  string
	UseProxy bool
	Timeout  time.Duration
}

// ApifyScraper runs a hosted pin-scraping actor synchronously and maps its
// dataset items to candidates.
type ApifyScraper struct {
	token    string
	actorID  string
	baseURL  string
	useProxy bool
	client   *http.Client
}

// NewApifyScraper creates the scraping service provider. A missing token is
// not an error here; Search reports the provider as unavailable.
func NewApifyScraper(opts ApifyOptions) *ApifyScraper {
	if opts.ActorID == "" {
		opts.ActorID = defaultApifyActor
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultApifyBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Minute
	}
	return &ApifyScraper{
		token:    opts.Token,
		actorID:  opts.ActorID,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		useProxy: opts.UseProxy,
		client:   newClient(opts.Timeout),
	}
}

// Name returns the provider name.
func (a *ApifyScraper) Name() string {
	return "apify"
}

type apifyInput struct {
	URLs        []string          `json:"urls"`
	Keyword     string            `json:"keyword"`
	MaxPins     int               `json:"max_pins"`
	SortOrder   string            `json:"sort_order"`
	MaxComments int               `json:"max_comments"`
	Proxy       apifyProxyOptions `json:"proxy_configuration"`
}

type apifyProxyOptions struct {
	UseApifyProxy bool `json:"useApifyProxy"`
}

// Search runs the actor for one keyword.
func (a *ApifyScraper) Search(ctx context.Context, query string, maxResults int) entities.ProviderResult {
	if a.token == "" {
		return entities.Failed(fmt.Errorf("apify: %w: no API token", entities.ErrProviderUnavailable))
	}

	body, err := json.Marshal(apifyInput{
		URLs:      []string{query},
		Keyword:   query,
		MaxPins:   maxResults,
		SortOrder: "relevance",
		Proxy:     apifyProxyOptions{UseApifyProxy: a.useProxy},
	})
	if err != nil {
		return entities.Failed(fmt.Errorf("marshaling actor input: %w", err))
	}

	endpoint := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		a.baseURL, url.PathEscape(a.actorID), url.QueryEscape(a.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return entities.Failed(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return entities.Failed(fmt.Errorf("apify run: %w", err))
	}
	defer resp.Body.Close()

	raw, err := readBody(resp)
	if err != nil {
		return entities.Failed(fmt.Errorf("apify run: %w", err))
	}

	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return entities.Failed(fmt.Errorf("decoding dataset items: %w", err))
	}

	cands := make([]entities.RawCandidate, 0, len(items))
	for _, item := range items {
		c, ok := apifyCandidate(item)
		if !ok {
			continue
		}
		cands = append(cands, c)
		if maxResults > 0 && len(cands) >= maxResults {
			break
		}
	}

	logrus.WithFields(logrus.Fields{
		"keyword": query,
		"items":   len(items),
		"pins":    len(cands),
	}).Info("Apify scrape complete")
	return entities.Succeeded(cands)
}

func apifyCandidate(item map[string]any) (entities.RawCandidate, bool) {
	imageURL := cleanEscapedURL(stringField(item, "image_url", "imageUrl", "imageURL", "image"))
	if imageURL == "" {
		return entities.RawCandidate{}, false
	}

	var title string
	switch t := item["title"].(type) {
	case string:
		title = t
	case map[string]any:
		title = stringField(t, "format")
	}

	var creator string
	if c, ok := item["creator"].(map[string]any); ok {
		creator = stringField(c, "name", "username")
	}

	return entities.RawCandidate{
		ImageURL:    imageURL,
		Title:       title,
		Source:      entities.SourceScrapeService,
		PinID:       stringField(item, "id", "node_id"),
		PinURL:      stringField(item, "url", "link"),
		Description: stringField(item, "description"),
		Creator:     creator,
		Saves:       intField(item, "saves"),
	}, true
}

// cleanEscapedURL percent-decodes a URL and resolves literal \uXXXX escapes.
func cleanEscapedURL(u string) string {
	if u == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(u); err == nil {
		u = decoded
	}
	if strings.Contains(u, `\u`) {
		if unq, err := strconv.Unquote(`"` + strings.ReplaceAll(u, `"`, `\"`) + `"`); err == nil {
			u = unq
		}
	}
	return u
}
