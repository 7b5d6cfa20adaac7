package providers

import (
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
	defaultPinterestBase = "https://api.pinterest.com/v5"
	maxPageSize          = 250
)

// imageSizes is the preference order for pin media.
var imageSizes = []string{"originals", "1200x", "736x", "564x"}

// PinterestOptions configures a PinterestAPI.
type PinterestOptions struct {
	Token    string
	BaseURL  string
	PageSize int
	Timeout  time.Duration
}

// PinterestAPI searches pins through the official v5 REST API with
// bookmark pagination.
type PinterestAPI struct {
	token    string
	baseURL  string
	pageSize int
	client   *http.Client
}

// NewPinterestAPI creates the pin search API provider.
func NewPinterestAPI(opts PinterestOptions) *PinterestAPI {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultPinterestBase
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 25
	}
	if opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	return &PinterestAPI{
		token:    opts.Token,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		pageSize: opts.PageSize,
		client:   newClient(opts.Timeout),
	}
}

// Name returns the provider name.
func (p *PinterestAPI) Name() string {
	return "pinterest_api"
}

type pinPage struct {
	Items    []pinItem `json:"items"`
	Bookmark string    `json:"bookmark"`
}

type pinItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Note        string `json:"note"`
	ImageURL    string `json:"image_url"`
	Media       struct {
		Images map[string]struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"media"`
	PinMetrics struct {
		Saves int `json:"saves"`
	} `json:"pin_metrics"`
	Creator struct {
		Username string `json:"username"`
	} `json:"creator"`
}

// Search pages through results until maxResults pins are collected or the
// API stops returning a bookmark.
func (p *PinterestAPI) Search(ctx context.Context, query string, maxResults int) entities.ProviderResult {
	if p.token == "" {
		return entities.Failed(fmt.Errorf("pinterest api: %w: no API token", entities.ErrProviderUnavailable))
	}

	var (
		cands    []entities.RawCandidate
		bookmark string
	)
	for len(cands) < maxResults {
		page, err := p.fetchPage(ctx, query, bookmark)
		if err != nil {
			return entities.Failed(err)
		}
		if len(page.Items) == 0 {
			break
		}
		for _, item := range page.Items {
			if len(cands) >= maxResults {
				break
			}
			if c, ok := formatPin(item); ok {
				cands = append(cands, c)
			}
		}
		if page.Bookmark == "" || page.Bookmark == bookmark {
			break
		}
		bookmark = page.Bookmark
	}

	logrus.WithFields(logrus.Fields{
		"query": query,
		"pins":  len(cands),
	}).Info("Pinterest API search complete")
	return entities.Succeeded(cands)
}

func (p *PinterestAPI) fetchPage(ctx context.Context, query, bookmark string) (*pinPage, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("page_size", strconv.Itoa(p.pageSize))
	if bookmark != "" {
		params.Set("bookmark", bookmark)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/search/pins?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinterest api: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("pinterest api: invalid API token")
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("pinterest api: rate limit exceeded")
	}

	body, err := readBody(resp)
	if err != nil {
		return nil, fmt.Errorf("pinterest api: %w", err)
	}

	var page pinPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decoding pin page: %w", err)
	}
	return &page, nil
}

func formatPin(item pinItem) (entities.RawCandidate, bool) {
	if item.ID == "" {
		return entities.RawCandidate{}, false
	}

	var imageURL string
	for _, size := range imageSizes {
		if img, ok := item.Media.Images[size]; ok && img.URL != "" {
			imageURL = img.URL
			break
		}
	}
	if imageURL == "" {
		imageURL = item.ImageURL
	}
	if imageURL == "" {
		logrus.WithField("pin_id", item.ID).Debug("Pin has no image URL")
		return entities.RawCandidate{}, false
	}

	title := item.Title
	if title == "" {
		title = item.Note
	}
	desc := item.Description
	if desc == "" {
		desc = item.Note
	}

	return entities.RawCandidate{
		ImageURL:    imageURL,
		Title:       title,
		Source:      entities.SourceScrapeAPI,
		PinID:       item.ID,
		PinURL:      pinURL(item.ID),
		Description: desc,
		Creator:     item.Creator.Username,
		Saves:       item.PinMetrics.Saves,
	}, true
}
