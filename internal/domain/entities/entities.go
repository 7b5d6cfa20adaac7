// Package entities contains core business entities.
// These are pure domain objects with no knowledge of providers, storage or transport.
package entities

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// EventType is the closed set of events a welcome board can be ordered for.
type EventType string

const (
	EventEngagement EventType = "engagement"
	EventHaldi      EventType = "haldi"
	EventMehendi    EventType = "mehendi"
	EventSangeet    EventType = "sangeet"
	EventWedding    EventType = "wedding"
	EventReception  EventType = "reception"
	EventUnknown    EventType = "unknown"
)

// EventTypes lists the known events in vocabulary order.
var EventTypes = []EventType{
	EventEngagement, EventHaldi, EventMehendi, EventSangeet, EventWedding, EventReception,
}

// ParseEventType maps free input onto a known event; unknown input is an error.
func ParseEventType(s string) (EventType, error) {
	v := EventType(strings.ToLower(strings.TrimSpace(s)))
	for _, e := range EventTypes {
		if v == e {
			return e, nil
		}
	}
	return EventUnknown, ErrInvalidEventType
}

// Title returns the event name with an upper-case first letter.
func (e EventType) Title() string {
	if e == "" {
		return ""
	}
	return strings.ToUpper(string(e[:1])) + string(e[1:])
}

// BudgetRange is the budget tier requested by a user.
type BudgetRange string

const (
	BudgetLow  BudgetRange = "low"
	BudgetMid  BudgetRange = "mid"
	BudgetHigh BudgetRange = "high"
)

// budgetBands maps each tier onto the rupee band used by corpus folders.
var budgetBands = map[BudgetRange]string{
	BudgetLow:  "3000-5000",
	BudgetMid:  "5001-8000",
	BudgetHigh: "8001-15000",
}

// ParseBudgetRange accepts tier names ("mid") as well as rupee bands
// ("5001-8000", "₹5001-₹8000", "Rs5001-Rs8000").
func ParseBudgetRange(s string) (BudgetRange, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.NewReplacer("₹", "", "rs", "", " ", "").Replace(v)
	switch BudgetRange(v) {
	case BudgetLow, BudgetMid, BudgetHigh:
		return BudgetRange(v), nil
	}
	for b, band := range budgetBands {
		if v == band {
			return b, nil
		}
	}
	return "", ErrInvalidBudget
}

// Band returns the rupee band for the tier, e.g. "5001-8000".
func (b BudgetRange) Band() string {
	return budgetBands[b]
}

// PriceCategory returns the corpus price category matching this tier.
func (b BudgetRange) PriceCategory() PriceCategory {
	switch b {
	case BudgetLow:
		return PriceLow
	case BudgetMid:
		return PriceMid
	case BudgetHigh:
		return PriceHigh
	}
	return PriceUnknown
}

// PriceCategory is the price band a corpus image was filed under.
type PriceCategory string

const (
	PriceLow     PriceCategory = "low"
	PriceMid     PriceCategory = "mid"
	PriceHigh    PriceCategory = "high"
	PriceUnknown PriceCategory = "unknown"
)

// PriceTokens maps the folder token found in corpus paths to its category.
// Order matters: path segments are scanned against it first to last.
var PriceTokens = []struct {
	Token    string
	Category PriceCategory
}{
	{"3000-5000", PriceLow},
	{"5001-8000", PriceMid},
	{"8001-15000", PriceHigh},
}

// SourceTag identifies which kind of provider produced a candidate.
type SourceTag string

const (
	SourceLocal         SourceTag = "local"
	SourceWeb           SourceTag = "web"
	SourceScrapeAPI     SourceTag = "scrape_api"
	SourceScrapeService SourceTag = "scrape_service"
	SourceStaticFile    SourceTag = "static_file"
)

// RawCandidate is an image record as returned by a provider, before ranking.
type RawCandidate struct {
	ImageURL    string    `json:"image_url"`
	Title       string    `json:"title,omitempty"`
	Source      SourceTag `json:"source"`
	PinID       string    `json:"pin_id,omitempty"`
	PinURL      string    `json:"pin_url,omitempty"`
	Description string    `json:"description,omitempty"`
	Creator     string    `json:"creator,omitempty"`
	Saves       int       `json:"saves,omitempty"`
}

// Key is the identity key used for deduplication and exclusion:
// the pin id when present, otherwise the image URL.
func (c RawCandidate) Key() string {
	if c.PinID != "" {
		return c.PinID
	}
	return c.ImageURL
}

// SampleRecord is one embedded image of the local corpus.
type SampleRecord struct {
	Path          string        `json:"path"`
	Embedding     []float32     `json:"-"`
	PriceCategory PriceCategory `json:"price_category"`
	EventType     EventType     `json:"event_type"`
	Filename      string        `json:"filename"`
}

// BestMatch describes the corpus sample a candidate resembled most.
type BestMatch struct {
	Path          string        `json:"sample_path"`
	EventType     EventType     `json:"sample_event"`
	PriceCategory PriceCategory `json:"sample_budget"`
	Similarity    float64       `json:"similarity"`
}

// ScoredCandidate is a candidate with its ranking signals attached.
type ScoredCandidate struct {
	RawCandidate
	RelevanceScore   float64    `json:"relevance_score"`
	VisualSimilarity *float64   `json:"visual_similarity,omitempty"`
	AvgSimilarity    *float64   `json:"avg_similarity,omitempty"`
	BestMatch        *BestMatch `json:"best_match,omitempty"`
	// Local corpus results carry the sample path they were read from.
	Path          string        `json:"path,omitempty"`
	EventType     EventType     `json:"event_type,omitempty"`
	PriceCategory PriceCategory `json:"price_category,omitempty"`
}

// SearchRequest is the immutable input of one search.
type SearchRequest struct {
	EventType    EventType   `json:"event_type"`
	BudgetRange  BudgetRange `json:"budget_range"`
	ColorTheme   string      `json:"color_theme"`
	MaxPerSource int         `json:"max_per_source"`
}

// NewSearchRequest parses raw values into a validated request.
func NewSearchRequest(event, budget, theme string, maxPerSource int) (SearchRequest, error) {
	e, err := ParseEventType(event)
	if err != nil {
		return SearchRequest{}, err
	}
	b, err := ParseBudgetRange(budget)
	if err != nil {
		return SearchRequest{}, err
	}
	req := SearchRequest{EventType: e, BudgetRange: b, ColorTheme: strings.TrimSpace(theme), MaxPerSource: maxPerSource}
	return req, req.Validate()
}

// Validate rejects requests outside the closed enumerations. Values must
// already be canonical; NewSearchRequest normalises free input.
func (r SearchRequest) Validate() error {
	if !slices.Contains(EventTypes, r.EventType) {
		return fmt.Errorf("%w: %q", ErrInvalidEventType, r.EventType)
	}
	switch r.BudgetRange {
	case BudgetLow, BudgetMid, BudgetHigh:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBudget, r.BudgetRange)
	}
	return nil
}

// FamilyResult groups the results of one logical source family.
type FamilyResult struct {
	TotalResults  int               `json:"total_results"`
	AvgSimilarity float64           `json:"avg_similarity"`
	TopSimilarity float64           `json:"top_similarity"`
	Results       []ScoredCandidate `json:"results"`
}

// NewFamilyResult computes the similarity statistics of a family. Only
// results carrying a VisualSimilarity count; on the keyword-scored path the
// statistics stay zero.
func NewFamilyResult(results []ScoredCandidate) FamilyResult {
	if results == nil {
		results = []ScoredCandidate{}
	}
	f := FamilyResult{TotalResults: len(results), Results: results}

	var sum float64
	var n int
	for _, r := range results {
		if r.VisualSimilarity == nil {
			continue
		}
		v := *r.VisualSimilarity
		if n == 0 || v > f.TopSimilarity {
			f.TopSimilarity = v
		}
		sum += v
		n++
	}
	if n > 0 {
		f.AvgSimilarity = sum / float64(n)
	}
	return f
}

// ResultBundle is the structured output of one orchestrated search.
type ResultBundle struct {
	RequestID        string       `json:"request_id"`
	Success          bool         `json:"success"`
	EventType        EventType    `json:"event_type"`
	BudgetRange      BudgetRange  `json:"budget_range"`
	ColorTheme       string       `json:"color_theme"`
	ColorTermsUsed   []string     `json:"color_terms_used"`
	Queries          []string     `json:"queries_used,omitempty"`
	Local            FamilyResult `json:"local"`
	Web              FamilyResult `json:"web"`
	Social           FamilyResult `json:"social"`
	CombinedTotal    int          `json:"combined_total"`
	FilteredExcluded int          `json:"filtered_excluded,omitempty"`
}

// ProviderStatus is the outcome class of one provider call.
type ProviderStatus int

// The zero value is ProviderEmpty, so a bare ProviderResult never reads as
// a success.
const (
	ProviderEmpty ProviderStatus = iota
	ProviderSuccess
	ProviderError
)

func (s ProviderStatus) String() string {
	switch s {
	case ProviderSuccess:
		return "success"
	case ProviderEmpty:
		return "empty"
	default:
		return "error"
	}
}

// ProviderResult is the tagged outcome of a provider search.
type ProviderResult struct {
	Status     ProviderStatus
	Candidates []RawCandidate
	Err        error
}

// Succeeded wraps a provider's candidates; an empty list is reported as Empty.
func Succeeded(candidates []RawCandidate) ProviderResult {
	if len(candidates) == 0 {
		return ProviderResult{Status: ProviderEmpty}
	}
	return ProviderResult{Status: ProviderSuccess, Candidates: candidates}
}

// Failed wraps a provider error.
func Failed(err error) ProviderResult {
	if err == nil {
		err = ErrProviderUnavailable
	}
	return ProviderResult{Status: ProviderError, Err: err}
}

// OK reports whether the result is a non-empty success.
func (r ProviderResult) OK() bool {
	return r.Status == ProviderSuccess && len(r.Candidates) > 0
}

// CorpusStats summarises the local corpus.
type CorpusStats struct {
	TotalImages     int                   `json:"total_images"`
	ByPriceCategory map[PriceCategory]int `json:"by_price_category"`
	ByEventType     map[EventType]int     `json:"by_event_type"`
	BySource        map[string]int        `json:"by_source"`
	LastBuilt       time.Time             `json:"last_built"`
}

// SavedImage records one accepted candidate written into the corpus.
type SavedImage struct {
	Key  string `json:"key"`
	Path string `json:"path"`
}

// FailedImage records a candidate that could not be accepted.
type FailedImage struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// SelectionReport is the outcome of accepting user-selected candidates.
type SelectionReport struct {
	Saved  []SavedImage  `json:"saved"`
	Failed []FailedImage `json:"failed"`
}
