// Package usecases - scorer.go assigns categorical relevance scores.
package usecases

import (
	"sort"
	"strings"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

// ScoreWeights are the additive weights of the relevance score.
type ScoreWeights struct {
	VendorDomain     float64 `yaml:"vendor_domain"`
	WelcomeTerm      float64 `yaml:"welcome_term"`
	EventMatch       float64 `yaml:"event_match"`
	ColorTerm        float64 `yaml:"color_term"`
	ColorCombination float64 `yaml:"color_combination"`
	ThematicTerm     float64 `yaml:"thematic_term"`
	RealismTerm      float64 `yaml:"realism_term"`
	ExclusionPenalty float64 `yaml:"exclusion_penalty"`
}

// DefaultScoreWeights returns the hand-tuned weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		VendorDomain:     3,
		WelcomeTerm:      2,
		EventMatch:       2,
		ColorTerm:        3,
		ColorCombination: 1,
		ThematicTerm:     2,
		RealismTerm:      1,
		ExclusionPenalty: -5,
	}
}

var (
	vendorDomains = []string{
		"weddingwire", "shaadisaga", "wedmegood", "weddingz",
		"weddingbazaar", "mywedding", "weddingplz", "weddingwishlist",
	}
	welcomeTerms  = []string{"welcome", "board", "sign", "display", "entrance"}
	thematicTerms = []string{"decor", "theme", "style", "palette"}
	realismTerms  = []string{"photo", "diy", "real", "actual"}
	// Bare "art" and "design" are left out: they match "party" and "designer".
	exclusionTerms = []string{
		"sketch", "drawing", "render", "illustration", "vector", "clipart",
		"graphic", "template", "mockup", "cartoon", "anime", "painting",
	}
	thumbnailMarkers = []string{"150x", "200x", "thumb", "small"}
	oversizeMarkers  = []string{"4000x", "5000x", "6000x", "8k", "4k"}
)

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// RelevanceScorer scores candidates by matching term sets against their
// case-folded URL and title.
type RelevanceScorer struct {
	weights ScoreWeights
}

// NewRelevanceScorer creates a scorer; a zero ScoreWeights selects the defaults.
func NewRelevanceScorer(weights ScoreWeights) *RelevanceScorer {
	if weights == (ScoreWeights{}) {
		weights = DefaultScoreWeights()
	}
	return &RelevanceScorer{weights: weights}
}

// Score returns the unclamped additive relevance of one candidate.
func (s *RelevanceScorer) Score(c entities.RawCandidate, event entities.EventType, colorTerms []string) float64 {
	text := strings.ToLower(c.ImageURL + " " + c.Title)
	w := s.weights
	var score float64

	if containsAny(text, vendorDomains) {
		score += w.VendorDomain
	}
	if containsAny(text, welcomeTerms) {
		score += w.WelcomeTerm
	}
	if event != "" && event != entities.EventUnknown && strings.Contains(text, string(event)) {
		score += w.EventMatch
	}

	matched := 0
	for _, color := range colorTerms {
		color = strings.ToLower(strings.TrimSpace(color))
		if color != "" && strings.Contains(text, color) {
			score += w.ColorTerm
			matched++
		}
	}
	if matched >= 2 {
		score += w.ColorCombination
	}

	if containsAny(text, thematicTerms) {
		score += w.ThematicTerm
	}
	if containsAny(text, realismTerms) {
		score += w.RealismTerm
	}
	if containsAny(text, exclusionTerms) {
		score += w.ExclusionPenalty
	}
	return score
}

// Rank scores every candidate and sorts them by score, highest first.
// Equal scores keep their input order.
func (s *RelevanceScorer) Rank(candidates []entities.RawCandidate, event entities.EventType, colorTerms []string) []entities.ScoredCandidate {
	scored := make([]entities.ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = entities.ScoredCandidate{
			RawCandidate:   c,
			RelevanceScore: s.Score(c, event, colorTerms),
		}
	}
	sortByScore(scored)
	return scored
}

// ValidateImageContent rejects URLs that look like thumbnails or oversized renders.
func ValidateImageContent(imageURL string) bool {
	lower := strings.ToLower(imageURL)
	return !containsAny(lower, thumbnailMarkers) && !containsAny(lower, oversizeMarkers)
}

func sortByScore(scored []entities.ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})
}
