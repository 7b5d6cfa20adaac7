package usecases

import (
	"math"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

// SelectDiverse walks a ranked list and keeps an item only when its score is
// at least minGap away from every item already kept. The first item is always
// kept and the scan stops after topK items.
func SelectDiverse(ranked []entities.ScoredCandidate, topK int, minGap float64) []entities.ScoredCandidate {
	if len(ranked) == 0 || topK <= 0 {
		return []entities.ScoredCandidate{}
	}

	kept := make([]entities.ScoredCandidate, 0, topK)
	kept = append(kept, ranked[0])
	for _, c := range ranked[1:] {
		if len(kept) >= topK {
			break
		}
		diverse := true
		for _, k := range kept {
			if math.Abs(c.RelevanceScore-k.RelevanceScore) < minGap {
				diverse = false
				break
			}
		}
		if diverse {
			kept = append(kept, c)
		}
	}
	return kept
}
