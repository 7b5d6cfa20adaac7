package usecases

import "github.com/0xcro3dile/boardsearch-go/internal/domain/entities"

// Dedupe drops repeated candidates by identity key, keeping the first
// occurrence and the input order. Candidates with no identity key are dropped.
// Visually identical images with different keys are kept apart.
func Dedupe(candidates []entities.RawCandidate) []entities.RawCandidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]entities.RawCandidate, 0, len(candidates))
	for _, c := range candidates {
		key := c.Key()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
