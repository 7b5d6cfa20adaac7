// Package usecases - queries.go builds provider query strings from a request.
package usecases

import (
	"fmt"
	"strings"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

var budgetQueryTerms = map[entities.BudgetRange][]string{
	entities.BudgetLow:  {"simple", "budget", "printed", "sunboard", "cardboard"},
	entities.BudgetMid:  {"mid-range", "layered", "acrylic", "wooden", "foam"},
	entities.BudgetHigh: {"luxury", "premium", "bespoke", "floral", "3D", "metal"},
}

// colorSynonyms widens a color term with mood words used by board sellers.
func colorSynonyms(color string) []string {
	switch strings.ToLower(color) {
	case "red", "orange":
		return []string{"bright", "vibrant", "bold", "rich"}
	case "pink", "mint", "lavender":
		return []string{"soft", "pastel", "gentle", "delicate"}
	case "purple", "gold", "emerald":
		return []string{"royal", "elegant", "luxury", "premium"}
	case "white", "beige", "cream":
		return []string{"neutral", "classic", "elegant", "minimal"}
	}
	return nil
}

func firstN(terms []string, n int) []string {
	if len(terms) > n {
		return terms[:n]
	}
	return terms
}

// BuildQueries returns three or four query variants for the web and social
// providers. The fourth, a color-combination query, needs two color terms.
func BuildQueries(event entities.EventType, budget entities.BudgetRange, colorTerms []string) []string {
	title := event.Title()
	budgetTerms := budgetQueryTerms[budget]

	var enhanced []string
	for _, c := range firstN(colorTerms, 2) {
		enhanced = append(enhanced, c)
		enhanced = append(enhanced, colorSynonyms(c)...)
	}

	join := func(groups ...[]string) string {
		var parts []string
		for _, g := range groups {
			parts = append(parts, g...)
		}
		return strings.Join(parts, " ")
	}

	queries := []string{
		join([]string{title, "welcome board", "welcome sign"}, firstN(enhanced, 3), budgetTerms,
			[]string{"sign", "board", "display", "entrance", "ceremony"}),
		join([]string{"welcome sign", title}, firstN(enhanced, 3), budgetTerms,
			[]string{"board", "display", "entrance", "ceremony", "decor"}),
		join([]string{title, "welcome board"}, firstN(enhanced, 2),
			[]string{"decor", "decoration", "theme", "color", "design"}),
	}
	if len(colorTerms) >= 2 {
		queries = append(queries, join([]string{title, "welcome sign", colorTerms[0], colorTerms[1]},
			[]string{"board", "display", "ceremony", "wedding"}))
	}
	return queries
}

// WebQuery is the single keyword query used by the similarity path.
func WebQuery(event entities.EventType, theme string) string {
	return strings.TrimSpace(fmt.Sprintf("%s welcome board %s", event, theme))
}

// SocialKeywords returns the keyword list handed to the social provider chain:
// three generic keywords followed by two budget-specific ones.
func SocialKeywords(event entities.EventType, budget entities.BudgetRange, theme string) []string {
	keywords := []string{
		strings.TrimSpace(fmt.Sprintf("%s welcome board %s", event, theme)),
		fmt.Sprintf("%s welcome sign decor", event),
		fmt.Sprintf("welcome board %s entrance", event),
	}
	switch budget {
	case entities.BudgetLow:
		keywords = append(keywords,
			fmt.Sprintf("simple %s welcome board diy", event),
			fmt.Sprintf("budget %s welcome sign", event))
	case entities.BudgetMid:
		keywords = append(keywords,
			fmt.Sprintf("acrylic %s welcome board", event),
			fmt.Sprintf("wooden %s welcome sign", event))
	case entities.BudgetHigh:
		keywords = append(keywords,
			fmt.Sprintf("luxury %s welcome board", event),
			fmt.Sprintf("premium %s welcome decor", event))
	}
	return keywords
}
