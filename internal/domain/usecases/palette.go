// Package usecases - palette.go resolves a free-text color theme into search terms.
package usecases

import (
	"regexp"
	"strings"
)

// maxColorTerms caps how many color terms a theme resolves to.
const maxColorTerms = 3

// namedPalettes are checked in this order; the first whose name matches wins.
var namedPalettes = []struct {
	name   string
	colors []string
}{
	{"bold", []string{"red", "orange", "hot pink", "electric blue", "bright yellow", "vibrant", "neon"}},
	{"pastel", []string{"blush pink", "mint", "lavender", "peach", "baby blue", "soft yellow", "cream"}},
	{"royal", []string{"deep purple", "gold", "emerald", "burgundy", "navy", "maroon", "rich blue"}},
	{"neutral", []string{"white", "beige", "cream", "ivory", "champagne", "taupe", "gray", "black"}},
}

var hexColorNames = map[string]string{
	"#ff0000": "red", "#ff6b6b": "red",
	"#00ff00": "green", "#00b894": "green",
	"#0000ff": "blue", "#74b9ff": "blue",
	"#ffff00": "yellow", "#fdcb6e": "yellow",
	"#ffa500": "orange", "#e17055": "orange",
	"#800080": "purple", "#a29bfe": "purple",
	"#ffffff": "white",
	"#000000": "black", "#2d3436": "black",
	"#ff69b4": "pink", "#fd79a8": "pink",
}

var colorWords = map[string]bool{
	"red": true, "green": true, "blue": true, "yellow": true, "orange": true, "purple": true,
	"white": true, "black": true, "pink": true, "gold": true, "silver": true,
}

var hexPattern = regexp.MustCompile(`#[0-9a-fA-F]{6}`)

// ResolveColorTerms maps a color theme onto at most three color terms.
//
// A palette name contained in the theme (or containing it) yields the first
// three palette colors. Otherwise hex codes are looked up, or, for themes
// without '#', known color words are picked out. When nothing resolves the
// lower-cased theme itself is the single term. An empty theme yields no terms.
func ResolveColorTerms(theme string) []string {
	lower := strings.ToLower(strings.TrimSpace(theme))
	if lower == "" {
		return nil
	}

	for _, p := range namedPalettes {
		if strings.Contains(lower, p.name) || strings.Contains(p.name, lower) {
			return append([]string(nil), p.colors[:maxColorTerms]...)
		}
	}

	var colors []string
	if strings.Contains(lower, "#") {
		for _, hex := range hexPattern.FindAllString(lower, -1) {
			if name, ok := hexColorNames[hex]; ok {
				colors = append(colors, name)
			}
		}
	} else {
		for _, word := range strings.Fields(lower) {
			if colorWords[word] {
				colors = append(colors, word)
			}
		}
	}

	if len(colors) == 0 {
		return []string{lower}
	}
	if len(colors) > maxColorTerms {
		colors = colors[:maxColorTerms]
	}
	return colors
}
