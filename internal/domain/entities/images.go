package entities

import (
	"path/filepath"
	"slices"
	"strings"
)

// ImageExtensions are the file types indexed from the corpus.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// IsImagePath reports whether path has an indexed image extension.
func IsImagePath(path string) bool {
	return slices.Contains(ImageExtensions, strings.ToLower(filepath.Ext(path)))
}
