package loader

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
	"github.com/0xcro3dile/boardsearch-go/internal/domain/ports"
)

var (
	_ ports.ImageSource  = (*ImageLoader)(nil)
	_ ports.CorpusWriter = (*CorpusWriter)(nil)
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestImageLoader_ListSorted(t *testing.T) {
	dir, _ := os.MkdirTemp("", "loader-test-*")
	defer os.RemoveAll(dir)

	os.MkdirAll(filepath.Join(dir, "b", "Wedding"), 0755)
	os.MkdirAll(filepath.Join(dir, "a"), 0755)
	os.WriteFile(filepath.Join(dir, "b", "Wedding", "2.JPG"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(dir, "a", "1.png"), []byte("xy"), 0644)
	os.WriteFile(filepath.Join(dir, "a", "notes.txt"), []byte("skip"), 0644)
	os.WriteFile(filepath.Join(dir, "a", "anim.gif"), []byte("skip"), 0644)

	loader := NewImageLoader()
	files, err := loader.List(context.Background(), dir)

	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 images, got %d", len(files))
	}
	if files[0].RelPath != "a/1.png" || files[1].RelPath != "b/Wedding/2.JPG" {
		t.Errorf("unexpected order: %s, %s", files[0].RelPath, files[1].RelPath)
	}
	if files[0].Size != 2 {
		t.Errorf("unexpected size: %d", files[0].Size)
	}

	data, err := loader.Read(context.Background(), files[0].Path)
	if err != nil || string(data) != "xy" {
		t.Errorf("read returned %q, %v", data, err)
	}
}

func TestImageLoader_MissingRoot(t *testing.T) {
	loader := NewImageLoader()
	if _, err := loader.List(context.Background(), filepath.Join(os.TempDir(), "no-such-corpus-dir")); err == nil {
		t.Error("should error on missing root")
	}

	file := filepath.Join(t.TempDir(), "file.jpg")
	os.WriteFile(file, []byte("x"), 0644)
	if _, err := loader.List(context.Background(), file); err == nil {
		t.Error("should error when root is a file")
	}
}

func TestImageLoader_SupportedExtensions(t *testing.T) {
	exts := NewImageLoader().SupportedExtensions()

	found := false
	for _, e := range exts {
		if e == ".webp" {
			found = true
		}
	}
	if !found {
		t.Error(".webp should be supported")
	}

	if len(exts) != len(entities.ImageExtensions) {
		t.Fatalf("expected %d extensions, got %d", len(entities.ImageExtensions), len(exts))
	}
	exts[0] = ".bmp"
	if entities.ImageExtensions[0] == ".bmp" {
		t.Error("SupportedExtensions must return a copy")
	}
}

func TestCorpusWriter_Save(t *testing.T) {
	root := t.TempDir()
	w := NewCorpusWriter(root)
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := w.Save(context.Background(), ports.SelectedImage{
		Candidate: entities.RawCandidate{
			PinID:    "98765",
			PinURL:   "https://www.pinterest.com/pin/98765/",
			ImageURL: "https://i/98765.png",
			Title:    "Floral board",
			Source:   entities.SourceScrapeAPI,
		},
		Event:   entities.EventWedding,
		Budget:  entities.BudgetMid,
		Data:    pngHeader,
		SavedAt: at,
	})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	want := filepath.Join(root, "Welcome_board_decor_(5001-8000)", "Wedding", "user_selected", "user_selected_98765_20250304_050607.png")
	if path != want {
		t.Errorf("unexpected path:\n got %s\nwant %s", path, want)
	}

	raw, err := os.ReadFile(strings.TrimSuffix(path, ".png") + ".json")
	if err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("bad sidecar: %v", err)
	}
	if meta["pin_id"] != "98765" || meta["event_type"] != "wedding" || meta["budget_range"] != "5001-8000" {
		t.Errorf("unexpected sidecar: %v", meta)
	}
}

func TestCorpusWriter_RejectsNonImage(t *testing.T) {
	w := NewCorpusWriter(t.TempDir())
	_, err := w.Save(context.Background(), ports.SelectedImage{
		Candidate: entities.RawCandidate{ImageURL: "https://x"},
		Event:     entities.EventWedding,
		Budget:    entities.BudgetLow,
		Data:      []byte("<html>nope</html>"),
	})
	if err == nil {
		t.Error("should reject html content")
	}
}

func TestSafeKey(t *testing.T) {
	if got := safeKey("12345"); got != "12345" {
		t.Errorf("plain ids should pass through, got %s", got)
	}
	got := safeKey("https://example.com/a b.jpg")
	if len(got) != 16 || strings.ContainsAny(got, "/: ") {
		t.Errorf("urls should be hashed, got %s", got)
	}
	if safeKey("https://example.com/a b.jpg") != got {
		t.Error("hash should be deterministic")
	}
}
