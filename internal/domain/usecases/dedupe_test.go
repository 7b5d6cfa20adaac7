package usecases

import (
	"testing"

	"github.com/0xcro3dile/boardsearch-go/internal/domain/entities"
)

func TestDedupe_SamePinIDKeepsFirst(t *testing.T) {
	in := []entities.RawCandidate{
		{ImageURL: "https://i.example/1.jpg", PinID: "998877665544", Title: "first"},
		{ImageURL: "https://i.example/2.jpg", PinID: "998877665544", Title: "second"},
	}

	out := Dedupe(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(out))
	}
	if out[0].Title != "first" {
		t.Errorf("expected first occurrence to win, got %q", out[0].Title)
	}
}

func TestDedupe_PreservesOrderAndUniqueness(t *testing.T) {
	in := cands("a.jpg", "b.jpg", "a.jpg", "c.jpg", "b.jpg", "")
	out := Dedupe(in)

	want := []string{"a.jpg", "b.jpg", "c.jpg"}
	if len(out) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(out))
	}
	seen := map[string]bool{}
	for i, c := range out {
		if c.ImageURL != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], c.ImageURL)
		}
		if seen[c.Key()] {
			t.Errorf("duplicate key %s", c.Key())
		}
		seen[c.Key()] = true
	}
}

func TestDedupe_SameURLDifferentPinsKept(t *testing.T) {
	in := []entities.RawCandidate{
		{ImageURL: "https://i.example/1.jpg", PinID: "111111111111"},
		{ImageURL: "https://i.example/1.jpg", PinID: "222222222222"},
	}
	if got := len(Dedupe(in)); got != 2 {
		t.Errorf("expected both pins kept, got %d", got)
	}
}
