package filter

import (
	"testing"

	"github.com/JoyBoy1995/cfc-transfer-bot/internal/feed"
)

func TestNew_RequiresTwoValues(t *testing.T) {
	if _, err := New("", "Tier 2"); err == nil {
		t.Fatal("expected error for empty first value")
	}
	if _, err := New("Tier 1", "  "); err == nil {
		t.Fatal("expected error for blank second value")
	}
	if _, err := New("Tier 1", "Tier 2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccept(t *testing.T) {
	f, err := New("Tier 1", "Tier 2")
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	cases := []struct {
		flair string
		want  bool
	}{
		{"Tier 1", true},
		{"Tier 2", true},
		{"Tier 3", false},
		{"tier 1", false}, // case-sensitive
		{"Tier 1 ", false},
		{"Official Source", false},
		{"", false},
	}

	for _, tc := range cases {
		t.Run("flair "+tc.flair, func(t *testing.T) {
			got := f.Accept(feed.Post{ID: "abc123", Flair: tc.flair})
			if got != tc.want {
				t.Errorf("Accept(%q) = %v, want %v", tc.flair, got, tc.want)
			}
		})
	}
}
