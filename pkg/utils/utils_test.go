package utils

import (
	"testing"
	"time"
)

func TestSeededRand_Deterministic(t *testing.T) {
	a := SeededRand("floor-test")
	b := SeededRand("floor-test")
	for i := 0; i < 20; i++ {
		x, y := a.Uint64(), b.Uint64()
		if x != y {
			t.Fatalf("draw %d: %d != %d", i, x, y)
		}
	}

	c := SeededRand("other-seed")
	if SeededRand("floor-test").Uint64() == c.Uint64() {
		t.Error("different seeds produced the same first draw")
	}
}

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Palace ", "palace"},
		{"CLAY:4", "clay:4"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeToken(tt.in); got != tt.want {
			t.Errorf("NormalizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := UpperKey("rally point"); got != "RALLY_POINT" {
		t.Errorf("UpperKey() = %q, want RALLY_POINT", got)
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(90*time.Second))
	}
	if len(GenerateRandomID(12)) != 12 {
		t.Error("GenerateRandomID length mismatch")
	}
}
