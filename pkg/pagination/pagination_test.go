package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{-1: DefaultLimit, 0: DefaultLimit, 10: 10, MaxLimit + 5: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatalf("expected buffered limit")
	}
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 15, 30, 123000000, time.UTC)
	id := uuid.New()

	parsed, err := ParseCursor(EncodeCursor(Cursor{At: at, ID: id}))
	if err != nil {
		t.Fatalf("parse cursor: %v", err)
	}
	if !parsed.At.Equal(at) || parsed.ID != id {
		t.Fatalf("cursor mismatch: %+v", parsed)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor("  "); c != nil || err != nil {
		t.Fatalf("blank cursor should be nil, got %v %v", c, err)
	}
	for _, raw := range []string{"%%%", "bm9waXBl", "MjAyNi0xMC0xOHxub3QtYS11dWlk"} {
		if _, err := ParseCursor(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
