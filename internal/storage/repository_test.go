package storage

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		label string
		want  time.Duration
	}{
		{"1m", time.Minute},
		{"5m", 5 * time.Minute},
		{"15m", 15 * time.Minute},
		{"30m", 30 * time.Minute},
		{"1h", time.Hour},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
	}

	for _, tt := range tests {
		got, err := ParseInterval(tt.label)
		if err != nil {
			t.Errorf("ParseInterval(%q): %v", tt.label, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInterval(%q) = %s, want %s", tt.label, got, tt.want)
		}
	}

	for _, label := range []string{"", "2m", "1w", "60", "daily"} {
		if _, err := ParseInterval(label); err == nil {
			t.Errorf("ParseInterval(%q) should fail", label)
		}
	}
}

// A nil store stands in for "no database configured". Every operation must
// surface ErrNotConfigured instead of panicking, because the HTTP layer
// maps that sentinel to a 503.
func TestUnconfiguredStoreReturnsSentinel(t *testing.T) {
	ctx := context.Background()
	var s *Store

	if err := s.EnsureSchema(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("EnsureSchema = %v, want ErrNotConfigured", err)
	}
	if _, err := s.InsertPricePoints(ctx, []PricePoint{{Pair: "EURUSD"}}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("InsertPricePoints = %v, want ErrNotConfigured", err)
	}
	if _, err := s.ListHistory(ctx, HistoryFilter{Limit: 10}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("ListHistory = %v, want ErrNotConfigured", err)
	}
	if _, err := s.QueryOHLC(ctx, OHLCQuery{Pair: "EURUSD", Interval: time.Hour, Limit: 10}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("QueryOHLC = %v, want ErrNotConfigured", err)
	}
	if _, err := s.CountPricePoints(ctx); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("CountPricePoints = %v, want ErrNotConfigured", err)
	}
	if _, err := s.DeletePricesBefore(ctx, time.Now()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("DeletePricesBefore = %v, want ErrNotConfigured", err)
	}

	// Close on a nil store is a no-op rather than a crash.
	s.Close()
}
