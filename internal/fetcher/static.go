package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"forex-observer/internal/market"
)

// ErrExhausted reports that a Static source has replayed every snapshot.
var ErrExhausted = errors.New("snapshot sequence exhausted")

// Static replays a fixed sequence of snapshots. The simulate-alert command
// uses it to drive the real evaluation pipeline without a live feed.
type Static struct {
	mu    sync.Mutex
	snaps []market.Snapshot
	next  int
}

// NewStatic builds a source over the given sequence.
func NewStatic(snaps []market.Snapshot) *Static {
	return &Static{snaps: snaps}
}

// Fetch returns the next snapshot, or ErrExhausted past the end.
func (s *Static) Fetch(ctx context.Context) (market.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.next >= len(s.snaps) {
		return market.Snapshot{}, ErrExhausted
	}

	snap := s.snaps[s.next]
	s.next++
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	return snap, nil
}

var _ Source = (*Static)(nil)
