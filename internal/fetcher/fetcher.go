package fetcher

import (
	"context"

	"forex-observer/internal/market"
)

// Source retrieves one market snapshot per call.
type Source interface {
	Fetch(ctx context.Context) (market.Snapshot, error)
}
