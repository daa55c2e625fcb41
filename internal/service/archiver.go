package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forex-observer/internal/hub"
	"forex-observer/internal/market"
	"forex-observer/internal/metrics"
	"forex-observer/internal/storage"
)

// PriceWriter persists batches of observations.
type PriceWriter interface {
	InsertPricePoints(ctx context.Context, points []storage.PricePoint) (int64, error)
	DeletePricesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// ArchiverOptions tune batching and retention.
type ArchiverOptions struct {
	FlushInterval time.Duration
	BatchSize     int
	Retention     time.Duration
	PruneInterval time.Duration
}

// Archiver subscribes to the snapshot hub and batches observations into
// the price history store. A buffered batch survives one failed flush; the
// buffer is capped so a long database outage cannot exhaust memory.
type Archiver struct {
	writer  PriceWriter
	hub     *hub.Hub
	opts    ArchiverOptions
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu      sync.Mutex
	pending []storage.PricePoint
}

// NewArchiver constructs an archiver over the given writer and hub.
func NewArchiver(writer PriceWriter, h *hub.Hub, opts ArchiverOptions, mx *metrics.Metrics, logger zerolog.Logger) *Archiver {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = time.Hour
	}

	return &Archiver{
		writer:  writer,
		hub:     h,
		opts:    opts,
		metrics: mx,
		logger:  logger.With().Str("component", "archiver").Logger(),
	}
}

// Run consumes the hub until ctx is cancelled, then flushes what remains.
func (a *Archiver) Run(ctx context.Context) error {
	sub := a.hub.Subscribe()
	defer sub.Close()

	flush := time.NewTicker(a.opts.FlushInterval)
	defer flush.Stop()

	var pruneC <-chan time.Time
	if a.opts.Retention > 0 {
		prune := time.NewTicker(a.opts.PruneInterval)
		defer prune.Stop()
		pruneC = prune.C
	}

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			a.flush(flushCtx)
			cancel()
			return ctx.Err()
		case snap, ok := <-sub.C:
			if !ok {
				return nil
			}
			if a.buffer(snap) >= a.opts.BatchSize {
				a.flush(ctx)
			}
		case <-flush.C:
			a.flush(ctx)
		case <-pruneC:
			a.prune(ctx)
		}
	}
}

// buffer appends the snapshot's quotes and returns the pending count.
func (a *Archiver) buffer(snap market.Snapshot) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, q := range snap.Pairs {
		a.pending = append(a.pending, storage.PricePoint{
			Pair:        market.NormalizePair(q.Pair),
			Price:       q.Price,
			SourceTitle: snap.Title,
			ObservedAt:  snap.Timestamp,
		})
	}
	return len(a.pending)
}

func (a *Archiver) flush(ctx context.Context) {
	a.mu.Lock()
	batch := a.pending
	a.pending = nil
	a.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	written, err := a.writer.InsertPricePoints(ctx, batch)
	if err != nil {
		a.logger.Error().Err(err).Int("points", len(batch)).Msg("failed to archive batch")

		a.mu.Lock()
		if len(a.pending)+len(batch) <= a.opts.BatchSize*10 {
			a.pending = append(batch, a.pending...)
		} else {
			a.logger.Warn().Int("dropped", len(batch)).Msg("archive buffer full, dropping batch")
		}
		a.mu.Unlock()
		return
	}

	if a.metrics != nil {
		a.metrics.PointsArchivedTotal.Add(float64(written))
	}
	a.logger.Debug().Int64("points", written).Msg("batch archived")
}

func (a *Archiver) prune(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-a.opts.Retention)

	deleted, err := a.writer.DeletePricesBefore(ctx, cutoff)
	if err != nil {
		a.logger.Error().Err(err).Time("cutoff", cutoff).Msg("failed to prune history")
		return
	}
	if deleted > 0 {
		a.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("pruned price history")
	}
}
