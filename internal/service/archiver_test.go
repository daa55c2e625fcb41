package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"forex-observer/internal/hub"
	"forex-observer/internal/market"
	"forex-observer/internal/storage"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	attempts chan struct{}
	inserted chan []storage.PricePoint
	pruned   chan time.Time
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		attempts: make(chan struct{}, 16),
		inserted: make(chan []storage.PricePoint, 16),
		pruned:   make(chan time.Time, 16),
	}
}

func (w *fakeWriter) InsertPricePoints(ctx context.Context, points []storage.PricePoint) (int64, error) {
	w.attempts <- struct{}{}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return 0, errors.New("insert failed")
	}
	w.inserted <- points
	return int64(len(points)), nil
}

func (w *fakeWriter) DeletePricesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	w.pruned <- olderThan
	return 0, nil
}

func archiveSnapshot(pairs ...string) market.Snapshot {
	snap := market.Snapshot{
		Title:     "Live rates",
		Timestamp: time.Date(2024, 2, 19, 12, 0, 0, 0, time.UTC),
	}
	for i, p := range pairs {
		price := decimal.NewFromInt(int64(i + 1))
		snap.Pairs = append(snap.Pairs, market.Quote{Pair: p, Price: price})
	}
	return snap
}

func waitBatch(t *testing.T, ch chan []storage.PricePoint) []storage.PricePoint {
	t.Helper()
	select {
	case batch := <-ch:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a flush")
		return nil
	}
}

func TestArchiverFlushesOnBatchSize(t *testing.T) {
	writer := newFakeWriter()
	h := hub.New(8, zerolog.Nop())
	a := NewArchiver(writer, h, ArchiverOptions{
		FlushInterval: time.Hour,
		BatchSize:     2,
	}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// give the archiver a moment to subscribe before publishing
	waitSubscribed(t, h)
	h.Publish(archiveSnapshot("EUR/USD", "GBP/USD"))

	batch := waitBatch(t, writer.inserted)
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want 2", len(batch))
	}
	if batch[0].Pair != "EURUSD" || batch[1].Pair != "GBPUSD" {
		t.Errorf("pairs = %q, %q, want normalized EURUSD, GBPUSD", batch[0].Pair, batch[1].Pair)
	}
	if batch[0].SourceTitle != "Live rates" {
		t.Errorf("source title = %q", batch[0].SourceTitle)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestArchiverFlushesRemainderOnShutdown(t *testing.T) {
	writer := newFakeWriter()
	h := hub.New(8, zerolog.Nop())
	a := NewArchiver(writer, h, ArchiverOptions{
		FlushInterval: time.Hour,
		BatchSize:     100,
	}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitSubscribed(t, h)
	h.Publish(archiveSnapshot("USD/JPY"))
	waitPending(t, a, 1)
	cancel()

	batch := waitBatch(t, writer.inserted)
	if len(batch) != 1 || batch[0].Pair != "USDJPY" {
		t.Fatalf("final batch = %+v, want one USDJPY point", batch)
	}
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestArchiverRetriesFailedBatch(t *testing.T) {
	writer := newFakeWriter()
	writer.failures = 1
	h := hub.New(8, zerolog.Nop())
	a := NewArchiver(writer, h, ArchiverOptions{
		FlushInterval: time.Hour,
		BatchSize:     1,
	}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitSubscribed(t, h)
	h.Publish(archiveSnapshot("EUR/USD"))
	<-writer.attempts // first flush fails and is re-buffered

	h.Publish(archiveSnapshot("GBP/USD"))
	batch := waitBatch(t, writer.inserted)
	if len(batch) != 2 {
		t.Fatalf("batch size = %d, want the failed point plus the new one", len(batch))
	}
	if batch[0].Pair != "EURUSD" || batch[1].Pair != "GBPUSD" {
		t.Errorf("pairs = %q, %q, want EURUSD then GBPUSD", batch[0].Pair, batch[1].Pair)
	}

	cancel()
	<-done
}

func TestArchiverPrunesOldHistory(t *testing.T) {
	writer := newFakeWriter()
	h := hub.New(8, zerolog.Nop())
	a := NewArchiver(writer, h, ArchiverOptions{
		FlushInterval: time.Hour,
		BatchSize:     100,
		Retention:     24 * time.Hour,
		PruneInterval: 20 * time.Millisecond,
	}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case cutoff := <-writer.pruned:
		want := time.Now().UTC().Add(-24 * time.Hour)
		if d := cutoff.Sub(want); d < -time.Minute || d > time.Minute {
			t.Errorf("cutoff = %s, want about %s", cutoff, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a prune")
	}

	cancel()
	<-done
}

func TestNewArchiverDefaults(t *testing.T) {
	a := NewArchiver(newFakeWriter(), hub.New(8, zerolog.Nop()), ArchiverOptions{}, nil, zerolog.Nop())
	if a.opts.FlushInterval != 30*time.Second {
		t.Errorf("flush interval = %s, want 30s", a.opts.FlushInterval)
	}
	if a.opts.BatchSize != 200 {
		t.Errorf("batch size = %d, want 200", a.opts.BatchSize)
	}
	if a.opts.PruneInterval != time.Hour {
		t.Errorf("prune interval = %s, want 1h", a.opts.PruneInterval)
	}
}

// waitSubscribed blocks until the hub has at least one subscriber.
func waitSubscribed(t *testing.T, h *hub.Hub) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("archiver never subscribed")
		}
		time.Sleep(time.Millisecond)
	}
}

// waitPending blocks until the archiver has buffered n points.
func waitPending(t *testing.T, a *Archiver, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		a.mu.Lock()
		got := len(a.pending)
		a.mu.Unlock()
		if got >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("pending = %d, want %d", got, n)
		}
		time.Sleep(time.Millisecond)
	}
}
