package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"forex-observer/internal/market"
)

// fakeClock advances virtual time by the slept duration, so Run spins
// through days of schedule in microseconds of wall time.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) sleepLog() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Monday 2024-02-19 12:00 UTC: market open.
var openStart = time.Date(2024, time.February, 19, 12, 0, 0, 0, time.UTC)

// Saturday 2024-02-24 12:00 UTC: market closed.
var closedStart = time.Date(2024, time.February, 24, 12, 0, 0, 0, time.UTC)

func TestRunTicksWhileOpen(t *testing.T) {
	clock := newFakeClock(openStart)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Options{
		OpenInterval: 200 * time.Millisecond,
		Now:          clock.Now,
		Sleep:        clock.Sleep,
	}, zerolog.Nop())

	ticks := 0
	err := s.Run(ctx, func(ctx context.Context, now time.Time) error {
		ticks++
		if ticks == 3 {
			cancel()
		}
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if ticks != 3 {
		t.Fatalf("expected 3 ticks, got %d", ticks)
	}

	for _, d := range clock.sleepLog() {
		if d != 200*time.Millisecond {
			t.Fatalf("open-market sleep was %s, want 200ms", d)
		}
	}
}

func TestRunNeverTicksWhileClosed(t *testing.T) {
	clock := newFakeClock(closedStart)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Options{
		ClosedInterval: 5 * time.Minute,
		Now:            clock.Now,
		Sleep: func(ctx context.Context, d time.Duration) error {
			if err := clock.Sleep(ctx, d); err != nil {
				return err
			}
			if len(clock.sleepLog()) >= 12 {
				cancel()
			}
			return nil
		},
	}, zerolog.Nop())

	err := s.Run(ctx, func(ctx context.Context, now time.Time) error {
		t.Error("tick must not run while the market is closed")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	// An hour of closed market costs twelve 5-minute sleeps, not 18000
	// fetch cycles.
	for _, d := range clock.sleepLog() {
		if d != 5*time.Minute {
			t.Fatalf("closed-market sleep was %s, want 5m", d)
		}
	}
}

func TestRunClosedSleepCappedAtNextOpen(t *testing.T) {
	// Sunday 21:58 UTC: two minutes before the weekly open.
	start := time.Date(2024, time.February, 25, 21, 58, 0, 0, time.UTC)
	clock := newFakeClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Options{
		OpenInterval:   200 * time.Millisecond,
		ClosedInterval: 5 * time.Minute,
		Now:            clock.Now,
		Sleep:          clock.Sleep,
	}, zerolog.Nop())

	var tickedAt time.Time
	err := s.Run(ctx, func(ctx context.Context, now time.Time) error {
		tickedAt = now
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	sleeps := clock.sleepLog()
	if len(sleeps) == 0 || sleeps[0] != 2*time.Minute {
		t.Fatalf("first closed sleep should be capped at 2m until open, got %v", sleeps)
	}

	wantOpen := time.Date(2024, time.February, 25, 22, 0, 0, 0, time.UTC)
	if !tickedAt.Equal(wantOpen) {
		t.Fatalf("first tick at %s, want %s", tickedAt, wantOpen)
	}
}

func TestRunAnnouncesStartupStateAndTransitions(t *testing.T) {
	// 100ms before the Sunday open, so the loop starts closed and flips.
	start := time.Date(2024, time.February, 25, 21, 59, 59, 900_000_000, time.UTC)
	clock := newFakeClock(start)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var transitions []market.State
	s := New(Options{
		OpenInterval:   200 * time.Millisecond,
		ClosedInterval: 5 * time.Minute,
		Now:            clock.Now,
		Sleep:          clock.Sleep,
		OnTransition: func(state market.State, at time.Time) {
			transitions = append(transitions, state)
		},
	}, zerolog.Nop())

	err := s.Run(ctx, func(ctx context.Context, now time.Time) error {
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if len(transitions) != 2 || transitions[0] != market.StateClosed || transitions[1] != market.StateOpen {
		t.Fatalf("transitions = %v, want [closed open]", transitions)
	}
}

func TestRunContinuesAfterTickError(t *testing.T) {
	clock := newFakeClock(openStart)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Options{
		OpenInterval: 200 * time.Millisecond,
		Now:          clock.Now,
		Sleep:        clock.Sleep,
	}, zerolog.Nop())

	ticks := 0
	err := s.Run(ctx, func(ctx context.Context, now time.Time) error {
		ticks++
		if ticks == 3 {
			cancel()
		}
		return errors.New("fetch failed")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if ticks != 3 {
		t.Fatalf("expected the loop to survive tick errors, got %d ticks", ticks)
	}
}

func TestRunHonoursStartupDelay(t *testing.T) {
	clock := newFakeClock(openStart)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Options{
		OpenInterval: 200 * time.Millisecond,
		StartupDelay: 3 * time.Second,
		Now:          clock.Now,
		Sleep:        clock.Sleep,
	}, zerolog.Nop())

	_ = s.Run(ctx, func(ctx context.Context, now time.Time) error {
		cancel()
		return nil
	})

	sleeps := clock.sleepLog()
	if len(sleeps) == 0 || sleeps[0] != 3*time.Second {
		t.Fatalf("startup delay not honoured: %v", sleeps)
	}
}

func TestRunStopsWhenCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clock := newFakeClock(openStart)
	s := New(Options{Now: clock.Now, Sleep: clock.Sleep}, zerolog.Nop())

	err := s.Run(ctx, func(ctx context.Context, now time.Time) error {
		t.Error("tick must not run after cancellation")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	s := New(Options{}, zerolog.Nop())

	if s.opts.OpenInterval != DefaultOpenInterval {
		t.Errorf("OpenInterval = %s, want %s", s.opts.OpenInterval, DefaultOpenInterval)
	}
	if s.opts.ClosedInterval != DefaultClosedInterval {
		t.Errorf("ClosedInterval = %s, want %s", s.opts.ClosedInterval, DefaultClosedInterval)
	}
	if s.opts.Now == nil || s.opts.Sleep == nil {
		t.Error("clock hooks should default to the real clock")
	}
}

func TestNewPanicsOnNegativeInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for negative interval")
		}
	}()
	New(Options{OpenInterval: -time.Second}, zerolog.Nop())
}
