// Package scheduler drives the market-gated observation loop.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"forex-observer/internal/market"
)

// Default poll intervals for the open and closed market states.
const (
	DefaultOpenInterval   = 200 * time.Millisecond
	DefaultClosedInterval = 5 * time.Minute
)

// TickFunc is invoked once per cycle while the market is open.
type TickFunc func(ctx context.Context, now time.Time) error

// TransitionFunc is notified when the market state changes. It also fires
// once at startup with the initial state.
type TransitionFunc func(state market.State, at time.Time)

// Options tune scheduler behaviour. Now and Sleep exist for tests and
// default to the real clock.
type Options struct {
	OpenInterval   time.Duration
	ClosedInterval time.Duration
	StartupDelay   time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	OnTransition TransitionFunc
}

// Scheduler runs the observation loop: ticking while the forex market is
// open and idling in long sleeps while it is closed.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.OpenInterval < 0 || opts.ClosedInterval < 0 {
		panic("scheduler intervals must not be negative")
	}
	if opts.OpenInterval == 0 {
		opts.OpenInterval = DefaultOpenInterval
	}
	if opts.ClosedInterval == 0 {
		opts.ClosedInterval = DefaultClosedInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks until ctx is cancelled. While the market is open it invokes
// tick every OpenInterval; while closed it skips ticking and sleeps in
// ClosedInterval slices capped at the time remaining until the next open.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := s.opts.Sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	var last market.State
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		now := s.opts.Now().UTC()
		state := market.CurrentState(now)
		if state != last {
			s.announce(state, now)
			last = state
		}

		if state == market.StateClosed {
			sleep := s.opts.ClosedInterval
			if until := market.UntilOpen(now); until < sleep {
				sleep = until
			}
			s.logger.Debug().
				Dur("sleep", sleep).
				Time("next_open", market.NextOpen(now)).
				Msg("market closed, waiting")
			if err := s.opts.Sleep(ctx, sleep); err != nil {
				return err
			}
			continue
		}

		if err := tick(ctx, now); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Msg("tick execution failed")
		}

		if err := s.opts.Sleep(ctx, s.opts.OpenInterval); err != nil {
			return err
		}
	}
}

func (s *Scheduler) announce(state market.State, at time.Time) {
	evt := s.logger.Info().Str("state", string(state)).Time("at", at)
	if state == market.StateOpen {
		evt.Dur("until_close", market.UntilClose(at)).Msg("market open")
	} else {
		evt.Dur("until_open", market.UntilOpen(at)).Msg("market closed")
	}

	if s.opts.OnTransition != nil {
		s.opts.OnTransition(state, at)
	}
}

// sleepContext waits for d or context cancellation, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
