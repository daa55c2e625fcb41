// Package service wires fetching, broadcasting, alert evaluation, and
// mirroring into the scheduler's observation loop.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"forex-observer/internal/alert"
	"forex-observer/internal/config"
	"forex-observer/internal/fetcher"
	"forex-observer/internal/hub"
	"forex-observer/internal/market"
	"forex-observer/internal/metrics"
	"forex-observer/internal/scheduler"
)

// Engine evaluates the stored alert set against one snapshot.
type Engine interface {
	Evaluate(ctx context.Context, snap market.Snapshot) (int, error)
}

// Mirror forwards snapshots to an external stream.
type Mirror interface {
	Publish(ctx context.Context, snap market.Snapshot) error
}

// StatusReporter receives operational status events.
type StatusReporter interface {
	MarketTransition(state market.State, at time.Time)
	FetchFailure(streak int, cause error)
	FetchRecovered(failures int)
}

// Service orchestrates one observation cycle per scheduler tick.
type Service struct {
	scheduler *scheduler.Scheduler
	source    fetcher.Source
	hub       *hub.Hub
	engine    Engine
	mirror    Mirror
	status    StatusReporter
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// failureStreak is how many consecutive fetch failures trigger a
	// status report; failures is only touched from the loop goroutine.
	failureStreak int
	failures      int
}

// New constructs the observer service and its market-gated scheduler.
func New(cfg *config.Config, source fetcher.Source, h *hub.Hub, engine Engine, mirror Mirror, status StatusReporter, mx *metrics.Metrics, logger zerolog.Logger) *Service {
	s := &Service{
		source:        source,
		hub:           h,
		engine:        engine,
		mirror:        mirror,
		status:        status,
		metrics:       mx,
		logger:        logger.With().Str("component", "service").Logger(),
		failureStreak: cfg.Notify.FailureStreak,
	}

	s.scheduler = scheduler.New(scheduler.Options{
		OpenInterval:   cfg.Market.OpenInterval,
		ClosedInterval: cfg.Market.ClosedInterval,
		StartupDelay:   cfg.Market.StartupDelay,
		OnTransition:   s.Transition,
	}, logger)

	return s
}

// Run begins the market-gated observation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.Observe)
}

// Observe 执行单个采样周期的抓取与派发逻辑。
func (s *Service) Observe(ctx context.Context, now time.Time) error {
	started := time.Now()

	snap, err := s.source.Fetch(ctx)
	if err != nil {
		s.recordFetchFailure(err)
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	s.recordFetchRecovery()

	s.hub.Publish(snap)

	fired := 0
	if s.engine != nil {
		fired, err = s.engine.Evaluate(ctx, snap)
		if err != nil {
			s.logger.Error().Err(err).Msg("alert evaluation failed")
		}
	}

	if s.mirror != nil {
		if err := s.mirror.Publish(ctx, snap); err != nil {
			s.logger.Error().Err(err).Msg("failed to mirror snapshot")
		}
	}

	if s.metrics != nil {
		s.metrics.CyclesTotal.Inc()
		s.metrics.SnapshotPairs.Set(float64(len(snap.Pairs)))
		s.metrics.CycleDuration.Observe(time.Since(started).Seconds())
	}

	s.logger.Debug().
		Int("pairs", len(snap.Pairs)).
		Int("alerts_fired", fired).
		Str("title", snap.Title).
		Msg("snapshot processed")
	return nil
}

// Transition 处理开闭盘状态切换。
func (s *Service) Transition(state market.State, at time.Time) {
	if s.metrics != nil {
		s.metrics.SetMarketOpen(state == market.StateOpen)
	}
	if s.status != nil {
		s.status.MarketTransition(state, at)
	}
}

func (s *Service) recordFetchFailure(cause error) {
	s.failures++
	if s.metrics != nil {
		s.metrics.FetchErrorsTotal.Inc()
	}
	if s.status != nil && s.failureStreak > 0 && s.failures%s.failureStreak == 0 {
		s.status.FetchFailure(s.failures, cause)
	}
}

func (s *Service) recordFetchRecovery() {
	if s.failures == 0 {
		return
	}
	if s.status != nil && s.failureStreak > 0 && s.failures >= s.failureStreak {
		s.status.FetchRecovered(s.failures)
	}
	s.failures = 0
}

// InstrumentedGateway decorates an alert gateway with per-channel counters.
type InstrumentedGateway struct {
	inner alert.Gateway
	mx    *metrics.Metrics
}

var _ alert.Gateway = (*InstrumentedGateway)(nil)

// NewInstrumentedGateway wraps inner; mx may be nil.
func NewInstrumentedGateway(inner alert.Gateway, mx *metrics.Metrics) *InstrumentedGateway {
	return &InstrumentedGateway{inner: inner, mx: mx}
}

// Send implements alert.Gateway.
func (g *InstrumentedGateway) Send(ctx context.Context, ch alert.Channel, a alert.Alert, ev alert.Event) error {
	err := g.inner.Send(ctx, ch, a, ev)
	if err == nil && g.mx != nil {
		g.mx.AlertsFiredTotal.WithLabelValues(string(ch)).Inc()
	}
	return err
}
