package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"forex-observer/internal/market"
)

// Event carries the observation that fired an alert.
type Event struct {
	Pair       string
	Price      decimal.Decimal
	ObservedAt time.Time
	Source     string
}

// Gateway delivers a fired alert on one channel. Implementations live in
// the notify package; a delivery error affects only that channel.
type Gateway interface {
	Send(ctx context.Context, ch Channel, a Alert, ev Event) error
}

// EngineOptions tune evaluation behaviour.
type EngineOptions struct {
	// OneShot deactivates an alert after its first fire instead of
	// re-arming it when the condition stops holding.
	OneShot bool
}

// Engine evaluates the stored alert set against market snapshots. Firing is
// edge-triggered: an alert notifies when its condition flips from false to
// true and stays quiet until the condition has flipped back.
type Engine struct {
	store  Store
	gw     Gateway
	opts   EngineOptions
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine builds an engine over the given store and delivery gateway.
func NewEngine(store Store, gw Gateway, opts EngineOptions, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		gw:     gw,
		opts:   opts,
		logger: logger.With().Str("component", "alert_engine").Logger(),
		now:    time.Now,
	}
}

// Evaluate runs one snapshot through every active alert and returns the
// number of alerts fired. Alerts whose pair is absent from the snapshot are
// skipped without a state change.
func (e *Engine) Evaluate(ctx context.Context, snap market.Snapshot) (int, error) {
	alerts, err := e.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list alerts: %w", err)
	}

	fired := 0
	for _, a := range alerts {
		if !a.Active {
			continue
		}
		price, ok := snap.PriceFor(a.Pair)
		if !ok {
			continue
		}

		switch satisfied := a.Satisfied(price); {
		case satisfied && !a.LastTriggerState:
			e.dispatch(ctx, a, price, snap)
			now := e.now().UTC()
			a.LastTriggerState = true
			a.LastTriggeredAt = &now
			if e.opts.OneShot {
				a.Active = false
			}
			if err := e.store.Update(ctx, a); err != nil {
				e.logger.Error().Err(err).Str("alert_id", a.ID).Msg("failed to persist trigger state")
			}
			fired++
		case !satisfied && a.LastTriggerState:
			a.LastTriggerState = false
			if err := e.store.Update(ctx, a); err != nil {
				e.logger.Error().Err(err).Str("alert_id", a.ID).Msg("failed to persist re-arm")
			}
		}
	}
	return fired, nil
}

// dispatch sends the event over each configured channel independently: one
// channel failing does not stop the others.
func (e *Engine) dispatch(ctx context.Context, a Alert, price decimal.Decimal, snap market.Snapshot) {
	ev := Event{
		Pair:       a.Pair,
		Price:      price,
		ObservedAt: snap.Timestamp,
		Source:     snap.Title,
	}
	for _, ch := range a.Channels {
		if err := e.gw.Send(ctx, ch, a, ev); err != nil {
			e.logger.Error().Err(err).
				Str("alert_id", a.ID).
				Str("channel", string(ch)).
				Msg("notification failed")
			continue
		}
		e.logger.Info().
			Str("alert_id", a.ID).
			Str("pair", a.Pair).
			Str("channel", string(ch)).
			Str("price", price.String()).
			Msg("alert fired")
	}
}
