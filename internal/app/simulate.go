package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"forex-observer/internal/alert"
	"forex-observer/internal/fetcher"
	"forex-observer/internal/market"
)

// SimulateAlert 以合成价格序列驱动真实的告警引擎与通知通道。
// 触发状态会写回告警存储, 与线上评估完全一致。
func (a *App) SimulateAlert(ctx context.Context, pair string, prices []decimal.Decimal) error {
	gateway := a.newGateway()
	if len(gateway.Channels()) == 0 {
		return errors.New("未配置任何告警通道")
	}

	store, err := a.openAlertStore()
	if err != nil {
		return err
	}
	defer store.Close()

	engine := alert.NewEngine(store, gateway, alert.EngineOptions{
		OneShot: a.Config.Alerts.OneShot,
	}, a.Logger)

	now := time.Now().UTC()
	snaps := make([]market.Snapshot, 0, len(prices))
	for i, price := range prices {
		snaps = append(snaps, market.Snapshot{
			Title:     "simulated feed",
			Pairs:     []market.Quote{{Pair: market.NormalizePair(pair), Price: price}},
			Timestamp: now.Add(time.Duration(i) * time.Second),
		})
	}

	source := fetcher.NewStatic(snaps)
	total := 0
	for {
		snap, err := source.Fetch(ctx)
		if errors.Is(err, fetcher.ErrExhausted) {
			break
		}
		if err != nil {
			return err
		}

		fired, err := engine.Evaluate(ctx, snap)
		if err != nil {
			return err
		}
		total += fired
	}

	a.Logger.Info().Int("prices", len(prices)).Int("fired", total).Msg("模拟评估完成")
	return nil
}
