package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"forex-observer/internal/market"
	"forex-observer/internal/storage"
)

// Show prints the market state and recent archived prices.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	now := time.Now().UTC()

	fmt.Fprintf(os.Stdout, "Market:      %s\n", market.CurrentState(now))
	if market.IsOpen(now) {
		fmt.Fprintf(os.Stdout, "Next close:  %s (in %s)\n",
			market.NextClose(now).Format(time.RFC3339), market.UntilClose(now).Round(time.Second))
	} else {
		fmt.Fprintf(os.Stdout, "Next open:   %s (in %s)\n",
			market.NextOpen(now).Format(time.RFC3339), market.UntilOpen(now).Round(time.Second))
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		fmt.Fprintln(os.Stdout, "\nprice history not configured")
		return nil
	}
	if closeStore != nil {
		defer closeStore()
	}

	points, err := store.ListHistory(ctx, storage.HistoryFilter{Limit: opts.Limit})
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Fprintln(os.Stdout, "\nno archived prices found")
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPair\tPrice\tSource")

	for _, point := range points {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\n",
			point.ObservedAt.UTC().Format(time.RFC3339),
			point.Pair,
			formatDecimal(point.Price, 5),
			sanitizeInline(point.SourceTitle),
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
