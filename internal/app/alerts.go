package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"forex-observer/internal/alert"
)

// AlertsList prints the stored alert set.
func (a *App) AlertsList(ctx context.Context) error {
	store, err := a.openAlertStore()
	if err != nil {
		return err
	}
	defer store.Close()

	alerts, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts configured")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tPair\tCondition\tThreshold\tChannels\tActive\tLast Triggered")

	for _, item := range alerts {
		lastTriggered := "-"
		if item.LastTriggeredAt != nil {
			lastTriggered = item.LastTriggeredAt.UTC().Format(time.RFC3339)
		}
		channels := make([]string, len(item.Channels))
		for i, ch := range item.Channels {
			channels[i] = string(ch)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			item.ID,
			item.Pair,
			item.Condition,
			item.Threshold.String(),
			strings.Join(channels, ","),
			item.Active,
			lastTriggered,
		)
	}

	writer.Flush()
	return nil
}

// AlertsAdd validates and stores a new alert.
func (a *App) AlertsAdd(ctx context.Context, opts AddAlertOptions) error {
	threshold, err := decimal.NewFromString(opts.Threshold)
	if err != nil {
		return fmt.Errorf("invalid --threshold value: %w", err)
	}

	channels := make([]alert.Channel, 0, len(opts.Channels))
	for _, raw := range opts.Channels {
		channels = append(channels, alert.Channel(strings.ToUpper(strings.TrimSpace(raw))))
	}

	item := alert.New(opts.Pair, alert.Condition(strings.ToUpper(opts.Condition)), threshold, channels)
	item.Email = opts.Email
	item.Phone = opts.Phone
	item.Message = opts.Message

	if err := item.Validate(); err != nil {
		return err
	}

	store, err := a.openAlertStore()
	if err != nil {
		return err
	}
	defer store.Close()

	created, err := store.Create(ctx, item)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "alert created: %s\n", created.ID)
	return nil
}

// AlertsRemove deletes an alert by ID.
func (a *App) AlertsRemove(ctx context.Context, id string) error {
	store, err := a.openAlertStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "alert removed: %s\n", id)
	return nil
}
