package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"forex-observer/internal/market"
)

const feedSnapshotPath = "/snapshot"

// DefaultMajors lists the currencies recognised in feed text.
var DefaultMajors = []string{"USD", "EUR", "JPY", "GBP", "AUD", "CAD", "CHF", "NZD"}

// FeedOptions parameterise the live feed client.
type FeedOptions struct {
	BaseURL    string
	Timeout    time.Duration
	UserAgent  string
	Majors     []string
	SampleSize int
}

// Feed fetches price snapshots from the scraper sidecar.
type Feed struct {
	opts    FeedOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewFeed constructs a feed client.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:8070"
	}

	if opts.SampleSize <= 0 {
		opts.SampleSize = 10
	}
	if len(opts.Majors) == 0 {
		opts.Majors = DefaultMajors
	}

	return &Feed{
		opts:    opts,
		logger:  logger.With().Str("component", "feed_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type feedRow struct {
	Pair   string `json:"pair"`
	Price  string `json:"price"`
	Change string `json:"change,omitempty"`
}

type feedResponse struct {
	Title string    `json:"title"`
	Rows  []feedRow `json:"rows"`
	TS    time.Time `json:"ts,omitempty"`
}

// Fetch retrieves one snapshot from the feed and normalises it. Rows whose
// price cannot be parsed are skipped; a snapshot without a single parseable
// price is an error.
func (f *Feed) Fetch(ctx context.Context) (market.Snapshot, error) {
	endpoint := f.baseURL + feedSnapshotPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "fxobserver/1.0")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return market.Snapshot{}, err
	}
	defer resp.Body.Close()

	payloadBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return market.Snapshot{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return market.Snapshot{}, parseHTTPError(resp.StatusCode, payloadBytes)
	}

	var payload feedResponse
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return market.Snapshot{}, fmt.Errorf("decode feed payload: %w", err)
	}

	if len(payload.Rows) == 0 {
		return market.Snapshot{}, errors.New("feed returned no rows")
	}

	pairs := make([]market.Quote, 0, len(payload.Rows))
	texts := make([]string, 0, len(payload.Rows)+1)
	texts = append(texts, payload.Title)
	var sample, changes []string

	for _, row := range payload.Rows {
		text := strings.TrimSpace(row.Pair)
		if text == "" {
			continue
		}
		texts = append(texts, text)
		if len(sample) < f.opts.SampleSize {
			sample = append(sample, text)
		}
		if c := strings.TrimSpace(row.Change); c != "" {
			changes = append(changes, c)
		}

		price, err := market.ParsePrice(row.Price)
		if err != nil {
			f.logger.Debug().Str("pair", text).Str("price", row.Price).Msg("skipping unparseable price")
			continue
		}
		pairs = append(pairs, market.Quote{Pair: text, Price: price})
	}

	if len(pairs) == 0 {
		return market.Snapshot{}, errors.New("feed returned no parseable prices")
	}

	ts := payload.TS
	if ts.IsZero() {
		ts = time.Now()
	}

	return market.Snapshot{
		Title:       payload.Title,
		Majors:      market.ExtractMajors(texts, f.opts.Majors),
		Pairs:       pairs,
		PairsSample: sample,
		Changes:     changes,
		Timestamp:   ts.UTC(),
	}, nil
}

type errorResponse struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
	Message     string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Description != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Description)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.Message)
		}
		if apiErr.ErrorType != "" {
			return fmt.Errorf("feed api error (%d): %s", status, apiErr.ErrorType)
		}
	}
	if len(payload) > 0 {
		return fmt.Errorf("feed api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("feed api error (%d)", status)
}

var _ Source = (*Feed)(nil)
