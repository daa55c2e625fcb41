package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createPricesTableSQL = `CREATE TABLE IF NOT EXISTS historical_prices (
        id           BIGSERIAL PRIMARY KEY,
        pair         TEXT NOT NULL,
        price        NUMERIC(18,6) NOT NULL,
        source_title TEXT NOT NULL DEFAULT '',
        observed_at  TIMESTAMPTZ NOT NULL
    );`

	createPricesIndexSQL = `CREATE INDEX IF NOT EXISTS idx_historical_prices_pair_observed
        ON historical_prices (pair, observed_at DESC);`

	listHistorySQL = `SELECT
        id,
        pair,
        price,
        source_title,
        observed_at
    FROM historical_prices
    WHERE ($1 = '' OR pair = $1)
      AND ($2::timestamptz IS NULL OR observed_at >= $2)
      AND ($3::timestamptz IS NULL OR observed_at <= $3)
    ORDER BY observed_at DESC
    LIMIT $4;`

	queryOHLCSQL = `SELECT bucket_ts, open_price, high_price, low_price, close_price, volume
    FROM (
        SELECT
            to_timestamp(floor(extract(epoch FROM observed_at) / $2) * $2) AS bucket_ts,
            (array_agg(price ORDER BY observed_at ASC))[1]  AS open_price,
            MAX(price)                                      AS high_price,
            MIN(price)                                      AS low_price,
            (array_agg(price ORDER BY observed_at DESC))[1] AS close_price,
            COUNT(*)                                        AS volume
        FROM historical_prices
        WHERE pair = $1
          AND ($3::timestamptz IS NULL OR observed_at >= $3)
          AND ($4::timestamptz IS NULL OR observed_at <= $4)
        GROUP BY bucket_ts
        ORDER BY bucket_ts DESC
        LIMIT $5
    ) AS buckets
    ORDER BY bucket_ts ASC;`

	countPricePointsSQL = `SELECT COUNT(*) FROM historical_prices;`

	deletePricesBeforeSQL = `DELETE FROM historical_prices WHERE observed_at < $1;`
)

// SupportedIntervals lists the OHLC bucket widths accepted by QueryOHLC.
var SupportedIntervals = []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d"}

// ParseInterval maps an interval label to its bucket width.
func ParseInterval(label string) (time.Duration, error) {
	switch label {
	case "1m":
		return time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("unsupported interval %q (supported: %s)", label, strings.Join(SupportedIntervals, ", "))
}

// PriceStore defines operations for price history persistence.
type PriceStore interface {
	InsertPricePoints(ctx context.Context, points []PricePoint) (int64, error)
	ListHistory(ctx context.Context, filter HistoryFilter) ([]PricePoint, error)
	QueryOHLC(ctx context.Context, q OHLCQuery) ([]Candle, error)
	CountPricePoints(ctx context.Context) (int64, error)
	DeletePricesBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// Store provides PostgreSQL-backed price history access.
type Store struct {
	pool *pgxpool.Pool
}

var _ PriceStore = (*Store)(nil)

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the price history table and index when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, stmt := range []string{createPricesTableSQL, createPricesIndexSQL} {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}

// InsertPricePoints bulk-inserts observations via COPY and returns the
// number of rows written.
func (s *Store) InsertPricePoints(ctx context.Context, points []PricePoint) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(points) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(points))
	for _, p := range points {
		rows = append(rows, []any{
			p.Pair,
			p.Price.String(),
			p.SourceTitle,
			p.ObservedAt,
		})
	}

	count, copyErr := pool.CopyFrom(ctx,
		pgx.Identifier{"historical_prices"},
		[]string{"pair", "price", "source_title", "observed_at"},
		pgx.CopyFromRows(rows),
	)
	if copyErr != nil {
		return 0, fmt.Errorf("insert price points: %w", copyErr)
	}
	return count, nil
}

// ListHistory returns observations matching the filter, newest first.
func (s *Store) ListHistory(ctx context.Context, filter HistoryFilter) ([]PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHistorySQL, filter.Pair, filter.From, filter.To, filter.Limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list history: %w", queryErr)
	}
	defer rows.Close()

	points := make([]PricePoint, 0, filter.Limit)
	for rows.Next() {
		point, scanErr := scanPricePoint(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		points = append(points, point)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

// QueryOHLC aggregates observations into fixed-width candles. The newest
// q.Limit buckets are returned in chronological order.
func (s *Store) QueryOHLC(ctx context.Context, q OHLCQuery) ([]Candle, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if q.Interval <= 0 {
		return nil, fmt.Errorf("ohlc interval must be positive")
	}

	seconds := int64(q.Interval / time.Second)
	rows, queryErr := pool.Query(ctx, queryOHLCSQL, q.Pair, seconds, q.From, q.To, q.Limit)
	if queryErr != nil {
		return nil, fmt.Errorf("query ohlc: %w", queryErr)
	}
	defer rows.Close()

	candles := make([]Candle, 0, q.Limit)
	for rows.Next() {
		var (
			c        Candle
			openStr  string
			highStr  string
			lowStr   string
			closeStr string
		)
		if err := rows.Scan(&c.Timestamp, &openStr, &highStr, &lowStr, &closeStr, &c.Volume); err != nil {
			return nil, err
		}

		var convErr error
		if c.Open, convErr = decimal.NewFromString(openStr); convErr != nil {
			return nil, fmt.Errorf("parse open price: %w", convErr)
		}
		if c.High, convErr = decimal.NewFromString(highStr); convErr != nil {
			return nil, fmt.Errorf("parse high price: %w", convErr)
		}
		if c.Low, convErr = decimal.NewFromString(lowStr); convErr != nil {
			return nil, fmt.Errorf("parse low price: %w", convErr)
		}
		if c.Close, convErr = decimal.NewFromString(closeStr); convErr != nil {
			return nil, fmt.Errorf("parse close price: %w", convErr)
		}

		candles = append(candles, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return candles, nil
}

// CountPricePoints counts stored observations.
func (s *Store) CountPricePoints(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var count int64
	if scanErr := pool.QueryRow(ctx, countPricePointsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count price points: %w", scanErr)
	}
	return count, nil
}

// DeletePricesBefore removes observations older than the cutoff and
// returns the number of rows deleted.
func (s *Store) DeletePricesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	cmdTag, execErr := pool.Exec(ctx, deletePricesBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete prices before: %w", execErr)
	}
	return cmdTag.RowsAffected(), nil
}

func scanPricePoint(rows pgx.Rows) (PricePoint, error) {
	var (
		point    PricePoint
		priceStr string
	)

	if err := rows.Scan(
		&point.ID,
		&point.Pair,
		&priceStr,
		&point.SourceTitle,
		&point.ObservedAt,
	); err != nil {
		return PricePoint{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PricePoint{}, fmt.Errorf("parse price: %w", err)
	}
	point.Price = price

	return point, nil
}
