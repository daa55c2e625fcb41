package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"forex-observer/internal/market"
	"forex-observer/internal/storage"
)

type pricePointJSON struct {
	Pair        string          `json:"pair"`
	Price       decimal.Decimal `json:"price"`
	SourceTitle string          `json:"source_title,omitempty"`
	ObservedAt  time.Time       `json:"observed_at"`
}

type candleJSON struct {
	Timestamp time.Time       `json:"ts"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

func parseTimeParam(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339, e.g. 2024-02-19T12:00:00Z"})
		return nil, false
	}
	t = t.UTC()
	return &t, true
}

func parseLimitParam(c *gin.Context, fallback, max int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return 0, false
	}
	if n < 1 {
		n = 1
	}
	if n > max {
		n = max
	}
	return n, true
}

// handleHistory lists archived price observations, newest first. The window
// always selects the newest rows; order only affects presentation.
func (s *Server) handleHistory(c *gin.Context) {
	from, ok := parseTimeParam(c, "start")
	if !ok {
		return
	}
	to, ok := parseTimeParam(c, "end")
	if !ok {
		return
	}
	limit, ok := parseLimitParam(c, 500, 5000)
	if !ok {
		return
	}

	order := strings.ToLower(c.DefaultQuery("order", "desc"))
	if order != "asc" && order != "desc" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order must be asc or desc"})
		return
	}

	filter := storage.HistoryFilter{
		Pair:  market.NormalizePair(c.Query("pair")),
		From:  from,
		To:    to,
		Limit: limit,
	}

	points, err := s.history.ListHistory(c.Request.Context(), filter)
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price history not configured"})
			return
		}
		s.logger.Error().Err(err).Msg("history query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}

	if order == "asc" {
		for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
			points[i], points[j] = points[j], points[i]
		}
	}

	items := make([]pricePointJSON, 0, len(points))
	for _, p := range points {
		items = append(items, pricePointJSON{
			Pair:        p.Pair,
			Price:       p.Price,
			SourceTitle: p.SourceTitle,
			ObservedAt:  p.ObservedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"count": len(items), "items": items})
}

// handleOHLC aggregates archived prices into candles. The newest buckets in
// the window are returned in chronological order.
func (s *Server) handleOHLC(c *gin.Context) {
	pair := market.NormalizePair(c.Query("pair"))
	if pair == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pair is required"})
		return
	}

	label := c.DefaultQuery("interval", "1h")
	interval, err := storage.ParseInterval(label)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	from, ok := parseTimeParam(c, "start")
	if !ok {
		return
	}
	to, ok := parseTimeParam(c, "end")
	if !ok {
		return
	}
	limit, ok := parseLimitParam(c, 1000, 5000)
	if !ok {
		return
	}

	candles, err := s.history.QueryOHLC(c.Request.Context(), storage.OHLCQuery{
		Pair:     pair,
		Interval: interval,
		From:     from,
		To:       to,
		Limit:    limit,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "price history not configured"})
			return
		}
		s.logger.Error().Err(err).Msg("ohlc query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ohlc query failed"})
		return
	}

	items := make([]candleJSON, 0, len(candles))
	for _, cd := range candles {
		items = append(items, candleJSON{
			Timestamp: cd.Timestamp,
			Open:      cd.Open,
			High:      cd.High,
			Low:       cd.Low,
			Close:     cd.Close,
			Volume:    cd.Volume,
		})
	}

	resp := gin.H{
		"pair":     pair,
		"interval": label,
		"count":    len(items),
		"candles":  items,
	}
	if len(items) > 0 {
		resp["start"] = items[0].Timestamp
		resp["end"] = items[len(items)-1].Timestamp
	}

	c.JSON(http.StatusOK, resp)
}
