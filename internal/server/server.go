// Package server exposes the observer over HTTP: health and market status,
// snapshot reads, alert CRUD, price history, and a WebSocket stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"forex-observer/internal/alert"
	"forex-observer/internal/hub"
	"forex-observer/internal/market"
	"forex-observer/internal/metrics"
	"forex-observer/internal/storage"
	"forex-observer/internal/version"
)

// RecentReader serves snapshot reads from the mirror.
type RecentReader interface {
	Latest(ctx context.Context) (market.Snapshot, error)
	Recent(ctx context.Context, limit int) ([]market.Snapshot, error)
}

// Options configure the HTTP listener.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server routes observer state to HTTP clients.
type Server struct {
	opts    Options
	hub     *hub.Hub
	alerts  alert.Store
	history storage.PriceStore
	mirror  RecentReader
	metrics *metrics.Metrics
	logger  zerolog.Logger
	router  *gin.Engine
}

// New assembles the router. mirror may be nil when the Redis mirror is
// disabled; history tolerates an unconfigured store and reports 503.
func New(opts Options, h *hub.Hub, alerts alert.Store, history storage.PriceStore, mirror RecentReader, mx *metrics.Metrics, logger zerolog.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		opts:    opts,
		hub:     h,
		alerts:  alerts,
		history: history,
		mirror:  mirror,
		metrics: mx,
		logger:  logger.With().Str("component", "server").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", s.handleHealthz)
	r.GET("/status", s.handleStatus)
	r.GET("/snapshot", s.handleSnapshot)
	r.GET("/snapshots/recent", s.handleRecentSnapshots)
	r.GET("/ws/observe", s.handleObserveWS)

	r.GET("/historical", s.handleHistory)
	r.GET("/historical/ohlc", s.handleOHLC)

	api := r.Group("/api/v1")
	{
		api.POST("/alerts", s.handleCreateAlert)
		api.GET("/alerts", s.handleListAlerts)
		api.GET("/alerts/:id", s.handleGetAlert)
		api.PUT("/alerts/:id", s.handleUpdateAlert)
		api.DELETE("/alerts/:id", s.handleDeleteAlert)
	}

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.opts.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	<-errc
	s.logger.Info().Msg("http server stopped")
	return ctx.Err()
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("request handled")
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	now := time.Now().UTC()
	resp := gin.H{
		"market":           string(market.CurrentState(now)),
		"next_open":        market.NextOpen(now),
		"next_close":       market.NextClose(now),
		"until_transition": market.UntilTransition(now).String(),
		"subscribers":      s.hub.Len(),
		"version":          version.Version,
		"as_of":            now,
	}

	if snap, ok := s.hub.Latest(); ok {
		resp["last_snapshot"] = snap.Timestamp
		resp["pairs"] = len(snap.Pairs)
	}
	if s.alerts != nil {
		if list, err := s.alerts.List(c.Request.Context()); err == nil {
			active := 0
			for _, a := range list {
				if a.Active {
					active++
				}
			}
			resp["alerts_active"] = active
		}
	}

	c.JSON(http.StatusOK, resp)
}
