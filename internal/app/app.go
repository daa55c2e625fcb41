package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"forex-observer/internal/alert"
	"forex-observer/internal/config"
	"forex-observer/internal/fetcher"
	"forex-observer/internal/hub"
	"forex-observer/internal/metrics"
	"forex-observer/internal/notify"
	"forex-observer/internal/server"
	"forex-observer/internal/service"
	"forex-observer/internal/storage"
	"forex-observer/internal/stream"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() fetcher.Source {
	return fetcher.NewFeed(fetcher.FeedOptions{
		BaseURL:    a.Config.Fetch.BaseURL,
		Timeout:    a.Config.Fetch.RequestTimeout,
		UserAgent:  a.Config.Fetch.UserAgent,
		Majors:     a.Config.Fetch.Majors,
		SampleSize: a.Config.Fetch.SampleSize,
	}, a.Logger)
}

func (a *App) openAlertStore() (alert.Store, error) {
	switch a.Config.Alerts.Backend {
	case "badger":
		return alert.OpenBadger(a.Config.Alerts.Path, a.Logger)
	default:
		return alert.OpenFile(a.Config.Alerts.Path, a.Logger)
	}
}

// newGateway registers every enabled notification channel.
func (a *App) newGateway() *notify.Registry {
	registry := notify.NewRegistry(a.Logger)

	if cfg := a.Config.Notify.Email; cfg.Enabled {
		registry.Register(alert.ChannelEmail, notify.NewEmailSender(cfg.APIKey, cfg.From, a.Logger))
	}
	if cfg := a.Config.Notify.SMS; cfg.Enabled {
		registry.Register(alert.ChannelSMS, notify.NewSMSSender(notify.SMSOptions{
			Username: cfg.Username,
			APIKey:   cfg.APIKey,
			From:     cfg.From,
			BaseURL:  cfg.APIBase,
		}, a.Logger))
	}
	if cfg := a.Config.Notify.Call; cfg.Enabled {
		registry.Register(alert.ChannelCall, notify.NewCallSender(notify.CallOptions{
			AccountSID: cfg.AccountSID,
			AuthToken:  cfg.AuthToken,
			From:       cfg.From,
			BaseURL:    cfg.APIBase,
		}, a.Logger))
	}

	return registry
}

func (a *App) newStatusReporter() service.StatusReporter {
	cfg := a.Config.Notify.Telegram
	if !cfg.Enabled {
		return nil
	}
	notifier, err := notify.NewStatusNotifier(cfg.BotToken, cfg.ChatID, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("telegram status notifier unavailable")
		return nil
	}
	return notifier
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running observer: the market-gated observation loop,
// and, when configured, the archiver and the HTTP API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	alertStore, err := a.openAlertStore()
	if err != nil {
		return fmt.Errorf("open alert store: %w", err)
	}
	defer alertStore.Close()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; price history disabled")
	} else {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	if closeStore != nil {
		defer closeStore()
	}

	mx := metrics.New()
	h := hub.New(0, a.Logger)
	mx.RegisterSubscriberGauge(func() float64 { return float64(h.Len()) })

	var mirror *stream.Mirror
	if a.Config.Redis.Enabled {
		mirror = stream.NewMirror(stream.MirrorOptions{
			Addr:      a.Config.Redis.Addr,
			Password:  a.Config.Redis.Password,
			DB:        a.Config.Redis.DB,
			LatestKey: a.Config.Redis.LatestKey,
			RecentKey: a.Config.Redis.RecentKey,
			Channel:   a.Config.Redis.Channel,
			MaxRecent: a.Config.Redis.MaxRecent,
		}, a.Logger)
		defer mirror.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := mirror.Ping(pingCtx); err != nil {
			a.Logger.Warn().Err(err).Msg("redis mirror unreachable at startup")
		}
		pingCancel()
	}

	gateway := service.NewInstrumentedGateway(a.newGateway(), mx)
	engine := alert.NewEngine(alertStore, gateway, alert.EngineOptions{
		OneShot: a.Config.Alerts.OneShot,
	}, a.Logger)

	var mirrorDep service.Mirror
	if mirror != nil {
		mirrorDep = mirror
	}
	svc := service.New(a.Config, a.newSource(), h, engine, mirrorDep, a.newStatusReporter(), mx, a.Logger)

	var archiver *service.Archiver
	if a.Config.Archive.Enabled && store != nil {
		archiver = service.NewArchiver(store, h, service.ArchiverOptions{
			FlushInterval: a.Config.Archive.FlushInterval,
			BatchSize:     a.Config.Archive.BatchSize,
			Retention:     a.Config.Archive.Retention,
			PruneInterval: a.Config.Archive.PruneInterval,
		}, mx, a.Logger)
	}

	var httpServer *server.Server
	if a.Config.Server.Enabled {
		var recent server.RecentReader
		if mirror != nil {
			recent = mirror
		}
		httpServer = server.New(server.Options{
			Addr:            a.Config.Server.Addr,
			ReadTimeout:     a.Config.Server.ReadTimeout,
			WriteTimeout:    a.Config.Server.WriteTimeout,
			ShutdownTimeout: a.Config.Server.ShutdownTimeout,
		}, h, alertStore, store, recent, mx, a.Logger)
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	errc := make(chan error, 3)
	start := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Str("task", name).Msg("task terminated with error")
				select {
				case errc <- fmt.Errorf("%s: %w", name, err):
				default:
				}
				stop()
			}
		}()
	}

	a.Logger.Info().Msg("starting observer")
	start("observer", svc.Run)
	if archiver != nil {
		start("archiver", archiver.Run)
	}
	if httpServer != nil {
		start("http", httpServer.Run)
	}

	wg.Wait()

	select {
	case err := <-errc:
		return err
	default:
	}

	a.Logger.Info().Msg("observer stopped")
	return nil
}

// ExportOptions hold parameters for exporting archived prices.
type ExportOptions struct {
	Pair      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// AddAlertOptions configure the alerts add command.
type AddAlertOptions struct {
	Pair      string
	Condition string
	Threshold string
	Channels  []string
	Email     string
	Phone     string
	Message   string
}
