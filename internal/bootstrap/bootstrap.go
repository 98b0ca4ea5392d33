// Package bootstrap builds the forecasting engine from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/soltixdb/ledgercast/internal/cache"
	"github.com/soltixdb/ledgercast/internal/config"
	"github.com/soltixdb/ledgercast/internal/ledger"
	"github.com/soltixdb/ledgercast/internal/logging"
	"github.com/soltixdb/ledgercast/internal/metrics"
	"github.com/soltixdb/ledgercast/internal/queue"
	"github.com/soltixdb/ledgercast/internal/services"
	"github.com/soltixdb/ledgercast/internal/session"
	"github.com/soltixdb/ledgercast/internal/subscriber"
)

// App holds the wired components of one engine instance
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	Ledger  ledger.Reader
	Cache   cache.HistoricalDataCache
	Store   session.Store
	Events  *queue.Emitter
	Metrics *metrics.Metrics
	Service *services.ForecastService

	// Listener is set when queue.listen_ledger_changes is enabled
	Listener *subscriber.LedgerListener

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// New opens every backend named by cfg and builds the forecast service.
// Components opened before a failure are closed again.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (app *App, err error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	app = &App{Config: cfg, Logger: logger}

	defer func() {
		if err != nil {
			_ = app.Close()
			app = nil
		}
	}()

	if err := cfg.EnsureDirectories(); err != nil {
		return app, fmt.Errorf("create data directories: %w", err)
	}

	log := logger.Component("bootstrap")

	opened, err := ledger.New(ctx, cfg.Ledger)
	if err != nil {
		return app, fmt.Errorf("open ledger: %w", err)
	}
	app.Ledger = opened.Reader
	app.track("ledger", opened.Close)
	log.Info("Ledger opened", "backend", cfg.Ledger.Backend)

	if app.Cache, err = cache.New(ctx, cfg.Cache, cfg.Redis); err != nil {
		return app, fmt.Errorf("open historical cache: %w", err)
	}
	app.track("cache", app.Cache.Close)
	log.Info("Historical cache opened", "backend", cfg.Cache.Backend)

	if app.Store, err = session.New(cfg.Sessions, cfg.Etcd); err != nil {
		return app, fmt.Errorf("open session store: %w", err)
	}
	app.track("sessions", app.Store.Close)
	log.Info("Session store opened", "backend", cfg.Sessions.Backend)

	publisher, err := queue.NewPublisher(cfg.Queue)
	if err != nil {
		return app, fmt.Errorf("connect event queue: %w", err)
	}
	app.Events = queue.NewEmitter(publisher, logger)
	app.track("events", app.Events.Close)
	log.Info("Event publisher ready", "type", cfg.Queue.Type)

	if cfg.Metrics.Enabled {
		app.Metrics = metrics.New(cfg.Metrics.Namespace).WithRuntimeCollectors()
	}

	app.Service = services.NewForecastService(logger, services.Dependencies{
		Ledger:  app.Ledger,
		Cache:   app.Cache,
		Store:   app.Store,
		Events:  app.Events,
		Metrics: app.Metrics,
	}, cfg.Forecast, cfg.Cache)

	if cfg.Queue.ListenLedgerChanges {
		sub, err := subscriber.New(cfg.Queue, subscriber.Config{ConsumerID: consumerID()}, publisher, logger)
		if err != nil {
			return app, fmt.Errorf("connect event subscriber: %w", err)
		}
		app.track("subscriber", sub.Close)
		app.Listener = subscriber.NewLedgerListener(sub, app.Service, logger)
	}

	return app, nil
}

// Start launches the background consumers. They stop when ctx is done or
// the app is closed.
func (a *App) Start(ctx context.Context) error {
	if a.Listener == nil {
		return nil
	}
	return a.Listener.Start(ctx)
}

func consumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "forecaster"
	}
	return host
}

func (a *App) track(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Close releases every opened component in reverse order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.Logger.Warn("Failed to close component", "component", c.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
