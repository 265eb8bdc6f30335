package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/openjobspec/ojs-httpjob/internal/control"
	"github.com/openjobspec/ojs-httpjob/internal/core"
	"github.com/openjobspec/ojs-httpjob/internal/engine"
	"github.com/openjobspec/ojs-httpjob/internal/memory"
	"github.com/openjobspec/ojs-httpjob/internal/metrics"
	natsbackend "github.com/openjobspec/ojs-httpjob/internal/nats"
	redisstore "github.com/openjobspec/ojs-httpjob/internal/redis"
	"github.com/openjobspec/ojs-httpjob/internal/scheduler"
	"github.com/openjobspec/ojs-httpjob/internal/settings"
)

// Version is reported in the server info metric.
var Version = "dev"

// DefaultReadinessInterval is how often MonitorReadiness pings backends
// when no interval is given.
const DefaultReadinessInterval = 10 * time.Second

// App is a fully wired server.
type App struct {
	Config    Config
	Store     core.Store
	Engine    *engine.Engine
	Service   *control.Service
	Settings  *settings.Store
	Metrics   *metrics.Metrics
	Scheduler *scheduler.Scheduler
	Handler   http.Handler
	Checks    map[string]Pinger

	closers []func() error
}

// Build connects the configured backends and wires every component. reg
// receives the prometheus collectors; nil means a private registry.
func Build(cfg Config, reg *prometheus.Registry, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc, err := core.LoadTimeZone(cfg.TimeZone, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPJOB_TIMEZONE: %w", err)
	}

	app := &App{Config: cfg, Checks: map[string]Pinger{}}

	var (
		dispatcher engine.Dispatcher
		promoter   scheduler.ScheduledPromoter
		inspector  core.AgentInspector
		agents     core.AgentRegistry
	)

	switch cfg.Store {
	case StoreMemory:
		store := memory.New()
		disp := memory.NewDispatcher(core.ServerInfo{ID: "local", Queues: []string{cfg.DefaultQueue}})
		app.Store, dispatcher, promoter = store, disp, disp
		app.Checks["store"] = store

	case StoreRedis, "":
		store, client, err := redisstore.NewFromURL(cfg.RedisURL, redisstore.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		app.closers = append(app.closers, client.Close)

		backend, err := natsbackend.New(cfg.NatsURL,
			natsbackend.WithAgentTimeout(cfg.AgentTimeout),
			natsbackend.WithLogger(logger),
		)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.closers = append(app.closers, backend.Close)

		app.Store = store
		dispatcher, promoter, inspector, agents = backend, backend, backend, backend
		app.Checks["redis"] = store
		app.Checks["nats"] = backend

	default:
		return nil, fmt.Errorf("unknown HTTPJOB_STORE %q", cfg.Store)
	}

	app.Metrics = metrics.New(reg)
	app.Metrics.Init(Version, cfg.Store)

	app.Engine = engine.New(app.Store, dispatcher,
		engine.WithDefaultQueue(cfg.DefaultQueue),
		engine.WithLogger(logger),
	)
	app.Service = control.NewService(app.Store, app.Engine, inspector, agents, control.Options{
		DefaultRecurringQueue: cfg.DefaultRecurringQueue,
		Location:              loc,
		Logger:                logger,
		Recorder:              app.Metrics,
	})
	app.Settings = settings.New(cfg.GlobalSettingFile, settings.WithLogger(logger))
	if cfg.SchedulerEnabled {
		app.Scheduler = scheduler.New(app.Engine, promoter,
			scheduler.WithInterval(cfg.SchedulerInterval),
			scheduler.WithLogger(logger),
			scheduler.WithRecorder(app.Metrics),
		)
	}

	app.Handler = NewRouter(cfg, Deps{
		Operations: app.Service,
		Settings:   app.Settings,
		Metrics:    app.Metrics,
		Checks:     app.Checks,
		Logger:     logger,
	})
	return app, nil
}

// Ready pings every dependency.
func (a *App) Ready(ctx context.Context) error {
	for name, c := range a.Checks {
		if err := c.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// MonitorReadiness runs Ready once immediately and then every interval,
// passing each outcome to report, until ctx is done.
func (a *App) MonitorReadiness(ctx context.Context, interval time.Duration, report func(err error)) error {
	if interval <= 0 {
		interval = DefaultReadinessInterval
	}
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		report(a.Ready(pingCtx))
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			check()
		}
	}
}

// Close releases backend connections in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
