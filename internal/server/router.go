// Package server assembles the HTTP surface and its configuration.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openjobspec/ojs-httpjob/internal/api"
	"github.com/openjobspec/ojs-httpjob/internal/metrics"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the components the router serves.
type Deps struct {
	Operations api.Operations
	Settings   api.Settings
	Metrics    *metrics.Metrics
	// Checks are probed by /healthz, keyed by dependency name.
	Checks map[string]Pinger
	Logger *slog.Logger
}

// NewRouter mounts the management endpoint at cfg.Path, plus /healthz and,
// when metrics are configured, /metrics.
func NewRouter(cfg Config, deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	path := cfg.Path
	if path == "" {
		path = "/httpjob"
	}

	opts := []api.DispatcherOption{api.WithLogger(logger)}
	if deps.Metrics != nil {
		opts = append(opts, api.WithObserver(deps.Metrics))
	}
	dispatcher := api.NewDispatcher(deps.Operations, deps.Settings, opts...)

	r := chi.NewRouter()
	r.Use(api.RequestID)
	r.Use(api.RequestLogger)
	if deps.Metrics != nil {
		r.Use(api.Metrics(deps.Metrics))
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Get("/healthz", healthHandler(deps.Checks))

	r.Group(func(r chi.Router) {
		r.Use(api.APIKey(cfg.APIKey))
		r.Use(api.LimitBody)
		r.Handle(path, dispatcher)
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
		status := http.StatusOK
		for _, name := range names {
			if err := checks[name].Ping(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		api.WriteJSON(w, status, resp)
	}
}
