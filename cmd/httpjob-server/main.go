package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/openjobspec/ojs-httpjob/internal/server"
)

const grpcServiceName = "httpjob.v1.Control"

func main() {
	cfg := server.LoadConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})))

	if cfg.APIKey == "" && !cfg.AllowInsecureNoAuth {
		slog.Error("refusing to start without API authentication", "hint", "set HTTPJOB_API_KEY or HTTPJOB_ALLOW_INSECURE_NO_AUTH=true for local development")
		os.Exit(1)
	}
	if cfg.AllowInsecureNoAuth && cfg.APIKey == "" {
		slog.Warn("running without authentication; set HTTPJOB_API_KEY for any shared or production environment")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := server.Build(cfg, reg, slog.Default())
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := app.Close(); err != nil {
			slog.Error("close backends", "error", err)
		}
	}()
	slog.Info("backends connected", "store", cfg.Store, "redis", cfg.RedisURL, "nats", cfg.NatsURL)

	if err := app.Settings.Reload(); err != nil {
		slog.Warn("global setting not loaded", "path", cfg.GlobalSettingFile, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.Handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus(grpcServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	reflection.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("httpjob server listening", "port", cfg.Port, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			return err
		}
		slog.Info("grpc health server listening", "port", cfg.GRPCPort)
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		last := healthpb.HealthCheckResponse_NOT_SERVING
		return app.MonitorReadiness(gctx, server.DefaultReadinessInterval, func(err error) {
			status := healthpb.HealthCheckResponse_SERVING
			if err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
				slog.Warn("backends not ready", "error", err)
			}
			if status != last {
				slog.Info("grpc health status changed", "status", status.String())
				last = status
			}
			healthSrv.SetServingStatus(grpcServiceName, status)
			healthSrv.SetServingStatus("", status)
		})
	})

	if app.Scheduler != nil {
		g.Go(func() error {
			slog.Info("scheduler started", "interval", cfg.SchedulerInterval)
			return app.Scheduler.Run(gctx)
		})
	}

	if cfg.WatchSettings {
		g.Go(func() error {
			if err := app.Settings.Watch(gctx); err != nil {
				slog.Warn("global setting watch stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		healthSrv.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "error", err)
	}
	slog.Info("server stopped")
}
