package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/kt-search/internal/adapters/http"
	mcpadapter "github.com/kirillkom/kt-search/internal/adapters/mcp"
	"github.com/kirillkom/kt-search/internal/bootstrap"
	"github.com/kirillkom/kt-search/internal/config"
	"github.com/kirillkom/kt-search/internal/observability/logging"
	"github.com/kirillkom/kt-search/internal/observability/metrics"
)

const (
	serviceName = "api"
	version     = "1.0.0"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Registerer: httpMetrics.Registry(),
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	deps := httpadapter.Dependencies{
		Search:  app.Pipeline,
		Jobs:    app.Jobs,
		Logs:    app.Logs,
		Clients: app.Registry,
		Health:  app.Health,
		Metrics: httpMetrics,
	}
	if cfg.MCPEnabled {
		deps.MCP = mcpadapter.New(version, app.Pipeline, app.Registry, app.Logs).Handler()
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      httpadapter.NewRouter(cfg, deps).Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("api_listening", "port", cfg.APIPort, "mcp", cfg.MCPEnabled)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_failed", "error", err)
	}
}
