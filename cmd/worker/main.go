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

	"github.com/kirillkom/kt-search/internal/bootstrap"
	"github.com/kirillkom/kt-search/internal/config"
	"github.com/kirillkom/kt-search/internal/observability/logging"
	"github.com/kirillkom/kt-search/internal/observability/metrics"
)

const (
	serviceName = "worker"
	jobTimeout  = 2 * time.Minute
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Registerer: workerMetrics.Registry(),
		OnQueueLag: func(lag time.Duration) { workerMetrics.ObserveQueueLag(serviceName, lag) },
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := startMetricsServer(cfg.WorkerMetricsPort, workerMetrics.Handler())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeSearchJobs(ctx, func(handlerCtx context.Context, jobID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, jobTimeout)
		defer cancel()

		workerMetrics.StartJob()
		started := time.Now()
		err := app.Jobs.Process(processCtx, jobID)
		workerMetrics.FinishJob(serviceName, time.Since(started), err)
		return err
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func startMetricsServer(port string, handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	return server
}
