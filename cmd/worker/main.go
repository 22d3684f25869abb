package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/filing-qa/internal/bootstrap"
	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/observability/logging"
	"github.com/kirillkom/filing-qa/internal/observability/metrics"
)

const serviceName = "filing-worker"

func main() {
	cfg := config.Load()
	logger := logging.New(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Init(cfg); err != nil {
		logger.Error("init error", "error", err)
		os.Exit(1)
	}

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	pipeline := metrics.NewPipelineMetrics(workerMetrics.Registry(), serviceName)

	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{
		Registry: true,
		Queue:    true,
		Pipeline: pipeline,
	})
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server error", "error", err)
		}
	}()

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeFilingIngested(ctx, func(handlerCtx context.Context, key domain.FilingKey) error {
		rebuildCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Minute)
		defer cancel()

		workerMetrics.StartRebuild()
		start := time.Now()
		err := app.RebuildUC.HandleFilingIngested(rebuildCtx, key)
		workerMetrics.FinishRebuild(serviceName, time.Since(start), err)
		return err
	})
	if err != nil {
		logger.Error("worker subscribe error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
