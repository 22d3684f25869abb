package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/filing-qa/internal/adapters/http"
	"github.com/kirillkom/filing-qa/internal/bootstrap"
	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/observability/logging"
	"github.com/kirillkom/filing-qa/internal/observability/metrics"
)

const serviceName = "filing-api"

func main() {
	cfg := config.Load()
	logger := logging.New(serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Init(cfg); err != nil {
		logger.Error("init error", "error", err)
		os.Exit(1)
	}

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	pipeline := metrics.NewPipelineMetrics(httpMetrics.Registry(), serviceName)

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

	handler, err := httpadapter.NewRouter(cfg, httpadapter.Services{
		Router:    app.Router,
		Retriever: app.Retriever,
		Answers:   app.QueryUC,
		Verifier:  app.Verifier,
		Searcher:  app.Searcher,
		Ingestor:  app.IngestUC,
		Workbooks: app.IngestUC,
		Filings:   app.Repo,
		Builds:    app.Repo,
		Rebuilder: app.RebuildUC,
	}, httpMetrics, logger).Handler()
	if err != nil {
		logger.Error("router error", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("api listening", "port", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown error", "error", err)
	}
}
