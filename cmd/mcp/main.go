package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/filing-qa/internal/adapters/mcp"
	"github.com/kirillkom/filing-qa/internal/bootstrap"
	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/ports"
	"github.com/kirillkom/filing-qa/internal/observability/logging"
)

const (
	serviceName = "filing-mcp"
	version     = "1.0.0"
)

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	logger := logging.NewWithWriter(os.Stderr, serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Init(cfg); err != nil {
		logger.Error("init error", "error", err)
		os.Exit(1)
	}
	app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(version, app.QueryUC, app.Searcher, app.Router, ports.RetrieveOptions{
		TopKSections: cfg.TopKSections,
		TopKContent:  cfg.TopKContent,
		UseHybrid:    cfg.UseHybrid,
	}, logger)

	logger.Info("mcp server ready on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp server error", "error", err)
	}
}
