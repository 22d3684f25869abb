package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/filing-qa/internal/adapters/cli"
	"github.com/kirillkom/filing-qa/internal/bootstrap"
	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/ports"
	"github.com/kirillkom/filing-qa/internal/core/usecase"
	"github.com/kirillkom/filing-qa/internal/observability/logging"
)

const serviceName = "filingctl"

func main() {
	cfg := config.Load()
	logger := logging.NewWithWriter(os.Stderr, serviceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	load := func(ctx context.Context, scope cli.Scope) (cli.Services, func(), error) {
		defaults := ports.RetrieveOptions{
			TopKSections: cfg.TopKSections,
			TopKContent:  cfg.TopKContent,
			UseHybrid:    cfg.UseHybrid,
		}
		if scope == cli.ScopeLocal {
			kw, err := config.LoadKeywords(cfg.KeywordsPath)
			if err != nil {
				return cli.Services{}, nil, err
			}
			return cli.Services{
				Router:   usecase.NewQueryRouter(kw),
				Verifier: usecase.NewMathVerifier(kw, cfg.VerifierTolerance),
				Defaults: defaults,
			}, nil, nil
		}

		if err := bootstrap.Init(cfg); err != nil {
			return cli.Services{}, nil, err
		}
		app, err := bootstrap.New(ctx, cfg, logger, bootstrap.Options{Registry: scope == cli.ScopeRegistry})
		if err != nil {
			return cli.Services{}, nil, err
		}
		svc := cli.Services{
			Router:   app.Router,
			Verifier: app.Verifier,
			Answers:  app.QueryUC,
			Searcher: app.Searcher,
			Defaults: defaults,
		}
		if app.RebuildUC != nil {
			svc.Rebuilder = app.RebuildUC
		}
		return svc, app.Close, nil
	}

	root := cli.NewRootCommand(load)
	root.SetOut(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
