// Package cli implements the filingctl command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/filing-qa/internal/core/ports"
)

// Scope says how much of the system a command needs.
type Scope int

const (
	// ScopeLocal needs only keyword configuration.
	ScopeLocal Scope = iota
	// ScopeQuery needs the index store, embedder and generator.
	ScopeQuery
	// ScopeRegistry additionally needs the filing registry.
	ScopeRegistry
)

type Services struct {
	Router    ports.QueryRouter
	Verifier  ports.AnswerVerifier
	Answers   ports.AnswerService
	Searcher  ports.CorpusSearcher
	Rebuilder ports.IndexRebuilder
	Defaults  ports.RetrieveOptions
}

// Loader builds services for scope. The returned func releases them.
type Loader func(ctx context.Context, scope Scope) (Services, func(), error)

type app struct {
	load Loader
}

func NewRootCommand(load Loader) *cobra.Command {
	a := &app{load: load}
	root := &cobra.Command{
		Use:   "filingctl",
		Short: "Question answering over annual filings",
		Long: `filingctl routes, retrieves, answers and verifies questions about
ingested 10-K filings, and rebuilds the section, text and table indices.`,
		SilenceUsage: true,
	}
	root.AddCommand(
		a.routeCommand(),
		a.verifyCommand(),
		a.askCommand(),
		a.searchCommand(),
		a.rebuildCommand(),
		a.evalCommand(),
	)
	return root
}

func (a *app) services(cmd *cobra.Command, scope Scope) (Services, func(), error) {
	svc, release, err := a.load(cmd.Context(), scope)
	if err != nil {
		return Services{}, nil, fmt.Errorf("load services: %w", err)
	}
	if release == nil {
		release = func() {}
	}
	return svc, release, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
