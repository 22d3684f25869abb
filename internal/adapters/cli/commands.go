package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/evaluation"
)

func (a *app) routeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "route [question]",
		Short: "Classify a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd, ScopeLocal)
			if err != nil {
				return err
			}
			defer release()
			return printJSON(cmd, svc.Router.Route(args[0]))
		},
	}
}

func (a *app) verifyCommand() *cobra.Command {
	var (
		answer       string
		question     string
		evidenceFile string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check numeric claims in an answer against evidence",
		Long: `Reads evidence pieces as a JSON array of {"content": ...} objects and
checks the numbers in --answer by difference, ratio, percentage or lookup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(answer) == "" {
				return errors.New("--answer is required")
			}
			evidence, err := readEvidence(cmd.InOrStdin(), evidenceFile)
			if err != nil {
				return err
			}
			svc, release, err := a.services(cmd, ScopeLocal)
			if err != nil {
				return err
			}
			defer release()
			return printJSON(cmd, svc.Verifier.Verify(answer, evidence, question))
		},
	}
	cmd.Flags().StringVarP(&answer, "answer", "a", "", "answer text to verify")
	cmd.Flags().StringVarP(&question, "question", "q", "", "question the answer responds to")
	cmd.Flags().StringVarP(&evidenceFile, "evidence", "e", "", "JSON file with evidence pieces (- for stdin)")
	return cmd
}

func readEvidence(in io.Reader, path string) ([]domain.EvidencePiece, error) {
	if path == "" {
		return nil, nil
	}
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(in)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read evidence: %w", err)
	}
	var evidence []domain.EvidencePiece
	if err := json.Unmarshal(raw, &evidence); err != nil {
		return nil, fmt.Errorf("parse evidence: %w", err)
	}
	return evidence, nil
}

func (a *app) askCommand() *cobra.Command {
	var (
		topKSections int
		topKContent  int
		noHybrid     bool
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question with citations",
		Long: `Routes the question, retrieves sections then text or table evidence,
generates an answer and verifies its numbers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, release, err := a.services(cmd, ScopeQuery)
			if err != nil {
				return err
			}
			defer release()

			opts := svc.Defaults
			if cmd.Flags().Changed("top-k-sections") {
				opts.TopKSections = topKSections
			}
			if cmd.Flags().Changed("top-k-content") {
				opts.TopKContent = topKContent
			}
			if noHybrid {
				opts.UseHybrid = false
			}

			answer, err := svc.Answers.Answer(cmd.Context(), args[0], opts)
			if err != nil {
				return fmt.Errorf("answer failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, answer)
			}
			printAnswer(cmd, answer)
			return nil
		},
	}
	cmd.Flags().IntVar(&topKSections, "top-k-sections", 5, "sections selected in the first stage")
	cmd.Flags().IntVarP(&topKContent, "top-k-content", "k", 10, "evidence pieces to retrieve")
	cmd.Flags().BoolVar(&noHybrid, "no-hybrid", false, "dense similarity only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the full answer as JSON")
	return cmd
}

func printAnswer(cmd *cobra.Command, answer *domain.Answer) {
	cmd.Println(answer.Text)
	cmd.Println()
	cmd.Printf("Route: %s (confidence %.2f)\n", answer.Route.QueryType, answer.Route.Confidence)
	cmd.Printf("Verification: %s", answer.Verification.Status)
	if answer.Verification.Message != "" {
		cmd.Printf(" - %s", answer.Verification.Message)
	}
	cmd.Println()
	if len(answer.Citations) > 0 {
		cmd.Println("Sources:")
		for _, c := range answer.Citations {
			cmd.Printf("  - %s\n", c)
		}
	}
}

func (a *app) searchCommand() *cobra.Command {
	var (
		corpus string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search one corpus",
		Long: `Ranks one corpus by reciprocal rank fusion of keyword (BM25) and
semantic (vector) candidates.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ok := domain.ParseCorpus(corpus)
			if !ok {
				return fmt.Errorf("unknown corpus %q: want sections, text or tables", corpus)
			}
			svc, release, err := a.services(cmd, ScopeQuery)
			if err != nil {
				return err
			}
			defer release()

			hits, err := svc.Searcher.Search(cmd.Context(), c, args[0], limit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if asJSON {
				return printJSON(cmd, hits)
			}
			if len(hits) == 0 {
				cmd.Println("No results found.")
				return nil
			}
			cmd.Println("Results:")
			for i, h := range hits {
				cmd.Printf("  [%d] %s %d (%.4f)\n", i+1, h.Metadata.Ticker, h.Metadata.FiscalYear, h.Score)
				cmd.Printf("      %s\n", h.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&corpus, "corpus", "c", string(domain.CorpusText), "corpus: sections, text or tables")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	return cmd
}

func (a *app) rebuildCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild and persist every corpus index from the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, release, err := a.services(cmd, ScopeRegistry)
			if err != nil {
				return err
			}
			defer release()

			builds, err := svc.Rebuilder.RebuildAll(cmd.Context())
			for _, b := range builds {
				cmd.Printf("%-8s %-5s size=%d filings=%d persisted=%t version=%s\n",
					b.Corpus, b.Kind, b.Size, b.Filings, b.Persisted, b.Version)
			}
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}
			return nil
		},
	}
}

func (a *app) evalCommand() *cobra.Command {
	var (
		dataset     string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Score the answer pipeline against a labelled question set",
		Long: `Reads a JSON array of {"question", "answer", "numeric_answer",
"relevant_sections"} cases and reports exact match, F1, recall, MRR,
MAE/MAPE and faithfulness.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(dataset)
			if err != nil {
				return fmt.Errorf("open dataset: %w", err)
			}
			defer f.Close()
			cases, err := evaluation.LoadCases(f)
			if err != nil {
				return err
			}

			svc, release, err := a.services(cmd, ScopeQuery)
			if err != nil {
				return err
			}
			defer release()

			report, err := evaluation.NewRunner(svc.Answers, svc.Defaults, concurrency, nil).Run(cmd.Context(), cases)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVarP(&dataset, "dataset", "d", "", "path to the labelled cases JSON file")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "questions answered in parallel")
	_ = cmd.MarkFlagRequired("dataset")
	return cmd
}
