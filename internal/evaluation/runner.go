package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
	"github.com/kirillkom/filing-qa/internal/core/usecase"
)

// Case is one labelled question. RelevantSections hold SectionKey values.
type Case struct {
	Question         string   `json:"question"`
	Answer           string   `json:"answer"`
	NumericAnswer    *float64 `json:"numeric_answer,omitempty"`
	RelevantSections []string `json:"relevant_sections,omitempty"`
}

type CaseResult struct {
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	ExactMatch     float64  `json:"exact_match"`
	F1             float64  `json:"f1"`
	Faithfulness   float64  `json:"faithfulness"`
	RecallAtK      float64  `json:"recall_at_k"`
	ReciprocalRank float64  `json:"reciprocal_rank"`
	Predicted      *float64 `json:"predicted,omitempty"`
	Verification   string   `json:"verification"`
	Error          string   `json:"error,omitempty"`
}

type Report struct {
	Cases            []CaseResult `json:"cases"`
	Answered         int          `json:"answered"`
	Failed           int          `json:"failed"`
	ExactMatch       float64      `json:"exact_match"`
	F1               float64      `json:"f1"`
	Faithfulness     float64      `json:"faithfulness"`
	RecallAtK        float64      `json:"recall_at_k"`
	MRR              float64      `json:"mrr"`
	Numeric          NumericError `json:"numeric"`
	VerifiedFraction float64      `json:"verified_fraction"`
}

// SectionKey identifies a retrieved section as "TICKER FY title".
func SectionKey(m domain.UnitMetadata) string {
	return m.Ticker + " " + strconv.Itoa(m.FiscalYear) + " " + m.SectionTitle
}

func LoadCases(r io.Reader) ([]Case, error) {
	var cases []Case
	if err := json.NewDecoder(r).Decode(&cases); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load evaluation cases", err)
	}
	return cases, nil
}

type Runner struct {
	answers     ports.AnswerService
	opts        ports.RetrieveOptions
	concurrency int
	logger      *slog.Logger
}

func NewRunner(answers ports.AnswerService, opts ports.RetrieveOptions, concurrency int, logger *slog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{answers: answers, opts: opts, concurrency: concurrency, logger: logger}
}

// Run answers every case. A failed answer is recorded, not returned;
// only context cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, cases []Case) (Report, error) {
	results := make([]CaseResult, len(cases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.evaluate(gctx, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("evaluation aborted: %w", err)
	}
	return summarize(results, cases)
}

func (r *Runner) evaluate(ctx context.Context, c Case) CaseResult {
	res := CaseResult{Question: c.Question}
	answer, err := r.answers.Answer(ctx, c.Question, r.opts)
	if err != nil {
		r.logger.Warn("evaluation case failed", "question", c.Question, "error", err)
		res.Error = err.Error()
		return res
	}

	res.Answer = answer.Text
	res.ExactMatch = ExactMatch(answer.Text, c.Answer)
	res.F1 = F1(answer.Text, c.Answer)
	res.Verification = string(answer.Verification.Status)

	evidence := make([]string, len(answer.Evidence))
	for i, e := range answer.Evidence {
		evidence[i] = e.Content
	}
	res.Faithfulness = Faithfulness(answer.Text, evidence)

	retrieved := make([]string, len(answer.Sections))
	for i, s := range answer.Sections {
		retrieved[i] = SectionKey(s.Metadata)
	}
	res.RecallAtK = RecallAtK(retrieved, c.RelevantSections, len(retrieved))
	res.ReciprocalRank = ReciprocalRank(retrieved, c.RelevantSections)

	if c.NumericAnswer != nil {
		if nums := usecase.ExtractNumbers(answer.Text); len(nums) > 0 {
			predicted := nums[0]
			res.Predicted = &predicted
		}
	}
	return res
}

func summarize(results []CaseResult, cases []Case) (Report, error) {
	report := Report{Cases: results}
	var preds, truths []float64
	var withSections, verified int

	for i, res := range results {
		if res.Error != "" {
			report.Failed++
			continue
		}
		report.Answered++
		report.ExactMatch += res.ExactMatch
		report.F1 += res.F1
		report.Faithfulness += res.Faithfulness
		if res.Verification == string(domain.VerificationVerified) {
			verified++
		}
		if len(cases[i].RelevantSections) > 0 {
			withSections++
			report.RecallAtK += res.RecallAtK
			report.MRR += res.ReciprocalRank
		}
		if res.Predicted != nil && cases[i].NumericAnswer != nil {
			preds = append(preds, *res.Predicted)
			truths = append(truths, *cases[i].NumericAnswer)
		}
	}

	if report.Answered > 0 {
		n := float64(report.Answered)
		report.ExactMatch /= n
		report.F1 /= n
		report.Faithfulness /= n
		report.VerifiedFraction = float64(verified) / n
	}
	if withSections > 0 {
		report.RecallAtK /= float64(withSections)
		report.MRR /= float64(withSections)
	}
	numeric, err := MeanErrors(preds, truths)
	if err != nil {
		return Report{}, err
	}
	report.Numeric = numeric
	return report, nil
}
