package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

type generatorFake struct {
	answer   string
	err      error
	block    bool
	evidence []domain.EvidencePiece
	route    domain.RouteDecision
}

func (f *generatorFake) Generate(ctx context.Context, _ string, evidence []domain.EvidencePiece, route domain.RouteDecision) (domain.Generation, error) {
	f.evidence = evidence
	f.route = route
	if f.block {
		<-ctx.Done()
		return domain.Generation{}, ctx.Err()
	}
	if f.err != nil {
		return domain.Generation{}, f.err
	}
	return domain.Generation{Answer: f.answer, Confidence: 0.8}, nil
}

type retrieverFake struct {
	result domain.RetrievalResult
	err    error
	opts   ports.RetrieveOptions
}

func (f *retrieverFake) Retrieve(_ context.Context, _ string, _ domain.RouteDecision, opts ports.RetrieveOptions) (domain.RetrievalResult, error) {
	f.opts = opts
	return f.result, f.err
}

func newTestQueryUseCase(retriever ports.EvidenceRetriever, generator ports.Generator, timeout time.Duration, observer ports.RetrievalObserver) *QueryUseCase {
	kw := config.DefaultKeywords()
	return NewQueryUseCase(
		NewQueryRouter(kw),
		retriever,
		generator,
		NewMathVerifier(kw, DefaultVerifierTolerance),
		nil,
		timeout,
		observer,
		nil,
	)
}

func TestQueryUseCaseAnswerVerifiesAndCites(t *testing.T) {
	retriever := &retrieverFake{result: domain.RetrievalResult{
		Content: []domain.EvidencePiece{
			{Content: "Revenue: 100 90", Metadata: tableUnit("", "MD&A", "T3", 0).Metadata, Score: 0.9},
		},
		ContentCorpus: domain.CorpusTables,
	}}
	generator := &generatorFake{answer: "Revenue decreased by 10 (Table T3)."}
	observer := &observerFake{}
	uc := newTestQueryUseCase(retriever, generator, time.Second, observer)

	answer, err := uc.Answer(context.Background(), "What was the revenue change year-over-year?", ports.RetrieveOptions{TopKContent: 4})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Route.QueryType != domain.QueryNumericTable {
		t.Fatalf("expected numeric_table route, got %s", answer.Route.QueryType)
	}
	if answer.Verification.Status != domain.VerificationVerified {
		t.Fatalf("expected verified answer, got %+v", answer.Verification)
	}
	if len(answer.Citations) != 1 || answer.Citations[0] != "ACME 2023 10-K, MD&A, Table T3, Row 0" {
		t.Fatalf("unexpected citations %v", answer.Citations)
	}
	if retriever.opts.TopKContent != 4 {
		t.Fatalf("expected options to pass through, got %+v", retriever.opts)
	}
	if len(generator.evidence) != 1 || !generator.route.IsTableCentric {
		t.Fatalf("expected generator to receive evidence and route")
	}
	if len(observer.verifications) != 1 || len(observer.routes) != 1 {
		t.Fatalf("expected route and verification observations")
	}
}

func TestQueryUseCaseRejectsEmptyQuestion(t *testing.T) {
	uc := newTestQueryUseCase(&retrieverFake{}, &generatorFake{}, time.Second, nil)
	if _, err := uc.Answer(context.Background(), "   ", ports.RetrieveOptions{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestQueryUseCaseGenerationTimeoutIsExternalFailure(t *testing.T) {
	uc := newTestQueryUseCase(&retrieverFake{}, &generatorFake{block: true}, 20*time.Millisecond, nil)

	_, err := uc.Answer(context.Background(), "What is the outlook?", ports.RetrieveOptions{})
	if !errors.Is(err, domain.ErrExternal) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected external deadline failure, got %v", err)
	}
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "generate" {
		t.Fatalf("expected generate stage, got %v", err)
	}
}

func TestQueryUseCaseRetrieveErrorPropagates(t *testing.T) {
	embedFailure := domain.ExternalFailure("embed", "q", errors.New("offline"))
	uc := newTestQueryUseCase(&retrieverFake{err: embedFailure}, &generatorFake{}, time.Second, nil)

	_, err := uc.Answer(context.Background(), "q", ports.RetrieveOptions{})
	var stageErr *domain.StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != "embed" {
		t.Fatalf("expected embed stage error, got %v", err)
	}
}
