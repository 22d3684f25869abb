package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

// QueryUseCase runs route, retrieve, generate, verify and cite.
type QueryUseCase struct {
	router            ports.QueryRouter
	retriever         ports.EvidenceRetriever
	generator         ports.Generator
	verifier          ports.AnswerVerifier
	citations         ports.CitationBuilder
	generationTimeout time.Duration
	observer          ports.RetrievalObserver
	logger            *slog.Logger
}

func NewQueryUseCase(
	router ports.QueryRouter,
	retriever ports.EvidenceRetriever,
	generator ports.Generator,
	verifier ports.AnswerVerifier,
	citations ports.CitationBuilder,
	generationTimeout time.Duration,
	observer ports.RetrievalObserver,
	logger *slog.Logger,
) *QueryUseCase {
	if citations == nil {
		citations = FilingCitationBuilder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		router:            router,
		retriever:         retriever,
		generator:         generator,
		verifier:          verifier,
		citations:         citations,
		generationTimeout: generationTimeout,
		observer:          observerOrNop(observer),
		logger:            logger,
	}
}

func (uc *QueryUseCase) Answer(ctx context.Context, question string, opts ports.RetrieveOptions) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer", fmt.Errorf("question is required"))
	}

	route := uc.router.Route(question)
	uc.observer.ObserveRoute(route)

	retrieved, err := uc.retriever.Retrieve(ctx, question, route, opts)
	if err != nil {
		return nil, fmt.Errorf("retrieve evidence: %w", err)
	}

	genCtx := ctx
	if uc.generationTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, uc.generationTimeout)
		defer cancel()
	}
	generation, err := uc.generator.Generate(genCtx, question, retrieved.Content, route)
	if err != nil {
		return nil, domain.ExternalFailure("generate", question, err)
	}

	verdict := uc.verifier.Verify(generation.Answer, retrieved.Content, question)
	uc.observer.ObserveVerification(verdict.Status)

	citations, err := uc.citations.Build(generation.Answer, retrieved.Content)
	if err != nil {
		return nil, domain.ExternalFailure("cite", question, err)
	}

	uc.logger.Info("question answered",
		"query_type", route.QueryType,
		"content_corpus", retrieved.ContentCorpus,
		"table_fallback", retrieved.TableFallback,
		"evidence", len(retrieved.Content),
		"verification", verdict.Status,
	)

	return &domain.Answer{
		Question:     question,
		Text:         generation.Answer,
		Confidence:   generation.Confidence,
		Route:        route,
		Sections:     retrieved.Sections,
		Evidence:     retrieved.Content,
		Citations:    citations,
		Verification: verdict,
	}, nil
}
