package ports

import (
	"context"
	"io"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// FilingIngestor is the inbound contract for filing registration.
type FilingIngestor interface {
	Register(ctx context.Context, payload io.Reader) (*domain.FilingRecord, error)
}

// QueryRouter classifies questions.
type QueryRouter interface {
	Route(query string) domain.RouteDecision
}

// RetrieveOptions control one hierarchical retrieval call.
type RetrieveOptions struct {
	TopKSections int
	TopKContent  int
	UseHybrid    bool
}

// EvidenceRetriever is the inbound contract for hierarchical retrieval.
type EvidenceRetriever interface {
	Retrieve(ctx context.Context, query string, route domain.RouteDecision, opts RetrieveOptions) (domain.RetrievalResult, error)
}

// AnswerService is the inbound contract for the full question answering pipeline.
type AnswerService interface {
	Answer(ctx context.Context, question string, opts RetrieveOptions) (*domain.Answer, error)
}

// AnswerVerifier checks numeric claims against evidence.
type AnswerVerifier interface {
	Verify(answer string, evidence []domain.EvidencePiece, query string) domain.Verdict
}

// CorpusSearcher is the inbound contract for single-corpus hybrid search.
type CorpusSearcher interface {
	Search(ctx context.Context, corpus domain.Corpus, query string, limit int) ([]domain.SearchHit, error)
}

// IndexRebuilder rebuilds every corpus from the registry.
type IndexRebuilder interface {
	RebuildAll(ctx context.Context) ([]domain.IndexBuild, error)
}
