package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

const defaultSearchLimit = 10

// HybridSearcher ranks a single corpus with reciprocal rank fusion over
// dense and lexical candidates.
type HybridSearcher struct {
	embedder ports.Embedder
	indices  ports.IndexReader
	fuser    *ReciprocalRankFusion
	logger   *slog.Logger
}

func NewHybridSearcher(
	embedder ports.Embedder,
	indices ports.IndexReader,
	fuser *ReciprocalRankFusion,
	logger *slog.Logger,
) *HybridSearcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HybridSearcher{
		embedder: embedder,
		indices:  indices,
		fuser:    fuser,
		logger:   logger,
	}
}

func (s *HybridSearcher) Search(ctx context.Context, corpus domain.Corpus, query string, limit int) ([]domain.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "hybrid search", fmt.Errorf("query is required"))
	}
	if _, ok := domain.ParseCorpus(string(corpus)); !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "hybrid search", fmt.Errorf("unknown corpus %q", corpus))
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	idx := s.indices.Corpus(corpus)
	if idx.Len() == 0 {
		return []domain.SearchHit{}, nil
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.ExternalFailure("embed", query, err)
	}

	candidates := denseOverFetch * limit
	dense, err := denseCandidates(idx, corpus, queryVector, candidates, s.logger)
	if err != nil {
		return nil, fmt.Errorf("search %s corpus: %w", corpus, err)
	}
	lexical := lexicalCandidates(idx, corpus, query, candidates)

	fused := trimCandidates(s.fuser.Fuse(dense, lexical), limit)
	out := make([]domain.SearchHit, len(fused))
	for i, c := range fused {
		out[i] = domain.SearchHit{
			Content:  c.Evidence.Content,
			Metadata: c.Evidence.Metadata,
			Score:    c.Evidence.Score,
		}
	}
	return out, nil
}
