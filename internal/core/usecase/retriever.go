package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

const (
	DefaultTopKSections = 5
	DefaultTopKContent  = 10
	denseOverFetch      = 2
)

// HierarchicalRetriever selects sections first, then content units.
type HierarchicalRetriever struct {
	embedder            ports.Embedder
	indices             ports.IndexReader
	fuser               Fuser
	strictSectionFilter bool
	observer            ports.RetrievalObserver
	logger              *slog.Logger
}

func NewHierarchicalRetriever(
	embedder ports.Embedder,
	indices ports.IndexReader,
	fuser Fuser,
	strictSectionFilter bool,
	observer ports.RetrievalObserver,
	logger *slog.Logger,
) *HierarchicalRetriever {
	if fuser == nil {
		fuser = &WeightedScoreFusion{Alpha: DefaultFusionAlpha}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HierarchicalRetriever{
		embedder:            embedder,
		indices:             indices,
		fuser:               fuser,
		strictSectionFilter: strictSectionFilter,
		observer:            observerOrNop(observer),
		logger:              logger,
	}
}

func normalizeRetrieveOptions(opts ports.RetrieveOptions) ports.RetrieveOptions {
	if opts.TopKSections <= 0 {
		opts.TopKSections = DefaultTopKSections
	}
	if opts.TopKContent <= 0 {
		opts.TopKContent = DefaultTopKContent
	}
	return opts
}

func (r *HierarchicalRetriever) Retrieve(
	ctx context.Context,
	query string,
	route domain.RouteDecision,
	opts ports.RetrieveOptions,
) (domain.RetrievalResult, error) {
	opts = normalizeRetrieveOptions(opts)
	started := time.Now()

	queryVector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return domain.RetrievalResult{}, domain.ExternalFailure("embed", query, err)
	}

	sections, err := r.searchSections(queryVector, opts.TopKSections)
	if err != nil {
		return domain.RetrievalResult{}, err
	}

	corpus := domain.CorpusText
	fallback := false
	var idx ports.CorpusIndex
	if route.IsTableCentric {
		tables := r.indices.Corpus(domain.CorpusTables)
		if tables.Len() > 0 {
			corpus = domain.CorpusTables
			idx = tables
		} else {
			fallback = true
			r.observer.ObserveTableFallback()
			r.logger.Info("table corpus empty, falling back to text", "query_type", route.QueryType)
		}
	}

	if idx == nil {
		idx = r.indices.Corpus(corpus)
	}

	refs := make([]domain.SectionRef, 0, len(sections))
	for _, s := range sections {
		refs = append(refs, s.Metadata.SectionRef())
	}

	content, err := r.searchContent(ctx, idx, corpus, query, queryVector, refs, opts)
	if err != nil {
		return domain.RetrievalResult{}, err
	}
	r.observer.ObserveRetrieval(corpus, time.Since(started), len(content))

	return domain.RetrievalResult{
		Sections:      sections,
		Content:       content,
		ContentCorpus: corpus,
		TableFallback: fallback,
	}, nil
}

func (r *HierarchicalRetriever) searchSections(queryVector []float32, k int) ([]domain.SectionHit, error) {
	idx := r.indices.Corpus(domain.CorpusSections)
	if idx.Len() == 0 {
		return []domain.SectionHit{}, nil
	}
	hits, err := idx.SearchDense(queryVector, k)
	if err != nil {
		return nil, fmt.Errorf("search section abstracts: %w", err)
	}

	out := make([]domain.SectionHit, 0, len(hits))
	for _, h := range hits {
		unit, ok := idx.Unit(h.Position)
		if !ok {
			r.logger.Debug("skipping out-of-range section position", "position", h.Position, "size", idx.Len())
			continue
		}
		out = append(out, domain.SectionHit{
			Abstract: unit.Text,
			Metadata: unit.Metadata,
			Score:    similarity(h.Distance),
		})
	}
	return out, nil
}

func (r *HierarchicalRetriever) searchContent(
	ctx context.Context,
	idx ports.CorpusIndex,
	corpus domain.Corpus,
	query string,
	queryVector []float32,
	refs []domain.SectionRef,
	opts ports.RetrieveOptions,
) ([]domain.EvidencePiece, error) {
	if idx.Len() == 0 {
		return []domain.EvidencePiece{}, nil
	}

	var dense, lexical []Candidate
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = denseCandidates(idx, corpus, queryVector, denseOverFetch*opts.TopKContent, r.logger)
		return err
	})
	if opts.UseHybrid {
		g.Go(func() error {
			lexical = lexicalCandidates(idx, corpus, query, opts.TopKContent)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search %s corpus: %w", corpus, err)
	}

	ranked := dense
	if opts.UseHybrid {
		ranked = r.fuser.Fuse(dense, lexical)
	}

	if r.strictSectionFilter && len(refs) > 0 {
		filtered := make([]Candidate, 0, len(ranked))
		for _, c := range ranked {
			if idx.InSections(c.Position, refs) {
				filtered = append(filtered, c)
			}
		}
		if len(filtered) > 0 {
			ranked = filtered
		}
	}

	ranked = trimCandidates(ranked, opts.TopKContent)
	out := make([]domain.EvidencePiece, len(ranked))
	for i, c := range ranked {
		out[i] = c.Evidence
	}
	return out, nil
}

// denseCandidates converts distances to similarities in (0,1].
func denseCandidates(idx ports.CorpusIndex, corpus domain.Corpus, queryVector []float32, k int, logger *slog.Logger) ([]Candidate, error) {
	hits, err := idx.SearchDense(queryVector, k)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		unit, ok := idx.Unit(h.Position)
		if !ok {
			logger.Debug("skipping out-of-range content position", "corpus", corpus, "position", h.Position)
			continue
		}
		out = append(out, newCandidate(corpus, h.Position, unit, similarity(h.Distance)))
	}
	return out, nil
}

// lexicalCandidates returns the top k positively scored units.
func lexicalCandidates(idx ports.CorpusIndex, corpus domain.Corpus, query string, k int) []Candidate {
	scores := idx.SearchLexical(idx.Tokenize(query))
	positions := make([]int, 0, len(scores))
	for pos, s := range scores {
		if s > 0 {
			positions = append(positions, pos)
		}
	}
	sort.SliceStable(positions, func(i, j int) bool {
		return scores[positions[i]] > scores[positions[j]]
	})
	if len(positions) > k {
		positions = positions[:k]
	}

	out := make([]Candidate, 0, len(positions))
	for _, pos := range positions {
		unit, ok := idx.Unit(pos)
		if !ok {
			continue
		}
		out = append(out, newCandidate(corpus, pos, unit, scores[pos]))
	}
	return out
}

func newCandidate(corpus domain.Corpus, position int, unit domain.Unit, score float64) Candidate {
	return Candidate{
		Key:      fmt.Sprintf("%s:%d", corpus, position),
		Position: position,
		Evidence: domain.EvidencePiece{
			Content:  unit.Text,
			Metadata: unit.Metadata,
			Score:    score,
		},
	}
}

func similarity(distance float64) float64 {
	return 1 / (1 + distance)
}
