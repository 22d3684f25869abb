package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// FilingRepository persists the filing registry and the index build log.
type FilingRepository interface {
	Upsert(ctx context.Context, rec *domain.FilingRecord) error
	GetByKey(ctx context.Context, key domain.FilingKey) (*domain.FilingRecord, error)
	ListByStatus(ctx context.Context, statuses ...domain.FilingStatus) ([]domain.FilingRecord, error)
	UpdateStatus(ctx context.Context, key domain.FilingKey, status domain.FilingStatus, errMessage string) error
	RecordIndexBuild(ctx context.Context, build domain.IndexBuild) error
}

// ObjectStorage stores filing payloads and index snapshots.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes filing ingestion events.
type MessageQueue interface {
	PublishFilingIngested(ctx context.Context, key domain.FilingKey) error
	SubscribeFilingIngested(ctx context.Context, handler func(context.Context, domain.FilingKey) error) error
}

// FilingLoader reads a stored filing and structures its tables.
type FilingLoader interface {
	Load(ctx context.Context, rec domain.FilingRecord) (domain.Filing, error)
}

// Embedder encodes texts into fixed-dimension vectors.
// Empty input returns an empty result.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces answer text from retrieved evidence.
type Generator interface {
	Generate(ctx context.Context, query string, evidence []domain.EvidencePiece, route domain.RouteDecision) (domain.Generation, error)
}

// CitationBuilder formats deduplicated, order-preserving citations.
type CitationBuilder interface {
	Build(answer string, evidence []domain.EvidencePiece) ([]string, error)
}

// Chunker splits section text into overlapping word windows.
type Chunker interface {
	Split(text string) []domain.TextChunk
}

// CorpusIndex is a read-only view over one published index version.
type CorpusIndex interface {
	Version() string
	Len() int
	Unit(position int) (domain.Unit, bool)
	SearchDense(vector []float32, k int) ([]domain.DenseHit, error)
	SearchLexical(tokens []string) []float64
	Tokenize(text string) []string
	InSections(position int, refs []domain.SectionRef) bool
}

// IndexReader returns the current version of a corpus. Never nil.
type IndexReader interface {
	Corpus(c domain.Corpus) CorpusIndex
}

// IndexWriter builds and atomically publishes a new corpus version.
type IndexWriter interface {
	Rebuild(ctx context.Context, units domain.CorpusUnits, vectors [][]float32) (domain.IndexBuild, error)
}

// SnapshotPersister saves and restores published corpus versions.
type SnapshotPersister interface {
	Save(ctx context.Context, c domain.Corpus) error
	Restore(ctx context.Context, c domain.Corpus) error
}

// RetrievalObserver receives pipeline events for metrics.
type RetrievalObserver interface {
	ObserveRoute(route domain.RouteDecision)
	ObserveTableFallback()
	ObserveRetrieval(corpus domain.Corpus, duration time.Duration, results int)
	ObserveVerification(status domain.VerificationStatus)
}

// RebuildObserver receives index rebuild outcomes for metrics.
type RebuildObserver interface {
	ObserveIndexBuild(build domain.IndexBuild, duration time.Duration)
	ObserveRebuildFailure(stage string)
}
