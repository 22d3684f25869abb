package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

const DefaultEmbedBatchSize = 64

// IndexRebuildUseCase rebuilds every corpus from the filings registry.
// Rebuilds are serialized; a failed rebuild leaves published snapshots untouched.
type IndexRebuildUseCase struct {
	repo      ports.FilingRepository
	loader    ports.FilingLoader
	builder   *CorpusBuilder
	embedder  ports.Embedder
	writer    ports.IndexWriter
	persister ports.SnapshotPersister
	batchSize int
	observer  ports.RebuildObserver
	logger    *slog.Logger

	mu sync.Mutex
}

func NewIndexRebuildUseCase(
	repo ports.FilingRepository,
	loader ports.FilingLoader,
	builder *CorpusBuilder,
	embedder ports.Embedder,
	writer ports.IndexWriter,
	persister ports.SnapshotPersister,
	batchSize int,
	observer ports.RebuildObserver,
	logger *slog.Logger,
) *IndexRebuildUseCase {
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexRebuildUseCase{
		repo:      repo,
		loader:    loader,
		builder:   builder,
		embedder:  embedder,
		writer:    writer,
		persister: persister,
		batchSize: batchSize,
		observer:  rebuildObserverOrNop(observer),
		logger:    logger,
	}
}

func (uc *IndexRebuildUseCase) RebuildAll(ctx context.Context) ([]domain.IndexBuild, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	started := time.Now()
	records, err := uc.repo.ListByStatus(ctx, domain.FilingIngested, domain.FilingIndexed)
	if err != nil {
		uc.observer.ObserveRebuildFailure("list")
		return nil, fmt.Errorf("list filings: %w", err)
	}

	filings, loaded := uc.loadFilings(ctx, records)
	set := uc.builder.Build(filings)

	vectors, err := uc.embedCorpora(ctx, set)
	if err != nil {
		uc.observer.ObserveRebuildFailure("embed")
		return nil, err
	}

	builds := make([]domain.IndexBuild, 0, len(domain.Corpora()))
	for i, units := range set.All() {
		build, err := uc.writer.Rebuild(ctx, units, vectors[i])
		if err != nil {
			uc.observer.ObserveRebuildFailure("index")
			return builds, fmt.Errorf("rebuild %s index: %w", units.Corpus, err)
		}
		build.Filings = len(filings)
		if uc.persister != nil {
			if err := uc.persister.Save(ctx, units.Corpus); err != nil {
				uc.observer.ObserveRebuildFailure("persist")
				uc.logger.Warn("index snapshot not persisted", "corpus", units.Corpus, "version", build.Version, "error", err)
			} else {
				build.Persisted = true
			}
		}
		if err := uc.repo.RecordIndexBuild(ctx, build); err != nil {
			uc.logger.Warn("index build not recorded", "corpus", units.Corpus, "version", build.Version, "error", err)
		}
		uc.observer.ObserveIndexBuild(build, time.Since(started))
		builds = append(builds, build)
	}

	for _, rec := range loaded {
		if rec.Status == domain.FilingIndexed {
			continue
		}
		if err := uc.repo.UpdateStatus(ctx, rec.FilingKey, domain.FilingIndexed, ""); err != nil {
			uc.logger.Warn("filing status not updated", "filing", rec.String(), "error", err)
		}
	}

	uc.logger.Info("indices rebuilt",
		"filings", len(filings),
		"sections", len(set.Sections.Units),
		"text", len(set.Text.Units),
		"tables", len(set.Tables.Units),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return builds, nil
}

// loadFilings returns the filings that loaded; broken ones are marked failed.
func (uc *IndexRebuildUseCase) loadFilings(ctx context.Context, records []domain.FilingRecord) ([]domain.Filing, []domain.FilingRecord) {
	filings := make([]domain.Filing, 0, len(records))
	loaded := make([]domain.FilingRecord, 0, len(records))
	for _, rec := range records {
		filing, err := uc.loader.Load(ctx, rec)
		if err != nil {
			uc.logger.Warn("filing skipped", "filing", rec.String(), "error", err)
			if failErr := uc.repo.UpdateStatus(ctx, rec.FilingKey, domain.FilingFailed, err.Error()); failErr != nil {
				uc.logger.Warn("filing status not updated", "filing", rec.String(), "error", failErr)
			}
			continue
		}
		filings = append(filings, filing)
		loaded = append(loaded, rec)
	}
	return filings, loaded
}

func (uc *IndexRebuildUseCase) embedCorpora(ctx context.Context, set domain.CorpusSet) ([][][]float32, error) {
	corpora := set.All()
	out := make([][][]float32, len(corpora))
	g, gctx := errgroup.WithContext(ctx)
	for i, units := range corpora {
		g.Go(func() error {
			vectors, err := uc.embedTexts(gctx, units.Texts())
			if err != nil {
				return fmt.Errorf("embed %s corpus: %w", units.Corpus, err)
			}
			out[i] = vectors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (uc *IndexRebuildUseCase) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += uc.batchSize {
		end := min(start+uc.batchSize, len(texts))
		batch, err := uc.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, domain.ExternalFailure("embed", texts[start], err)
		}
		if len(batch) != end-start {
			return nil, domain.WrapError(domain.ErrExternal, "embed batch",
				fmt.Errorf("vectors/texts mismatch: %d/%d", len(batch), end-start))
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// HandleFilingIngested is the queue handler: any ingest event triggers a full rebuild.
func (uc *IndexRebuildUseCase) HandleFilingIngested(ctx context.Context, key domain.FilingKey) error {
	builds, err := uc.RebuildAll(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("rebuild after %s: %w", key, err)
	}
	uc.logger.Info("rebuild triggered by ingest", "filing", key.String(), "corpora", len(builds))
	return nil
}
