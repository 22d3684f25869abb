package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

type Options struct {
	Kind      Kind
	Dense     DenseOptions
	Tokenizer Tokenizer
}

// Store serves the current snapshot of each corpus. Reads are lock-free;
// rebuilds are serialized and publish a fully built snapshot atomically.
type Store struct {
	opts      Options
	logger    *slog.Logger
	rebuildMu sync.Mutex
	current   map[domain.Corpus]*atomic.Pointer[Snapshot]
	now       func() time.Time
}

func NewStore(opts Options, logger *slog.Logger) (*Store, error) {
	if _, err := ParseKind(string(opts.Kind)); err != nil {
		return nil, err
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = WhitespaceTokenizer
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		opts:    opts,
		logger:  logger,
		current: make(map[domain.Corpus]*atomic.Pointer[Snapshot], len(domain.Corpora())),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, c := range domain.Corpora() {
		ptr := &atomic.Pointer[Snapshot]{}
		ptr.Store(emptySnapshot(c, opts.Tokenizer))
		s.current[c] = ptr
	}
	return s, nil
}

// Snapshot returns the published snapshot for c, or an empty one.
func (s *Store) Snapshot(c domain.Corpus) *Snapshot {
	ptr, ok := s.current[c]
	if !ok {
		return emptySnapshot(c, s.opts.Tokenizer)
	}
	return ptr.Load()
}

func (s *Store) Corpus(c domain.Corpus) ports.CorpusIndex {
	return s.Snapshot(c)
}

func (s *Store) Kind() Kind { return s.opts.Kind }

// Rebuild builds both indices over units and swaps them in.
func (s *Store) Rebuild(ctx context.Context, units domain.CorpusUnits, vectors [][]float32) (domain.IndexBuild, error) {
	if err := ctx.Err(); err != nil {
		return domain.IndexBuild{}, err
	}
	if len(vectors) != len(units.Units) {
		return domain.IndexBuild{}, domain.WrapError(domain.ErrInvalidInput, "rebuild index",
			fmt.Errorf("%s: %d vectors for %d units", units.Corpus, len(vectors), len(units.Units)))
	}

	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	started := time.Now()
	dense, err := BuildDense(vectors, s.opts.Kind, s.opts.Dense)
	if err != nil {
		return domain.IndexBuild{}, fmt.Errorf("build dense index for %s: %w", units.Corpus, err)
	}
	lexical := BuildLexical(units.Texts(), s.opts.Tokenizer)

	snap, err := NewSnapshot(units.Corpus, uuid.NewString(), s.now(), units.Units, dense, lexical, s.opts.Tokenizer)
	if err != nil {
		return domain.IndexBuild{}, err
	}
	if err := s.publishLocked(snap); err != nil {
		return domain.IndexBuild{}, err
	}

	s.logger.Info("index rebuilt",
		"corpus", units.Corpus,
		"version", snap.Version(),
		"kind", s.opts.Kind,
		"size", snap.Len(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return domain.IndexBuild{
		Version: snap.Version(),
		Corpus:  units.Corpus,
		Kind:    string(s.opts.Kind),
		Size:    snap.Len(),
		BuiltAt: snap.BuiltAt(),
	}, nil
}

// Publish swaps in an already built snapshot, e.g. one restored from storage.
func (s *Store) Publish(snap *Snapshot) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	return s.publishLocked(snap)
}

func (s *Store) publishLocked(snap *Snapshot) error {
	ptr, ok := s.current[snap.Corpus()]
	if !ok {
		return domain.WrapError(domain.ErrInvalidInput, "publish snapshot", fmt.Errorf("unknown corpus %q", snap.Corpus()))
	}
	ptr.Store(snap)
	return nil
}
