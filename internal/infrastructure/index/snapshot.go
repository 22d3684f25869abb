package index

import (
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// Snapshot is one immutable version of a corpus: dense index, lexical
// index and the unit array, all addressed by the same position.
type Snapshot struct {
	version  string
	corpus   domain.Corpus
	builtAt  time.Time
	dense    Dense
	lexical  *BM25
	units    []domain.Unit
	sections map[domain.SectionRef]*roaring.Bitmap
	tokenize Tokenizer
}

func NewSnapshot(corpus domain.Corpus, version string, builtAt time.Time, units []domain.Unit, dense Dense, lexical *BM25, tokenize Tokenizer) (*Snapshot, error) {
	if dense == nil || lexical == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new snapshot", fmt.Errorf("dense and lexical indices are both required"))
	}
	if dense.Len() != len(units) || lexical.Len() != len(units) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "new snapshot",
			fmt.Errorf("%s: %d vectors, %d lexical documents, %d metadata entries", corpus, dense.Len(), lexical.Len(), len(units)))
	}
	if tokenize == nil {
		tokenize = WhitespaceTokenizer
	}

	sections := make(map[domain.SectionRef]*roaring.Bitmap)
	for pos, u := range units {
		ref := u.Metadata.SectionRef()
		bm, ok := sections[ref]
		if !ok {
			bm = roaring.New()
			sections[ref] = bm
		}
		bm.Add(uint32(pos))
	}
	for _, bm := range sections {
		bm.RunOptimize()
	}

	return &Snapshot{
		version:  version,
		corpus:   corpus,
		builtAt:  builtAt,
		dense:    dense,
		lexical:  lexical,
		units:    units,
		sections: sections,
		tokenize: tokenize,
	}, nil
}

func emptySnapshot(corpus domain.Corpus, tokenize Tokenizer) *Snapshot {
	snap, _ := NewSnapshot(corpus, "", time.Time{}, nil, &Flat{}, BuildLexical(nil, tokenize), tokenize)
	return snap
}

func (s *Snapshot) Version() string       { return s.version }
func (s *Snapshot) Corpus() domain.Corpus { return s.corpus }
func (s *Snapshot) BuiltAt() time.Time    { return s.builtAt }
func (s *Snapshot) Len() int              { return len(s.units) }
func (s *Snapshot) Dense() Dense          { return s.dense }
func (s *Snapshot) Lexical() *BM25        { return s.lexical }
func (s *Snapshot) Units() []domain.Unit  { return s.units }

func (s *Snapshot) Unit(position int) (domain.Unit, bool) {
	if position < 0 || position >= len(s.units) {
		return domain.Unit{}, false
	}
	return s.units[position], true
}

func (s *Snapshot) SearchDense(vector []float32, k int) ([]domain.DenseHit, error) {
	neighbors, err := s.dense.Search(vector, k)
	if err != nil {
		return nil, err
	}
	hits := make([]domain.DenseHit, len(neighbors))
	for i, n := range neighbors {
		hits[i] = domain.DenseHit{Position: n.ID, Distance: float64(n.Distance)}
	}
	return hits, nil
}

func (s *Snapshot) SearchLexical(tokens []string) []float64 {
	return s.lexical.Scores(tokens)
}

func (s *Snapshot) Tokenize(text string) []string {
	return s.tokenize(text)
}

// InSections reports whether position belongs to any of the given sections.
func (s *Snapshot) InSections(position int, refs []domain.SectionRef) bool {
	if position < 0 {
		return false
	}
	for _, ref := range refs {
		if bm, ok := s.sections[ref]; ok && bm.Contains(uint32(position)) {
			return true
		}
	}
	return false
}
