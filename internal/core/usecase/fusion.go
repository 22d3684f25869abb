package usecase

import (
	"fmt"
	"sort"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

const DefaultFusionAlpha = 0.7

// Candidate is one entry of a ranked list. Key identifies the unit across
// lists; Position is its index in the source corpus.
type Candidate struct {
	Key      string
	Position int
	Evidence domain.EvidencePiece
}

// Fuser merges a dense and a lexical ranked list into one ranking.
type Fuser interface {
	Fuse(dense, lexical []Candidate) []Candidate
}

// WeightedScoreFusion accumulates alpha*dense + (1-alpha)*lexical per key.
type WeightedScoreFusion struct {
	Alpha float64
}

func NewWeightedScoreFusion(alpha float64) (*WeightedScoreFusion, error) {
	if alpha < 0 || alpha > 1 {
		return nil, domain.WrapError(domain.ErrConfig, "weighted fusion", fmt.Errorf("alpha %.3f outside [0,1]", alpha))
	}
	return &WeightedScoreFusion{Alpha: alpha}, nil
}

func (f *WeightedScoreFusion) Fuse(dense, lexical []Candidate) []Candidate {
	acc := newFusionAccumulator(len(dense) + len(lexical))
	for _, c := range dense {
		acc.add(c, f.Alpha*c.Evidence.Score)
	}
	for _, c := range lexical {
		acc.add(c, (1-f.Alpha)*c.Evidence.Score)
	}
	return acc.ranked()
}

// ReciprocalRankFusion scores rank r (0-indexed) as weight/(r+1).
type ReciprocalRankFusion struct {
	denseWeight float64
	bm25Weight  float64
}

// NewReciprocalRankFusion normalizes the weights to sum to 1.
func NewReciprocalRankFusion(denseWeight, bm25Weight float64) (*ReciprocalRankFusion, error) {
	if denseWeight < 0 || bm25Weight < 0 {
		return nil, domain.WrapError(domain.ErrConfig, "rrf fusion", fmt.Errorf("negative weight"))
	}
	total := denseWeight + bm25Weight
	if total <= 0 {
		return nil, domain.WrapError(domain.ErrConfig, "rrf fusion", fmt.Errorf("weights sum to zero"))
	}
	return &ReciprocalRankFusion{
		denseWeight: denseWeight / total,
		bm25Weight:  bm25Weight / total,
	}, nil
}

func (f *ReciprocalRankFusion) Weights() (dense, bm25 float64) {
	return f.denseWeight, f.bm25Weight
}

func (f *ReciprocalRankFusion) Fuse(dense, lexical []Candidate) []Candidate {
	acc := newFusionAccumulator(len(dense) + len(lexical))
	for rank, c := range dense {
		acc.add(c, f.denseWeight/float64(rank+1))
	}
	for rank, c := range lexical {
		acc.add(c, f.bm25Weight/float64(rank+1))
	}
	return acc.ranked()
}

type fusionAccumulator struct {
	order []string
	byKey map[string]*Candidate
}

func newFusionAccumulator(capacity int) *fusionAccumulator {
	return &fusionAccumulator{
		order: make([]string, 0, capacity),
		byKey: make(map[string]*Candidate, capacity),
	}
}

// add sums contributions for repeated keys; the first occurrence keeps its evidence.
func (a *fusionAccumulator) add(c Candidate, contribution float64) {
	existing, ok := a.byKey[c.Key]
	if !ok {
		fused := c
		fused.Evidence.Score = contribution
		a.byKey[c.Key] = &fused
		a.order = append(a.order, c.Key)
		return
	}
	existing.Evidence.Score += contribution
}

func (a *fusionAccumulator) ranked() []Candidate {
	out := make([]Candidate, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, *a.byKey[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Evidence.Score > out[j].Evidence.Score
	})
	return out
}

func trimCandidates(candidates []Candidate, limit int) []Candidate {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}
