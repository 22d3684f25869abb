package index

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// Kind selects the dense index family.
type Kind string

const (
	KindFlat Kind = "flat"
	KindHNSW Kind = "hnsw"
	KindIVF  Kind = "ivf"
)

// ParseKind accepts the short names and the descriptive aliases.
func ParseKind(raw string) (Kind, error) {
	switch raw {
	case "flat", "exact":
		return KindFlat, nil
	case "hnsw", "approximate-graph", "graph":
		return KindHNSW, nil
	case "ivf", "inverted-file":
		return KindIVF, nil
	default:
		return "", domain.WrapError(domain.ErrConfig, "parse index kind", fmt.Errorf("unrecognized index kind %q", raw))
	}
}

// DenseOptions tune the approximate index families.
type DenseOptions struct {
	M              int
	EfConstruction int
	EfSearch       int
	NProbe         int
	Seed           int64
}

func DefaultDenseOptions() DenseOptions {
	return DenseOptions{
		M:              32,
		EfConstruction: 40,
		EfSearch:       64,
		NProbe:         4,
		Seed:           42,
	}
}

func (o DenseOptions) withDefaults() DenseOptions {
	def := DefaultDenseOptions()
	if o.M <= 1 {
		o.M = def.M
	}
	if o.EfConstruction <= 0 {
		o.EfConstruction = def.EfConstruction
	}
	if o.EfSearch <= 0 {
		o.EfSearch = def.EfSearch
	}
	if o.NProbe <= 0 {
		o.NProbe = def.NProbe
	}
	return o
}

// Neighbor is a dense search hit ordered by ascending squared L2 distance.
type Neighbor struct {
	ID       int
	Distance float32
}

// Dense is an immutable nearest-neighbour index over positions 0..Len()-1.
type Dense interface {
	Kind() Kind
	Dimension() int
	Len() int
	Search(query []float32, k int) ([]Neighbor, error)
}

// BuildDense builds an index of the given kind. All vectors must share one dimension.
func BuildDense(vectors [][]float32, kind Kind, opts DenseOptions) (Dense, error) {
	dim, err := checkDimensions(vectors)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	switch kind {
	case KindFlat:
		return newFlat(vectors, dim), nil
	case KindHNSW:
		return newHNSW(vectors, dim, opts), nil
	case KindIVF:
		return newIVF(vectors, dim, opts), nil
	default:
		return nil, domain.WrapError(domain.ErrConfig, "build dense index", fmt.Errorf("unrecognized index kind %q", kind))
	}
}

func checkDimensions(vectors [][]float32) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "build dense index", fmt.Errorf("empty vector at position 0"))
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, domain.WrapError(domain.ErrInvalidInput, "build dense index",
				fmt.Errorf("dimension mismatch at position %d: expected %d, got %d", i, dim, len(v)))
		}
	}
	return dim, nil
}

func checkQuery(query []float32, dim int) error {
	if len(query) != dim {
		return domain.WrapError(domain.ErrInvalidInput, "search dense index",
			fmt.Errorf("dimension mismatch: expected %d, got %d", dim, len(query)))
	}
	return nil
}

func flatten(vectors [][]float32, dim int) []float32 {
	data := make([]float32, 0, len(vectors)*dim)
	for _, v := range vectors {
		data = append(data, v...)
	}
	return data
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// neighborHeap is a binary heap of neighbors; max puts the farthest on top.
type neighborHeap struct {
	items []Neighbor
	max   bool
}

func (h *neighborHeap) Len() int { return len(h.items) }
func (h *neighborHeap) Less(i, j int) bool {
	if h.max {
		return h.items[i].Distance > h.items[j].Distance
	}
	return h.items[i].Distance < h.items[j].Distance
}
func (h *neighborHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *neighborHeap) Push(x any)    { h.items = append(h.items, x.(Neighbor)) }
func (h *neighborHeap) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}

func (h *neighborHeap) top() Neighbor { return h.items[0] }

// topK keeps the k nearest neighbors offered to it.
type topK struct {
	k int
	h *neighborHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: &neighborHeap{items: make([]Neighbor, 0, k+1), max: true}}
}

func (t *topK) offer(n Neighbor) {
	if t.h.Len() < t.k {
		heap.Push(t.h, n)
		return
	}
	if n.Distance < t.h.top().Distance {
		t.h.items[0] = n
		heap.Fix(t.h, 0)
	}
}

func (t *topK) sorted() []Neighbor {
	out := append([]Neighbor(nil), t.h.items...)
	sortNeighbors(out)
	return out
}

func sortNeighbors(ns []Neighbor) {
	sort.Slice(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].ID < ns[j].ID
	})
}
