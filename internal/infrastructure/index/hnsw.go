package index

import (
	"container/heap"
	"math"
	"math/rand/v2"
	"sort"
)

// HNSW is a hierarchical navigable small world graph built once from a
// fixed vector set. Level assignment is seeded so builds are reproducible.
type HNSW struct {
	dim            int
	n              int
	data           []float32
	m              int
	m0             int
	efConstruction int
	efSearch       int
	levels         []int32
	links          [][][]int32
	entry          int32
	maxLevel       int
}

func newHNSW(vectors [][]float32, dim int, opts DenseOptions) *HNSW {
	h := &HNSW{
		dim:            dim,
		n:              len(vectors),
		data:           flatten(vectors, dim),
		m:              opts.M,
		m0:             opts.M * 2,
		efConstruction: max(opts.EfConstruction, opts.M),
		efSearch:       opts.EfSearch,
		levels:         make([]int32, len(vectors)),
		links:          make([][][]int32, len(vectors)),
		entry:          -1,
	}

	rng := rand.New(rand.NewPCG(uint64(opts.Seed), uint64(opts.Seed)^0x9e3779b97f4a7c15))
	levelMult := 1 / math.Log(float64(h.m))
	for i := 0; i < h.n; i++ {
		level := int(math.Floor(-math.Log(1-rng.Float64()) * levelMult))
		h.insert(int32(i), level)
	}
	return h
}

func (h *HNSW) Kind() Kind     { return KindHNSW }
func (h *HNSW) Dimension() int { return h.dim }
func (h *HNSW) Len() int       { return h.n }

func (h *HNSW) vector(id int32) []float32 {
	return h.data[int(id)*h.dim : (int(id)+1)*h.dim]
}

func (h *HNSW) maxConns(level int) int {
	if level == 0 {
		return h.m0
	}
	return h.m
}

func (h *HNSW) insert(id int32, level int) {
	h.levels[id] = int32(level)
	h.links[id] = make([][]int32, level+1)

	if h.entry < 0 {
		h.entry = id
		h.maxLevel = level
		return
	}

	vec := h.vector(id)
	cur := h.entry
	curDist := squaredL2(vec, h.vector(cur))
	for l := h.maxLevel; l > level; l-- {
		cur, curDist = h.greedy(vec, cur, curDist, l)
	}

	for l := min(level, h.maxLevel); l >= 0; l-- {
		candidates := h.searchLayer(vec, cur, curDist, l, h.efConstruction)
		limit := min(len(candidates), h.maxConns(l))
		neighbors := make([]int32, 0, limit)
		for _, c := range candidates[:limit] {
			neighbors = append(neighbors, int32(c.ID))
		}
		h.links[id][l] = neighbors
		for _, nb := range neighbors {
			h.connect(nb, id, l)
		}
		cur, curDist = int32(candidates[0].ID), candidates[0].Distance
	}

	if level > h.maxLevel {
		h.maxLevel = level
		h.entry = id
	}
}

// connect adds a back link and prunes the list to the closest maxConns.
func (h *HNSW) connect(from, to int32, level int) {
	conns := append(h.links[from][level], to)
	limit := h.maxConns(level)
	if len(conns) > limit {
		base := h.vector(from)
		sort.SliceStable(conns, func(i, j int) bool {
			return squaredL2(base, h.vector(conns[i])) < squaredL2(base, h.vector(conns[j]))
		})
		conns = conns[:limit]
	}
	h.links[from][level] = conns
}

func (h *HNSW) greedy(query []float32, cur int32, curDist float32, level int) (int32, float32) {
	for changed := true; changed; {
		changed = false
		for _, next := range h.links[cur][level] {
			if d := squaredL2(query, h.vector(next)); d < curDist {
				cur, curDist = next, d
				changed = true
			}
		}
	}
	return cur, curDist
}

// searchLayer returns up to ef nearest nodes at level, nearest first.
func (h *HNSW) searchLayer(query []float32, ep int32, epDist float32, level, ef int) []Neighbor {
	visited := map[int32]struct{}{ep: {}}
	candidates := &neighborHeap{}
	results := &neighborHeap{max: true}
	heap.Push(candidates, Neighbor{ID: int(ep), Distance: epDist})
	heap.Push(results, Neighbor{ID: int(ep), Distance: epDist})

	for candidates.Len() > 0 {
		curr := heap.Pop(candidates).(Neighbor)
		if results.Len() >= ef && curr.Distance > results.top().Distance {
			break
		}
		for _, next := range h.links[curr.ID][level] {
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}

			d := squaredL2(query, h.vector(next))
			if results.Len() >= ef && d > results.top().Distance {
				continue
			}
			heap.Push(candidates, Neighbor{ID: int(next), Distance: d})
			heap.Push(results, Neighbor{ID: int(next), Distance: d})
			if results.Len() > ef {
				heap.Pop(results)
			}
		}
	}

	out := append([]Neighbor(nil), results.items...)
	sortNeighbors(out)
	return out
}

func (h *HNSW) Search(query []float32, k int) ([]Neighbor, error) {
	if h.n == 0 || k <= 0 {
		return nil, nil
	}
	if err := checkQuery(query, h.dim); err != nil {
		return nil, err
	}

	cur := h.entry
	curDist := squaredL2(query, h.vector(cur))
	for l := h.maxLevel; l > 0; l-- {
		cur, curDist = h.greedy(query, cur, curDist, l)
	}

	found := h.searchLayer(query, cur, curDist, 0, max(h.efSearch, k))
	if len(found) > k {
		found = found[:k]
	}
	return found, nil
}
