package index

import "math/rand/v2"

const (
	ivfMaxLists      = 100
	ivfPointsPerList = 10
	ivfTrainIters    = 10
)

// IVF partitions vectors into k-means clusters and scans the NProbe
// clusters nearest to the query.
type IVF struct {
	dim       int
	n         int
	nprobe    int
	data      []float32
	centroids []float32
	lists     [][]int32
}

// ivfListCount returns min(100, n/10), at least one list for non-empty input.
func ivfListCount(n int) int {
	if n == 0 {
		return 0
	}
	return max(1, min(ivfMaxLists, n/ivfPointsPerList))
}

func newIVF(vectors [][]float32, dim int, opts DenseOptions) *IVF {
	ivf := &IVF{
		dim:    dim,
		n:      len(vectors),
		nprobe: opts.NProbe,
		data:   flatten(vectors, dim),
	}
	nlist := ivfListCount(ivf.n)
	if nlist == 0 {
		return ivf
	}
	ivf.train(nlist, opts.Seed)
	return ivf
}

func (ivf *IVF) Kind() Kind     { return KindIVF }
func (ivf *IVF) Dimension() int { return ivf.dim }
func (ivf *IVF) Len() int       { return ivf.n }

func (ivf *IVF) vector(i int) []float32 {
	return ivf.data[i*ivf.dim : (i+1)*ivf.dim]
}

func (ivf *IVF) centroid(c int) []float32 {
	return ivf.centroids[c*ivf.dim : (c+1)*ivf.dim]
}

func (ivf *IVF) nlist() int {
	return len(ivf.lists)
}

// train runs Lloyd iterations from a seeded sample of the input.
func (ivf *IVF) train(nlist int, seed int64) {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)+1))
	perm := rng.Perm(ivf.n)

	ivf.centroids = make([]float32, 0, nlist*ivf.dim)
	for _, idx := range perm[:nlist] {
		ivf.centroids = append(ivf.centroids, ivf.vector(idx)...)
	}

	assign := make([]int, ivf.n)
	for iter := 0; iter < ivfTrainIters; iter++ {
		changed := false
		for i := 0; i < ivf.n; i++ {
			if c := ivf.nearestCentroid(ivf.vector(i)); c != assign[i] {
				assign[i] = c
				changed = true
			}
		}

		sums := make([]float32, nlist*ivf.dim)
		counts := make([]int, nlist)
		for i, c := range assign {
			counts[c]++
			row := sums[c*ivf.dim : (c+1)*ivf.dim]
			for d, v := range ivf.vector(i) {
				row[d] += v
			}
		}
		for c := 0; c < nlist; c++ {
			if counts[c] == 0 {
				continue
			}
			dst := ivf.centroid(c)
			for d := range dst {
				dst[d] = sums[c*ivf.dim+d] / float32(counts[c])
			}
		}
		if iter > 0 && !changed {
			break
		}
	}

	ivf.lists = make([][]int32, nlist)
	for i := 0; i < ivf.n; i++ {
		c := ivf.nearestCentroid(ivf.vector(i))
		ivf.lists[c] = append(ivf.lists[c], int32(i))
	}
}

func (ivf *IVF) nearestCentroid(v []float32) int {
	best, bestDist := 0, squaredL2(v, ivf.centroid(0))
	for c := 1; c < len(ivf.centroids)/ivf.dim; c++ {
		if d := squaredL2(v, ivf.centroid(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func (ivf *IVF) Search(query []float32, k int) ([]Neighbor, error) {
	if ivf.n == 0 || k <= 0 {
		return nil, nil
	}
	if err := checkQuery(query, ivf.dim); err != nil {
		return nil, err
	}

	probes := make([]Neighbor, ivf.nlist())
	for c := range probes {
		probes[c] = Neighbor{ID: c, Distance: squaredL2(query, ivf.centroid(c))}
	}
	sortNeighbors(probes)
	probes = probes[:min(ivf.nprobe, len(probes))]

	best := newTopK(min(k, ivf.n))
	for _, p := range probes {
		for _, id := range ivf.lists[p.ID] {
			best.offer(Neighbor{ID: int(id), Distance: squaredL2(query, ivf.vector(int(id)))})
		}
	}
	return best.sorted(), nil
}
