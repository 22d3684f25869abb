package index

// Flat is an exact index: every query scans all vectors.
type Flat struct {
	dim  int
	n    int
	data []float32
}

func newFlat(vectors [][]float32, dim int) *Flat {
	return &Flat{dim: dim, n: len(vectors), data: flatten(vectors, dim)}
}

func (f *Flat) Kind() Kind     { return KindFlat }
func (f *Flat) Dimension() int { return f.dim }
func (f *Flat) Len() int       { return f.n }
func (f *Flat) vector(i int) []float32 {
	return f.data[i*f.dim : (i+1)*f.dim]
}

func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	if f.n == 0 || k <= 0 {
		return nil, nil
	}
	if err := checkQuery(query, f.dim); err != nil {
		return nil, err
	}
	k = min(k, f.n)

	best := newTopK(k)
	for i := 0; i < f.n; i++ {
		best.offer(Neighbor{ID: i, Distance: squaredL2(query, f.vector(i))})
	}
	return best.sorted(), nil
}
