package index

import (
	"math"
	"sort"
	"strings"
)

const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// Tokenizer splits text into index terms.
type Tokenizer func(text string) []string

// WhitespaceTokenizer lowercases and splits on whitespace.
func WhitespaceTokenizer(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

type posting struct {
	doc int32
	tf  int32
}

// BM25 is an Okapi BM25 index. Terms with negative idf are floored at
// epsilon times the average idf.
type BM25 struct {
	k1       float64
	b        float64
	avgdl    float64
	docLens  []int32
	postings map[string][]posting
	idf      map[string]float64
}

func BuildLexical(documents []string, tokenize Tokenizer) *BM25 {
	if tokenize == nil {
		tokenize = WhitespaceTokenizer
	}
	idx := &BM25{
		k1:       bm25K1,
		b:        bm25B,
		docLens:  make([]int32, len(documents)),
		postings: make(map[string][]posting),
	}

	var total int64
	for doc, text := range documents {
		tokens := tokenize(text)
		idx.docLens[doc] = int32(len(tokens))
		total += int64(len(tokens))

		tf := make(map[string]int32, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t, count := range tf {
			idx.postings[t] = append(idx.postings[t], posting{doc: int32(doc), tf: count})
		}
	}
	if len(documents) > 0 {
		idx.avgdl = float64(total) / float64(len(documents))
	}
	idx.computeIDF()
	return idx
}

func (idx *BM25) computeIDF() {
	n := float64(len(idx.docLens))
	idx.idf = make(map[string]float64, len(idx.postings))
	if len(idx.postings) == 0 {
		return
	}

	var sum float64
	var negative []string
	for term, plist := range idx.postings {
		df := float64(len(plist))
		v := math.Log(n-df+0.5) - math.Log(df+0.5)
		idx.idf[term] = v
		sum += v
		if v < 0 {
			negative = append(negative, term)
		}
	}
	floor := bm25Epsilon * sum / float64(len(idx.idf))
	for _, term := range negative {
		idx.idf[term] = floor
	}
}

func (idx *BM25) Len() int { return len(idx.docLens) }

// Scores returns one score per corpus position. Repeated query terms count repeatedly.
func (idx *BM25) Scores(tokens []string) []float64 {
	scores := make([]float64, len(idx.docLens))
	if idx.avgdl == 0 {
		return scores
	}
	for _, term := range tokens {
		idf, ok := idx.idf[term]
		if !ok {
			continue
		}
		for _, p := range idx.postings[term] {
			tf := float64(p.tf)
			norm := idx.k1 * (1 - idx.b + idx.b*float64(idx.docLens[p.doc])/idx.avgdl)
			scores[p.doc] += idf * tf * (idx.k1 + 1) / (tf + norm)
		}
	}
	return scores
}

func (idx *BM25) sortedTerms() []string {
	terms := make([]string, 0, len(idx.postings))
	for t := range idx.postings {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}
