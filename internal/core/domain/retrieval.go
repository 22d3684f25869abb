package domain

type QueryType string

const (
	QueryNumericTable QueryType = "numeric_table"
	QueryTableLookup  QueryType = "table_lookup"
	QueryNumericText  QueryType = "numeric_text"
	QueryNarrative    QueryType = "narrative"
)

// RouteDecision is derived from query text only. Confidence is coarse.
type RouteDecision struct {
	QueryType      QueryType `json:"query_type"`
	IsTableCentric bool      `json:"is_table_centric"`
	RequiresMath   bool      `json:"requires_math"`
	Confidence     float64   `json:"confidence"`
}

type EvidencePiece struct {
	Content  string       `json:"content"`
	Metadata UnitMetadata `json:"metadata"`
	Score    float64      `json:"score"`
}

type SectionHit struct {
	Abstract string       `json:"abstract"`
	Metadata UnitMetadata `json:"metadata"`
	Score    float64      `json:"score"`
}

// DenseHit is a raw nearest-neighbour result.
type DenseHit struct {
	Position int
	Distance float64
}

type RetrievalResult struct {
	Sections      []SectionHit    `json:"sections"`
	Content       []EvidencePiece `json:"content"`
	ContentCorpus Corpus          `json:"content_corpus"`
	TableFallback bool            `json:"table_fallback"`
}

type Generation struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

type Answer struct {
	Question     string          `json:"question"`
	Text         string          `json:"answer"`
	Confidence   float64         `json:"confidence"`
	Route        RouteDecision   `json:"route"`
	Sections     []SectionHit    `json:"sections"`
	Evidence     []EvidencePiece `json:"evidence"`
	Citations    []string        `json:"citations"`
	Verification Verdict         `json:"verification"`
}

// SearchHit is one result of a single-corpus hybrid search.
type SearchHit struct {
	Content  string       `json:"content"`
	Metadata UnitMetadata `json:"metadata"`
	Score    float64      `json:"score"`
}
