package domain

// Corpus names one independently indexed collection.
type Corpus string

const (
	CorpusSections Corpus = "sections"
	CorpusText     Corpus = "text"
	CorpusTables   Corpus = "tables"
)

func Corpora() []Corpus {
	return []Corpus{CorpusSections, CorpusText, CorpusTables}
}

func ParseCorpus(raw string) (Corpus, bool) {
	for _, c := range Corpora() {
		if string(c) == raw {
			return c, true
		}
	}
	return "", false
}

type ContentType string

const (
	ContentText    ContentType = "text"
	ContentTable   ContentType = "table"
	ContentSection ContentType = "section"
)

// UnitMetadata is the provenance of one indexed unit. Position in the
// corpus metadata array is the join key with dense and lexical results.
type UnitMetadata struct {
	Ticker       string      `json:"ticker"`
	FiscalYear   int         `json:"fiscal_year"`
	ContentType  ContentType `json:"content_type"`
	SectionTitle string      `json:"section_title,omitempty"`
	TableID      string      `json:"table_id,omitempty"`
	RowIdx       *int        `json:"row_idx,omitempty"`
	Caption      string      `json:"caption,omitempty"`
	Units        string      `json:"units,omitempty"`
	ChunkID      int         `json:"chunk_id,omitempty"`
	StartWord    int         `json:"start_word,omitempty"`
	EndWord      int         `json:"end_word,omitempty"`
}

// SectionRef identifies a section across filings.
func (m UnitMetadata) SectionRef() SectionRef {
	return SectionRef{Ticker: m.Ticker, FiscalYear: m.FiscalYear, Title: m.SectionTitle}
}

type SectionRef struct {
	Ticker     string `json:"ticker"`
	FiscalYear int    `json:"fiscal_year"`
	Title      string `json:"section_title"`
}

// Unit is one retrievable text with its provenance.
type Unit struct {
	Text     string       `json:"text"`
	Metadata UnitMetadata `json:"metadata"`
}

// CorpusUnits is an ordered corpus ready for embedding and indexing.
type CorpusUnits struct {
	Corpus Corpus
	Units  []Unit
}

func (c CorpusUnits) Texts() []string {
	out := make([]string, len(c.Units))
	for i, u := range c.Units {
		out[i] = u.Text
	}
	return out
}

func (c CorpusUnits) Metadata() []UnitMetadata {
	out := make([]UnitMetadata, len(c.Units))
	for i, u := range c.Units {
		out[i] = u.Metadata
	}
	return out
}

// CorpusSet is the output of a corpus build over all ready filings.
type CorpusSet struct {
	Sections CorpusUnits
	Text     CorpusUnits
	Tables   CorpusUnits
}

func (s CorpusSet) All() []CorpusUnits {
	return []CorpusUnits{s.Sections, s.Text, s.Tables}
}
