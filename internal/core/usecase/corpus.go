package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

const DefaultAbstractWords = 200

// CorpusBuilder turns structured filings into the three retrieval corpora.
type CorpusBuilder struct {
	chunker       ports.Chunker
	abstractWords int
}

func NewCorpusBuilder(chunker ports.Chunker, abstractWords int) *CorpusBuilder {
	if abstractWords <= 0 {
		abstractWords = DefaultAbstractWords
	}
	return &CorpusBuilder{chunker: chunker, abstractWords: abstractWords}
}

func (b *CorpusBuilder) Build(filings []domain.Filing) domain.CorpusSet {
	set := domain.CorpusSet{
		Sections: domain.CorpusUnits{Corpus: domain.CorpusSections},
		Text:     domain.CorpusUnits{Corpus: domain.CorpusText},
		Tables:   domain.CorpusUnits{Corpus: domain.CorpusTables},
	}
	for _, f := range filings {
		ticker := strings.ToUpper(f.Ticker)
		chunkID := 0
		for _, s := range f.Sections {
			set.Sections.Units = append(set.Sections.Units, domain.Unit{
				Text: SectionAbstract(s, b.abstractWords),
				Metadata: domain.UnitMetadata{
					Ticker:       ticker,
					FiscalYear:   f.FiscalYear,
					ContentType:  domain.ContentSection,
					SectionTitle: s.Title,
				},
			})
			for _, c := range b.chunker.Split(s.Content) {
				set.Text.Units = append(set.Text.Units, domain.Unit{
					Text: c.Text,
					Metadata: domain.UnitMetadata{
						Ticker:       ticker,
						FiscalYear:   f.FiscalYear,
						ContentType:  domain.ContentText,
						SectionTitle: s.Title,
						ChunkID:      chunkID,
						StartWord:    c.StartWord,
						EndWord:      c.EndWord,
					},
				})
				chunkID++
			}
		}

		for i, t := range f.Tables {
			tableID := t.TableID
			if tableID == "" {
				tableID = fmt.Sprintf("T%d", i+1)
			}
			units := CaptionUnits(t.Caption)
			for rowIdx, row := range t.Rows {
				sentence, ok := RowSentence(row)
				if !ok {
					continue
				}
				idx := rowIdx
				set.Tables.Units = append(set.Tables.Units, domain.Unit{
					Text: sentence,
					Metadata: domain.UnitMetadata{
						Ticker:       ticker,
						FiscalYear:   f.FiscalYear,
						ContentType:  domain.ContentTable,
						SectionTitle: t.Section,
						TableID:      tableID,
						RowIdx:       &idx,
						Caption:      t.Caption,
						Units:        units,
					},
				})
			}
		}
	}
	return set
}

// SectionAbstract is the title followed by the first words of the content.
func SectionAbstract(s domain.Section, words int) string {
	fields := strings.Fields(s.Content)
	if len(fields) > words {
		fields = fields[:words]
	}
	return s.Title + ". " + strings.Join(fields, " ")
}

// RowSentence renders a data row as "label: v1 v2 ...".
func RowSentence(row []string) (string, bool) {
	if len(row) == 0 {
		return "", false
	}
	label := strings.TrimSpace(row[0])
	values := make([]string, 0, len(row)-1)
	for _, v := range row[1:] {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if label == "" && len(values) == 0 {
		return "", false
	}
	return label + ": " + strings.Join(values, " "), true
}

// CaptionUnits detects the magnitude stated in a table caption.
func CaptionUnits(caption string) string {
	c := strings.ToLower(caption)
	switch {
	case strings.Contains(c, "billion"):
		return "billions"
	case strings.Contains(c, "million"):
		return "millions"
	case strings.Contains(c, "thousand"):
		return "thousands"
	default:
		return ""
	}
}
