package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

const citationEvidenceLimit = 3

// FilingCitationBuilder cites the top evidence pieces as filing locations.
type FilingCitationBuilder struct{}

func (FilingCitationBuilder) Build(_ string, evidence []domain.EvidencePiece) ([]string, error) {
	out := make([]string, 0, citationEvidenceLimit)
	seen := make(map[string]struct{}, citationEvidenceLimit)
	for _, piece := range evidence[:min(len(evidence), citationEvidenceLimit)] {
		c := formatCitation(piece.Metadata)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

func formatCitation(m domain.UnitMetadata) string {
	prefix := fmt.Sprintf("%s %d 10-K", strings.ToUpper(m.Ticker), m.FiscalYear)
	section := m.SectionTitle
	if section == "" {
		section = "Unknown section"
	}
	if m.ContentType == domain.ContentTable {
		row := "?"
		if m.RowIdx != nil {
			row = fmt.Sprintf("%d", *m.RowIdx)
		}
		return fmt.Sprintf("%s, %s, Table %s, Row %s", prefix, section, m.TableID, row)
	}
	return fmt.Sprintf("%s, %s", prefix, section)
}
