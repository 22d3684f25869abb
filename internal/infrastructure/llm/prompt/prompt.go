// Package prompt renders the answer prompt shared by every generator backend.
package prompt

import (
	"fmt"
	"strings"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// MaxEvidence is how many evidence pieces reach the model.
const MaxEvidence = 5

const SystemMessage = "You are a financial analyst assistant."

const instructions = `You are a financial analyst assistant. Answer questions about SEC 10-K filings based ONLY on the provided evidence.

IMPORTANT RULES:
1. Keep answers concise (2-5 sentences)
2. ALWAYS cite sources (section name, table ID, row/column)
3. Show units for all numbers (millions, thousands, etc.)
4. If evidence is insufficient, say so - do not guess
5. For numeric questions, show the calculation
`

func BuildAnswer(query string, evidence []domain.EvidencePiece, route domain.RouteDecision) string {
	var b strings.Builder
	b.WriteString(instructions)
	if route.IsTableCentric {
		b.WriteString("6. Prefer the [TABLE] rows; quote the exact figures they contain\n")
	}
	if route.RequiresMath {
		b.WriteString("7. State the operands and the result of every calculation\n")
	}

	b.WriteString("\nEVIDENCE:\n\n")
	for _, ev := range evidence[:min(len(evidence), MaxEvidence)] {
		b.WriteString(header(ev.Metadata))
		b.WriteByte('\n')
		b.WriteString(ev.Content)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "\nQUESTION: %s\n\nANSWER (include citations):", query)
	return b.String()
}

func header(meta domain.UnitMetadata) string {
	if meta.ContentType == domain.ContentTable {
		row := "?"
		if meta.RowIdx != nil {
			row = fmt.Sprint(*meta.RowIdx)
		}
		return fmt.Sprintf("[TABLE] %s %d - Table %s, Row %s", meta.Ticker, meta.FiscalYear, meta.TableID, row)
	}
	section := meta.SectionTitle
	if section == "" {
		section = "N/A"
	}
	return fmt.Sprintf("[TEXT] %s %d - %s", meta.Ticker, meta.FiscalYear, section)
}

// Confidence is 0.8 when the answer cites a table, section or row, else 0.5.
func Confidence(answer string) float64 {
	for _, marker := range []string{"Table", "Section", "Row"} {
		if strings.Contains(answer, marker) {
			return 0.8
		}
	}
	return 0.5
}
