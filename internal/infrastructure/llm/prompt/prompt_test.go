package prompt

import (
	"strings"
	"testing"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

func TestBuildAnswerFormatsTopEvidence(t *testing.T) {
	row := 3
	evidence := []domain.EvidencePiece{
		{Content: "Revenue: 100 90", Metadata: domain.UnitMetadata{Ticker: "ACME", FiscalYear: 2023, ContentType: domain.ContentTable, TableID: "T1", RowIdx: &row}},
		{Content: "Demand softened.", Metadata: domain.UnitMetadata{Ticker: "ACME", FiscalYear: 2023, ContentType: domain.ContentText, SectionTitle: "MD&A"}},
		{Content: "no section", Metadata: domain.UnitMetadata{Ticker: "ACME", FiscalYear: 2023, ContentType: domain.ContentText}},
	}
	for i := 0; i < 5; i++ {
		evidence = append(evidence, domain.EvidencePiece{Content: "filler " + string(rune('a'+i))})
	}

	got := BuildAnswer("What was revenue?", evidence, domain.RouteDecision{IsTableCentric: true})

	for _, want := range []string{
		"[TABLE] ACME 2023 - Table T1, Row 3\nRevenue: 100 90",
		"[TEXT] ACME 2023 - MD&A\nDemand softened.",
		"[TEXT] ACME 2023 - N/A",
		"QUESTION: What was revenue?",
		"Prefer the [TABLE] rows",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "filler c") {
		t.Fatalf("expected evidence capped at %d pieces", MaxEvidence)
	}
	if strings.Contains(got, "operands") {
		t.Fatalf("math instruction only for math routes")
	}
}

func TestConfidence(t *testing.T) {
	if got := Confidence("Revenue was $100M (Table T1, Row 0)."); got != 0.8 {
		t.Fatalf("expected cited answer 0.8, got %v", got)
	}
	if got := Confidence("Revenue was $100M."); got != 0.5 {
		t.Fatalf("expected uncited answer 0.5, got %v", got)
	}
}
