package usecase

import (
	"testing"

	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/domain"
)

func tableEvidence(content string) domain.EvidencePiece {
	return domain.EvidencePiece{
		Content:  content,
		Metadata: domain.UnitMetadata{Ticker: "ACME", FiscalYear: 2023, ContentType: domain.ContentTable, TableID: "T1"},
	}
}

func textEvidence(content string) domain.EvidencePiece {
	return domain.EvidencePiece{
		Content:  content,
		Metadata: domain.UnitMetadata{Ticker: "ACME", FiscalYear: 2023, ContentType: domain.ContentText},
	}
}

func newTestVerifier() *MathVerifier {
	return NewMathVerifier(config.DefaultKeywords(), DefaultVerifierTolerance)
}

func TestExtractNumbersAppliesMultipliers(t *testing.T) {
	cases := []struct {
		text string
		want []float64
	}{
		{"Revenue was 100", []float64{100}},
		{"$2.5B in 2023", []float64{2.5e9, 2023}},
		{"12 million units and 3 thousand staff", []float64{12e6, 3e3}},
		{"costs of 40m", []float64{40e6}},
		{"5 thousands of shares", []float64{5e3}},
		{"7.5 Millions and 2 billions", []float64{7.5e6, 2e9}},
		{"headcount 100,200", []float64{100200}},
		{"margin fell to -3.5%", []float64{-3.5}},
		{"net sales 1,234.5", []float64{1234.5}},
		{"FY2023-2024 results", []float64{2023, 2024}},
		{"no digits here", nil},
	}
	for _, tc := range cases {
		got := ExtractNumbers(tc.text)
		if len(got) != len(tc.want) {
			t.Fatalf("ExtractNumbers(%q) = %v, want %v", tc.text, got, tc.want)
		}
		for i := range got {
			if !approxEqual(got[i], tc.want[i]) {
				t.Fatalf("ExtractNumbers(%q)[%d] = %f, want %f", tc.text, i, got[i], tc.want[i])
			}
		}
	}
}

func TestVerifyLookupWithinTolerance(t *testing.T) {
	v := newTestVerifier()

	verdict := v.Verify("Revenue was 100", []domain.EvidencePiece{tableEvidence("Revenue: 100.5")}, "What was revenue?")
	if verdict.Status != domain.VerificationVerified {
		t.Fatalf("expected verified, got %s (%s)", verdict.Status, verdict.Message)
	}
	if verdict.CalculationType != domain.CalcLookup {
		t.Fatalf("expected lookup, got %s", verdict.CalculationType)
	}

	verdict = v.Verify("Revenue was 100", []domain.EvidencePiece{tableEvidence("Revenue: 90")}, "What was revenue?")
	if verdict.Status != domain.VerificationFailed {
		t.Fatalf("expected failed, got %s", verdict.Status)
	}
}

func TestVerifyLookupRequiresEveryAnswerNumber(t *testing.T) {
	v := newTestVerifier()
	evidence := []domain.EvidencePiece{tableEvidence("Revenue: 100 90")}

	if got := v.Verify("Revenue was 100 after 90", evidence, "").Status; got != domain.VerificationVerified {
		t.Fatalf("expected verified, got %s", got)
	}
	if got := v.Verify("Revenue was 100 after 70", evidence, "").Status; got != domain.VerificationFailed {
		t.Fatalf("expected failed when one number is unsupported, got %s", got)
	}
}

func TestVerifyDifference(t *testing.T) {
	v := newTestVerifier()

	verdict := v.Verify("the decrease was 10", []domain.EvidencePiece{tableEvidence("Revenue: 100 90")}, "")
	if verdict.Status != domain.VerificationVerified {
		t.Fatalf("expected verified, got %s (%s)", verdict.Status, verdict.Message)
	}
	if verdict.CalculationType != domain.CalcDifference {
		t.Fatalf("expected difference, got %s", verdict.CalculationType)
	}
}

func TestVerifyRatioAndPercentage(t *testing.T) {
	v := newTestVerifier()
	evidence := []domain.EvidencePiece{tableEvidence("Revenue: 120 100")}

	if got := v.Verify("The ratio is 1.2", evidence, ""); got.Status != domain.VerificationVerified || got.CalculationType != domain.CalcRatio {
		t.Fatalf("expected verified ratio, got %+v", got)
	}
	if got := v.Verify("Revenue grew 20 percent", evidence, ""); got.Status != domain.VerificationVerified || got.CalculationType != domain.CalcPercentage {
		t.Fatalf("expected verified percentage, got %+v", got)
	}
	if got := v.Verify("Revenue moved -16.67 percent", evidence, ""); got.Status != domain.VerificationVerified {
		t.Fatalf("expected reversed ordered pair to verify, got %+v", got)
	}
	if got := v.Verify("Revenue moved 16.67 percent", evidence, ""); got.Status != domain.VerificationFailed {
		t.Fatalf("expected sign to matter for percentage, got %+v", got)
	}
}

func TestVerifySkipsZeroDenominators(t *testing.T) {
	v := newTestVerifier()
	evidence := []domain.EvidencePiece{tableEvidence("Reserve: 0 50")}

	if got := v.Verify("The ratio is 5", evidence, ""); got.Status != domain.VerificationFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestVerifyNoNumbersIsDistinct(t *testing.T) {
	v := newTestVerifier()

	verdict := v.Verify("Management expects continued growth.", []domain.EvidencePiece{tableEvidence("Revenue: 100")}, "")
	if verdict.Status != domain.VerificationNoNumbers {
		t.Fatalf("expected no_numbers, got %s", verdict.Status)
	}
}

func TestVerifyIgnoresTextEvidence(t *testing.T) {
	v := newTestVerifier()

	verdict := v.Verify("Revenue was 100", []domain.EvidencePiece{textEvidence("Revenue reached 100 in the year")}, "")
	if verdict.Status != domain.VerificationFailed {
		t.Fatalf("expected text evidence to be ignored, got %s", verdict.Status)
	}
}

func TestCalculationTypePriority(t *testing.T) {
	v := newTestVerifier()

	cases := []struct {
		query string
		want  domain.CalculationType
	}{
		{"What was the percentage change in revenue?", domain.CalcDifference},
		{"What is the debt to equity ratio?", domain.CalcRatio},
		{"What percentage of revenue was R&D?", domain.CalcPercentage},
		{"Revenue per share compared to prior year", domain.CalcRatio},
		{"What was operating performance?", domain.CalcLookup},
	}
	for _, tc := range cases {
		if got := v.CalculationType(tc.query, ""); got != tc.want {
			t.Fatalf("CalculationType(%q) = %s, want %s", tc.query, got, tc.want)
		}
	}
}
