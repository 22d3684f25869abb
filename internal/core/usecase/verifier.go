package usecase

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/domain"
)

const DefaultVerifierTolerance = 0.01

var numberPattern = regexp.MustCompile(`(?i)-?\d+(?:,\d{3})*(?:\.\d+)?(?:\s*(billion|million|thousand)s?\b|([mb])\b)?`)

// MathVerifier reconciles the first number of an answer against values
// derivable from table evidence.
type MathVerifier struct {
	tolerance       float64
	differenceWords []string
	ratioWords      []string
	percentWords    []string
}

func NewMathVerifier(kw config.Keywords, tolerance float64) *MathVerifier {
	if tolerance <= 0 {
		tolerance = DefaultVerifierTolerance
	}
	return &MathVerifier{
		tolerance:       tolerance,
		differenceWords: normalizeKeywords(kw.Difference),
		ratioWords:      normalizeKeywords(kw.Ratio),
		percentWords:    normalizeKeywords(kw.Percentage),
	}
}

func (v *MathVerifier) Verify(answer string, evidence []domain.EvidencePiece, query string) domain.Verdict {
	answerNumbers := ExtractNumbers(answer)
	if len(answerNumbers) == 0 {
		return domain.Verdict{
			Status:  domain.VerificationNoNumbers,
			Message: "no numbers found in answer",
		}
	}

	var evidenceNumbers []float64
	for _, piece := range evidence {
		if piece.Metadata.ContentType != domain.ContentTable {
			continue
		}
		evidenceNumbers = append(evidenceNumbers, ExtractNumbers(piece.Content)...)
	}

	calc := v.CalculationType(query, answer)
	target := answerNumbers[0]

	var ok bool
	switch calc {
	case domain.CalcDifference:
		ok = v.checkDifference(target, evidenceNumbers)
	case domain.CalcRatio:
		ok = v.checkRatio(target, evidenceNumbers)
	case domain.CalcPercentage:
		ok = v.checkPercentage(target, evidenceNumbers)
	default:
		ok = v.checkLookup(answerNumbers, evidenceNumbers)
	}

	if ok {
		return domain.Verdict{
			Status:          domain.VerificationVerified,
			Message:         fmt.Sprintf("%s of %s matches evidence within %.2f%%", calc, formatNumber(target), v.tolerance*100),
			CalculationType: calc,
		}
	}
	return domain.Verdict{
		Status:          domain.VerificationFailed,
		Message:         fmt.Sprintf("%s of %s not derivable from %d evidence numbers", calc, formatNumber(target), len(evidenceNumbers)),
		CalculationType: calc,
	}
}

// CalculationType infers the arithmetic an answer claims, in priority
// order difference, ratio, percentage, lookup.
func (v *MathVerifier) CalculationType(query, answer string) domain.CalculationType {
	text := strings.ToLower(query + " " + answer)
	switch {
	case containsAnyPhrase(text, v.differenceWords):
		return domain.CalcDifference
	case containsAnyPhrase(text, v.ratioWords):
		return domain.CalcRatio
	case containsAnyPhrase(text, v.percentWords):
		return domain.CalcPercentage
	default:
		return domain.CalcLookup
	}
}

func (v *MathVerifier) checkDifference(target float64, nums []float64) bool {
	for i := 0; i < len(nums); i++ {
		for j := i + 1; j < len(nums); j++ {
			if v.matches(target, math.Abs(nums[i]-nums[j])) {
				return true
			}
		}
	}
	return false
}

func (v *MathVerifier) checkRatio(target float64, nums []float64) bool {
	for i := range nums {
		for j := range nums {
			if i == j || nums[j] == 0 {
				continue
			}
			if v.matches(target, nums[i]/nums[j]) {
				return true
			}
		}
	}
	return false
}

func (v *MathVerifier) checkPercentage(target float64, nums []float64) bool {
	for i := range nums {
		for j := range nums {
			if i == j || nums[j] == 0 {
				continue
			}
			if v.matches(target, (nums[i]-nums[j])/nums[j]*100) {
				return true
			}
		}
	}
	return false
}

func (v *MathVerifier) checkLookup(answerNumbers, evidenceNumbers []float64) bool {
	for _, a := range answerNumbers {
		found := false
		for _, e := range evidenceNumbers {
			if v.matches(a, e) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// matches applies the relative tolerance with b as the reference value.
func (v *MathVerifier) matches(a, b float64) bool {
	if b == 0 {
		return math.Abs(a) < v.tolerance
	}
	return math.Abs(a-b)/math.Abs(b) < v.tolerance
}

// ExtractNumbers returns every numeric token in text with magnitude
// suffixes applied (M/million, B/billion, thousand, plurals included).
// Commas are read as thousands separators, so "100,200" is one number.
func ExtractNumbers(text string) []float64 {
	locs := numberPattern.FindAllStringSubmatchIndex(text, -1)
	out := make([]float64, 0, len(locs))
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		token := text[start:end]
		if token[0] == '-' && start > 0 && isWordRune(text[start-1]) {
			token = token[1:]
		}

		digits := token
		multiplier := 1.0
		var unit string
		switch {
		case loc[2] >= 0:
			unit = strings.ToLower(text[loc[2]:loc[3]])
			digits = token[:len(token)-(end-loc[2])]
		case loc[4] >= 0:
			unit = strings.ToLower(text[loc[4]:loc[5]])
			digits = token[:len(token)-1]
		}
		switch unit {
		case "billion", "b":
			multiplier = 1e9
		case "million", "m":
			multiplier = 1e6
		case "thousand":
			multiplier = 1e3
		}

		digits = strings.ReplaceAll(strings.TrimSpace(digits), ",", "")
		value, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			continue
		}
		out = append(out, value*multiplier)
	}
	return out
}

func isWordRune(b byte) bool {
	r := rune(b)
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// containsAnyPhrase matches alphanumeric keywords on word boundaries and
// symbolic keywords such as "%" as plain substrings.
func containsAnyPhrase(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}

func containsPhrase(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	if !strings.ContainsFunc(phrase, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) {
		return strings.Contains(text, phrase)
	}
	for offset := 0; offset < len(text); {
		idx := strings.Index(text[offset:], phrase)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(phrase)
		leftOK := start == 0 || !isWordRune(text[start-1])
		rightOK := end == len(text) || !isWordRune(text[end])
		if leftOK && rightOK {
			return true
		}
		offset = start + 1
	}
	return false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
