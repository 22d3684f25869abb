// Package evaluation scores answers and retrieval against labelled questions.
package evaluation

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// Normalize lowercases, replaces punctuation with spaces and collapses
// whitespace.
func Normalize(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)
	return strings.Join(strings.Fields(mapped), " ")
}

func ExactMatch(prediction, truth string) float64 {
	if Normalize(prediction) == Normalize(truth) {
		return 1
	}
	return 0
}

// F1 is the token overlap F1 with multiset counts.
func F1(prediction, truth string) float64 {
	pred := strings.Fields(Normalize(prediction))
	gold := strings.Fields(Normalize(truth))
	if len(pred) == 0 || len(gold) == 0 {
		return 0
	}

	counts := make(map[string]int, len(gold))
	for _, t := range gold {
		counts[t]++
	}
	common := 0
	for _, t := range pred {
		if counts[t] > 0 {
			counts[t]--
			common++
		}
	}
	if common == 0 {
		return 0
	}
	precision := float64(common) / float64(len(pred))
	recall := float64(common) / float64(len(gold))
	return 2 * precision * recall / (precision + recall)
}

// RecallAtK is the share of relevant items present in the first k
// retrieved. It never decreases as k grows.
func RecallAtK(retrieved []string, relevant []string, k int) float64 {
	gold := toSet(relevant)
	if len(gold) == 0 || k <= 0 {
		return 0
	}
	if k > len(retrieved) {
		k = len(retrieved)
	}
	hit := make(map[string]struct{}, k)
	for _, item := range retrieved[:k] {
		if _, ok := gold[item]; ok {
			hit[item] = struct{}{}
		}
	}
	return float64(len(hit)) / float64(len(gold))
}

// ReciprocalRank is 1/rank of the first relevant item, 0 if none.
func ReciprocalRank(retrieved []string, relevant []string) float64 {
	gold := toSet(relevant)
	for i, item := range retrieved {
		if _, ok := gold[item]; ok {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// NumericError holds mean absolute and mean absolute percentage error.
// MAPE skips pairs whose truth is zero; MAPECount says how many counted.
type NumericError struct {
	MAE       float64 `json:"mae"`
	MAPE      float64 `json:"mape"`
	MAPECount int     `json:"mape_count"`
}

func MeanErrors(predictions, truth []float64) (NumericError, error) {
	if len(predictions) != len(truth) {
		return NumericError{}, domain.WrapError(domain.ErrInvalidInput, "mean errors",
			fmt.Errorf("%d predictions for %d truths", len(predictions), len(truth)))
	}
	if len(predictions) == 0 {
		return NumericError{}, nil
	}

	var out NumericError
	var absSum, pctSum float64
	for i := range predictions {
		diff := math.Abs(predictions[i] - truth[i])
		absSum += diff
		if truth[i] != 0 {
			pctSum += diff / math.Abs(truth[i])
			out.MAPECount++
		}
	}
	out.MAE = absSum / float64(len(predictions))
	if out.MAPECount > 0 {
		out.MAPE = pctSum / float64(out.MAPECount) * 100
	}
	return out, nil
}

// Faithfulness is the share of distinct answer tokens found in the evidence.
func Faithfulness(answer string, evidence []string) float64 {
	answerTokens := toSet(strings.Fields(Normalize(answer)))
	if len(answerTokens) == 0 {
		return 0
	}
	evidenceTokens := toSet(strings.Fields(Normalize(strings.Join(evidence, " "))))
	supported := 0
	for t := range answerTokens {
		if _, ok := evidenceTokens[t]; ok {
			supported++
		}
	}
	return float64(supported) / float64(len(answerTokens))
}

func toSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[it] = struct{}{}
	}
	return out
}
