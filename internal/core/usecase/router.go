package usecase

import (
	"strings"

	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/domain"
)

const (
	tableCentricMinMatches = 2
	tableCentricConfidence = 0.8
	defaultRouteConfidence = 0.6
)

// QueryRouter classifies questions by keyword heuristics.
type QueryRouter struct {
	tableKeywords []string
	mathKeywords  []string
}

func NewQueryRouter(kw config.Keywords) *QueryRouter {
	return &QueryRouter{
		tableKeywords: normalizeKeywords(kw.Table),
		mathKeywords:  normalizeKeywords(kw.Math),
	}
}

func (r *QueryRouter) Route(query string) domain.RouteDecision {
	q := strings.ToLower(query)

	matches := 0
	for _, kw := range r.tableKeywords {
		if strings.Contains(q, kw) {
			matches++
		}
	}
	isTable := matches >= tableCentricMinMatches

	requiresMath := false
	for _, kw := range r.mathKeywords {
		if strings.Contains(q, kw) {
			requiresMath = true
			break
		}
	}

	decision := domain.RouteDecision{
		IsTableCentric: isTable,
		RequiresMath:   requiresMath,
		Confidence:     defaultRouteConfidence,
	}
	if isTable {
		decision.Confidence = tableCentricConfidence
	}

	switch {
	case isTable && requiresMath:
		decision.QueryType = domain.QueryNumericTable
	case isTable:
		decision.QueryType = domain.QueryTableLookup
	case requiresMath:
		decision.QueryType = domain.QueryNumericText
	default:
		decision.QueryType = domain.QueryNarrative
	}
	return decision
}

// normalizeKeywords lowercases and drops blanks and duplicates so that
// matches count distinct keywords.
func normalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
