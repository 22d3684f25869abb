package usecase

import (
	"testing"

	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/domain"
)

func TestQueryRouterTableCentricThreshold(t *testing.T) {
	router := NewQueryRouter(config.DefaultKeywords())

	cases := []struct {
		name      string
		query     string
		wantTable bool
		wantMath  bool
		wantType  domain.QueryType
	}{
		{
			name:      "two table keywords with math",
			query:     "What was the revenue change year-over-year?",
			wantTable: true,
			wantMath:  true,
			wantType:  domain.QueryNumericTable,
		},
		{
			name:     "single table keyword",
			query:    "Describe the revenue recognition policy",
			wantType: domain.QueryNarrative,
		},
		{
			name:      "table lookup",
			query:     "Total debt at the end of fiscal year?",
			wantTable: true,
			wantType:  domain.QueryTableLookup,
		},
		{
			name:     "math without table context",
			query:    "How did headcount increase?",
			wantMath: true,
			wantType: domain.QueryNumericText,
		},
		{
			name:     "empty",
			query:    "",
			wantType: domain.QueryNarrative,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := router.Route(tc.query)
			if got.IsTableCentric != tc.wantTable {
				t.Fatalf("IsTableCentric = %v, want %v", got.IsTableCentric, tc.wantTable)
			}
			if got.RequiresMath != tc.wantMath {
				t.Fatalf("RequiresMath = %v, want %v", got.RequiresMath, tc.wantMath)
			}
			if got.QueryType != tc.wantType {
				t.Fatalf("QueryType = %s, want %s", got.QueryType, tc.wantType)
			}
		})
	}
}

func TestQueryRouterConfidence(t *testing.T) {
	router := NewQueryRouter(config.DefaultKeywords())

	if got := router.Route("Revenue versus expense in 2023").Confidence; got != 0.8 {
		t.Fatalf("expected table-centric confidence 0.8, got %f", got)
	}
	if got := router.Route("Who is the chief executive?").Confidence; got != 0.6 {
		t.Fatalf("expected default confidence 0.6, got %f", got)
	}
}

func TestQueryRouterCountsDistinctKeywordsCaseInsensitive(t *testing.T) {
	router := NewQueryRouter(config.Keywords{Table: []string{"Revenue", "revenue", "margin"}})

	if router.Route("REVENUE and revenue again").IsTableCentric {
		t.Fatalf("repeated keyword must count once")
	}
	if !router.Route("Revenue and Margin").IsTableCentric {
		t.Fatalf("expected two distinct keywords to be table-centric")
	}
}
