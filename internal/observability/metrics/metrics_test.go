package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	raw, _ := io.ReadAll(rec.Body)
	return string(raw)
}

func TestHTTPMiddlewareRecordsStatus(t *testing.T) {
	m := NewHTTPServerMetrics("filing-api")
	h := m.Middleware("filing-api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/query", nil))

	body := scrape(t, m.Handler())
	if !strings.Contains(body, `filingqa_http_requests_total{method="POST",path="/v1/query",service="filing-api",status="418"} 1`) {
		t.Fatalf("missing request counter:\n%s", body)
	}
}

func TestPipelineMetricsShareRegistry(t *testing.T) {
	m := NewHTTPServerMetrics("filing-api")
	p := NewPipelineMetrics(m.Registry(), "filing-api")

	p.ObserveRoute(domain.RouteDecision{QueryType: domain.QueryNumericTable, IsTableCentric: true})
	p.ObserveTableFallback()
	p.ObserveRetrieval(domain.CorpusText, 12*time.Millisecond, 4)
	p.ObserveVerification(domain.VerificationVerified)
	p.ObserveIndexBuild(domain.IndexBuild{Corpus: domain.CorpusTables, Kind: "hnsw", Size: 42}, time.Second)
	p.ObserveRebuildFailure("embed")
	p.ObserveRetry("llm", "generate")
	p.ObserveBreakerState("llm", "generate", "open")

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`filingqa_router_routes_total{query_type="numeric_table",service="filing-api",table_centric="true"} 1`,
		`filingqa_retrieval_table_fallback_total{service="filing-api"} 1`,
		`filingqa_verifier_verifications_total{service="filing-api",status="verified"} 1`,
		`filingqa_index_corpus_size{corpus="tables",service="filing-api"} 42`,
		`filingqa_index_rebuild_failures_total{service="filing-api",stage="embed"} 1`,
		`filingqa_dependency_retries_total{dependency="llm",operation="generate",service="filing-api"} 1`,
		`filingqa_dependency_breaker_open{dependency="llm",operation="generate",service="filing-api"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}
}

func TestWorkerMetricsRebuildStatus(t *testing.T) {
	m := NewWorkerMetrics("filing-worker")
	m.StartRebuild()
	m.FinishRebuild("filing-worker", time.Second, errors.New("boom"))

	body := scrape(t, m.Handler())
	if !strings.Contains(body, `filingqa_worker_ingest_events_total{service="filing-worker",status="error"} 1`) {
		t.Fatalf("missing event counter:\n%s", body)
	}
	if !strings.Contains(body, `filingqa_worker_rebuild_in_flight{service="filing-worker"} 0`) {
		t.Fatalf("expected in-flight gauge back to zero:\n%s", body)
	}
}

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/query":                      "/v1/query",
		"/v1/filings":                    "/v1/filings",
		"/v1/filings/AAPL/2023":          "/v1/filings/{ticker}/{fiscal_year}",
		"/v1/filings/AAPL/2023/workbook": "/v1/filings/{ticker}/{fiscal_year}/workbook",
		"/v1/filings/AAPL/2023/x/y":      "/v1/filings/other",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
