package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Policy{
		Dependency: "ollama",
		Retry:      resilience.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond},
		Breaker:    resilience.BreakerPolicy{Disabled: true},
	})
}

func TestGeneratorBuildsEvidencePrompt(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":" Revenue was 100 (Table T1, Row 0). "}`))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, GenModel: "llama3.2", Temperature: 0.1, MaxTokens: 512}, testExecutor())
	row := 0
	gen, err := NewGenerator(client).Generate(context.Background(), "question?", []domain.EvidencePiece{{
		Content:  "Revenue: 100",
		Metadata: domain.UnitMetadata{Ticker: "ACME", FiscalYear: 2023, ContentType: domain.ContentTable, TableID: "T1", RowIdx: &row},
	}}, domain.RouteDecision{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Answer != "Revenue was 100 (Table T1, Row 0)." || gen.Confidence != 0.8 {
		t.Fatalf("unexpected generation %+v", gen)
	}
	prompt, _ := payload["prompt"].(string)
	if !strings.Contains(prompt, "question?") || !strings.Contains(prompt, "[TABLE] ACME 2023 - Table T1, Row 0") {
		t.Fatalf("unexpected prompt: %s", prompt)
	}
	options, _ := payload["options"].(map[string]any)
	if options["num_predict"] != float64(512) {
		t.Fatalf("expected max tokens forwarded, got %v", options)
	}
}

func TestEmbedRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	vectors, err := NewEmbedder(New(Options{BaseURL: server.URL, EmbedModel: "nomic"}, testExecutor())).
		Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || calls.Load() != 2 {
		t.Fatalf("expected retry then success, got %d vectors after %d calls", len(vectors), calls.Load())
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(Options{BaseURL: server.URL, EmbedModel: "nomic"}, testExecutor()))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected 502 to be temporary, got %v", err)
	}
}

func TestEmbedRejectsShortResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.1]]}`))
	}))
	defer server.Close()

	_, err := NewEmbedder(New(Options{BaseURL: server.URL}, testExecutor())).Embed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatalf("expected mismatch error")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	vectors, err := NewEmbedder(New(Options{BaseURL: "http://127.0.0.1:1"}, testExecutor())).Embed(context.Background(), nil)
	if err != nil || len(vectors) != 0 {
		t.Fatalf("expected empty result without a request, got %v, %v", vectors, err)
	}
}
