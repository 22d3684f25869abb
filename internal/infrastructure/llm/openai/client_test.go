package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/infrastructure/resilience"
)

func newTestClient(url string) *Client {
	return New(Options{APIKey: "test-key", BaseURL: url, GenModel: "gpt-4", EmbedModel: "text-embedding-3-small", MaxTokens: 256},
		resilience.NewExecutor(resilience.Policy{Dependency: "openai", Retry: resilience.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond}, Breaker: resilience.BreakerPolicy{Disabled: true}}))
}

func TestGeneratorSendsSystemAndEvidencePrompt(t *testing.T) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Debt was 40 per Section Liquidity."}}]}`))
	}))
	defer server.Close()

	gen, err := NewGenerator(newTestClient(server.URL)).Generate(context.Background(), "What was total debt?",
		[]domain.EvidencePiece{{Content: "Total debt: 40"}}, domain.RouteDecision{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if gen.Confidence != 0.8 {
		t.Fatalf("expected cited answer confidence, got %v", gen.Confidence)
	}
	if req.Model != "gpt-4" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Fatalf("unexpected request %+v", req)
	}
	if !strings.Contains(req.Messages[1].Content, "Total debt: 40") {
		t.Fatalf("expected evidence in user prompt")
	}
}

func TestEmbedderOrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0.3,0.4]},
			{"object":"embedding","index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer server.Close()

	vectors, err := NewEmbedder(newTestClient(server.URL)).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if vectors[0][0] != 0.1 || vectors[1][0] != 0.3 {
		t.Fatalf("expected vectors in input order, got %v", vectors)
	}
}

func TestClientMapsAPIErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer server.Close()

	_, err := NewEmbedder(newTestClient(server.URL)).EmbedQuery(context.Background(), "a")
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected throttling to be temporary, got %v", err)
	}
	var statusErr *resilience.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected status error, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
}
