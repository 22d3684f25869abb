package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/filing-qa/internal/infrastructure/resilience"
)

type Options struct {
	BaseURL     string
	GenModel    string
	EmbedModel  string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

type Client struct {
	baseURL    string
	opts       Options
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(opts Options, executor *resilience.Executor) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.LLMPolicy())
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		opts:       opts,
		httpClient: &http.Client{Timeout: opts.Timeout},
		executor:   executor,
	}
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// Model names the embedding model; cache keys depend on it.
func (e *Embedder) Model() string { return "ollama/" + e.client.opts.EmbedModel }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.opts.EmbedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embed: %d vectors for %d texts", len(response.Embeddings), len(texts))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, query string, evidence []domain.EvidencePiece, route domain.RouteDecision) (domain.Generation, error) {
	request := map[string]any{
		"model":  g.client.opts.GenModel,
		"prompt": prompt.BuildAnswer(query, evidence, route),
		"stream": false,
		"options": map[string]any{
			"temperature": g.client.opts.Temperature,
			"num_predict": g.client.opts.MaxTokens,
		},
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.call(ctx, "/api/generate", request, &response, "generate"); err != nil {
		return domain.Generation{}, err
	}
	answer := strings.TrimSpace(response.Response)
	return domain.Generation{Answer: answer, Confidence: prompt.Confidence(answer)}, nil
}

func (c *Client) call(ctx context.Context, path string, payload any, out any, operation string) error {
	err := c.executor.Execute(ctx, "ollama."+operation, func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("ollama "+operation, err, resilience.ClassifyHTTPError)
}
