// Package openai talks to OpenAI-compatible chat and embedding APIs.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/infrastructure/llm/prompt"
	"github.com/kirillkom/filing-qa/internal/infrastructure/resilience"
)

type Options struct {
	APIKey      string
	BaseURL     string
	GenModel    string
	EmbedModel  string
	Temperature float64
	MaxTokens   int
}

type Client struct {
	api      *openai.Client
	opts     Options
	executor *resilience.Executor
}

func New(opts Options, executor *resilience.Executor) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.LLMPolicy())
	}
	return &Client{api: openai.NewClientWithConfig(cfg), opts: opts, executor: executor}
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, query string, evidence []domain.EvidencePiece, route domain.RouteDecision) (domain.Generation, error) {
	req := openai.ChatCompletionRequest{
		Model: g.client.opts.GenModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.SystemMessage},
			{Role: openai.ChatMessageRoleUser, Content: prompt.BuildAnswer(query, evidence, route)},
		},
		MaxTokens:   g.client.opts.MaxTokens,
		Temperature: float32(g.client.opts.Temperature),
	}

	var resp openai.ChatCompletionResponse
	err := g.client.run(ctx, "chat", func(ctx context.Context) error {
		var err error
		resp, err = g.client.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return domain.Generation{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.Generation{}, domain.WrapError(domain.ErrExternal, "openai chat", errors.New("no choices returned"))
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	return domain.Generation{Answer: answer, Confidence: prompt.Confidence(answer)}, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Model() string { return "openai/" + e.client.opts.EmbedModel }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          openai.EmbeddingModel(e.client.opts.EmbedModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}

	var resp openai.EmbeddingResponse
	err := e.client.run(ctx, "embed", func(ctx context.Context) error {
		var err error
		resp, err = e.client.api.CreateEmbeddings(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.WrapError(domain.ErrExternal, "openai embed",
			fmt.Errorf("%d vectors for %d texts", len(resp.Data), len(texts)))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *Client) run(ctx context.Context, operation string, fn func(context.Context) error) error {
	err := c.executor.Execute(ctx, "openai."+operation, func(ctx context.Context) error {
		return asStatusError(operation, fn(ctx))
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("openai "+operation, err, resilience.ClassifyHTTPError)
}

// asStatusError maps go-openai API errors onto the shared HTTP status error.
func asStatusError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &resilience.HTTPStatusError{
			Service:    "openai",
			Operation:  operation,
			StatusCode: apiErr.HTTPStatusCode,
			Status:     http.StatusText(apiErr.HTTPStatusCode),
			Body:       apiErr.Message,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &resilience.HTTPStatusError{
			Service:    "openai",
			Operation:  operation,
			StatusCode: reqErr.HTTPStatusCode,
			Status:     http.StatusText(reqErr.HTTPStatusCode),
			Body:       string(reqErr.Body),
		}
	}
	return err
}
