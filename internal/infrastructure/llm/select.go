// Package llm selects the generator and embedder backends.
package llm

import (
	"errors"
	"fmt"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
	"github.com/kirillkom/filing-qa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/filing-qa/internal/infrastructure/llm/openai"
	"github.com/kirillkom/filing-qa/internal/infrastructure/resilience"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Selection struct {
	UseOllama bool
	UseOpenAI bool
	Ollama    ollama.Options
	OpenAI    openai.Options
	Executor  *resilience.Executor
}

// Backend returns the single enabled generation backend.
func (s Selection) Backend() (string, error) {
	switch {
	case s.UseOllama && s.UseOpenAI:
		return "", domain.WrapError(domain.ErrConfig, "select generator", errors.New("USE_OLLAMA and USE_OPENAI are both set"))
	case s.UseOllama:
		return ProviderOllama, nil
	case s.UseOpenAI:
		if s.OpenAI.APIKey == "" && s.OpenAI.BaseURL == "" {
			return "", domain.WrapError(domain.ErrConfig, "select generator", errors.New("OPENAI_API_KEY is required"))
		}
		return ProviderOpenAI, nil
	default:
		return "", domain.WrapError(domain.ErrConfig, "select generator", errors.New("one of USE_OLLAMA or USE_OPENAI must be set"))
	}
}

func NewGenerator(sel Selection) (ports.Generator, error) {
	backend, err := sel.Backend()
	if err != nil {
		return nil, err
	}
	if backend == ProviderOpenAI {
		return openai.NewGenerator(openai.New(sel.OpenAI, sel.Executor)), nil
	}
	return ollama.NewGenerator(ollama.New(sel.Ollama, sel.Executor)), nil
}

// Embedder is an embedder that names its model.
type Embedder interface {
	ports.Embedder
	Model() string
}

// NewEmbedder picks the embedding backend independently of the generator.
func NewEmbedder(provider string, sel Selection) (Embedder, error) {
	switch provider {
	case "", ProviderOllama:
		return ollama.NewEmbedder(ollama.New(sel.Ollama, sel.Executor)), nil
	case ProviderOpenAI:
		return openai.NewEmbedder(openai.New(sel.OpenAI, sel.Executor)), nil
	default:
		return nil, domain.WrapError(domain.ErrConfig, "select embedder", fmt.Errorf("unknown provider %q", provider))
	}
}
