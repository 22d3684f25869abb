package llm

import (
	"errors"
	"testing"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/filing-qa/internal/infrastructure/llm/openai"
)

func TestNewGeneratorRequiresExactlyOneBackend(t *testing.T) {
	cases := map[string]Selection{
		"none":           {},
		"both":           {UseOllama: true, UseOpenAI: true},
		"openai no auth": {UseOpenAI: true},
	}
	for name, sel := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewGenerator(sel); !errors.Is(err, domain.ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}

func TestNewGeneratorPicksBackend(t *testing.T) {
	gen, err := NewGenerator(Selection{UseOllama: true})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if _, ok := gen.(*ollama.Generator); !ok {
		t.Fatalf("expected ollama generator, got %T", gen)
	}

	gen, err = NewGenerator(Selection{UseOpenAI: true, OpenAI: openai.Options{APIKey: "k"}})
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	if _, ok := gen.(*openai.Generator); !ok {
		t.Fatalf("expected openai generator, got %T", gen)
	}
}

func TestNewEmbedderProviders(t *testing.T) {
	emb, err := NewEmbedder("", Selection{Ollama: ollama.Options{EmbedModel: "nomic-embed-text"}})
	if err != nil || emb.Model() != "ollama/nomic-embed-text" {
		t.Fatalf("unexpected default embedder %v, %v", emb, err)
	}
	if _, err := NewEmbedder("cohere", Selection{}); !errors.Is(err, domain.ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
