// Package embedding turns text into the fixed-dimensional vectors the
// brain stores and searches. Two backends are supported: a local
// Ollama server and Google GenAI.
package embedding

import (
	"context"
	"fmt"
	"time"

	"hivebrain/internal/config"
	"hivebrain/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// NewEngine creates an embedding engine from configuration. The engine
// is wrapped so empty input maps to the zero vector without a provider
// call.
func NewEngine(cfg config.EmbeddingConfig, timeout time.Duration) (Engine, error) {
	log := logging.Get(logging.CategoryEmbedding)

	var (
		engine Engine
		err    error
	)
	switch cfg.Provider {
	case "ollama", "":
		engine, err = NewOllamaEngine(cfg.Endpoint, cfg.Model, timeout)
	case "genai":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama' or 'genai')", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	dims := cfg.Dimensions
	if dims <= 0 {
		dims = engine.Dimensions()
	}
	log.Infow("embedding engine ready", "name", engine.Name(), "dimensions", dims)
	return &zeroShortCircuit{inner: engine, dims: dims}, nil
}

// zeroShortCircuit enforces the empty-input contract: "" embeds to the
// zero vector of dimension D and the provider is never called.
type zeroShortCircuit struct {
	inner Engine
	dims  int
}

func (z *zeroShortCircuit) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, z.dims), nil
	}
	return z.inner.Embed(ctx, text)
}

func (z *zeroShortCircuit) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var nonEmpty []string
	var slots []int
	for i, t := range texts {
		if t == "" {
			out[i] = make([]float32, z.dims)
			continue
		}
		nonEmpty = append(nonEmpty, t)
		slots = append(slots, i)
	}
	if len(nonEmpty) > 0 {
		embedded, err := z.inner.EmbedBatch(ctx, nonEmpty)
		if err != nil {
			return nil, err
		}
		if len(embedded) != len(nonEmpty) {
			return nil, fmt.Errorf("provider returned %d embeddings for %d texts", len(embedded), len(nonEmpty))
		}
		for j, idx := range slots {
			out[idx] = embedded[j]
		}
	}
	return out, nil
}

func (z *zeroShortCircuit) Dimensions() int { return z.dims }
func (z *zeroShortCircuit) Name() string    { return z.inner.Name() }
