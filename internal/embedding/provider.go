package embedding

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

// Provider turns texts into fixed-length vectors.
type Provider interface {
	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Embedder batches texts through a langchaingo embedder and checks that every
// batch comes back complete.
type Embedder struct {
	name      string
	dimension int
	impl      *embeddings.EmbedderImpl
}

var _ Provider = (*Embedder)(nil)

// New builds the provider selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Provider, error) {
	log.Debug().
		Str("provider", string(cfg.Provider)).
		Str("model", cfg.Model).
		Int("dimension", cfg.Dimension).
		Int("batch_size", cfg.BatchSize).
		Msg("Creating embedder")

	switch cfg.Provider {
	case config.EmbeddingOllama:
		return NewOllamaEmbedder(cfg)
	case config.EmbeddingOpenAI:
		return NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", config.ErrInvalidConfig, cfg.Provider)
	}
}

func newEmbedder(name string, dimension, batchSize int, embed embeddings.EmbedderClientFunc) (*Embedder, error) {
	if batchSize <= 0 {
		batchSize = config.DefaultEmbedBatchSize
	}
	client := embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		vectors, err := embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, models.NewProviderError(name, "embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
		}
		return vectors, nil
	})
	impl, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s embedder: %w", name, err)
	}
	return &Embedder{name: name, dimension: dimension, impl: impl}, nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := e.impl.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, models.NewProviderError(e.name, "embed", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}
	return vectors, nil
}

// EmbedOne embeds a single text. A backend that returns no vector yields an
// empty one.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return []float32{}, nil
	}
	return vectors[0], nil
}

func (e *Embedder) Dimension() int {
	return e.dimension
}

func (e *Embedder) Name() string {
	return e.name
}
