package embedding

import (
	"context"
	"fmt"
	"sort"

	"github.com/sashabaranov/go-openai"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

const openaiName = "openai"

// NewOpenAIEmbedder embeds through the OpenAI embeddings API, requesting
// vectors of the configured dimension.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai embedder requires an api key", config.ErrInvalidConfig)
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = config.DefaultOpenAIDimension
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts,
			Model:      openai.EmbeddingModel(model),
			Dimensions: dimension,
		})
		if err != nil {
			return nil, models.NewProviderError(openaiName, "embed", err)
		}
		data := resp.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		vectors := make([][]float32, len(data))
		for i, d := range data {
			vectors[i] = d.Embedding
		}
		return vectors, nil
	}
	return newEmbedder(openaiName, dimension, cfg.BatchSize, embed)
}
