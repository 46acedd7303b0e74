package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

const (
	ollamaName          = "ollama"
	ollamaEmbedEndpoint = "/api/embed"
)

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

type ollamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaEmbedder embeds through a local Ollama server.
func NewOllamaEmbedder(cfg config.EmbeddingConfig) (*Embedder, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultOllamaBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultOllamaEmbedModel
	}
	dimension := cfg.Dimension
	if dimension <= 0 {
		dimension = config.DefaultOllamaDimension
	}
	c := &ollamaClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: http.DefaultClient,
	}
	return newEmbedder(ollamaName, dimension, cfg.BatchSize, c.embed)
}

func (c *ollamaClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, models.NewProviderError(ollamaName, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ollamaEmbedEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, models.NewProviderError(ollamaName, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewProviderError(ollamaName, "send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, models.NewProviderError(ollamaName, "embed",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, models.NewProviderError(ollamaName, "decode response", err)
	}
	if out.Error != "" {
		return nil, models.NewProviderError(ollamaName, "embed", fmt.Errorf("%s", out.Error))
	}
	return out.Embeddings, nil
}
