package llmservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

const openaiName = "openai"

type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator streams chat completions from an OpenAI compatible API.
func NewOpenAIGenerator(cfg config.GenerationConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai generator requires an api key", config.ErrInvalidConfig)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	model := cfg.Model
	if model == "" {
		model = config.DefaultOpenAIGenerateModel
	}
	return &OpenAIGenerator{client: openai.NewClientWithConfig(clientCfg), model: model}, nil
}

func (g *OpenAIGenerator) GenerateStream(ctx context.Context, prompt string) (Stream, error) {
	stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	})
	if err != nil {
		return nil, models.NewProviderError(openaiName, "generate", err)
	}
	return &openaiStream{stream: stream}, nil
}

type openaiStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openaiStream) Recv() (string, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return "", io.EOF
	}
	if err != nil {
		return "", models.NewProviderError(openaiName, "read stream", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}
