package llmservice

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

const ollamaName = "ollama"

type OllamaGenerator struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaGenerator streams from an Ollama generate endpoint. A zero
// cfg.Timeout leaves requests bounded only by their context.
func NewOllamaGenerator(cfg config.GenerationConfig) *OllamaGenerator {
	url := cfg.GenerateURL
	if url == "" {
		url = config.DefaultGenerateURL
	}
	model := cfg.Model
	if model == "" {
		model = config.DefaultOllamaGenerateModel
	}
	return &OllamaGenerator{
		url:    url,
		model:  model,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateChunk struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (g *OllamaGenerator) GenerateStream(ctx context.Context, prompt string) (Stream, error) {
	jsonData, err := json.Marshal(generateRequest{Model: g.model, Prompt: prompt})
	if err != nil {
		return nil, models.NewProviderError(ollamaName, "marshal request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, models.NewProviderError(ollamaName, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, models.NewProviderError(ollamaName, "generate", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, models.NewProviderError(ollamaName, "generate",
			fmt.Errorf("request failed: %d, %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}
	log.Debug().Str("model", g.model).Int("prompt_len", len(prompt)).Msg("Started generation stream")
	return &ollamaStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}, nil
}

// ollamaStream reads the newline-delimited JSON body of a generate call to
// EOF, yielding the response field of every line.
type ollamaStream struct {
	body      io.ReadCloser
	reader    *bufio.Reader
	done      bool
	closeOnce sync.Once
	closeErr  error
}

func (s *ollamaStream) Recv() (string, error) {
	for {
		if s.done {
			return "", io.EOF
		}
		line, err := s.reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			var chunk generateChunk
			if jerr := json.Unmarshal([]byte(line), &chunk); jerr != nil {
				return "", &models.DecodeError{Chunk: line, Err: jerr}
			}
			if chunk.Error != "" {
				s.done = true
				return "", models.NewProviderError(ollamaName, "generate", errors.New(chunk.Error))
			}
			return chunk.Response, nil
		}
		if err != nil {
			s.done = true
			if errors.Is(err, io.EOF) {
				return "", io.EOF
			}
			return "", models.NewProviderError(ollamaName, "read stream", err)
		}
	}
}

func (s *ollamaStream) Close() error {
	s.closeOnce.Do(func() {
		s.done = true
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
