package llmservice

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
)

// Generator starts a streamed completion for a single prompt.
type Generator interface {
	GenerateStream(ctx context.Context, prompt string) (Stream, error)
}

// Stream yields answer fragments. Recv returns io.EOF once the answer is
// complete and a *models.DecodeError for a chunk that could not be decoded,
// after which the stream is still usable. Close releases the backend
// connection and may be called more than once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// New builds the generator selected by cfg.Provider.
func New(cfg config.GenerationConfig) (Generator, error) {
	log.Debug().
		Str("provider", string(cfg.Provider)).
		Str("model", cfg.Model).
		Dur("timeout", cfg.Timeout).
		Msg("Creating generator")

	switch cfg.Provider {
	case config.GenerationOllama:
		return NewOllamaGenerator(cfg), nil
	case config.GenerationOpenAI:
		return NewOpenAIGenerator(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown generation provider %q", config.ErrInvalidConfig, cfg.Provider)
	}
}
