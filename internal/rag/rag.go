package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/semanticdb"
)

var (
	errNoMessages = errors.New("no messages")
	errNoResults  = errors.New("results_text_array cannot be empty")
)

// Agent answers the latest user message with retrieved context and cites the
// pages it used.
type Agent struct {
	db       *semanticdb.SemanticDB
	embedder embedding.Provider
	llm      llmservice.Generator
}

func NewAgent(db *semanticdb.SemanticDB, embedder embedding.Provider, llm llmservice.Generator) *Agent {
	return &Agent{db: db, embedder: embedder, llm: llm}
}

// Answer streams the answer as text fragments. Failures are reported in-band
// as a final diagnostic fragment, except for an empty query embedding, which
// ends the answer with no output. Stopping the iteration or cancelling ctx
// closes the backend stream.
func (a *Agent) Answer(ctx context.Context, messages []models.Message, table string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if len(messages) == 0 {
			yield(fmt.Sprintf(models.QueryErrorFormat, errNoMessages))
			return
		}
		query := messages[len(messages)-1].Content

		vector, err := a.embedder.EmbedOne(ctx, query)
		if err != nil {
			log.Error().Err(err).Msg("Error embedding query")
			yield(fmt.Sprintf(models.QueryErrorFormat, err))
			return
		}
		if len(vector) == 0 {
			log.Warn().Msg("Empty query embedding")
			return
		}

		results, err := a.db.Query(ctx, vector, table, models.DefaultSearchLimit)
		if err == nil && len(results) == 0 {
			err = errNoResults
		}
		if err != nil {
			log.Error().Err(err).Str("table", table).Msg("Error fetching sources")
			yield(fmt.Sprintf(models.SourcesErrorFormat, err))
			return
		}
		sources := semanticdb.FormatSources(results)

		texts := make([]string, len(results))
		for i, r := range results {
			texts[i] = r.Text
		}
		prompt := models.RAGPrompt(query, strings.Join(texts, " "))

		if !streamAnswer(ctx, a.llm, prompt, yield) {
			return
		}
		if len(sources) == 0 {
			return
		}
		if !yield(models.ReferencesHeader) {
			return
		}
		for _, s := range sources {
			if !yield(s) {
				return
			}
		}
	}
}

// Chat answers the latest user message directly, without retrieval.
type Chat struct {
	llm llmservice.Generator
}

func NewChat(llm llmservice.Generator) *Chat {
	return &Chat{llm: llm}
}

func (c *Chat) Answer(ctx context.Context, messages []models.Message) iter.Seq[string] {
	return func(yield func(string) bool) {
		if len(messages) == 0 {
			yield(fmt.Sprintf(models.DraftErrorFormat, errNoMessages))
			return
		}
		streamAnswer(ctx, c.llm, messages[len(messages)-1].Content, yield)
	}
}

// streamAnswer forwards generated fragments to yield. It reports whether the
// answer completed normally, so callers may append more.
func streamAnswer(ctx context.Context, llm llmservice.Generator, prompt string, yield func(string) bool) bool {
	stream, err := llm.GenerateStream(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Msg("Error drafting answer")
		yield(fmt.Sprintf(models.DraftErrorFormat, err))
		return false
	}
	defer stream.Close()

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			var derr *models.DecodeError
			if errors.As(err, &derr) {
				log.Warn().Str("chunk", derr.Chunk).Msg("Error decoding response chunk")
				if !yield(fmt.Sprintf(models.DecodeErrorFormat, derr.Chunk)) {
					return false
				}
				continue
			}
			if ctx.Err() != nil {
				log.Debug().Err(ctx.Err()).Msg("Answer cancelled")
				return false
			}
			log.Error().Err(err).Msg("Error drafting answer")
			yield(fmt.Sprintf(models.DraftErrorFormat, err))
			return false
		}
		if fragment == "" {
			continue
		}
		if !yield(fragment) {
			return false
		}
	}
}
