package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/semanticdb"
	"pdf-rag/internal/vectorstore"
)

// app holds the components shared by the subcommands.
type app struct {
	embedder embedding.Provider
	store    vectorstore.Store
	db       *semanticdb.SemanticDB
	llm      llmservice.Generator
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	llm, err := llmservice.New(cfg.Generation)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	store, err := vectorstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	log.Info().
		Str("store", cfg.Store.Path).
		Str("embedding", string(cfg.Embedding.Provider)).
		Str("generation", string(cfg.Generation.Provider)).
		Msg("Components ready")

	return &app{
		embedder: embedder,
		store:    store,
		db:       semanticdb.New(embedder, store, semanticdb.WithMinChunkLength(*cfg.Ingest.MinChunkLength)),
		llm:      llm,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing vector store")
	}
}
