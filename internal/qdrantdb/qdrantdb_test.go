package qdrantdb

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

func TestParseAddress(t *testing.T) {
	cfg, err := ParseAddress("qdrant://vectors.internal:7000?tls=true")
	require.NoError(t, err)
	assert.Equal(t, "vectors.internal", cfg.Host)
	assert.Equal(t, 7000, cfg.Port)
	assert.True(t, cfg.UseTLS)

	cfg, err = ParseAddress("qdrant://")
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.False(t, cfg.UseTLS)

	_, err = ParseAddress("qdrant://host:notaport")
	assert.Error(t, err)
}

// TestQdrantStore runs against the server named by PDF_RAG_TEST_QDRANT_ADDR,
// for example qdrant://localhost:6334.
func TestQdrantStore(t *testing.T) {
	addr := os.Getenv("PDF_RAG_TEST_QDRANT_ADDR")
	if addr == "" {
		t.Skip("PDF_RAG_TEST_QDRANT_ADDR not set, skipping qdrant integration test")
	}
	ctx := context.Background()
	s, err := Open(config.StoreConfig{Path: addr})
	require.NoError(t, err)
	table := fmt.Sprintf("pdf-rag-test-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		_ = s.DeleteTable(context.Background(), table)
		_ = s.Close()
	})

	_, err = s.Search(ctx, table, []float32{1, 0, 0}, 4)
	require.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.CreateOrOpenTable(ctx, table, 3))
	require.NoError(t, s.CreateOrOpenTable(ctx, table, 3))
	assert.ErrorIs(t, s.CreateOrOpenTable(ctx, table, 4), models.ErrSchemaMismatch)

	chunk := func(fileID string, page int, text string, v ...float32) models.EmbeddedChunk {
		return models.EmbeddedChunk{
			Chunk:  models.Chunk{Text: text, FileName: fileID + ".pdf", FileID: fileID, PageIndex: page},
			Vector: v,
		}
	}
	require.NoError(t, s.Upsert(ctx, table, []models.EmbeddedChunk{
		chunk("a", 1, "x axis page", 1, 0, 0),
		chunk("a", 2, "y axis page", 0, 1, 0),
		chunk("b", 3, "z axis page", 0, 0, 1),
	}))

	res, err := s.Search(ctx, table, []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "x axis page", res[0].Text)
	assert.Equal(t, 1, res[0].PageIndex)
	assert.InDelta(t, 0, res[0].Distance, 1e-4)

	require.NoError(t, s.DeleteByFileID(ctx, table, "a"))
	res, err = s.Search(ctx, table, []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].FileID)
	assert.Equal(t, 3, res[0].PageIndex)
}
