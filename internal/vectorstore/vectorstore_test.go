package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

func TestOpenLocalDirectory(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db_semantic")

	s, err := Open(ctx, config.StoreConfig{Path: dir})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &chromemdb.VectorDBManager{}, s)
	assert.DirExists(t, dir)

	require.NoError(t, s.CreateOrOpenTable(ctx, models.DefaultTable, 2))
	require.NoError(t, s.Upsert(ctx, models.DefaultTable, []models.EmbeddedChunk{{
		Chunk:  models.Chunk{Text: "hello page", FileName: "a.pdf", FileID: "a", PageIndex: 1},
		Vector: []float32{1, 0},
	}}))

	res, err := s.Search(ctx, models.DefaultTable, []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "hello page", res[0].Text)
}

func TestOpenFileURL(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), config.StoreConfig{Path: "file://" + dir})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &chromemdb.VectorDBManager{}, s)
}
