package chromemdb

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

func newLocal(t *testing.T) *VectorDBManager {
	t.Helper()
	m, err := NewVectorDBManager(filepath.Join(t.TempDir(), "db"), config.StoreConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func chunk(fileID string, page int, text string, vector ...float32) models.EmbeddedChunk {
	return models.EmbeddedChunk{
		Chunk: models.Chunk{
			Text:      text,
			FileName:  fileID + ".pdf",
			FileID:    fileID,
			PageLabel: "",
			PageIndex: page,
		},
		Vector: vector,
	}
}

func TestCreateOrOpenTableIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)

	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))
	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{chunk("a", 1, "alpha page", 1, 0, 0)}))
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))

	res, err := m.Search(ctx, "docs", []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestCreateOrOpenTableSchemaMismatch(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)

	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))
	err := m.CreateOrOpenTable(ctx, "docs", 4)
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestSchemaMismatchDetectedAfterReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")

	m, err := NewVectorDBManager(dir, config.StoreConfig{})
	require.NoError(t, err)
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))
	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{chunk("a", 1, "alpha page", 1, 0, 0)}))

	reopened, err := NewVectorDBManager(dir, config.StoreConfig{})
	require.NoError(t, err)
	assert.ErrorIs(t, reopened.CreateOrOpenTable(ctx, "docs", 5), models.ErrSchemaMismatch)
	require.NoError(t, reopened.CreateOrOpenTable(ctx, "docs", 3))

	res, err := reopened.Search(ctx, "docs", []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "alpha page", res[0].Text)
}

func TestUpsertAndSearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))

	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{
		chunk("a", 1, "x axis page", 1, 0, 0),
		chunk("a", 2, "y axis page", 0, 1, 0),
		chunk("b", 7, "z axis page", 0, 0, 1),
		chunk("b", 8, "mostly x page", 0.9, 0.1, 0),
		chunk("b", 9, "mostly y page", 0.1, 0.9, 0),
	}))

	res, err := m.Search(ctx, "docs", []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	require.Len(t, res, 4)
	assert.Equal(t, "x axis page", res[0].Text)
	assert.Equal(t, "mostly x page", res[1].Text)
	assert.InDelta(t, 0, res[0].Distance, 1e-5)
	for i := 1; i < len(res); i++ {
		assert.LessOrEqual(t, res[i-1].Distance, res[i].Distance)
	}
	assert.Equal(t, "a", res[0].FileID)
	assert.Equal(t, "a.pdf", res[0].FileName)
	assert.Equal(t, 1, res[0].PageIndex)
	assert.Len(t, res[0].Vector, 3)

	res, err = m.Search(ctx, "docs", []float32{0, 0, 1}, 100)
	require.NoError(t, err)
	assert.Len(t, res, 5)
}

func TestUpsertAppendsDuplicates(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 2))

	c := chunk("a", 1, "same page", 1, 0)
	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{c}))
	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{c}))

	res, err := m.Search(ctx, "docs", []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestDeleteByFileIDIsolation(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 2))
	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{
		chunk("a", 1, "file a page one", 1, 0),
		chunk("a", 2, "file a page two", 1, 0.1),
		chunk("b", 1, "file b page one", 0, 1),
	}))

	require.NoError(t, m.DeleteByFileID(ctx, "docs", "a"))

	res, err := m.Search(ctx, "docs", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "b", res[0].FileID)

	require.NoError(t, m.DeleteByFileID(ctx, "docs", "does-not-exist"))
}

func TestMissingTable(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)

	_, err := m.Search(ctx, "nope", []float32{1}, 4)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, m.DeleteByFileID(ctx, "nope", "a"), models.ErrNotFound)
	assert.ErrorIs(t, m.Upsert(ctx, "nope", []models.EmbeddedChunk{chunk("a", 1, "page", 1)}), models.ErrNotFound)
}

func TestWrongVectorLength(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))
	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{chunk("a", 1, "page", 1, 0, 0)}))

	err := m.Upsert(ctx, "docs", []models.EmbeddedChunk{chunk("a", 2, "page", 1, 0)})
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)

	_, err = m.Search(ctx, "docs", []float32{1, 0}, 4)
	assert.ErrorIs(t, err, models.ErrSchemaMismatch)
}

func TestSearchEmptyTable(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))

	res, err := m.Search(ctx, "docs", []float32{1, 0, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	location := "file://" + t.TempDir()
	cfg := config.StoreConfig{Compress: true, EncryptionKey: "0123456789abcdef0123456789abcdef"}

	m, err := NewSnapshotManager(ctx, location, cfg)
	require.NoError(t, err)
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 2))
	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{
		chunk("a", 1, "kept page", 1, 0),
		chunk("b", 1, "removed page", 0, 1),
	}))
	require.NoError(t, m.DeleteByFileID(ctx, "docs", "b"))

	reopened, err := NewSnapshotManager(ctx, location, cfg)
	require.NoError(t, err)
	res, err := reopened.Search(ctx, "docs", []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "kept page", res[0].Text)
	assert.Equal(t, "a", res[0].FileID)

	_, err = NewSnapshotManager(ctx, location, config.StoreConfig{EncryptionKey: "ffffffffffffffffffffffffffffffff"})
	assert.Error(t, err)
}

func TestSearchDuringConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))
	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{chunk("base", 1, "base page", 1, 0, 0)}))

	var (
		stop     atomic.Bool
		failures atomic.Int64
		firstErr atomic.Value
		wg       sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				if _, err := m.Search(ctx, "docs", []float32{1, 0, 0}, 4); err != nil {
					failures.Add(1)
					firstErr.CompareAndSwap(nil, err.Error())
				}
			}
		}()
	}

	for round := 0; round < 300; round++ {
		fileID := fmt.Sprintf("f%d", round)
		require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{
			chunk(fileID, 1, "first page", 0, 1, 0),
			chunk(fileID, 2, "second page", 0, 0, 1),
			chunk(fileID, 3, "third page", 1, 1, 0),
		}))
		require.NoError(t, m.DeleteByFileID(ctx, "docs", fileID))
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, failures.Load(), "first error: %v", firstErr.Load())
}

func TestDeleteTable(t *testing.T) {
	ctx := context.Background()
	m := newLocal(t)

	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 3))
	require.NoError(t, m.Upsert(ctx, "docs", []models.EmbeddedChunk{chunk("a", 1, "alpha page", 1, 0, 0)}))
	require.NoError(t, m.DeleteTable(ctx, "docs"))

	_, err := m.Search(ctx, "docs", []float32{1, 0, 0}, 4)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// A dropped table can be recreated with another dimension.
	require.NoError(t, m.CreateOrOpenTable(ctx, "docs", 2))
}
