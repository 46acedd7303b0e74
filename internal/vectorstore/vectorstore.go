package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/models"
	"pdf-rag/internal/qdrantdb"
)

// Store holds named tables of embedded chunks and answers nearest-neighbour
// queries over them.
type Store interface {
	// CreateOrOpenTable is idempotent. An existing table of another dimension
	// yields models.ErrSchemaMismatch.
	CreateOrOpenTable(ctx context.Context, name string, dimension int) error
	// Upsert appends chunks under fresh ids without deduplication.
	Upsert(ctx context.Context, table string, chunks []models.EmbeddedChunk) error
	DeleteByFileID(ctx context.Context, table, fileID string) error
	// Search returns up to limit chunks, nearest first. limit <= 0 means 4.
	Search(ctx context.Context, table string, vector []float32, limit int) ([]models.SearchResult, error)
	// DeleteTable drops the table and its schema. A missing table is not an error.
	DeleteTable(ctx context.Context, name string) error
	Close() error
}

var (
	_ Store = (*chromemdb.VectorDBManager)(nil)
	_ Store = (*db.Store)(nil)
	_ Store = (*qdrantdb.Store)(nil)
)

// Open picks the backend from the scheme of cfg.Path: postgres for
// postgres:// and postgresql://, qdrant for qdrant://, a local chromem
// directory for plain paths and file://, and a chromem snapshot for any
// other URL.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	scheme := ""
	if i := strings.Index(cfg.Path, "://"); i > 0 {
		scheme = strings.ToLower(cfg.Path[:i])
	}
	log.Debug().Str("scheme", scheme).Msg("Opening vector store")

	switch scheme {
	case "postgres", "postgresql":
		return db.Open(ctx, cfg)
	case "qdrant":
		return qdrantdb.Open(cfg)
	case "", "file":
		dir := cfg.Path
		if scheme == "file" {
			u, err := url.Parse(cfg.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to parse store path %q: %w", cfg.Path, err)
			}
			dir = u.Path
		}
		if err := helper.CreateFolder(dir); err != nil {
			return nil, err
		}
		return chromemdb.NewVectorDBManager(dir, cfg)
	default:
		return chromemdb.NewSnapshotManager(ctx, cfg.Path, cfg)
	}
}
