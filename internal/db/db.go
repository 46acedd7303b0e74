package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

// ChunkRow is one stored chunk. The table name is supplied per query.
type ChunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            string          `bun:"id,pk"`
	Text          string          `bun:"text,notnull"`
	FileName      string          `bun:"file_name,notnull"`
	FileID        string          `bun:"file_id,notnull"`
	PageLabel     string          `bun:"page_label,notnull"`
	PageIndex     int             `bun:"page_index,notnull"`
	Vector        pgvector.Vector `bun:"vector,notnull"`
	Distance      float64         `bun:"distance,scanonly"`
}

// Store keeps every table in Postgres with a pgvector column.
type Store struct {
	db *bun.DB

	mu   sync.RWMutex
	dims map[string]int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

func ConnectDB(dsn string) *sql.DB {
	return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
}

// Open connects to the database at cfg.Path and checks it is reachable.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	db := NewDB(ConnectDB(cfg.Path), cfg.Debug)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return NewStore(db), nil
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db, dims: make(map[string]int)}
}

// quoteIdent renders name as a quoted identifier for regclass lookups.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// tableDimension reads the declared vector(n) size of the table.
func (s *Store) tableDimension(ctx context.Context, table string) (int, error) {
	s.mu.RLock()
	dim, ok := s.dims[table]
	s.mu.RUnlock()
	if ok {
		return dim, nil
	}

	err := s.db.NewRaw(
		`SELECT a.atttypmod FROM pg_attribute a
		WHERE a.attrelid = to_regclass(?) AND a.attname = 'vector' AND NOT a.attisdropped`,
		quoteIdent(table),
	).Scan(ctx, &dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", models.ErrNotFound, table)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema of %s: %w", table, err)
	}

	s.mu.Lock()
	s.dims[table] = dim
	s.mu.Unlock()
	return dim, nil
}

func (s *Store) CreateOrOpenTable(ctx context.Context, name string, dimension int) error {
	dim, err := s.tableDimension(ctx, name)
	switch {
	case err == nil:
		if dim != dimension {
			return fmt.Errorf("%w: table %s has dimension %d, got %d", models.ErrSchemaMismatch, name, dim, dimension)
		}
		return nil
	case !errors.Is(err, models.ErrNotFound):
		return err
	}

	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ? (
		id text PRIMARY KEY,
		text text NOT NULL,
		file_name text NOT NULL,
		file_id text NOT NULL,
		page_label text NOT NULL DEFAULT '',
		page_index integer NOT NULL,
		vector vector(?) NOT NULL
	)`, bun.Ident(name), dimension)
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS ? ON ? (file_id)",
		bun.Ident(name+"_file_id_idx"), bun.Ident(name)); err != nil {
		return fmt.Errorf("failed to index table %s: %w", name, err)
	}

	// a concurrent creator may have won with another dimension
	s.mu.Lock()
	delete(s.dims, name)
	s.mu.Unlock()
	dim, err = s.tableDimension(ctx, name)
	if err != nil {
		return err
	}
	if dim != dimension {
		return fmt.Errorf("%w: table %s has dimension %d, got %d", models.ErrSchemaMismatch, name, dim, dimension)
	}
	log.Info().Str("table", name).Int("dimension", dimension).Msg("Created table")
	return nil
}

func (s *Store) Upsert(ctx context.Context, table string, chunks []models.EmbeddedChunk) error {
	dim, err := s.tableDimension(ctx, table)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]ChunkRow, len(chunks))
	for i, ch := range chunks {
		if len(ch.Vector) != dim {
			return fmt.Errorf("%w: table %s has dimension %d, got %d", models.ErrSchemaMismatch, table, dim, len(ch.Vector))
		}
		rows[i] = ChunkRow{
			ID:        uuid.NewString(),
			Text:      ch.Text,
			FileName:  ch.FileName,
			FileID:    ch.FileID,
			PageLabel: ch.PageLabel,
			PageIndex: ch.PageIndex,
			Vector:    pgvector.NewVector(ch.Vector),
		}
	}
	if _, err := s.db.NewInsert().Model(&rows).ModelTableExpr("?", bun.Ident(table)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert chunks into %s: %w", table, err)
	}
	log.Debug().Str("table", table).Int("count", len(rows)).Msg("Upserted chunks")
	return nil
}

func (s *Store) DeleteByFileID(ctx context.Context, table, fileID string) error {
	if _, err := s.tableDimension(ctx, table); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM ? WHERE file_id = ?", bun.Ident(table), fileID)
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	n, _ := res.RowsAffected()
	log.Debug().Str("table", table).Str("file_id", fileID).Int64("deleted", n).Msg("Deleted chunks")
	return nil
}

// Search orders by cosine distance.
func (s *Store) Search(ctx context.Context, table string, vector []float32, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	dim, err := s.tableDimension(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: table %s has dimension %d, got %d", models.ErrSchemaMismatch, table, dim, len(vector))
	}

	var rows []ChunkRow
	err = s.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS c", bun.Ident(table)).
		Column("id", "text", "file_name", "file_id", "page_label", "page_index", "vector").
		ColumnExpr("c.vector <=> ? AS distance", pgvector.NewVector(vector)).
		OrderExpr("distance").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", table, err)
	}

	results := make([]models.SearchResult, len(rows))
	for i, r := range rows {
		results[i] = models.SearchResult{
			EmbeddedChunk: models.EmbeddedChunk{
				Chunk: models.Chunk{
					Text:      r.Text,
					FileName:  r.FileName,
					FileID:    r.FileID,
					PageLabel: r.PageLabel,
					PageIndex: r.PageIndex,
				},
				Vector: r.Vector.Slice(),
			},
			Distance: float32(r.Distance),
		}
	}
	return results, nil
}

// DeleteTable removes the table if it exists.
func (s *Store) DeleteTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS ?", bun.Ident(table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	s.mu.Lock()
	delete(s.dims, table)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
