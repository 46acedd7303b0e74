package chromemdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
	_ "github.com/viant/afsc/gs"
	_ "github.com/viant/afsc/s3"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

const snapshotName = "chromem.gob"

// VectorDBManager stores tables as chromem-go collections. A local manager
// persists through chromem itself; a remote manager keeps the DB in memory and
// uploads a gob snapshot after every mutation.
type VectorDBManager struct {
	db            *chromem.DB
	location      string
	compress      bool
	encryptionKey string
	remote        bool
	fs            afs.Service

	mu   sync.RWMutex
	dims map[string]int
}

// NewVectorDBManager opens a chromem DB persisted under the local directory dbPath.
func NewVectorDBManager(dbPath string, cfg config.StoreConfig) (*VectorDBManager, error) {
	db, err := chromem.NewPersistentDB(dbPath, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	log.Debug().Str("path", dbPath).Bool("compress", cfg.Compress).Msg("Opened chromem database")
	return &VectorDBManager{
		db:       db,
		location: dbPath,
		compress: cfg.Compress,
		dims:     make(map[string]int),
	}, nil
}

// NewSnapshotManager opens an in-memory chromem DB backed by a snapshot under
// location, which may be any URL understood by afs (s3://, gs://, mem://, file://).
func NewSnapshotManager(ctx context.Context, location string, cfg config.StoreConfig) (*VectorDBManager, error) {
	m := &VectorDBManager{
		db:            chromem.NewDB(),
		location:      location,
		compress:      cfg.Compress,
		encryptionKey: cfg.EncryptionKey,
		remote:        true,
		fs:            afs.New(),
		dims:          make(map[string]int),
	}
	if err := m.Import(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *VectorDBManager) snapshotURL() string {
	return url.Join(m.location, snapshotName)
}

// Import loads the snapshot if one exists.
func (m *VectorDBManager) Import(ctx context.Context) error {
	URL := m.snapshotURL()
	exists, err := m.fs.Exists(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to check snapshot %s: %w", URL, err)
	}
	if !exists {
		log.Debug().Str("url", URL).Msg("No snapshot found, starting empty")
		return nil
	}
	data, err := m.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to download snapshot %s: %w", URL, err)
	}
	if err := m.db.ImportFromReader(bytes.NewReader(data), m.encryptionKey); err != nil {
		return fmt.Errorf("failed to import database: %w", err)
	}
	log.Debug().Str("url", URL).Int("bytes", len(data)).Msg("Imported snapshot")
	return nil
}

// Export uploads a snapshot of every collection. Callers hold m.mu.
func (m *VectorDBManager) Export(ctx context.Context) error {
	if !m.remote {
		return nil
	}
	var buf bytes.Buffer
	if err := m.db.ExportToWriter(&buf, m.compress, m.encryptionKey); err != nil {
		return fmt.Errorf("failed to export database: %w", err)
	}
	URL := m.snapshotURL()
	if exists, _ := m.fs.Exists(ctx, URL); exists {
		if err := m.fs.Delete(ctx, URL); err != nil {
			return fmt.Errorf("failed to replace snapshot %s: %w", URL, err)
		}
	}
	if err := m.fs.Upload(ctx, URL, file.DefaultFileOsMode, &buf); err != nil {
		return fmt.Errorf("failed to upload snapshot %s: %w", URL, err)
	}
	return nil
}

// noEmbedding keeps chromem from falling back to its default remote embedder.
// Every vector is computed by the caller.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("chromemdb: documents must carry their embedding")
}

func (m *VectorDBManager) collection(name string) (*chromem.Collection, error) {
	c := m.db.GetCollection(name, noEmbedding)
	if c == nil {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	return c, nil
}

// CreateOrOpenTable creates the collection or checks the dimension of an existing one.
func (m *VectorDBManager) CreateOrOpenTable(ctx context.Context, name string, dimension int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c := m.db.GetCollection(name, noEmbedding); c != nil {
		return m.checkDimension(ctx, c, dimension)
	}
	if _, err := m.db.CreateCollection(name, map[string]string{"dimension": strconv.Itoa(dimension)}, noEmbedding); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	m.dims[name] = dimension
	log.Info().Str("table", name).Int("dimension", dimension).Msg("Created table")
	return m.Export(ctx)
}

// checkDimension compares dimension with the table schema. Callers hold m.mu.
func (m *VectorDBManager) checkDimension(ctx context.Context, c *chromem.Collection, dimension int) error {
	if dim, ok := m.dims[c.Name]; ok {
		if dim != dimension {
			return fmt.Errorf("%w: table %s has dimension %d, got %d", models.ErrSchemaMismatch, c.Name, dim, dimension)
		}
		return nil
	}
	if c.Count() == 0 {
		return nil
	}
	probe := make([]float32, dimension)
	for i := range probe {
		probe[i] = 1
	}
	if _, err := c.QueryEmbedding(ctx, probe, 1, nil, nil); err != nil {
		if isLengthMismatch(err) {
			return fmt.Errorf("%w: table %s does not have dimension %d", models.ErrSchemaMismatch, c.Name, dimension)
		}
		return fmt.Errorf("failed to probe table %s: %w", c.Name, err)
	}
	m.dims[c.Name] = dimension
	return nil
}

func isLengthMismatch(err error) bool {
	return strings.Contains(err.Error(), "same length")
}

// Upsert appends the chunks with fresh ids.
func (m *VectorDBManager) Upsert(ctx context.Context, table string, chunks []models.EmbeddedChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(table)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}
	dimension := len(chunks[0].Vector)
	for _, ch := range chunks {
		if len(ch.Vector) != dimension || dimension == 0 {
			return fmt.Errorf("%w: inconsistent vector lengths in upsert", models.ErrSchemaMismatch)
		}
	}
	if err := m.checkDimension(ctx, c, dimension); err != nil {
		return err
	}
	if _, ok := m.dims[table]; !ok {
		m.dims[table] = dimension
	}

	docs := make([]chromem.Document, len(chunks))
	for i, ch := range chunks {
		docs[i] = chromem.Document{
			ID:        uuid.NewString(),
			Content:   ch.Text,
			Metadata:  metadataFor(ch.Chunk),
			Embedding: ch.Vector,
		}
	}
	if err := c.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Str("table", table).Int("count", len(docs)).Msg("Upserted chunks")
	return m.Export(ctx)
}

// DeleteByFileID removes every chunk of the file.
func (m *VectorDBManager) DeleteByFileID(ctx context.Context, table, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.collection(table)
	if err != nil {
		return err
	}
	before := c.Count()
	if err := c.Delete(ctx, map[string]string{models.FieldFileID: fileID}, nil); err != nil {
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	log.Debug().Str("table", table).Str("file_id", fileID).Int("deleted", before-c.Count()).Msg("Deleted chunks")
	return m.Export(ctx)
}

// Search returns up to limit chunks nearest to vector.
func (m *VectorDBManager) Search(ctx context.Context, table string, vector []float32, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	// The count used to clamp limit must not change before the query runs.
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.collection(table)
	if err != nil {
		return nil, err
	}
	dim, known := m.dims[table]
	if known && dim != len(vector) {
		return nil, fmt.Errorf("%w: table %s has dimension %d, got %d", models.ErrSchemaMismatch, table, dim, len(vector))
	}

	if count := c.Count(); limit > count {
		limit = count
	}
	if limit == 0 {
		return []models.SearchResult{}, nil
	}
	res, err := c.QueryEmbedding(ctx, vector, limit, nil, nil)
	if err != nil {
		if isLengthMismatch(err) {
			return nil, fmt.Errorf("%w: query vector has dimension %d", models.ErrSchemaMismatch, len(vector))
		}
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	results := make([]models.SearchResult, 0, len(res))
	for _, r := range res {
		results = append(results, models.SearchResult{
			EmbeddedChunk: models.EmbeddedChunk{
				Chunk:  chunkFrom(r.Content, r.Metadata),
				Vector: r.Embedding,
			},
			Distance: 1 - r.Similarity,
		})
	}
	return results, nil
}

// DeleteTable drops the collection.
func (m *VectorDBManager) DeleteTable(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.db.DeleteCollection(name); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	delete(m.dims, name)
	return m.Export(ctx)
}

func (m *VectorDBManager) Close() error {
	return nil
}

func metadataFor(c models.Chunk) map[string]string {
	return map[string]string{
		models.FieldFileName:  c.FileName,
		models.FieldFileID:    c.FileID,
		models.FieldPageLabel: c.PageLabel,
		models.FieldPageIndex: strconv.Itoa(c.PageIndex),
	}
}

func chunkFrom(content string, md map[string]string) models.Chunk {
	pageIndex, _ := strconv.Atoi(md[models.FieldPageIndex])
	return models.Chunk{
		Text:      content,
		FileName:  md[models.FieldFileName],
		FileID:    md[models.FieldFileID],
		PageLabel: md[models.FieldPageLabel],
		PageIndex: pageIndex,
	}
}
