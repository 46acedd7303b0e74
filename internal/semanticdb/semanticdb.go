package semanticdb

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/embedding"
	"pdf-rag/internal/models"
	"pdf-rag/internal/parser"
	"pdf-rag/internal/vectorstore"
)

var (
	chunksIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdf_rag",
		Subsystem: "semanticdb",
		Name:      "chunks_ingested_total",
		Help:      "Number of chunks embedded and stored",
	}, []string{"table"})

	filesRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdf_rag",
		Subsystem: "semanticdb",
		Name:      "files_removed_total",
		Help:      "Number of delete-by-file operations",
	}, []string{"table"})

	queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pdf_rag",
		Subsystem: "semanticdb",
		Name:      "queries_total",
		Help:      "Number of nearest-neighbour queries by outcome",
	}, []string{"table", "status"})
)

// SemanticDB ties the chunker, an embedding provider and a vector store
// together. It keeps no state of its own beyond the fixed vector dimension.
type SemanticDB struct {
	provider       embedding.Provider
	store          vectorstore.Store
	dimension      int
	minChunkLength int
}

type Option func(*SemanticDB)

// WithMinChunkLength overrides the minimum page length kept by ingest.
func WithMinChunkLength(n int) Option {
	return func(s *SemanticDB) {
		s.minChunkLength = n
	}
}

func New(provider embedding.Provider, store vectorstore.Store, opts ...Option) *SemanticDB {
	s := &SemanticDB{
		provider:       provider,
		store:          store,
		dimension:      provider.Dimension(),
		minChunkLength: models.DefaultMinChunkLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SemanticDB) Dimension() int {
	return s.dimension
}

func tableOrDefault(table string) string {
	if table == "" {
		return models.DefaultTable
	}
	return table
}

// Ingest chunks a PDF, embeds every chunk in one batch and appends the result
// to table. It returns the number of chunks stored.
func (s *SemanticDB) Ingest(ctx context.Context, data []byte, fileName, fileID, table string) (int, error) {
	table = tableOrDefault(table)
	logger := log.With().Str("file", fileName).Str("file_id", fileID).Str("table", table).Logger()

	chunks, err := parser.PDFToChunks(data, fileName, fileID, s.minChunkLength)
	if err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed %s: %w", fileName, err)
	}
	if len(vectors) != len(chunks) {
		return 0, models.NewProviderError("embedding", "embed",
			fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	embedded := make([]models.EmbeddedChunk, len(chunks))
	for i := range chunks {
		embedded[i] = models.EmbeddedChunk{Chunk: chunks[i], Vector: vectors[i]}
	}

	if err := s.store.CreateOrOpenTable(ctx, table, s.dimension); err != nil {
		return 0, err
	}
	if len(embedded) > 0 {
		if err := s.store.Upsert(ctx, table, embedded); err != nil {
			return 0, err
		}
	}

	chunksIngested.WithLabelValues(table).Add(float64(len(embedded)))
	logger.Info().Int("chunks", len(embedded)).Msg("Ingested file")
	return len(embedded), nil
}

// Remove deletes every chunk of fileID from table.
func (s *SemanticDB) Remove(ctx context.Context, fileID, table string) error {
	table = tableOrDefault(table)
	if err := s.store.DeleteByFileID(ctx, table, fileID); err != nil {
		return err
	}
	filesRemoved.WithLabelValues(table).Inc()
	log.Info().Str("file_id", fileID).Str("table", table).Msg("Removed file")
	return nil
}

// DropTable deletes table and every chunk in it.
func (s *SemanticDB) DropTable(ctx context.Context, table string) error {
	table = tableOrDefault(table)
	if err := s.store.DeleteTable(ctx, table); err != nil {
		return err
	}
	log.Info().Str("table", table).Msg("Dropped table")
	return nil
}

// Query returns the n nearest chunks to vector. n <= 0 means 4.
func (s *SemanticDB) Query(ctx context.Context, vector []float32, table string, n int) ([]models.SearchResult, error) {
	table = tableOrDefault(table)
	if n <= 0 {
		n = models.DefaultSearchLimit
	}
	results, err := s.store.Search(ctx, table, vector, n)
	if err != nil {
		queries.WithLabelValues(table, "error").Inc()
		return nil, err
	}
	queries.WithLabelValues(table, "ok").Inc()
	return results, nil
}

// QueryText embeds text and queries with the resulting vector.
func (s *SemanticDB) QueryText(ctx context.Context, text, table string, n int) ([]models.SearchResult, error) {
	vector, err := s.provider.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.Query(ctx, vector, table, n)
}

// FormatSources renders one citation line per file, in order of first
// appearance, listing the unique page indices of that file in ascending order.
func FormatSources(results []models.SearchResult) (sources []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Failed to format sources")
			sources = []string{}
		}
	}()

	var order []string
	pages := make(map[string]map[int]struct{})
	for _, r := range results {
		if _, ok := pages[r.FileName]; !ok {
			order = append(order, r.FileName)
			pages[r.FileName] = make(map[int]struct{})
		}
		pages[r.FileName][r.PageIndex] = struct{}{}
	}

	sources = make([]string, 0, len(order))
	for _, name := range order {
		indices := make([]int, 0, len(pages[name]))
		for p := range pages[name] {
			indices = append(indices, p)
		}
		sort.Ints(indices)
		if len(indices) == 1 {
			sources = append(sources, fmt.Sprintf(models.SourceSinglePageFormat, name, indices[0]))
			continue
		}
		parts := make([]string, len(indices))
		for i, p := range indices {
			parts[i] = strconv.Itoa(p)
		}
		sources = append(sources, fmt.Sprintf(models.SourceMultiPageFormat, name, strings.Join(parts, ", ")))
	}
	return sources
}
