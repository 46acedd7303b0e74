package qdrantdb

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/config"
	"pdf-rag/internal/models"
)

const defaultPort = 6334

// Store keeps every table as a cosine Qdrant collection.
type Store struct {
	client *qdrant.Client

	mu   sync.RWMutex
	dims map[string]int
}

// ParseAddress reads host, gRPC port and TLS flag from qdrant://host:port?tls=true.
func ParseAddress(raw string) (*qdrant.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant address %q: %w", raw, err)
	}
	cfg := &qdrant.Config{Host: u.Hostname(), Port: defaultPort}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port %q: %w", p, err)
		}
		cfg.Port = port
	}
	cfg.UseTLS = u.Query().Get("tls") == "true"
	return cfg, nil
}

func Open(cfg config.StoreConfig) (*Store, error) {
	qcfg, err := ParseAddress(cfg.Path)
	if err != nil {
		return nil, err
	}
	qcfg.APIKey = cfg.QdrantAPIKey
	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}
	log.Debug().Str("host", qcfg.Host).Int("port", qcfg.Port).Bool("tls", qcfg.UseTLS).Msg("Connected to qdrant")
	return &Store{client: client, dims: make(map[string]int)}, nil
}

func (s *Store) dimension(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	dim, ok := s.dims[name]
	s.mu.RUnlock()
	if ok {
		return dim, nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", models.ErrNotFound, name)
	}
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to read collection %s: %w", name, err)
	}
	dim = int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())

	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
	return dim, nil
}

func (s *Store) CreateOrOpenTable(ctx context.Context, name string, dimension int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			FieldName:      models.FieldFileID,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to index collection %s: %w", name, err)
		}
		log.Info().Str("table", name).Int("dimension", dimension).Msg("Created table")
	}

	dim, err := s.dimension(ctx, name)
	if err != nil {
		return err
	}
	if dim != dimension {
		return fmt.Errorf("%w: table %s has dimension %d, got %d", models.ErrSchemaMismatch, name, dim, dimension)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, table string, chunks []models.EmbeddedChunk) error {
	dim, err := s.dimension(ctx, table)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, ch := range chunks {
		if len(ch.Vector) != dim {
			return fmt.Errorf("%w: table %s has dimension %d, got %d", models.ErrSchemaMismatch, table, dim, len(ch.Vector))
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(uuid.NewString()),
			Vectors: qdrant.NewVectorsDense(ch.Vector),
			Payload: qdrant.NewValueMap(map[string]any{
				models.FieldText:      ch.Text,
				models.FieldFileName:  ch.FileName,
				models.FieldFileID:    ch.FileID,
				models.FieldPageLabel: ch.PageLabel,
				models.FieldPageIndex: int64(ch.PageIndex),
			}),
		}
	}
	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: table,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points into %s: %w", table, err)
	}
	log.Debug().Str("table", table).Int("count", len(points)).Msg("Upserted chunks")
	return nil
}

func (s *Store) DeleteByFileID(ctx context.Context, table, fileID string) error {
	if _, err := s.dimension(ctx, table); err != nil {
		return err
	}
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: table,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(models.FieldFileID, fileID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	return nil
}

// Search converts Qdrant cosine scores into distances.
func (s *Store) Search(ctx context.Context, table string, vector []float32, limit int) ([]models.SearchResult, error) {
	if limit <= 0 {
		limit = models.DefaultSearchLimit
	}
	dim, err := s.dimension(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("%w: table %s has dimension %d, got %d", models.ErrSchemaMismatch, table, dim, len(vector))
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: table,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", table, err)
	}

	results := make([]models.SearchResult, len(points))
	for i, p := range points {
		payload := p.GetPayload()
		vec := p.GetVectors().GetVector()
		data := vec.GetDense().GetData()
		if len(data) == 0 {
			data = vec.GetData()
		}
		results[i] = models.SearchResult{
			EmbeddedChunk: models.EmbeddedChunk{
				Chunk: models.Chunk{
					Text:      payload[models.FieldText].GetStringValue(),
					FileName:  payload[models.FieldFileName].GetStringValue(),
					FileID:    payload[models.FieldFileID].GetStringValue(),
					PageLabel: payload[models.FieldPageLabel].GetStringValue(),
					PageIndex: int(payload[models.FieldPageIndex].GetIntegerValue()),
				},
				Vector: data,
			},
			Distance: 1 - p.GetScore(),
		}
	}
	return results, nil
}

// DeleteTable drops the collection.
func (s *Store) DeleteTable(ctx context.Context, name string) error {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", name, err)
	}
	s.mu.Lock()
	delete(s.dims, name)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
