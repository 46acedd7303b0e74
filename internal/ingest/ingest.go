package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Ingester stores one PDF and reports how many chunks it produced.
type Ingester interface {
	Ingest(ctx context.Context, data []byte, fileName, fileID, table string) (int, error)
}

// Directory ingests every .pdf file directly inside dir, in lexical order,
// each under a fresh id from newID. It returns the number of files processed
// and the names of the files that failed.
func Directory(ctx context.Context, db Ingester, dir, table string, newID func() string) (int, []string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return 0, nil, fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to list directory %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), ".pdf") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		log.Warn().Str("dir", dir).Msg("No PDF files found")
		return 0, nil, nil
	}
	log.Info().Str("dir", dir).Int("files", len(names)).Msgf("Found %d PDF files to process", len(names))

	processed := 0
	var failed []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return processed, failed, err
		}
		log.Info().Msgf("Processing: %s", name)

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			_, err = db.Ingest(ctx, data, name, newID(), table)
		}
		if err != nil {
			log.Error().Err(err).Msgf("Failed to process %s", name)
			failed = append(failed, name)
			continue
		}
		processed++
		log.Info().Msgf("Successfully processed: %s", name)
	}

	log.Info().Int("processed", processed).Int("total", len(names)).Msgf("Processing complete: %d/%d files processed", processed, len(names))
	if len(failed) > 0 {
		log.Warn().Strs("failed", failed).Msgf("Failed to process %d files", len(failed))
	}
	return processed, failed, nil
}
