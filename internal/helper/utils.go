package helper

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger configures the global zerolog logger. An unknown level falls back to info.
func SetupLogger(level string, pretty bool) {
	SetupLoggerWithWriter(os.Stdout, level, pretty)
}

func SetupLoggerWithWriter(w io.Writer, level string, pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Caller().Logger()
		return
	}
	log.Logger = zerolog.New(w).With().Timestamp().Caller().Logger()
}

// NewFileID returns a time-ordered UUIDv7 for a freshly ingested file.
// If the random source fails it falls back to the current time in microseconds.
func NewFileID() string {
	id, err := uuid.NewV7()
	if err != nil {
		log.Warn().Err(err).Msg("Falling back to timestamp file id")
		return strconv.FormatInt(time.Now().UnixMicro(), 10)
	}
	return id.String()
}

// CreateFolder creates the folder and its parents if missing.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", path, err)
	}
	return nil
}
