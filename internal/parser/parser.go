package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"pdf-rag/internal/models"
)

const supportedExtension = "pdf"

// Extension returns the lower-cased text after the last dot of fileName.
// A name without a dot is returned whole.
func Extension(fileName string) string {
	return strings.ToLower(fileName[strings.LastIndex(fileName, ".")+1:])
}

// PDFToChunks turns every page of a PDF into a chunk. Pages whose extracted text
// is not longer than minChunkLength runes are skipped. A negative minChunkLength
// selects the default.
func PDFToChunks(data []byte, fileName, fileID string, minChunkLength int) (chunks []models.Chunk, err error) {
	if ext := Extension(fileName); ext != supportedExtension {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}
	if minChunkLength < 0 {
		minChunkLength = models.DefaultMinChunkLength
	}

	// the pdf reader panics on malformed objects
	defer func() {
		if r := recover(); r != nil {
			chunks = nil
			err = fmt.Errorf("failed to parse pdf %s: %v", fileName, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", fileName, err)
	}

	labels := readPageLabels(reader)
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d of %s: %w", i, fileName, err)
		}
		if utf8.RuneCountInString(text) <= minChunkLength {
			log.Debug().Str("file", fileName).Int("page", i).Msg("Skipping short page")
			continue
		}
		chunks = append(chunks, models.Chunk{
			Text:      text,
			FileName:  fileName,
			FileID:    fileID,
			PageLabel: labels.label(i - 1),
			PageIndex: i,
		})
	}

	log.Debug().Str("file", fileName).Int("pages", numPages).Int("chunks", len(chunks)).Msg("Parsed pdf")
	return chunks, nil
}
