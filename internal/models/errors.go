package models

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrSchemaMismatch    = errors.New("vector dimension does not match table schema")
	ErrNotFound          = errors.New("table not found")
)

// ProviderError wraps a failure reported by an embedding or generation backend.
type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func NewProviderError(provider, op string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// DecodeError reports a streamed chunk that could not be decoded.
// Chunk holds the raw line as received.
type DecodeError struct {
	Chunk string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode chunk %q: %v", e.Chunk, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
