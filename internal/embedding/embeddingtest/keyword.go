// Package embeddingtest provides a deterministic embedding provider for tests.
package embeddingtest

import (
	"context"
	"strings"
	"sync"
)

// KeywordProvider embeds a text as the count of each vocabulary word in it,
// plus a constant trailing component so no vector is all zeros.
type KeywordProvider struct {
	Vocabulary []string
	// Err, when set, is returned by every call.
	Err error
	// Empty makes EmbedOne return an empty vector.
	Empty bool

	mu    sync.Mutex
	calls int
}

func NewKeywordProvider(vocabulary ...string) *KeywordProvider {
	return &KeywordProvider{Vocabulary: vocabulary}
}

func (p *KeywordProvider) Dimension() int {
	return len(p.Vocabulary) + 1
}

func (p *KeywordProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *KeywordProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = p.vector(text)
	}
	return vectors, nil
}

func (p *KeywordProvider) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if p.Empty {
		return []float32{}, nil
	}
	return vectors[0], nil
}

func (p *KeywordProvider) vector(text string) []float32 {
	lower := strings.ToLower(text)
	v := make([]float32, p.Dimension())
	for i, word := range p.Vocabulary {
		v[i] = float32(strings.Count(lower, strings.ToLower(word)))
	}
	v[len(v)-1] = 0.1
	return v
}
