package rag

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding/embeddingtest"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/models"
	"pdf-rag/internal/pdftest"
	"pdf-rag/internal/semanticdb"
)

type step struct {
	fragment string
	err      error
}

// fakeGenerator replays scripted steps and records the prompt and Close calls.
type fakeGenerator struct {
	steps    []step
	startErr error

	mu     sync.Mutex
	prompt string
	closed int
	recvd  int
}

func (g *fakeGenerator) GenerateStream(_ context.Context, prompt string) (llmservice.Stream, error) {
	g.mu.Lock()
	g.prompt = prompt
	g.mu.Unlock()
	if g.startErr != nil {
		return nil, g.startErr
	}
	return &fakeStream{g: g}, nil
}

type fakeStream struct {
	g *fakeGenerator
	i int
}

func (s *fakeStream) Recv() (string, error) {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	if s.i >= len(s.g.steps) {
		return "", io.EOF
	}
	st := s.g.steps[s.i]
	s.i++
	s.g.recvd++
	return st.fragment, st.err
}

func (s *fakeStream) Close() error {
	s.g.mu.Lock()
	defer s.g.mu.Unlock()
	s.g.closed++
	return nil
}

func collect(seq func(func(string) bool)) []string {
	var out []string
	for frag := range seq {
		out = append(out, frag)
	}
	return out
}

func userMessage(text string) []models.Message {
	return []models.Message{{Role: models.RoleUser, Content: text}}
}

func newAgent(t *testing.T, gen *fakeGenerator) (*Agent, *embeddingtest.KeywordProvider) {
	t.Helper()
	store, err := chromemdb.NewVectorDBManager(filepath.Join(t.TempDir(), "db"), config.StoreConfig{})
	require.NoError(t, err)
	provider := embeddingtest.NewKeywordProvider("refund", "shipping", "warranty")
	db := semanticdb.New(provider, store)

	_, err = db.Ingest(context.Background(), pdftest.Build([]string{
		"Refund policy: every refund is paid within 30 days.",
		"Shipping takes three working days.",
	}, ""), "policy.pdf", "policy", "")
	require.NoError(t, err)
	_, err = db.Ingest(context.Background(), pdftest.Build([]string{
		"The warranty also covers a refund for broken items.",
	}, ""), "warranty.pdf", "warranty", "")
	require.NoError(t, err)
	return NewAgent(db, provider, gen), provider
}

func TestAgentAnswerWithReferences(t *testing.T) {
	gen := &fakeGenerator{steps: []step{{fragment: "Refunds are paid"}, {fragment: ""}, {fragment: " within 30 days."}}}
	agent, _ := newAgent(t, gen)

	messages := []models.Message{
		{Role: models.RoleUser, Content: "old question about shipping"},
		{Role: models.RoleAssistant, Content: "old answer"},
		{Role: models.RoleUser, Content: "What is the refund policy?"},
	}
	out := collect(agent.Answer(context.Background(), messages, ""))

	require.GreaterOrEqual(t, len(out), 4)
	assert.Equal(t, "Refunds are paid", out[0])
	assert.Equal(t, " within 30 days.", out[1])
	assert.Equal(t, "\n\n\n**References:**\n\n", out[2])
	assert.Equal(t, []string{"*policy.pdf*, pp. 1, 2\n", "*warranty.pdf*, p. 1\n"}, out[3:])

	assert.True(t, strings.HasPrefix(gen.prompt, "Answer this question:\nUSER QUESTION\nWhat is the refund policy?\n"))
	assert.Contains(t, gen.prompt, "CONTENT_STARTS:\n\"Refund policy: every refund is paid within 30 days.")
	assert.Contains(t, gen.prompt, "IMPORTANT - The content may be truncated")
	assert.Equal(t, 1, gen.closed)
}

func TestAgentNoMessages(t *testing.T) {
	gen := &fakeGenerator{}
	agent, _ := newAgent(t, gen)

	out := collect(agent.Answer(context.Background(), nil, ""))
	assert.Equal(t, []string{"There was an error processing the query: no messages"}, out)
}

func TestAgentEmbeddingFailure(t *testing.T) {
	gen := &fakeGenerator{}
	agent, provider := newAgent(t, gen)
	provider.Err = errors.New("embedder offline")

	out := collect(agent.Answer(context.Background(), userMessage("refund?"), ""))
	assert.Equal(t, []string{"There was an error processing the query: embedder offline"}, out)
	assert.Empty(t, gen.prompt)
}

func TestAgentEmptyEmbedding(t *testing.T) {
	gen := &fakeGenerator{}
	agent, provider := newAgent(t, gen)
	provider.Empty = true

	out := collect(agent.Answer(context.Background(), userMessage("refund?"), ""))
	assert.Empty(t, out)
	assert.Empty(t, gen.prompt)
}

func TestAgentMissingTable(t *testing.T) {
	gen := &fakeGenerator{}
	agent, _ := newAgent(t, gen)

	out := collect(agent.Answer(context.Background(), userMessage("refund?"), "no-such-table"))
	require.Len(t, out, 1)
	assert.True(t, strings.HasPrefix(out[0], "Error fetching sources: "))
	assert.Contains(t, out[0], "not found")
	assert.Empty(t, gen.prompt)
}

func TestAgentEmptyTable(t *testing.T) {
	gen := &fakeGenerator{}
	agent, _ := newAgent(t, gen)
	require.NoError(t, agent.db.Remove(context.Background(), "policy", ""))
	require.NoError(t, agent.db.Remove(context.Background(), "warranty", ""))

	out := collect(agent.Answer(context.Background(), userMessage("refund?"), ""))
	assert.Equal(t, []string{"Error fetching sources: results_text_array cannot be empty"}, out)
}

func TestAgentDecodeErrorContinues(t *testing.T) {
	gen := &fakeGenerator{steps: []step{
		{fragment: "Part one."},
		{err: &models.DecodeError{Chunk: "{bad", Err: errors.New("unexpected EOF")}},
		{fragment: " Part two."},
	}}
	agent, _ := newAgent(t, gen)

	out := collect(agent.Answer(context.Background(), userMessage("refund?"), ""))
	require.GreaterOrEqual(t, len(out), 4)
	assert.Equal(t, []string{"Part one.", "Error decoding response chunk: {bad", " Part two.", models.ReferencesHeader}, out[:4])
}

func TestAgentGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{steps: []step{
		{fragment: "Partial"},
		{err: models.NewProviderError("ollama", "read stream", errors.New("connection reset"))},
		{fragment: "never"},
	}}
	agent, _ := newAgent(t, gen)

	out := collect(agent.Answer(context.Background(), userMessage("refund?"), ""))
	require.Len(t, out, 2)
	assert.Equal(t, "Partial", out[0])
	assert.True(t, strings.HasPrefix(out[1], "Error drafting answer: "))
	assert.Contains(t, out[1], "connection reset")
	assert.Equal(t, 1, gen.closed)
}

func TestAgentGenerationStartFailure(t *testing.T) {
	gen := &fakeGenerator{startErr: errors.New("dial tcp: connection refused")}
	agent, _ := newAgent(t, gen)

	out := collect(agent.Answer(context.Background(), userMessage("refund?"), ""))
	assert.Equal(t, []string{"Error drafting answer: dial tcp: connection refused"}, out)
}

func TestAgentConsumerBreakClosesStream(t *testing.T) {
	gen := &fakeGenerator{steps: []step{{fragment: "a"}, {fragment: "b"}, {fragment: "c"}}}
	agent, _ := newAgent(t, gen)

	var got []string
	for frag := range agent.Answer(context.Background(), userMessage("refund?"), "") {
		got = append(got, frag)
		break
	}
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, gen.closed)
	assert.Equal(t, 1, gen.recvd)
}

func TestAgentCancelledContextIsSilent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &fakeGenerator{steps: []step{{fragment: "a"}, {err: context.Canceled}}}
	agent, _ := newAgent(t, gen)

	var got []string
	for frag := range agent.Answer(ctx, userMessage("refund?"), "") {
		got = append(got, frag)
		cancel()
	}
	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 1, gen.closed)
}

func TestChatAnswer(t *testing.T) {
	gen := &fakeGenerator{steps: []step{
		{fragment: "Hello"},
		{err: &models.DecodeError{Chunk: "???", Err: errors.New("bad")}},
		{fragment: " there"},
	}}
	chat := NewChat(gen)

	out := collect(chat.Answer(context.Background(), []models.Message{
		{Role: models.RoleSystem, Content: "be nice"},
		{Role: models.RoleUser, Content: "say hello"},
	}))
	assert.Equal(t, []string{"Hello", "Error decoding response chunk: ???", " there"}, out)
	assert.Equal(t, "say hello", gen.prompt)
	assert.Equal(t, 1, gen.closed)
}

func TestChatErrors(t *testing.T) {
	chat := NewChat(&fakeGenerator{startErr: errors.New("boom")})
	assert.Equal(t, []string{"Error drafting answer: boom"}, collect(chat.Answer(context.Background(), userMessage("hi"))))
	assert.Equal(t, []string{"Error drafting answer: no messages"}, collect(chat.Answer(context.Background(), nil)))
}
