package models

// Chunk is the text of one PDF page with its provenance.
type Chunk struct {
	Text      string `json:"text"`
	FileName  string `json:"file_name"`
	FileID    string `json:"file_id"`
	PageLabel string `json:"page_label"`
	PageIndex int    `json:"page_index"`
}

// EmbeddedChunk is a Chunk paired with its embedding vector.
type EmbeddedChunk struct {
	Chunk
	Vector []float32 `json:"vector"`
}

// SearchResult is a stored chunk returned by a nearest-neighbour search.
// Distance is cosine distance, lower is closer.
type SearchResult struct {
	EmbeddedChunk
	Distance float32 `json:"distance"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
