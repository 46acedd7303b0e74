package models

import "fmt"

const (
	DefaultTable          = "semantic-db-table"
	DefaultMinChunkLength = 10
	DefaultSearchLimit    = 4

	// Metadata keys shared by every store backend.
	FieldText      = "text"
	FieldFileName  = "file_name"
	FieldFileID    = "file_id"
	FieldPageLabel = "page_label"
	FieldPageIndex = "page_index"
)

const (
	QueryErrorFormat   = "There was an error processing the query: %v"
	SourcesErrorFormat = "Error fetching sources: %v"
	DecodeErrorFormat  = "Error decoding response chunk: %s"
	DraftErrorFormat   = "Error drafting answer: %v"
	ReferencesHeader   = "\n\n\n**References:**\n\n"

	SourceSinglePageFormat = "*%s*, p. %d\n"
	SourceMultiPageFormat  = "*%s*, pp. %s\n"
)

var (
	RAGPromptTemplate = "Answer this question:\nUSER QUESTION\n%s\nUse this content in your answer:\n\nCONTENT_STARTS:\n\"%s\"\nCONTENT_ENDS\n\nIMPORTANT - The content may be truncated so do not simply continue the sentence, always rephrase to give complete sentences when needed. Not everything will be relevant so do not comment on anything you do not use to answer the question."
)

// RAGPrompt fills the grounded answer prompt with the user query and retrieved content.
func RAGPrompt(query, content string) string {
	return fmt.Sprintf(RAGPromptTemplate, query, content)
}
