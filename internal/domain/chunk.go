package domain

// Chunk represents a bounded-size slice of a document, split at a logical
// content boundary. Concatenating all chunks of a document in SequenceIndex
// order reconstructs the original content exactly.
type Chunk struct {
	SequenceIndex    int
	Text             string
	SourceDocumentID string
}
