package domain

// ExtractedRecord is a structured entity pulled out of a document chunk by the
// extractor. Name is the identity key: two records with the same Name describe
// the same logical record regardless of which chunk they came from.
type ExtractedRecord struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	ChunkIndex int               `json:"chunk_index"`
}

// HasIdentity reports whether the record carries a usable identity key.
func (r ExtractedRecord) HasIdentity() bool {
	return r.Name != ""
}
