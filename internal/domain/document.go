package domain

import (
	"fmt"
	"time"
)

// Document represents raw technical documentation fetched from the document
// store. Immutable once fetched; its lifecycle ends when chunking completes.
type Document struct {
	ID        string
	Domain    string // external system the document describes
	Content   string
	FetchedAt time.Time
}

// NewDocument creates a new Document instance
func NewDocument(id, domainTag, content string, fetchedAt time.Time) *Document {
	return &Document{
		ID:        id,
		Domain:    domainTag,
		Content:   content,
		FetchedAt: fetchedAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if d.Content == "" {
		return ErrEmptyDocument
	}

	return nil
}
