package chunker

import (
	"github.com/cloo-solutions/docpipe/internal/domain"
)

// Marker is a preferred split pattern. SplitBefore cuts in front of the
// pattern so it opens the next chunk (record-start headings); otherwise the
// cut lands after the pattern and it closes the current chunk.
type Marker struct {
	Pattern     string
	SplitBefore bool
}

// Config controls document splitting.
type Config struct {
	// MaxSize is a soft limit in runes. A chunk only exceeds it when a single
	// logical record is longer than the limit; records are never split.
	MaxSize int

	// Markers are tried in priority order when searching for a split point.
	Markers []Marker
}

// DefaultConfig provides sane defaults for splitting technical documentation.
func DefaultConfig() Config {
	return Config{
		MaxSize: 8000,
		Markers: []Marker{
			{Pattern: "\n## ", SplitBefore: true},
			{Pattern: "\n\n"},
			{Pattern: "\n"},
			{Pattern: ". "},
		},
	}
}

// Split cuts a document into ordered chunks along logical content boundaries.
// Concatenating the returned chunk texts in order yields the document content
// exactly; no characters are dropped or duplicated. Split is total over any
// non-empty document: when no boundary exists the remaining content is emitted
// as a single oversized chunk rather than truncated.
func Split(doc *domain.Document, cfg Config) []domain.Chunk {
	if doc == nil || doc.Content == "" {
		return nil
	}
	if cfg.MaxSize <= 0 || len(cfg.Markers) == 0 {
		cfg = DefaultConfig()
	}

	runes := []rune(doc.Content)
	if len(runes) <= cfg.MaxSize {
		return []domain.Chunk{{
			SequenceIndex:    0,
			Text:             doc.Content,
			SourceDocumentID: doc.ID,
		}}
	}

	chunks := make([]domain.Chunk, 0, len(runes)/cfg.MaxSize+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = findCut(runes, cfg, start, end)
		}

		chunks = append(chunks, domain.Chunk{
			SequenceIndex:    len(chunks),
			Text:             string(runes[start:end]),
			SourceDocumentID: doc.ID,
		})
		start = end
	}

	return chunks
}

// findCut picks the split position for the window (start, limit]. It scans
// backward from the limit for the highest-priority marker present; when the
// window holds no marker at all it extends past the limit to the next
// lowest-priority boundary, keeping the current record whole.
func findCut(runes []rune, cfg Config, start, limit int) int {
	for _, m := range cfg.Markers {
		if cut, ok := lastCutBefore(runes, m, start, limit); ok {
			return cut
		}
	}

	// No boundary inside the window; the current record is oversized. Look
	// ahead for the next occurrence of the lowest-priority marker.
	fallback := cfg.Markers[len(cfg.Markers)-1]
	if cut, ok := firstCutAfter(runes, fallback, limit); ok {
		return cut
	}

	return len(runes)
}

// lastCutBefore finds the latest cut position in (start, limit] produced by
// the marker, or reports that the marker does not occur in the window.
func lastCutBefore(runes []rune, m Marker, start, limit int) (int, bool) {
	pattern := []rune(m.Pattern)
	from := limit - len(pattern)
	if m.SplitBefore {
		// The cut lands in front of the pattern, so a marker straddling the
		// limit still yields a valid cut at its start.
		from = limit
	}
	for i := from; i >= start; i-- {
		if !matchAt(runes, pattern, i) {
			continue
		}
		cut := i + len(pattern)
		if m.SplitBefore {
			cut = i
		}
		if cut > start && cut <= limit {
			return cut, true
		}
	}
	return 0, false
}

// firstCutAfter finds the earliest cut position at or beyond from.
func firstCutAfter(runes []rune, m Marker, from int) (int, bool) {
	pattern := []rune(m.Pattern)
	for i := from; i+len(pattern) <= len(runes); i++ {
		if matchAt(runes, pattern, i) {
			if m.SplitBefore {
				if i > from {
					return i, true
				}
				continue
			}
			return i + len(pattern), true
		}
	}
	return 0, false
}

func matchAt(runes, pattern []rune, at int) bool {
	if at < 0 || at+len(pattern) > len(runes) {
		return false
	}
	for j, r := range pattern {
		if runes[at+j] != r {
			return false
		}
	}
	return true
}
