package extract

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/tidwall/gjson"
)

// ErrExtractionFailed is returned when a chunk's extraction cannot be
// completed: the model call failed after retries, or the output never parsed
// as a record list.
var ErrExtractionFailed = errors.New("chunk extraction failed")

// Invoker defines the interface for the model client.
type Invoker interface {
	Invoke(ctx context.Context, prompt, modelID string) (string, error)
}

// Extractor sends document chunks to the model and parses the structured
// records it returns.
type Extractor struct {
	client  Invoker
	modelID string
}

// NewExtractor creates a new Extractor instance
func NewExtractor(client Invoker, modelID string) *Extractor {
	return &Extractor{
		client:  client,
		modelID: modelID,
	}
}

// Extract pulls structured records out of one chunk. A reply that does not
// parse as a record list is retried once with a corrective prompt before the
// chunk is failed. Records missing their identity key are dropped with a
// warning rather than failing the whole chunk.
func (e *Extractor) Extract(ctx context.Context, chunk domain.Chunk, schema string) ([]domain.ExtractedRecord, error) {
	prompt := buildExtractionPrompt(schema, chunk.Text)

	out, err := e.client.Invoke(ctx, prompt, e.modelID)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: model call failed: %w", chunk.SequenceIndex, errors.Join(ErrExtractionFailed, err))
	}

	records, parseErr := parseRecords(out, chunk.SequenceIndex)
	if parseErr != nil {
		log.Printf("extract: chunk %d output did not parse (%v), retrying with corrective prompt", chunk.SequenceIndex, parseErr)

		corrective := prompt + "\n\nYour previous reply was not a valid JSON array of records. Reply with only the JSON array, nothing else."
		out, err = e.client.Invoke(ctx, corrective, e.modelID)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: corrective model call failed: %w", chunk.SequenceIndex, errors.Join(ErrExtractionFailed, err))
		}

		records, parseErr = parseRecords(out, chunk.SequenceIndex)
		if parseErr != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunk.SequenceIndex, errors.Join(ErrExtractionFailed, parseErr))
		}
	}

	return records, nil
}

// buildExtractionPrompt keeps the prompt minimal: the schema and the chunk
// text, nothing else, to hold down token overhead.
func buildExtractionPrompt(schema, text string) string {
	var b strings.Builder
	b.WriteString("Extract every record matching this schema from the text below. Respond with a JSON array only.\n\nSchema:\n")
	b.WriteString(schema)
	b.WriteString("\n\nText:\n")
	b.WriteString(text)
	return b.String()
}

// parseRecords parses the model output strictly as a list of records.
func parseRecords(out string, chunkIndex int) ([]domain.ExtractedRecord, error) {
	trimmed := stripFences(out)
	if !gjson.Valid(trimmed) {
		return nil, fmt.Errorf("output is not valid JSON")
	}

	parsed := gjson.Parse(trimmed)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("output is not a JSON array")
	}

	var records []domain.ExtractedRecord
	dropped := 0
	parsed.ForEach(func(_, item gjson.Result) bool {
		name := item.Get("name").String()
		if name == "" {
			dropped++
			return true
		}

		rec := domain.ExtractedRecord{
			Name:       name,
			ChunkIndex: chunkIndex,
		}
		attrs := item.Get("attributes")
		if attrs.IsObject() {
			rec.Attributes = make(map[string]string)
			attrs.ForEach(func(key, value gjson.Result) bool {
				rec.Attributes[key.String()] = value.String()
				return true
			})
		}
		records = append(records, rec)
		return true
	})

	if dropped > 0 {
		log.Printf("extract: chunk %d dropped %d records missing identity key", chunkIndex, dropped)
	}

	return records, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one.
func stripFences(out string) string {
	trimmed := strings.TrimSpace(out)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
