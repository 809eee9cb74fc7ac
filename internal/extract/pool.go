package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel chunk extraction so the pipeline stays
// inside the inference service's rate limit.
const DefaultConcurrency = 4

// ExtractAll runs extraction for every chunk with bounded concurrency and
// returns per-chunk record lists in original sequence order, regardless of
// completion order. A failing chunk does not abort siblings already in
// flight: all outcomes are collected first, then the combined failure is
// returned. Cancelling ctx abandons outstanding work.
func (e *Extractor) ExtractAll(ctx context.Context, chunks []domain.Chunk, schema string, concurrency int) ([][]domain.ExtractedRecord, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([][]domain.ExtractedRecord, len(chunks))
	chunkErrs := make([]error, len(chunks))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				chunkErrs[i] = err
				return nil
			}
			records, err := e.Extract(ctx, chunk, schema)
			if err != nil {
				chunkErrs[i] = err
				return nil
			}
			results[chunk.SequenceIndex] = records
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(chunkErrs...); err != nil {
		return nil, fmt.Errorf("extraction incomplete: %w", err)
	}

	return results, nil
}
