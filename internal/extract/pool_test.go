package extract

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInvoker replies per chunk text without a mock, so concurrent calls
// need no expectation ordering.
type fakeInvoker struct {
	mu      sync.Mutex
	calls   int
	maxSeen int
	active  int
	reply   func(prompt string) (string, error)
}

func (f *fakeInvoker) Invoke(ctx context.Context, prompt, modelID string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.mu.Unlock()

	out, err := f.reply(prompt)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return out, err
}

func chunksOf(n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{SequenceIndex: i, Text: fmt.Sprintf("chunk-%d", i), SourceDocumentID: "doc-1"}
	}
	return chunks
}

func TestExtractAll_ResultsInSequenceOrder(t *testing.T) {
	invoker := &fakeInvoker{reply: func(prompt string) (string, error) {
		// Echo the chunk ordinal back as the record name.
		for i := 0; i < 8; i++ {
			if strings.Contains(prompt, fmt.Sprintf("chunk-%d", i)) {
				return fmt.Sprintf(`[{"name": "op-%d"}]`, i), nil
			}
		}
		return "[]", nil
	}}

	e := NewExtractor(invoker, "gpt-4o-mini")
	results, err := e.ExtractAll(context.Background(), chunksOf(8), testSchema, 3)

	require.NoError(t, err)
	require.Len(t, results, 8)
	for i, list := range results {
		require.Len(t, list, 1, "chunk %d", i)
		assert.Equal(t, fmt.Sprintf("op-%d", i), list[0].Name)
	}
}

func TestExtractAll_OneFailureDoesNotAbortSiblings(t *testing.T) {
	invoker := &fakeInvoker{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "chunk-2") {
			return "", assert.AnError
		}
		return `[{"name": "op"}]`, nil
	}}

	e := NewExtractor(invoker, "gpt-4o-mini")
	_, err := e.ExtractAll(context.Background(), chunksOf(6), testSchema, 2)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExtractionFailed)
	// Every chunk was attempted despite the chunk 2 failure.
	assert.Equal(t, 6, invoker.calls)
}

func TestExtractAll_ConcurrencyBounded(t *testing.T) {
	invoker := &fakeInvoker{reply: func(prompt string) (string, error) {
		return `[{"name": "op"}]`, nil
	}}

	e := NewExtractor(invoker, "gpt-4o-mini")
	_, err := e.ExtractAll(context.Background(), chunksOf(20), testSchema, 4)

	require.NoError(t, err)
	assert.LessOrEqual(t, invoker.maxSeen, 4)
	assert.Equal(t, 20, invoker.calls)
}

func TestExtractAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoker := &fakeInvoker{reply: func(prompt string) (string, error) {
		return `[{"name": "op"}]`, nil
	}}

	e := NewExtractor(invoker, "gpt-4o-mini")
	_, err := e.ExtractAll(ctx, chunksOf(4), testSchema, 2)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractAll_NoChunks(t *testing.T) {
	e := NewExtractor(&fakeInvoker{reply: func(string) (string, error) { return "[]", nil }}, "gpt-4o-mini")
	results, err := e.ExtractAll(context.Background(), nil, testSchema, 2)

	require.NoError(t, err)
	assert.Empty(t, results)
}
