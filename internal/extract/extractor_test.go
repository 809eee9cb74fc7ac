package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockInvoker is a mock implementation of Invoker
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, prompt, modelID string) (string, error) {
	args := m.Called(ctx, prompt, modelID)
	return args.String(0), args.Error(1)
}

const testSchema = `{"name": "<operation>", "attributes": {}}`

func testChunk(index int, text string) domain.Chunk {
	return domain.Chunk{SequenceIndex: index, Text: text, SourceDocumentID: "doc-1"}
}

func TestExtract_ParsesRecords(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("Invoke", mock.Anything, mock.Anything, "gpt-4o-mini").
		Return(`[{"name": "createUser", "attributes": {"method": "POST"}}, {"name": "deleteUser"}]`, nil).Once()

	e := NewExtractor(invoker, "gpt-4o-mini")
	records, err := e.Extract(context.Background(), testChunk(0, "some text"), testSchema)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "createUser", records[0].Name)
	assert.Equal(t, "POST", records[0].Attributes["method"])
	assert.Equal(t, 0, records[0].ChunkIndex)
	assert.Equal(t, "deleteUser", records[1].Name)
	invoker.AssertExpectations(t)
}

func TestExtract_StripsMarkdownFences(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return("```json\n[{\"name\": \"op\"}]\n```", nil).Once()

	e := NewExtractor(invoker, "gpt-4o-mini")
	records, err := e.Extract(context.Background(), testChunk(0, "text"), testSchema)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "op", records[0].Name)
}

func TestExtract_DropsRecordsMissingIdentity(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return(`[{"name": "valid"}, {"attributes": {"orphan": "true"}}, {"name": ""}]`, nil).Once()

	e := NewExtractor(invoker, "gpt-4o-mini")
	records, err := e.Extract(context.Background(), testChunk(2, "text"), testSchema)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "valid", records[0].Name)
	assert.Equal(t, 2, records[0].ChunkIndex)
}

func TestExtract_CorrectiveRetryOnUnparseableOutput(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("Invoke", mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return !containsCorrective(prompt)
	}), mock.Anything).Return("Sure! Here are the records you asked for.", nil).Once()
	invoker.On("Invoke", mock.Anything, mock.MatchedBy(containsCorrective), mock.Anything).
		Return(`[{"name": "op"}]`, nil).Once()

	e := NewExtractor(invoker, "gpt-4o-mini")
	records, err := e.Extract(context.Background(), testChunk(0, "text"), testSchema)

	require.NoError(t, err)
	require.Len(t, records, 1)
	invoker.AssertExpectations(t)
}

func TestExtract_FailsAfterCorrectiveRetry(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return("still not json", nil).Times(2)

	e := NewExtractor(invoker, "gpt-4o-mini")
	_, err := e.Extract(context.Background(), testChunk(0, "text"), testSchema)

	assert.ErrorIs(t, err, ErrExtractionFailed)
	invoker.AssertNumberOfCalls(t, "Invoke", 2)
}

func TestExtract_ObjectOutputIsNotAList(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"name": "op"}`, nil).Times(2)

	e := NewExtractor(invoker, "gpt-4o-mini")
	_, err := e.Extract(context.Background(), testChunk(0, "text"), testSchema)

	assert.ErrorIs(t, err, ErrExtractionFailed)
}

func TestExtract_ModelCallFailure(t *testing.T) {
	invoker := new(MockInvoker)
	invoker.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return("", assert.AnError).Once()

	e := NewExtractor(invoker, "gpt-4o-mini")
	_, err := e.Extract(context.Background(), testChunk(0, "text"), testSchema)

	assert.ErrorIs(t, err, ErrExtractionFailed)
	assert.ErrorIs(t, err, assert.AnError)
}

func containsCorrective(prompt string) bool {
	return strings.Contains(prompt, "not a valid JSON array")
}
