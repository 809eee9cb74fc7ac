package model

import (
	"context"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockInferenceAPI is a mock implementation of InferenceAPI
type MockInferenceAPI struct {
	mock.Mock
}

func (m *MockInferenceAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

func (m *MockInferenceAPI) CreateCompletion(ctx context.Context, req openai.CompletionRequest) (openai.CompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.CompletionResponse), args.Error(1)
}

func testProfiles() map[string]Profile {
	return map[string]Profile{
		"test-chat": {
			ID:            "test-chat",
			TokenLimit:    1000,
			CharsPerToken: 4,
			RequestShape:  RequestShapeChat,
			ResponseShape: ResponseShapeText,
		},
		"test-completion": {
			ID:            "test-completion",
			TokenLimit:    1000,
			CharsPerToken: 4,
			RequestShape:  RequestShapeCompletion,
			ResponseShape: ResponseShapeText,
		},
		"test-wrapped": {
			ID:            "test-wrapped",
			TokenLimit:    1000,
			CharsPerToken: 4,
			RequestShape:  RequestShapeChat,
			ResponseShape: ResponseShapeJSONWrapped,
		},
	}
}

func newTestClient(api InferenceAPI) *Client {
	return NewClientWithAPI(api, Config{
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
		Profiles:       testProfiles(),
	})
}

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestInvoke_Success(t *testing.T) {
	api := new(MockInferenceAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(chatResponse("generated text"), nil).Once()

	client := newTestClient(api)
	out, err := client.Invoke(context.Background(), "describe the operations", "test-chat")

	require.NoError(t, err)
	assert.Equal(t, "generated text", out)
	api.AssertExpectations(t)
}

func TestInvoke_EmptyPrompt(t *testing.T) {
	client := newTestClient(new(MockInferenceAPI))
	_, err := client.Invoke(context.Background(), "", "test-chat")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestInvoke_UnknownModel(t *testing.T) {
	client := newTestClient(new(MockInferenceAPI))
	_, err := client.Invoke(context.Background(), "prompt", "no-such-model")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestInvoke_TokenBudgetRejectedBeforeNetworkCall(t *testing.T) {
	api := new(MockInferenceAPI)
	client := newTestClient(api)

	// 1000 token limit, 200 reserved for output: a prompt past 800 estimated
	// tokens (3200 chars at ratio 4) must be rejected without calling the API.
	prompt := strings.Repeat("x", 3300)
	_, err := client.Invoke(context.Background(), prompt, "test-chat")

	assert.ErrorIs(t, err, ErrTokenBudgetExceeded)
	api.AssertNotCalled(t, "CreateChatCompletion", mock.Anything, mock.Anything)
}

func TestInvoke_ThrottledRetriedUpToAttemptCap(t *testing.T) {
	throttled := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}

	api := new(MockInferenceAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, throttled).Times(3)

	client := newTestClient(api)
	_, err := client.Invoke(context.Background(), "prompt", "test-chat")

	assert.ErrorIs(t, err, ErrThrottled)
	api.AssertExpectations(t)
	api.AssertNumberOfCalls(t, "CreateChatCompletion", 3)
}

func TestInvoke_ThrottledThenSuccess(t *testing.T) {
	throttled := &openai.APIError{HTTPStatusCode: 429, Message: "rate limited"}

	api := new(MockInferenceAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, throttled).Once()
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(chatResponse("recovered"), nil).Once()

	client := newTestClient(api)
	out, err := client.Invoke(context.Background(), "prompt", "test-chat")

	require.NoError(t, err)
	assert.Equal(t, "recovered", out)
	api.AssertNumberOfCalls(t, "CreateChatCompletion", 2)
}

func TestInvoke_AccessDeniedNotRetried(t *testing.T) {
	denied := &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}

	api := new(MockInferenceAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, denied).Once()

	client := newTestClient(api)
	_, err := client.Invoke(context.Background(), "prompt", "test-chat")

	assert.ErrorIs(t, err, ErrAccessDenied)
	api.AssertNumberOfCalls(t, "CreateChatCompletion", 1)
}

func TestInvoke_ParseFailureRetriedOnceWithStrictReprompt(t *testing.T) {
	api := new(MockInferenceAPI)
	// Empty content fails text extraction; the retry carries the stricter
	// instruction appended to the original prompt.
	api.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return !strings.Contains(req.Messages[0].Content, strictReprompt)
	})).Return(chatResponse(""), nil).Once()
	api.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return strings.Contains(req.Messages[0].Content, strictReprompt)
	})).Return(chatResponse("clean output"), nil).Once()

	client := newTestClient(api)
	out, err := client.Invoke(context.Background(), "prompt", "test-chat")

	require.NoError(t, err)
	assert.Equal(t, "clean output", out)
	api.AssertExpectations(t)
}

func TestInvoke_ParseFailureTwiceSurfaced(t *testing.T) {
	api := new(MockInferenceAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(chatResponse(""), nil).Times(2)

	client := newTestClient(api)
	_, err := client.Invoke(context.Background(), "prompt", "test-chat")

	assert.ErrorIs(t, err, ErrResponseParse)
	api.AssertNumberOfCalls(t, "CreateChatCompletion", 2)
}

func TestInvoke_CompletionShape(t *testing.T) {
	api := new(MockInferenceAPI)
	api.On("CreateCompletion", mock.Anything, mock.MatchedBy(func(req openai.CompletionRequest) bool {
		return req.Model == "test-completion"
	})).Return(openai.CompletionResponse{
		Choices: []openai.CompletionChoice{{Text: "completion text"}},
	}, nil).Once()

	client := newTestClient(api)
	out, err := client.Invoke(context.Background(), "prompt", "test-completion")

	require.NoError(t, err)
	assert.Equal(t, "completion text", out)
	api.AssertExpectations(t)
}

func TestInvoke_JSONWrappedResponseUnwrapped(t *testing.T) {
	api := new(MockInferenceAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(chatResponse(`{"output": "unwrapped value"}`), nil).Once()

	client := newTestClient(api)
	out, err := client.Invoke(context.Background(), "prompt", "test-wrapped")

	require.NoError(t, err)
	assert.Equal(t, "unwrapped value", out)
}

func TestInvoke_JSONWrappedMissingOutputField(t *testing.T) {
	api := new(MockInferenceAPI)
	// Both the original and the strict re-prompt come back without the
	// envelope field.
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(chatResponse(`{"something": "else"}`), nil).Times(2)

	client := newTestClient(api)
	_, err := client.Invoke(context.Background(), "prompt", "test-wrapped")

	assert.ErrorIs(t, err, ErrResponseParse)
}

func TestEstimateTokens_RoundsUp(t *testing.T) {
	p := Profile{CharsPerToken: 4}
	assert.Equal(t, 0, EstimateTokens("", p))
	assert.Equal(t, 1, EstimateTokens("abc", p))
	assert.Equal(t, 1, EstimateTokens("abcd", p))
	assert.Equal(t, 2, EstimateTokens("abcde", p))
}

func TestHasProfile(t *testing.T) {
	client := newTestClient(new(MockInferenceAPI))
	assert.True(t, client.HasProfile("test-chat"))
	assert.False(t, client.HasProfile("missing"))
}
