package model

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrTokenBudgetExceeded is returned before any network call when the
	// estimated input plus reserved output would not fit the model's limit.
	// Never retried: the fix is a smaller chunk, not another attempt.
	ErrTokenBudgetExceeded = errors.New("prompt exceeds model token budget")

	// ErrAccessDenied is returned for authentication or authorization
	// failures from the inference service. Never retried.
	ErrAccessDenied = errors.New("inference service denied access")

	// ErrThrottled is returned when the inference service rate-limits the
	// call. Retried with exponential backoff up to the attempt cap.
	ErrThrottled = errors.New("inference service throttled the request")

	// ErrResponseParse is returned when a response arrives but the generated
	// text cannot be extracted from it.
	ErrResponseParse = errors.New("inference response could not be parsed")

	// ErrUnknownModel is returned when no profile exists for the model ID.
	ErrUnknownModel = errors.New("no profile registered for model")

	// ErrEmptyPrompt is returned when the prompt is empty.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
)

// classifyAPIError maps provider errors onto the client's error taxonomy.
// Unrecognized errors pass through unchanged and are treated as non-retryable.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return errors.Join(ErrThrottled, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Join(ErrAccessDenied, err)
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusTooManyRequests:
			return errors.Join(ErrThrottled, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return errors.Join(ErrAccessDenied, err)
		}
	}

	return err
}
