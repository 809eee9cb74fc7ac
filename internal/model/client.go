package model

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"github.com/tidwall/gjson"
)

const (
	// DefaultMaxAttempts caps how many times a throttled call is attempted.
	DefaultMaxAttempts = 3
	// DefaultRetryBaseDelay is the initial backoff delay; it doubles per attempt.
	DefaultRetryBaseDelay = 500 * time.Millisecond
	// DefaultCallTimeout bounds a single inference call so one stuck request
	// cannot exhaust the enclosing stage's time budget.
	DefaultCallTimeout = 60 * time.Second

	// strictReprompt is appended when the first response failed to parse.
	strictReprompt = "Respond with only the requested content. Do not add commentary, markdown fences, or any text outside the requested format."
)

// InferenceAPI defines the interface for the external inference service.
type InferenceAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateCompletion(ctx context.Context, req openai.CompletionRequest) (openai.CompletionResponse, error)
}

// Config holds explicit client configuration; zero fields fall back to the
// package defaults.
type Config struct {
	APIKey         string
	MaxAttempts    int
	RetryBaseDelay time.Duration
	CallTimeout    time.Duration
	Profiles       map[string]Profile
}

// Client wraps calls to the inference service: token budgeting, per-model
// request/response adaptation, and bounded retries.
type Client struct {
	api         InferenceAPI
	profiles    map[string]Profile
	maxAttempts int
	baseDelay   time.Duration
	callTimeout time.Duration
}

// NewClient creates a Client backed by the OpenAI-compatible API.
func NewClient(cfg Config) *Client {
	return NewClientWithAPI(openai.NewClient(cfg.APIKey), cfg)
}

// NewClientWithAPI creates a Client with an explicit API implementation.
func NewClientWithAPI(api InferenceAPI, cfg Config) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Profiles == nil {
		cfg.Profiles = DefaultProfiles()
	}
	return &Client{
		api:         api,
		profiles:    cfg.Profiles,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		callTimeout: cfg.CallTimeout,
	}
}

// HasProfile reports whether a profile is registered for the model ID.
func (c *Client) HasProfile(modelID string) bool {
	_, ok := c.profiles[modelID]
	return ok
}

// Profile returns the registered profile for a model ID.
func (c *Client) Profile(modelID string) (Profile, error) {
	p, ok := c.profiles[modelID]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return p, nil
}

// Invoke sends the prompt to the model and returns the generated text.
// Throttled calls are retried with exponential backoff up to the attempt cap;
// access and budget errors are surfaced immediately. A response that cannot
// be parsed is retried exactly once with a stricter re-prompt.
func (c *Client) Invoke(ctx context.Context, prompt, modelID string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	profile, err := c.Profile(modelID)
	if err != nil {
		return "", err
	}

	text, err := c.invokeWithBackoff(ctx, profile, prompt)
	if errors.Is(err, ErrResponseParse) {
		log.Printf("model invoke: parse failure on model %s, retrying once with strict re-prompt", profile.ID)
		text, err = c.invokeWithBackoff(ctx, profile, prompt+"\n\n"+strictReprompt)
	}
	return text, err
}

// invokeWithBackoff performs the budget check and one budgeted call sequence,
// retrying only throttled attempts.
func (c *Client) invokeWithBackoff(ctx context.Context, profile Profile, prompt string) (string, error) {
	estimated := EstimateTokens(prompt, profile)
	reserved := ReservedOutputTokens(profile)
	if estimated+reserved > profile.TokenLimit {
		return "", fmt.Errorf("model %s: estimated %d input tokens plus %d reserved output tokens exceeds limit %d: %w",
			profile.ID, estimated, reserved, profile.TokenLimit, ErrTokenBudgetExceeded)
	}

	var raw string
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		out, callErr := c.call(ctx, profile, prompt, reserved)
		if callErr != nil {
			callErr = classifyAPIError(callErr)
			if errors.Is(callErr, ErrThrottled) {
				log.Printf("model invoke: model %s throttled on attempt %d/%d", profile.ID, attempt, c.maxAttempts)
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		raw = out
		return nil
	})
	if err != nil {
		return "", err
	}

	text, err := shapeText(profile, raw)
	if err != nil {
		return "", err
	}

	// Full audit trail, never truncated.
	log.Printf("model invoke: model=%s estimated_tokens=%d attempts=%d", profile.ID, estimated, attempt)
	log.Printf("model invoke prompt: %s", prompt)
	log.Printf("model invoke raw response: %s", raw)
	log.Printf("model invoke extracted text: %s", text)

	return text, nil
}

// call performs a single network call shaped for the profile.
func (c *Client) call(ctx context.Context, profile Profile, prompt string, maxOutputTokens int) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	switch profile.RequestShape {
	case RequestShapeCompletion:
		resp, err := c.api.CreateCompletion(callCtx, openai.CompletionRequest{
			Model:     profile.ID,
			Prompt:    prompt,
			MaxTokens: maxOutputTokens,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("completion returned no choices: %w", ErrResponseParse)
		}
		return resp.Choices[0].Text, nil
	default:
		resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: profile.ID,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens: maxOutputTokens,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("chat completion returned no choices: %w", ErrResponseParse)
		}
		return resp.Choices[0].Message.Content, nil
	}
}

// shapeText unwraps the generated text according to the profile's response
// shape.
func shapeText(profile Profile, raw string) (string, error) {
	switch profile.ResponseShape {
	case ResponseShapeJSONWrapped:
		if !gjson.Valid(raw) {
			return "", fmt.Errorf("model %s: response is not valid JSON: %w", profile.ID, ErrResponseParse)
		}
		out := gjson.Get(raw, "output")
		if !out.Exists() {
			return "", fmt.Errorf("model %s: response JSON has no output field: %w", profile.ID, ErrResponseParse)
		}
		return out.String(), nil
	default:
		if raw == "" {
			return "", fmt.Errorf("model %s: response text is empty: %w", profile.ID, ErrResponseParse)
		}
		return raw, nil
	}
}
