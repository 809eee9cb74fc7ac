package model

import (
	openai "github.com/sashabaranov/go-openai"
)

// RequestShape selects how a prompt is packaged for a model.
type RequestShape string

const (
	// RequestShapeChat sends the prompt as a single-turn chat completion.
	RequestShapeChat RequestShape = "chat"
	// RequestShapeCompletion sends the prompt to the legacy completion endpoint.
	RequestShapeCompletion RequestShape = "completion"
)

// ResponseShape selects how the generated text is pulled out of a response.
type ResponseShape string

const (
	// ResponseShapeText takes the first choice's content verbatim.
	ResponseShapeText ResponseShape = "text"
	// ResponseShapeJSONWrapped expects a JSON envelope with the text under
	// the "output" field.
	ResponseShapeJSONWrapped ResponseShape = "json_wrapped"
)

// Profile holds the per-model request/response adaptation and token budget.
// Profiles are selected by lookup so model differences stay out of callers.
type Profile struct {
	ID            string
	TokenLimit    int
	CharsPerToken float64
	RequestShape  RequestShape
	ResponseShape ResponseShape
}

// DefaultProfiles returns the closed set of models the pipeline supports.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		openai.GPT4oMini: {
			ID:            openai.GPT4oMini,
			TokenLimit:    128000,
			CharsPerToken: 4,
			RequestShape:  RequestShapeChat,
			ResponseShape: ResponseShapeText,
		},
		openai.GPT4o: {
			ID:            openai.GPT4o,
			TokenLimit:    128000,
			CharsPerToken: 4,
			RequestShape:  RequestShapeChat,
			ResponseShape: ResponseShapeText,
		},
		openai.GPT3Dot5TurboInstruct: {
			ID:            openai.GPT3Dot5TurboInstruct,
			TokenLimit:    4096,
			CharsPerToken: 4,
			RequestShape:  RequestShapeCompletion,
			ResponseShape: ResponseShapeText,
		},
	}
}

// EstimateTokens approximates the token count of text using the profile's
// documented character ratio. The estimate is deliberately conservative: it
// rounds up.
func EstimateTokens(text string, p Profile) int {
	ratio := p.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}
	chars := len([]rune(text))
	tokens := int(float64(chars) / ratio)
	if float64(tokens)*ratio < float64(chars) {
		tokens++
	}
	return tokens
}

// ReservedOutputTokens is the slice of the model's limit held back for the
// generated output: at least 20% of the total budget.
func ReservedOutputTokens(p Profile) int {
	return p.TokenLimit / 5
}
