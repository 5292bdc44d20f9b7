// Package openrouter implements the kudo message completion client for the
// OpenRouter chat completions API.
package openrouter

import "unicode/utf8"

// Tone is the requested register of a generated message.
type Tone string

const (
	ToneCelebratory  Tone = "celebratory"
	ToneGrateful     Tone = "grateful"
	ToneSupportive   Tone = "supportive"
	ToneProfessional Tone = "professional"
)

// Length is the requested size of a generated message.
type Length string

const (
	LengthShort  Length = "short"
	LengthMedium Length = "medium"
	LengthLong   Length = "long"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// CompletionRequest describes the kudo message to draft.
// Zero Tone and Length fall back to grateful and medium.
type CompletionRequest struct {
	Recipient string `json:"recipient" validate:"required,max=100"`
	Highlight string `json:"highlight" validate:"required,max=500"`
	Tone      Tone   `json:"tone" validate:"oneof=celebratory grateful supportive professional"`
	Length    Length `json:"length" validate:"oneof=short medium long"`
}

func (r CompletionRequest) withDefaults() CompletionRequest {
	if r.Tone == "" {
		r.Tone = ToneGrateful
	}
	if r.Length == "" {
		r.Length = LengthMedium
	}
	return r
}

// CompletionOptions are per-call overrides of the upstream sampling
// parameters. Nil fields are not sent.
type CompletionOptions struct {
	Model               *string  `json:"model,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty" validate:"omitnil,min=0,max=2"`
	TopP                *float64 `json:"topP,omitempty" validate:"omitnil,min=0,max=1"`
	MaxCompletionTokens *int     `json:"maxCompletionTokens,omitempty" validate:"omitnil,gt=0"`
	PresencePenalty     *float64 `json:"presencePenalty,omitempty" validate:"omitnil,min=-2,max=2"`
}

// CompletionResult is a validated draft.
type CompletionResult struct {
	Message           string   `json:"message" validate:"min=10,max=320"`
	SuggestedHashtags []string `json:"suggestedHashtags" validate:"max=3,dive,hashtag"`
}

// ChatMessage is a single prompt message.
type ChatMessage struct {
	Role    Role   `json:"role" validate:"oneof=system user assistant"`
	Content string `json:"content"`
}

// ChatCompletionRequest is the upstream request body.
type ChatCompletionRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	Temperature         *float64      `json:"temperature,omitempty"`
	TopP                *float64      `json:"top_p,omitempty"`
	MaxCompletionTokens *int          `json:"max_completion_tokens,omitempty"`
	PresencePenalty     *float64      `json:"presence_penalty,omitempty"`
}

// ChatCompletionResponse is the upstream success body.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion candidate.
type Choice struct {
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Usage reports upstream token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// wireResponse mirrors ChatCompletionResponse with pointers so that missing
// fields can be told apart from empty ones.
type wireResponse struct {
	ID      *string      `json:"id" validate:"required"`
	Model   *string      `json:"model" validate:"required"`
	Choices []wireChoice `json:"choices" validate:"required,dive"`
	Usage   *Usage       `json:"usage"`
}

type wireChoice struct {
	Message      *wireMessage `json:"message" validate:"required"`
	FinishReason *string      `json:"finish_reason" validate:"required"`
}

type wireMessage struct {
	Role    *string `json:"role" validate:"required"`
	Content *string `json:"content" validate:"required"`
}

func (w *wireResponse) toResponse() *ChatCompletionResponse {
	resp := &ChatCompletionResponse{
		ID:      *w.ID,
		Model:   *w.Model,
		Choices: make([]Choice, 0, len(w.Choices)),
		Usage:   w.Usage,
	}
	for _, c := range w.Choices {
		resp.Choices = append(resp.Choices, Choice{
			Message: ChatMessage{
				Role:    Role(*c.Message.Role),
				Content: *c.Message.Content,
			},
			FinishReason: *c.FinishReason,
		})
	}
	return resp
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
