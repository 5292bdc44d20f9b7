package openrouter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tjfontaine/kudospace/internal/validation"
)

const (
	maxRecipientLength = 100
	maxHighlightLength = 500
)

const systemPrompt = `You are an assistant that writes concise kudos messages with a positive tone.
You create appreciation messages for team members based on the context you are given.
Be warm and specific about what the person achieved, and keep the message authentic.
Emojis, light humor and friendly language are welcome.

IMPORTANT: respond with valid JSON in exactly this format:
{
  "message": "the kudos message (10-320 characters)",
  "suggested_hashtags": ["#hashtag1", "#hashtag2"]
}

Rules:
- message: 10-320 characters, positive and specific
- suggested_hashtags: 0-3 hashtags, lowercase with a # prefix, format: #[a-z0-9_]{2,30}
- Return ONLY the JSON object, with no other text`

var lengthGuidance = map[Length]string{
	LengthShort:  "Keep it brief (50-100 characters)",
	LengthMedium: "Use a moderate length (100-200 characters)",
	LengthLong:   "Be detailed (200-320 characters)",
}

var (
	lineBreaks = regexp.MustCompile(`[\r\n]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Sanitize trims s, truncates it to maxLen characters and collapses line
// breaks and whitespace runs into single spaces.
func Sanitize(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > maxLen {
		s = string(r[:maxLen])
	}
	s = lineBreaks.ReplaceAllString(s, " ")
	return whitespace.ReplaceAllString(s, " ")
}

// buildMessages returns the system and user prompt for req. req must already
// carry its defaults.
func buildMessages(req CompletionRequest) ([]ChatMessage, error) {
	recipient := Sanitize(req.Recipient, maxRecipientLength)
	highlight := Sanitize(req.Highlight, maxHighlightLength)

	user := fmt.Sprintf(`Recipient: %s
Highlight: %s
Tone: %s
Length: %s

Please generate a kudos message that appreciates this person for their contribution.`,
		recipient, highlight, req.Tone, lengthGuidance[req.Length])

	messages := []ChatMessage{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: user},
	}

	for _, msg := range messages {
		if err := schema.Struct(msg); err != nil {
			return nil, errValidation("Invalid message format: %s", validation.Describe(err))
		}
	}

	return messages, nil
}

// composePayload merges the configured model with per-call overrides.
func composePayload(defaultModel string, messages []ChatMessage, opts *CompletionOptions) *ChatCompletionRequest {
	payload := &ChatCompletionRequest{
		Model:    defaultModel,
		Messages: messages,
	}
	if opts == nil {
		return payload
	}

	if opts.Model != nil && *opts.Model != "" {
		payload.Model = *opts.Model
	}
	payload.Temperature = opts.Temperature
	payload.TopP = opts.TopP
	payload.MaxCompletionTokens = opts.MaxCompletionTokens
	payload.PresencePenalty = opts.PresencePenalty

	return payload
}
