package openrouter

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tjfontaine/kudospace/internal/validation"
)

// objectSpan matches from the first '{' to the last '}'.
var objectSpan = regexp.MustCompile(`(?s)\{.*\}`)

// ExtractJSON returns the JSON document held in content. Content that is
// not JSON on its own is searched for an embedded object.
func ExtractJSON(content string) ([]byte, error) {
	trimmed := []byte(strings.TrimSpace(content))
	if json.Valid(trimmed) {
		return trimmed, nil
	}

	span := objectSpan.Find(trimmed)
	if span == nil {
		return nil, errors.New("no JSON object found in content")
	}

	var probe json.RawMessage
	if err := json.Unmarshal(span, &probe); err != nil {
		return nil, err
	}
	return span, nil
}

// contentResult accepts either hashtag field spelling.
type contentResult struct {
	Message   string    `json:"message"`
	SnakeCase *[]string `json:"suggested_hashtags"`
	CamelCase *[]string `json:"suggestedHashtags"`
}

func (c contentResult) normalize() CompletionResult {
	tags := []string{}
	switch {
	case c.SnakeCase != nil:
		tags = *c.SnakeCase
	case c.CamelCase != nil:
		tags = *c.CamelCase
	}
	if tags == nil {
		tags = []string{}
	}
	return CompletionResult{Message: c.Message, SuggestedHashtags: tags}
}

// decodeResponse validates the shape of an upstream success body.
func decodeResponse(body []byte) (*ChatCompletionResponse, error) {
	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, errParse(fmt.Sprintf("Invalid response format: %v", err), string(body))
	}
	if err := schema.Struct(&wire); err != nil {
		return nil, errParse("Invalid response format: "+validation.Describe(err), string(body))
	}
	return wire.toResponse(), nil
}

// parseResult turns the first choice's content into a validated result.
func parseResult(resp *ChatCompletionResponse, body []byte) (*CompletionResult, error) {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, errParse("Missing message content in response", string(body))
	}
	content := resp.Choices[0].Message.Content

	doc, err := ExtractJSON(content)
	if err != nil {
		return nil, errParse(fmt.Sprintf("Failed to parse JSON response: %v", err), content)
	}

	var raw contentResult
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, errParse(fmt.Sprintf("Failed to parse JSON response: %v", err), string(doc))
	}

	result := raw.normalize()
	if err := schema.Struct(result); err != nil {
		return nil, errParse("Response content validation failed: "+validation.Describe(err), string(doc))
	}

	return &result, nil
}
