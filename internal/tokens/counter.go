// Package tokens estimates prompt sizes for chat completion requests.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Chat formatting overhead, following OpenAI's accounting for chat models.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
	assistantPriming = 3
)

// Counter counts tokens with tiktoken encodings. OpenRouter model ids carry a
// vendor prefix ("openai/gpt-4o", "meta-llama/..."); the encoding is chosen
// from the model family and falls back to o200k_base.
type Counter struct {
	mu     sync.RWMutex
	codecs map[tokenizer.Encoding]tokenizer.Codec

	// CharsPerToken is used when no encoding can be loaded.
	CharsPerToken float64
}

// NewCounter creates a Counter with an empty codec cache.
func NewCounter() *Counter {
	return &Counter{
		codecs:        make(map[tokenizer.Encoding]tokenizer.Codec),
		CharsPerToken: 4.0,
	}
}

// CountChat returns the prompt token count for a chat made of the given
// message contents. The boolean reports whether the count is a character
// based estimate rather than a tokenizer count.
func (c *Counter) CountChat(model string, contents ...string) (int, bool) {
	codec, err := c.codec(encodingFor(model))
	if err != nil {
		return c.estimate(contents), true
	}

	total := assistantPriming
	for _, content := range contents {
		total += tokensPerMessage + tokensPerRole
		ids, _, err := codec.Encode(content)
		if err != nil {
			return c.estimate(contents), true
		}
		total += len(ids)
	}
	return total, false
}

func (c *Counter) estimate(contents []string) int {
	chars := 0
	for _, content := range contents {
		// role and separators
		chars += len(content) + 4
	}
	return int(float64(chars) / c.CharsPerToken)
}

func (c *Counter) codec(enc tokenizer.Encoding) (tokenizer.Codec, error) {
	c.mu.RLock()
	cached, ok := c.codecs[enc]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(enc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.codecs[enc] = codec
	c.mu.Unlock()
	return codec, nil
}

// encodingFor maps a model id to a tiktoken encoding.
//
//   - o200k_base: gpt-4o, gpt-4.1, gpt-5, o-series and anything unknown
//   - cl100k_base: gpt-4, gpt-3.5-turbo
func encodingFor(model string) tokenizer.Encoding {
	model = strings.ToLower(model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}

	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		return tokenizer.O200kBase
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5"):
		return tokenizer.Cl100kBase
	default:
		return tokenizer.O200kBase
	}
}
