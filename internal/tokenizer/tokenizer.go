// Package tokenizer counts tokens for cost imputation when upstream omits
// usage. Counts are estimates: one shared cl100k_base encoding regardless of
// the target model, with a bytes/4 heuristic if the encoding cannot load.
package tokenizer

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/dban0001/llmgateway/internal/providers"
)

// perMessageOverhead approximates the framing tokens each chat message adds.
const perMessageOverhead = 4

type Counter struct {
	enc *tiktoken.Tiktoken
}

// New loads the cl100k_base encoding. The heuristic fallback keeps the
// gateway serving if the BPE ranks are unavailable.
func New() *Counter {
	enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// CountText returns the token count of a raw string. Non-empty input always
// counts at least one token.
func (c *Counter) CountText(s string) int {
	if s == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(s, nil, nil))
	}
	n := (len(s) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// CountChat approximates the prompt token count of a message history.
func (c *Counter) CountChat(messages []providers.Message) int {
	total := 0
	for i := range messages {
		m := &messages[i]
		total += perMessageOverhead
		total += c.CountText(m.Role)
		total += c.CountText(m.Text())
		for _, tc := range m.ToolCalls {
			total += c.CountText(tc.Function.Name)
			total += c.CountText(tc.Function.Arguments)
		}
	}
	return total
}
