// Package mistral wraps the openai wire codec with a post-step that unwraps
// fenced JSON blocks Mistral emits even when json_object output is requested.
package mistral

import (
	"encoding/json"
	"strings"

	"github.com/dban0001/llmgateway/internal/providers"
	"github.com/dban0001/llmgateway/internal/providers/openai"
)

// Family is the Mistral codec: the OpenAI dialect plus fence unwrapping.
type Family struct {
	inner *openai.Family
}

// New returns the mistral family codec.
func New() *Family { return &Family{inner: openai.New()} }

// Name returns "mistral".
func (f *Family) Name() string { return "mistral" }

// TranslateRequest is the plain OpenAI dialect.
func (f *Family) TranslateRequest(req *providers.ChatRequest, modelName string) ([]byte, error) {
	return f.inner.TranslateRequest(req, modelName)
}

// ParseResponse parses as OpenAI and then unwraps a fenced JSON body.
func (f *Family) ParseResponse(data []byte) (*providers.Completion, error) {
	resp, err := f.inner.ParseResponse(data)
	if err != nil {
		return nil, err
	}
	resp.Content = UnwrapJSONFence(resp.Content)
	return resp, nil
}

// NewStreamParser is the plain OpenAI stream parser. Fences can straddle
// chunk boundaries, so unwrapping only applies to unary responses.
func (f *Family) NewStreamParser() providers.StreamParser {
	return f.inner.NewStreamParser()
}

// UnwrapJSONFence extracts the JSON inside a ```json fenced block and
// re-serializes it compactly. Content without a valid fenced JSON body is
// returned unchanged.
func UnwrapJSONFence(content string) string {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "```json")
	if start < 0 {
		return content
	}
	body := trimmed[start+len("```json"):]
	end := strings.Index(body, "```")
	if end < 0 {
		return content
	}
	body = strings.TrimSpace(body[:end])

	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return content
	}
	compact, err := json.Marshal(decoded)
	if err != nil {
		return content
	}
	return string(compact)
}
