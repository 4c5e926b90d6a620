// Package providers defines the common request/response contract shared by
// all upstream response families (OpenAI-shaped, Anthropic, Google, Mistral).
//
// Each family lives in its own sub-package and implements the Family
// interface: it translates the normalized OpenAI-shaped request into the
// provider's native body, parses unary responses, and exposes a pull-parser
// for streamed responses.
package providers

import (
	"encoding/json"
	"strings"
)

type (
	// Message is a single turn in a conversation. Content is kept raw because
	// the OpenAI schema accepts either a bare string or an array of typed
	// parts (text / image_url).
	Message struct {
		Role       string          `json:"role"`
		Content    json.RawMessage `json:"content,omitempty"`
		Name       string          `json:"name,omitempty"`
		ToolCallID string          `json:"tool_call_id,omitempty"`
		ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	}

	// ContentPart is one element of an array-form message content.
	ContentPart struct {
		Type     string    `json:"type"`
		Text     string    `json:"text,omitempty"`
		ImageURL *ImageURL `json:"image_url,omitempty"`
	}

	// ImageURL carries an image reference or data URL.
	ImageURL struct {
		URL string `json:"url"`
	}

	// ResponseFormat mirrors the OpenAI response_format object.
	ResponseFormat struct {
		Type string `json:"type"`
	}

	// Tool is an OpenAI function tool definition.
	Tool struct {
		Type     string       `json:"type"`
		Function ToolFunction `json:"function"`
	}

	// ToolFunction describes a callable function.
	ToolFunction struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	}

	// ToolCall is a completed (or accumulating) function invocation.
	ToolCall struct {
		ID       string           `json:"id,omitempty"`
		Type     string           `json:"type,omitempty"`
		Function ToolCallFunction `json:"function"`
	}

	// ToolCallFunction carries the function name and JSON-encoded arguments.
	ToolCallFunction struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments"`
	}

	// ChatRequest is the normalized OpenAI-shaped input handed to a Family.
	// Optional numeric fields are pointers so "absent" and "zero" stay
	// distinguishable for translation and cache fingerprinting.
	ChatRequest struct {
		Model            string          `json:"model"`
		Messages         []Message       `json:"messages"`
		Stream           bool            `json:"stream,omitempty"`
		Temperature      *float64        `json:"temperature,omitempty"`
		MaxTokens        *int            `json:"max_tokens,omitempty"`
		TopP             *float64        `json:"top_p,omitempty"`
		FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
		PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
		ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
		Tools            []Tool          `json:"tools,omitempty"`
		ToolChoice       json.RawMessage `json:"tool_choice,omitempty"`
		ReasoningEffort  string          `json:"reasoning_effort,omitempty"`
	}

	// Usage is the normalized token accounting for a completion. The Has*
	// flags record which counts the upstream actually reported; missing
	// counts are imputed later by the tokenizer.
	Usage struct {
		PromptTokens     int
		CompletionTokens int
		TotalTokens      int
		ReasoningTokens  int
		CachedTokens     int

		HasPrompt     bool
		HasCompletion bool
	}

	// Completion is the normalized unary result of an upstream call.
	Completion struct {
		ID               string
		Model            string
		Content          string
		ReasoningContent string
		FinishReason     string
		ToolCalls        []ToolCall
		Usage            Usage
	}

	// StreamEvent is one normalized event produced by a stream parser.
	// Zero-value fields are absent; Usage is non-nil only when the upstream
	// delivered token counts in the stream.
	StreamEvent struct {
		Content          string
		ReasoningContent string
		ToolCalls        []ToolCallDelta
		FinishReason     string
		Usage            *Usage
		Done             bool
	}

	// ToolCallDelta is an incremental tool-call fragment keyed by index.
	ToolCallDelta struct {
		Index     int
		ID        string
		Type      string
		Name      string
		Arguments string
	}
)

// Family is the response-dialect capability implemented per upstream family.
type Family interface {
	// Name returns the family tag: openai | anthropic | google | mistral.
	Name() string

	// TranslateRequest builds the provider-native JSON body from the
	// normalized request. modelName is the provider-native model name.
	TranslateRequest(req *ChatRequest, modelName string) ([]byte, error)

	// ParseResponse normalizes a unary upstream response body.
	ParseResponse(data []byte) (*Completion, error)

	// NewStreamParser returns a fresh pull-parser for one streamed response.
	NewStreamParser() StreamParser
}

// StreamParser consumes raw upstream bytes and yields normalized events.
// Feed may be called with arbitrary chunk boundaries; Finish flushes any
// buffered trailer once the upstream body is exhausted.
type StreamParser interface {
	Feed(p []byte) ([]StreamEvent, error)
	Finish() []StreamEvent
}

// Text extracts the plain-text content of a message: a bare string as-is, or
// the concatenation of the text parts of an array-form content.
func (m *Message) Text() string {
	if len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Parts returns the message content as typed parts. A bare string becomes a
// single text part.
func (m *Message) Parts() []ContentPart {
	if len(m.Content) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return []ContentPart{{Type: "text", Text: s}}
	}
	var parts []ContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return nil
	}
	return parts
}

// MapFinishReason normalizes an upstream finish reason onto the OpenAI set.
// Already-normalized values map to themselves.
func MapFinishReason(upstream string) string {
	switch upstream {
	case "":
		return "stop"
	case "STOP", "end_turn", "stop":
		return "stop"
	case "tool_use", "tool_calls":
		return "tool_calls"
	case "length", "MAX_TOKENS", "max_tokens":
		return "length"
	default:
		return strings.ToLower(upstream)
	}
}

// ToolCallAccumulator merges per-chunk tool-call deltas into complete calls,
// keyed by index. Argument fragments are concatenated in arrival order.
type ToolCallAccumulator struct {
	calls map[int]*ToolCall
	order []int
}

// NewToolCallAccumulator returns an empty accumulator.
func NewToolCallAccumulator() *ToolCallAccumulator {
	return &ToolCallAccumulator{calls: make(map[int]*ToolCall)}
}

// Add merges one delta.
func (a *ToolCallAccumulator) Add(d ToolCallDelta) {
	tc, ok := a.calls[d.Index]
	if !ok {
		tc = &ToolCall{}
		a.calls[d.Index] = tc
		a.order = append(a.order, d.Index)
	}
	if d.ID != "" {
		tc.ID = d.ID
	}
	if d.Type != "" {
		tc.Type = d.Type
	}
	if d.Name != "" {
		tc.Function.Name = d.Name
	}
	tc.Function.Arguments += d.Arguments
}

// Calls returns the accumulated tool calls in first-seen index order.
func (a *ToolCallAccumulator) Calls() []ToolCall {
	if len(a.order) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		tc := a.calls[idx]
		if tc.Type == "" {
			tc.Type = "function"
		}
		out = append(out, *tc)
	}
	return out
}

// Len returns the number of distinct tool calls seen so far.
func (a *ToolCallAccumulator) Len() int { return len(a.order) }
