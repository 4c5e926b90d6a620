// Package openai implements the OpenAI-shaped response family: OpenAI itself
// plus every OpenAI-compatible upstream (DeepSeek, Perplexity, Groq, Together,
// Inference.net, Alibaba, xAI, Moonshot, Meta, and operator-defined custom
// endpoints).
package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dban0001/llmgateway/internal/providers"
)

const familyName = "openai"

// Family is the OpenAI wire codec.
type Family struct{}

// New returns the openai family codec.
func New() *Family { return &Family{} }

// Name returns "openai".
func (f *Family) Name() string { return familyName }

// wireRequest is the upstream chat-completions body. It mirrors the inbound
// OpenAI schema, so translation is mostly field omission.
type wireRequest struct {
	Model            string                     `json:"model"`
	Messages         []providers.Message        `json:"messages"`
	Stream           bool                       `json:"stream,omitempty"`
	StreamOptions    *streamOptions             `json:"stream_options,omitempty"`
	Temperature      *float64                   `json:"temperature,omitempty"`
	MaxTokens        *int                       `json:"max_tokens,omitempty"`
	TopP             *float64                   `json:"top_p,omitempty"`
	FrequencyPenalty *float64                   `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64                   `json:"presence_penalty,omitempty"`
	ResponseFormat   *providers.ResponseFormat  `json:"response_format,omitempty"`
	Tools            []providers.Tool           `json:"tools,omitempty"`
	ToolChoice       json.RawMessage            `json:"tool_choice,omitempty"`
	ReasoningEffort  string                     `json:"reasoning_effort,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// TranslateRequest passes the normalized request through with the provider's
// native model name. Streaming requests ask for a trailing usage chunk.
func (f *Family) TranslateRequest(req *providers.ChatRequest, modelName string) ([]byte, error) {
	out := wireRequest{
		Model:            modelName,
		Messages:         req.Messages,
		Stream:           req.Stream,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		ResponseFormat:   req.ResponseFormat,
		Tools:            req.Tools,
		ToolChoice:       req.ToolChoice,
		ReasoningEffort:  req.ReasoningEffort,
	}
	if req.Stream {
		out.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal request: %w", err)
	}
	return body, nil
}

// ── Unary responses ──────────────────────────────────────────────────────────

type wireUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`

	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`

	CompletionTokensDetails *struct {
		ReasoningTokens int `json:"reasoning_tokens"`
	} `json:"completion_tokens_details"`
}

type wireResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content          string               `json:"content"`
			ReasoningContent string               `json:"reasoning_content"`
			ToolCalls        []providers.ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

// ParseResponse normalizes a unary upstream body.
func (f *Family) ParseResponse(data []byte) (*providers.Completion, error) {
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("openai: unmarshal response: %w", err)
	}
	out := &providers.Completion{
		ID:    resp.ID,
		Model: resp.Model,
	}
	if len(resp.Choices) > 0 {
		c := resp.Choices[0]
		out.Content = c.Message.Content
		out.ReasoningContent = c.Message.ReasoningContent
		out.ToolCalls = c.Message.ToolCalls
		out.FinishReason = providers.MapFinishReason(c.FinishReason)
	} else {
		out.FinishReason = "stop"
	}
	out.Usage = convertUsage(resp.Usage)
	return out, nil
}

func convertUsage(u *wireUsage) providers.Usage {
	var out providers.Usage
	if u == nil {
		return out
	}
	if u.PromptTokens != nil {
		out.PromptTokens = *u.PromptTokens
		out.HasPrompt = true
	}
	if u.CompletionTokens != nil {
		out.CompletionTokens = *u.CompletionTokens
		out.HasCompletion = true
	}
	out.TotalTokens = u.TotalTokens
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	if u.PromptTokensDetails != nil {
		out.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		out.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	return out
}

// ── Streaming ────────────────────────────────────────────────────────────────

type wireChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

// maxStreamBuffer caps the unframed-line accumulation buffer. On overflow
// the buffer is dropped and an error returned; the stream itself continues.
const maxStreamBuffer = 10 << 20

// streamParser is a byte-framed SSE line scanner: it consumes "data: <json>"
// lines delimited by \n and terminates on "data: [DONE]".
type streamParser struct {
	buf  bytes.Buffer
	done bool
}

// NewStreamParser returns a fresh SSE pull-parser.
func (f *Family) NewStreamParser() providers.StreamParser {
	return &streamParser{}
}

func (p *streamParser) Feed(data []byte) ([]providers.StreamEvent, error) {
	p.buf.Write(data)
	var events []providers.StreamEvent
	for {
		raw := p.buf.Bytes()
		i := bytes.IndexByte(raw, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(raw[:i]))
		p.buf.Next(i + 1)
		if ev, ok := p.parseLine(line); ok {
			events = append(events, ev)
		}
	}
	if p.buf.Len() > maxStreamBuffer {
		p.buf.Reset()
		return events, fmt.Errorf("stream line exceeds %d bytes, buffer dropped", maxStreamBuffer)
	}
	return events, nil
}

func (p *streamParser) Finish() []providers.StreamEvent {
	if p.done {
		return nil
	}
	line := strings.TrimSpace(p.buf.String())
	p.buf.Reset()
	if ev, ok := p.parseLine(line); ok {
		return []providers.StreamEvent{ev}
	}
	return nil
}

// parseLine handles a single SSE line. Non-data lines and malformed JSON are
// skipped so one bad chunk never poisons the stream.
func (p *streamParser) parseLine(line string) (providers.StreamEvent, bool) {
	if p.done || !strings.HasPrefix(line, "data:") {
		return providers.StreamEvent{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "[DONE]" {
		p.done = true
		return providers.StreamEvent{Done: true}, true
	}
	var chunk wireChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return providers.StreamEvent{}, false
	}
	return chunkEvent(&chunk), true
}

// chunkEvent converts a parsed wire chunk into a normalized stream event.
func chunkEvent(chunk *wireChunk) providers.StreamEvent {
	var ev providers.StreamEvent
	if len(chunk.Choices) > 0 {
		c := chunk.Choices[0]
		ev.Content = c.Delta.Content
		ev.ReasoningContent = c.Delta.ReasoningContent
		for _, tc := range c.Delta.ToolCalls {
			ev.ToolCalls = append(ev.ToolCalls, providers.ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Type:      tc.Type,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if c.FinishReason != "" {
			ev.FinishReason = providers.MapFinishReason(c.FinishReason)
		}
	}
	if chunk.Usage != nil {
		u := convertUsage(chunk.Usage)
		ev.Usage = &u
	}
	return ev
}
