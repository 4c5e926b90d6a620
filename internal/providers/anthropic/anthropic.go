// Package anthropic implements the Anthropic Messages response family.
package anthropic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dban0001/llmgateway/internal/providers"
)

const (
	familyName       = "anthropic"
	defaultMaxTokens = 4096
)

// Thinking budgets per reasoning_effort level.
var thinkingBudgets = map[string]int{
	"low":    1024,
	"medium": 4096,
	"high":   16384,
}

// Family is the Anthropic wire codec.
type Family struct{}

// New returns the anthropic family codec.
func New() *Family { return &Family{} }

// Name returns "anthropic".
func (f *Family) Name() string { return familyName }

// TranslateRequest maps the OpenAI-shaped request onto the Messages API:
// system messages move to the top-level system field, tools and tool_choice
// are converted, and max_tokens is always present (required upstream).
func (f *Family) TranslateRequest(req *providers.ChatRequest, modelName string) ([]byte, error) {
	out := wireRequest{
		Model:       modelName,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   defaultMaxTokens,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	var system []string
	for i := range req.Messages {
		m := &req.Messages[i]
		switch strings.ToLower(m.Role) {
		case "system", "developer":
			system = append(system, m.Text())
		case "tool":
			out.Messages = append(out.Messages, wireMessage{
				Role: "user",
				Content: []wireBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Text(),
				}},
			})
		case "assistant":
			out.Messages = append(out.Messages, assistantMessage(m))
		default:
			out.Messages = append(out.Messages, userMessage(m))
		}
	}
	if len(system) > 0 {
		out.System = strings.Join(system, "\n")
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	if tc := translateToolChoice(req.ToolChoice); tc != nil {
		out.ToolChoice = tc
	}

	if req.ReasoningEffort != "" {
		if budget, ok := thinkingBudgets[req.ReasoningEffort]; ok {
			out.Thinking = &wireThinking{Type: "enabled", BudgetTokens: budget}
			// Thinking requires headroom above the budget.
			if out.MaxTokens <= budget {
				out.MaxTokens = budget + defaultMaxTokens
			}
		}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}
	return body, nil
}

func userMessage(m *providers.Message) wireMessage {
	var blocks []wireBlock
	for _, p := range m.Parts() {
		switch p.Type {
		case "image_url":
			if p.ImageURL != nil {
				blocks = append(blocks, imageBlock(p.ImageURL.URL))
			}
		default:
			blocks = append(blocks, wireBlock{Type: "text", Text: p.Text})
		}
	}
	return wireMessage{Role: "user", Content: blocks}
}

func assistantMessage(m *providers.Message) wireMessage {
	var blocks []wireBlock
	if text := m.Text(); text != "" {
		blocks = append(blocks, wireBlock{Type: "text", Text: text})
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, wireBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}
	return wireMessage{Role: "assistant", Content: blocks}
}

// imageBlock converts a data URL into a base64 source block; plain URLs use
// the url source type.
func imageBlock(url string) wireBlock {
	if strings.HasPrefix(url, "data:") {
		mediaType := "image/png"
		data := url
		if semi := strings.Index(url, ";base64,"); semi > 0 {
			mediaType = strings.TrimPrefix(url[:semi], "data:")
			data = url[semi+len(";base64,"):]
		}
		return wireBlock{Type: "image", Source: &wireImageSource{
			Type: "base64", MediaType: mediaType, Data: data,
		}}
	}
	return wireBlock{Type: "image", Source: &wireImageSource{Type: "url", URL: url}}
}

func translateToolChoice(raw json.RawMessage) *wireToolChoice {
	if len(raw) == 0 {
		return nil
	}
	var mode string
	if err := json.Unmarshal(raw, &mode); err == nil {
		switch mode {
		case "auto":
			return &wireToolChoice{Type: "auto"}
		case "required":
			return &wireToolChoice{Type: "any"}
		case "none":
			return &wireToolChoice{Type: "none"}
		}
		return nil
	}
	var obj struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Function.Name != "" {
		return &wireToolChoice{Type: "tool", Name: obj.Function.Name}
	}
	return nil
}

// ParseResponse normalizes a unary Messages response.
func (f *Family) ParseResponse(data []byte) (*providers.Completion, error) {
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("anthropic: unmarshal response: %w", err)
	}

	out := &providers.Completion{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: providers.MapFinishReason(resp.StopReason),
	}

	var content, reasoning strings.Builder
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			content.WriteString(b.Text)
		case "thinking":
			reasoning.WriteString(b.Thinking)
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, providers.ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: providers.ToolCallFunction{
					Name:      b.Name,
					Arguments: string(b.Input),
				},
			})
		}
	}
	out.Content = content.String()
	out.ReasoningContent = reasoning.String()
	out.Usage = convertUsage(&resp.Usage)
	return out, nil
}

func convertUsage(u *wireUsage) providers.Usage {
	var out providers.Usage
	if u == nil {
		return out
	}
	if u.InputTokens != nil {
		out.PromptTokens = *u.InputTokens
		out.HasPrompt = true
	}
	if u.OutputTokens != nil {
		out.CompletionTokens = *u.OutputTokens
		out.HasCompletion = true
	}
	out.CachedTokens = u.CacheReadInputTokens
	out.TotalTokens = out.PromptTokens + out.CompletionTokens
	return out
}

// ── Streaming ────────────────────────────────────────────────────────────────

// maxStreamBuffer caps the unframed-line accumulation buffer.
const maxStreamBuffer = 10 << 20

// streamParser is a state machine over the Messages SSE event kinds:
// message_start, content_block_start, content_block_delta, message_delta,
// message_stop. Tool-call argument fragments arrive as partial_json deltas
// extending the most recently started tool_use block.
type streamParser struct {
	buf       []byte
	event     string
	toolIndex int // index of the most recent tool_use block, -1 before any
	usage     providers.Usage
	done      bool
}

// NewStreamParser returns a fresh Messages-stream state machine.
func (f *Family) NewStreamParser() providers.StreamParser {
	return &streamParser{toolIndex: -1}
}

func (p *streamParser) Feed(data []byte) ([]providers.StreamEvent, error) {
	p.buf = append(p.buf, data...)
	var events []providers.StreamEvent
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(p.buf[:i]))
		p.buf = p.buf[i+1:]
		if ev, ok := p.parseLine(line); ok {
			events = append(events, ev)
		}
	}
	if len(p.buf) > maxStreamBuffer {
		p.buf = nil
		return events, fmt.Errorf("stream line exceeds %d bytes, buffer dropped", maxStreamBuffer)
	}
	return events, nil
}

func (p *streamParser) Finish() []providers.StreamEvent {
	if p.done {
		return nil
	}
	p.done = true
	return []providers.StreamEvent{{Done: true}}
}

func (p *streamParser) parseLine(line string) (providers.StreamEvent, bool) {
	switch {
	case p.done, line == "":
		return providers.StreamEvent{}, false
	case strings.HasPrefix(line, "event:"):
		p.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		return providers.StreamEvent{}, false
	case strings.HasPrefix(line, "data:"):
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		return p.handleData(payload)
	default:
		return providers.StreamEvent{}, false
	}
}

func (p *streamParser) handleData(payload string) (providers.StreamEvent, bool) {
	var ev wireStreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return providers.StreamEvent{}, false
	}
	kind := ev.Type
	if kind == "" {
		kind = p.event
	}

	switch kind {
	case "message_start":
		if ev.Message != nil {
			p.usage = convertUsage(ev.Message.Usage)
			u := p.usage
			return providers.StreamEvent{Usage: &u}, true
		}

	case "content_block_start":
		if ev.ContentBlock != nil && ev.ContentBlock.Type == "tool_use" {
			p.toolIndex++
			return providers.StreamEvent{ToolCalls: []providers.ToolCallDelta{{
				Index: p.toolIndex,
				ID:    ev.ContentBlock.ID,
				Type:  "function",
				Name:  ev.ContentBlock.Name,
			}}}, true
		}

	case "content_block_delta":
		if ev.Delta == nil {
			break
		}
		switch ev.Delta.Type {
		case "text_delta":
			return providers.StreamEvent{Content: ev.Delta.Text}, true
		case "thinking_delta":
			return providers.StreamEvent{ReasoningContent: ev.Delta.Thinking}, true
		case "input_json_delta":
			if p.toolIndex >= 0 {
				return providers.StreamEvent{ToolCalls: []providers.ToolCallDelta{{
					Index:     p.toolIndex,
					Arguments: ev.Delta.PartialJSON,
				}}}, true
			}
		}

	case "message_delta":
		out := providers.StreamEvent{}
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			out.FinishReason = providers.MapFinishReason(ev.Delta.StopReason)
		}
		if ev.Usage != nil {
			u := convertUsage(ev.Usage)
			// Early Anthropic chunks report only output tokens; preserve the
			// prompt count from message_start.
			if !u.HasPrompt && p.usage.HasPrompt {
				u.PromptTokens = p.usage.PromptTokens
				u.HasPrompt = true
				u.TotalTokens = u.PromptTokens + u.CompletionTokens
			}
			p.usage = u
			out.Usage = &u
		}
		if out.FinishReason != "" || out.Usage != nil {
			return out, true
		}

	case "message_stop":
		p.done = true
		return providers.StreamEvent{Done: true}, true
	}

	return providers.StreamEvent{}, false
}
