// Package google implements the Gemini generateContent response family,
// covering both AI Studio and Vertex endpoints.
package google

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dban0001/llmgateway/internal/providers"
)

const familyName = "google"

// maxStreamBuffer caps how much undelimited stream data we hold while
// waiting for a complete JSON object.
const maxStreamBuffer = 10 << 20

// Thinking budgets per reasoning_effort level.
var thinkingBudgets = map[string]int{
	"low":    1024,
	"medium": 4096,
	"high":   16384,
}

// Family is the Gemini wire codec.
type Family struct{}

// New returns the google family codec.
func New() *Family { return &Family{} }

// Name returns "google".
func (f *Family) Name() string { return familyName }

// TranslateRequest maps the OpenAI-shaped request onto generateContent:
// system messages become system_instruction, assistant turns use the model
// role, and tool traffic converts to functionCall/functionResponse parts.
func (f *Family) TranslateRequest(req *providers.ChatRequest, modelName string) ([]byte, error) {
	_ = modelName // the model rides in the URL, not the body

	out := wireRequest{}
	cfg := wireGenerationConfig{
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		MaxOutputTokens:  req.MaxTokens,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.ReasoningEffort != "" {
		if budget, ok := thinkingBudgets[req.ReasoningEffort]; ok {
			cfg.ThinkingConfig = &wireThinkingConfig{
				ThinkingBudget:  budget,
				IncludeThoughts: true,
			}
		}
	}
	out.GenerationConfig = &cfg

	var system []string
	for i := range req.Messages {
		m := &req.Messages[i]
		switch strings.ToLower(m.Role) {
		case "system", "developer":
			system = append(system, m.Text())
		case "assistant":
			out.Contents = append(out.Contents, assistantContent(m))
		case "tool":
			out.Contents = append(out.Contents, toolContent(m))
		default:
			out.Contents = append(out.Contents, userContent(m))
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &wireContent{
			Parts: []wirePart{{Text: strings.Join(system, "\n")}},
		}
	}

	if len(req.Tools) > 0 {
		decl := wireTool{}
		for _, t := range req.Tools {
			decl.FunctionDeclarations = append(decl.FunctionDeclarations, wireFunctionDecl{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
		out.Tools = []wireTool{decl}
	}

	body, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("google: marshal request: %w", err)
	}
	return body, nil
}

func userContent(m *providers.Message) wireContent {
	c := wireContent{Role: "user"}
	for _, p := range m.Parts() {
		switch p.Type {
		case "image_url":
			if p.ImageURL != nil {
				c.Parts = append(c.Parts, imagePart(p.ImageURL.URL))
			}
		default:
			c.Parts = append(c.Parts, wirePart{Text: p.Text})
		}
	}
	return c
}

func assistantContent(m *providers.Message) wireContent {
	c := wireContent{Role: "model"}
	if text := m.Text(); text != "" {
		c.Parts = append(c.Parts, wirePart{Text: text})
	}
	for _, tc := range m.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		c.Parts = append(c.Parts, wirePart{
			FunctionCall: &wireFunctionCall{Name: tc.Function.Name, Args: args},
		})
	}
	return c
}

func toolContent(m *providers.Message) wireContent {
	// Gemini wants the function result wrapped in a response object.
	resp := json.RawMessage(m.Text())
	if !json.Valid(resp) {
		wrapped, _ := json.Marshal(map[string]string{"result": m.Text()})
		resp = wrapped
	}
	return wireContent{
		Role: "user",
		Parts: []wirePart{{
			FunctionResponse: &wireFunctionResponse{
				Name:     m.Name,
				Response: resp,
			},
		}},
	}
}

func imagePart(url string) wirePart {
	if strings.HasPrefix(url, "data:") {
		mimeType := "image/png"
		data := url
		if semi := strings.Index(url, ";base64,"); semi > 0 {
			mimeType = strings.TrimPrefix(url[:semi], "data:")
			data = url[semi+len(";base64,"):]
		}
		return wirePart{InlineData: &wireInlineData{MIMEType: mimeType, Data: data}}
	}
	return wirePart{FileData: &wireFileData{FileURI: url}}
}

// ParseResponse normalizes a unary generateContent response.
func (f *Family) ParseResponse(data []byte) (*providers.Completion, error) {
	var resp wireResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("google: unmarshal response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("google: response has no candidates")
	}

	cand := resp.Candidates[0]
	out := &providers.Completion{
		Model:        resp.ModelVersion,
		FinishReason: providers.MapFinishReason(cand.FinishReason),
	}

	var content, reasoning strings.Builder
	toolIdx := 0
	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			out.ToolCalls = append(out.ToolCalls, providers.ToolCall{
				ID:   fmt.Sprintf("call_%d", toolIdx),
				Type: "function",
				Function: providers.ToolCallFunction{
					Name:      p.FunctionCall.Name,
					Arguments: string(p.FunctionCall.Args),
				},
			})
			toolIdx++
		case p.Thought:
			reasoning.WriteString(p.Text)
		default:
			content.WriteString(p.Text)
		}
	}
	out.Content = content.String()
	out.ReasoningContent = reasoning.String()
	if len(out.ToolCalls) > 0 && out.FinishReason == "stop" {
		out.FinishReason = "tool_calls"
	}
	out.Usage = convertUsage(resp.UsageMetadata)
	return out, nil
}

func convertUsage(u *wireUsageMetadata) providers.Usage {
	var out providers.Usage
	if u == nil {
		return out
	}
	if u.PromptTokenCount != nil {
		out.PromptTokens = *u.PromptTokenCount
		out.HasPrompt = true
	}
	if u.CandidatesTokenCount != nil {
		out.CompletionTokens = *u.CandidatesTokenCount
		out.HasCompletion = true
	}
	out.ReasoningTokens = u.ThoughtsTokenCount
	out.CachedTokens = u.CachedContentTokenCount
	out.TotalTokens = u.TotalTokenCount
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}
	return out
}

// ── Streaming ────────────────────────────────────────────────────────────────

// streamParser extracts complete top-level JSON objects from the stream
// regardless of framing. streamGenerateContent replies either as an SSE
// stream of data: lines or as a pretty-printed JSON array spanning chunk
// boundaries, so the parser skips everything between objects and balances
// braces itself.
type streamParser struct {
	buf      []byte
	toolIdx  int
	usage    providers.Usage
	finished bool
	done     bool
}

// NewStreamParser returns a fresh generateContent stream scanner.
func (f *Family) NewStreamParser() providers.StreamParser {
	return &streamParser{}
}

func (p *streamParser) Feed(data []byte) ([]providers.StreamEvent, error) {
	p.buf = append(p.buf, data...)
	var events []providers.StreamEvent
	for {
		obj, rest, ok := nextObject(p.buf)
		if !ok {
			break
		}
		p.buf = rest
		if ev, emit := p.handleChunk(obj); emit {
			events = append(events, ev...)
		}
	}
	if len(p.buf) > maxStreamBuffer {
		p.buf = nil
		return events, fmt.Errorf("google: stream chunk exceeds %d bytes", maxStreamBuffer)
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

func (p *streamParser) handleChunk(obj []byte) ([]providers.StreamEvent, bool) {
	var resp wireResponse
	if err := json.Unmarshal(obj, &resp); err != nil {
		return nil, false
	}

	var events []providers.StreamEvent
	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		for _, part := range cand.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				events = append(events, providers.StreamEvent{
					ToolCalls: []providers.ToolCallDelta{{
						Index:     p.toolIdx,
						ID:        fmt.Sprintf("call_%d", p.toolIdx),
						Type:      "function",
						Name:      part.FunctionCall.Name,
						Arguments: string(part.FunctionCall.Args),
					}},
				})
				p.toolIdx++
			case part.Thought:
				events = append(events, providers.StreamEvent{ReasoningContent: part.Text})
			case part.Text != "":
				events = append(events, providers.StreamEvent{Content: part.Text})
			}
		}
		if cand.FinishReason != "" && !p.finished {
			p.finished = true
			reason := providers.MapFinishReason(cand.FinishReason)
			if p.toolIdx > 0 && reason == "stop" {
				reason = "tool_calls"
			}
			events = append(events, providers.StreamEvent{FinishReason: reason})
		}
	}
	if resp.UsageMetadata != nil {
		u := convertUsage(resp.UsageMetadata)
		p.usage = u
		events = append(events, providers.StreamEvent{Usage: &u})
	}
	return events, len(events) > 0
}

// nextObject scans for the next balanced top-level JSON object, skipping
// array punctuation, whitespace, and SSE data: prefixes between objects.
func nextObject(buf []byte) (obj, rest []byte, ok bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(buf); i++ {
		c := buf[i]
		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return buf[start : i+1], buf[i+1:], true
			}
		}
	}
	return nil, buf, false
}
