package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/dban0001/llmgateway/internal/providers"
)

func TestTranslateRequest_SystemAndMaxTokens(t *testing.T) {
	req := &providers.ChatRequest{
		Model: "claude-3-5-sonnet",
		Messages: []providers.Message{
			{Role: "system", Content: json.RawMessage(`"be brief"`)},
			{Role: "user", Content: json.RawMessage(`"hello"`)},
		},
	}

	body, err := New().TranslateRequest(req, "claude-3-5-sonnet-20241022")
	if err != nil {
		t.Fatalf("TranslateRequest: %v", err)
	}

	var out struct {
		Model     string `json:"model"`
		System    string `json:"system"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Model != "claude-3-5-sonnet-20241022" {
		t.Fatalf("model = %q", out.Model)
	}
	if out.System != "be brief" {
		t.Fatalf("system = %q, system turns must move to the top-level field", out.System)
	}
	if out.MaxTokens != defaultMaxTokens {
		t.Fatalf("max_tokens = %d, must default when absent", out.MaxTokens)
	}
	if len(out.Messages) != 1 || out.Messages[0].Role != "user" {
		t.Fatalf("messages = %+v", out.Messages)
	}
	if out.Messages[0].Content[0].Text != "hello" {
		t.Fatalf("user text = %q", out.Messages[0].Content[0].Text)
	}
}

func TestTranslateRequest_ThinkingRaisesMaxTokens(t *testing.T) {
	mt := 100
	req := &providers.ChatRequest{
		Messages:        []providers.Message{{Role: "user", Content: json.RawMessage(`"hi"`)}},
		MaxTokens:       &mt,
		ReasoningEffort: "high",
	}
	body, err := New().TranslateRequest(req, "claude-3-7-sonnet")
	if err != nil {
		t.Fatalf("TranslateRequest: %v", err)
	}
	var out struct {
		MaxTokens int `json:"max_tokens"`
		Thinking  *struct {
			Type         string `json:"type"`
			BudgetTokens int    `json:"budget_tokens"`
		} `json:"thinking"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Thinking == nil || out.Thinking.Type != "enabled" || out.Thinking.BudgetTokens != thinkingBudgets["high"] {
		t.Fatalf("thinking = %+v", out.Thinking)
	}
	if out.MaxTokens <= out.Thinking.BudgetTokens {
		t.Fatalf("max_tokens %d must exceed the thinking budget %d", out.MaxTokens, out.Thinking.BudgetTokens)
	}
}

func TestTranslateRequest_ToolChoice(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"auto", `"auto"`, "auto"},
		{"required maps to any", `"required"`, "any"},
		{"none", `"none"`, "none"},
		{"named function", `{"type":"function","function":{"name":"get_weather"}}`, "tool"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &providers.ChatRequest{
				Messages:   []providers.Message{{Role: "user", Content: json.RawMessage(`"hi"`)}},
				ToolChoice: json.RawMessage(tc.raw),
			}
			body, err := New().TranslateRequest(req, "claude-3-5-sonnet")
			if err != nil {
				t.Fatalf("TranslateRequest: %v", err)
			}
			var out struct {
				ToolChoice *wireToolChoice `json:"tool_choice"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if out.ToolChoice == nil || out.ToolChoice.Type != tc.want {
				t.Fatalf("tool_choice = %+v, want type %q", out.ToolChoice, tc.want)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	raw := `{
		"id": "msg_01",
		"model": "claude-3-5-sonnet-20241022",
		"content": [
			{"type": "thinking", "thinking": "hmm"},
			{"type": "text", "text": "Hello "},
			{"type": "text", "text": "world"},
			{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Oslo"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 30, "output_tokens": 12, "cache_read_input_tokens": 5}
	}`

	out, err := New().ParseResponse([]byte(raw))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if out.Content != "Hello world" || out.ReasoningContent != "hmm" {
		t.Fatalf("content = %q reasoning = %q", out.Content, out.ReasoningContent)
	}
	if out.FinishReason != "tool_calls" {
		t.Fatalf("finish = %q, tool_use must normalize to tool_calls", out.FinishReason)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Function.Name != "get_weather" {
		t.Fatalf("tool calls = %+v", out.ToolCalls)
	}
	u := out.Usage
	if u.PromptTokens != 30 || u.CompletionTokens != 12 || u.TotalTokens != 42 || u.CachedTokens != 5 {
		t.Fatalf("usage = %+v", u)
	}
	if !u.HasPrompt || !u.HasCompletion {
		t.Fatal("usage flags must be set")
	}
}

// messagesStream is a realistic Messages SSE transcript.
const messagesStream = "event: message_start\n" +
	"data: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_01\",\"model\":\"claude-3-5-sonnet\",\"usage\":{\"input_tokens\":25,\"output_tokens\":1}}}\n\n" +
	"event: content_block_start\n" +
	"data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n" +
	"event: content_block_delta\n" +
	"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n" +
	"event: message_delta\n" +
	"data: {\"type\":\"message_delta\",\"delta\":{\"stop_reason\":\"end_turn\"},\"usage\":{\"output_tokens\":7}}\n\n" +
	"event: message_stop\n" +
	"data: {\"type\":\"message_stop\"}\n\n"

func TestStreamParser_MessagesTranscript(t *testing.T) {
	p := New().NewStreamParser()

	// Feed in awkward chunk sizes to exercise buffering.
	var events []providers.StreamEvent
	raw := []byte(messagesStream)
	for len(raw) > 0 {
		n := 17
		if n > len(raw) {
			n = len(raw)
		}
		evs, err := p.Feed(raw[:n])
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		events = append(events, evs...)
		raw = raw[n:]
	}
	events = append(events, p.Finish()...)

	var content, finish string
	var usage providers.Usage
	var done bool
	for _, ev := range events {
		content += ev.Content
		if ev.FinishReason != "" {
			finish = ev.FinishReason
		}
		if ev.Usage != nil {
			usage = *ev.Usage
		}
		if ev.Done {
			done = true
		}
	}

	if content != "Hello" {
		t.Fatalf("content = %q", content)
	}
	if finish != "stop" {
		t.Fatalf("finish = %q, end_turn must normalize to stop", finish)
	}
	if !done {
		t.Fatal("no done event")
	}
	// message_delta carries only output tokens; the prompt count from
	// message_start must survive.
	if usage.PromptTokens != 25 || usage.CompletionTokens != 7 || usage.TotalTokens != 32 {
		t.Fatalf("usage = %+v", usage)
	}
	if !usage.HasPrompt || !usage.HasCompletion {
		t.Fatal("usage flags must be set")
	}
}

func TestStreamParser_ToolUseBlocks(t *testing.T) {
	raw := "event: content_block_start\n" +
		"data: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"tool_use\",\"id\":\"toolu_9\",\"name\":\"lookup\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"{\\\"q\\\":\"}}\n\n" +
		"event: content_block_delta\n" +
		"data: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"input_json_delta\",\"partial_json\":\"\\\"go\\\"}\"}}\n\n" +
		"event: message_stop\n" +
		"data: {\"type\":\"message_stop\"}\n\n"

	p := New().NewStreamParser()
	events, err := p.Feed([]byte(raw))
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}

	acc := providers.NewToolCallAccumulator()
	for _, ev := range events {
		for _, d := range ev.ToolCalls {
			acc.Add(d)
		}
	}
	calls := acc.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].ID != "toolu_9" || calls[0].Function.Name != "lookup" {
		t.Fatalf("call = %+v", calls[0])
	}
	if calls[0].Function.Arguments != `{"q":"go"}` {
		t.Fatalf("arguments = %q", calls[0].Function.Arguments)
	}
}

func TestStreamParser_FinishWithoutMessageStop(t *testing.T) {
	p := New().NewStreamParser()
	if _, err := p.Feed([]byte("event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"hi\"}}\n\n")); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	final := p.Finish()
	if len(final) != 1 || !final[0].Done {
		t.Fatalf("Finish after truncated stream = %+v, want synthetic done", final)
	}
	if extra := p.Finish(); extra != nil {
		t.Fatalf("second Finish = %+v, want nil", extra)
	}
}
