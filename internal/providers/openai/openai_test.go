package openai

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/dban0001/llmgateway/internal/providers"
)

func chatReq(stream bool) *providers.ChatRequest {
	return &providers.ChatRequest{
		Model: "gpt-4o",
		Messages: []providers.Message{
			{Role: "user", Content: json.RawMessage(`"hello"`)},
		},
		Stream: stream,
	}
}

func TestTranslateRequest_SwapsModelName(t *testing.T) {
	body, err := New().TranslateRequest(chatReq(false), "gpt-4o-2024-08-06")
	if err != nil {
		t.Fatalf("TranslateRequest: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if out["model"] != "gpt-4o-2024-08-06" {
		t.Fatalf("model = %v, want provider-native name", out["model"])
	}
	if _, ok := out["stream_options"]; ok {
		t.Fatal("non-streaming request must not set stream_options")
	}
}

func TestTranslateRequest_StreamRequestsUsageChunk(t *testing.T) {
	body, err := New().TranslateRequest(chatReq(true), "gpt-4o")
	if err != nil {
		t.Fatalf("TranslateRequest: %v", err)
	}
	if !strings.Contains(string(body), `"stream_options":{"include_usage":true}`) {
		t.Fatalf("streaming body missing stream_options: %s", body)
	}
}

func TestParseResponse(t *testing.T) {
	raw := `{
		"id": "chatcmpl-abc",
		"model": "gpt-4o-2024-08-06",
		"choices": [{
			"message": {"content": "Hi there", "reasoning_content": "thinking"},
			"finish_reason": "stop"
		}],
		"usage": {
			"prompt_tokens": 12,
			"completion_tokens": 4,
			"total_tokens": 16,
			"prompt_tokens_details": {"cached_tokens": 3},
			"completion_tokens_details": {"reasoning_tokens": 2}
		}
	}`

	out, err := New().ParseResponse([]byte(raw))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if out.Content != "Hi there" || out.ReasoningContent != "thinking" {
		t.Fatalf("content = %q / %q", out.Content, out.ReasoningContent)
	}
	if out.FinishReason != "stop" {
		t.Fatalf("finish = %q", out.FinishReason)
	}
	u := out.Usage
	if !u.HasPrompt || !u.HasCompletion {
		t.Fatal("usage flags must be set when counts are present")
	}
	if u.PromptTokens != 12 || u.CompletionTokens != 4 || u.TotalTokens != 16 {
		t.Fatalf("usage = %+v", u)
	}
	if u.CachedTokens != 3 || u.ReasoningTokens != 2 {
		t.Fatalf("detail tokens = cached %d reasoning %d", u.CachedTokens, u.ReasoningTokens)
	}
}

func TestParseResponse_MissingUsageLeavesFlagsUnset(t *testing.T) {
	out, err := New().ParseResponse([]byte(`{"id":"x","choices":[{"message":{"content":"ok"},"finish_reason":"length"}]}`))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if out.Usage.HasPrompt || out.Usage.HasCompletion {
		t.Fatal("absent usage must leave Has flags false")
	}
	if out.FinishReason != "length" {
		t.Fatalf("finish = %q", out.FinishReason)
	}
}

func TestParseResponse_ToolCalls(t *testing.T) {
	raw := `{
		"choices": [{
			"message": {
				"content": null,
				"tool_calls": [{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{\"city\":\"Oslo\"}"}}]
			},
			"finish_reason": "tool_calls"
		}]
	}`
	out, err := New().ParseResponse([]byte(raw))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Function.Name != "get_weather" {
		t.Fatalf("tool calls = %+v", out.ToolCalls)
	}
	if out.FinishReason != "tool_calls" {
		t.Fatalf("finish = %q", out.FinishReason)
	}
}

// feedAll feeds chunks one at a time and collects every event.
func feedAll(t *testing.T, p providers.StreamParser, chunks ...string) []providers.StreamEvent {
	t.Helper()
	var events []providers.StreamEvent
	for _, c := range chunks {
		evs, err := p.Feed([]byte(c))
		if err != nil {
			t.Fatalf("Feed: %v", err)
		}
		events = append(events, evs...)
	}
	events = append(events, p.Finish()...)
	return events
}

func TestStreamParser_SplitAcrossFeeds(t *testing.T) {
	p := New().NewStreamParser()
	events := feedAll(t, p,
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\ndata: {\"choi",
		"ces\":[{\"delta\":{\"content\":\"lo\"},\"finish_reason\":\"stop\"}]}\n\n",
		"data: [DONE]\n\n",
	)

	var content, finish string
	var done bool
	for _, ev := range events {
		content += ev.Content
		if ev.FinishReason != "" {
			finish = ev.FinishReason
		}
		if ev.Done {
			done = true
		}
	}
	if content != "Hello" {
		t.Fatalf("content = %q", content)
	}
	if finish != "stop" || !done {
		t.Fatalf("finish = %q done = %v", finish, done)
	}
}

func TestStreamParser_UsageChunk(t *testing.T) {
	p := New().NewStreamParser()
	events := feedAll(t, p,
		"data: {\"choices\":[],\"usage\":{\"prompt_tokens\":9,\"completion_tokens\":21,\"total_tokens\":30}}\n",
		"data: [DONE]\n",
	)

	var usage *providers.Usage
	for _, ev := range events {
		if ev.Usage != nil {
			usage = ev.Usage
		}
	}
	if usage == nil {
		t.Fatal("no usage event seen")
	}
	if usage.PromptTokens != 9 || usage.CompletionTokens != 21 || !usage.HasPrompt || !usage.HasCompletion {
		t.Fatalf("usage = %+v", usage)
	}
}

func TestStreamParser_SkipsMalformedAndComments(t *testing.T) {
	p := New().NewStreamParser()
	events := feedAll(t, p,
		": keep-alive\n",
		"data: {not json}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n",
	)
	if len(events) != 1 || events[0].Content != "ok" {
		t.Fatalf("events = %+v", events)
	}
}

func TestStreamParser_IgnoresDataAfterDone(t *testing.T) {
	p := New().NewStreamParser()
	events := feedAll(t, p,
		"data: [DONE]\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"late\"}}]}\n",
	)
	if len(events) != 1 || !events[0].Done {
		t.Fatalf("events after DONE = %+v", events)
	}
}

func TestStreamParser_ToolCallDeltas(t *testing.T) {
	p := New().NewStreamParser()
	events := feedAll(t, p,
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"id\":\"call_9\",\"type\":\"function\",\"function\":{\"name\":\"lookup\",\"arguments\":\"{\\\"q\\\":\"}}]}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"tool_calls\":[{\"index\":0,\"function\":{\"arguments\":\"\\\"go\\\"}\"}}]}}]}\n",
		"data: [DONE]\n",
	)

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
	if calls[0].ID != "call_9" || calls[0].Function.Name != "lookup" {
		t.Fatalf("call = %+v", calls[0])
	}
	if calls[0].Function.Arguments != `{"q":"go"}` {
		t.Fatalf("arguments = %q", calls[0].Function.Arguments)
	}
}

func TestStreamParser_OversizedLineDropsBuffer(t *testing.T) {
	p := New().NewStreamParser()

	// A single unterminated line larger than the cap.
	big := strings.Repeat("x", maxStreamBuffer+1)
	_, err := p.Feed([]byte(big))
	if err == nil {
		t.Fatal("expected overflow error")
	}

	// The parser must keep working afterwards.
	events, err := p.Feed([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"still alive\"}}]}\n"))
	if err != nil {
		t.Fatalf("Feed after overflow: %v", err)
	}
	if len(events) != 1 || events[0].Content != "still alive" {
		t.Fatalf("events = %+v", events)
	}
}
