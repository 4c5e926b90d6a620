package providers

import (
	"encoding/json"
	"testing"
)

func TestMessageText(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"bare string", `"hello"`, "hello"},
		{"array of parts", `[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"http://x"}},{"type":"text","text":"b"}]`, "ab"},
		{"empty", ``, ""},
		{"number is not text", `42`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := Message{Content: json.RawMessage(tc.content)}
			if got := m.Text(); got != tc.want {
				t.Fatalf("Text() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMessageParts_BareString(t *testing.T) {
	m := Message{Content: json.RawMessage(`"hi"`)}
	parts := m.Parts()
	if len(parts) != 1 || parts[0].Type != "text" || parts[0].Text != "hi" {
		t.Fatalf("Parts() = %+v", parts)
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := map[string]string{
		"":           "stop",
		"stop":       "stop",
		"STOP":       "stop",
		"end_turn":   "stop",
		"tool_use":   "tool_calls",
		"tool_calls": "tool_calls",
		"length":     "length",
		"MAX_TOKENS": "length",
		"max_tokens": "length",
		"SAFETY":     "safety",
	}
	for in, want := range cases {
		if got := MapFinishReason(in); got != want {
			t.Errorf("MapFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToolCallAccumulator(t *testing.T) {
	acc := NewToolCallAccumulator()
	acc.Add(ToolCallDelta{Index: 1, ID: "call_b", Name: "second"})
	acc.Add(ToolCallDelta{Index: 0, ID: "call_a", Name: "first", Arguments: `{"x":`})
	acc.Add(ToolCallDelta{Index: 0, Arguments: `1}`})

	if acc.Len() != 2 {
		t.Fatalf("Len = %d", acc.Len())
	}
	calls := acc.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %+v", calls)
	}
	// First-seen order, not index order.
	if calls[0].ID != "call_b" || calls[1].ID != "call_a" {
		t.Fatalf("order = %q, %q", calls[0].ID, calls[1].ID)
	}
	if calls[1].Function.Arguments != `{"x":1}` {
		t.Fatalf("arguments = %q", calls[1].Function.Arguments)
	}
	// Type defaults to function when the stream never set it.
	if calls[0].Type != "function" {
		t.Fatalf("type = %q", calls[0].Type)
	}
}

func TestToolCallAccumulator_Empty(t *testing.T) {
	if calls := NewToolCallAccumulator().Calls(); calls != nil {
		t.Fatalf("empty accumulator Calls() = %+v, want nil", calls)
	}
}
