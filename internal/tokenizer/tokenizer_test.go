package tokenizer

import (
	"encoding/json"
	"testing"

	"github.com/dban0001/llmgateway/internal/providers"
)

func TestCountText(t *testing.T) {
	c := New()

	if got := c.CountText(""); got != 0 {
		t.Fatalf("empty string counts %d tokens", got)
	}
	if got := c.CountText("hello world"); got < 1 {
		t.Fatalf("count = %d, want >= 1", got)
	}
	short := c.CountText("hi")
	long := c.CountText("The quick brown fox jumps over the lazy dog, twice, in the rain.")
	if long <= short {
		t.Fatalf("longer text must count more tokens: %d <= %d", long, short)
	}
}

func TestCountText_HeuristicFallback(t *testing.T) {
	c := &Counter{} // no encoding loaded

	if got := c.CountText("abcd"); got != 1 {
		t.Fatalf("4 bytes = %d tokens, want 1", got)
	}
	if got := c.CountText("abcde"); got != 2 {
		t.Fatalf("5 bytes = %d tokens, want 2", got)
	}
	if got := c.CountText("a"); got != 1 {
		t.Fatalf("1 byte = %d tokens, want 1", got)
	}
}

func TestCountChat(t *testing.T) {
	c := New()

	msgs := []providers.Message{
		{Role: "system", Content: json.RawMessage(`"You are terse."`)},
		{Role: "user", Content: json.RawMessage(`"What is the capital of Norway?"`)},
	}
	got := c.CountChat(msgs)
	if got < 2*perMessageOverhead {
		t.Fatalf("count = %d, must include per-message overhead", got)
	}
	if c.CountChat(msgs[:1]) >= got {
		t.Fatal("adding a message must increase the count")
	}
}

func TestCountChat_ToolCallsCounted(t *testing.T) {
	c := New()

	plain := []providers.Message{{Role: "assistant"}}
	withCall := []providers.Message{{
		Role: "assistant",
		ToolCalls: []providers.ToolCall{{
			Function: providers.ToolCallFunction{Name: "get_weather", Arguments: `{"city":"Oslo"}`},
		}},
	}}
	if c.CountChat(withCall) <= c.CountChat(plain) {
		t.Fatal("tool-call payload must add tokens")
	}
}
