package mistral

import (
	"testing"
)

func TestUnwrapJSONFence(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "fenced json",
			content: "```json\n{\"city\": \"Oslo\",\n \"temp\": 3}\n```",
			want:    `{"city":"Oslo","temp":3}`,
		},
		{
			name:    "fence with surrounding prose",
			content: "Here you go:\n```json\n[1, 2, 3]\n```\nEnjoy!",
			want:    `[1,2,3]`,
		},
		{
			name:    "plain text untouched",
			content: "no fences here",
			want:    "no fences here",
		},
		{
			name:    "unterminated fence untouched",
			content: "```json\n{\"a\": 1}",
			want:    "```json\n{\"a\": 1}",
		},
		{
			name:    "invalid json inside fence untouched",
			content: "```json\nnot json at all\n```",
			want:    "```json\nnot json at all\n```",
		},
		{
			name:    "empty content",
			content: "",
			want:    "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := UnwrapJSONFence(tc.content); got != tc.want {
				t.Fatalf("UnwrapJSONFence(%q) = %q, want %q", tc.content, got, tc.want)
			}
		})
	}
}

func TestParseResponse_UnwrapsFence(t *testing.T) {
	raw := `{
		"id": "cmpl-1",
		"model": "mistral-large-latest",
		"choices": [{
			"message": {"content": "` + "```json\\n{\\\"answer\\\": 42}\\n```" + `"},
			"finish_reason": "stop"
		}],
		"usage": {"prompt_tokens": 5, "completion_tokens": 9, "total_tokens": 14}
	}`

	out, err := New().ParseResponse([]byte(raw))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	if out.Content != `{"answer":42}` {
		t.Fatalf("content = %q, fenced JSON must be unwrapped", out.Content)
	}
	if out.Usage.PromptTokens != 5 || out.Usage.CompletionTokens != 9 {
		t.Fatalf("usage = %+v", out.Usage)
	}
}

func TestName(t *testing.T) {
	if New().Name() != "mistral" {
		t.Fatal("family name must be mistral")
	}
}
