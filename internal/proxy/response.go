package proxy

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/dban0001/llmgateway/internal/providers"
)

// OpenAI-shaped response envelope emitted to clients regardless of which
// upstream family served the request.
type (
	chatUsageDetails struct {
		CachedTokens    int `json:"cached_tokens,omitempty"`
		ReasoningTokens int `json:"reasoning_tokens,omitempty"`
	}

	chatUsage struct {
		PromptTokens     int               `json:"prompt_tokens"`
		CompletionTokens int               `json:"completion_tokens"`
		TotalTokens      int               `json:"total_tokens"`
		PromptDetails    *chatUsageDetails `json:"prompt_tokens_details,omitempty"`
		CompletionDet    *chatUsageDetails `json:"completion_tokens_details,omitempty"`
	}

	chatMessage struct {
		Role             string               `json:"role"`
		Content          string               `json:"content"`
		ReasoningContent string               `json:"reasoning_content,omitempty"`
		ToolCalls        []providers.ToolCall `json:"tool_calls,omitempty"`
	}

	chatChoice struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	}

	chatCompletion struct {
		ID      string       `json:"id"`
		Object  string       `json:"object"`
		Created int64        `json:"created"`
		Model   string       `json:"model"`
		Choices []chatChoice `json:"choices"`
		Usage   chatUsage    `json:"usage"`
	}

	chunkToolCall struct {
		Index    int                        `json:"index"`
		ID       string                     `json:"id,omitempty"`
		Type     string                     `json:"type,omitempty"`
		Function providers.ToolCallFunction `json:"function"`
	}

	chunkDelta struct {
		Role             string          `json:"role,omitempty"`
		Content          string          `json:"content,omitempty"`
		ReasoningContent string          `json:"reasoning_content,omitempty"`
		ToolCalls        []chunkToolCall `json:"tool_calls,omitempty"`
	}

	chunkChoice struct {
		Index        int        `json:"index"`
		Delta        chunkDelta `json:"delta"`
		FinishReason *string    `json:"finish_reason"`
	}

	chatChunk struct {
		ID      string        `json:"id"`
		Object  string        `json:"object"`
		Created int64         `json:"created"`
		Model   string        `json:"model"`
		Choices []chunkChoice `json:"choices"`
		Usage   *chatUsage    `json:"usage,omitempty"`
	}
)

func toChunkToolCalls(deltas []providers.ToolCallDelta) []chunkToolCall {
	out := make([]chunkToolCall, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, chunkToolCall{
			Index: d.Index,
			ID:    d.ID,
			Type:  d.Type,
			Function: providers.ToolCallFunction{
				Name:      d.Name,
				Arguments: d.Arguments,
			},
		})
	}
	return out
}

// syntheticID generates a chat-completion id for upstreams that omit one.
func syntheticID() string {
	var b [12]byte
	rand.Read(b[:])
	return "chatcmpl-" + hex.EncodeToString(b[:])
}

func buildUsage(u providers.Usage) chatUsage {
	out := chatUsage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.CachedTokens > 0 {
		out.PromptDetails = &chatUsageDetails{CachedTokens: u.CachedTokens}
	}
	if u.ReasoningTokens > 0 {
		out.CompletionDet = &chatUsageDetails{ReasoningTokens: u.ReasoningTokens}
	}
	return out
}

// buildCompletion re-emits a normalized upstream response in OpenAI shape,
// filling in synthetic id/created when the upstream omitted them.
func buildCompletion(resp *providers.Completion, model string) chatCompletion {
	id := resp.ID
	if id == "" {
		id = syntheticID()
	}
	if resp.Model != "" {
		model = resp.Model
	}
	finish := resp.FinishReason
	if finish == "" {
		finish = "stop"
	}
	return chatCompletion{
		ID:      id,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []chatChoice{{
			Message: chatMessage{
				Role:             "assistant",
				Content:          resp.Content,
				ReasoningContent: resp.ReasoningContent,
				ToolCalls:        resp.ToolCalls,
			},
			FinishReason: finish,
		}},
		Usage: buildUsage(resp.Usage),
	}
}
