package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/dban0001/llmgateway/internal/providers"
)

// fingerprint is the canonical cache-key payload. Field order is fixed by
// the struct; absent optional fields are omitted so that a request without
// temperature hashes the same as one with temperature removed.
type fingerprint struct {
	Model            string          `json:"model"`
	Messages         json.RawMessage `json:"messages"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64        `json:"presence_penalty,omitempty"`
	ResponseFormat   string          `json:"response_format,omitempty"`
}

// GenerateKey returns the deterministic cache key for a chat request:
// hex SHA-256 of the canonical fingerprint. Identical normalized inputs
// always produce the same key.
func GenerateKey(req *providers.ChatRequest) string {
	fp := fingerprint{
		Model:            req.Model,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
	}
	if req.ResponseFormat != nil {
		fp.ResponseFormat = req.ResponseFormat.Type
	}
	// Messages are re-marshaled so client whitespace differences do not
	// change the key.
	msgs, _ := json.Marshal(req.Messages)
	fp.Messages = msgs

	payload, _ := json.Marshal(fp)
	sum := sha256.Sum256(payload)
	return "chat:" + hex.EncodeToString(sum[:])
}
