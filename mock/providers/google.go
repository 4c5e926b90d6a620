package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// newGoogleHandler returns an http.Handler simulating the Gemini
// generateContent API. Streaming responses are written as a concatenation
// of raw JSON objects, the way streamGenerateContent does without
// alt=sse.
func newGoogleHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeGoogleError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		applyLatency(cfg)
		if shouldError(cfg) {
			writeGoogleError(w, http.StatusInternalServerError, "mock internal error")
			return
		}

		// Path shape: /v1beta/models/{model}:generateContent
		rest := strings.TrimPrefix(r.URL.Path, "/v1beta/models/")
		model, action, ok := strings.Cut(rest, ":")
		if !ok {
			writeGoogleError(w, http.StatusNotFound, fmt.Sprintf("unknown path %s", r.URL.Path))
			return
		}
		if model == "" {
			model = "gemini-2.0-flash"
		}

		var req struct {
			Contents []json.RawMessage `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeGoogleError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		content := fakeSentence(cfg.StreamWords)
		inTokens := 10
		outTokens := cfg.StreamWords

		switch action {
		case "generateContent":
			writeJSON(w, http.StatusOK, googleChunk(model, content, "STOP", inTokens, outTokens))
		case "streamGenerateContent":
			serveGoogleStream(w, model, content, inTokens, outTokens)
		default:
			writeGoogleError(w, http.StatusNotFound, fmt.Sprintf("unknown action %q", action))
		}
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeGoogleError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", r.URL.Path))
	})

	return mux
}

// googleChunk builds one generateContent response object. finishReason and
// usage are only attached to the terminal chunk, mirroring the real API.
func googleChunk(model, text, finish string, inTokens, outTokens int) map[string]any {
	candidate := map[string]any{
		"content": map[string]any{
			"role":  "model",
			"parts": []map[string]any{{"text": text}},
		},
		"index": 0,
	}
	if finish != "" {
		candidate["finishReason"] = finish
	}
	chunk := map[string]any{
		"candidates":   []map[string]any{candidate},
		"modelVersion": model,
	}
	if finish != "" {
		chunk["usageMetadata"] = map[string]int{
			"promptTokenCount":     inTokens,
			"candidatesTokenCount": outTokens,
			"totalTokenCount":      inTokens + outTokens,
		}
	}
	return chunk
}

func serveGoogleStream(w http.ResponseWriter, model, content string, inTokens, outTokens int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	words := strings.Fields(content)
	for i, word := range words {
		finish := ""
		if i == len(words)-1 {
			finish = "STOP"
		}
		_ = enc.Encode(googleChunk(model, word+" ", finish, inTokens, outTokens))
		if flusher != nil {
			flusher.Flush()
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func writeGoogleError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": msg,
			"status":  http.StatusText(status),
		},
	})
}
