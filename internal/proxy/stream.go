package proxy

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/dban0001/llmgateway/internal/providers"
	"github.com/dban0001/llmgateway/pkg/apierr"
)

// streamState accumulates the assistant output across normalized events so
// the final log entry carries the same accounting as a unary response.
type streamState struct {
	id       string
	created  int64
	model    string
	content  strings.Builder
	reason   strings.Builder
	finish   string
	usage    providers.Usage
	acc      *providers.ToolCallAccumulator
	sentRole bool

	clientGone bool
	written    int
}

// streamCompletion pipes the upstream response through the family's stream
// parser and re-emits OpenAI chat.completion.chunk events over SSE. The
// upstream is canceled on client disconnect only when the provider marks
// itself cancellation-safe; otherwise it is drained so token usage is still
// captured for billing.
func (g *Gateway) streamCompletion(ctx *fasthttp.RequestCtx, sc *requestScope, body []byte) {
	upCtx, cancel := context.WithCancel(context.Background())

	rc, ue := g.up.Open(upCtx, sc.route, body)

	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")

	route := sc.route
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		st := &streamState{
			id:      syntheticID(),
			created: time.Now().Unix(),
			model:   sc.req.Model,
			acc:     providers.NewToolCallAccumulator(),
		}

		if ue != nil {
			g.streamError(w, sc, st, ue)
			return
		}
		defer rc.Close()

		parser := route.Family.NewStreamParser()
		buf := make([]byte, 32*1024)
		var readErr error
		for {
			n, err := rc.Read(buf)
			if n > 0 {
				events, perr := parser.Feed(buf[:n])
				if perr != nil {
					g.log.Warn("stream parse error",
						"error", perr,
						"provider", route.Provider.ID,
						"request_id", sc.entry.RequestID,
					)
				}
				g.emitEvents(w, ctx, st, events)
				if st.clientGone && route.Provider.CancelSafe {
					cancel()
					break
				}
			}
			if err != nil {
				if err != io.EOF {
					readErr = err
				}
				break
			}
		}
		g.emitEvents(w, ctx, st, parser.Finish())

		if st.clientGone && route.Provider.CancelSafe {
			sc.entry.Canceled = true
			st.finish = "canceled"
			g.writeEvent(w, st, "canceled", []byte(`{"canceled":true}`))
		} else if readErr != nil {
			e := apierr.Newf(apierr.KindUpstreamTransport, "upstream stream failed: %v", readErr)
			g.streamError(w, sc, st, e)
			return
		}

		g.finalizeStream(w, sc, st)
	})
}

// emitEvents converts normalized events into chat.completion.chunk frames
// and tracks the accumulated output. After the client disconnects the events
// are still consumed for accounting but no longer written.
func (g *Gateway) emitEvents(w *bufio.Writer, ctx *fasthttp.RequestCtx, st *streamState, events []providers.StreamEvent) {
	for _, ev := range events {
		st.content.WriteString(ev.Content)
		st.reason.WriteString(ev.ReasoningContent)
		for _, d := range ev.ToolCalls {
			st.acc.Add(d)
		}
		if ev.FinishReason != "" {
			st.finish = ev.FinishReason
		}
		if ev.Usage != nil {
			mergeUsage(&st.usage, ev.Usage)
		}
		if ev.Done {
			continue
		}

		delta := chunkDelta{
			Content:          ev.Content,
			ReasoningContent: ev.ReasoningContent,
			ToolCalls:        toChunkToolCalls(ev.ToolCalls),
		}
		if !st.sentRole {
			delta.Role = "assistant"
			st.sentRole = true
		}
		var finish *string
		if ev.FinishReason != "" {
			finish = &ev.FinishReason
		}
		if delta.Content == "" && delta.ReasoningContent == "" && len(delta.ToolCalls) == 0 && finish == nil && delta.Role == "" {
			continue
		}
		chunk := chatChunk{
			ID:      st.id,
			Object:  "chat.completion.chunk",
			Created: st.created,
			Model:   st.model,
			Choices: []chunkChoice{{Delta: delta, FinishReason: finish}},
		}
		payload, err := json.Marshal(chunk)
		if err != nil {
			continue
		}
		g.writeEvent(w, st, "", payload)
		if !st.clientGone && ctx.Err() != nil {
			st.clientGone = true
		}
	}
}

// writeEvent writes one SSE frame and flushes it. A write or flush failure
// marks the client as gone; subsequent frames are dropped.
func (g *Gateway) writeEvent(w *bufio.Writer, st *streamState, event string, data []byte) {
	if st.clientGone {
		return
	}
	var err error
	if event != "" {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	} else {
		_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	}
	if err == nil {
		st.written += len(data)
		err = w.Flush()
	}
	if err != nil {
		st.clientGone = true
	}
}

// finalizeStream imputes missing usage, emits the synthetic usage chunk and
// the terminal done event, and enqueues the log entry.
func (g *Gateway) finalizeStream(w *bufio.Writer, sc *requestScope, st *streamState) {
	imputed := false
	if !st.usage.HasPrompt {
		st.usage.PromptTokens = g.cfg.Tokens.CountChat(sc.req.Messages)
		imputed = true
	}
	if !st.usage.HasCompletion {
		st.usage.CompletionTokens = g.cfg.Tokens.CountText(st.content.String() + st.reason.String())
		imputed = true
	}
	st.usage.TotalTokens = st.usage.PromptTokens + st.usage.CompletionTokens

	if imputed && !st.clientGone {
		u := buildUsage(st.usage)
		chunk := chatChunk{
			ID:      st.id,
			Object:  "chat.completion.chunk",
			Created: st.created,
			Model:   st.model,
			Choices: []chunkChoice{},
			Usage:   &u,
		}
		if payload, err := json.Marshal(chunk); err == nil {
			g.writeEvent(w, st, "", payload)
		}
	}
	g.writeEvent(w, st, "done", []byte("[DONE]"))

	resp := &providers.Completion{
		Content:          st.content.String(),
		ReasoningContent: st.reason.String(),
		FinishReason:     st.finish,
		ToolCalls:        st.acc.Calls(),
		Usage:            st.usage,
	}
	if resp.FinishReason == "" {
		resp.FinishReason = "stop"
	}

	if sc.entry.Canceled && g.cfg.Metrics != nil {
		g.cfg.Metrics.RecordCanceled(sc.route.Provider.ID)
	}
	g.finishSuccess(sc, resp, st.written, fasthttp.StatusOK)
}

// streamError emits a single SSE error event and the done terminator, then
// records the failure log. Headers are already sent, so the taxonomy status
// only lands in the log entry.
func (g *Gateway) streamError(w *bufio.Writer, sc *requestScope, st *streamState, e *apierr.Error) {
	usedProvider, usedModel := "", ""
	if sc.route != nil {
		usedProvider = sc.route.Provider.ID
		usedModel = sc.route.ModelName
	}
	e = e.WithRoute(sc.entry.RequestedProvider, usedProvider, sc.entry.RequestedModel, usedModel)

	g.writeEvent(w, st, "error", apierr.Body(e))
	g.writeEvent(w, st, "done", []byte("[DONE]"))

	entry := sc.entry
	entry.StatusCode = e.HTTPStatus()
	entry.DurationMS = time.Since(sc.start).Milliseconds()
	entry.ErrorType = e.Type
	entry.ErrorMessage = e.Message
	entry.FinishReason = streamErrorFinish(e)

	if g.cfg.Metrics != nil {
		g.cfg.Metrics.RecordCompletion(entry.UsedProvider, entry.UsedModel, entry.StatusCode, true, time.Since(sc.start))
		g.cfg.Metrics.RecordUpstreamError(entry.UsedProvider, e.Type)
	}
	g.enqueue(entry)
	g.log.Warn("stream failed",
		"request_id", entry.RequestID,
		"provider", entry.UsedProvider,
		"error_type", entry.ErrorType,
		"error", entry.ErrorMessage,
	)
}

func streamErrorFinish(e *apierr.Error) string {
	if e.Type == apierr.TypeUpstreamError {
		return "upstream_error"
	}
	return "gateway_error"
}

func mergeUsage(dst *providers.Usage, src *providers.Usage) {
	if src.HasPrompt {
		dst.PromptTokens = src.PromptTokens
		dst.HasPrompt = true
	}
	if src.HasCompletion {
		dst.CompletionTokens = src.CompletionTokens
		dst.HasCompletion = true
	}
	if src.ReasoningTokens > 0 {
		dst.ReasoningTokens = src.ReasoningTokens
	}
	if src.CachedTokens > 0 {
		dst.CachedTokens = src.CachedTokens
	}
}
