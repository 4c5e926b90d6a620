// Package proxy is the core request dispatcher.
//
// The Gateway receives an incoming OpenAI-compatible chat completion,
// authenticates the API key, resolves the target provider and model,
// translates the request into the provider's dialect, normalizes the
// response back into the OpenAI shape, and enqueues exactly one usage log
// per request for the async ingest worker.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/dban0001/llmgateway/internal/billing"
	"github.com/dban0001/llmgateway/internal/cache"
	"github.com/dban0001/llmgateway/internal/catalog"
	"github.com/dban0001/llmgateway/internal/metrics"
	"github.com/dban0001/llmgateway/internal/providers"
	"github.com/dban0001/llmgateway/internal/routing"
	"github.com/dban0001/llmgateway/internal/store"
	"github.com/dban0001/llmgateway/internal/tokenizer"
	"github.com/dban0001/llmgateway/internal/worker"
	"github.com/dban0001/llmgateway/pkg/apierr"
)

const (
	customHeaderPrefix = "x-llmgateway-"
	maxBodySize        = 16 << 20
	defaultCacheTTL    = time.Hour
)

// Config wires the gateway's collaborators. Cache, Exclusions, Metrics and
// Queue may be nil; the gateway degrades to pass-through behavior without
// them.
type Config struct {
	Catalog    *catalog.Catalog
	Router     *routing.Router
	Store      store.Store
	Cache      cache.Cache
	Exclusions *cache.ExclusionList
	CacheTTL   time.Duration
	Queue      worker.Queue
	Tokens     *tokenizer.Counter
	Costs      *billing.Calculator
	Metrics    *metrics.Registry
	Logger     *slog.Logger
}

// Gateway serves the OpenAI-compatible chat completion surface.
type Gateway struct {
	cfg Config
	up  *upstream
	log *slog.Logger
}

func New(cfg Config) *Gateway {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Tokens == nil {
		cfg.Tokens = tokenizer.New()
	}
	return &Gateway{cfg: cfg, up: newUpstream(), log: log}
}

// requestScope carries everything the handler accumulates for one request so
// the success, error, and streaming paths can all finish the same log entry.
type requestScope struct {
	start    time.Time
	entry    *store.LogEntry
	req      *providers.ChatRequest
	route    *routing.Route
	cacheTTL time.Duration
}

func (g *Gateway) handleChatCompletions(ctx *fasthttp.RequestCtx) {
	if g.cfg.Metrics != nil {
		g.cfg.Metrics.IncInFlight()
		defer g.cfg.Metrics.DecInFlight()
	}

	sc := &requestScope{
		start: time.Now(),
		entry: &store.LogEntry{
			RequestID:     requestID(ctx),
			CustomHeaders: collectCustomHeaders(ctx),
			CreatedAt:     time.Now().UTC(),
		},
	}

	req, apiKey, project, org, e := g.prepare(ctx, sc.entry)
	if e != nil {
		g.fail(ctx, sc, e)
		return
	}
	sc.req = req
	sc.cacheTTL = g.cfg.CacheTTL
	if project.CacheTTL > 0 {
		sc.cacheTTL = project.CacheTTL
	}

	route, err := g.cfg.Router.Route(ctx, req, project, org)
	if err != nil {
		g.fail(ctx, sc, asAPIError(err))
		return
	}
	sc.route = route
	sc.entry.APIKeyID = apiKey.ID
	sc.entry.UsedProvider = route.Provider.ID
	sc.entry.UsedModel = route.ModelName
	sc.entry.RequestedProvider = route.RequestedProvider
	sc.entry.Streamed = req.Stream
	sc.entry.Messages, _ = json.Marshal(req.Messages)
	sc.entry.Params = logParams(req)

	cacheKey := ""
	if g.cacheable(req, project) {
		cacheKey = cache.GenerateKey(req)
		if body, ok := g.cfg.Cache.Get(ctx, cacheKey); ok {
			g.serveCached(ctx, sc, body)
			return
		}
		if g.cfg.Metrics != nil {
			g.cfg.Metrics.CacheMiss()
		}
	}

	body, err := route.Family.TranslateRequest(req, route.ModelName)
	if err != nil {
		g.fail(ctx, sc, apierr.Newf(apierr.KindInvalidRequest, "translating request: %v", err))
		return
	}

	if req.Stream {
		g.streamCompletion(ctx, sc, body)
		return
	}
	g.unaryCompletion(ctx, sc, body, cacheKey)
}

// prepare parses, validates, and authenticates the request. The log entry is
// filled with whatever identity is known at the point of failure so auth
// failures still produce a log record.
func (g *Gateway) prepare(ctx *fasthttp.RequestCtx, entry *store.LogEntry) (*providers.ChatRequest, *store.APIKey, *store.Project, *store.Organization, *apierr.Error) {
	raw := ctx.PostBody()
	if len(raw) == 0 {
		return nil, nil, nil, nil, apierr.New(apierr.KindInvalidRequest, "request body is empty")
	}
	if len(raw) > maxBodySize {
		return nil, nil, nil, nil, apierr.New(apierr.KindInvalidRequest, "request body too large")
	}

	var req providers.ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, nil, nil, nil, apierr.Newf(apierr.KindInvalidRequest, "invalid JSON body: %v", err)
	}
	entry.RequestedModel = req.Model
	if e := validateRequest(&req); e != nil {
		return nil, nil, nil, nil, e
	}

	token, e := parseBearerToken(ctx)
	if e != nil {
		return nil, nil, nil, nil, e
	}
	key, err := g.cfg.Store.GetAPIKeyByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, nil, nil, apierr.New(apierr.KindAuthInvalid, "invalid API key")
		}
		return nil, nil, nil, nil, apierr.New(apierr.KindInternal, "failed to verify API key")
	}
	if key.Status != store.StatusActive {
		return nil, nil, nil, nil, apierr.New(apierr.KindAuthInvalid, "API key is not active")
	}

	project, err := g.cfg.Store.GetProject(ctx, key.ProjectID)
	if err != nil {
		return nil, nil, nil, nil, apierr.New(apierr.KindInternal, "project lookup failed")
	}
	org, err := g.cfg.Store.GetOrganization(ctx, project.OrganizationID)
	if err != nil {
		return nil, nil, nil, nil, apierr.New(apierr.KindInternal, "organization lookup failed")
	}
	entry.ProjectID = project.ID
	entry.OrganizationID = org.ID
	return &req, key, project, org, nil
}

func validateRequest(req *providers.ChatRequest) *apierr.Error {
	if req.Model == "" {
		return apierr.New(apierr.KindInvalidRequest, "model is required")
	}
	if len(req.Messages) == 0 {
		return apierr.New(apierr.KindInvalidRequest, "messages must not be empty")
	}
	for i, m := range req.Messages {
		switch m.Role {
		case "system", "developer", "user", "assistant", "tool":
		default:
			return apierr.Newf(apierr.KindInvalidRequest, "messages[%d]: unknown role %q", i, m.Role)
		}
	}
	if req.ResponseFormat != nil {
		switch req.ResponseFormat.Type {
		case "text", "json_object":
		default:
			return apierr.Newf(apierr.KindInvalidRequest, "unsupported response_format type %q", req.ResponseFormat.Type)
		}
	}
	switch req.ReasoningEffort {
	case "", "minimal", "low", "medium", "high":
	default:
		return apierr.Newf(apierr.KindInvalidRequest, "unsupported reasoning_effort %q", req.ReasoningEffort)
	}
	return nil
}

func (g *Gateway) unaryCompletion(ctx *fasthttp.RequestCtx, sc *requestScope, body []byte, cacheKey string) {
	data, ue := g.up.Do(ctx, sc.route, body)
	if ue != nil {
		if ctx.Err() != nil {
			ue = apierr.New(apierr.KindClientCanceled, "request canceled by client")
			sc.entry.Canceled = true
		}
		g.fail(ctx, sc, ue)
		return
	}

	resp, err := sc.route.Family.ParseResponse(data)
	if err != nil {
		g.fail(ctx, sc, apierr.Newf(apierr.KindUpstreamTransport, "parsing upstream response: %v", err))
		return
	}
	g.imputeUsage(sc.req, resp)

	out := buildCompletion(resp, sc.req.Model)
	payload, err := json.Marshal(out)
	if err != nil {
		g.fail(ctx, sc, apierr.New(apierr.KindInternal, "encoding response"))
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(payload)

	if cacheKey != "" {
		if err := g.cfg.Cache.Set(ctx, cacheKey, payload, sc.cacheTTL); err != nil {
			g.log.Warn("cache store failed", "error", err, "request_id", sc.entry.RequestID)
		}
	}

	g.finishSuccess(sc, resp, len(payload), fasthttp.StatusOK)
}

// imputeUsage fills token counts the upstream did not report using the local
// tokenizer.
func (g *Gateway) imputeUsage(req *providers.ChatRequest, resp *providers.Completion) {
	if !resp.Usage.HasPrompt {
		resp.Usage.PromptTokens = g.cfg.Tokens.CountChat(req.Messages)
	}
	if !resp.Usage.HasCompletion {
		resp.Usage.CompletionTokens = g.cfg.Tokens.CountText(resp.Content + resp.ReasoningContent)
	}
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
}

// finishSuccess fills accounting fields and enqueues the single log entry for
// a completed unary request.
func (g *Gateway) finishSuccess(sc *requestScope, resp *providers.Completion, respSize, status int) {
	e := sc.entry
	e.StatusCode = status
	e.DurationMS = time.Since(sc.start).Milliseconds()
	e.ResponseSize = respSize
	e.FinishReason = resp.FinishReason
	e.Content = resp.Content
	e.PromptTokens = resp.Usage.PromptTokens
	e.CompletionTokens = resp.Usage.CompletionTokens
	e.ReasoningTokens = resp.Usage.ReasoningTokens
	e.CachedTokens = resp.Usage.CachedTokens
	if len(resp.ToolCalls) > 0 {
		e.ToolCalls, _ = json.Marshal(resp.ToolCalls)
	}
	estimated := !resp.Usage.HasPrompt || !resp.Usage.HasCompletion
	g.applyCost(sc, estimated)

	if g.cfg.Metrics != nil {
		g.cfg.Metrics.RecordCompletion(e.UsedProvider, e.UsedModel, status, e.Streamed, time.Since(sc.start))
		g.cfg.Metrics.AddTokens(e.UsedProvider, e.PromptTokens, e.CompletionTokens)
		g.cfg.Metrics.AddCost(e.UsedProvider, e.TotalCost.InexactFloat64())
	}
	g.enqueue(e)
	g.log.Info("chat completion",
		"request_id", e.RequestID,
		"provider", e.UsedProvider,
		"model", e.UsedModel,
		"status", status,
		"streamed", e.Streamed,
		"duration_ms", e.DurationMS,
		"prompt_tokens", e.PromptTokens,
		"completion_tokens", e.CompletionTokens,
	)
}

// applyCost computes cost from the entry's token counts. Opaque custom models
// have no catalog price, so their cost stays zero.
func (g *Gateway) applyCost(sc *requestScope, estimated bool) {
	e := sc.entry
	if sc.route == nil || sc.route.ModelID == "" || g.cfg.Costs == nil {
		e.EstimatedCost = estimated
		return
	}
	cost := g.cfg.Costs.Compute(sc.route.ModelID, sc.route.Provider.ID, e.PromptTokens, e.CompletionTokens, e.CachedTokens, estimated)
	e.InputCost = cost.InputCost
	e.OutputCost = cost.OutputCost
	e.CachedInputCost = cost.CachedInputCost
	e.RequestCost = cost.RequestCost
	e.TotalCost = cost.TotalCost
	e.EstimatedCost = cost.Estimated
}

// serveCached replays a cached response body. Cached hits cost nothing and
// report zero duration; the log entry is marked so the worker skips the
// debit.
func (g *Gateway) serveCached(ctx *fasthttp.RequestCtx, sc *requestScope, body []byte) {
	if g.cfg.Metrics != nil {
		g.cfg.Metrics.CacheHit()
		g.cfg.Metrics.RecordCompletion(sc.entry.UsedProvider, sc.entry.UsedModel, fasthttp.StatusOK, false, time.Since(sc.start))
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(body)

	e := sc.entry
	e.Cached = true
	e.StatusCode = fasthttp.StatusOK
	e.DurationMS = 0
	e.ResponseSize = len(body)

	var cached chatCompletion
	if err := json.Unmarshal(body, &cached); err == nil && len(cached.Choices) > 0 {
		e.FinishReason = cached.Choices[0].FinishReason
		e.Content = cached.Choices[0].Message.Content
		e.PromptTokens = cached.Usage.PromptTokens
		e.CompletionTokens = cached.Usage.CompletionTokens
	}
	g.enqueue(e)
}

// fail writes the error response and enqueues the failure log. Routing
// context is attached when known.
func (g *Gateway) fail(ctx *fasthttp.RequestCtx, sc *requestScope, e *apierr.Error) {
	usedProvider, usedModel := "", ""
	requestedProvider := ""
	if sc.route != nil {
		usedProvider = sc.route.Provider.ID
		usedModel = sc.route.ModelName
		requestedProvider = sc.route.RequestedProvider
	}
	e = e.WithRoute(requestedProvider, usedProvider, sc.entry.RequestedModel, usedModel)
	apierr.Write(ctx, e)

	entry := sc.entry
	entry.StatusCode = e.HTTPStatus()
	entry.DurationMS = time.Since(sc.start).Milliseconds()
	entry.ErrorType = e.Type
	entry.ErrorMessage = e.Message

	if g.cfg.Metrics != nil {
		g.cfg.Metrics.RecordCompletion(entry.UsedProvider, entry.UsedModel, entry.StatusCode, entry.Streamed, time.Since(sc.start))
		if e.Kind == apierr.KindUpstreamHTTP || e.Kind == apierr.KindUpstreamTransport {
			g.cfg.Metrics.RecordUpstreamError(entry.UsedProvider, e.Type)
		}
		if entry.Canceled {
			g.cfg.Metrics.RecordCanceled(entry.UsedProvider)
		}
	}
	g.enqueue(entry)
	g.log.Warn("chat completion failed",
		"request_id", entry.RequestID,
		"status", entry.StatusCode,
		"error_type", entry.ErrorType,
		"error", entry.ErrorMessage,
		"model", entry.RequestedModel,
	)
}

// enqueue hands the finished log entry to the ingest queue. A background
// context is used because the request context may already be done when a
// streamed response finishes.
func (g *Gateway) enqueue(entry *store.LogEntry) {
	if g.cfg.Queue == nil {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		g.log.Error("marshaling log entry", "error", err, "request_id", entry.RequestID)
		return
	}
	qctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.cfg.Queue.Enqueue(qctx, payload); err != nil {
		g.log.Error("enqueueing log entry", "error", err, "request_id", entry.RequestID)
	}
}

func (g *Gateway) cacheable(req *providers.ChatRequest, project *store.Project) bool {
	if g.cfg.Cache == nil || req.Stream || !project.CachingEnabled {
		return false
	}
	if g.cfg.Exclusions != nil && g.cfg.Exclusions.Matches(req.Model) {
		return false
	}
	return true
}

func logParams(req *providers.ChatRequest) *store.LogParams {
	p := &store.LogParams{
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		ReasoningEffort:  req.ReasoningEffort,
		Stream:           req.Stream,
	}
	if req.ResponseFormat != nil {
		p.ResponseFormat = req.ResponseFormat.Type
	}
	return p
}

func parseBearerToken(ctx *fasthttp.RequestCtx) (string, *apierr.Error) {
	auth := string(ctx.Request.Header.Peek("Authorization"))
	if auth == "" {
		return "", apierr.New(apierr.KindAuthMissing, "missing Authorization header")
	}
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", apierr.New(apierr.KindAuthMalformed, "Authorization header must be a Bearer token")
	}
	token := strings.TrimSpace(auth[len(prefix):])
	if token == "" {
		return "", apierr.New(apierr.KindAuthMalformed, "Authorization header must be a Bearer token")
	}
	return token, nil
}

// collectCustomHeaders captures x-llmgateway-* request headers, keyed by the
// lowercased suffix, for inclusion in the usage log.
func collectCustomHeaders(ctx *fasthttp.RequestCtx) map[string]string {
	var out map[string]string
	ctx.Request.Header.VisitAll(func(k, v []byte) {
		name := strings.ToLower(string(k))
		if !strings.HasPrefix(name, customHeaderPrefix) {
			return
		}
		suffix := name[len(customHeaderPrefix):]
		if suffix == "" {
			return
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[suffix] = string(v)
	})
	return out
}

func asAPIError(err error) *apierr.Error {
	var e *apierr.Error
	if errors.As(err, &e) {
		return e
	}
	return apierr.Newf(apierr.KindInternal, "%v", err)
}
