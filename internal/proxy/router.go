package proxy

import (
	"encoding/json"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// Handler builds the complete HTTP handler with the middleware chain, for
// serving and for in-memory tests.
func (g *Gateway) Handler(corsOrigins []string) fasthttp.RequestHandler {
	r := router.New()

	r.POST("/v1/chat/completions", g.handleChatCompletions)
	r.GET("/v1/models", g.handleModels)
	r.GET("/health", g.handleHealth)
	r.GET("/readiness", g.handleReadiness)

	if g.cfg.Metrics != nil {
		r.GET("/metrics", g.cfg.Metrics.Handler())
	}

	return applyMiddleware(r.Handler,
		recovery,
		withRequestID,
		timing,
		httpMetrics(g.cfg.Metrics),
		corsHandler(corsOrigins),
		securityHeaders,
	)
}

// Serve starts the HTTP server on addr (e.g. ":8080") and blocks until the
// server stops. WriteTimeout stays unset so long-lived SSE responses are not
// cut off.
func (g *Gateway) Serve(addr string, corsOrigins []string) error {
	srv := &fasthttp.Server{
		Handler:            g.Handler(corsOrigins),
		ReadTimeout:        60 * time.Second,
		MaxRequestBodySize: maxBodySize,
	}
	g.log.Info("listening", "addr", addr)
	return srv.ListenAndServe(addr)
}

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

// handleModels lists the catalog's model ids in the OpenAI list shape.
func (g *Gateway) handleModels(ctx *fasthttp.RequestCtx) {
	list := modelList{Object: "list"}
	for _, id := range g.cfg.Catalog.Models() {
		m := g.cfg.Catalog.LookupModel(id)
		if m == nil || len(m.Mappings) == 0 {
			continue
		}
		list.Data = append(list.Data, modelInfo{
			ID:      id,
			Object:  "model",
			OwnedBy: m.Mappings[0].ProviderID,
		})
	}
	writeJSON(ctx, list)
}

func (g *Gateway) handleHealth(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]any{"status": "ok"})
}

func (g *Gateway) handleReadiness(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]string{"status": "ok"})
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}
