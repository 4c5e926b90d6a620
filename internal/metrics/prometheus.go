// Package metrics provides a Prometheus metrics registry for the gateway.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// gateway_inflight_requests
	inFlight prometheus.Gauge

	// gateway_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// gateway_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// gateway_requests_total{provider,model,status}
	requestsTotal *prometheus.CounterVec

	// gateway_request_duration_seconds{provider,stream}
	requestDuration *prometheus.HistogramVec

	// gateway_upstream_errors_total{provider,error_type}
	upstreamErrors *prometheus.CounterVec

	// cache_hits_total / cache_misses_total
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	// gateway_tokens_total{provider,direction}
	tokensTotal *prometheus.CounterVec

	// gateway_cost_total{provider} — accumulated request cost in credits
	costTotal *prometheus.CounterVec

	// gateway_log_queue_depth{queue}
	queueDepth *prometheus.GaugeVec

	// gateway_topup_attempts_total{status}
	topupAttempts *prometheus.CounterVec

	// gateway_canceled_requests_total{provider}
	canceledTotal *prometheus.CounterVec

	// gateway_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	// Baseline runtime metrics even with a private registry.
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_inflight_requests",
			Help: "Current number of in-flight HTTP requests handled by the gateway",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests handled by the gateway",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes cache + upstream)",
				Buckets: []float64{0.001, 0.002, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"route"},
		),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total chat-completion requests by resolved provider and model",
			},
			[]string{"provider", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "End-to-end chat-completion duration in seconds",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider", "stream"},
		),

		upstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_upstream_errors_total",
				Help: "Upstream provider failures by type",
			},
			[]string{"provider", "error_type"},
		),

		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),

		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_tokens_total",
				Help: "Token usage totals derived from upstream usage fields",
			},
			[]string{"provider", "direction"},
		),

		costTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_cost_total",
				Help: "Accumulated request cost in credits",
			},
			[]string{"provider"},
		),

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_log_queue_depth",
				Help: "Messages waiting in the log queue",
			},
			[]string{"queue"},
		),

		topupAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_topup_attempts_total",
				Help: "Auto-topup attempts by resulting transaction status",
			},
			[]string{"status"},
		),

		canceledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_canceled_requests_total",
				Help: "Streaming requests canceled by the client",
			},
			[]string{"provider"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.requestsTotal,
		r.requestDuration,
		r.upstreamErrors,
		r.cacheHits,
		r.cacheMisses,
		r.tokensTotal,
		r.costTotal,
		r.queueDepth,
		r.topupAttempts,
		r.canceledTotal,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// RecordCompletion records one resolved chat-completion request.
func (r *Registry) RecordCompletion(provider, model string, statusCode int, stream bool, dur time.Duration) {
	r.requestsTotal.WithLabelValues(provider, model, strconv.Itoa(statusCode)).Inc()
	r.requestDuration.WithLabelValues(provider, strconv.FormatBool(stream)).Observe(dur.Seconds())
}

func (r *Registry) RecordUpstreamError(provider, errType string) {
	r.upstreamErrors.WithLabelValues(provider, errType).Inc()
}

func (r *Registry) CacheHit()  { r.cacheHits.Inc() }
func (r *Registry) CacheMiss() { r.cacheMisses.Inc() }

func (r *Registry) AddTokens(provider string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "input").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		r.tokensTotal.WithLabelValues(provider, "output").Add(float64(completionTokens))
	}
}

func (r *Registry) AddCost(provider string, cost float64) {
	if cost > 0 {
		r.costTotal.WithLabelValues(provider).Add(cost)
	}
}

func (r *Registry) SetQueueDepth(main, processing int64) {
	r.queueDepth.WithLabelValues("main").Set(float64(main))
	r.queueDepth.WithLabelValues("processing").Set(float64(processing))
}

func (r *Registry) RecordTopUp(status string) {
	r.topupAttempts.WithLabelValues(status).Inc()
}

func (r *Registry) RecordCanceled(provider string) {
	r.canceledTotal.WithLabelValues(provider).Inc()
}

func (r *Registry) SetBuildInfo(version string) {
	// Gauge is used so the time series always exists.
	r.buildInfo.WithLabelValues(version).Set(1)
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
