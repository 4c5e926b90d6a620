// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra    — external connections (Redis, ClickHouse) when configured
//  2. initStore    — datastore and dev fixtures
//  3. initServices — cache, queue, routing, billing, metrics
//  4. initGateway  — HTTP ingress and the background worker
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gwcache "github.com/dban0001/llmgateway/internal/cache"
	"github.com/dban0001/llmgateway/internal/catalog"
	"github.com/dban0001/llmgateway/internal/config"
	"github.com/dban0001/llmgateway/internal/metrics"
	"github.com/dban0001/llmgateway/internal/proxy"
	"github.com/dban0001/llmgateway/internal/routing"
	"github.com/dban0001/llmgateway/internal/store"
	"github.com/dban0001/llmgateway/internal/worker"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	cat *catalog.Catalog

	// Optional external connections — nil when not configured.
	rdb  *redis.Client
	sink *store.LogSink

	st       *store.Memory
	memCache *gwcache.MemoryCache
	cacheImp gwcache.Cache
	excl     *gwcache.ExclusionList
	queue    worker.Queue

	prom *metrics.Registry

	gw  *proxy.Gateway
	wrk *worker.Worker
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log, cat: catalog.New()}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"store", a.initStore},
		{"services", a.initServices},
		{"gateway", a.initGateway},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and the log worker, blocking until ctx is
// cancelled or the server fails. The worker is drained before returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("cache_mode", a.cfg.Cache.Mode),
		slog.String("queue_mode", a.cfg.Queue.Mode),
		slog.Bool("production", a.cfg.Production()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.gw.Serve(addr, a.cfg.CORSOrigins)
	})

	g.Go(func() error {
		a.wrk.Run(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.wrk.Stop()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times and from multiple goroutines.
func (a *App) Close() {
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Error("clickhouse close error", slog.String("error", err.Error()))
		}
		a.sink = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// connectRedis parses the URL and verifies connectivity with a PING.
// Returns an error — callers decide whether to fatal or degrade.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// newRouting builds the credential resolver and model router over the shared
// catalog and store.
func newRouting(cat *catalog.Catalog, st store.Store, env map[string]string) *routing.Router {
	return routing.NewRouter(cat, routing.NewResolver(st, env))
}
