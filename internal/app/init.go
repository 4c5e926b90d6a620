package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/dban0001/llmgateway/internal/billing"
	gwcache "github.com/dban0001/llmgateway/internal/cache"
	"github.com/dban0001/llmgateway/internal/metrics"
	"github.com/dban0001/llmgateway/internal/payments"
	"github.com/dban0001/llmgateway/internal/proxy"
	"github.com/dban0001/llmgateway/internal/store"
	"github.com/dban0001/llmgateway/internal/tokenizer"
	"github.com/dban0001/llmgateway/internal/topup"
	"github.com/dban0001/llmgateway/internal/worker"
)

// initInfra establishes optional external connections. Redis is only
// required when the cache or the queue runs in redis mode; ClickHouse only
// when an address is configured.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Cache.Mode == "redis" || a.cfg.Queue.Mode == "redis" {
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")
	}

	if a.cfg.ClickHouse.Addr != "" {
		sink, err := store.NewLogSink(
			a.cfg.ClickHouse.Addr,
			a.cfg.ClickHouse.Database,
			a.cfg.ClickHouse.Username,
			a.cfg.ClickHouse.Password,
			a.log,
		)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		a.sink = sink
		a.log.Info("clickhouse connected", slog.String("addr", a.cfg.ClickHouse.Addr))
	}

	return nil
}

// initStore builds the datastore and, in development, seeds a fixture org so
// the gateway is usable out of the box.
func (a *App) initStore(_ context.Context) error {
	a.st = store.NewMemory()
	if a.cfg.DevSeed {
		seedDevFixtures(a.st)
		a.log.Info("dev fixtures seeded",
			slog.String("api_key", devAPIKeyToken),
			slog.String("project", devProjectID),
		)
	}
	return nil
}

// initServices creates the cache backend, the log queue, and the Prometheus
// metrics registry.
func (a *App) initServices(ctx context.Context) error {
	switch a.cfg.Cache.Mode {
	case "redis":
		a.cacheImp = gwcache.NewExactCacheFromClient(a.rdb)
		a.log.Info("cache backend: redis")
	case "memory":
		a.memCache = gwcache.NewMemoryCache(ctx)
		a.cacheImp = a.memCache
		a.log.Info("cache backend: memory (in-process)")
	case "none":
		a.log.Info("cache backend: disabled")
	default:
		return fmt.Errorf("unknown cache mode: %s", a.cfg.Cache.Mode)
	}

	if len(a.cfg.Cache.ExcludeExact) > 0 || len(a.cfg.Cache.ExcludePatterns) > 0 {
		el, err := gwcache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
		if err != nil {
			return fmt.Errorf("cache exclusions: %w", err)
		}
		a.excl = el
		a.log.Info("cache exclusions loaded", slog.Int("rules", el.Len()))
	}

	switch a.cfg.Queue.Mode {
	case "redis":
		a.queue = worker.NewRedisQueue(a.rdb)
		a.log.Info("log queue: redis")
	case "memory":
		a.queue = worker.NewMemoryQueue()
		a.log.Info("log queue: memory (in-process)")
	default:
		return fmt.Errorf("unknown queue mode: %s", a.cfg.Queue.Mode)
	}

	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)

	return nil
}

// initGateway wires the HTTP ingress and the background log worker.
func (a *App) initGateway(_ context.Context) error {
	router := newRouting(a.cat, a.st, a.cfg.ProviderEnv)

	a.gw = proxy.New(proxy.Config{
		Catalog:    a.cat,
		Router:     router,
		Store:      a.st,
		Cache:      a.cacheImp,
		Exclusions: a.excl,
		CacheTTL:   a.cfg.Cache.TTL,
		Queue:      a.queue,
		Tokens:     tokenizer.New(),
		Costs:      billing.NewCalculator(a.cat),
		Metrics:    a.prom,
		Logger:     a.log,
	})

	var topupLoop worker.TopUpRunner
	if a.cfg.Payments.SecretKey != "" {
		pc := payments.NewHTTPClient(a.cfg.Payments.SecretKey, a.cfg.Payments.BaseURL)
		topupLoop = topup.New(a.st, pc, a.prom, a.log)
		a.log.Info("auto-topup enabled")
	}

	a.wrk = worker.New(worker.Config{
		Store:      a.st,
		Queue:      a.queue,
		Sink:       a.sink,
		TopUp:      topupLoop,
		Metrics:    a.prom,
		Logger:     a.log,
		Production: a.cfg.Production(),
	})

	return nil
}

// Dev fixture identifiers, stable so curl examples in the README work.
const (
	devOrgID       = "org_dev"
	devProjectID   = "proj_dev"
	devAPIKeyToken = "llmgtwy_dev_key"
)

// seedDevFixtures loads a hybrid-mode org/project/key trio with a small
// credit balance for local development.
func seedDevFixtures(st *store.Memory) {
	st.PutOrganization(&store.Organization{
		ID:             devOrgID,
		Credits:        decimal.NewFromInt(10),
		Plan:           "pro",
		RetentionLevel: store.RetentionFull,
	})
	st.PutProject(&store.Project{
		ID:             devProjectID,
		OrganizationID: devOrgID,
		Mode:           store.ModeHybrid,
		CachingEnabled: true,
	})
	st.PutAPIKey(&store.APIKey{
		ID:        "key_dev",
		Token:     devAPIKeyToken,
		ProjectID: devProjectID,
		Status:    store.StatusActive,
	})
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	for i, c := range raw {
		if c == '@' {
			for j := i - 1; j >= 0; j-- {
				if j+2 < len(raw) && raw[j:j+3] == "://" {
					return raw[:j+3] + "***" + raw[i:]
				}
			}
			return "***" + raw[i:]
		}
	}
	return raw
}
