package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dban0001/llmgateway/internal/metrics"
	"github.com/dban0001/llmgateway/internal/store"
)

const (
	defaultTick      = time.Second
	defaultBatchSize = 10
	drainTimeout     = 15 * time.Second

	topupEveryProd = 120
	topupEveryDev  = 5
	statsEveryProd = 60
	statsEveryDev  = 10
)

// TopUpRunner is one pass of the auto-topup loop.
type TopUpRunner interface {
	RunOnce(ctx context.Context)
}

type Config struct {
	Store      store.Store
	Queue      Queue
	Sink       *store.LogSink // optional analytics mirror
	TopUp      TopUpRunner    // optional
	Metrics    *metrics.Registry
	Logger     *slog.Logger
	Production bool
}

// Worker owns all writes to the log table and org credit balances. The hot
// path only enqueues; this loop claims batches, persists them, and debits
// credits once per org per batch.
type Worker struct {
	cfg        Config
	tick       time.Duration
	batchSize  int
	topupEvery int
	statsEvery int

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) *Worker {
	w := &Worker{
		cfg:        cfg,
		tick:       defaultTick,
		batchSize:  defaultBatchSize,
		topupEvery: topupEveryDev,
		statsEvery: statsEveryDev,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if cfg.Production {
		w.topupEvery = topupEveryProd
		w.statsEvery = statsEveryProd
	}
	if cfg.Logger == nil {
		w.cfg.Logger = slog.Default()
	}
	return w
}

// Run drains the queue until ctx is canceled or Stop is called. Messages
// claimed by a previous crashed run are recovered before the first pass.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	if n, err := w.cfg.Queue.Recover(ctx); err != nil {
		w.cfg.Logger.Error("queue recovery failed", "error", err)
	} else if n > 0 {
		w.cfg.Logger.Info("recovered in-flight log messages", "count", n)
	}

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	iter := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			// Final drain before exit.
			w.processBatch(ctx)
			return
		case <-ticker.C:
			iter++
			w.processBatch(ctx)
			if w.cfg.TopUp != nil && iter%w.topupEvery == 0 {
				w.cfg.TopUp.RunOnce(ctx)
			}
			if iter%w.statsEvery == 0 {
				w.logStats(ctx)
			}
		}
	}
}

// Stop signals the loop and blocks until it drains, up to 15 seconds.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	select {
	case <-w.done:
	case <-time.After(drainTimeout):
		w.cfg.Logger.Warn("log worker did not drain before timeout")
	}
}

// processBatch claims one batch, persists it, debits credits, and acks.
// A persist failure recovers the batch to the main queue; the loop carries
// on at the next tick.
func (w *Worker) processBatch(ctx context.Context) {
	batch, err := w.cfg.Queue.ClaimBatch(ctx, w.batchSize)
	if err != nil {
		w.cfg.Logger.Error("claim batch failed", "error", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	orgCache := map[string]*store.Organization{}
	projCache := map[string]*store.Project{}

	var entries []*store.LogEntry
	for _, msg := range batch {
		var e store.LogEntry
		if err := json.Unmarshal(msg, &e); err != nil {
			// Malformed messages are dropped; they must not poison the batch.
			w.cfg.Logger.Error("discarding invalid queue message", "error", err)
			continue
		}
		w.applyRetention(ctx, &e, orgCache)
		entries = append(entries, &e)
	}

	if len(entries) > 0 {
		// Only rows the insert actually wrote are mirrored and billed, so a
		// redelivered batch (ack failure, crash between insert and ack)
		// cannot debit an org twice for the same requestId.
		inserted, err := w.cfg.Store.InsertLogs(ctx, entries)
		if err != nil {
			w.cfg.Logger.Error("log persist failed, recovering batch", "error", err)
			if _, rerr := w.cfg.Queue.Recover(ctx); rerr != nil {
				w.cfg.Logger.Error("batch recovery failed", "error", rerr)
			}
			return
		}
		if len(inserted) > 0 {
			w.cfg.Sink.Write(ctx, inserted)
			w.debitCredits(ctx, inserted, projCache)
		}
	}

	if err := w.cfg.Queue.Ack(ctx, batch); err != nil {
		w.cfg.Logger.Error("batch ack failed", "error", err)
	}
}

// applyRetention strips message bodies and completion content for orgs that
// opted out of content retention.
func (w *Worker) applyRetention(ctx context.Context, e *store.LogEntry, cache map[string]*store.Organization) {
	if e.OrganizationID == "" {
		return
	}
	org, ok := cache[e.OrganizationID]
	if !ok {
		var err error
		org, err = w.cfg.Store.GetOrganization(ctx, e.OrganizationID)
		if err != nil {
			return
		}
		cache[e.OrganizationID] = org
	}
	if org.RetentionLevel == store.RetentionNone {
		e.Messages = nil
		e.Content = ""
	}
}

// debitCredits groups billable rows by org and issues a single atomic
// decrement per org. Cached hits and api-keys projects never debit.
func (w *Worker) debitCredits(ctx context.Context, entries []*store.LogEntry, projCache map[string]*store.Project) {
	totals := map[string]decimal.Decimal{}
	for _, e := range entries {
		if e.Cached || e.ErrorType != "" || e.OrganizationID == "" || !e.TotalCost.IsPositive() {
			continue
		}
		proj, ok := projCache[e.ProjectID]
		if !ok {
			var err error
			proj, err = w.cfg.Store.GetProject(ctx, e.ProjectID)
			if err != nil {
				continue
			}
			projCache[e.ProjectID] = proj
		}
		if proj.Mode == store.ModeAPIKeys {
			continue
		}
		totals[e.OrganizationID] = totals[e.OrganizationID].Add(e.TotalCost)
	}

	for orgID, amount := range totals {
		if err := w.cfg.Store.DebitCredits(ctx, orgID, amount); err != nil {
			w.cfg.Logger.Error("credit debit failed", "organizationId", orgID, "error", err)
		}
	}
}

func (w *Worker) logStats(ctx context.Context) {
	main, processing, err := w.cfg.Queue.Depth(ctx)
	if err != nil {
		w.cfg.Logger.Error("queue depth check failed", "error", err)
		return
	}
	w.cfg.Logger.Info("log queue stats", "main", main, "processing", processing)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.SetQueueDepth(main, processing)
	}
}
