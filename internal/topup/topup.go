// Package topup charges a stored payment method when an organization's
// credit balance drops below its configured threshold.
package topup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dban0001/llmgateway/internal/billing"
	"github.com/dban0001/llmgateway/internal/metrics"
	"github.com/dban0001/llmgateway/internal/payments"
	"github.com/dban0001/llmgateway/internal/store"
)

const (
	// lockKey serializes topup passes across all gateway instances.
	lockKey   = "auto_topup_check"
	lockLease = 10 * time.Minute

	// recentWindow suppresses retries while a pending or failed attempt is
	// less than an hour old.
	recentWindow = time.Hour

	currency = "usd"
)

type Loop struct {
	store    store.Store
	payments payments.Client
	metrics  *metrics.Registry
	log      *slog.Logger
	now      func() time.Time
}

func New(st store.Store, pc payments.Client, m *metrics.Registry, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{store: st, payments: pc, metrics: m, log: log, now: time.Now}
}

// RunOnce executes one topup pass under the distributed lock. Losing the
// lock race is normal in a multi-instance deployment and not an error.
func (l *Loop) RunOnce(ctx context.Context) {
	acquired, err := l.store.AcquireLock(ctx, lockKey, lockLease)
	if err != nil {
		l.log.Error("topup lock acquire failed", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := l.store.ReleaseLock(ctx, lockKey); err != nil {
			l.log.Error("topup lock release failed", "error", err)
		}
	}()

	orgs, err := l.store.ListAutoTopUpCandidates(ctx)
	if err != nil {
		l.log.Error("listing topup candidates failed", "error", err)
		return
	}
	for _, org := range orgs {
		l.topUp(ctx, org)
	}
}

func (l *Loop) topUp(ctx context.Context, org *store.Organization) {
	log := l.log.With("organizationId", org.ID)

	// Idempotency window: one attempt per hour, whatever its outcome.
	last, err := l.store.LatestTopUpTransaction(ctx, org.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("latest topup lookup failed", "error", err)
		return
	}
	if last != nil && l.now().Sub(last.CreatedAt) < recentWindow &&
		(last.Status == store.TxPending || last.Status == store.TxFailed) {
		return
	}

	if org.DefaultPaymentMethodID == "" {
		log.Warn("auto-topup enabled without a default payment method")
		return
	}
	pm, err := l.payments.GetPaymentMethod(ctx, org.DefaultPaymentMethodID)
	if err != nil {
		log.Error("payment method lookup failed", "error", err)
		return
	}

	fees := billing.TopUpFees(org.AutoTopUpAmount, org.Plan, pm.CardCountry)

	tx := &store.Transaction{
		OrganizationID: org.ID,
		Type:           store.TxTypeTopUp,
		Status:         store.TxPending,
		BaseAmount:     fees.BaseAmount,
		TotalFees:      fees.TotalFees,
		TotalAmount:    fees.TotalAmount,
	}
	if err := l.store.InsertTransaction(ctx, tx); err != nil {
		log.Error("topup transaction insert failed", "error", err)
		return
	}

	intent, err := l.payments.CreateIntent(ctx, payments.IntentParams{
		CustomerID:      org.CustomerID,
		PaymentMethodID: pm.ID,
		Amount:          fees.TotalAmount,
		Currency:        currency,
		Description:     "automatic credit top-up",
		TransactionID:   tx.ID,
	})
	if err != nil {
		log.Error("payment intent creation failed", "error", err)
		l.finish(ctx, tx.ID, store.TxFailed, "", err.Error())
		return
	}

	switch intent.Status {
	case payments.IntentSucceeded, payments.IntentRequiresAction:
		// The webhook settles the row; succeeded intents stay pending here
		// until it credits the org.
		l.finish(ctx, tx.ID, store.TxPending, intent.ID, "")
		log.Info("topup intent created",
			"intentId", intent.ID, "status", intent.Status,
			"amount", fees.TotalAmount.String())
	default:
		l.finish(ctx, tx.ID, store.TxFailed, intent.ID, "unexpected intent status "+intent.Status)
		log.Warn("topup intent in unexpected status",
			"intentId", intent.ID, "status", intent.Status)
	}
}

func (l *Loop) finish(ctx context.Context, txID, status, intentID, errMsg string) {
	if err := l.store.UpdateTransaction(ctx, txID, status, intentID, errMsg); err != nil {
		l.log.Error("topup transaction update failed", "transactionId", txID, "error", err)
	}
	if l.metrics != nil {
		l.metrics.RecordTopUp(status)
	}
}
