// Package store defines the datastore surface the gateway depends on:
// auth lookups on the hot path, log persistence and atomic credit debits
// from the worker, and the transaction/lock tables behind auto-topup.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("store: not found")

type Store interface {
	// Hot-path lookups.
	GetAPIKeyByToken(ctx context.Context, token string) (*APIKey, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	GetOrganization(ctx context.Context, id string) (*Organization, error)

	// GetProviderKey returns the active stored key for (org, provider).
	GetProviderKey(ctx context.Context, orgID, providerID string) (*ProviderKey, error)
	// GetCustomProviderKey resolves a custom provider by its per-org name.
	GetCustomProviderKey(ctx context.Context, orgID, name string) (*ProviderKey, error)
	// ListProviderKeys returns the org's active stored keys.
	ListProviderKeys(ctx context.Context, orgID string) ([]*ProviderKey, error)

	// InsertLogs persists a batch, skipping rows whose requestId was
	// already written, and returns the rows it newly inserted. Redelivered
	// rows come back excluded so billing can key off the same idempotency
	// check as the write.
	InsertLogs(ctx context.Context, entries []*LogEntry) ([]*LogEntry, error)
	// DebitCredits decrements the org balance in a single conditional
	// update; never read-modify-write.
	DebitCredits(ctx context.Context, orgID string, amount decimal.Decimal) error

	// Auto-topup support.
	ListAutoTopUpCandidates(ctx context.Context) ([]*Organization, error)
	LatestTopUpTransaction(ctx context.Context, orgID string) (*Transaction, error)
	InsertTransaction(ctx context.Context, tx *Transaction) error
	UpdateTransaction(ctx context.Context, id, status, intentID, errMsg string) error

	// AcquireLock takes the named advisory lock, preempting holders whose
	// timestamp is older than stale. Returns false when held by another.
	AcquireLock(ctx context.Context, key string, stale time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}
