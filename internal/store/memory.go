package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is an in-process Store used in development mode and tests.
type Memory struct {
	mu           sync.RWMutex
	orgs         map[string]*Organization
	projects     map[string]*Project
	apiKeys      map[string]*APIKey // by token
	providerKeys []*ProviderKey
	logs         []*LogEntry
	seenLogs     map[string]bool // by requestId
	txs          []*Transaction
	locks        map[string]time.Time

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		orgs:     make(map[string]*Organization),
		projects: make(map[string]*Project),
		apiKeys:  make(map[string]*APIKey),
		seenLogs: make(map[string]bool),
		locks:    make(map[string]time.Time),
		now:      time.Now,
	}
}

// Seed helpers.

func (m *Memory) PutOrganization(o *Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orgs[o.ID] = &cp
}

func (m *Memory) PutProject(p *Project) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.projects[p.ID] = &cp
}

func (m *Memory) PutAPIKey(k *APIKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	m.apiKeys[k.Token] = &cp
}

func (m *Memory) PutProviderKey(k *ProviderKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	m.providerKeys = append(m.providerKeys, &cp)
}

// Store implementation.

func (m *Memory) GetAPIKeyByToken(ctx context.Context, token string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.apiKeys[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *Memory) GetProject(ctx context.Context, id string) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *Memory) GetProviderKey(ctx context.Context, orgID, providerID string) (*ProviderKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.providerKeys {
		if k.OrganizationID == orgID && k.ProviderID == providerID && k.Status == StatusActive {
			cp := *k
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetCustomProviderKey(ctx context.Context, orgID, name string) (*ProviderKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range m.providerKeys {
		if k.OrganizationID == orgID && k.Name == name && k.Status == StatusActive {
			cp := *k
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListProviderKeys(ctx context.Context, orgID string) ([]*ProviderKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ProviderKey
	for _, k := range m.providerKeys {
		if k.OrganizationID == orgID && k.Status == StatusActive {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) InsertLogs(ctx context.Context, entries []*LogEntry) ([]*LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var inserted []*LogEntry
	for _, e := range entries {
		if m.seenLogs[e.RequestID] {
			continue
		}
		m.seenLogs[e.RequestID] = true
		cp := *e
		m.logs = append(m.logs, &cp)
		inserted = append(inserted, e)
	}
	return inserted, nil
}

func (m *Memory) DebitCredits(ctx context.Context, orgID string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orgs[orgID]
	if !ok {
		return ErrNotFound
	}
	o.Credits = o.Credits.Sub(amount)
	return nil
}

func (m *Memory) ListAutoTopUpCandidates(ctx context.Context) ([]*Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Organization
	for _, o := range m.orgs {
		if o.AutoTopUpEnabled && o.Credits.LessThan(o.AutoTopUpThreshold) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) LatestTopUpTransaction(ctx context.Context, orgID string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Transaction
	for _, tx := range m.txs {
		if tx.OrganizationID != orgID || tx.Type != TxTypeTopUp {
			continue
		}
		if latest == nil || tx.CreatedAt.After(latest.CreatedAt) {
			latest = tx
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) InsertTransaction(ctx context.Context, tx *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	if cp.ID == "" {
		cp.ID = uuid.NewString()
		tx.ID = cp.ID
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
		tx.CreatedAt = cp.CreatedAt
	}
	cp.UpdatedAt = cp.CreatedAt
	m.txs = append(m.txs, &cp)
	return nil
}

func (m *Memory) UpdateTransaction(ctx context.Context, id, status, intentID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range m.txs {
		if tx.ID == id {
			tx.Status = status
			if intentID != "" {
				tx.PaymentIntentID = intentID
			}
			tx.Error = errMsg
			tx.UpdatedAt = m.now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) AcquireLock(ctx context.Context, key string, stale time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if at, held := m.locks[key]; held && now.Sub(at) < stale {
		return false, nil
	}
	m.locks[key] = now
	return true, nil
}

func (m *Memory) ReleaseLock(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

// Logs returns a snapshot of persisted rows, oldest first.
func (m *Memory) Logs() []*LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*LogEntry, len(m.logs))
	copy(out, m.logs)
	return out
}

// Transactions returns a snapshot of transaction rows.
func (m *Memory) Transactions() []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		cp := *tx
		out = append(out, &cp)
	}
	return out
}
