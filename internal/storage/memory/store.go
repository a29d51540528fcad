package memory

import (
	"context"
	"iter"
	"slices"
	"sync"
	"sync/atomic"

	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
)

type positionKey struct {
	account  string
	security string
}

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore.
// Transactions stage their writes and apply them under one write lock on
// commit, so readers never see half of a transaction.
type MemoryLedgerStore struct {
	mu        sync.RWMutex
	entries   []models.LedgerEntry
	balances  map[string]decimal.Decimal
	positions map[positionKey]models.Position

	lastID atomic.Int64
}

// NewMemoryLedgerStore creates an empty store.
func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries:   make([]models.LedgerEntry, 0),
		balances:  make(map[string]decimal.Decimal),
		positions: make(map[positionKey]models.Position),
	}
}

// Atomic runs fn against a staging transaction and commits it if fn succeeds.
func (m *MemoryLedgerStore) Atomic(ctx context.Context, fn func(tx interfaces.StoreTx) error) error {
	tx := &memoryTx{
		store:     m,
		deltas:    make(map[string]decimal.Decimal),
		positions: make(map[positionKey]models.Position),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, tx.entries...)
	for account, delta := range tx.deltas {
		m.balances[account] = m.balances[account].Add(delta)
	}
	for key, p := range tx.positions {
		m.positions[key] = p
	}
	return nil
}

func (m *MemoryLedgerStore) Entries(ctx context.Context, filter models.EntryFilter) iter.Seq2[models.LedgerEntry, error] {
	return func(yield func(models.LedgerEntry, error) bool) {
		m.mu.RLock()
		matched := matching(m.entries, filter)
		m.mu.RUnlock()

		for _, e := range order(matched, filter) {
			if err := ctx.Err(); err != nil {
				yield(models.LedgerEntry{}, err)
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *MemoryLedgerStore) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[accountID], nil
}

func (m *MemoryLedgerStore) Position(ctx context.Context, accountID, securityID string) (models.Position, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[positionKey{accountID, securityID}]
	return p, ok, nil
}

func (m *MemoryLedgerStore) Positions(ctx context.Context, accountID string) ([]models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []models.Position
	for key, p := range m.positions {
		if key.account == accountID {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b models.Position) int {
		if a.SecurityID < b.SecurityID {
			return -1
		}
		if a.SecurityID > b.SecurityID {
			return 1
		}
		return 0
	})
	return result, nil
}

func (m *MemoryLedgerStore) AccountIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.balances))
	for id := range m.balances {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// memoryTx overlays staged writes on the committed state.
type memoryTx struct {
	store     *MemoryLedgerStore
	entries   []models.LedgerEntry
	deltas    map[string]decimal.Decimal
	positions map[positionKey]models.Position
}

// Lock is a no-op: writers of one process are serialized by the ledger's
// account locks.
func (t *memoryTx) Lock(context.Context, []string) error { return nil }

func (t *memoryTx) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	committed, err := t.store.Balance(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return committed.Add(t.deltas[accountID]), nil
}

func (t *memoryTx) InsertEntry(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	entry.ID = t.store.lastID.Add(1)
	t.entries = append(t.entries, entry)
	t.deltas[entry.AccountID] = t.deltas[entry.AccountID].Add(entry.SignedAmount())
	return entry, nil
}

func (t *memoryTx) Position(ctx context.Context, accountID, securityID string) (models.Position, bool, error) {
	if p, ok := t.positions[positionKey{accountID, securityID}]; ok {
		return p, true, nil
	}
	return t.store.Position(ctx, accountID, securityID)
}

func (t *memoryTx) PutPosition(ctx context.Context, p models.Position) error {
	t.positions[positionKey{p.AccountID, p.SecurityID}] = p
	return nil
}

func (t *memoryTx) Entries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error) {
	t.store.mu.RLock()
	matched := matching(t.store.entries, filter)
	t.store.mu.RUnlock()

	matched = append(matched, matching(t.entries, filter)...)
	return order(matched, filter), nil
}

func matching(entries []models.LedgerEntry, filter models.EntryFilter) []models.LedgerEntry {
	var result []models.LedgerEntry
	for _, e := range entries {
		if filter.Match(e) {
			result = append(result, e)
		}
	}
	return result
}

// order sorts in place and applies the limit.
func order(entries []models.LedgerEntry, filter models.EntryFilter) []models.LedgerEntry {
	slices.SortFunc(entries, func(a, b models.LedgerEntry) int {
		switch {
		case a.Before(b):
			return -1
		case b.Before(a):
			return 1
		}
		return 0
	})
	if filter.Descending {
		slices.Reverse(entries)
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore interface
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
