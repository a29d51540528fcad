package interfaces

import (
	"context"
	"iter"

	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// LedgerStore is the durable home of ledger entries, cached balances and
// positions. Reads observe committed state only.
type LedgerStore interface {
	// Atomic runs fn in one transaction. Every write made through tx becomes
	// visible together when fn returns nil, and none of them does otherwise.
	Atomic(ctx context.Context, fn func(tx StoreTx) error) error

	// Entries yields matching entries ordered by (created_at, id), or the
	// reverse when filter.Descending is set.
	Entries(ctx context.Context, filter models.EntryFilter) iter.Seq2[models.LedgerEntry, error]

	// Balance returns the incrementally maintained balance counter.
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)

	Position(ctx context.Context, accountID, securityID string) (models.Position, bool, error)
	Positions(ctx context.Context, accountID string) ([]models.Position, error)

	// AccountIDs lists every account that has at least one entry.
	AccountIDs(ctx context.Context) ([]string, error)
}

// StoreTx is the write side of one Atomic call. Reads through it see the
// transaction's own writes.
type StoreTx interface {
	// Lock reserves the given accounts for the rest of the transaction, in
	// ascending id order. Stores whose writers all share one process may
	// treat it as a no-op.
	Lock(ctx context.Context, accountIDs []string) error

	// Balance returns the cached balance and, for stores that support it,
	// locks the counter row until the transaction ends.
	Balance(ctx context.Context, accountID string) (decimal.Decimal, error)

	// InsertEntry assigns the entry id, stores the entry and moves the
	// balance counter by entry.SignedAmount().
	InsertEntry(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error)

	Position(ctx context.Context, accountID, securityID string) (models.Position, bool, error)
	PutPosition(ctx context.Context, p models.Position) error

	Entries(ctx context.Context, filter models.EntryFilter) ([]models.LedgerEntry, error)
}
