package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind classifies a ledger entry and fixes the sign of its effect on the
// account balance.
type EntryKind string

const (
	KindDeposit     EntryKind = "DEPOSIT"
	KindWithdraw    EntryKind = "WITHDRAW"
	KindBuyStock    EntryKind = "BUY_STOCK"
	KindSellStock   EntryKind = "SELL_STOCK"
	KindTransferOut EntryKind = "TRANSFER_OUT"
	KindTransferIn  EntryKind = "TRANSFER_IN"
)

// Valid reports whether k is one of the known kinds.
func (k EntryKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdraw, KindBuyStock, KindSellStock, KindTransferOut, KindTransferIn:
		return true
	}
	return false
}

// Credits reports whether entries of this kind increase the balance.
func (k EntryKind) Credits() bool {
	return k == KindDeposit || k == KindSellStock || k == KindTransferIn
}

// IsTrade reports whether the kind is a security movement.
func (k EntryKind) IsTrade() bool {
	return k == KindBuyStock || k == KindSellStock
}

// IsTransfer reports whether the kind is one leg of a transfer.
func (k EntryKind) IsTransfer() bool {
	return k == KindTransferOut || k == KindTransferIn
}

// LedgerEntry is an immutable record of a money or security movement on an
// account. Amount is always positive; the kind decides the sign.
type LedgerEntry struct {
	ID            int64               `json:"id"`
	AccountID     string              `json:"account_id"`
	Kind          EntryKind           `json:"kind"`
	Amount        decimal.Decimal     `json:"amount"`
	SecurityID    string              `json:"security_id,omitempty"`
	Quantity      decimal.NullDecimal `json:"quantity"`
	Price         decimal.NullDecimal `json:"price"`
	Description   string              `json:"description,omitempty"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
}

// SignedAmount returns the effect of the entry on the balance.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Kind.Credits() {
		return e.Amount
	}
	return e.Amount.Neg()
}

// Before orders entries by timestamp, then by id.
func (e LedgerEntry) Before(o LedgerEntry) bool {
	if !e.CreatedAt.Equal(o.CreatedAt) {
		return e.CreatedAt.Before(o.CreatedAt)
	}
	return e.ID < o.ID
}

// EntryFilter narrows a ledger read. Zero values mean "no constraint".
type EntryFilter struct {
	AccountIDs     []string
	Kinds          []EntryKind
	SecurityID     string
	CorrelationIDs []string
	Since          time.Time
	Until          time.Time
	// Limit caps the number of entries yielded.
	Limit int
	// Descending yields newest entries first.
	Descending bool
}

// Match reports whether e satisfies every constraint of the filter except Limit.
func (f EntryFilter) Match(e LedgerEntry) bool {
	if len(f.AccountIDs) > 0 && !slices.Contains(f.AccountIDs, e.AccountID) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, e.Kind) {
		return false
	}
	if f.SecurityID != "" && f.SecurityID != e.SecurityID {
		return false
	}
	if len(f.CorrelationIDs) > 0 && !slices.Contains(f.CorrelationIDs, e.CorrelationID) {
		return false
	}
	if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.CreatedAt.Before(f.Until) {
		return false
	}
	return true
}

// LastDays returns a filter window covering the trailing days before now.
func LastDays(now time.Time, days int) EntryFilter {
	if days <= 0 {
		return EntryFilter{}
	}
	return EntryFilter{Since: now.AddDate(0, 0, -days)}
}
