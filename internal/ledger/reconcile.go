package ledger

import (
	"context"
	"errors"
	"slices"

	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/sheikh-saqib/brokerage-ledger/internal/position"
	"github.com/shopspring/decimal"
)

// Report is the reconciliation outcome for one account.
type Report struct {
	AccountID string          `json:"account_id"`
	Cached    decimal.Decimal `json:"cached_balance"`
	Replayed  decimal.Decimal `json:"replayed_balance"`
	Positions int             `json:"positions"`
	Err       error           `json:"-"`
}

// OK reports whether the account reconciled cleanly.
func (r Report) OK() bool { return r.Err == nil }

// Verify replays one account under its lock and compares the result with
// the cached balance and the stored positions. A mismatch halts the account.
func (l *Ledger) Verify(ctx context.Context, accountID string) (Report, error) {
	release, err := l.locks.Acquire(ctx, accountID)
	if err != nil {
		return Report{AccountID: accountID}, err
	}
	defer release()

	report := Report{AccountID: accountID}
	stored, err := l.store.Positions(ctx, accountID)
	if err != nil {
		return report, err
	}
	securities := make(map[string]bool, len(stored))
	for _, p := range stored {
		securities[p.SecurityID] = true
	}

	err = l.store.Atomic(context.WithoutCancel(ctx), func(tx interfaces.StoreTx) error {
		entries, err := tx.Entries(ctx, models.EntryFilter{AccountIDs: []string{accountID}})
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Kind.IsTrade() {
				securities[e.SecurityID] = true
			}
		}
		report.Positions = len(securities)
		report.Cached, report.Replayed, err = l.verifyAccount(ctx, tx, accountID, entries, securities)
		return err
	})
	if errors.Is(err, models.ErrReconciliationMismatch) {
		report.Err = err
		l.halt([]string{accountID}, err)
	}
	return report, err
}

// ReconcileAll verifies every account with ledger activity. Mismatches are
// collected in the reports; only infrastructure failures abort the run.
func (l *Ledger) ReconcileAll(ctx context.Context) ([]Report, error) {
	ids, err := l.store.AccountIDs(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]Report, 0, len(ids))
	for _, id := range ids {
		r, err := l.Verify(ctx, id)
		if err != nil && !errors.Is(err, models.ErrReconciliationMismatch) {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// verifyTx checks every account and security a write touched.
func (l *Ledger) verifyTx(ctx context.Context, tx interfaces.StoreTx, touched map[string]map[string]bool) error {
	accounts := make([]string, 0, len(touched))
	for id := range touched {
		accounts = append(accounts, id)
	}
	slices.Sort(accounts)

	for _, id := range accounts {
		entries, err := tx.Entries(ctx, models.EntryFilter{AccountIDs: []string{id}})
		if err != nil {
			return err
		}
		if _, _, err := l.verifyAccount(ctx, tx, id, entries, touched[id]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) verifyAccount(ctx context.Context, tx interfaces.StoreTx, accountID string, entries []models.LedgerEntry, securities map[string]bool) (cached, replayed decimal.Decimal, err error) {
	replayed = decimal.Zero
	for _, e := range entries {
		replayed = replayed.Add(e.SignedAmount())
	}
	cached, err = tx.Balance(ctx, accountID)
	if err != nil {
		return cached, replayed, err
	}
	if !cached.Equal(replayed) {
		return cached, replayed, models.Errorf(models.ErrReconciliationMismatch, "balance counter diverges from ledger replay").
			With("account_id", accountID).
			With("cached", cached).
			With("replayed", replayed)
	}
	if replayed.IsNegative() {
		return cached, replayed, models.Errorf(models.ErrReconciliationMismatch, "negative balance").
			With("account_id", accountID).
			With("balance", replayed)
	}

	for securityID := range securities {
		stored, found, err := tx.Position(ctx, accountID, securityID)
		if err != nil {
			return cached, replayed, err
		}
		rebuilt, seen, err := position.Replay(accountID, securityID, entries)
		if err != nil {
			return cached, replayed, models.Errorf(models.ErrReconciliationMismatch, "replay failed: %v", err).
				With("account_id", accountID).
				With("security_id", securityID)
		}
		if err := position.Reconcile(stored, found, rebuilt, seen); err != nil {
			return cached, replayed, err
		}
	}
	return cached, replayed, nil
}
