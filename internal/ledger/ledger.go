package ledger

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// DefaultLockTimeout bounds how long a writer waits for an account lock.
const DefaultLockTimeout = 2 * time.Second

// Ledger is the only path by which entries reach the store. It serializes
// writers per account, enforces the non-negative balance rule on every
// append and, when verification is on, replays the touched accounts before
// each commit.
type Ledger struct {
	store     interfaces.LedgerStore
	directory interfaces.AccountDirectory
	locks     *AccountLocks
	clock     *entryClock
	log       logrus.FieldLogger
	verify    bool

	haltMu sync.RWMutex
	halted map[string]error
}

type Option func(*Ledger)

func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = log }
}

func WithLockTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.locks = NewAccountLocks(d)
		}
	}
}

// WithClock replaces time.Now as the source of entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.clock = &entryClock{now: now} }
}

// WithWriteVerification replays every touched account inside the write
// transaction and aborts the write on any divergence.
func WithWriteVerification(on bool) Option {
	return func(l *Ledger) { l.verify = on }
}

// NewLedger builds a Ledger over a store. Account existence is checked
// against the directory.
func NewLedger(store interfaces.LedgerStore, directory interfaces.AccountDirectory, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		directory: directory,
		locks:     NewAccountLocks(DefaultLockTimeout),
		clock:     &entryClock{now: time.Now},
		log:       logrus.StandardLogger(),
		verify:    true,
		halted:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store exposes the underlying store for read-side components.
func (l *Ledger) Store() interfaces.LedgerStore { return l.store }

// Writer is handed to the function passed to Write. It appends entries and
// updates positions inside the same store transaction.
type Writer struct {
	ledger  *Ledger
	tx      interfaces.StoreTx
	allowed map[string]bool
	touched map[string]map[string]bool
}

// Append commits entry once the enclosing Write succeeds. Debits that would
// take the balance below zero fail with models.ErrInsufficientFunds.
func (w *Writer) Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	if !entry.Kind.Valid() {
		return models.LedgerEntry{}, models.Errorf(models.ErrInvalidAmount, "unknown entry kind %q", entry.Kind)
	}
	if !entry.Amount.IsPositive() {
		return models.LedgerEntry{}, models.Errorf(models.ErrInvalidAmount, "amount must be positive").
			With("amount", entry.Amount)
	}
	if !w.allowed[entry.AccountID] {
		return models.LedgerEntry{}, errors.New("ledger: append to account not locked by this write")
	}
	if _, err := w.ledger.directory.Account(ctx, entry.AccountID); err != nil {
		return models.LedgerEntry{}, err
	}

	balance, err := w.tx.Balance(ctx, entry.AccountID)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if !entry.Kind.Credits() && balance.LessThan(entry.Amount) {
		return models.LedgerEntry{}, models.Errorf(models.ErrInsufficientFunds, "%s of %s exceeds balance", entry.Kind, entry.Amount).
			With("account_id", entry.AccountID).
			With("balance", balance).
			With("required", entry.Amount)
	}

	entry.CreatedAt = w.ledger.clock.Now()
	committed, err := w.tx.InsertEntry(ctx, entry)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	w.touch(entry.AccountID, entry.SecurityID)
	return committed, nil
}

// Position reads the position as seen by this transaction.
func (w *Writer) Position(ctx context.Context, accountID, securityID string) (models.Position, error) {
	p, ok, err := w.tx.Position(ctx, accountID, securityID)
	if err != nil {
		return models.Position{}, err
	}
	if !ok {
		p = models.Position{AccountID: accountID, SecurityID: securityID, Quantity: decimal.Zero, AverageCost: decimal.Zero}
	}
	return p, nil
}

// PutPosition stores the new state of a position.
func (w *Writer) PutPosition(ctx context.Context, p models.Position) error {
	if !w.allowed[p.AccountID] {
		return errors.New("ledger: position update on account not locked by this write")
	}
	if err := w.tx.PutPosition(ctx, p); err != nil {
		return err
	}
	w.touch(p.AccountID, p.SecurityID)
	return nil
}

func (w *Writer) touch(accountID, securityID string) {
	if w.touched[accountID] == nil {
		w.touched[accountID] = make(map[string]bool)
	}
	if securityID != "" {
		w.touched[accountID][securityID] = true
	}
}

// Write locks the given accounts and runs fn inside one store transaction.
// Either everything fn appended commits or nothing does. Once the locks are
// held, cancelling ctx no longer interrupts the write.
func (l *Ledger) Write(ctx context.Context, accountIDs []string, fn func(ctx context.Context, w *Writer) error) error {
	for _, id := range accountIDs {
		if err := l.haltedErr(id); err != nil {
			return err
		}
	}

	release, err := l.locks.Acquire(ctx, accountIDs...)
	if err != nil {
		if errors.Is(err, models.ErrBusy) {
			l.log.WithFields(logrus.Fields{"accounts": accountIDs}).Warn("account lock contention")
		}
		return err
	}
	defer release()

	commitCtx := context.WithoutCancel(ctx)
	allowed := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		allowed[id] = true
	}

	err = l.store.Atomic(commitCtx, func(tx interfaces.StoreTx) error {
		if err := tx.Lock(commitCtx, accountIDs); err != nil {
			return err
		}
		w := &Writer{ledger: l, tx: tx, allowed: allowed, touched: make(map[string]map[string]bool)}
		if err := fn(commitCtx, w); err != nil {
			return err
		}
		if l.verify {
			return l.verifyTx(commitCtx, tx, w.touched)
		}
		return nil
	})
	if errors.Is(err, models.ErrReconciliationMismatch) {
		l.halt(accountIDs, err)
	}
	return err
}

// Append writes a single entry in its own transaction.
func (l *Ledger) Append(ctx context.Context, entry models.LedgerEntry) (models.LedgerEntry, error) {
	var committed models.LedgerEntry
	err := l.Write(ctx, []string{entry.AccountID}, func(ctx context.Context, w *Writer) error {
		var err error
		committed, err = w.Append(ctx, entry)
		return err
	})
	return committed, err
}

// Deposit credits an account with external money.
func (l *Ledger) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.LedgerEntry, error) {
	return l.moveFunds(ctx, models.KindDeposit, accountID, amount, description)
}

// Withdraw debits an account, failing if the balance cannot cover it.
func (l *Ledger) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description string) (models.LedgerEntry, error) {
	return l.moveFunds(ctx, models.KindWithdraw, accountID, amount, description)
}

func (l *Ledger) moveFunds(ctx context.Context, kind models.EntryKind, accountID string, amount decimal.Decimal, description string) (models.LedgerEntry, error) {
	log := l.log.WithFields(logrus.Fields{"account_id": accountID, "kind": kind, "amount": amount.String()})

	entry, err := l.Append(ctx, models.LedgerEntry{
		AccountID:   accountID,
		Kind:        kind,
		Amount:      amount,
		Description: description,
	})
	if err != nil {
		log.WithError(err).Warn("funds movement rejected")
		return models.LedgerEntry{}, err
	}
	log.WithField("entry_id", entry.ID).Info("funds movement committed")
	return entry, nil
}

// BalanceOf returns the cached balance counter of an account.
func (l *Ledger) BalanceOf(ctx context.Context, accountID string) (decimal.Decimal, error) {
	if _, err := l.directory.Account(ctx, accountID); err != nil {
		return decimal.Zero, err
	}
	return l.store.Balance(ctx, accountID)
}

// ReplayBalance recomputes the balance of an account from its entries.
func (l *Ledger) ReplayBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	total := decimal.Zero
	for e, err := range l.store.Entries(ctx, models.EntryFilter{AccountIDs: []string{accountID}}) {
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(e.SignedAmount())
	}
	return total, nil
}

// HistoryOf yields the entries of one account. The filter's AccountIDs is
// replaced by accountID.
func (l *Ledger) HistoryOf(ctx context.Context, accountID string, filter models.EntryFilter) iter.Seq2[models.LedgerEntry, error] {
	filter.AccountIDs = []string{accountID}
	return l.store.Entries(ctx, filter)
}

// Halted reports whether writes to the account are refused.
func (l *Ledger) Halted(accountID string) bool {
	return l.haltedErr(accountID) != nil
}

func (l *Ledger) haltedErr(accountID string) error {
	l.haltMu.RLock()
	cause, ok := l.halted[accountID]
	l.haltMu.RUnlock()
	if !ok {
		return nil
	}
	return models.Errorf(models.ErrAccountHalted, "writes refused after reconciliation failure: %v", cause).
		With("account_id", accountID)
}

func (l *Ledger) halt(accountIDs []string, cause error) {
	l.haltMu.Lock()
	defer l.haltMu.Unlock()

	for _, id := range accountIDs {
		l.halted[id] = cause
	}
	fields := logrus.Fields{"accounts": accountIDs}
	for k, v := range models.FieldsOf(cause) {
		fields[k] = v
	}
	l.log.WithFields(fields).WithError(cause).Error("RECONCILIATION MISMATCH: write aborted and accounts halted")
}
