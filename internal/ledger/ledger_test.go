package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	dirmemory "github.com/sheikh-saqib/brokerage-ledger/internal/directory/memory"
	interfaces "github.com/sheikh-saqib/brokerage-ledger/internal/interfaces"
	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/sheikh-saqib/brokerage-ledger/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newCatalog(t *testing.T, accounts ...string) *dirmemory.Catalog {
	t.Helper()
	c := dirmemory.NewCatalog()
	c.PutUser(models.User{ID: "u-1", Name: "Ada"})
	for _, id := range accounts {
		require.NoError(t, c.PutAccount(models.Account{ID: id, UserID: "u-1", Name: id}))
	}
	return c
}

func newLedger(t *testing.T, store interfaces.LedgerStore, opts ...Option) *Ledger {
	t.Helper()
	log, _ := test.NewNullLogger()
	opts = append([]Option{WithLogger(log)}, opts...)
	return NewLedger(store, newCatalog(t, "acc-1", "acc-2"), opts...)
}

func requireReplayMatches(t *testing.T, l *Ledger, accountID string) decimal.Decimal {
	t.Helper()
	ctx := context.Background()
	cached, err := l.BalanceOf(ctx, accountID)
	require.NoError(t, err)
	replayed, err := l.ReplayBalance(ctx, accountID)
	require.NoError(t, err)
	require.True(t, cached.Equal(replayed), "cached %s, replayed %s", cached, replayed)
	return cached
}

func TestDepositAndWithdraw(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLedger(t, memory.NewMemoryLedgerStore())

	balance := requireReplayMatches(t, l, "acc-1")
	assert.True(t, balance.IsZero())

	e, err := l.Deposit(ctx, "acc-1", d("100"), "paycheck")
	require.NoError(t, err)
	assert.Equal(t, models.KindDeposit, e.Kind)
	assert.NotZero(t, e.ID)
	assert.Equal(t, time.UTC, e.CreatedAt.Location())
	assert.True(t, d("100").Equal(requireReplayMatches(t, l, "acc-1")))

	_, err = l.Withdraw(ctx, "acc-1", d("30.25"), "")
	require.NoError(t, err)
	assert.True(t, d("69.75").Equal(requireReplayMatches(t, l, "acc-1")))

	_, err = l.Withdraw(ctx, "acc-1", d("69.76"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientFunds))
	assert.True(t, d("69.75").Equal(requireReplayMatches(t, l, "acc-1")))

	// Emptying the account is allowed.
	_, err = l.Withdraw(ctx, "acc-1", d("69.75"), "")
	require.NoError(t, err)
	assert.True(t, requireReplayMatches(t, l, "acc-1").IsZero())
}

func TestAppendValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLedger(t, memory.NewMemoryLedgerStore())

	_, err := l.Deposit(ctx, "acc-1", d("0"), "")
	assert.True(t, errors.Is(err, models.ErrInvalidAmount))

	_, err = l.Deposit(ctx, "acc-1", d("-5"), "")
	assert.True(t, errors.Is(err, models.ErrInvalidAmount))

	_, err = l.Deposit(ctx, "missing", d("5"), "")
	assert.True(t, errors.Is(err, models.ErrUnknownAccount))

	_, err = l.BalanceOf(ctx, "missing")
	assert.True(t, errors.Is(err, models.ErrUnknownAccount))

	_, err = l.Append(ctx, models.LedgerEntry{AccountID: "acc-1", Kind: "FEE", Amount: d("1")})
	assert.True(t, errors.Is(err, models.ErrInvalidAmount))
}

func TestWriteIsAllOrNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLedger(t, memory.NewMemoryLedgerStore())

	_, err := l.Deposit(ctx, "acc-1", d("10"), "")
	require.NoError(t, err)

	err = l.Write(ctx, []string{"acc-1", "acc-2"}, func(ctx context.Context, w *Writer) error {
		if _, err := w.Append(ctx, models.LedgerEntry{AccountID: "acc-2", Kind: models.KindTransferIn, Amount: d("50")}); err != nil {
			return err
		}
		_, err := w.Append(ctx, models.LedgerEntry{AccountID: "acc-1", Kind: models.KindTransferOut, Amount: d("50")})
		return err
	})
	require.True(t, errors.Is(err, models.ErrInsufficientFunds))

	assert.True(t, d("10").Equal(requireReplayMatches(t, l, "acc-1")))
	assert.True(t, requireReplayMatches(t, l, "acc-2").IsZero())
}

func TestWriteRejectsUnlockedAccount(t *testing.T) {
	t.Parallel()
	l := newLedger(t, memory.NewMemoryLedgerStore())

	err := l.Write(context.Background(), []string{"acc-1"}, func(ctx context.Context, w *Writer) error {
		_, err := w.Append(ctx, models.LedgerEntry{AccountID: "acc-2", Kind: models.KindDeposit, Amount: d("1")})
		return err
	})
	assert.Error(t, err)
}

func TestCommitSurvivesCancelAfterLock(t *testing.T) {
	t.Parallel()
	l := newLedger(t, memory.NewMemoryLedgerStore())

	ctx, cancel := context.WithCancel(context.Background())
	err := l.Write(ctx, []string{"acc-1"}, func(ctx context.Context, w *Writer) error {
		cancel()
		_, err := w.Append(ctx, models.LedgerEntry{AccountID: "acc-1", Kind: models.KindDeposit, Amount: d("5")})
		return err
	})
	require.NoError(t, err)
	assert.True(t, d("5").Equal(requireReplayMatches(t, l, "acc-1")))
}

func TestConcurrentOverdrawCommitsOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLedger(t, memory.NewMemoryLedgerStore())

	_, err := l.Deposit(ctx, "acc-1", d("100"), "")
	require.NoError(t, err)

	const writers = 8
	var (
		wg        sync.WaitGroup
		committed atomic.Int32
		rejected  atomic.Int32
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Withdraw(ctx, "acc-1", d("60"), "")
			switch {
			case err == nil:
				committed.Add(1)
			case errors.Is(err, models.ErrInsufficientFunds):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), committed.Load())
	assert.Equal(t, int32(writers-1), rejected.Load())
	assert.True(t, d("40").Equal(requireReplayMatches(t, l, "acc-1")))
}

func TestEntryTimestampsIncrease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	frozen := time.Date(2024, 5, 1, 9, 0, 0, 0, time.FixedZone("CET", 3600))
	l := newLedger(t, memory.NewMemoryLedgerStore(), WithClock(func() time.Time { return frozen }))

	for range 3 {
		_, err := l.Deposit(ctx, "acc-1", d("1"), "")
		require.NoError(t, err)
	}

	var prev models.LedgerEntry
	for e, err := range l.HistoryOf(ctx, "acc-1", models.EntryFilter{}) {
		require.NoError(t, err)
		assert.Equal(t, time.UTC, e.CreatedAt.Location())
		if prev.ID != 0 {
			assert.True(t, e.CreatedAt.After(prev.CreatedAt))
			assert.Greater(t, e.ID, prev.ID)
		}
		prev = e
	}
}

func TestHistoryOfFiltersAndOrders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newLedger(t, memory.NewMemoryLedgerStore())

	for _, amount := range []string{"1", "2", "3"} {
		_, err := l.Deposit(ctx, "acc-1", d(amount), "")
		require.NoError(t, err)
	}
	_, err := l.Withdraw(ctx, "acc-1", d("1"), "")
	require.NoError(t, err)
	_, err = l.Deposit(ctx, "acc-2", d("9"), "")
	require.NoError(t, err)

	var amounts []string
	for e, err := range l.HistoryOf(ctx, "acc-1", models.EntryFilter{
		AccountIDs: []string{"acc-2"},
		Kinds:      []models.EntryKind{models.KindDeposit},
		Descending: true,
		Limit:      2,
	}) {
		require.NoError(t, err)
		amounts = append(amounts, e.Amount.String())
	}
	assert.Equal(t, []string{"3", "2"}, amounts)
}

// skewedStore reports a cached balance that is off by one once skew is set.
type skewedStore struct {
	*memory.MemoryLedgerStore
	skew atomic.Bool
}

func (s *skewedStore) Atomic(ctx context.Context, fn func(tx interfaces.StoreTx) error) error {
	return s.MemoryLedgerStore.Atomic(ctx, func(tx interfaces.StoreTx) error {
		return fn(&skewedTx{StoreTx: tx, store: s})
	})
}

type skewedTx struct {
	interfaces.StoreTx
	store *skewedStore
}

func (t *skewedTx) Balance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	b, err := t.StoreTx.Balance(ctx, accountID)
	if t.store.skew.Load() {
		b = b.Add(decimal.NewFromInt(1))
	}
	return b, err
}

func TestMismatchHaltsAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &skewedStore{MemoryLedgerStore: memory.NewMemoryLedgerStore()}
	log, hook := test.NewNullLogger()
	l := NewLedger(store, newCatalog(t, "acc-1", "acc-2"), WithLogger(log))

	_, err := l.Deposit(ctx, "acc-1", d("100"), "")
	require.NoError(t, err)

	store.skew.Store(true)
	_, err = l.Deposit(ctx, "acc-1", d("5"), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrReconciliationMismatch))
	assert.True(t, l.Halted("acc-1"))
	assert.False(t, l.Halted("acc-2"))

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			logged = true
		}
	}
	assert.True(t, logged, "mismatch must be logged at error level")

	// The aborted write left nothing behind.
	store.skew.Store(false)
	balance, err := l.BalanceOf(ctx, "acc-1")
	require.NoError(t, err)
	assert.True(t, d("100").Equal(balance))

	_, err = l.Deposit(ctx, "acc-1", d("5"), "")
	assert.True(t, errors.Is(err, models.ErrAccountHalted))
	assert.True(t, models.Fatal(err))

	_, err = l.Deposit(ctx, "acc-2", d("5"), "")
	assert.NoError(t, err)
}

func TestVerificationCanBeDisabled(t *testing.T) {
	t.Parallel()
	store := &skewedStore{MemoryLedgerStore: memory.NewMemoryLedgerStore()}
	l := newLedger(t, store, WithWriteVerification(false))

	store.skew.Store(true)
	_, err := l.Deposit(context.Background(), "acc-1", d("5"), "")
	assert.NoError(t, err)
}

func TestReconcileAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &skewedStore{MemoryLedgerStore: memory.NewMemoryLedgerStore()}
	l := newLedger(t, store)

	_, err := l.Deposit(ctx, "acc-1", d("10"), "")
	require.NoError(t, err)
	_, err = l.Deposit(ctx, "acc-2", d("20"), "")
	require.NoError(t, err)

	reports, err := l.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	for _, r := range reports {
		assert.True(t, r.OK(), r.AccountID)
	}
	assert.True(t, d("20").Equal(reports[1].Replayed))

	store.skew.Store(true)
	reports, err = l.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.False(t, reports[0].OK())
	assert.True(t, errors.Is(reports[0].Err, models.ErrReconciliationMismatch))
	assert.True(t, l.Halted("acc-1"))
	assert.True(t, l.Halted("acc-2"))
}

// lockingStore records the accounts each transaction asks the store to lock,
// and can refuse them the way a database lock timeout would.
type lockingStore struct {
	*memory.MemoryLedgerStore
	mu     sync.Mutex
	locked [][]string
	refuse error
}

func (s *lockingStore) Atomic(ctx context.Context, fn func(tx interfaces.StoreTx) error) error {
	return s.MemoryLedgerStore.Atomic(ctx, func(tx interfaces.StoreTx) error {
		return fn(&lockingTx{StoreTx: tx, store: s})
	})
}

type lockingTx struct {
	interfaces.StoreTx
	store *lockingStore
}

func (t *lockingTx) Lock(ctx context.Context, accountIDs []string) error {
	t.store.mu.Lock()
	t.store.locked = append(t.store.locked, accountIDs)
	t.store.mu.Unlock()
	if t.store.refuse != nil {
		return t.store.refuse
	}
	return t.StoreTx.Lock(ctx, accountIDs)
}

func TestWriteLocksStoreRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &lockingStore{MemoryLedgerStore: memory.NewMemoryLedgerStore()}
	l := newLedger(t, store)

	_, err := l.Deposit(ctx, "acc-2", d("10"), "")
	require.NoError(t, err)
	err = l.Write(ctx, []string{"acc-2", "acc-1"}, func(ctx context.Context, w *Writer) error {
		_, err := w.Append(ctx, models.LedgerEntry{AccountID: "acc-2", Kind: models.KindTransferOut, Amount: d("4"), CorrelationID: "c-1"})
		if err != nil {
			return err
		}
		_, err = w.Append(ctx, models.LedgerEntry{AccountID: "acc-1", Kind: models.KindTransferIn, Amount: d("4"), CorrelationID: "c-1"})
		return err
	})
	require.NoError(t, err)

	require.Len(t, store.locked, 2)
	assert.Equal(t, []string{"acc-2"}, store.locked[0])
	assert.ElementsMatch(t, []string{"acc-1", "acc-2"}, store.locked[1])
}

func TestStoreLockRefusalAbortsWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &lockingStore{
		MemoryLedgerStore: memory.NewMemoryLedgerStore(),
		refuse:            models.Errorf(models.ErrBusy, "lock timeout"),
	}
	l := newLedger(t, store)

	_, err := l.Deposit(ctx, "acc-1", d("10"), "")
	assert.True(t, models.Retryable(err))
	assert.True(t, requireReplayMatches(t, l, "acc-1").IsZero())
	assert.False(t, l.Halted("acc-1"))
}
