package ledger

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
)

// AccountLocks serializes writers per account. Each account has a one-slot
// semaphore so that acquisition can give up after a bounded wait.
type AccountLocks struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
}

func NewAccountLocks(timeout time.Duration) *AccountLocks {
	return &AccountLocks{
		slots:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (l *AccountLocks) slot(accountID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.slots[accountID]; !exists {
		l.slots[accountID] = make(chan struct{}, 1)
	}
	return l.slots[accountID]
}

// Acquire locks every account in ascending id order, so two writers that
// share accounts can never wait on each other in a cycle. It fails with
// models.ErrBusy if the locks are not all held within the timeout.
func (l *AccountLocks) Acquire(ctx context.Context, accountIDs ...string) (release func(), err error) {
	ids := slices.Clone(accountIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	held := make([]chan struct{}, 0, len(ids))
	var once sync.Once
	release = func() {
		once.Do(func() {
			for i := len(held) - 1; i >= 0; i-- {
				<-held[i]
			}
		})
	}

	for _, id := range ids {
		s := l.slot(id)
		select {
		case s <- struct{}{}:
			held = append(held, s)
		case <-timer.C:
			release()
			return nil, models.Errorf(models.ErrBusy, "timed out after %s waiting for account lock", l.timeout).
				With("account_id", id)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}
