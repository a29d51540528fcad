package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sheikh-saqib/brokerage-ledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireTimesOutWithBusy(t *testing.T) {
	t.Parallel()
	locks := NewAccountLocks(20 * time.Millisecond)

	release, err := locks.Acquire(context.Background(), "acc-1")
	require.NoError(t, err)

	_, err = locks.Acquire(context.Background(), "acc-2", "acc-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrBusy))
	assert.True(t, models.Retryable(err))

	// The failed attempt must not keep acc-2.
	r2, err := locks.Acquire(context.Background(), "acc-2")
	require.NoError(t, err)
	r2()

	release()
	release()
	r3, err := locks.Acquire(context.Background(), "acc-1")
	require.NoError(t, err)
	r3()
}

func TestAcquireDeduplicates(t *testing.T) {
	t.Parallel()
	locks := NewAccountLocks(20 * time.Millisecond)

	release, err := locks.Acquire(context.Background(), "acc-1", "acc-1")
	require.NoError(t, err)
	release()
}

func TestAcquireHonoursContext(t *testing.T) {
	t.Parallel()
	locks := NewAccountLocks(time.Minute)

	release, err := locks.Acquire(context.Background(), "acc-1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = locks.Acquire(ctx, "acc-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOppositeOrderAcquisitionDoesNotDeadlock(t *testing.T) {
	t.Parallel()
	locks := NewAccountLocks(time.Second)

	done := make(chan error, 2)
	for _, ids := range [][]string{{"a", "b"}, {"b", "a"}} {
		go func() {
			for range 100 {
				release, err := locks.Acquire(context.Background(), ids...)
				if err != nil {
					done <- err
					return
				}
				release()
			}
			done <- nil
		}()
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)
}

func TestWriteReportsBusy(t *testing.T) {
	t.Parallel()
	l := newLedger(t, nil, WithLockTimeout(10*time.Millisecond))

	release, err := l.locks.Acquire(context.Background(), "acc-1")
	require.NoError(t, err)
	defer release()

	_, err = l.Deposit(context.Background(), "acc-1", d("1"), "")
	assert.True(t, errors.Is(err, models.ErrBusy))
}
