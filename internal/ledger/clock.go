package ledger

import (
	"sync"
	"time"
)

// entryClock hands out strictly increasing UTC timestamps at microsecond
// resolution, the precision Postgres keeps. Entries of one account are
// written under its lock, so their timestamp order matches their id order.
type entryClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func (c *entryClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
