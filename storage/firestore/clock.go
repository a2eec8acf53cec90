package firestore

import (
	"context"
	"sync"
	"time"
)

// DefaultClockSyncInterval is how long a measured server clock offset is reused.
const DefaultClockSyncInterval = 5 * time.Minute

// serverClock derives server time from the local clock plus an offset that is
// re-measured by one round trip at most once per interval.
type serverClock struct {
	mu       sync.Mutex
	interval time.Duration
	fetch    func(ctx context.Context) (time.Time, error)
	local    func() time.Time

	offset time.Duration
	synced time.Time // local time of the last successful fetch
}

func newServerClock(interval time.Duration, fetch func(ctx context.Context) (time.Time, error)) *serverClock {
	return &serverClock{interval: interval, fetch: fetch, local: time.Now}
}

func (c *serverClock) Now(ctx context.Context) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.local()
	if !c.synced.IsZero() && !before.Before(c.synced) && before.Sub(c.synced) < c.interval {
		return before.Add(c.offset).UTC(), nil
	}

	server, err := c.fetch(ctx)
	if err != nil {
		return time.Time{}, err
	}
	after := c.local()
	// Server stamped the write somewhere inside the round trip; assume the middle.
	c.offset = server.Sub(before.Add(after.Sub(before) / 2))
	c.synced = after
	return server.UTC(), nil
}
