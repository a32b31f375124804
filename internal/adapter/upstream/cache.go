package upstream

import (
	"sync"
	"time"
)

// cached is one retained upstream payload with its fetch metadata.
type cached struct {
	storedAt time.Time
	hoursAgo int
	data     any
}

// lastKnownGood is a single-slot cache holding only the most recent
// successful upstream payload. It is overwritten on every successful fetch
// and read only when all bucket attempts fail in a poll; a fallback read
// never refreshes it.
type lastKnownGood struct {
	mu   sync.Mutex
	set  bool
	slot cached
}

func (c *lastKnownGood) store(at time.Time, hoursAgo int, data any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = cached{storedAt: at, hoursAgo: hoursAgo, data: data}
	c.set = true
}

func (c *lastKnownGood) get() (cached, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, c.set
}
