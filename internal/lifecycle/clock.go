package lifecycle

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// monotonicClock hands out strictly increasing microsecond timestamps, so two
// events written back to back by one process never tie on event time.
// Microseconds are the coarsest precision among the stores.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}

func randomNonce(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s[:n]
}
