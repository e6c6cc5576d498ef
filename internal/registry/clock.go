package registry

import (
	"sync"
	"time"

	"github.com/MrSnakeDoc/ans/internal/domain"
)

// Clock truncates to whole seconds and never goes backwards, even if the
// wrapped source does (NTP steps, VM migration).
type Clock struct {
	mu     sync.Mutex
	source func() time.Time
	last   time.Time
}

func NewClock(source func() time.Time) *Clock {
	if source == nil {
		source = time.Now
	}
	return &Clock{source: source}
}

// Now returns the current time, at least the last value returned.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := domain.Timestamp(c.source())
	if now.Before(c.last) {
		return c.last
	}
	c.last = now
	return now
}
