package service

import (
	"sync"
	"time"
)

// monotonicClock never returns a time earlier than one it already returned,
// so payload timestamps of successive dispatches are non-decreasing even if
// the wall clock steps back.
type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Now() time.Time {
	t := c.now().Round(0)
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}
