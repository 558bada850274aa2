package clock

import (
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when Advance is called.
// Callbacks run synchronously inside Advance, in deadline order, with
// the clock's Now set to the callback's deadline. A callback may
// schedule further timers; those fire within the same Advance if their
// deadline falls inside the advanced window.
//
// Do not call Advance from within a callback.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	seq     uint64
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	seq      uint64
	fn       func()
	done     bool
}

// Fake returns a FakeClock starting at initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run once the clock has advanced by d. A
// non-positive d fires on the next Advance, even Advance(0).
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}
	c.seq++
	w := &waiter{deadline: c.now.Add(d), seq: c.seq, fn: f}
	c.waiters = append(c.waiters, w)

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if w.done {
			return false
		}
		w.done = true
		c.remove(w)
		return true
	}}
}

// Advance moves the clock forward by d, firing every pending callback
// whose deadline is reached.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.earliest(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.done = true
		c.remove(next)
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		c.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of callbacks that have not fired or been
// stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// earliest returns the waiter with the smallest deadline not after
// target, ties broken by registration order. Caller holds c.mu.
func (c *FakeClock) earliest(target time.Time) *waiter {
	var best *waiter
	for _, w := range c.waiters {
		if w.deadline.After(target) {
			continue
		}
		if best == nil || w.deadline.Before(best.deadline) ||
			(w.deadline.Equal(best.deadline) && w.seq < best.seq) {
			best = w
		}
	}
	return best
}

// remove drops w from the pending list. Caller holds c.mu.
func (c *FakeClock) remove(w *waiter) {
	for i, p := range c.waiters {
		if p == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
