// Package clock abstracts the timers used by the vault controllers so
// that production code runs on wall-clock time while tests advance a
// virtual clock deterministically.
package clock

import "time"

// Clock is the time source injected into every component that
// schedules work. Components never call time.AfterFunc directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once d has elapsed and returns a Timer that can
	// cancel the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. It reports whether the call was
// cancelled before it fired. Stop on a nil Timer is a no-op.
func (t *Timer) Stop() bool {
	if t == nil || t.stop == nil {
		return false
	}
	return t.stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stop: t.Stop}
}
