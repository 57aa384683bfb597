// Package clock abstracts wall time and delayed callbacks so expiry logic can
// be driven by a fake clock in tests.
package clock

import "time"

// Clock provides the current time and single-shot delayed callbacks.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a handle for a pending AfterFunc callback.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the callback from firing. It reports whether the call stopped
// a pending callback.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Real returns a Clock backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
