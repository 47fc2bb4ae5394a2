package syncer

import "time"

// Timer is the cancellable unit behind the debounce window.
// *time.Timer satisfies it directly.
type Timer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

// Clock schedules deferred work. Injecting it keeps the debounce state
// machine testable without real wall-clock timers.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// NewClock returns the wall-clock implementation.
func NewClock() Clock {
	return wallClock{}
}
