package guidance

import "time"

// TimerHandle is a cancellable scheduled callback.
type TimerHandle interface {
	// Stop cancels the timer. Returns false if it already fired or was
	// already stopped.
	Stop() bool
}

// Clock abstracts wall-clock time and timer creation so tests can drive the
// executor deterministically without real delays.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) TimerHandle
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}

// RealClock returns a Clock backed by the system clock and time.AfterFunc.
func RealClock() Clock { return realClock{} }
