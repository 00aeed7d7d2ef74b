// Package sched abstracts wall-clock timers so negotiation timing can be
// driven deterministically in tests.
package sched

import "time"

// Timer is a cancellable scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the callback was
	// prevented from running.
	Stop() bool
}

// Scheduler provides time and one-shot timers to the engine and simulator.
type Scheduler interface {
	Now() time.Time
	After(d time.Duration, fn func()) Timer
}

// System schedules on the real clock via time.AfterFunc.
type System struct{}

func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now().UTC() }

func (System) After(d time.Duration, fn func()) Timer {
	return systemTimer{t: time.AfterFunc(d, fn)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) Stop() bool { return s.t.Stop() }
