package upload

import "time"

// Timer is a scheduled task that can be stopped before it fires.
type Timer interface {
	// Stop prevents the task from running. It returns false if the task has
	// already started or was stopped before.
	Stop() bool
}

// Scheduler runs f once after d has elapsed. Implementations must run f on a
// separate goroutine, never inline from AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemScheduler schedules on the runtime timer heap.
var SystemScheduler Scheduler = systemScheduler{}
