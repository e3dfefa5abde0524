// Package interrupt provides the critical-section primitive used by the
// kernel and the task-local storage subsystem.
//
// A critical section brackets a handful of loads and stores on shared
// kernel state. It must be brief and must never contain a call that can
// block: on a hardware port nothing else runs between Disable and Restore,
// interrupt handlers included. Hardware ports implement Disable by saving
// and disabling the interrupt mask, which nests naturally. The hosted
// implementation below is a single test-and-set spinlock; code in this
// module takes critical sections only at the leaves and never nests them.
package interrupt

import (
	"runtime"
	"sync/atomic"
)

// State is the saved interrupt state returned by Disable and consumed by
// the matching Restore. On hardware ports it holds the saved mask; the
// hosted implementation keeps it only so call sites look the same on every
// flavor.
type State uintptr

var lock atomic.Uint32

// Disable enters a critical section and returns the state to pass to
// Restore.
func Disable() State {
	for !lock.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
	return 0
}

// Restore leaves the critical section entered by the matching Disable.
func Restore(s State) {
	_ = s
	lock.Store(0)
}
