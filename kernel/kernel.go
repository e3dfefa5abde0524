// Package kernel holds the scheduler-facing state the task-local storage
// subsystem is built against: the scheduler mode, the current task, the
// task lifecycle hook call sites, and the kernel mutex.
//
// The scheduler itself lives outside this module. It drives this package
// through Start, Switch, NewTask and DeleteTask; everything else reads.
package kernel

import (
	"sync/atomic"

	"github.com/tinyrt-org/tinyrt/internal/task"
)

// Mode is the scheduler mode. The transition happens exactly once, in
// Start; there is no way back to ModePreScheduler short of Init.
type Mode uint8

const (
	// ModePreScheduler is the mode during early system startup, before
	// Start. No task is current and nothing may block.
	ModePreScheduler Mode = iota

	// ModeRunning is the mode after Start: tasks are scheduled and the
	// current task is valid.
	ModeRunning
)

func (m Mode) String() string {
	switch m {
	case ModePreScheduler:
		return "pre-scheduler"
	case ModeRunning:
		return "running"
	}
	return "unknown"
}

var (
	mode    atomic.Uint32
	current atomic.Pointer[task.Task]

	createHook func(*task.Task)
	deleteHook func(*task.Task)
	switchHook func(*task.Task)
)

// Init resets the package to its power-on state: pre-scheduler mode, no
// current task, no hooks. Called once during system initialization, before
// any task exists.
func Init() {
	mode.Store(uint32(ModePreScheduler))
	current.Store(nil)
	createHook = nil
	deleteHook = nil
	switchHook = nil
}

// SchedulerMode returns the current scheduler mode.
func SchedulerMode() Mode {
	return Mode(mode.Load())
}

// Running reports whether the scheduler has started.
func Running() bool {
	return SchedulerMode() == ModeRunning
}

// Current returns the currently scheduled task, or nil before Start. It is
// a single atomic load and is safe from any context without locking.
func Current() *task.Task {
	return current.Load()
}

// Start marks the scheduler as running with first as the current task.
func Start(first *task.Task) {
	current.Store(first)
	mode.Store(uint32(ModeRunning))
}

// Switch performs the bookkeeping side of a context switch to next: the
// switch hook runs first, then next is published as the current task. Once
// Switch returns, any resolver sees next.
func Switch(next *task.Task) {
	if switchHook != nil {
		switchHook(next)
	}
	current.Store(next)
}

// NewTask creates a task control block with a zero-filled storage table and
// runs the task creation hook. This is the only call site of that hook.
func NewTask(name string, opts task.Options) *task.Task {
	t := task.New(name, opts)
	if createHook != nil {
		createHook(t)
	}
	return t
}

// DeleteTask runs the task deletion hook for t. The caller must guarantee
// that t is no longer scheduled. This is the only call site of that hook.
func DeleteTask(t *task.Task) {
	if deleteHook != nil {
		deleteHook(t)
	}
}

// SetCreateHook registers the hook run by NewTask. Registration happens
// during system initialization, before any task exists.
func SetCreateHook(fn func(*task.Task)) {
	createHook = fn
}

// SetDeleteHook registers the hook run by DeleteTask.
func SetDeleteHook(fn func(*task.Task)) {
	deleteHook = fn
}

// SetSwitchHook registers the hook run by Switch, just before the current
// task is updated.
func SetSwitchHook(fn func(*task.Task)) {
	switchHook = fn
}
