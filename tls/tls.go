// Package tls provides task-local storage slots and a bounded pool of
// kernel-mutex-backed locks for the C library runtime running on top of the
// kernel.
//
// The subsystem has three consumers. Startup code allocates storage slot
// IDs and registers the static segment. The C library's pluggable locking
// hooks create, acquire, release and delete pooled locks. Runtime code on
// hot paths (errno, stdio state) resolves per-task variable addresses
// through SymbolAddress.
//
// All shared state lives in process-wide singletons initialized by Init and
// mutated only inside brief interrupt-masked critical sections. Nothing
// here blocks except Lock.Acquire, and that only once the scheduler runs.
package tls

import (
	"errors"

	"github.com/tinyrt-org/tinyrt/internal/task"
	"github.com/tinyrt-org/tinyrt/interrupt"
	"github.com/tinyrt-org/tinyrt/kernel"
)

// SlotID identifies one task-local storage slot across all tasks. IDs are
// issued monotonically from 0 and are never reused.
type SlotID uint32

var (
	// ErrNoMoreSlots reports that every storage slot has been issued.
	// Fatal to the initialization of whatever subsystem asked.
	ErrNoMoreSlots = errors.New("tls: no more storage slots available")

	// ErrInvalidSlot reports a slot ID that was never issued.
	ErrInvalidSlot = errors.New("tls: slot ID was never issued")

	// ErrNotRunning reports a current-task operation before the scheduler
	// has started.
	ErrNotRunning = errors.New("tls: no task is currently scheduled")

	// ErrSlotsDisabled reports an operation on a task that was created
	// with task.NoStorage.
	ErrSlotsDisabled = errors.New("tls: task opted out of task-local storage")
)

// idAllocator issues slot IDs monotonically from a fixed capacity. There is
// no deallocation: an issued ID stays valid for the life of the system.
type idAllocator struct {
	next SlotID
	cap  SlotID
}

// allocate returns the next slot ID. After the capacity is exhausted every
// call fails with ErrNoMoreSlots; the returned ID is then the capacity
// itself, a sentinel no task table can index.
func (a *idAllocator) allocate() (SlotID, error) {
	mask := interrupt.Disable()
	if a.next >= a.cap {
		interrupt.Restore(mask)
		return a.cap, ErrNoMoreSlots
	}
	id := a.next
	a.next++
	interrupt.Restore(mask)
	return id, nil
}

// issued reports whether id has already been handed out.
func (a *idAllocator) issued(id SlotID) bool {
	mask := interrupt.Disable()
	n := a.next
	interrupt.Restore(mask)
	return id < n
}

var slots = idAllocator{cap: SlotID(task.NumSlots)}

// AllocateID issues the next task-local storage slot ID. Safe from any
// context that may take the critical section.
func AllocateID() (SlotID, error) {
	return slots.allocate()
}

// resolveTask maps the task argument of Value and SetValue to a concrete
// task: nil means the current one.
func resolveTask(t *task.Task) (*task.Task, error) {
	if t != nil {
		return t, nil
	}
	cur := kernel.Current()
	if cur == nil {
		return nil, ErrNotRunning
	}
	return cur, nil
}

// Value returns the value of storage slot id on task t, or on the current
// task if t is nil. A slot that was never set reads as zero.
func Value(t *task.Task, id SlotID) (task.StorageValue, error) {
	if !slots.issued(id) {
		return 0, ErrInvalidSlot
	}
	t, err := resolveTask(t)
	if err != nil {
		return 0, err
	}
	if !t.StorageEnabled() {
		return 0, ErrSlotsDisabled
	}
	mask := interrupt.Disable()
	v := t.Storage[id]
	interrupt.Restore(mask)
	return v, nil
}

// SetValue stores v in storage slot id on task t, or on the current task if
// t is nil.
func SetValue(t *task.Task, id SlotID, v task.StorageValue) error {
	if !slots.issued(id) {
		return ErrInvalidSlot
	}
	t, err := resolveTask(t)
	if err != nil {
		return err
	}
	if !t.StorageEnabled() {
		return ErrSlotsDisabled
	}
	mask := interrupt.Disable()
	t.Storage[id] = v
	interrupt.Restore(mask)
	return nil
}

// SetDestructor validates id and records nothing: this flavor, like the
// DLIB one it mirrors, keeps no per-slot destructors. Ports whose C library
// requires destructor support override this file.
func SetDestructor(id SlotID, fn func(t *task.Task, id SlotID, v task.StorageValue)) error {
	if !slots.issued(id) {
		return ErrInvalidSlot
	}
	_ = fn
	return nil
}
