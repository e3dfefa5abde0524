package tls

import (
	"github.com/tinyrt-org/tinyrt/internal/task"
	"github.com/tinyrt-org/tinyrt/kernel"
)

// SegmentManager is the external allocator and runtime for per-task
// storage segments: the block of memory holding every per-task variable
// the C library needs, laid out at link time as base plus fixed offsets.
type SegmentManager interface {
	// Allocate returns the base address of a new segment, or 0 when no
	// memory is available.
	Allocate() uintptr

	// Initialize prepares a freshly allocated segment's contents.
	Initialize(base uintptr)

	// Teardown releases whatever the segment's contents hold before the
	// memory goes back.
	Teardown(base uintptr)

	// Deallocate returns the segment's memory.
	Deallocate(base uintptr)
}

var (
	segments SegmentManager

	// segmentSlot is the storage slot reserved by Init for the segment
	// base pointer of each task.
	segmentSlot SlotID
)

// Init initializes the subsystem: it resets the slot allocator and the
// lock pool, reserves the segment slot, and registers the task lifecycle
// hooks with the kernel. Called once at system start, after kernel.Init
// and before any task exists. The only way it can fail is the reservation
// itself, which on a fresh allocator cannot happen.
func Init(mgr SegmentManager) error {
	slots = idAllocator{cap: SlotID(task.NumSlots)}
	pool = newLockPool(NumLocks)
	staticSegment.Store(0)
	segments = mgr

	id, err := AllocateID()
	if err != nil {
		return err
	}
	segmentSlot = id

	kernel.SetCreateHook(TaskCreated)
	kernel.SetDeleteHook(TaskDeleted)
	kernel.SetSwitchHook(TaskSwitch)
	return nil
}

// SegmentSlot returns the reserved slot holding each task's segment base.
func SegmentSlot() SlotID {
	return segmentSlot
}

// TaskCreated is the task creation hook. The kernel guarantees the task's
// storage table is zero-filled before it runs. A participating task gets a
// segment allocated, initialized and recorded in the reserved slot; if the
// allocator has nothing left the slot stays zero and the task runs without
// a segment rather than failing creation.
func TaskCreated(t *task.Task) {
	if !t.StorageEnabled() || segments == nil {
		return
	}
	base := segments.Allocate()
	if base == 0 {
		return
	}
	segments.Initialize(base)
	SetValue(t, segmentSlot, task.StorageValue(base))
}

// TaskDeleted is the task deletion hook: teardown, deallocate, clear the
// reserved slot.
func TaskDeleted(t *task.Task) {
	if !t.StorageEnabled() || segments == nil {
		return
	}
	base, err := Value(t, segmentSlot)
	if err != nil || base == 0 {
		return
	}
	segments.Teardown(uintptr(base))
	segments.Deallocate(uintptr(base))
	SetValue(t, segmentSlot, 0)
}

// TaskSwitch runs immediately before the context switch to next. Ports
// whose ABI keeps the segment base in a dedicated register reprogram it
// here from next's reserved slot. This flavor resolves through the slot on
// every access instead, so there is nothing to do; the hook stays wired so
// the switch-then-resolve ordering is pinned at one call site.
func TaskSwitch(next *task.Task) {
	if !next.StorageEnabled() {
		return
	}
}
