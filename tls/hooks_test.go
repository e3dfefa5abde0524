package tls

import (
	"errors"
	"testing"

	"github.com/tinyrt-org/tinyrt/internal/task"
	"github.com/tinyrt-org/tinyrt/kernel"
)

// fakeSegments hands out fake base addresses and records the lifecycle
// calls made against them.
type fakeSegments struct {
	nextBase    uintptr
	exhausted   bool
	initialized []uintptr
	tornDown    []uintptr
	deallocated []uintptr
}

func (f *fakeSegments) Allocate() uintptr {
	if f.exhausted {
		return 0
	}
	f.nextBase += 0x1000
	return f.nextBase
}

func (f *fakeSegments) Initialize(base uintptr) { f.initialized = append(f.initialized, base) }
func (f *fakeSegments) Teardown(base uintptr)   { f.tornDown = append(f.tornDown, base) }
func (f *fakeSegments) Deallocate(base uintptr) { f.deallocated = append(f.deallocated, base) }

func initWithSegments(t *testing.T) *fakeSegments {
	t.Helper()
	kernel.Init()
	fs := &fakeSegments{}
	if err := Init(fs); err != nil {
		t.Fatal(err)
	}
	return fs
}

func TestTaskCreateInstallsSegment(t *testing.T) {
	fs := initWithSegments(t)
	tsk := kernel.NewTask("a", 0)

	base, err := Value(tsk, SegmentSlot())
	if err != nil {
		t.Fatal(err)
	}
	if base == 0 {
		t.Fatal("reserved slot is zero right after task creation")
	}
	if len(fs.initialized) != 1 || fs.initialized[0] != uintptr(base) {
		t.Errorf("initialize calls = %#v, want the installed base %#x", fs.initialized, base)
	}
}

func TestTaskDeleteTearsDownSegment(t *testing.T) {
	fs := initWithSegments(t)
	tsk := kernel.NewTask("a", 0)
	base, err := Value(tsk, SegmentSlot())
	if err != nil {
		t.Fatal(err)
	}

	kernel.DeleteTask(tsk)
	if v, err := Value(tsk, SegmentSlot()); err != nil || v != 0 {
		t.Errorf("reserved slot after delete: v=%#x err=%v, want cleared", v, err)
	}
	if len(fs.tornDown) != 1 || fs.tornDown[0] != uintptr(base) {
		t.Errorf("teardown calls = %#v, want [%#x]", fs.tornDown, base)
	}
	if len(fs.deallocated) != 1 || fs.deallocated[0] != uintptr(base) {
		t.Errorf("deallocate calls = %#v, want [%#x]", fs.deallocated, base)
	}
}

func TestTaskWithoutStorageIsSkipped(t *testing.T) {
	fs := initWithSegments(t)
	tsk := kernel.NewTask("nostorage", task.NoStorage)

	if len(fs.initialized) != 0 {
		t.Error("create hook touched the allocator for an opted-out task")
	}
	if _, err := Value(tsk, SegmentSlot()); !errors.Is(err, ErrSlotsDisabled) {
		t.Errorf("reserved slot read: err = %v, want ErrSlotsDisabled", err)
	}

	kernel.DeleteTask(tsk)
	if len(fs.tornDown) != 0 || len(fs.deallocated) != 0 {
		t.Error("delete hook touched the allocator for an opted-out task")
	}
}

func TestSegmentAllocationFailureDegrades(t *testing.T) {
	fs := initWithSegments(t)
	fs.exhausted = true
	tsk := kernel.NewTask("a", 0)

	if v, err := Value(tsk, SegmentSlot()); err != nil || v != 0 {
		t.Errorf("reserved slot: v=%#x err=%v, want zero on allocation failure", v, err)
	}
	if len(fs.initialized) != 0 {
		t.Error("initialize ran on a failed allocation")
	}
	// Deleting the segment-less task must not call teardown either.
	kernel.DeleteTask(tsk)
	if len(fs.tornDown) != 0 || len(fs.deallocated) != 0 {
		t.Error("delete hook ran the segment teardown without a segment")
	}
}

func TestTaskSwitchHookIsHarmless(t *testing.T) {
	initWithSegments(t)
	a := kernel.NewTask("a", 0)
	b := kernel.NewTask("nostorage", task.NoStorage)
	// The hook has no state to change on this flavor; it must tolerate
	// both participating and opted-out tasks.
	TaskSwitch(a)
	TaskSwitch(b)
}
