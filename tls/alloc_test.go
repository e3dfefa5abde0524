package tls

import (
	"errors"
	"testing"

	"github.com/tinyrt-org/tinyrt/internal/task"
	"github.com/tinyrt-org/tinyrt/kernel"
)

func TestIDAllocatorSequence(t *testing.T) {
	a := idAllocator{cap: 8}
	for i := 0; i < 8; i++ {
		id, err := a.allocate()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if id != SlotID(i) {
			t.Errorf("allocate %d returned %d", i, id)
		}
	}
	id, err := a.allocate()
	if !errors.Is(err, ErrNoMoreSlots) {
		t.Errorf("allocate past capacity: err = %v, want ErrNoMoreSlots", err)
	}
	if id != 8 {
		t.Errorf("allocate past capacity returned %d, want the capacity sentinel", id)
	}
	// Exhaustion is permanent, there is no deallocation.
	if _, err := a.allocate(); !errors.Is(err, ErrNoMoreSlots) {
		t.Errorf("allocate after exhaustion: err = %v", err)
	}
}

func TestIDAllocatorIssued(t *testing.T) {
	a := idAllocator{cap: 4}
	if a.issued(0) {
		t.Error("fresh allocator claims slot 0 is issued")
	}
	a.allocate()
	a.allocate()
	if !a.issued(0) || !a.issued(1) {
		t.Error("issued slots not recognized")
	}
	if a.issued(2) {
		t.Error("unissued slot recognized as issued")
	}
}

func TestAllocateIDAfterInit(t *testing.T) {
	kernel.Init()
	if err := Init(nil); err != nil {
		t.Fatal(err)
	}
	// Init reserved one slot for the segment pointer.
	if SegmentSlot() != 0 {
		t.Fatalf("segment slot = %d, want 0", SegmentSlot())
	}
	for i := 1; i < task.NumSlots; i++ {
		id, err := AllocateID()
		if err != nil {
			t.Fatalf("allocate %d: %v", i, err)
		}
		if id != SlotID(i) {
			t.Errorf("allocate returned %d, want %d", id, i)
		}
	}
	if _, err := AllocateID(); !errors.Is(err, ErrNoMoreSlots) {
		t.Errorf("allocate past capacity: err = %v, want ErrNoMoreSlots", err)
	}
}
