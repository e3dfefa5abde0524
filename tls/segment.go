package tls

import (
	"sync/atomic"

	"github.com/tinyrt-org/tinyrt/kernel"
)

// staticSegment is the base of the startup segment used before the
// scheduler runs: the analog of the linker-provided per-thread block the
// kernel's main context uses.
var staticSegment atomic.Uintptr

// SetStaticSegment registers the startup segment base. Called by system
// initialization code before anything resolves an address.
func SetStaticSegment(base uintptr) {
	staticSegment.Store(base)
}

// SymbolAddress computes the absolute address of the per-task variable at
// offset within the segment layout: static segment plus offset before the
// scheduler starts, the current task's segment plus offset afterwards.
//
// This sits on hot paths (every errno access goes through it), so it is a
// mode load, a pointer load and an add, with no locking.
func SymbolAddress(offset uintptr) uintptr {
	base := staticSegment.Load()
	if kernel.Running() {
		if t := kernel.Current(); t != nil {
			base = uintptr(t.Storage[segmentSlot])
		}
	}
	return base + offset
}
