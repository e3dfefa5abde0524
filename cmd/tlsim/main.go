// Command tlsim drives the task-local storage subsystem from concurrent
// contexts and checks the invariants that matter: the lock pool's
// free/in-use partition, value visibility per (task, slot) pair, and the
// switch-then-resolve ordering of the segment resolver.
//
// It exists because those properties only break under interleaving, and a
// scripted host run with a known seed is the cheapest way to look for that
// before code lands on a target.
package main

import (
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sync"
	"unsafe"

	"github.com/mattn/go-colorable"

	"github.com/tinyrt-org/tinyrt/internal/task"
	"github.com/tinyrt-org/tinyrt/kernel"
	"github.com/tinyrt-org/tinyrt/kernelcfg"
	"github.com/tinyrt-org/tinyrt/tls"
)

const (
	colGreen = "\x1b[32m"
	colRed   = "\x1b[31m"
	colReset = "\x1b[0m"
)

func main() {
	configPath := flag.String("config", "", "YAML scenario file (kernelcfg format)")
	seed := flag.Int64("seed", 0, "override the scenario seed")
	flag.Parse()

	cfg := kernelcfg.Default()
	if *configPath != "" {
		var err error
		cfg, err = kernelcfg.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	out := colorable.NewColorableStdout()
	if err := run(cfg, out); err != nil {
		fmt.Fprintf(out, "%sFAIL%s %v\n", colRed, colReset, err)
		os.Exit(1)
	}
	fmt.Fprintf(out, "%sok%s seed=%d tasks=%d iterations=%d\n",
		colGreen, colReset, cfg.Seed, cfg.Tasks, cfg.Iterations)
}

// heapSegments is the host-side segment manager: ordinary Go allocations
// pinned in a map so the base addresses stay valid.
type heapSegments struct {
	mu    sync.Mutex
	size  int
	live  map[uintptr][]byte
	inits int
	tears int
}

func newHeapSegments(size int) *heapSegments {
	return &heapSegments{size: size, live: make(map[uintptr][]byte)}
}

func (h *heapSegments) Allocate() uintptr {
	buf := make([]byte, h.size)
	p := uintptrOf(buf)
	h.mu.Lock()
	h.live[p] = buf
	h.mu.Unlock()
	return p
}

// uintptrOf returns the base address of a buffer. The caller keeps the
// buffer reachable for as long as the address is handed out.
func uintptrOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

func (h *heapSegments) Initialize(base uintptr) {
	h.mu.Lock()
	if buf, ok := h.live[base]; ok {
		for i := range buf {
			buf[i] = 0
		}
		h.inits++
	}
	h.mu.Unlock()
}

func (h *heapSegments) Teardown(base uintptr) {
	h.mu.Lock()
	h.tears++
	h.mu.Unlock()
}

func (h *heapSegments) Deallocate(base uintptr) {
	h.mu.Lock()
	delete(h.live, base)
	h.mu.Unlock()
}

func run(cfg *kernelcfg.Config, out io.Writer) error {
	segBytes, err := cfg.SegmentBytes()
	if err != nil {
		return err
	}

	kernel.Init()
	segs := newHeapSegments(segBytes)
	if err := tls.Init(segs); err != nil {
		return err
	}

	staticSeg := make([]byte, segBytes)
	tls.SetStaticSegment(uintptrOf(staticSeg))

	// Pre-scheduler: resolution against the static segment, and lock
	// operations that must not block.
	if got := tls.SymbolAddress(16); got != uintptrOf(staticSeg)+16 {
		return fmt.Errorf("pre-scheduler resolve: got %#x", got)
	}
	var early tls.Lock
	tls.SystemLocks.Init(&early)
	tls.SystemLocks.Lock(&early) // no-op before the scheduler runs
	tls.SystemLocks.Unlock(&early)
	tls.SystemLocks.Destroy(&early)

	slot, err := tls.AllocateID()
	if err != nil {
		return err
	}

	boot := kernel.NewTask("boot", 0)
	workers := make([]*task.Task, cfg.Tasks)
	for i := range workers {
		workers[i] = kernel.NewTask(fmt.Sprintf("worker%d", i), 0)
	}
	kernel.Start(boot)

	// Single-threaded pass over the blocking path.
	var l tls.Lock
	tls.FileLocks.Init(&l)
	tls.FileLocks.Lock(&l)
	tls.FileLocks.Unlock(&l)
	tls.FileLocks.Destroy(&l)

	// Concurrent pass: each context hammers create/delete on the shared
	// pool and set/get on its own task's slot.
	errs := make(chan error, cfg.Tasks)
	var wg sync.WaitGroup
	for i, w := range workers {
		wg.Add(1)
		go func(n int, t *task.Task) {
			defer wg.Done()
			errs <- worker(cfg, n, t, slot)
		}(i, w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}

	// Partition invariant after the dust settles: everything the workers
	// created, they deleted.
	free, inUse := tls.PoolCounts()
	if free+inUse != tls.NumLocks {
		return fmt.Errorf("pool accounting: free=%d inUse=%d capacity=%d", free, inUse, tls.NumLocks)
	}
	if inUse != 0 {
		return fmt.Errorf("pool leak: %d objects still in use", inUse)
	}

	// Switch-then-resolve ordering on every worker.
	for _, w := range workers {
		base, err := tls.Value(w, tls.SegmentSlot())
		if err != nil {
			return err
		}
		kernel.Switch(w)
		if got := tls.SymbolAddress(8); got != uintptr(base)+8 {
			return fmt.Errorf("resolve after switch to %s: got %#x want %#x", w.Name, got, uintptr(base)+8)
		}
	}

	kernel.Switch(boot)
	for _, w := range workers {
		kernel.DeleteTask(w)
		if v, err := tls.Value(w, tls.SegmentSlot()); err != nil || v != 0 {
			return fmt.Errorf("segment slot not cleared on %s: v=%#x err=%v", w.Name, v, err)
		}
	}
	kernel.DeleteTask(boot)

	segs.mu.Lock()
	liveAfter := len(segs.live)
	segs.mu.Unlock()
	if liveAfter != 0 {
		return fmt.Errorf("segment leak: %d segments still live", liveAfter)
	}

	fmt.Fprintf(out, "pool capacity %d, %d segment inits, %d teardowns\n",
		tls.NumLocks, segs.inits, segs.tears)
	return nil
}

// worker is one simulated context: it interleaves pool traffic with slot
// traffic on its own task and checks what it can check locally.
func worker(cfg *kernelcfg.Config, n int, t *task.Task, slot tls.SlotID) error {
	rng := rand.New(rand.NewSource(cfg.Seed + int64(n)))
	var held []tls.Lock
	for i := 0; i < cfg.Iterations; i++ {
		switch rng.Intn(3) {
		case 0:
			l := tls.NewLock()
			if !l.Null() {
				held = append(held, l)
			}
		case 1:
			if len(held) > 0 {
				ix := rng.Intn(len(held))
				held[ix].Delete()
				held = append(held[:ix], held[ix+1:]...)
			}
		case 2:
			want := task.StorageValue(uintptr(n)<<16 | uintptr(i))
			if err := tls.SetValue(t, slot, want); err != nil {
				return err
			}
			got, err := tls.Value(t, slot)
			if err != nil {
				return err
			}
			if got != want {
				return fmt.Errorf("worker%d: slot %d read %#x after writing %#x", n, slot, got, want)
			}
		}
		free, inUse := tls.PoolCounts()
		if free+inUse != tls.NumLocks {
			return fmt.Errorf("worker%d: pool partition broken: free=%d inUse=%d", n, free, inUse)
		}
	}
	for _, l := range held {
		l.Delete()
	}
	return nil
}
