package tls

import (
	"github.com/tinyrt-org/tinyrt/interrupt"
	"github.com/tinyrt-org/tinyrt/kernel"
)

// Pool capacities. The C library needs a fixed number of system locks plus
// one lock per simultaneously open stream; both categories draw from one
// pool sized for the sum, the way the DLIB configuration adds FOPEN_MAX on
// top of _MAX_LOCK.
const (
	NumSystemLocks = 4
	NumFileLocks   = 8
	NumLocks       = NumSystemLocks + NumFileLocks
)

const endOfChain = -1

// lockObject wraps one kernel mutex. It is either linked into the pool's
// free chain or handed out behind a Lock handle, never both.
type lockObject struct {
	mutex kernel.Mutex
	next  int32 // index of the next free object, or endOfChain
}

// lockPool is an arena of lock objects with an index-based free chain
// threaded through it. The chain head and links are touched only inside
// critical sections.
type lockPool struct {
	objects []lockObject
	free    int32
	inUse   int32
}

func newLockPool(capacity int) *lockPool {
	p := &lockPool{objects: make([]lockObject, capacity)}
	for i := range p.objects {
		p.objects[i].next = int32(i + 1)
	}
	p.objects[capacity-1].next = endOfChain
	return p
}

// get pops one object off the free chain, or returns endOfChain if the
// pool is exhausted.
func (p *lockPool) get() int32 {
	mask := interrupt.Disable()
	ix := p.free
	if ix != endOfChain {
		p.free = p.objects[ix].next
		p.objects[ix].next = endOfChain
		p.inUse++
	}
	interrupt.Restore(mask)
	return ix
}

// put pushes an object back on the front of the free chain.
func (p *lockPool) put(ix int32) {
	mask := interrupt.Disable()
	p.objects[ix].next = p.free
	p.free = ix
	p.inUse--
	interrupt.Restore(mask)
}

// counts returns the free and in-use object counts. The free count is
// measured by walking the chain, not derived from the capacity, so a lost,
// duplicated or mislinked node shows up as free+inUse != capacity at the
// caller's sum check.
func (p *lockPool) counts() (free, inUse int) {
	seen := make([]bool, len(p.objects))
	mask := interrupt.Disable()
	inUse = int(p.inUse)
	for ix := p.free; ix != endOfChain; ix = p.objects[ix].next {
		if ix < 0 || int(ix) >= len(p.objects) || seen[ix] {
			// A link out of range or a revisit means the chain is
			// corrupt. Report a count that can never sum to the
			// capacity.
			interrupt.Restore(mask)
			return len(p.objects) + 1, inUse
		}
		seen[ix] = true
		free++
	}
	interrupt.Restore(mask)
	return free, inUse
}

var pool = newLockPool(NumLocks)

// createMutex is the seam between the pool and the kernel mutex create
// call; failure injection goes through it.
var createMutex = func(m *kernel.Mutex, name string) error {
	return m.Create(name)
}

// Lock is an opaque handle to a pooled lock object.
//
// The zero Lock is the no-op handle: Acquire, Release and Delete on it do
// nothing. NewLock hands it out when the pool is exhausted or the kernel
// mutex cannot be created, so locking degrades to unsynchronized operation
// instead of failing: the C library's lock hook contract has no error
// channel to report through.
type Lock struct {
	pool *lockPool
	ix   int32
}

// Null reports whether l is the no-op handle.
func (l Lock) Null() bool {
	return l.pool == nil
}

// NewLock allocates a lock object from the pool and creates its kernel
// mutex. The kernel call happens outside the critical section: it is
// allowed to take kernel-side locks of its own.
func NewLock() Lock {
	return newLock(pool, "tls lock")
}

func newLock(p *lockPool, name string) Lock {
	ix := p.get()
	if ix == endOfChain {
		return Lock{}
	}
	if err := createMutex(&p.objects[ix].mutex, name); err != nil {
		p.put(ix)
		return Lock{}
	}
	return Lock{pool: p, ix: ix}
}

// Delete returns the lock object to the pool. The kernel mutex is deleted
// unconditionally; if the deletion fails the error goes to the diagnostic
// hook and the pool slot is reclaimed anyway, so the pool can never leak.
// The handle must not be used after Delete.
func (l Lock) Delete() {
	if l.pool == nil {
		return
	}
	if err := l.pool.objects[l.ix].mutex.Delete(); err != nil {
		if fn := deleteDiagnostic; fn != nil {
			fn(err)
		}
	}
	l.pool.put(l.ix)
}

// Acquire waits indefinitely for the lock. On the no-op handle, or before
// the scheduler has started, it returns immediately: startup code must
// never block here. Not recursive.
func (l Lock) Acquire() {
	if l.pool == nil || !kernel.Running() {
		return
	}
	l.pool.objects[l.ix].mutex.Pend()
}

// Release signals the lock. Same guards as Acquire.
func (l Lock) Release() {
	if l.pool == nil || !kernel.Running() {
		return
	}
	l.pool.objects[l.ix].mutex.Post()
}

var deleteDiagnostic func(error)

// SetDeleteDiagnostic registers fn to observe kernel mutex deletion
// failures that Delete otherwise swallows. Pass nil to go back to silent.
func SetDeleteDiagnostic(fn func(error)) {
	deleteDiagnostic = fn
}

// PoolCounts returns the free and in-use counts of the process-wide lock
// pool.
func PoolCounts() (free, inUse int) {
	return pool.counts()
}

// Category is one set of C library lock hooks: init, destroy, lock,
// unlock. Both categories are backed by the same pool.
type Category struct {
	name string
}

var (
	// SystemLocks backs the library's internal state locks (malloc,
	// environment, time).
	SystemLocks = Category{name: "system"}

	// FileLocks backs the per-stream locks.
	FileLocks = Category{name: "file"}
)

// Init creates a lock and stores its handle through l. On failure l is the
// no-op handle.
func (c Category) Init(l *Lock) {
	*l = newLock(pool, c.name+" lock")
}

// Destroy deletes the lock behind l and resets it to the no-op handle.
func (c Category) Destroy(l *Lock) {
	l.Delete()
	*l = Lock{}
}

// Lock acquires the lock behind l.
func (c Category) Lock(l *Lock) {
	l.Acquire()
}

// Unlock releases the lock behind l.
func (c Category) Unlock(l *Lock) {
	l.Release()
}
