package kernel

import (
	"errors"
	"runtime"
	"sync/atomic"

	"github.com/tinyrt-org/tinyrt/internal/task"
)

var (
	// ErrMutexCreated is returned by Create on a mutex that has already
	// been created and not deleted since.
	ErrMutexCreated = errors.New("kernel: mutex already created")

	// ErrMutexNotCreated is returned by Delete on a mutex that was never
	// created, or was already deleted.
	ErrMutexNotCreated = errors.New("kernel: mutex not created")
)

// schedulerLock serializes mutex state transitions. It is distinct from the
// interrupt critical section so that waiter-queue operations (which take
// the critical section internally) can run while it is held. Lock order is
// always schedulerLock first, critical section second.
var schedulerLock spinLock

type spinLock struct {
	v atomic.Uint32
}

func (l *spinLock) Lock() {
	for !l.v.CompareAndSwap(0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	l.v.Store(0)
}

// Mutex is the kernel mutual-exclusion primitive: blocking pend with no
// timeout, FIFO wakeup, delete-always semantics. It is not recursive.
type Mutex struct {
	created bool
	name    string
	owner   *task.Task
	waiters task.Queue
}

// Create initializes the mutex. A mutex must be created before it is used
// and may be created again after Delete.
func (m *Mutex) Create(name string) error {
	schedulerLock.Lock()
	if m.created {
		schedulerLock.Unlock()
		return ErrMutexCreated
	}
	m.created = true
	m.name = name
	m.owner = nil
	schedulerLock.Unlock()
	return nil
}

// Pend waits indefinitely until the mutex is available and takes it. The
// calling context must be a scheduled task. Pending on a mutex the caller
// already owns is misuse and panics rather than deadlocking silently.
//
// A Pend outstanding when the mutex is deleted returns without ownership.
func (m *Mutex) Pend() {
	t := Current()
	schedulerLock.Lock()
	if !m.created {
		schedulerLock.Unlock()
		panic("kernel: pend on a mutex that was not created")
	}
	if t == nil {
		schedulerLock.Unlock()
		panic("kernel: pend with no current task")
	}
	if m.owner == t {
		schedulerLock.Unlock()
		panic("kernel: recursive mutex pend")
	}
	if m.owner == nil {
		m.owner = t
		schedulerLock.Unlock()
		return
	}
	m.waiters.Push(t)
	schedulerLock.Unlock()
	t.Pause()
}

// Post releases the mutex and hands it to the longest-waiting pender, if
// any. Only the owner may post.
func (m *Mutex) Post() {
	schedulerLock.Lock()
	if !m.created {
		schedulerLock.Unlock()
		panic("kernel: post on a mutex that was not created")
	}
	if m.owner != Current() {
		schedulerLock.Unlock()
		panic("kernel: post by a task that does not own the mutex")
	}
	next := m.waiters.Pop()
	m.owner = next
	schedulerLock.Unlock()
	if next != nil {
		next.Resume()
	}
}

// Delete deletes the mutex regardless of ownership and readies every
// pending task. The woken tasks return from Pend without the lock.
func (m *Mutex) Delete() error {
	schedulerLock.Lock()
	if !m.created {
		schedulerLock.Unlock()
		return ErrMutexNotCreated
	}
	m.created = false
	m.owner = nil
	var woken []*task.Task
	for t := m.waiters.Pop(); t != nil; t = m.waiters.Pop() {
		woken = append(woken, t)
	}
	schedulerLock.Unlock()
	for _, t := range woken {
		t.Resume()
	}
	return nil
}
