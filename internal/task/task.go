// Package task implements the task control block shared between the kernel
// and the task-local storage subsystem.
package task

// NumSlots is the number of task-local storage slots compiled into every
// task. Ports size this the way they size the rest of the kernel tables:
// once, at build time.
const NumSlots = 8

// StorageValue is one task-local storage slot: a single machine word,
// opaque to the kernel. The runtime typically stores a segment base pointer
// or a small handle in it.
type StorageValue uintptr

// Options is the set of task creation options. Options are fixed when the
// task is created and never change afterwards.
type Options uint32

const (
	// NoStorage opts the task out of task-local storage. Storage slot
	// access on such a task fails and the lifecycle hooks skip it.
	NoStorage Options = 1 << iota
)

// Task is a task control block.
type Task struct {
	// Next threads this task into an intrusive list, such as a mutex
	// waiter queue. A task is in at most one list at a time.
	Next *Task

	// Name of the task, for debugging.
	Name string

	// Options the task was created with.
	Options Options

	// Storage is the task-local value table, indexed by slot ID. It is
	// zero-filled at creation and owned by this task for its lifetime.
	Storage [NumSlots]StorageValue

	// resume pairs Pause with Resume. One slot, so a resume that arrives
	// before the pause is not lost.
	resume chan struct{}
}

// New returns a task control block with a zeroed storage table.
func New(name string, opts Options) *Task {
	return &Task{
		Name:    name,
		Options: opts,
		resume:  make(chan struct{}, 1),
	}
}

// StorageEnabled reports whether the task participates in task-local
// storage.
func (t *Task) StorageEnabled() bool {
	return t.Options&NoStorage == 0
}

// Pause blocks the calling context until someone calls Resume on this task.
// It is legal for the Resume to have happened already, in which case Pause
// returns immediately.
func (t *Task) Pause() {
	<-t.resume
}

// Resume unblocks a task paused in Pause. Resuming a task that has not yet
// paused makes its next Pause return immediately.
func (t *Task) Resume() {
	select {
	case t.resume <- struct{}{}:
	default:
	}
}
