package task

import "github.com/tinyrt-org/tinyrt/interrupt"

const asserts = false

// Queue is a FIFO list of tasks threaded through their Next pointers. The
// kernel uses it for mutex waiter lists, so ordering is first-pended,
// first-woken. A task is in at most one list at a time.
// The zero value is an empty queue.
type Queue struct {
	head, tail *Task
}

// Push appends t to the queue. The task must not currently be linked into
// any list.
func (q *Queue) Push(t *Task) {
	mask := interrupt.Disable()
	if asserts && t.Next != nil {
		interrupt.Restore(mask)
		panic("task: pushing a task to a queue with a non-nil Next pointer")
	}
	if q.tail != nil {
		q.tail.Next = t
	}
	q.tail = t
	t.Next = nil
	if q.head == nil {
		q.head = t
	}
	interrupt.Restore(mask)
}

// Pop removes and returns the longest-queued task, or nil if the queue is
// empty. The returned task's Next pointer is cleared so it can be linked
// elsewhere right away.
func (q *Queue) Pop() *Task {
	mask := interrupt.Disable()
	t := q.head
	if t == nil {
		interrupt.Restore(mask)
		return nil
	}
	q.head = t.Next
	if q.tail == t {
		q.tail = nil
	}
	t.Next = nil
	interrupt.Restore(mask)
	return t
}

// Empty reports whether no task is queued.
func (q *Queue) Empty() bool {
	mask := interrupt.Disable()
	empty := q.head == nil
	interrupt.Restore(mask)
	return empty
}
