package task

import (
	"testing"
	"time"
)

func TestStorageEnabled(t *testing.T) {
	if !New("a", 0).StorageEnabled() {
		t.Error("default task should participate in storage")
	}
	if New("b", NoStorage).StorageEnabled() {
		t.Error("NoStorage task should not participate in storage")
	}
}

func TestNewTaskStorageZeroed(t *testing.T) {
	tsk := New("a", 0)
	for i, v := range tsk.Storage {
		if v != 0 {
			t.Errorf("slot %d = %#x, want 0", i, v)
		}
	}
}

func TestResumeBeforePause(t *testing.T) {
	tsk := New("a", 0)
	tsk.Resume()
	done := make(chan struct{})
	go func() {
		tsk.Pause()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pause did not observe the earlier resume")
	}
}

func TestPauseBlocksUntilResume(t *testing.T) {
	tsk := New("a", 0)
	done := make(chan struct{})
	go func() {
		tsk.Pause()
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("pause returned without a resume")
	case <-time.After(10 * time.Millisecond):
	}
	tsk.Resume()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("resume did not unblock the paused task")
	}
}

func TestQueueFIFO(t *testing.T) {
	var q Queue
	a, b, c := New("a", 0), New("b", 0), New("c", 0)
	q.Push(a)
	q.Push(b)
	q.Push(c)
	for _, want := range []*Task{a, b, c} {
		if got := q.Pop(); got != want {
			t.Errorf("popped %v, want %v", got, want)
		}
	}
	if got := q.Pop(); got != nil {
		t.Errorf("pop on empty queue returned %v", got)
	}
}

func TestQueueEmpty(t *testing.T) {
	var q Queue
	if !q.Empty() {
		t.Error("zero queue should be empty")
	}
	q.Push(New("a", 0))
	if q.Empty() {
		t.Error("queue with one task should not be empty")
	}
	q.Pop()
	if !q.Empty() {
		t.Error("drained queue should be empty")
	}
}

func TestQueueReuseAfterPop(t *testing.T) {
	var q Queue
	a := New("a", 0)
	q.Push(a)
	if got := q.Pop(); got != a || got.Next != nil {
		t.Fatalf("pop returned %v with Next %v", got, got.Next)
	}
	// A popped task can be pushed onto another list immediately.
	var q2 Queue
	q2.Push(a)
	if got := q2.Pop(); got != a {
		t.Errorf("second queue popped %v, want %v", got, a)
	}
}
