package interrupt_test

import (
	"sync"
	"testing"

	"github.com/tinyrt-org/tinyrt/interrupt"
)

func TestCriticalSectionExcludes(t *testing.T) {
	const (
		contexts   = 4
		increments = 10000
	)
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < contexts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				mask := interrupt.Disable()
				counter++
				interrupt.Restore(mask)
			}
		}()
	}
	wg.Wait()
	if counter != contexts*increments {
		t.Errorf("counter = %d, want %d", counter, contexts*increments)
	}
}
