package initlock

import (
	"sync"
	"testing"
)

func TestGlobalReturnsSameInstance(t *testing.T) {
	if Global() != Global() {
		t.Error("Global must return the same lock instance on every call")
	}
}

func TestGlobalSerializes(t *testing.T) {
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				lock := Global()
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != 4000 {
		t.Errorf("counter = %d, want 4000", counter)
	}
}
