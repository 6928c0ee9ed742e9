package proxy

import (
	"sync"
	"testing"
	"time"
)

func TestKeyLocksSerialiseSameKey(t *testing.T) {
	locks := newKeyLocks()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("same")
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxSeen)
	}
	if locks.size() != 0 {
		t.Fatalf("expected lock table to be empty, got %d", locks.size())
	}
}

func TestKeyLocksIndependentKeys(t *testing.T) {
	locks := newKeyLocks()
	unlockA := locks.lock("a")
	done := make(chan struct{})
	go func() {
		unlock := locks.lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on b blocked by a")
	}
	unlockA()
}
