package riderepo

import (
	"sync"
	"testing"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

func TestRideLocks_SerializesSameRideAndCleansUp(t *testing.T) {
	t.Parallel()

	l := newRideLocks()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock(domain.RideID("r1"))
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter=%d want 50", counter)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.m) != 0 {
		t.Fatalf("expected lock table to be empty, got %d entries", len(l.m))
	}
}

func TestRideLocks_DifferentRidesDoNotBlock(t *testing.T) {
	t.Parallel()

	l := newRideLocks()
	unlockA := l.lock(domain.RideID("a"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := l.lock(domain.RideID("b"))
		unlockB()
		close(done)
	}()
	<-done
}
