package riderepo

import (
	"sync"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

// rideLocks hands out one mutex per ride so that read-modify-write cycles on the
// same ride are serialized while different rides proceed independently.
// Entries are reference counted and dropped once no goroutine holds or waits on them.
type rideLocks struct {
	mu sync.Mutex
	m  map[domain.RideID]*rideLock
}

type rideLock struct {
	sync.Mutex
	refs int
}

func newRideLocks() *rideLocks {
	return &rideLocks{m: make(map[domain.RideID]*rideLock)}
}

// lock blocks until the ride's lock is held and returns the matching unlock func.
func (l *rideLocks) lock(id domain.RideID) func() {
	l.mu.Lock()
	e, ok := l.m[id]
	if !ok {
		e = &rideLock{}
		l.m[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}
