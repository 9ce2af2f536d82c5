package fetcher

import (
	"sync"
)

// flight is the bookkeeping for one upstream fetch in progress.
type flight struct {
	invalidated bool
}

// flightTable records the keys with a foreground fetch in progress so that
// an Invalidate arriving mid-fetch can stop the fetch from storing its
// result or arming a refresh. The singleflight group runs at most one
// fetch per key, so a key has at most one flight.
type flightTable struct {
	mu      sync.Mutex
	flights map[string]*flight
}

func newFlightTable() *flightTable {
	return &flightTable{
		flights: make(map[string]*flight),
	}
}

// begin registers the flight for key. The returned func removes it.
func (t *flightTable) begin(key string) (*flight, func()) {
	fl := &flight{}

	t.mu.Lock()
	t.flights[key] = fl
	t.mu.Unlock()

	return fl, func() {
		t.mu.Lock()
		if t.flights[key] == fl {
			delete(t.flights, key)
		}
		t.mu.Unlock()
	}
}

// invalidate marks the flight for key, if any, as unwanted.
func (t *flightTable) invalidate(key string) {
	t.mu.Lock()
	if fl, ok := t.flights[key]; ok {
		fl.invalidated = true
	}
	t.mu.Unlock()
}

// wanted reports whether fl was not invalidated.
func (t *flightTable) wanted(fl *flight) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !fl.invalidated
}

// whileWanted runs fn under the table lock unless fl was invalidated.
// An invalidate for the same key waits for fn to return.
func (t *flightTable) whileWanted(fl *flight, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fl.invalidated {
		return false
	}
	fn()
	return true
}

func (t *flightTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flights)
}
