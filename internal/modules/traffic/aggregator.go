// README: Hourly entry counter with point-in-time snapshots.
package traffic

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const Hours = 24

var ErrInvalidHour = errors.New("hour must be within 0..23")

// Snapshot is a consistent copy of all hourly buckets.
type Snapshot [Hours]uint64

func (s Snapshot) Map() map[int]uint64 {
	out := make(map[int]uint64, Hours)
	for h, n := range s {
		out[h] = n
	}
	return out
}

func (s Snapshot) Total() uint64 {
	var n uint64
	for _, v := range s {
		n += v
	}
	return n
}

// Peak returns the busiest hour; ties resolve to the earliest hour.
func (s Snapshot) Peak() (int, uint64) {
	hour, best := 0, s[0]
	for h := 1; h < Hours; h++ {
		if s[h] > best {
			hour, best = h, s[h]
		}
	}
	return hour, best
}

// Aggregator counts entries per hour of day. Increments are atomic and only
// share a read lock; Snapshot takes the write lock so it never sees a
// partially applied batch of concurrent increments.
type Aggregator struct {
	mu     sync.RWMutex
	counts [Hours]atomic.Uint64
	loc    *time.Location
}

// NewAggregator buckets timestamps in loc; nil means UTC.
func NewAggregator(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{loc: loc}
}

func (a *Aggregator) Increment(hour int) error {
	if hour < 0 || hour >= Hours {
		return ErrInvalidHour
	}
	a.mu.RLock()
	a.counts[hour].Add(1)
	a.mu.RUnlock()
	return nil
}

// Record counts an entry at t in the aggregator's location.
func (a *Aggregator) Record(t time.Time) {
	_ = a.Increment(t.In(a.loc).Hour())
}

func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	var s Snapshot
	for h := range a.counts {
		s[h] = a.counts[h].Load()
	}
	return s
}

// Seed adds previously persisted counts, e.g. from the Redis mirror at startup.
func (a *Aggregator) Seed(s Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for h, n := range s {
		a.counts[h].Add(n)
	}
}

func (a *Aggregator) Location() *time.Location {
	return a.loc
}
