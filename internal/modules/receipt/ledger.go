// README: Append-only in-memory receipt history, sharded by plate.
package receipt

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	byPlate map[string][]Receipt
}

// Ledger keeps the full receipt history per plate. Appends for plates in
// different shards never contend.
type Ledger struct {
	shards [shardCount]shard
}

func NewLedger() *Ledger {
	l := &Ledger{}
	for i := range l.shards {
		l.shards[i].byPlate = make(map[string][]Receipt)
	}
	return l
}

func (l *Ledger) shardFor(plate string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(plate))
	return &l.shards[h.Sum32()%shardCount]
}

func (l *Ledger) Append(r Receipt) {
	s := l.shardFor(r.Plate)
	s.mu.Lock()
	s.byPlate[r.Plate] = append(s.byPlate[r.Plate], r)
	s.mu.Unlock()
}

// History returns a copy of the plate's receipts, oldest first. Unknown plates
// yield an empty, non-nil slice.
func (l *Ledger) History(plate string) []Receipt {
	s := l.shardFor(plate)
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.byPlate[plate]
	out := make([]Receipt, len(src))
	copy(out, src)
	return out
}

func (l *Ledger) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.RLock()
		for _, rs := range s.byPlate {
			n += len(rs)
		}
		s.mu.RUnlock()
	}
	return n
}

func (l *Ledger) Plates() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.RLock()
		n += len(s.byPlate)
		s.mu.RUnlock()
	}
	return n
}
