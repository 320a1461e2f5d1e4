// README: Spot registry; fixed inventory with lowest-id-first allocation.
package spot

import (
	"fmt"
	"sort"
)

// Registry owns the spot inventory. It is not safe for concurrent use on its
// own; the facility serialises access together with the session tracker.
type Registry struct {
	byID       map[ID]*Spot
	byCategory map[Category][]*Spot // ascending by ID
}

func NewRegistry(layout []Spot) (*Registry, error) {
	r := &Registry{
		byID:       make(map[ID]*Spot, len(layout)),
		byCategory: make(map[Category][]*Spot, len(Categories)),
	}
	for _, s := range layout {
		if s.ID <= 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidSpotID, s.ID)
		}
		if !s.Category.Valid() {
			return nil, fmt.Errorf("spot %d: %w %q", s.ID, ErrUnknownCategory, s.Category)
		}
		if _, ok := r.byID[s.ID]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateSpot, s.ID)
		}
		sp := &Spot{ID: s.ID, Category: s.Category}
		r.byID[s.ID] = sp
		r.byCategory[s.Category] = append(r.byCategory[s.Category], sp)
	}
	for _, list := range r.byCategory {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	return r, nil
}

// Allocate marks the lowest-numbered free spot of the category as occupied.
func (r *Registry) Allocate(c Category) (ID, error) {
	if !c.Valid() {
		return 0, ErrUnknownCategory
	}
	for _, s := range r.byCategory[c] {
		if !s.Occupied {
			s.Occupied = true
			return s.ID, nil
		}
	}
	return 0, ErrSpotUnavailable
}

func (r *Registry) Release(id ID) error {
	s, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSpot, id)
	}
	if !s.Occupied {
		return fmt.Errorf("%w: %d", ErrSpotNotOccupied, id)
	}
	s.Occupied = false
	return nil
}

func (r *Registry) Get(id ID) (Spot, error) {
	s, ok := r.byID[id]
	if !ok {
		return Spot{}, fmt.Errorf("%w: %d", ErrUnknownSpot, id)
	}
	return *s, nil
}

func (r *Registry) Occupied(id ID) (bool, error) {
	s, err := r.Get(id)
	if err != nil {
		return false, err
	}
	return s.Occupied, nil
}

// Spots returns a copy of the inventory ordered by ID.
func (r *Registry) Spots() []Spot {
	out := make([]Spot, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Capacity(c Category) int {
	return len(r.byCategory[c])
}

func (r *Registry) Free(c Category) int {
	n := 0
	for _, s := range r.byCategory[c] {
		if !s.Occupied {
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	return len(r.byID)
}
