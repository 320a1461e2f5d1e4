// README: Session tracker; one active session per plate, keyed by plate.
package session

import (
	"fmt"
	"sort"
	"time"

	"park/internal/modules/spot"
)

// Tracker is not safe for concurrent use on its own; see facility.Facility.
type Tracker struct {
	active map[string]Session
	bySpot map[spot.ID]string
}

func NewTracker() *Tracker {
	return &Tracker{
		active: make(map[string]Session),
		bySpot: make(map[spot.ID]string),
	}
}

func (t *Tracker) state(plate string) State {
	if _, ok := t.active[plate]; ok {
		return StateActive
	}
	return StateNone
}

func (t *Tracker) Start(plate string, spotID spot.ID, category spot.Category, enteredAt time.Time) error {
	if plate == "" {
		return ErrEmptyPlate
	}
	if !CanTransition(t.state(plate), StateActive) {
		return ErrDuplicateSession
	}
	if holder, ok := t.bySpot[spotID]; ok {
		return fmt.Errorf("spot %d already held by %s: %w", spotID, holder, spot.ErrSpotUnavailable)
	}
	t.active[plate] = Session{Plate: plate, SpotID: spotID, Category: category, EnteredAt: enteredAt}
	t.bySpot[spotID] = plate
	return nil
}

// End removes and returns the plate's session. An exit time before entry is
// rejected and leaves the session active.
func (t *Tracker) End(plate string, exitedAt time.Time) (Session, error) {
	if !CanTransition(t.state(plate), StateNone) {
		return Session{}, ErrUnknownSession
	}
	s := t.active[plate]
	if _, err := s.Elapsed(exitedAt); err != nil {
		return Session{}, err
	}
	delete(t.active, plate)
	delete(t.bySpot, s.SpotID)
	return s, nil
}

// Restore puts a session back after a failed downstream step of an exit.
func (t *Tracker) Restore(s Session) {
	t.active[s.Plate] = s
	t.bySpot[s.SpotID] = s.Plate
}

func (t *Tracker) Lookup(plate string) (Session, bool) {
	s, ok := t.active[plate]
	return s, ok
}

func (t *Tracker) Has(plate string) bool {
	_, ok := t.active[plate]
	return ok
}

// HolderOf returns the plate parked in the spot, if any.
func (t *Tracker) HolderOf(id spot.ID) (string, bool) {
	p, ok := t.bySpot[id]
	return p, ok
}

func (t *Tracker) Len() int {
	return len(t.active)
}

// Active returns the open sessions sorted by plate.
func (t *Tracker) Active() []Session {
	out := make([]Session, 0, len(t.active))
	for _, s := range t.active {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Plate < out[j].Plate })
	return out
}
