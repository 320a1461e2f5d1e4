// README: Parking session aggregate and per-plate state definitions.
package session

import (
	"errors"
	"time"

	"park/internal/modules/spot"
)

type State string

const (
	StateNone   State = "none"
	StateActive State = "active"
)

// AllowedTransitions is the per-plate state flow as code.
var AllowedTransitions = map[State][]State{
	StateNone:   {StateActive},
	StateActive: {StateNone},
}

func CanTransition(from, to State) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrEmptyPlate       = errors.New("plate is required")
	ErrDuplicateSession = errors.New("plate already has an active session")
	ErrUnknownSession   = errors.New("no active session for plate")
	ErrInvalidTimestamp = errors.New("exit time is before entry time")
	ErrSpanTooLong      = errors.New("session span exceeds the supported duration range")
)

type Session struct {
	Plate     string        `json:"plate"`
	SpotID    spot.ID       `json:"spot_id"`
	Category  spot.Category `json:"category"`
	EnteredAt time.Time     `json:"entered_at"`
}

// Elapsed returns the parked duration at t. It fails with ErrInvalidTimestamp
// if t precedes entry and with ErrSpanTooLong if the span does not fit in a
// time.Duration (Sub saturates at roughly 292 years).
func (s Session) Elapsed(t time.Time) (time.Duration, error) {
	if t.Before(s.EnteredAt) {
		return 0, ErrInvalidTimestamp
	}
	d := t.Sub(s.EnteredAt)
	if !s.EnteredAt.Add(d).Equal(t) {
		return 0, ErrSpanTooLong
	}
	return d, nil
}
