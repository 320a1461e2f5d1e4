// README: Facility commands, status view, observer hooks and clock.
package facility

import (
	"errors"
	"time"

	"park/internal/modules/receipt"
	"park/internal/modules/session"
	"park/internal/modules/spot"
)

// ErrInvariant marks an internal consistency violation between the spot
// registry and the session tracker. It should never surface in practice.
var ErrInvariant = errors.New("facility invariant violated")

const (
	OpEntry = "entry"
	OpExit  = "exit"
)

type EntryCommand struct {
	Plate    string
	Category spot.Category
	// At defaults to the facility clock when zero.
	At time.Time
}

type ExitCommand struct {
	Plate string
	At    time.Time
}

type CategoryStatus struct {
	Category spot.Category `json:"category"`
	Capacity int           `json:"capacity"`
	Free     int           `json:"free"`
	Occupied int           `json:"occupied"`
}

type Status struct {
	Categories     []CategoryStatus `json:"categories"`
	ActiveSessions int              `json:"active_sessions"`
	Receipts       int              `json:"receipts"`
}

// Observer is notified after an operation leaves the critical section.
// Implementations must not block.
type Observer interface {
	Entered(s session.Session)
	Exited(r receipt.Receipt)
	Rejected(op string, err error)
}

// Observers fans out to each observer in order.
type Observers []Observer

func (o Observers) Entered(s session.Session) {
	for _, ob := range o {
		ob.Entered(s)
	}
}

func (o Observers) Exited(r receipt.Receipt) {
	for _, ob := range o {
		ob.Exited(r)
	}
}

func (o Observers) Rejected(op string, err error) {
	for _, ob := range o {
		ob.Rejected(op, err)
	}
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }
