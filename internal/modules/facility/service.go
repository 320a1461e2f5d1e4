// README: Facility service; atomic entry/exit over spots, sessions, billing, receipts and traffic.
package facility

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"park/internal/modules/billing"
	"park/internal/modules/receipt"
	"park/internal/modules/session"
	"park/internal/modules/spot"
	"park/internal/modules/traffic"
	"park/internal/types"
)

type Config struct {
	Layout    []spot.Spot
	Rates     billing.RateTable
	MinCharge types.Money
	// Location buckets traffic by local hour; nil means UTC.
	Location *time.Location
	Clock    Clock
	Observer Observer
}

// Facility is safe for concurrent use. mu guards the spot registry and the
// session tracker together so every entry and exit is atomic with respect to
// the others. Billing, the ledger and the traffic aggregator synchronise
// themselves.
type Facility struct {
	mu       sync.Mutex
	spots    *spot.Registry
	sessions *session.Tracker

	billing  *billing.Engine
	ledger   *receipt.Ledger
	traffic  *traffic.Aggregator
	clock    Clock
	observer Observer
}

func New(cfg Config) (*Facility, error) {
	spots, err := spot.NewRegistry(cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("spot layout: %w", err)
	}
	engine, err := billing.NewEngine(cfg.Rates, cfg.MinCharge)
	if err != nil {
		return nil, fmt.Errorf("rate table: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	observer := cfg.Observer
	if observer == nil {
		observer = Observers{}
	}
	return &Facility{
		spots:    spots,
		sessions: session.NewTracker(),
		billing:  engine,
		ledger:   receipt.NewLedger(),
		traffic:  traffic.NewAggregator(cfg.Location),
		clock:    clock,
		observer: observer,
	}, nil
}

// NormalizePlate trims surrounding space and upper-cases the plate.
func NormalizePlate(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}

// at resolves an optional timestamp and cuts it to whole seconds, the unit
// sessions are billed in, so a receipt's duration equals its billed seconds.
func (f *Facility) at(t time.Time) time.Time {
	if t.IsZero() {
		t = f.clock.Now()
	}
	return t.Truncate(time.Second)
}

func (f *Facility) reject(op string, err error) error {
	f.observer.Rejected(op, err)
	return err
}

// Entry allocates the lowest free spot of the category and opens a session.
// A plate that is already parked is rejected before any spot is touched.
func (f *Facility) Entry(ctx context.Context, cmd EntryCommand) (spot.ID, error) {
	s, err := f.Admit(ctx, cmd)
	if err != nil {
		return 0, err
	}
	return s.SpotID, nil
}

// Admit is Entry returning the whole opened session, including the resolved
// entry time.
func (f *Facility) Admit(ctx context.Context, cmd EntryCommand) (session.Session, error) {
	plate := NormalizePlate(cmd.Plate)
	if plate == "" {
		return session.Session{}, f.reject(OpEntry, session.ErrEmptyPlate)
	}
	if !cmd.Category.Valid() {
		return session.Session{}, f.reject(OpEntry, spot.ErrUnknownCategory)
	}
	at := f.at(cmd.At)

	f.mu.Lock()
	if f.sessions.Has(plate) {
		f.mu.Unlock()
		return session.Session{}, f.reject(OpEntry, session.ErrDuplicateSession)
	}
	id, err := f.spots.Allocate(cmd.Category)
	if err != nil {
		f.mu.Unlock()
		return session.Session{}, f.reject(OpEntry, err)
	}
	if err := f.sessions.Start(plate, id, cmd.Category, at); err != nil {
		if rerr := f.spots.Release(id); rerr != nil {
			err = fmt.Errorf("%w: rollback of spot %d: %v", ErrInvariant, id, rerr)
		}
		f.mu.Unlock()
		return session.Session{}, f.reject(OpEntry, err)
	}
	s, _ := f.sessions.Lookup(plate)
	f.mu.Unlock()

	f.traffic.Record(at)
	f.observer.Entered(s)
	return s, nil
}

// Exit closes the plate's session, prices it, records the receipt and frees
// the spot, all inside one critical section.
func (f *Facility) Exit(ctx context.Context, cmd ExitCommand) (receipt.Receipt, error) {
	plate := NormalizePlate(cmd.Plate)
	if plate == "" {
		return receipt.Receipt{}, f.reject(OpExit, session.ErrEmptyPlate)
	}
	at := f.at(cmd.At)

	f.mu.Lock()
	s, err := f.sessions.End(plate, at)
	if err != nil {
		f.mu.Unlock()
		return receipt.Receipt{}, f.reject(OpExit, err)
	}
	d, err := s.Elapsed(at)
	if err != nil {
		f.sessions.Restore(s)
		f.mu.Unlock()
		return receipt.Receipt{}, f.reject(OpExit, err)
	}
	q, err := f.billing.Compute(s.Category, d)
	if err != nil {
		f.sessions.Restore(s)
		f.mu.Unlock()
		return receipt.Receipt{}, f.reject(OpExit, err)
	}
	if err := f.spots.Release(s.SpotID); err != nil {
		f.sessions.Restore(s)
		f.mu.Unlock()
		return receipt.Receipt{}, f.reject(OpExit, fmt.Errorf("%w: %v", ErrInvariant, err))
	}
	r := receipt.New(s, at, q)
	f.ledger.Append(r)
	f.mu.Unlock()

	f.observer.Exited(r)
	return r, nil
}

func (f *Facility) History(ctx context.Context, plate string) []receipt.Receipt {
	return f.ledger.History(NormalizePlate(plate))
}

func (f *Facility) TrafficSnapshot(ctx context.Context) traffic.Snapshot {
	return f.traffic.Snapshot()
}

// Session returns the plate's active session.
func (f *Facility) Session(ctx context.Context, plate string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions.Lookup(NormalizePlate(plate))
	if !ok {
		return session.Session{}, session.ErrUnknownSession
	}
	return s, nil
}

// Quote prices the plate's active session as if it left at the given time,
// without closing it.
func (f *Facility) Quote(ctx context.Context, plate string, at time.Time) (billing.Quote, error) {
	s, err := f.Session(ctx, plate)
	if err != nil {
		return billing.Quote{}, err
	}
	d, err := s.Elapsed(f.at(at))
	if err != nil {
		return billing.Quote{}, err
	}
	return f.billing.Compute(s.Category, d)
}

func (f *Facility) Status(ctx context.Context) Status {
	f.mu.Lock()
	st := Status{ActiveSessions: f.sessions.Len()}
	for _, c := range spot.Categories {
		capacity, free := f.spots.Capacity(c), f.spots.Free(c)
		st.Categories = append(st.Categories, CategoryStatus{
			Category: c,
			Capacity: capacity,
			Free:     free,
			Occupied: capacity - free,
		})
	}
	f.mu.Unlock()
	st.Receipts = f.ledger.Len()
	return st
}

// Spots returns the inventory with current occupancy.
func (f *Facility) Spots(ctx context.Context) []spot.Spot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spots.Spots()
}

func (f *Facility) Billing() *billing.Engine {
	return f.billing
}

// SeedTraffic merges previously persisted hourly counts.
func (f *Facility) SeedTraffic(s traffic.Snapshot) {
	f.traffic.Seed(s)
}

// CheckInvariants verifies that occupied spots and active sessions map one to
// one and that active sessions plus free spots cover the whole inventory.
func (f *Facility) CheckInvariants() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	free := 0
	for _, sp := range f.spots.Spots() {
		holder, held := f.sessions.HolderOf(sp.ID)
		switch {
		case sp.Occupied && !held:
			return fmt.Errorf("%w: spot %d occupied without a session", ErrInvariant, sp.ID)
		case !sp.Occupied && held:
			return fmt.Errorf("%w: spot %d free but held by %s", ErrInvariant, sp.ID, holder)
		case !sp.Occupied:
			free++
		}
	}
	for _, s := range f.sessions.Active() {
		sp, err := f.spots.Get(s.SpotID)
		if err != nil {
			return fmt.Errorf("%w: session %s: %v", ErrInvariant, s.Plate, err)
		}
		if !sp.Occupied || sp.Category != s.Category {
			return fmt.Errorf("%w: session %s does not match spot %d", ErrInvariant, s.Plate, sp.ID)
		}
		if holder, _ := f.sessions.HolderOf(s.SpotID); holder != s.Plate {
			return fmt.Errorf("%w: spot %d bound to %s, session says %s", ErrInvariant, sp.ID, holder, s.Plate)
		}
	}
	if f.sessions.Len()+free != f.spots.Len() {
		return fmt.Errorf("%w: %d sessions + %d free != %d spots", ErrInvariant, f.sessions.Len(), free, f.spots.Len())
	}
	return nil
}
