// README: Facility service tests (entry/exit flow, billing round trip, invalid requests).
package facility

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"park/internal/modules/billing"
	"park/internal/modules/receipt"
	"park/internal/modules/session"
	"park/internal/modules/spot"
	"park/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingObserver struct {
	mu       sync.Mutex
	entered  []session.Session
	exited   []receipt.Receipt
	rejected []error
}

func (o *recordingObserver) Entered(s session.Session) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entered = append(o.entered, s)
}

func (o *recordingObserver) Exited(r receipt.Receipt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exited = append(o.exited, r)
}

func (o *recordingObserver) Rejected(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected = append(o.rejected, err)
}

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func usd(v float64) types.Money { return types.FromMajor(v, "USD") }

// baseConfig: VIP 1-2, regular 3-6, disabled 10.
func baseConfig() Config {
	return Config{
		Layout: []spot.Spot{
			{ID: 1, Category: spot.CategoryVIP},
			{ID: 2, Category: spot.CategoryVIP},
			{ID: 3, Category: spot.CategoryRegular},
			{ID: 4, Category: spot.CategoryRegular},
			{ID: 5, Category: spot.CategoryRegular},
			{ID: 6, Category: spot.CategoryRegular},
			{ID: 10, Category: spot.CategoryDisabled},
		},
		Rates: billing.RateTable{
			spot.CategoryRegular:  usd(5.0),
			spot.CategoryVIP:      usd(8.0),
			spot.CategoryDisabled: usd(2.0),
		},
		MinCharge: usd(5.0),
		Clock:     fixedClock{t: at(12, 0)},
	}
}

func newTestFacility(t *testing.T, mutate ...func(*Config)) *Facility {
	t.Helper()
	cfg := baseConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	f, err := New(cfg)
	if err != nil {
		t.Fatalf("new facility: %v", err)
	}
	return f
}

func mustInvariants(t *testing.T, f *Facility) {
	t.Helper()
	if err := f.CheckInvariants(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func TestScenarioEntryDuplicateExitReuse(t *testing.T) {
	f := newTestFacility(t)
	ctx := context.Background()

	id, err := f.Entry(ctx, EntryCommand{Plate: "ABC123", Category: spot.CategoryRegular, At: at(8, 0)})
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if id != 3 {
		t.Fatalf("expected spot 3, got %d", id)
	}

	_, err = f.Entry(ctx, EntryCommand{Plate: "ABC123", Category: spot.CategoryRegular, At: at(8, 5)})
	if !errors.Is(err, session.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
	if st := f.Status(ctx); st.ActiveSessions != 1 || st.Categories[0].Occupied != 1 {
		t.Fatalf("duplicate entry must not allocate: %+v", st)
	}

	r, err := f.Exit(ctx, ExitCommand{Plate: "ABC123", At: at(9, 30)})
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if r.Seconds != 5400 || r.Duration != 90*time.Minute {
		t.Fatalf("duration = %ds", r.Seconds)
	}
	if r.BilledHours != 2 || r.Total.Amount != 2*500 {
		t.Fatalf("billed %d hours for %d", r.BilledHours, r.Total.Amount)
	}
	if r.SpotID != 3 || r.Category != spot.CategoryRegular {
		t.Fatalf("unexpected receipt: %+v", r)
	}

	if occ, _ := f.spots.Occupied(3); occ {
		t.Fatalf("spot 3 should be free after exit")
	}
	id, err = f.Entry(ctx, EntryCommand{Plate: "NEW999", Category: spot.CategoryRegular, At: at(10, 0)})
	if err != nil || id != 3 {
		t.Fatalf("reuse of spot 3: got %d, %v", id, err)
	}
	mustInvariants(t, f)
}

func TestRoundTripHistory(t *testing.T) {
	f := newTestFacility(t)
	ctx := context.Background()

	visits := []struct{ in, out time.Time }{
		{at(8, 0), at(8, 20)},
		{at(9, 0), at(11, 1)},
		{at(13, 0), at(13, 0)},
	}
	for i, v := range visits {
		if _, err := f.Entry(ctx, EntryCommand{Plate: "abc123 ", Category: spot.CategoryVIP, At: v.in}); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		r, err := f.Exit(ctx, ExitCommand{Plate: "ABC123", At: v.out})
		if err != nil {
			t.Fatalf("exit %d: %v", i, err)
		}
		if r.Duration != v.out.Sub(v.in) || r.Duration < 0 {
			t.Fatalf("visit %d duration = %v", i, r.Duration)
		}
		if r.Total.Amount < f.Billing().MinCharge().Amount {
			t.Fatalf("visit %d below minimum: %d", i, r.Total.Amount)
		}

		h := f.History(ctx, "ABC123")
		if len(h) != i+1 || h[len(h)-1].ID != r.ID {
			t.Fatalf("receipt %d should be last in history", i)
		}
		seen := 0
		for _, hr := range h {
			if hr.ID == r.ID {
				seen++
			}
		}
		if seen != 1 {
			t.Fatalf("receipt appears %d times", seen)
		}
	}

	h := f.History(ctx, "ABC123")
	// VIP 8.00/h: 20m -> 1h = 8.00; 2h01m -> 3h = 24.00; 0s -> minimum 5.00
	want := []int64{800, 2400, 500}
	for i, r := range h {
		if r.Total.Amount != want[i] {
			t.Fatalf("receipt %d total = %d, want %d", i, r.Total.Amount, want[i])
		}
	}
	if got := f.History(ctx, "NEVER"); len(got) != 0 {
		t.Fatalf("unknown plate should have empty history")
	}
}

func TestEntryValidation(t *testing.T) {
	f := newTestFacility(t)
	ctx := context.Background()

	if _, err := f.Entry(ctx, EntryCommand{Plate: "  ", Category: spot.CategoryRegular}); !errors.Is(err, session.ErrEmptyPlate) {
		t.Fatalf("expected ErrEmptyPlate, got %v", err)
	}
	if _, err := f.Entry(ctx, EntryCommand{Plate: "ABC", Category: "valet"}); !errors.Is(err, spot.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if _, err := f.Entry(ctx, EntryCommand{Plate: "D1", Category: spot.CategoryDisabled}); err != nil {
		t.Fatalf("entry: %v", err)
	}
	if _, err := f.Entry(ctx, EntryCommand{Plate: "D2", Category: spot.CategoryDisabled}); !errors.Is(err, spot.ErrSpotUnavailable) {
		t.Fatalf("expected ErrSpotUnavailable, got %v", err)
	}
	mustInvariants(t, f)
}

func TestExitValidation(t *testing.T) {
	f := newTestFacility(t)
	ctx := context.Background()

	if _, err := f.Exit(ctx, ExitCommand{Plate: "GHOST", At: at(9, 0)}); !errors.Is(err, session.ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}

	_, _ = f.Entry(ctx, EntryCommand{Plate: "ABC123", Category: spot.CategoryRegular, At: at(8, 0)})
	if _, err := f.Exit(ctx, ExitCommand{Plate: "ABC123", At: at(7, 59)}); !errors.Is(err, session.ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
	if _, err := f.Session(ctx, "ABC123"); err != nil {
		t.Fatalf("session must survive a rejected exit: %v", err)
	}
	if len(f.History(ctx, "ABC123")) != 0 {
		t.Fatalf("rejected exit must not produce a receipt")
	}
	mustInvariants(t, f)
}

func TestDefaultClockAndQuote(t *testing.T) {
	f := newTestFacility(t)
	ctx := context.Background()

	if _, err := f.Entry(ctx, EntryCommand{Plate: "ABC123", Category: spot.CategoryRegular}); err != nil {
		t.Fatalf("entry: %v", err)
	}
	s, err := f.Session(ctx, "ABC123")
	if err != nil || !s.EnteredAt.Equal(at(12, 0)) {
		t.Fatalf("session = %+v, %v", s, err)
	}

	q, err := f.Quote(ctx, "ABC123", at(15, 10))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.BilledHours != 4 || q.Total.Amount != 2000 {
		t.Fatalf("quote = %+v", q)
	}
	if _, err := f.Quote(ctx, "ABC123", at(11, 0)); !errors.Is(err, session.ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
	if _, err := f.Quote(ctx, "NOPE", at(13, 0)); !errors.Is(err, session.ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
	if !f.Status(ctx).Categories[0].Category.Valid() {
		t.Fatalf("status categories should be populated")
	}
	if _, err := f.Session(ctx, "ABC123"); err != nil {
		t.Fatalf("quote must not close the session")
	}
}

func TestTrafficCountsEntries(t *testing.T) {
	f := newTestFacility(t, func(c *Config) {
		for i := 20; i < 40; i++ {
			c.Layout = append(c.Layout, spot.Spot{ID: spot.ID(i), Category: spot.CategoryRegular})
		}
	})
	ctx := context.Background()

	plates := []string{"A", "B", "C", "D", "E"}
	for i, p := range plates {
		if _, err := f.Entry(ctx, EntryCommand{Plate: p, Category: spot.CategoryRegular, At: at(14, i)}); err != nil {
			t.Fatalf("entry: %v", err)
		}
	}
	_, _ = f.Entry(ctx, EntryCommand{Plate: "A", Category: spot.CategoryRegular, At: at(14, 30)})
	_, _ = f.Exit(ctx, ExitCommand{Plate: "B", At: at(15, 0)})

	snap := f.TrafficSnapshot(ctx)
	if snap[14] != uint64(len(plates)) {
		t.Fatalf("hour 14 = %d, want %d", snap[14], len(plates))
	}
	if snap.Total() != uint64(len(plates)) {
		t.Fatalf("rejected entries and exits must not count: %v", snap)
	}
}

func TestObserverNotified(t *testing.T) {
	obs := &recordingObserver{}
	f := newTestFacility(t, func(c *Config) { c.Observer = Observers{obs} })
	ctx := context.Background()

	_, _ = f.Entry(ctx, EntryCommand{Plate: "ABC123", Category: spot.CategoryVIP, At: at(8, 0)})
	_, _ = f.Entry(ctx, EntryCommand{Plate: "ABC123", Category: spot.CategoryVIP, At: at(8, 1)})
	r, _ := f.Exit(ctx, ExitCommand{Plate: "ABC123", At: at(9, 0)})

	if len(obs.entered) != 1 || obs.entered[0].SpotID != 1 {
		t.Fatalf("entered = %+v", obs.entered)
	}
	if len(obs.exited) != 1 || obs.exited[0].ID != r.ID {
		t.Fatalf("exited = %+v", obs.exited)
	}
	if len(obs.rejected) != 1 || !errors.Is(obs.rejected[0], session.ErrDuplicateSession) {
		t.Fatalf("rejected = %v", obs.rejected)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Layout = append(cfg.Layout, spot.Spot{ID: 3, Category: spot.CategoryVIP})
	if _, err := New(cfg); !errors.Is(err, spot.ErrDuplicateSpot) {
		t.Fatalf("expected duplicate spot error, got %v", err)
	}

	cfg = baseConfig()
	delete(cfg.Rates, spot.CategoryDisabled)
	if _, err := New(cfg); !errors.Is(err, spot.ErrUnknownCategory) {
		t.Fatalf("expected missing rate error, got %v", err)
	}
}

func TestCheckInvariantsDetectsCorruption(t *testing.T) {
	f := newTestFacility(t)
	ctx := context.Background()
	_, _ = f.Entry(ctx, EntryCommand{Plate: "ABC123", Category: spot.CategoryRegular, At: at(8, 0)})
	mustInvariants(t, f)

	// Free the spot behind the tracker's back.
	f.mu.Lock()
	_ = f.spots.Release(3)
	f.mu.Unlock()

	if err := f.CheckInvariants(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
	if _, err := f.Exit(ctx, ExitCommand{Plate: "ABC123", At: at(9, 0)}); !errors.Is(err, ErrInvariant) {
		t.Fatalf("exit over a corrupted spot should report ErrInvariant, got %v", err)
	}
	if len(f.History(ctx, "ABC123")) != 0 {
		t.Fatalf("failed exit must not record a receipt")
	}
}

func TestExitRejectsSpanBeyondDurationRange(t *testing.T) {
	f := newTestFacility(t)
	ctx := context.Background()

	entered := time.Date(1700, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := f.Entry(ctx, EntryCommand{Plate: "OLD1", Category: spot.CategoryRegular, At: entered}); err != nil {
		t.Fatalf("entry: %v", err)
	}
	exit := time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := f.Exit(ctx, ExitCommand{Plate: "OLD1", At: exit}); !errors.Is(err, session.ErrSpanTooLong) {
		t.Fatalf("expected ErrSpanTooLong, got %v", err)
	}
	if _, err := f.Quote(ctx, "OLD1", exit); !errors.Is(err, session.ErrSpanTooLong) {
		t.Fatalf("quote: expected ErrSpanTooLong, got %v", err)
	}
	if _, err := f.Session(ctx, "OLD1"); err != nil || len(f.History(ctx, "OLD1")) != 0 {
		t.Fatalf("rejected exit must keep the session and write no receipt: %v", err)
	}
	mustInvariants(t, f)
}

func TestTimestampsCutToWholeSeconds(t *testing.T) {
	f := newTestFacility(t)
	ctx := context.Background()

	in := at(8, 0).Add(700 * time.Millisecond)
	s, err := f.Admit(ctx, EntryCommand{Plate: "VIP1", Category: spot.CategoryVIP, At: in})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if !s.EnteredAt.Equal(at(8, 0)) || s.SpotID != 1 {
		t.Fatalf("admitted session = %+v", s)
	}

	r, err := f.Exit(ctx, ExitCommand{Plate: "VIP1", At: at(9, 0).Add(500 * time.Millisecond)})
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if r.Duration != time.Hour || r.Seconds != 3600 || r.BilledHours != 1 || r.Total.Amount != 800 {
		t.Fatalf("receipt = %+v", r)
	}
	if r.Duration != r.ExitedAt.Sub(r.EnteredAt) || time.Duration(r.Seconds)*time.Second != r.Duration {
		t.Fatalf("duration %v disagrees with billed seconds %d", r.Duration, r.Seconds)
	}

	_, _ = f.Entry(ctx, EntryCommand{Plate: "VIP2", Category: spot.CategoryVIP, At: at(10, 0).Add(900 * time.Millisecond)})
	r, err = f.Exit(ctx, ExitCommand{Plate: "VIP2", At: at(11, 0).Add(1200 * time.Millisecond)})
	if err != nil || r.Seconds != 3601 || r.BilledHours != 2 || r.Duration != 3601*time.Second {
		t.Fatalf("receipt = %+v, %v", r, err)
	}
}

func TestAdmitMatchesEntry(t *testing.T) {
	f := newTestFacility(t)
	ctx := context.Background()

	s, err := f.Admit(ctx, EntryCommand{Plate: " abc123", Category: spot.CategoryRegular})
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if s.Plate != "ABC123" || s.SpotID != 3 || !s.EnteredAt.Equal(at(12, 0)) {
		t.Fatalf("session = %+v", s)
	}
	if _, err := f.Admit(ctx, EntryCommand{Plate: "ABC123", Category: spot.CategoryRegular}); !errors.Is(err, session.ErrDuplicateSession) {
		t.Fatalf("expected ErrDuplicateSession, got %v", err)
	}
	if id, err := f.Entry(ctx, EntryCommand{Plate: "XYZ", Category: spot.CategoryRegular}); err != nil || id != 4 {
		t.Fatalf("entry = %d, %v", id, err)
	}
	mustInvariants(t, f)
}
