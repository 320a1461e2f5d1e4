package receipt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type flakyStore struct {
	mu       sync.Mutex
	failures int
	calls    int
	saved    []Receipt
}

func (f *flakyStore) Insert(_ context.Context, r Receipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	f.saved = append(f.saved, r)
	return nil
}

func (f *flakyStore) snapshot() (int, []Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]Receipt(nil), f.saved...)
}

func fastConfig() ArchiverConfig {
	return ArchiverConfig{
		Buffer:          4,
		Timeout:         time.Second,
		MaxTries:        3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	}
}

func TestArchiverRetriesTransientFailures(t *testing.T) {
	store := &flakyStore{failures: 2}
	a := NewArchiver(store, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx)
		close(done)
	}()

	a.Exited(sampleReceipt("ABC123", 0))

	deadline := time.Now().Add(2 * time.Second)
	for a.Stats().Written == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	calls, saved := store.snapshot()
	if len(saved) != 1 || calls != 3 {
		t.Fatalf("saved=%d calls=%d, want 1 and 3", len(saved), calls)
	}
	if st := a.Stats(); st.Written != 1 || st.Failed != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestArchiverGivesUpAfterMaxTries(t *testing.T) {
	store := &flakyStore{failures: 100}
	a := NewArchiver(store, fastConfig())

	a.write(context.Background(), sampleReceipt("ABC123", 0))

	calls, saved := store.snapshot()
	if calls != 3 || len(saved) != 0 {
		t.Fatalf("calls=%d saved=%d", calls, len(saved))
	}
	if a.Stats().Failed != 1 {
		t.Fatalf("failed = %d", a.Stats().Failed)
	}
}

func TestArchiverDropsWhenFullAndDrainsOnShutdown(t *testing.T) {
	store := &flakyStore{}
	a := NewArchiver(store, fastConfig())

	for i := 0; i < 6; i++ {
		a.Exited(sampleReceipt("ABC123", i))
	}
	if st := a.Stats(); st.Pending != 4 || st.Dropped != 2 {
		t.Fatalf("unexpected stats before run: %+v", st)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	_, saved := store.snapshot()
	if len(saved) != 4 || a.Stats().Pending != 0 {
		t.Fatalf("drain saved %d, pending %d", len(saved), a.Stats().Pending)
	}
}

func TestArchiverCountsReceiptsAfterShutdownAsDropped(t *testing.T) {
	store := &flakyStore{}
	a := NewArchiver(store, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = a.Run(ctx)
		close(done)
	}()
	a.Exited(sampleReceipt("EARLY1", 0))
	cancel()
	<-done

	a.Exited(sampleReceipt("LATE1", 1))

	_, saved := store.snapshot()
	st := a.Stats()
	if len(saved) != 1 || saved[0].Plate != "EARLY1" {
		t.Fatalf("saved = %+v, want only EARLY1", saved)
	}
	if st.Dropped != 1 || st.Pending != 0 || st.Written != 1 {
		t.Fatalf("unexpected stats after shutdown: %+v", st)
	}
}
