// README: Asynchronous receipt archiver; persists closed sessions with timeout and retry.
package receipt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"park/internal/logging"
	"park/internal/modules/session"
)

type Inserter interface {
	Insert(ctx context.Context, r Receipt) error
}

type ArchiverConfig struct {
	Buffer   int
	Timeout  time.Duration
	MaxTries uint
	// InitialInterval and MaxInterval bound the exponential retry delay.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Archiver receives receipts from the facility without blocking it and writes
// them to the archive store in the background.
type Archiver struct {
	store Inserter
	cfg   ArchiverConfig
	queue chan Receipt

	// mu orders enqueues against the shutdown drain; closed is set once Run
	// has stopped reading and every later receipt counts as dropped.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

func NewArchiver(store Inserter, cfg ArchiverConfig) *Archiver {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 5 * time.Second
	}
	return &Archiver{store: store, cfg: cfg, queue: make(chan Receipt, cfg.Buffer)}
}

func (a *Archiver) Entered(session.Session) {}

func (a *Archiver) Rejected(string, error) {}

// Exited enqueues the receipt. When the buffer is full, or Run has already
// shut down, the receipt is dropped from the archive (it stays in the
// in-memory ledger).
func (a *Archiver) Exited(r Receipt) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(r, "archive stopped, receipt not persisted")
		return
	}
	select {
	case a.queue <- r:
	default:
		a.drop(r, "archive queue full, receipt not persisted")
	}
}

func (a *Archiver) drop(r Receipt, msg string) {
	a.dropped.Add(1)
	logging.Logger().Warn().Str("receipt_id", r.ID).Str("plate", r.Plate).Msg(msg)
}

// Run drains the queue until ctx is cancelled, then closes the archiver and
// flushes what is left. A write in flight at cancellation finishes its retries.
// Cancel ctx only after the last exit has been served.
func (a *Archiver) Run(ctx context.Context) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.closed = true
			a.mu.Unlock()
			a.drain()
			return nil
		case r := <-a.queue:
			a.write(wctx, r)
		}
	}
}

func (a *Archiver) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout*time.Duration(len(a.queue)+1))
	defer cancel()
	for {
		select {
		case r := <-a.queue:
			a.write(ctx, r)
		default:
			return
		}
	}
}

func (a *Archiver) write(ctx context.Context, r Receipt) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = a.cfg.InitialInterval
	bo.MaxInterval = a.cfg.MaxInterval

	tries := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		tries++
		callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
		return struct{}{}, a.store.Insert(callCtx, r)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(a.cfg.MaxTries),
	)
	if err != nil {
		a.failed.Add(1)
		logging.Logger().Error().Err(err).Str("receipt_id", r.ID).Int("tries", tries).Msg("archive receipt")
		return
	}
	a.written.Add(1)
}

type ArchiverStats struct {
	Pending int    `json:"pending"`
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

func (a *Archiver) Stats() ArchiverStats {
	return ArchiverStats{
		Pending: len(a.queue),
		Written: a.written.Load(),
		Failed:  a.failed.Load(),
		Dropped: a.dropped.Load(),
	}
}
