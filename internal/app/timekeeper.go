package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// minFlushSeconds suppresses near-zero no-op writes: an elapsed span must
// exceed one whole second before it is flushed.
const minFlushSeconds = 1

// TimeAccountant accumulates one session's elapsed time into the ledger on
// a fixed schedule, and once more on shutdown. It writes through
// LedgerStore.AddTime, which is additive and commutative, so concurrent
// accountants for the same learner (multiple tabs/devices) never need the
// CAS path. The last-flush mark moves only when a write has been issued;
// a skipped flush keeps accumulating into the next one.
type TimeAccountant struct {
	store    LedgerStore
	userID   string
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger
	failures chan<- WriteFailure

	mu        sync.Mutex
	lastFlush time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewTimeAccountant(store LedgerStore, userID string, interval time.Duration, log *zap.Logger, failures chan<- WriteFailure) *TimeAccountant {
	return newTimeAccountantWithClock(store, userID, interval, log, failures, time.Now)
}

// newTimeAccountantWithClock allows deterministic timestamps in tests.
func newTimeAccountantWithClock(store LedgerStore, userID string, interval time.Duration, log *zap.Logger, failures chan<- WriteFailure, now func() time.Time) *TimeAccountant {
	return &TimeAccountant{
		store:     store,
		userID:    userID,
		interval:  interval,
		now:       now,
		log:       log,
		failures:  failures,
		lastFlush: now(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run flushes on every tick until Stop or context cancellation, then
// flushes one final time. Call in its own goroutine.
func (a *TimeAccountant) Run(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Flush(ctx)
		case <-a.stop:
			a.Flush(ctx)
			return
		case <-ctx.Done():
			a.Flush(context.WithoutCancel(ctx))
			return
		}
	}
}

// Stop triggers the final flush and waits for Run to return. Safe to call
// more than once.
func (a *TimeAccountant) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	<-a.done
}

// Flush writes the whole seconds elapsed since the last flush, when above
// the minimum threshold. The write is fire-and-forget: an error is reported
// on the side channel, not retried, since a superseding flush follows.
func (a *TimeAccountant) Flush(ctx context.Context) {
	a.mu.Lock()
	now := a.now()
	seconds := int64(now.Sub(a.lastFlush) / time.Second)
	if seconds <= minFlushSeconds {
		a.mu.Unlock()
		return
	}
	a.lastFlush = now
	a.mu.Unlock()

	if err := a.store.AddTime(ctx, a.userID, seconds); err != nil {
		a.log.Warn("time flush failed", zap.String("user", a.userID), zap.Int64("seconds", seconds), zap.Error(err))
		if a.failures != nil {
			select {
			case a.failures <- WriteFailure{UserID: a.userID, Op: "addTime", Err: err}:
			default:
			}
		}
	}
}
