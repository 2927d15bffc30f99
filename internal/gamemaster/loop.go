// Package gamemaster runs the simulation: domain workers that consume due
// events from the shared queue, the attack funnel that admits attacks, and
// the coordinator that turns player commands into store writes and events.
package gamemaster

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"paddlers.io/internal/persistence/journal"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/eventqueue"
	"paddlers.io/internal/sim/tuning"
	"paddlers.io/internal/telemetry"
)

// Recorder receives one entry per handled event.
type Recorder interface {
	Record(e journal.Entry) error
}

type nopRecorder struct{}

func (nopRecorder) Record(journal.Entry) error { return nil }

// handleFunc processes one claimed event. It reports false when the event
// found nothing to do (already applied or stale).
type handleFunc func(ctx context.Context, ev event.Event) (bool, error)

// WorkerStats counts what a worker did since start.
type WorkerStats struct {
	Name     string          `json:"name"`
	Done     int64           `json:"done"`
	Skipped  int64           `json:"skipped"`
	Retried  int64           `json:"retried"`
	Dead     int64           `json:"dead"`
	LastPoll clock.Timestamp `json:"last_poll"`
}

// worker is the loop shared by every domain worker. Its only state is the
// time of the last poll and its counters.
type worker struct {
	name   string
	kinds  event.KindSet
	q      *eventqueue.Queue
	clk    clock.Clock
	sched  tuning.Scheduler
	logger *log.Logger
	rec    Recorder
	handle handleFunc

	lastPoll atomic.Int64
	done     atomic.Int64
	skipped  atomic.Int64
	retried  atomic.Int64
	dead     atomic.Int64
}

func newWorker(name string, kinds event.KindSet, e env, handle handleFunc) *worker {
	return &worker{
		name:   name,
		kinds:  kinds,
		q:      e.q,
		clk:    e.clk,
		sched:  e.tun.Scheduler,
		logger: log.New(e.logger.Writer(), e.logger.Prefix()+"["+name+"] ", e.logger.Flags()),
		rec:    e.rec,
		handle: handle,
	}
}

// run claims and dispatches owned events until ctx ends. It sleeps until
// the next owned event is due, at most MaxPollInterval, and wakes early
// when anything is enqueued.
func (w *worker) run(ctx context.Context) error {
	for ctx.Err() == nil {
		changed := w.q.Changed()
		if _, err := w.processDue(ctx); err != nil {
			return err
		}

		wait := w.sched.MaxPollInterval
		if next, ok := w.q.TimeOfNextOf(w.kinds); ok {
			if d := next.Sub(w.clk.Now()); d < wait {
				wait = d
			}
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-changed:
		case <-timer.C:
		}
		timer.Stop()
	}
	return nil
}

// processDue handles every owned event due now. Only a fatal failure stops
// it; everything else is contained per event.
func (w *worker) processDue(ctx context.Context) (int, error) {
	n := 0
	for ctx.Err() == nil {
		now := w.clk.Now()
		w.lastPoll.Store(int64(now))
		ev, ok := w.q.ClaimNextOf(now, w.kinds)
		if !ok {
			return n, nil
		}
		n++
		if err := w.dispatch(ctx, ev, now); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (w *worker) dispatch(ctx context.Context, ev event.Event, claimedAt clock.Timestamp) error {
	ctx, span := telemetry.Start(ctx, "worker."+w.name,
		attribute.String("event.kind", ev.Kind.String()),
		attribute.Int64("event.due", int64(ev.Due)),
		attribute.Int("event.attempt", ev.Attempt),
	)
	applied, err := w.handle(ctx, ev)
	telemetry.End(span, err)

	if err == nil {
		outcome := journal.OutcomeDone
		if applied {
			w.done.Add(1)
		} else {
			outcome = journal.OutcomeSkipped
			w.skipped.Add(1)
		}
		w.record(ev, claimedAt, outcome, nil)
		return nil
	}

	switch policyFor(ev.Kind).decide(err) {
	case actionFatal:
		w.logger.Printf("fatal while handling %s: %v", ev, err)
		w.record(ev, claimedAt, journal.OutcomeDead, err)
		return err
	case actionSkipSilent:
		w.skipped.Add(1)
		w.record(ev, claimedAt, journal.OutcomeSkipped, err)
	case actionSkipWarn:
		w.skipped.Add(1)
		w.logger.Printf("skip %s: %v", ev, err)
		w.record(ev, claimedAt, journal.OutcomeSkipped, err)
	case actionRetry:
		if ev.Attempt+1 >= w.sched.MaxAttempts {
			w.dead.Add(1)
			w.logger.Printf("giving up on %s after %d attempts: %v", ev, ev.Attempt+1, err)
			w.record(ev, claimedAt, journal.OutcomeDead, err)
			return nil
		}
		retry := ev.Retry(claimedAt.Add(retryDelay(w.sched, ev.Attempt)))
		w.q.Enqueue(retry)
		w.retried.Add(1)
		w.logger.Printf("retry %s at %s: %v", ev, retry.Due, err)
		w.record(ev, claimedAt, journal.OutcomeRetry, err)
	}
	return nil
}

func (w *worker) record(ev event.Event, claimedAt clock.Timestamp, outcome journal.Outcome, err error) {
	if rerr := w.rec.Record(journal.NewEntry(w.name, ev, claimedAt, outcome, err)); rerr != nil {
		w.logger.Printf("journal: %v", rerr)
	}
}

func (w *worker) stats() WorkerStats {
	return WorkerStats{
		Name:     w.name,
		Done:     w.done.Load(),
		Skipped:  w.skipped.Load(),
		Retried:  w.retried.Load(),
		Dead:     w.dead.Load(),
		LastPoll: clock.Timestamp(w.lastPoll.Load()),
	}
}

// retryDelay is RetryBackoff doubled per previous attempt, capped at
// RetryMaxDelay.
func retryDelay(s tuning.Scheduler, attempt int) time.Duration {
	d := s.RetryBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= s.RetryMaxDelay {
			return s.RetryMaxDelay
		}
	}
	if d > s.RetryMaxDelay {
		return s.RetryMaxDelay
	}
	return d
}
