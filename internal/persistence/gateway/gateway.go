// Package gateway runs store operations on a fixed pool of goroutines so
// worker loops never block on database I/O themselves.
//
// The gateway adds no locking of its own. Operations from different callers
// run concurrently; conflicting writes are serialized by the store.
package gateway

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/failure"
	"paddlers.io/internal/telemetry"
)

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = errors.New("store gateway closed")

// Op is one blocking store operation.
type Op func(ctx context.Context, s store.Store) error

type job struct {
	ctx  context.Context
	name string
	op   Op
	done chan error
}

type Gateway struct {
	st     store.Store
	logger *log.Logger
	size   int

	jobs chan job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	inFlight  atomic.Int64
}

// Stats is a point-in-time view of the gateway counters.
type Stats struct {
	Size      int   `json:"size"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	InFlight  int64 `json:"in_flight"`
	Queued    int   `json:"queued"`
}

// New starts size executors over st.
func New(st store.Store, size int, logger *log.Logger) *Gateway {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = log.Default()
	}
	g := &Gateway{
		st:     st,
		logger: logger,
		size:   size,
		jobs:   make(chan job, size*64),
	}
	for i := 0; i < size; i++ {
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			g.loop()
		}()
	}
	return g
}

func (g *Gateway) loop() {
	for j := range g.jobs {
		j.done <- g.run(j)
	}
}

func (g *Gateway) run(j job) (err error) {
	g.inFlight.Add(1)
	defer g.inFlight.Add(-1)

	if err := j.ctx.Err(); err != nil {
		g.failed.Add(1)
		return failure.Store(j.name, err)
	}

	ctx, span := telemetry.Start(j.ctx, "store."+j.name, attribute.String("store.op", j.name))
	defer func() {
		if r := recover(); r != nil {
			g.logger.Printf("store op %s panicked: %v", j.name, r)
			err = failure.Store(j.name, errors.New("panic in store op"))
		}
		telemetry.End(span, err)
		if err != nil {
			g.failed.Add(1)
		} else {
			g.completed.Add(1)
		}
	}()

	return failure.Store(j.name, j.op(ctx, g.st))
}

// Submit queues op and returns a channel that receives its result.
func (g *Gateway) Submit(ctx context.Context, name string, op Op) <-chan error {
	done := make(chan error, 1)

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		done <- ErrClosed
		return done
	}
	g.submitted.Add(1)
	select {
	case g.jobs <- job{ctx: ctx, name: name, op: op, done: done}:
	case <-ctx.Done():
		g.failed.Add(1)
		done <- failure.Store(name, ctx.Err())
	}
	return done
}

// Do runs op on the pool and waits for it.
func (g *Gateway) Do(ctx context.Context, name string, op Op) error {
	select {
	case err := <-g.Submit(ctx, name, op):
		return err
	case <-ctx.Done():
		return failure.Store(name, ctx.Err())
	}
}

// Query runs fn on the pool and returns its value.
func Query[T any](ctx context.Context, g *Gateway, name string, fn func(ctx context.Context, s store.Store) (T, error)) (T, error) {
	result := make(chan T, 1)
	err := g.Do(ctx, name, func(ctx context.Context, s store.Store) error {
		v, err := fn(ctx, s)
		if err != nil {
			return err
		}
		result <- v
		return nil
	})
	var out T
	if err != nil {
		return out, err
	}
	return <-result, nil
}

func (g *Gateway) Stats() Stats {
	return Stats{
		Size:      g.size,
		Submitted: g.submitted.Load(),
		Completed: g.completed.Load(),
		Failed:    g.failed.Load(),
		InFlight:  g.inFlight.Load(),
		Queued:    len(g.jobs),
	}
}

// Close stops accepting work, finishes queued operations and waits for the
// executors to exit.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.jobs)
	g.mu.Unlock()
	g.wg.Wait()
}
