package gamemaster

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"paddlers.io/internal/persistence/gateway"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/eventqueue"
	"paddlers.io/internal/sim/town"
	"paddlers.io/internal/sim/tuning"
)

type Options struct {
	Gateway *gateway.Gateway
	Tuning  tuning.Tuning
	// Queue defaults to a new empty queue.
	Queue *eventqueue.Queue
	// Clock defaults to wall time.
	Clock  clock.Clock
	Logger *log.Logger
	// Journal receives one entry per handled event; nil disables it.
	Journal Recorder
}

// Coordinator owns the queue and the workers and is the entry point for
// player commands.
type Coordinator struct {
	env

	Town    *TownWorker
	Economy *EconomyWorker
	Spawner *AttackSpawner
	Funnel  *AttackFunnel
	loops   []*worker
}

func New(opts Options) (*Coordinator, error) {
	if opts.Gateway == nil {
		return nil, errors.New("gamemaster: nil gateway")
	}
	if err := opts.Tuning.Validate(); err != nil {
		return nil, err
	}
	e := env{
		q:      opts.Queue,
		gw:     opts.Gateway,
		tun:    opts.Tuning,
		layout: town.NewLayout(opts.Tuning.Town.Width, opts.Tuning.Town.Height),
		clk:    opts.Clock,
		logger: opts.Logger,
		rec:    opts.Journal,
	}
	if e.q == nil {
		e.q = eventqueue.New()
	}
	if e.clk == nil {
		e.clk = clock.Real{}
	}
	if e.logger == nil {
		e.logger = log.Default()
	}
	if e.rec == nil {
		e.rec = nopRecorder{}
	}

	c := &Coordinator{env: e}
	c.Town = newTownWorker(e)
	c.Economy = newEconomyWorker(e)
	c.Funnel = newAttackFunnel(e)
	c.Spawner = newAttackSpawner(e, c.Funnel)
	c.loops = []*worker{c.Economy.loop, c.Town.loop, c.Spawner.loop, c.Funnel.loop}
	return c, nil
}

func (c *Coordinator) Queue() *eventqueue.Queue { return c.q }

func (c *Coordinator) Tuning() tuning.Tuning { return c.tun }

// Run starts every worker and blocks until ctx ends or a worker hits a
// fatal failure.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range c.loops {
		w := w
		g.Go(func() error {
			c.logger.Printf("worker %s started", w.name)
			defer c.logger.Printf("worker %s stopped", w.name)
			return w.run(ctx)
		})
	}
	return g.Wait()
}

// ProcessDue lets every worker handle what is due now, repeating until no
// worker finds anything. Follow-on events due immediately are included.
func (c *Coordinator) ProcessDue(ctx context.Context) (int, error) {
	total := 0
	for {
		round := 0
		for _, w := range c.loops {
			n, err := w.processDue(ctx)
			round += n
			if err != nil {
				return total + round, err
			}
		}
		total += round
		if round == 0 || ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

// Stats is a point-in-time view for /metrics and the admin tool.
type Stats struct {
	Queued  int            `json:"queued"`
	ByKind  map[string]int `json:"by_kind"`
	Workers []WorkerStats  `json:"workers"`
	Gateway gateway.Stats  `json:"gateway"`
}

func (c *Coordinator) Stats() Stats {
	byKind := make(map[string]int, len(event.AllKinds()))
	for k, n := range c.q.LenOf() {
		byKind[k.String()] = n
	}
	st := Stats{
		Queued:  c.q.Len(),
		ByKind:  byKind,
		Gateway: c.gw.Stats(),
	}
	for _, w := range c.loops {
		st.Workers = append(st.Workers, w.stats())
	}
	return st
}
