package gamemaster

import (
	"context"
	"fmt"

	"paddlers.io/internal/persistence/gateway"
	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/tuning"
)

// Pending is the work the store says is outstanding.
type Pending struct {
	Events []event.Event
	// Drafted attacks still need an admission decision.
	Drafted []int64
	// Admitted attacks still need to be put in flight.
	Admitted []store.Attack
}

// Derive reads the pending work from the store. Every event a worker or
// command enqueues matches one of these predicates, so the result equals
// the live queue minus stale events and pending retries.
func Derive(ctx context.Context, s store.Store, t tuning.Tuning) (Pending, error) {
	var p Pending

	villages, err := s.ListVillages(ctx)
	if err != nil {
		return p, fmt.Errorf("list villages: %w", err)
	}
	for _, v := range villages {
		p.Events = append(p.Events, event.NewEconomyTick(v.ID, v.LastTick.Add(t.Economy.TickInterval)))
		if v.NextSpawn != nil {
			p.Events = append(p.Events, event.NewAttackSpawn(v.ID, *v.NextSpawn))
		}
	}

	incomplete, err := s.ListIncompleteBuildings(ctx)
	if err != nil {
		return p, fmt.Errorf("list incomplete buildings: %w", err)
	}
	for _, b := range incomplete {
		p.Events = append(p.Events, event.NewBuildingCompletion(b.ID, b.CompletesAt))
	}

	idle, err := s.ListIdleProducers(ctx, producingTypes(t))
	if err != nil {
		return p, fmt.Errorf("list idle producers: %w", err)
	}
	for _, b := range idle {
		p.Events = append(p.Events, event.NewProductionStart(b.ID, b.CompletesAt))
	}

	tasks, err := s.ListNextTasks(ctx)
	if err != nil {
		return p, fmt.Errorf("list next tasks: %w", err)
	}
	for _, task := range tasks {
		p.Events = append(p.Events, event.NewTaskAdvance(task.UnitID, task.ID, task.Start))
	}

	attacks, err := s.ListAttacks(ctx, store.AttackDrafted, store.AttackAdmitted, store.AttackInFlight, store.AttackArrived)
	if err != nil {
		return p, fmt.Errorf("list attacks: %w", err)
	}
	for _, a := range attacks {
		switch a.State {
		case store.AttackDrafted:
			p.Drafted = append(p.Drafted, a.ID)
		case store.AttackAdmitted:
			p.Admitted = append(p.Admitted, a)
		case store.AttackInFlight, store.AttackArrived:
			p.Events = append(p.Events, event.NewAttackArrival(a.ID, a.Arrival))
		}
	}
	return p, nil
}

func producingTypes(t tuning.Tuning) []string {
	var out []string
	for name, def := range t.Buildings {
		if def.Produces != "" {
			out = append(out, name)
		}
	}
	return out
}

// RecoveryReport summarizes what Recover put back.
type RecoveryReport struct {
	Events   int
	Promoted int
	Admitted int
	Rejected int
}

// Recover rebuilds the queue from the store. It is meant for an empty
// queue at start; events already queued are kept and may be duplicated.
func (c *Coordinator) Recover(ctx context.Context) (RecoveryReport, error) {
	var rep RecoveryReport
	p, err := gateway.Query(ctx, c.gw, "derive_pending", func(ctx context.Context, s store.Store) (Pending, error) {
		return Derive(ctx, s, c.tun)
	})
	if err != nil {
		return rep, err
	}
	for _, ev := range p.Events {
		if c.q.Enqueue(ev) {
			rep.Events++
		}
	}

	for _, a := range p.Admitted {
		id := a.ID
		ok, err := gateway.Query(ctx, c.gw, "promote_attack", func(ctx context.Context, s store.Store) (bool, error) {
			return s.TransitionAttack(ctx, id, store.AttackAdmitted, store.AttackInFlight)
		})
		if err != nil {
			return rep, err
		}
		if ok {
			c.q.Enqueue(event.NewAttackArrival(a.ID, a.Arrival))
			rep.Promoted++
			rep.Events++
		}
	}

	for _, id := range p.Drafted {
		state, err := c.Funnel.Admit(ctx, id)
		if err != nil {
			return rep, fmt.Errorf("admit attack %d: %w", id, err)
		}
		if state == store.AttackRejected {
			rep.Rejected++
		} else {
			rep.Admitted++
		}
	}
	c.logger.Printf("recovered %d events (%d attacks promoted, %d admitted, %d rejected)",
		rep.Events, rep.Promoted, rep.Admitted, rep.Rejected)
	return rep, nil
}
