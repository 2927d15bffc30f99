package gamemaster

import (
	"context"
	"sync"

	"paddlers.io/internal/persistence/gateway"
	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/town"
)

// AttackFunnel is the only place attacks are admitted, and it resolves
// them when they arrive.
type AttackFunnel struct {
	env
	loop *worker

	mu    sync.Mutex
	locks map[int64]*villageLock
}

// villageLock serializes admissions against one village. It is dropped
// from the map once nobody holds or waits for it.
type villageLock struct {
	mu   sync.Mutex
	refs int
}

func newAttackFunnel(e env) *AttackFunnel {
	f := &AttackFunnel{env: e, locks: make(map[int64]*villageLock)}
	f.loop = newWorker("funnel", event.Kinds(event.AttackArrival), e, f.handle)
	return f
}

// lock takes the admission lock of a village and returns its release.
func (f *AttackFunnel) lock(villageID int64) (unlock func()) {
	f.mu.Lock()
	l, ok := f.locks[villageID]
	if !ok {
		l = &villageLock{}
		f.locks[villageID] = l
	}
	l.refs++
	f.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		f.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(f.locks, villageID)
		}
		f.mu.Unlock()
	}
}

func (f *AttackFunnel) heldLocks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.locks)
}

// Admit decides a drafted attack against its target's capacity. Admitted
// attacks go in flight and get an AttackArrival at their arrival time.
// Calling it again for a decided attack returns the current state; an
// attack found admitted but not yet in flight is moved along.
// Errors are returned to the caller and never retried here.
func (f *AttackFunnel) Admit(ctx context.Context, attackID int64) (store.AttackState, error) {
	a, err := gateway.Query(ctx, f.gw, "get_attack", func(ctx context.Context, s store.Store) (store.Attack, error) {
		return s.GetAttack(ctx, attackID)
	})
	if err != nil {
		return "", err
	}

	unlock := f.lock(a.TargetVillageID)
	defer unlock()

	state, err := gateway.Query(ctx, f.gw, "admit_attack", func(ctx context.Context, s store.Store) (store.AttackState, error) {
		st, err := s.AdmitAttack(ctx, attackID)
		if err != nil || st != store.AttackAdmitted {
			return st, err
		}
		if _, err := s.TransitionAttack(ctx, attackID, store.AttackAdmitted, store.AttackInFlight); err != nil {
			return st, err
		}
		return store.AttackInFlight, nil
	})
	if err != nil {
		return state, err
	}
	if state == store.AttackInFlight {
		f.q.Enqueue(event.NewAttackArrival(attackID, a.Arrival))
	}
	return state, nil
}

func (f *AttackFunnel) handle(ctx context.Context, ev event.Event) (bool, error) {
	p, ok := ev.Payload.(event.Attack)
	if !ok {
		return false, ev.Validate()
	}
	return f.arrive(ctx, p.AttackID)
}

// auras lists the defensive effects of a village's buildings. A building
// only counts from its completion time on.
func (f *AttackFunnel) auras(bs []store.Building) []town.Aura {
	var out []town.Aura
	for _, b := range bs {
		def, ok := f.tun.Building(b.Type)
		if !ok || def.AuraRange <= 0 || def.AuraEffect == 0 {
			continue
		}
		out = append(out, town.Aura{
			BuildingID: b.ID,
			Tile:       b.Tile,
			Range:      def.AuraRange,
			Effect:     def.AuraEffect,
			Since:      b.CompletesAt,
		})
	}
	return out
}

// arrive moves the attack to arrived, walks its hobos through the town and
// stores the outcome. An attack already arrived is resumed.
func (f *AttackFunnel) arrive(ctx context.Context, attackID int64) (bool, error) {
	a := f.tun.Attacks
	return gateway.Query(ctx, f.gw, "resolve_attack", func(ctx context.Context, s store.Store) (bool, error) {
		att, err := s.GetAttack(ctx, attackID)
		if err != nil {
			return false, err
		}
		switch att.State {
		case store.AttackInFlight:
			ok, err := s.TransitionAttack(ctx, attackID, store.AttackInFlight, store.AttackArrived)
			if err != nil || !ok {
				return false, err
			}
		case store.AttackArrived:
		default:
			return false, nil
		}

		hobos, err := s.AttackingHobos(ctx, attackID)
		if err != nil {
			return false, err
		}
		bs, err := s.ListBuildings(ctx, att.TargetVillageID)
		if err != nil {
			return false, err
		}
		res := town.ResolveDefence(f.layout, f.auras(bs), hobos)
		sat := int64(res.Satisfied)
		return s.ResolveAttack(ctx, attackID, store.AttackOutcome{
			Hobos:      res.Hobos,
			Satisfied:  res.Satisfied,
			Karma:      a.KarmaPerHobo * sat,
			Feathers:   a.FeathersPerHobo * sat,
			ResolvedAt: f.clk.Now(),
		})
	})
}
