package gamemaster

import (
	"context"

	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/town"
)

// AttackSpawner sends visitors to villages on a fixed schedule.
type AttackSpawner struct {
	env
	loop   *worker
	funnel *AttackFunnel
}

func newAttackSpawner(e env, funnel *AttackFunnel) *AttackSpawner {
	w := &AttackSpawner{env: e, funnel: funnel}
	w.loop = newWorker("spawner", event.Kinds(event.AttackSpawn), e, w.handle)
	return w
}

func (w *AttackSpawner) handle(ctx context.Context, ev event.Event) (bool, error) {
	p, ok := ev.Payload.(event.Village)
	if !ok {
		return false, ev.Validate()
	}
	return w.spawn(ctx, ev, p.VillageID)
}

// spawn moves next_spawn one interval forward and, if the roll says so,
// drafts an attack of fresh hobos in the same write. Only the event whose
// scheduled time matches next_spawn does anything; a retry keeps that time.
func (w *AttackSpawner) spawn(ctx context.Context, ev event.Event, villageID int64) (bool, error) {
	a := w.tun.Attacks
	at := ev.Scheduled()
	next := at.Add(a.SpawnInterval)
	var (
		attack  *store.Attack
		applied bool
	)
	err := w.gw.Do(ctx, "spawn_attack", func(ctx context.Context, s store.Store) error {
		v, err := s.GetVillage(ctx, villageID)
		if err != nil {
			return err
		}
		if v.NextSpawn == nil || *v.NextSpawn != at {
			return nil
		}
		p, err := s.GetPlayer(ctx, v.PlayerID)
		if err != nil {
			return err
		}
		var draft *store.SpawnDraft
		roll := town.RollSpawn(w.tun, villageID, at, w.tun.StoryIndex(p.StoryState))
		if roll.Spawn {
			draft = &store.SpawnDraft{
				Hobos:     roll.Hobos,
				Departure: at,
				Arrival:   at.Add(a.TravelTime),
			}
		}
		attack, applied, err = s.SpawnAttack(ctx, villageID, at, next, draft)
		return err
	})
	if err != nil || !applied {
		return false, err
	}
	w.q.Enqueue(event.NewAttackSpawn(villageID, next))

	if attack != nil {
		// A drafted attack left behind by a failed admission is admitted
		// again on recovery.
		state, err := w.funnel.Admit(ctx, attack.ID)
		if err != nil {
			w.loop.logger.Printf("admit spawned attack %d: %v", attack.ID, err)
			return true, nil
		}
		w.loop.logger.Printf("spawned attack %d on village %d: %s", attack.ID, villageID, state)
	}
	return true, nil
}
