package gamemaster

import (
	"context"

	"paddlers.io/internal/persistence/gateway"
	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/town"
	"paddlers.io/internal/sim/tuning"
)

// EconomyWorker accrues village resources and starts production.
type EconomyWorker struct {
	env
	loop *worker
}

func newEconomyWorker(e env) *EconomyWorker {
	w := &EconomyWorker{env: e}
	w.loop = newWorker("economy", event.Kinds(event.EconomyTick, event.ProductionStart), e, w.handle)
	return w
}

func (w *EconomyWorker) handle(ctx context.Context, ev event.Event) (bool, error) {
	switch p := ev.Payload.(type) {
	case event.Village:
		return w.tick(ctx, ev, p.VillageID)
	case event.Building:
		return w.startProduction(ctx, p.BuildingID)
	}
	return false, ev.Validate()
}

// producers lists the buildings of bs that yield resources.
func (w *EconomyWorker) producers(bs []store.Building) []town.Producer {
	var out []town.Producer
	for _, b := range bs {
		if b.ProducingSince == nil {
			continue
		}
		def, ok := w.tun.Building(b.Type)
		if !ok || def.Produces == "" {
			continue
		}
		out = append(out, town.Producer{
			BuildingID:  b.ID,
			Resource:    def.Produces,
			RatePerHour: def.RatePerHour,
			Since:       *b.ProducingSince,
		})
	}
	return out
}

// tick credits what the village produced over (last_tick, now] and moves
// last_tick to now. A tick due before last_tick+interval belongs to a
// window already accounted for and is dropped.
func (w *EconomyWorker) tick(ctx context.Context, ev event.Event, villageID int64) (bool, error) {
	interval := w.tun.Economy.TickInterval
	var (
		applied bool
		next    clock.Timestamp
	)
	err := w.gw.Do(ctx, "economy_tick", func(ctx context.Context, s store.Store) error {
		v, err := s.GetVillage(ctx, villageID)
		if err != nil {
			return err
		}
		if ev.Scheduled() < v.LastTick.Add(interval) {
			return nil
		}
		bs, err := s.ListBuildings(ctx, villageID)
		if err != nil {
			return err
		}
		now := w.clk.Now()
		if now < v.LastTick {
			now = v.LastTick
		}
		delta := town.Accrue(w.producers(bs), v.LastTick, now)
		applied, err = s.ApplyEconomyTick(ctx, villageID, v.LastTick, now, delta)
		next = now.Add(interval)
		return err
	})
	if err != nil || !applied {
		return false, err
	}
	w.q.Enqueue(event.NewEconomyTick(villageID, next))
	return true, nil
}

// startProduction marks a completed producer as producing since it was
// completed. When ticks already ran past the completion time, as after
// downtime, the yield of (completes_at, last_tick] is credited with it.
func (w *EconomyWorker) startProduction(ctx context.Context, buildingID int64) (bool, error) {
	return gateway.Query(ctx, w.gw, "start_production", func(ctx context.Context, s store.Store) (bool, error) {
		b, err := s.GetBuilding(ctx, buildingID)
		if err != nil {
			return false, err
		}
		def, ok := w.tun.Building(b.Type)
		if !ok || def.Produces == "" {
			return false, nil
		}
		p := town.Producer{
			BuildingID:  b.ID,
			Resource:    def.Produces,
			RatePerHour: def.RatePerHour,
			Since:       b.CompletesAt,
		}
		return s.StartProduction(ctx, buildingID, b.CompletesAt, func(lastTick clock.Timestamp) tuning.Price {
			return town.Accrue([]town.Producer{p}, p.Since, lastTick)
		})
	})
}
