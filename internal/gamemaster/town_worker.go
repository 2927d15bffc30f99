package gamemaster

import (
	"context"
	"log"

	"paddlers.io/internal/persistence/gateway"
	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/eventqueue"
	"paddlers.io/internal/sim/town"
	"paddlers.io/internal/sim/tuning"
)

// env is what every worker shares.
type env struct {
	q      *eventqueue.Queue
	gw     *gateway.Gateway
	tun    tuning.Tuning
	layout town.Layout
	clk    clock.Clock
	logger *log.Logger
	rec    Recorder
}

// TownWorker completes buildings and advances unit tasks.
type TownWorker struct {
	env
	loop *worker
}

func newTownWorker(e env) *TownWorker {
	w := &TownWorker{env: e}
	w.loop = newWorker("town", event.Kinds(event.BuildingCompletion, event.TaskAdvance), e, w.handle)
	return w
}

func (w *TownWorker) handle(ctx context.Context, ev event.Event) (bool, error) {
	switch p := ev.Payload.(type) {
	case event.Building:
		return w.completeBuilding(ctx, p.BuildingID)
	case event.Task:
		return w.advanceTask(ctx, p.UnitID, p.TaskID)
	}
	return false, ev.Validate()
}

// completeBuilding flips the building to completed; producers then get a
// ProductionStart at their completion time.
func (w *TownWorker) completeBuilding(ctx context.Context, id int64) (bool, error) {
	var (
		b       store.Building
		applied bool
	)
	err := w.gw.Do(ctx, "complete_building", func(ctx context.Context, s store.Store) error {
		var err error
		if b, err = s.GetBuilding(ctx, id); err != nil {
			return err
		}
		applied, err = s.CompleteBuilding(ctx, id)
		return err
	})
	if err != nil || !applied {
		return false, err
	}
	if def, ok := w.tun.Building(b.Type); ok && def.Produces != "" {
		w.q.Enqueue(event.NewProductionStart(b.ID, b.CompletesAt))
	}
	return true, nil
}

// advanceTask starts the task, which finishes the one before it and
// credits its reward, then schedules the unit's next pending task.
func (w *TownWorker) advanceTask(ctx context.Context, unitID, taskID int64) (bool, error) {
	adv, err := gateway.Query(ctx, w.gw, "start_task", func(ctx context.Context, s store.Store) (store.TaskAdvance, error) {
		return s.StartTask(ctx, unitID, taskID, w.tun.TaskRewards)
	})
	if err != nil || !adv.Applied {
		return false, err
	}
	if adv.Next != nil {
		w.q.Enqueue(event.NewTaskAdvance(adv.Next.UnitID, adv.Next.ID, adv.Next.Start))
	}
	return true, nil
}
