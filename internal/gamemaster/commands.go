package gamemaster

import (
	"context"
	"fmt"
	"math"
	"time"

	"paddlers.io/internal/persistence/gateway"
	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/protocol"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/failure"
	"paddlers.io/internal/sim/town"
)

// Execute applies one player command. Rejections come back as
// failure.Validation or failure.Missing carrying a protocol error code.
func (c *Coordinator) Execute(ctx context.Context, cmd protocol.Command) (protocol.Result, error) {
	switch cmd := cmd.(type) {
	case protocol.CreatePlayer:
		return c.createPlayer(ctx, cmd)
	case protocol.PurchaseBuilding:
		return c.purchaseBuilding(ctx, cmd)
	case protocol.DeleteBuilding:
		return c.deleteBuilding(ctx, cmd)
	case protocol.PurchaseProphet:
		return c.purchaseProphet(ctx, cmd)
	case protocol.OverwriteTasks:
		return c.overwriteTasks(ctx, cmd)
	case protocol.CreateAttack:
		return c.createAttack(ctx, cmd)
	case protocol.StoryTransition:
		return c.storyTransition(ctx, cmd)
	case protocol.SubmitStatistics:
		return c.submitStatistics(ctx, cmd)
	case nil:
		return protocol.Result{}, failure.Validation(protocol.ErrBadRequest, "missing command")
	}
	return protocol.Result{}, failure.Validation(protocol.ErrBadRequest, "unsupported command %s", cmd.CommandType())
}

func (c *Coordinator) createPlayer(ctx context.Context, cmd protocol.CreatePlayer) (protocol.Result, error) {
	now := c.clk.Now()
	nextSpawn := now.Add(c.tun.Attacks.SpawnInterval)
	np := store.NewPlayer{
		Name:        cmd.Name,
		StoryState:  c.tun.Story[0],
		X:           cmd.X,
		Y:           cmd.Y,
		Capacity:    c.tun.Attacks.DefaultCapacity,
		Resources:   c.tun.Economy.StartingResources,
		Now:         now,
		NextSpawn:   &nextSpawn,
		Workers:     c.tun.Town.StartingWorkers,
		WorkerHP:    c.tun.Town.WorkerHP,
		WorkerSpeed: c.tun.Town.WorkerSpeed,
	}
	var (
		p store.Player
		v store.Village
	)
	err := c.gw.Do(ctx, "create_player", func(ctx context.Context, s store.Store) error {
		var err error
		p, v, err = s.CreatePlayer(ctx, np)
		return err
	})
	if err != nil {
		return protocol.Result{}, err
	}
	c.q.Enqueue(event.NewEconomyTick(v.ID, now.Add(c.tun.Economy.TickInterval)))
	c.q.Enqueue(event.NewAttackSpawn(v.ID, nextSpawn))
	return protocol.Result{PlayerID: p.ID, VillageID: v.ID}, nil
}

func (c *Coordinator) purchaseBuilding(ctx context.Context, cmd protocol.PurchaseBuilding) (protocol.Result, error) {
	def, ok := c.tun.Building(cmd.BuildingType)
	if !ok {
		return protocol.Result{}, failure.Validation(protocol.ErrBadRequest, "unknown building type %q", cmd.BuildingType)
	}
	tile := town.Tile{X: cmd.X, Y: cmd.Y}
	if err := c.layout.CheckPlacement(tile, nil); err != nil {
		return protocol.Result{}, failure.Validation(protocol.ErrBadRequest, "%v", err)
	}
	now := c.clk.Now()
	b, err := gateway.Query(ctx, c.gw, "purchase_building", func(ctx context.Context, s store.Store) (store.Building, error) {
		return s.PurchaseBuilding(ctx, store.NewBuilding{
			VillageID:   cmd.VillageID,
			Type:        cmd.BuildingType,
			Tile:        tile,
			Cost:        def.Cost,
			Created:     now,
			CompletesAt: now.Add(def.BuildTime),
		})
	})
	if err != nil {
		return protocol.Result{}, err
	}
	c.q.Enqueue(event.NewBuildingCompletion(b.ID, b.CompletesAt))
	return protocol.Result{VillageID: b.VillageID, BuildingID: b.ID, CompletesAt: b.CompletesAt.Micros()}, nil
}

// deleteBuilding leaves any pending events for the building in the queue;
// they find nothing when they come due.
func (c *Coordinator) deleteBuilding(ctx context.Context, cmd protocol.DeleteBuilding) (protocol.Result, error) {
	err := c.gw.Do(ctx, "delete_building", func(ctx context.Context, s store.Store) error {
		return s.DeleteBuilding(ctx, cmd.VillageID, cmd.BuildingID)
	})
	if err != nil {
		return protocol.Result{}, err
	}
	return protocol.Result{VillageID: cmd.VillageID, BuildingID: cmd.BuildingID}, nil
}

func (c *Coordinator) purchaseProphet(ctx context.Context, cmd protocol.PurchaseProphet) (protocol.Result, error) {
	u, err := gateway.Query(ctx, c.gw, "purchase_prophet", func(ctx context.Context, s store.Store) (store.Unit, error) {
		v, err := s.GetVillage(ctx, cmd.VillageID)
		if err != nil {
			return store.Unit{}, err
		}
		p, err := s.GetPlayer(ctx, v.PlayerID)
		if err != nil {
			return store.Unit{}, err
		}
		owned, err := s.CountUnits(ctx, p.ID, store.UnitProphet)
		if err != nil {
			return store.Unit{}, err
		}
		if limit := c.tun.ProphetLimit(p.Karma); owned >= limit {
			return store.Unit{}, failure.Validation(protocol.ErrNoResource,
				"karma %d allows %d prophets, player owns %d", p.Karma, limit, owned)
		}
		return s.PurchaseProphet(ctx, v.ID, c.tun.ProphetPrice(owned), owned)
	})
	if err != nil {
		return protocol.Result{}, err
	}
	return protocol.Result{VillageID: cmd.VillageID, UnitID: u.ID}, nil
}

// overwriteTasks replaces the unit's pending tasks. A task without a start
// time begins when the unit has walked to it from the previous task.
func (c *Coordinator) overwriteTasks(ctx context.Context, cmd protocol.OverwriteTasks) (protocol.Result, error) {
	now := c.clk.Now()
	tasks, err := gateway.Query(ctx, c.gw, "overwrite_tasks", func(ctx context.Context, s store.Store) ([]store.Task, error) {
		u, err := s.GetUnit(ctx, cmd.UnitID)
		if err != nil {
			return nil, err
		}
		if u.HomeVillageID == nil || *u.HomeVillageID != cmd.VillageID {
			return nil, failure.Validation(protocol.ErrBadRequest, "unit %d does not live in village %d", cmd.UnitID, cmd.VillageID)
		}
		if u.Kind == store.UnitHobo {
			return nil, failure.Validation(protocol.ErrBadRequest, "unit %d cannot be given tasks", cmd.UnitID)
		}
		planned, err := c.planTasks(u, cmd.Tasks, now)
		if err != nil {
			return nil, err
		}
		return s.ReplaceTasks(ctx, u.ID, planned)
	})
	if err != nil {
		return protocol.Result{}, err
	}
	res := protocol.Result{VillageID: cmd.VillageID, UnitID: cmd.UnitID}
	for _, t := range tasks {
		res.TaskIDs = append(res.TaskIDs, t.ID)
	}
	if len(tasks) > 0 {
		c.q.Enqueue(event.NewTaskAdvance(cmd.UnitID, tasks[0].ID, tasks[0].Start))
	}
	return res, nil
}

func (c *Coordinator) planTasks(u store.Unit, specs []protocol.TaskSpec, now clock.Timestamp) ([]store.NewTask, error) {
	out := make([]store.NewTask, 0, len(specs))
	start := now
	var prev *town.Tile
	for i, spec := range specs {
		typ := store.TaskType(spec.Type)
		if !typ.Valid() {
			return nil, failure.Validation(protocol.ErrBadRequest, "task %d: unknown type %q", i, spec.Type)
		}
		tile := town.Tile{X: spec.X, Y: spec.Y}
		if !c.layout.Contains(tile) {
			return nil, failure.Validation(protocol.ErrBadRequest, "task %d: tile (%d,%d) outside town", i, tile.X, tile.Y)
		}
		if spec.Start != nil {
			at := clock.FromMicros(*spec.Start)
			if at < now {
				at = now
			}
			if at < start {
				return nil, failure.Validation(protocol.ErrBadRequest, "task %d starts before the task it follows", i)
			}
			start = at
		} else if prev != nil {
			start = start.Add(walkTime(town.Distance(*prev, tile), u.Speed))
		}
		out = append(out, store.NewTask{Type: typ, Tile: tile, Start: start})
		prev = &tile
	}
	return out, nil
}

func walkTime(tiles, tilesPerSecond float64) time.Duration {
	if tiles <= 0 || tilesPerSecond <= 0 {
		return 0
	}
	return time.Duration(math.Round(tiles / tilesPerSecond * float64(time.Second)))
}

// createAttack drafts the attack and admits it before returning. A full
// target is reported as E_CAPACITY with the rejected attack in the result.
func (c *Coordinator) createAttack(ctx context.Context, cmd protocol.CreateAttack) (protocol.Result, error) {
	now := c.clk.Now()
	a, err := gateway.Query(ctx, c.gw, "draft_attack", func(ctx context.Context, s store.Store) (store.Attack, error) {
		if _, err := s.GetVillage(ctx, cmd.FromVillageID); err != nil {
			return store.Attack{}, err
		}
		target, err := s.VillageAt(ctx, cmd.To.X, cmd.To.Y)
		if err != nil {
			return store.Attack{}, err
		}
		return s.DraftAttack(ctx, store.NewAttack{
			OriginVillageID: cmd.FromVillageID,
			TargetVillageID: target.ID,
			UnitIDs:         cmd.UnitIDs,
			Departure:       now,
			Arrival:         now.Add(c.tun.Attacks.TravelTime),
		})
	})
	if err != nil {
		return protocol.Result{}, err
	}
	state, err := c.Funnel.Admit(ctx, a.ID)
	res := protocol.Result{VillageID: a.TargetVillageID, AttackID: a.ID, AttackState: string(state), Arrival: a.Arrival.Micros()}
	if err != nil {
		return res, err
	}
	if state == store.AttackRejected {
		return res, failure.Validation(protocol.ErrCapacity, "village %d cannot take more visitors", a.TargetVillageID)
	}
	return res, nil
}

func (c *Coordinator) storyTransition(ctx context.Context, cmd protocol.StoryTransition) (protocol.Result, error) {
	if err := town.StoryTransition(c.tun.Story, cmd.From, cmd.To); err != nil {
		return protocol.Result{}, failure.Validation(protocol.ErrBadRequest, "%v", err)
	}
	ok, err := gateway.Query(ctx, c.gw, "story_transition", func(ctx context.Context, s store.Store) (bool, error) {
		if _, err := s.GetPlayer(ctx, cmd.PlayerID); err != nil {
			return false, err
		}
		return s.TransitionStory(ctx, cmd.PlayerID, cmd.From, cmd.To)
	})
	if err != nil {
		return protocol.Result{}, err
	}
	if !ok {
		return protocol.Result{}, failure.Validation(protocol.ErrConflict, "player %d is not in story state %s", cmd.PlayerID, cmd.From)
	}
	return protocol.Result{PlayerID: cmd.PlayerID}, nil
}

func (c *Coordinator) submitStatistics(ctx context.Context, cmd protocol.SubmitStatistics) (protocol.Result, error) {
	raw := string(cmd.Details)
	if raw == "" {
		raw = "{}"
	}
	err := c.gw.Do(ctx, "insert_statistics", func(ctx context.Context, s store.Store) error {
		if _, err := s.GetPlayer(ctx, cmd.PlayerID); err != nil {
			return err
		}
		return s.InsertStatistics(ctx, store.Statistics{
			PlayerID:        cmd.PlayerID,
			SessionDuration: time.Duration(cmd.SessionDurationMs) * time.Millisecond,
			FPS:             cmd.FPS,
			Raw:             raw,
			RecordedAt:      c.clk.Now(),
		})
	})
	if err != nil {
		return protocol.Result{}, fmt.Errorf("submit statistics: %w", err)
	}
	return protocol.Result{PlayerID: cmd.PlayerID}, nil
}
