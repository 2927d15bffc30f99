package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/failure"
	"paddlers.io/internal/sim/town"
	"paddlers.io/internal/sim/tuning"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "paddlers.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedPlayer(t *testing.T, s *Store, x, y, capacity int, res tuning.Price) (store.Player, store.Village) {
	t.Helper()
	spawn := clock.FromSeconds(600)
	p, v, err := s.CreatePlayer(context.Background(), store.NewPlayer{
		Name: "duck", StoryState: "temple_built", X: x, Y: y, Capacity: capacity,
		Resources: res, Now: clock.FromSeconds(0), NextSpawn: &spawn,
		Workers: 1, WorkerHP: 3, WorkerSpeed: 0.5,
	})
	if err != nil {
		t.Fatalf("create player: %v", err)
	}
	return p, v
}

func TestOpenIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paddlers.sqlite")
	for i := 0; i < 2; i++ {
		s, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("ping: %v", err)
		}
		_ = s.Close()
	}
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatalf("empty path accepted")
	}
}

func TestCreatePlayer(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	p, v := seedPlayer(t, s, 1, 2, 3, tuning.Price{Feathers: 10})

	got, err := s.GetVillage(ctx, v.ID)
	if err != nil {
		t.Fatalf("get village: %v", err)
	}
	if got.PlayerID != p.ID || got.Resources.Feathers != 10 || got.NextSpawn == nil || *got.NextSpawn != clock.FromSeconds(600) {
		t.Fatalf("village=%+v", got)
	}
	units, err := s.ListUnits(ctx, v.ID)
	if err != nil || len(units) != 1 || units[0].Kind != store.UnitBasic {
		t.Fatalf("units=%+v err=%v", units, err)
	}

	_, _, err = s.CreatePlayer(ctx, store.NewPlayer{Name: "other", X: 1, Y: 2, Capacity: 1})
	if !failure.IsValidation(err) || failure.CodeOf(err) != "E_CONFLICT" {
		t.Fatalf("duplicate position: err=%v", err)
	}
	if _, err := s.GetPlayer(ctx, 999); !failure.IsMissing(err) {
		t.Fatalf("missing player err=%v", err)
	}
}

func TestApplyEconomyTickIsCompareAndSet(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, v := seedPlayer(t, s, 0, 0, 1, tuning.Price{})

	delta := tuning.Price{Sticks: 5}
	next := clock.FromSeconds(60)
	ok, err := s.ApplyEconomyTick(ctx, v.ID, v.LastTick, next, delta)
	if err != nil || !ok {
		t.Fatalf("first apply ok=%v err=%v", ok, err)
	}
	ok, err = s.ApplyEconomyTick(ctx, v.ID, v.LastTick, next, delta)
	if err != nil || ok {
		t.Fatalf("second apply with same window ok=%v err=%v", ok, err)
	}
	got, _ := s.GetVillage(ctx, v.ID)
	if got.Resources.Sticks != 5 || got.LastTick != next {
		t.Fatalf("village after ticks=%+v", got)
	}
}

func TestStartProductionCreditsBacklog(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, v := seedPlayer(t, s, 0, 0, 1, tuning.Price{Feathers: 30})

	b, err := s.PurchaseBuilding(ctx, store.NewBuilding{
		VillageID: v.ID, Type: "bundling_station", Tile: town.Tile{X: 2, Y: 2},
		Created: 0, CompletesAt: clock.FromSeconds(120),
	})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := s.CompleteBuilding(ctx, b.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// The village ticked to 1h before production started.
	if ok, err := s.ApplyEconomyTick(ctx, v.ID, v.LastTick, clock.FromSeconds(3600), tuning.Price{}); err != nil || !ok {
		t.Fatalf("tick ok=%v err=%v", ok, err)
	}

	var gotLastTick clock.Timestamp
	backlog := func(lastTick clock.Timestamp) tuning.Price {
		gotLastTick = lastTick
		return tuning.Price{Sticks: 29}
	}
	if ok, err := s.StartProduction(ctx, b.ID, clock.FromSeconds(120), backlog); err != nil || !ok {
		t.Fatalf("start production ok=%v err=%v", ok, err)
	}
	if gotLastTick != clock.FromSeconds(3600) {
		t.Fatalf("backlog last_tick=%s want=%s", gotLastTick, clock.FromSeconds(3600))
	}
	got, _ := s.GetVillage(ctx, v.ID)
	if got.Resources.Sticks != 29 || got.LastTick != clock.FromSeconds(3600) {
		t.Fatalf("village=%+v want sticks=29 last_tick unchanged", got)
	}

	// A second start credits nothing.
	if ok, err := s.StartProduction(ctx, b.ID, clock.FromSeconds(120), backlog); err != nil || ok {
		t.Fatalf("second start ok=%v err=%v", ok, err)
	}
	if again, _ := s.GetVillage(ctx, v.ID); again.Resources != got.Resources {
		t.Fatalf("resources changed on second start: %+v -> %+v", got.Resources, again.Resources)
	}
	if _, err := s.StartProduction(ctx, 999, 0, backlog); !failure.IsMissing(err) {
		t.Fatalf("missing building err=%v", err)
	}
}

func TestPurchaseBuilding(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, v := seedPlayer(t, s, 0, 0, 1, tuning.Price{Feathers: 30})

	nb := store.NewBuilding{
		VillageID: v.ID, Type: "blue_flowers", Tile: town.Tile{X: 2, Y: 2},
		Cost: tuning.Price{Feathers: 20}, Created: 10, CompletesAt: 40,
	}
	b, err := s.PurchaseBuilding(ctx, nb)
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if b.ID == 0 || b.Completed {
		t.Fatalf("building=%+v", b)
	}

	nb.Tile = town.Tile{X: 3, Y: 3}
	if _, err := s.PurchaseBuilding(ctx, nb); failure.CodeOf(err) != "E_NO_RESOURCE" {
		t.Fatalf("expected E_NO_RESOURCE, got %v", err)
	}
	nb.Tile = town.Tile{X: 2, Y: 2}
	nb.Cost = tuning.Price{}
	if _, err := s.PurchaseBuilding(ctx, nb); failure.CodeOf(err) != "E_CONFLICT" {
		t.Fatalf("expected E_CONFLICT, got %v", err)
	}
	got, _ := s.GetVillage(ctx, v.ID)
	if got.Resources.Feathers != 10 {
		t.Fatalf("feathers=%d want=10 (failed purchases must not spend)", got.Resources.Feathers)
	}

	ok, err := s.CompleteBuilding(ctx, b.ID)
	if err != nil || !ok {
		t.Fatalf("complete ok=%v err=%v", ok, err)
	}
	if ok, _ := s.CompleteBuilding(ctx, b.ID); ok {
		t.Fatalf("completed twice")
	}
	if ok, err := s.StartProduction(ctx, b.ID, 40, nil); err != nil || !ok {
		t.Fatalf("start production ok=%v err=%v", ok, err)
	}
	if ok, _ := s.StartProduction(ctx, b.ID, 50, nil); ok {
		t.Fatalf("production started twice")
	}

	if err := s.DeleteBuilding(ctx, v.ID, b.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.CompleteBuilding(ctx, b.ID); !failure.IsMissing(err) {
		t.Fatalf("complete deleted building err=%v", err)
	}
	if err := s.DeleteBuilding(ctx, v.ID, b.ID); !failure.IsMissing(err) {
		t.Fatalf("delete twice err=%v", err)
	}
}

func TestRecoveryListings(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, v := seedPlayer(t, s, 0, 0, 1, tuning.Price{Feathers: 100, Sticks: 100})

	pending, err := s.PurchaseBuilding(ctx, store.NewBuilding{VillageID: v.ID, Type: "saw_mill", Tile: town.Tile{X: 1, Y: 1}, CompletesAt: 100})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	idle, err := s.PurchaseBuilding(ctx, store.NewBuilding{VillageID: v.ID, Type: "tree", Tile: town.Tile{X: 1, Y: 2}, CompletesAt: 50})
	if err != nil {
		t.Fatalf("purchase: %v", err)
	}
	if _, err := s.CompleteBuilding(ctx, idle.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	inc, err := s.ListIncompleteBuildings(ctx)
	if err != nil || len(inc) != 1 || inc[0].ID != pending.ID {
		t.Fatalf("incomplete=%+v err=%v", inc, err)
	}
	prod, err := s.ListIdleProducers(ctx, []string{"tree", "saw_mill"})
	if err != nil || len(prod) != 1 || prod[0].ID != idle.ID {
		t.Fatalf("idle producers=%+v err=%v", prod, err)
	}
	if none, _ := s.ListIdleProducers(ctx, nil); len(none) != 0 {
		t.Fatalf("no types should list nothing")
	}
}

func TestTasks(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, v := seedPlayer(t, s, 0, 0, 1, tuning.Price{})
	units, _ := s.ListUnits(ctx, v.ID)
	worker := units[0].ID

	tasks, err := s.ReplaceTasks(ctx, worker, []store.NewTask{
		{Type: store.TaskGatherSticks, Tile: town.Tile{X: 1, Y: 1}, Start: 10},
		{Type: store.TaskIdle, Start: 20},
		{Type: store.TaskWalk, Start: 30},
	})
	if err != nil || len(tasks) != 3 {
		t.Fatalf("replace: tasks=%d err=%v", len(tasks), err)
	}

	adv, err := s.StartTask(ctx, worker, tasks[0].ID, nil)
	if err != nil || !adv.Applied || adv.Finished != nil || adv.Next == nil || adv.Next.ID != tasks[1].ID {
		t.Fatalf("start first: %+v err=%v", adv, err)
	}
	again, err := s.StartTask(ctx, worker, tasks[0].ID, nil)
	if err != nil || again.Applied {
		t.Fatalf("restart applied=%v err=%v", again.Applied, err)
	}

	rewards := map[string]tuning.Price{"gather_sticks": {Sticks: 2}}
	adv, err = s.StartTask(ctx, worker, tasks[1].ID, rewards)
	if err != nil || adv.Finished == nil || adv.Finished.ID != tasks[0].ID {
		t.Fatalf("start second: %+v err=%v", adv, err)
	}
	got, _ := s.GetVillage(ctx, v.ID)
	if got.Resources.Sticks != 2 {
		t.Fatalf("sticks=%d want=2", got.Resources.Sticks)
	}

	next, err := s.ListNextTasks(ctx)
	if err != nil || len(next) != 1 || next[0].ID != tasks[2].ID {
		t.Fatalf("next tasks=%+v err=%v", next, err)
	}

	// Overwriting keeps started tasks and replaces pending ones.
	repl, err := s.ReplaceTasks(ctx, worker, []store.NewTask{{Type: store.TaskChopTree, Start: 40}})
	if err != nil || len(repl) != 1 || repl[0].Seq != 3 {
		t.Fatalf("overwrite: %+v err=%v", repl, err)
	}
	if _, err := s.StartTask(ctx, worker, tasks[2].ID, nil); !failure.IsMissing(err) {
		t.Fatalf("replaced task err=%v", err)
	}
	if _, err := s.ReplaceTasks(ctx, 9999, nil); !failure.IsMissing(err) {
		t.Fatalf("unknown unit err=%v", err)
	}
}

func TestPurchaseProphet(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	p, v := seedPlayer(t, s, 0, 0, 1, tuning.Price{Feathers: 60})

	u, err := s.PurchaseProphet(ctx, v.ID, tuning.Price{Feathers: 50}, 0)
	if err != nil || u.Kind != store.UnitProphet {
		t.Fatalf("purchase: %+v err=%v", u, err)
	}
	if n, _ := s.CountUnits(ctx, p.ID, store.UnitProphet); n != 1 {
		t.Fatalf("prophets=%d want=1", n)
	}
	if _, err := s.PurchaseProphet(ctx, v.ID, tuning.Price{}, 0); failure.CodeOf(err) != "E_CONFLICT" {
		t.Fatalf("stale count err=%v", err)
	}
	if _, err := s.PurchaseProphet(ctx, v.ID, tuning.Price{Feathers: 50}, 1); failure.CodeOf(err) != "E_NO_RESOURCE" {
		t.Fatalf("too poor err=%v", err)
	}
}

func spawnDrafted(t *testing.T, s *Store, villageID int64, prev, next clock.Timestamp) store.Attack {
	t.Helper()
	a, ok, err := s.SpawnAttack(context.Background(), villageID, prev, next, &store.SpawnDraft{
		Hobos:     []town.HoboSpec{{HP: 2, Speed: 1}},
		Departure: prev, Arrival: prev.Add(time.Minute),
	})
	if err != nil || !ok || a == nil {
		t.Fatalf("spawn ok=%v a=%v err=%v", ok, a, err)
	}
	return *a
}

func TestSpawnAttackIsCompareAndSet(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, v := seedPlayer(t, s, 0, 0, 1, tuning.Price{})

	prev := *v.NextSpawn
	next := prev.Add(10 * time.Minute)
	spawnDrafted(t, s, v.ID, prev, next)

	a, ok, err := s.SpawnAttack(ctx, v.ID, prev, next, &store.SpawnDraft{Hobos: []town.HoboSpec{{HP: 1, Speed: 1}}})
	if err != nil || ok || a != nil {
		t.Fatalf("redelivered spawn ok=%v a=%v err=%v", ok, a, err)
	}
	drafted, _ := s.ListAttacks(ctx, store.AttackDrafted)
	if len(drafted) != 1 {
		t.Fatalf("drafted=%d want=1", len(drafted))
	}
}

func TestAdmitAttackRespectsCapacityUnderContention(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, v := seedPlayer(t, s, 0, 0, 1, tuning.Price{})

	const n = 8
	spawn := *v.NextSpawn
	ids := make([]int64, n)
	for i := range ids {
		next := spawn.Add(time.Minute)
		ids[i] = spawnDrafted(t, s, v.ID, spawn, next).ID
		spawn = next
	}

	states := make([]store.AttackState, n)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			st, err := s.AdmitAttack(ctx, ids[i])
			if err != nil {
				t.Errorf("admit %d: %v", ids[i], err)
			}
			states[i] = st
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, st := range states {
		switch st {
		case store.AttackAdmitted:
			admitted++
		case store.AttackRejected:
		default:
			t.Fatalf("unexpected state %s", st)
		}
	}
	if admitted != 1 {
		t.Fatalf("admitted=%d want=1 at capacity 1", admitted)
	}

	// Admission of a decided attack reports its state without changing it.
	for i, id := range ids {
		st, err := s.AdmitAttack(ctx, id)
		if err != nil || st != states[i] {
			t.Fatalf("re-admit %d: %s err=%v want=%s", id, st, err, states[i])
		}
	}
}

func TestResolveAttack(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	p, v := seedPlayer(t, s, 0, 0, 2, tuning.Price{})
	a := spawnDrafted(t, s, v.ID, *v.NextSpawn, v.NextSpawn.Add(time.Minute))

	if st, err := s.AdmitAttack(ctx, a.ID); err != nil || st != store.AttackAdmitted {
		t.Fatalf("admit: %s err=%v", st, err)
	}
	for _, step := range [][2]store.AttackState{
		{store.AttackAdmitted, store.AttackInFlight},
		{store.AttackInFlight, store.AttackArrived},
	} {
		if ok, err := s.TransitionAttack(ctx, a.ID, step[0], step[1]); err != nil || !ok {
			t.Fatalf("%s->%s ok=%v err=%v", step[0], step[1], ok, err)
		}
	}
	if ok, _ := s.TransitionAttack(ctx, a.ID, store.AttackInFlight, store.AttackArrived); ok {
		t.Fatalf("transition from a stale state applied")
	}

	hobos, err := s.AttackingHobos(ctx, a.ID)
	if err != nil || len(hobos) != 1 || hobos[0].Arrival != a.Arrival {
		t.Fatalf("hobos=%+v err=%v", hobos, err)
	}
	out := store.AttackOutcome{
		Hobos:     []town.HoboOutcome{{UnitID: hobos[0].UnitID, Satisfied: true, At: a.Arrival}},
		Satisfied: 1, Karma: 5, Feathers: 2,
	}
	if ok, err := s.ResolveAttack(ctx, a.ID, out); err != nil || !ok {
		t.Fatalf("resolve ok=%v err=%v", ok, err)
	}
	if ok, _ := s.ResolveAttack(ctx, a.ID, out); ok {
		t.Fatalf("resolved twice")
	}

	pl, _ := s.GetPlayer(ctx, p.ID)
	vl, _ := s.GetVillage(ctx, v.ID)
	if pl.Karma != 5 || vl.Resources.Feathers != 2 {
		t.Fatalf("karma=%d feathers=%d want 5/2", pl.Karma, vl.Resources.Feathers)
	}
	u, _ := s.GetUnit(ctx, hobos[0].UnitID)
	if u.Released == nil || *u.Released != a.Arrival {
		t.Fatalf("hobo not released: %+v", u)
	}
	got, _ := s.GetAttack(ctx, a.ID)
	if got.State != store.AttackResolved || got.Satisfied != 1 {
		t.Fatalf("attack=%+v", got)
	}
}

func TestUnsatisfiedVisitorsSettle(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	_, v := seedPlayer(t, s, 0, 0, 2, tuning.Price{})
	a := spawnDrafted(t, s, v.ID, *v.NextSpawn, v.NextSpawn.Add(time.Minute))
	_, _ = s.AdmitAttack(ctx, a.ID)
	_, _ = s.TransitionAttack(ctx, a.ID, store.AttackAdmitted, store.AttackInFlight)
	_, _ = s.TransitionAttack(ctx, a.ID, store.AttackInFlight, store.AttackArrived)

	hobos, _ := s.AttackingHobos(ctx, a.ID)
	out := store.AttackOutcome{Hobos: []town.HoboOutcome{{UnitID: hobos[0].UnitID, Damage: 1, RemainingHP: 1}}}
	if ok, err := s.ResolveAttack(ctx, a.ID, out); err != nil || !ok {
		t.Fatalf("resolve ok=%v err=%v", ok, err)
	}
	u, _ := s.GetUnit(ctx, hobos[0].UnitID)
	if u.HomeVillageID == nil || *u.HomeVillageID != v.ID || u.HP != 1 || u.Released != nil {
		t.Fatalf("unit=%+v want settled in village %d with hp 1", u, v.ID)
	}
}

func TestStoryAndStatistics(t *testing.T) {
	s := openTempStore(t)
	ctx := context.Background()
	p, _ := seedPlayer(t, s, 0, 0, 1, tuning.Price{})

	if ok, err := s.TransitionStory(ctx, p.ID, "temple_built", "visitor_arrived"); err != nil || !ok {
		t.Fatalf("transition ok=%v err=%v", ok, err)
	}
	if ok, _ := s.TransitionStory(ctx, p.ID, "temple_built", "visitor_arrived"); ok {
		t.Fatalf("stale transition applied")
	}
	if err := s.InsertStatistics(ctx, store.Statistics{PlayerID: p.ID, SessionDuration: time.Minute, FPS: 59.5, Raw: "{}", RecordedAt: 1}); err != nil {
		t.Fatalf("insert statistics: %v", err)
	}
}
