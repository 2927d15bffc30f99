package town

import (
	"reflect"
	"testing"
	"time"

	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/tuning"
)

func TestLayoutPlacement(t *testing.T) {
	l := NewLayout(23, 13)
	if l.LaneRow() != 6 {
		t.Fatalf("lane=%d want=6", l.LaneRow())
	}
	if err := l.CheckPlacement(Tile{X: 3, Y: 6}, nil); err == nil {
		t.Fatalf("lane tile accepted")
	}
	if err := l.CheckPlacement(Tile{X: 23, Y: 0}, nil); err == nil {
		t.Fatalf("tile outside town accepted")
	}
	if err := l.CheckPlacement(Tile{X: 2, Y: 2}, []Tile{{X: 2, Y: 2}}); err == nil {
		t.Fatalf("occupied tile accepted")
	}
	if err := l.CheckPlacement(Tile{X: 2, Y: 2}, []Tile{{X: 2, Y: 3}}); err != nil {
		t.Fatalf("free tile rejected: %v", err)
	}
}

func TestAccrueIsWindowOnly(t *testing.T) {
	ps := []Producer{
		{BuildingID: 1, Resource: "sticks", RatePerHour: 30, Since: 0},
		{BuildingID: 2, Resource: "logs", RatePerHour: 12, Since: clock.FromSeconds(1800)},
	}
	from, to := clock.FromSeconds(0), clock.FromSeconds(3600)

	once := Accrue(ps, from, to)
	twice := Accrue(ps, from, to)
	if once != twice {
		t.Fatalf("same window differs: %+v vs %+v", once, twice)
	}
	if once.Sticks != 30 || once.Logs != 6 {
		t.Fatalf("accrued=%+v want sticks=30 logs=6", once)
	}

	// Many small windows add up to the single large one.
	var sum tuning.Price
	for s := int64(0); s < 3600; s += 7 {
		end := s + 7
		if end > 3600 {
			end = 3600
		}
		sum = sum.Add(Accrue(ps, clock.FromSeconds(s), clock.FromSeconds(end)))
	}
	if sum != once {
		t.Fatalf("split windows=%+v want=%+v", sum, once)
	}
	if got := Accrue(ps, to, from); !got.IsZero() {
		t.Fatalf("reversed window accrued %+v", got)
	}
}

func TestResolveDefence(t *testing.T) {
	l := NewLayout(23, 13)
	arrival := clock.FromSeconds(1000)
	auras := []Aura{
		// Right next to the lane entrance, completed long ago.
		{BuildingID: 1, Tile: Tile{X: 21, Y: 5}, Range: 1.5, Effect: 2, Since: 0},
		// Completed only after any hobo passes its tiles.
		{BuildingID: 2, Tile: Tile{X: 20, Y: 7}, Range: 1.5, Effect: 5, Since: arrival.Add(time.Hour)},
		// Same building counted once even though several tiles are in range.
		{BuildingID: 3, Tile: Tile{X: 5, Y: 5}, Range: 3, Effect: 1, Since: 0},
	}
	hobos := []AttackingHobo{
		{UnitID: 11, HP: 3, Speed: 1, Arrival: arrival},
		{UnitID: 10, HP: 4, Speed: 1, Effects: 2, Arrival: arrival},
		{UnitID: 12, HP: 1, Speed: 1, Arrival: arrival, Released: &arrival},
	}

	res := ResolveDefence(l, auras, hobos)
	if len(res.Hobos) != 2 {
		t.Fatalf("outcomes=%d want=2 (released hobo skipped)", len(res.Hobos))
	}
	if res.Hobos[0].UnitID != 10 || res.Hobos[1].UnitID != 11 {
		t.Fatalf("outcomes not ordered by unit id: %+v", res.Hobos)
	}
	strong, weak := res.Hobos[0], res.Hobos[1]
	if strong.Satisfied || strong.Damage != 3 || strong.RemainingHP != 1 {
		t.Fatalf("strong=%+v want damage=3 remaining=1 unsatisfied", strong)
	}
	if !weak.Satisfied || weak.Damage != 3 || res.Satisfied != 1 {
		t.Fatalf("weak=%+v satisfied=%d", weak, res.Satisfied)
	}
	if weak.At <= arrival {
		t.Fatalf("satisfied at %v not after arrival", weak.At)
	}
}

func TestHurriedHoboIsFaster(t *testing.T) {
	h := AttackingHobo{Speed: 0.5}
	fast := h
	fast.Hurried = true
	if fast.TilesPerSecond() != 2*h.TilesPerSecond() {
		t.Fatalf("hurried=%v normal=%v", fast.TilesPerSecond(), h.TilesPerSecond())
	}
}

func TestStoryTransition(t *testing.T) {
	story := tuning.Defaults().Story
	if err := StoryTransition(story, "servant_accepted", "temple_built"); err != nil {
		t.Fatalf("forward step rejected: %v", err)
	}
	if err := StoryTransition(story, "servant_accepted", "visitor_arrived"); err == nil {
		t.Fatalf("skip accepted")
	}
	if err := StoryTransition(story, "solved_quest", "servant_accepted"); err == nil {
		t.Fatalf("wrap-around accepted")
	}
	if err := StoryTransition(story, "nope", "temple_built"); err == nil {
		t.Fatalf("unknown state accepted")
	}
}

func TestRollSpawnDeterministic(t *testing.T) {
	tu := tuning.Defaults()
	tu.Attacks.SpawnChance = 1
	a := RollSpawn(tu, 7, 12345, 2)
	b := RollSpawn(tu, 7, 12345, 2)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same inputs rolled differently: %+v vs %+v", a, b)
	}
	if !a.Spawn || len(a.Hobos) < tu.Attacks.HobosMin || len(a.Hobos) > tu.Attacks.HobosMax {
		t.Fatalf("roll=%+v", a)
	}
	if got := RollSpawn(tu, 7, 12345, 0); got.Spawn {
		t.Fatalf("spawned before min story stage")
	}
	tu.Attacks.SpawnChance = 0
	if got := RollSpawn(tu, 7, 12345, 2); got.Spawn {
		t.Fatalf("spawned with zero chance")
	}
}
