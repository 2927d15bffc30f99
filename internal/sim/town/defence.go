package town

import (
	"math"
	"sort"
	"time"

	"paddlers.io/internal/sim/clock"
)

// Aura is the area effect of a building on lane tiles in range.
type Aura struct {
	BuildingID int64
	Tile       Tile
	Range      float64
	Effect     int
	// Since is when the building was completed; tiles reached earlier are
	// not affected.
	Since clock.Timestamp
}

// AttackingHobo joins a hobo's unit attributes with its attack's arrival.
// It is a read model and never stored.
type AttackingHobo struct {
	UnitID   int64
	HP       int
	Speed    float64
	Hurried  bool
	Effects  int
	Arrival  clock.Timestamp
	Released *clock.Timestamp
}

func (h AttackingHobo) MaxHP() int { return h.HP + h.Effects }

// TilesPerSecond is the walking speed; hurried hobos move twice as fast.
func (h AttackingHobo) TilesPerSecond() float64 {
	if h.Hurried {
		return 2 * h.Speed
	}
	return h.Speed
}

type HoboOutcome struct {
	UnitID    int64
	Damage    int
	Satisfied bool
	// At is when the hobo was satisfied or left the town.
	At clock.Timestamp
	// RemainingHP is the hp the unit keeps after the visit.
	RemainingHP int
}

type DefenceResult struct {
	Hobos     []HoboOutcome
	Satisfied int
}

// ResolveDefence walks each hobo along the lane, right to left, and sums
// the aura effects it meets. Each aura counts at most once per hobo. A hobo
// whose max hp is used up is satisfied.
func ResolveDefence(l Layout, auras []Aura, hobos []AttackingHobo) DefenceResult {
	lane := l.LaneRow()
	sorted := append([]AttackingHobo(nil), hobos...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UnitID < sorted[j].UnitID })

	var res DefenceResult
	for _, h := range sorted {
		if h.Released != nil {
			continue
		}
		out := walk(l.Width, lane, auras, h)
		if out.Satisfied {
			res.Satisfied++
		}
		res.Hobos = append(res.Hobos, out)
	}
	return res
}

func walk(width, lane int, auras []Aura, h AttackingHobo) HoboOutcome {
	out := HoboOutcome{UnitID: h.UnitID, RemainingHP: h.HP}
	speed := h.TilesPerSecond()
	maxHP := h.MaxHP()
	hit := make(map[int64]struct{})

	reached := h.Arrival
	for step := 0; step < width; step++ {
		x := width - 1 - step
		reached = h.Arrival.Add(stepDuration(step, speed))
		here := Tile{X: x, Y: lane}
		for _, a := range auras {
			if _, done := hit[a.BuildingID]; done {
				continue
			}
			if reached < a.Since || Distance(here, a.Tile) > a.Range {
				continue
			}
			hit[a.BuildingID] = struct{}{}
			out.Damage += a.Effect
		}
		if out.Damage >= maxHP {
			out.Satisfied = true
			out.At = reached
			out.RemainingHP = 0
			return out
		}
	}
	out.At = h.Arrival.Add(stepDuration(width, speed))
	out.RemainingHP = h.HP - out.Damage
	if out.RemainingHP < 0 {
		out.RemainingHP = 0
	}
	return out
}

func stepDuration(tiles int, tilesPerSecond float64) time.Duration {
	if tilesPerSecond <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(tiles) / tilesPerSecond * float64(time.Second)))
}
