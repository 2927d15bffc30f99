package town

import (
	"fmt"
	"math/rand/v2"

	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/tuning"
)

// StoryTransition checks that to is the state directly after from.
func StoryTransition(story []string, from, to string) error {
	for i, s := range story {
		if s != from {
			continue
		}
		if i+1 < len(story) && story[i+1] == to {
			return nil
		}
		return fmt.Errorf("story cannot move from %s to %s", from, to)
	}
	return fmt.Errorf("unknown story state %q", from)
}

// TaskReward is what finishing a task of the given type yields.
func TaskReward(t tuning.Tuning, taskType string) tuning.Price {
	return t.TaskRewards[taskType]
}

// HoboSpec describes one hobo of a spawned attack.
type HoboSpec struct {
	HP      int
	Speed   float64
	Hurried bool
}

// SpawnRoll is the outcome of one AttackSpawn event.
type SpawnRoll struct {
	Spawn bool
	Hobos []HoboSpec
}

// RollSpawn decides deterministically from (seed, village, due) whether a
// village receives visitors, and who they are. Villages whose story has
// not reached the configured stage never do.
func RollSpawn(t tuning.Tuning, villageID int64, due clock.Timestamp, storyStage int) SpawnRoll {
	a := t.Attacks
	if storyStage < a.MinStoryStage {
		return SpawnRoll{}
	}
	r := rand.New(rand.NewPCG(uint64(t.Seed)^uint64(villageID)*0x9e3779b97f4a7c15, uint64(due)))
	if r.Float64() >= a.SpawnChance {
		return SpawnRoll{}
	}
	n := a.HobosMin
	if a.HobosMax > a.HobosMin {
		n += r.IntN(a.HobosMax - a.HobosMin + 1)
	}
	roll := SpawnRoll{Spawn: true, Hobos: make([]HoboSpec, n)}
	for i := range roll.Hobos {
		roll.Hobos[i] = HoboSpec{
			HP:      a.HoboHP,
			Speed:   a.HoboSpeed,
			Hurried: r.Float64() < a.HurriedChance,
		}
	}
	return roll
}
