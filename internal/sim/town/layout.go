// Package town holds the pure game rules evaluated by the workers: town
// layout, resource accrual, defence against visiting hobos, story
// progression and the attack spawn roll. Nothing here touches the store.
package town

import (
	"fmt"
	"math"
)

type Tile struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Layout is a rectangular town with a horizontal lane through the middle
// row. Visitors walk the lane from the right edge to the left edge.
type Layout struct {
	Width  int
	Height int
}

func NewLayout(width, height int) Layout { return Layout{Width: width, Height: height} }

func (l Layout) LaneRow() int { return (l.Height - 1) / 2 }

func (l Layout) Contains(t Tile) bool {
	return t.X >= 0 && t.Y >= 0 && t.X < l.Width && t.Y < l.Height
}

func (l Layout) IsLane(t Tile) bool { return t.Y == l.LaneRow() }

// CheckPlacement reports why a building cannot go on t, or nil.
func (l Layout) CheckPlacement(t Tile, occupied []Tile) error {
	if !l.Contains(t) {
		return fmt.Errorf("tile (%d,%d) outside town", t.X, t.Y)
	}
	if l.IsLane(t) {
		return fmt.Errorf("tile (%d,%d) is on the lane", t.X, t.Y)
	}
	for _, o := range occupied {
		if o == t {
			return fmt.Errorf("tile (%d,%d) is occupied", t.X, t.Y)
		}
	}
	return nil
}

// Distance is the euclidean distance between tile centres.
func Distance(a, b Tile) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return math.Sqrt(dx*dx + dy*dy)
}
