package protocol

import (
	"encoding/json"
	"fmt"
)

// Command types, used as the "type" of a websocket frame.
const (
	TypeCreatePlayer     = "CREATE_PLAYER"
	TypePurchaseBuilding = "PURCHASE_BUILDING"
	TypeDeleteBuilding   = "DELETE_BUILDING"
	TypePurchaseProphet  = "PURCHASE_PROPHET"
	TypeOverwriteTasks   = "OVERWRITE_TASKS"
	TypeCreateAttack     = "CREATE_ATTACK"
	TypeStoryTransition  = "STORY_TRANSITION"
	TypeSubmitStatistics = "SUBMIT_STATISTICS"

	TypeResult = "RESULT"
)

// Command is a decoded, schema-valid inbound request.
type Command interface {
	CommandType() string
}

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type CreatePlayer struct {
	Name string `json:"name"`
	Position
}

type PurchaseBuilding struct {
	VillageID    int64  `json:"village_id"`
	BuildingType string `json:"building_type"`
	Position
}

type DeleteBuilding struct {
	VillageID  int64 `json:"village_id"`
	BuildingID int64 `json:"building_id"`
}

type PurchaseProphet struct {
	VillageID int64 `json:"village_id"`
}

type TaskSpec struct {
	Type string `json:"task_type"`
	Position
	// Start is in microseconds; absent means right after the previous task.
	Start *int64 `json:"start,omitempty"`
}

type OverwriteTasks struct {
	VillageID int64      `json:"village_id"`
	UnitID    int64      `json:"unit_id"`
	Tasks     []TaskSpec `json:"tasks"`
}

type CreateAttack struct {
	FromVillageID int64    `json:"from_village_id"`
	To            Position `json:"to"`
	UnitIDs       []int64  `json:"unit_ids"`
}

type StoryTransition struct {
	PlayerID int64  `json:"player_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type SubmitStatistics struct {
	PlayerID          int64           `json:"player_id"`
	SessionDurationMs int64           `json:"session_duration_ms"`
	FPS               float64         `json:"fps"`
	Details           json.RawMessage `json:"details,omitempty"`
}

func (CreatePlayer) CommandType() string     { return TypeCreatePlayer }
func (PurchaseBuilding) CommandType() string { return TypePurchaseBuilding }
func (DeleteBuilding) CommandType() string   { return TypeDeleteBuilding }
func (PurchaseProphet) CommandType() string  { return TypePurchaseProphet }
func (OverwriteTasks) CommandType() string   { return TypeOverwriteTasks }
func (CreateAttack) CommandType() string     { return TypeCreateAttack }
func (StoryTransition) CommandType() string  { return TypeStoryTransition }
func (SubmitStatistics) CommandType() string { return TypeSubmitStatistics }

// Result is what a command produced. Only the fields the command touches
// are set.
type Result struct {
	PlayerID    int64   `json:"player_id,omitempty"`
	VillageID   int64   `json:"village_id,omitempty"`
	BuildingID  int64   `json:"building_id,omitempty"`
	UnitID      int64   `json:"unit_id,omitempty"`
	AttackID    int64   `json:"attack_id,omitempty"`
	AttackState string  `json:"attack_state,omitempty"`
	TaskIDs     []int64 `json:"task_ids,omitempty"`
	CompletesAt int64   `json:"completes_at,omitempty"`
	Arrival     int64   `json:"arrival,omitempty"`
}

func newCommand(typ string) (Command, error) {
	switch typ {
	case TypeCreatePlayer:
		return &CreatePlayer{}, nil
	case TypePurchaseBuilding:
		return &PurchaseBuilding{}, nil
	case TypeDeleteBuilding:
		return &DeleteBuilding{}, nil
	case TypePurchaseProphet:
		return &PurchaseProphet{}, nil
	case TypeOverwriteTasks:
		return &OverwriteTasks{}, nil
	case TypeCreateAttack:
		return &CreateAttack{}, nil
	case TypeStoryTransition:
		return &StoryTransition{}, nil
	case TypeSubmitStatistics:
		return &SubmitStatistics{}, nil
	}
	return nil, fmt.Errorf("unknown command type %q", typ)
}

// deref returns the command value held by the pointer newCommand made.
func deref(c Command) Command {
	switch v := c.(type) {
	case *CreatePlayer:
		return *v
	case *PurchaseBuilding:
		return *v
	case *DeleteBuilding:
		return *v
	case *PurchaseProphet:
		return *v
	case *OverwriteTasks:
		return *v
	case *CreateAttack:
		return *v
	case *StoryTransition:
		return *v
	case *SubmitStatistics:
		return *v
	}
	return c
}
