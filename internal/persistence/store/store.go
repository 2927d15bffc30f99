// Package store defines the persistent records of the game and the
// operations the game master needs from a backing database.
//
// Every write that an event may repeat is conditional: it reports whether
// it applied instead of failing, so redelivered events are no-ops.
// Domain rejections come back as failure.Validation or failure.Missing;
// anything else is an I/O problem.
package store

import (
	"context"
	"time"

	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/town"
	"paddlers.io/internal/sim/tuning"
)

type UnitKind string

const (
	UnitBasic   UnitKind = "basic"
	UnitHero    UnitKind = "hero"
	UnitProphet UnitKind = "prophet"
	UnitHobo    UnitKind = "hobo"
)

type TaskType string

const (
	TaskIdle           TaskType = "idle"
	TaskWalk           TaskType = "walk"
	TaskGatherSticks   TaskType = "gather_sticks"
	TaskChopTree       TaskType = "chop_tree"
	TaskDefend         TaskType = "defend"
	TaskWelcomeAbility TaskType = "welcome_ability"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskIdle, TaskWalk, TaskGatherSticks, TaskChopTree, TaskDefend, TaskWelcomeAbility:
		return true
	}
	return false
}

type AttackState string

const (
	AttackDrafted  AttackState = "drafted"
	AttackAdmitted AttackState = "admitted"
	AttackInFlight AttackState = "in_flight"
	AttackArrived  AttackState = "arrived"
	AttackResolved AttackState = "resolved"
	AttackRejected AttackState = "rejected"
)

// Active states count against the target's capacity.
func (s AttackState) Active() bool {
	return s == AttackAdmitted || s == AttackInFlight || s == AttackArrived
}

func (s AttackState) Terminal() bool { return s == AttackResolved || s == AttackRejected }

type Player struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Karma      int64           `json:"karma"`
	StoryState string          `json:"story_state"`
	CreatedAt  clock.Timestamp `json:"created_at"`
}

type Village struct {
	ID       int64 `json:"id"`
	PlayerID int64 `json:"player_id"`
	X        int   `json:"x"`
	Y        int   `json:"y"`
	// Capacity bounds concurrently active incoming attacks.
	Capacity  int              `json:"capacity"`
	LastTick  clock.Timestamp  `json:"last_tick"`
	NextSpawn *clock.Timestamp `json:"next_spawn,omitempty"`
	Resources tuning.Price     `json:"resources"`
}

type Building struct {
	ID             int64            `json:"id"`
	VillageID      int64            `json:"village_id"`
	Type           string           `json:"type"`
	Tile           town.Tile        `json:"tile"`
	Level          int              `json:"level"`
	Created        clock.Timestamp  `json:"created"`
	CompletesAt    clock.Timestamp  `json:"completes_at"`
	Completed      bool             `json:"completed"`
	ProducingSince *clock.Timestamp `json:"producing_since,omitempty"`
}

type Unit struct {
	ID            int64            `json:"id"`
	HomeVillageID *int64           `json:"home_village_id,omitempty"`
	Kind          UnitKind         `json:"kind"`
	HP            int              `json:"hp"`
	Speed         float64          `json:"speed"`
	Hurried       bool             `json:"hurried"`
	Effects       int              `json:"effects"`
	Released      *clock.Timestamp `json:"released,omitempty"`
}

type Task struct {
	ID       int64           `json:"id"`
	UnitID   int64           `json:"unit_id"`
	Seq      int             `json:"seq"`
	Type     TaskType        `json:"type"`
	Tile     town.Tile       `json:"tile"`
	Start    clock.Timestamp `json:"start"`
	Started  bool            `json:"started"`
	Finished bool            `json:"finished"`
}

type Attack struct {
	ID              int64           `json:"id"`
	OriginVillageID *int64          `json:"origin_village_id,omitempty"`
	TargetVillageID int64           `json:"target_village_id"`
	State           AttackState     `json:"state"`
	Departure       clock.Timestamp `json:"departure"`
	Arrival         clock.Timestamp `json:"arrival"`
	RejectReason    string          `json:"reject_reason,omitempty"`
	Satisfied       int             `json:"satisfied"`
	KarmaAwarded    int64           `json:"karma_awarded"`
}

type Statistics struct {
	PlayerID        int64           `json:"player_id"`
	SessionDuration time.Duration   `json:"session_duration"`
	FPS             float64         `json:"fps"`
	Raw             string          `json:"raw"`
	RecordedAt      clock.Timestamp `json:"recorded_at"`
}

type NewPlayer struct {
	Name       string
	StoryState string
	X, Y       int
	Capacity   int
	Resources  tuning.Price
	Now        clock.Timestamp
	NextSpawn  *clock.Timestamp
	// Workers are created in the new village with the given hp and speed.
	Workers     int
	WorkerHP    int
	WorkerSpeed float64
}

type NewBuilding struct {
	VillageID   int64
	Type        string
	Tile        town.Tile
	Cost        tuning.Price
	Created     clock.Timestamp
	CompletesAt clock.Timestamp
}

type NewTask struct {
	Type  TaskType
	Tile  town.Tile
	Start clock.Timestamp
}

// NewAttack drafts a player-issued attack with existing units.
type NewAttack struct {
	OriginVillageID int64
	TargetVillageID int64
	UnitIDs         []int64
	Departure       clock.Timestamp
	Arrival         clock.Timestamp
}

// SpawnDraft drafts an attack of freshly created hobos.
type SpawnDraft struct {
	Hobos     []town.HoboSpec
	Departure clock.Timestamp
	Arrival   clock.Timestamp
}

// TaskAdvance is the outcome of starting a task.
type TaskAdvance struct {
	Applied bool
	// Finished is the task that ended because this one started.
	Finished *Task
	// Next is the unit's next pending task, if any.
	Next *Task
}

type AttackOutcome struct {
	Hobos      []town.HoboOutcome
	Satisfied  int
	Karma      int64
	Feathers   int64
	ResolvedAt clock.Timestamp
}

type Store interface {
	Ping(ctx context.Context) error

	CreatePlayer(ctx context.Context, p NewPlayer) (Player, Village, error)
	GetPlayer(ctx context.Context, id int64) (Player, error)
	TransitionStory(ctx context.Context, playerID int64, from, to string) (bool, error)
	InsertStatistics(ctx context.Context, s Statistics) error

	GetVillage(ctx context.Context, id int64) (Village, error)
	VillageAt(ctx context.Context, x, y int) (Village, error)
	ListVillages(ctx context.Context) ([]Village, error)
	// ApplyEconomyTick adds delta and moves last_tick from prev to next.
	ApplyEconomyTick(ctx context.Context, villageID int64, prev, next clock.Timestamp, delta tuning.Price) (bool, error)

	GetBuilding(ctx context.Context, id int64) (Building, error)
	ListBuildings(ctx context.Context, villageID int64) ([]Building, error)
	// PurchaseBuilding spends the cost and inserts the building in one step.
	PurchaseBuilding(ctx context.Context, b NewBuilding) (Building, error)
	DeleteBuilding(ctx context.Context, villageID, buildingID int64) error
	CompleteBuilding(ctx context.Context, id int64) (bool, error)
	// StartProduction sets producing_since. If the village's last_tick is
	// already past since, backlog(last_tick) is credited in the same write
	// so the window (since, last_tick] is not lost. backlog may be nil.
	StartProduction(ctx context.Context, id int64, since clock.Timestamp, backlog func(lastTick clock.Timestamp) tuning.Price) (bool, error)
	ListIncompleteBuildings(ctx context.Context) ([]Building, error)
	// ListIdleProducers lists completed buildings of the given types with
	// no production start.
	ListIdleProducers(ctx context.Context, types []string) ([]Building, error)

	GetUnit(ctx context.Context, id int64) (Unit, error)
	ListUnits(ctx context.Context, villageID int64) ([]Unit, error)
	CountUnits(ctx context.Context, playerID int64, kind UnitKind) (int, error)
	// PurchaseProphet spends price and adds a prophet, provided the player
	// still owns exactly owned prophets.
	PurchaseProphet(ctx context.Context, villageID int64, price tuning.Price, owned int) (Unit, error)

	ListTasks(ctx context.Context, unitID int64) ([]Task, error)
	ReplaceTasks(ctx context.Context, unitID int64, tasks []NewTask) ([]Task, error)
	StartTask(ctx context.Context, unitID, taskID int64, rewards map[string]tuning.Price) (TaskAdvance, error)
	// ListNextTasks returns the earliest not-started task of every unit.
	ListNextTasks(ctx context.Context) ([]Task, error)

	GetAttack(ctx context.Context, id int64) (Attack, error)
	ListAttacks(ctx context.Context, states ...AttackState) ([]Attack, error)
	DraftAttack(ctx context.Context, a NewAttack) (Attack, error)
	// SpawnAttack moves next_spawn from prev to next and, when draft is
	// set, drafts a spawned attack on the village, atomically.
	SpawnAttack(ctx context.Context, villageID int64, prev, next clock.Timestamp, draft *SpawnDraft) (*Attack, bool, error)
	// AdmitAttack moves a drafted attack to admitted if the target has
	// room, else to rejected, and returns the resulting state.
	AdmitAttack(ctx context.Context, attackID int64) (AttackState, error)
	TransitionAttack(ctx context.Context, attackID int64, from, to AttackState) (bool, error)
	AttackingHobos(ctx context.Context, attackID int64) ([]town.AttackingHobo, error)
	ResolveAttack(ctx context.Context, attackID int64, out AttackOutcome) (bool, error)
}
