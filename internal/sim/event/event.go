// Package event defines the scheduled state changes processed by the game
// master workers.
//
// An Event is a value: once enqueued nobody mutates it. A retry or a
// follow-up is always a new Event.
package event

import (
	"fmt"

	"paddlers.io/internal/sim/clock"
)

// Kind is the closed set of event variants. The numeric order is the
// tie-break rank for events due at the same time.
type Kind uint8

const (
	EconomyTick Kind = iota
	BuildingCompletion
	ProductionStart
	TaskAdvance
	AttackSpawn
	AttackArrival

	numKinds
)

var kindNames = [numKinds]string{
	EconomyTick:        "ECONOMY_TICK",
	BuildingCompletion: "BUILDING_COMPLETION",
	ProductionStart:    "PRODUCTION_START",
	TaskAdvance:        "TASK_ADVANCE",
	AttackSpawn:        "ATTACK_SPAWN",
	AttackArrival:      "ATTACK_ARRIVAL",
}

func (k Kind) Valid() bool { return k < numKinds }

// Rank is the position of k in the fixed tie-break order.
func (k Kind) Rank() int { return int(k) }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("KIND_%d", uint8(k))
	}
	return kindNames[k]
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return fmt.Errorf("unknown event kind %q", string(b))
	}
	*k = parsed
	return nil
}

func ParseKind(s string) (Kind, bool) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), true
		}
	}
	return 0, false
}

// AllKinds lists every kind in rank order.
func AllKinds() []Kind {
	out := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		out = append(out, k)
	}
	return out
}

// KindSet is a bitmask of kinds; a worker owns one.
type KindSet uint32

// All contains every kind.
const All = KindSet(1<<numKinds - 1)

func Kinds(ks ...Kind) KindSet {
	var s KindSet
	for _, k := range ks {
		s |= 1 << k
	}
	return s
}

func (s KindSet) Has(k Kind) bool { return k.Valid() && s&(1<<k) != 0 }

func (s KindSet) List() []Kind {
	var out []Kind
	for _, k := range AllKinds() {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Payload is implemented only by the payload types of this package.
type Payload interface {
	// key orders payloads of the same kind.
	key() [2]int64
	accepts(Kind) bool
}

// Village addresses a village.
type Village struct {
	VillageID int64 `json:"village_id"`
}

// Building addresses a building.
type Building struct {
	BuildingID int64 `json:"building_id"`
}

// Task addresses one entry of a unit's task list.
type Task struct {
	UnitID int64 `json:"unit_id"`
	TaskID int64 `json:"task_id"`
}

// Attack addresses an attack.
type Attack struct {
	AttackID int64 `json:"attack_id"`
}

func (p Village) key() [2]int64  { return [2]int64{p.VillageID, 0} }
func (p Building) key() [2]int64 { return [2]int64{p.BuildingID, 0} }
func (p Task) key() [2]int64     { return [2]int64{p.UnitID, p.TaskID} }
func (p Attack) key() [2]int64   { return [2]int64{p.AttackID, 0} }

func (Village) accepts(k Kind) bool  { return k == EconomyTick || k == AttackSpawn }
func (Building) accepts(k Kind) bool { return k == BuildingCompletion || k == ProductionStart }
func (Task) accepts(k Kind) bool     { return k == TaskAdvance }
func (Attack) accepts(k Kind) bool   { return k == AttackArrival }

// Event is a state change due at a logical time.
type Event struct {
	Kind    Kind            `json:"kind"`
	Due     clock.Timestamp `json:"due"`
	Payload Payload         `json:"payload"`
	// Attempt counts earlier failed deliveries of the same change.
	Attempt int `json:"attempt,omitempty"`
	// Origin is the due time of the first delivery; set only on retries.
	Origin clock.Timestamp `json:"origin,omitempty"`
}

func NewEconomyTick(villageID int64, due clock.Timestamp) Event {
	return Event{Kind: EconomyTick, Due: due, Payload: Village{VillageID: villageID}}
}

func NewBuildingCompletion(buildingID int64, due clock.Timestamp) Event {
	return Event{Kind: BuildingCompletion, Due: due, Payload: Building{BuildingID: buildingID}}
}

func NewProductionStart(buildingID int64, due clock.Timestamp) Event {
	return Event{Kind: ProductionStart, Due: due, Payload: Building{BuildingID: buildingID}}
}

func NewTaskAdvance(unitID, taskID int64, due clock.Timestamp) Event {
	return Event{Kind: TaskAdvance, Due: due, Payload: Task{UnitID: unitID, TaskID: taskID}}
}

func NewAttackSpawn(villageID int64, due clock.Timestamp) Event {
	return Event{Kind: AttackSpawn, Due: due, Payload: Village{VillageID: villageID}}
}

func NewAttackArrival(attackID int64, due clock.Timestamp) Event {
	return Event{Kind: AttackArrival, Due: due, Payload: Attack{AttackID: attackID}}
}

// Validate reports whether the payload variant belongs to the kind.
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("invalid event kind %d", uint8(e.Kind))
	}
	if e.Payload == nil {
		return fmt.Errorf("%s: missing payload", e.Kind)
	}
	if !e.Payload.accepts(e.Kind) {
		return fmt.Errorf("%s: payload %T does not match kind", e.Kind, e.Payload)
	}
	if e.Attempt < 0 {
		return fmt.Errorf("%s: negative attempt", e.Kind)
	}
	return nil
}

// Retry returns the replacement event for a failed delivery. The
// replacement keeps the scheduled time of the first delivery.
func (e Event) Retry(due clock.Timestamp) Event {
	e.Origin = e.Scheduled()
	e.Due = due
	e.Attempt++
	return e
}

// Scheduled is the logical time of the change: Due for a first delivery,
// the original due time for a retry. Handlers that compare against stored
// schedule fields use it instead of Due.
func (e Event) Scheduled() clock.Timestamp {
	if e.Origin != 0 {
		return e.Origin
	}
	return e.Due
}

func (e Event) String() string {
	k := keyOf(e)
	if k[1] != 0 {
		return fmt.Sprintf("%s(%d/%d)@%d#%d", e.Kind, k[0], k[1], e.Due, e.Attempt)
	}
	return fmt.Sprintf("%s(%d)@%d#%d", e.Kind, k[0], e.Due, e.Attempt)
}

// Compare orders events by due time, kind rank, payload ids, attempt and
// origin.
// It returns 0 only for identical events.
func Compare(a, b Event) int {
	switch {
	case a.Due < b.Due:
		return -1
	case a.Due > b.Due:
		return 1
	}
	switch {
	case a.Kind < b.Kind:
		return -1
	case a.Kind > b.Kind:
		return 1
	}
	ka, kb := keyOf(a), keyOf(b)
	for i := range ka {
		switch {
		case ka[i] < kb[i]:
			return -1
		case ka[i] > kb[i]:
			return 1
		}
	}
	switch {
	case a.Attempt < b.Attempt:
		return -1
	case a.Attempt > b.Attempt:
		return 1
	}
	switch {
	case a.Origin < b.Origin:
		return -1
	case a.Origin > b.Origin:
		return 1
	}
	return 0
}

func keyOf(e Event) [2]int64 {
	if e.Payload == nil {
		return [2]int64{}
	}
	return e.Payload.key()
}
