package gamemaster

import (
	"paddlers.io/internal/sim/event"
	"paddlers.io/internal/sim/failure"
)

type action uint8

const (
	actionSkipWarn action = iota
	actionSkipSilent
	actionRetry
	actionFatal
)

func (a action) String() string {
	switch a {
	case actionSkipWarn:
		return "skip"
	case actionSkipSilent:
		return "skip_silent"
	case actionRetry:
		return "retry"
	case actionFatal:
		return "fatal"
	}
	return "unknown"
}

// policy says what a worker does with an event whose handler failed.
type policy struct {
	missing    action
	validation action
	store      action
}

// Store failures are always retried: every handler's writes are
// conditional, so running one again is safe.
var policies = map[event.Kind]policy{
	event.EconomyTick:        {missing: actionSkipWarn, validation: actionSkipWarn, store: actionRetry},
	event.BuildingCompletion: {missing: actionSkipWarn, validation: actionSkipWarn, store: actionRetry},
	event.ProductionStart:    {missing: actionSkipWarn, validation: actionSkipWarn, store: actionRetry},
	// Overwriting a unit's tasks deletes the ones pending events point at.
	event.TaskAdvance:   {missing: actionSkipSilent, validation: actionSkipWarn, store: actionRetry},
	event.AttackSpawn:   {missing: actionSkipWarn, validation: actionSkipWarn, store: actionRetry},
	event.AttackArrival: {missing: actionSkipWarn, validation: actionSkipWarn, store: actionRetry},
}

func policyFor(k event.Kind) policy {
	if p, ok := policies[k]; ok {
		return p
	}
	return policy{missing: actionSkipWarn, validation: actionSkipWarn, store: actionRetry}
}

// decide maps an error to an action. Unclassified errors count as store
// failures.
func (p policy) decide(err error) action {
	switch failure.KindOf(err) {
	case failure.KindFatal:
		return actionFatal
	case failure.KindMissing:
		return p.missing
	case failure.KindValidation:
		return p.validation
	}
	return p.store
}
