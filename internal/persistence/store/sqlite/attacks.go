package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/failure"
	"paddlers.io/internal/sim/town"
)

const attackColumns = `id, origin_village_id, target_village_id, state, departure, arrival, reject_reason, satisfied, karma_awarded`

// activeStates lists the states that occupy target capacity.
const activeStates = `('admitted', 'in_flight', 'arrived')`

func scanAttack(row scanner) (store.Attack, error) {
	var (
		a                  store.Attack
		origin             sql.NullInt64
		state              string
		departure, arrival int64
	)
	err := row.Scan(&a.ID, &origin, &a.TargetVillageID, &state, &departure, &arrival,
		&a.RejectReason, &a.Satisfied, &a.KarmaAwarded)
	if err != nil {
		return store.Attack{}, err
	}
	if origin.Valid {
		id := origin.Int64
		a.OriginVillageID = &id
	}
	a.State = store.AttackState(state)
	a.Departure = clockOf(departure)
	a.Arrival = clockOf(arrival)
	return a, nil
}

func getAttack(ctx context.Context, q queryer, id int64) (store.Attack, error) {
	a, err := scanAttack(q.QueryRowContext(ctx, `SELECT `+attackColumns+` FROM attacks WHERE id = ?`, id))
	if err != nil {
		return store.Attack{}, notFound(err, "attack", id)
	}
	return a, nil
}

func (s *Store) GetAttack(ctx context.Context, id int64) (store.Attack, error) {
	return getAttack(ctx, s.db, id)
}

// ListAttacks lists attacks in the given states, or all attacks.
func (s *Store) ListAttacks(ctx context.Context, states ...store.AttackState) ([]store.Attack, error) {
	query := `SELECT ` + attackColumns + ` FROM attacks`
	args := make([]any, len(states))
	for i, st := range states {
		args[i] = string(st)
	}
	if len(states) > 0 {
		query += ` WHERE state IN (` + placeholders(len(states)) + `)`
	}
	query += ` ORDER BY arrival, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attacks: %w", err)
	}
	defer rows.Close()
	var out []store.Attack
	for rows.Next() {
		a, err := scanAttack(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attack: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func insertAttack(ctx context.Context, tx *sql.Tx, origin *int64, target int64, departure, arrival clock.Timestamp) (int64, error) {
	var originArg sql.NullInt64
	if origin != nil {
		originArg = sql.NullInt64{Int64: *origin, Valid: true}
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO attacks (origin_village_id, target_village_id, state, departure, arrival)
VALUES (?, ?, ?, ?, ?)`,
		originArg, target, string(store.AttackDrafted), int64(departure), int64(arrival))
	if err != nil {
		return 0, fmt.Errorf("insert attack: %w", err)
	}
	return res.LastInsertId()
}

func attachUnit(ctx context.Context, tx *sql.Tx, attackID, unitID int64) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO attack_units (attack_id, unit_id) VALUES (?, ?)`, attackID, unitID); err != nil {
		return fmt.Errorf("attach unit %d: %w", unitID, err)
	}
	return nil
}

// DraftAttack checks the units belong to the origin and are free, then
// inserts a drafted attack.
func (s *Store) DraftAttack(ctx context.Context, na store.NewAttack) (store.Attack, error) {
	if len(na.UnitIDs) == 0 {
		return store.Attack{}, failure.Validation("E_BAD_REQUEST", "attack needs at least one unit")
	}
	if na.OriginVillageID == na.TargetVillageID {
		return store.Attack{}, failure.Validation("E_BAD_REQUEST", "a village cannot visit itself")
	}
	var out store.Attack
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getVillage(ctx, tx, na.TargetVillageID); err != nil {
			return err
		}
		for _, id := range na.UnitIDs {
			u, err := scanUnit(tx.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id))
			if err != nil {
				return notFound(err, "unit", id)
			}
			if u.HomeVillageID == nil || *u.HomeVillageID != na.OriginVillageID {
				return failure.Validation("E_BAD_REQUEST", "unit %d does not live in village %d", id, na.OriginVillageID)
			}
			if u.Kind != store.UnitHobo {
				return failure.Validation("E_BAD_REQUEST", "unit %d is not a hobo", id)
			}
			if u.Released != nil {
				return failure.Validation("E_BAD_REQUEST", "unit %d has been released", id)
			}
			var busy int
			if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM attack_units au JOIN attacks a ON a.id = au.attack_id
WHERE au.unit_id = ? AND a.state NOT IN ('resolved', 'rejected')`, id).Scan(&busy); err != nil {
				return fmt.Errorf("check unit %d: %w", id, err)
			}
			if busy > 0 {
				return failure.Validation("E_CONFLICT", "unit %d is already on the way", id)
			}
		}

		origin := na.OriginVillageID
		id, err := insertAttack(ctx, tx, &origin, na.TargetVillageID, na.Departure, na.Arrival)
		if err != nil {
			return err
		}
		for _, uid := range na.UnitIDs {
			if err := attachUnit(ctx, tx, id, uid); err != nil {
				return err
			}
		}
		out = store.Attack{
			ID: id, OriginVillageID: &origin, TargetVillageID: na.TargetVillageID,
			State: store.AttackDrafted, Departure: na.Departure, Arrival: na.Arrival,
		}
		return nil
	})
	return out, err
}

// SpawnAttack advances next_spawn and, for a positive roll, creates the
// hobos and their drafted attack in the same transaction.
func (s *Store) SpawnAttack(ctx context.Context, villageID int64, prev, next clock.Timestamp, draft *store.SpawnDraft) (*store.Attack, bool, error) {
	var out *store.Attack
	applied := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE villages SET next_spawn = ? WHERE id = ? AND next_spawn = ?`,
			int64(next), villageID, int64(prev))
		if err != nil {
			return fmt.Errorf("advance spawn: %w", err)
		}
		ok, err := affected(res)
		if err != nil || !ok {
			return err
		}
		applied = true
		if draft == nil || len(draft.Hobos) == 0 {
			return nil
		}

		id, err := insertAttack(ctx, tx, nil, villageID, draft.Departure, draft.Arrival)
		if err != nil {
			return err
		}
		for _, h := range draft.Hobos {
			res, err := tx.ExecContext(ctx,
				`INSERT INTO units (home_village_id, kind, hp, speed, hurried) VALUES (NULL, ?, ?, ?, ?)`,
				string(store.UnitHobo), h.HP, h.Speed, boolInt(h.Hurried))
			if err != nil {
				return fmt.Errorf("insert hobo: %w", err)
			}
			uid, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if err := attachUnit(ctx, tx, id, uid); err != nil {
				return err
			}
		}
		out = &store.Attack{
			ID: id, TargetVillageID: villageID, State: store.AttackDrafted,
			Departure: draft.Departure, Arrival: draft.Arrival,
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, applied, nil
}

// AdmitAttack decides admission in a single UPDATE: the capacity count and
// the state change cannot interleave with another admission.
func (s *Store) AdmitAttack(ctx context.Context, attackID int64) (store.AttackState, error) {
	var state store.AttackState
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := getAttack(ctx, tx, attackID)
		if err != nil {
			return err
		}
		if a.State != store.AttackDrafted {
			state = a.State
			return nil
		}
		_, err = tx.ExecContext(ctx, `
UPDATE attacks
SET state = CASE
		WHEN (SELECT COUNT(*) FROM attacks o WHERE o.target_village_id = attacks.target_village_id AND o.state IN `+activeStates+`)
			< (SELECT capacity FROM villages v WHERE v.id = attacks.target_village_id)
		THEN 'admitted' ELSE 'rejected' END,
	reject_reason = CASE
		WHEN (SELECT COUNT(*) FROM attacks o WHERE o.target_village_id = attacks.target_village_id AND o.state IN `+activeStates+`)
			< (SELECT capacity FROM villages v WHERE v.id = attacks.target_village_id)
		THEN '' ELSE 'capacity' END
WHERE id = ? AND state = 'drafted'`, attackID)
		if err != nil {
			return fmt.Errorf("admit attack: %w", err)
		}
		var st string
		if err := tx.QueryRowContext(ctx, `SELECT state FROM attacks WHERE id = ?`, attackID).Scan(&st); err != nil {
			return fmt.Errorf("read admitted state: %w", err)
		}
		state = store.AttackState(st)
		return nil
	})
	return state, err
}

func (s *Store) TransitionAttack(ctx context.Context, attackID int64, from, to store.AttackState) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attacks SET state = ? WHERE id = ? AND state = ?`, string(to), attackID, string(from))
	if err != nil {
		return false, fmt.Errorf("transition attack %s->%s: %w", from, to, err)
	}
	ok, err := affected(res)
	if err != nil || ok {
		return ok, err
	}
	if _, err := s.GetAttack(ctx, attackID); err != nil {
		return false, err
	}
	return false, nil
}

// AttackingHobos builds the defence read model for an attack.
func (s *Store) AttackingHobos(ctx context.Context, attackID int64) ([]town.AttackingHobo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT u.id, u.hp, u.speed, u.hurried, u.effects, u.released, a.arrival
FROM attack_units au
JOIN units u ON u.id = au.unit_id
JOIN attacks a ON a.id = au.attack_id
WHERE au.attack_id = ?
ORDER BY u.id`, attackID)
	if err != nil {
		return nil, fmt.Errorf("attacking hobos: %w", err)
	}
	defer rows.Close()
	var out []town.AttackingHobo
	for rows.Next() {
		var (
			h        town.AttackingHobo
			hurried  int
			released sql.NullInt64
			arrival  int64
		)
		if err := rows.Scan(&h.UnitID, &h.HP, &h.Speed, &hurried, &h.Effects, &released, &arrival); err != nil {
			return nil, fmt.Errorf("scan hobo: %w", err)
		}
		h.Hurried = hurried != 0
		h.Released = timePtr(released)
		h.Arrival = clockOf(arrival)
		out = append(out, h)
	}
	return out, rows.Err()
}

// ResolveAttack applies the defence outcome: Arrived -> Resolved, unit
// attrition, and the reward for the defending player. Spawned hobos that
// leave unsatisfied move into the target village.
func (s *Store) ResolveAttack(ctx context.Context, attackID int64, o store.AttackOutcome) (bool, error) {
	applied := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := getAttack(ctx, tx, attackID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
UPDATE attacks SET state = ?, satisfied = ?, karma_awarded = ? WHERE id = ? AND state = ?`,
			string(store.AttackResolved), o.Satisfied, o.Karma, attackID, string(store.AttackArrived))
		if err != nil {
			return fmt.Errorf("resolve attack: %w", err)
		}
		ok, err := affected(res)
		if err != nil || !ok {
			return err
		}
		applied = true

		for _, h := range o.Hobos {
			if h.Satisfied {
				_, err = tx.ExecContext(ctx, `UPDATE units SET hp = 0, released = ? WHERE id = ?`, int64(h.At), h.UnitID)
			} else {
				// Unsatisfied spawned visitors stay in the town they visited.
				_, err = tx.ExecContext(ctx,
					`UPDATE units SET hp = ?, home_village_id = COALESCE(home_village_id, ?) WHERE id = ?`,
					h.RemainingHP, a.TargetVillageID, h.UnitID)
			}
			if err != nil {
				return fmt.Errorf("update hobo %d: %w", h.UnitID, err)
			}
		}

		if o.Feathers != 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE villages SET feathers = feathers + ? WHERE id = ?`, o.Feathers, a.TargetVillageID); err != nil {
				return fmt.Errorf("reward feathers: %w", err)
			}
		}
		if o.Karma != 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE players SET karma = karma + ? WHERE id = (SELECT player_id FROM villages WHERE id = ?)`,
				o.Karma, a.TargetVillageID); err != nil {
				return fmt.Errorf("reward karma: %w", err)
			}
		}
		return nil
	})
	return applied, err
}
