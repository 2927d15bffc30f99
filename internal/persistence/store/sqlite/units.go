package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/failure"
	"paddlers.io/internal/sim/tuning"
)

const unitColumns = `id, home_village_id, kind, hp, speed, hurried, effects, released`

func scanUnit(row scanner) (store.Unit, error) {
	var (
		u        store.Unit
		home     sql.NullInt64
		kind     string
		hurried  int
		released sql.NullInt64
	)
	if err := row.Scan(&u.ID, &home, &kind, &u.HP, &u.Speed, &hurried, &u.Effects, &released); err != nil {
		return store.Unit{}, err
	}
	if home.Valid {
		id := home.Int64
		u.HomeVillageID = &id
	}
	u.Kind = store.UnitKind(kind)
	u.Hurried = hurried != 0
	u.Released = timePtr(released)
	return u, nil
}

func (s *Store) GetUnit(ctx context.Context, id int64) (store.Unit, error) {
	u, err := scanUnit(s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id))
	if err != nil {
		return store.Unit{}, notFound(err, "unit", id)
	}
	return u, nil
}

func (s *Store) ListUnits(ctx context.Context, villageID int64) ([]store.Unit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE home_village_id = ? ORDER BY id`, villageID)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()
	var out []store.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const countUnitsQuery = `
SELECT COUNT(*) FROM units u JOIN villages v ON v.id = u.home_village_id
WHERE v.player_id = ? AND u.kind = ?`

func (s *Store) CountUnits(ctx context.Context, playerID int64, kind store.UnitKind) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countUnitsQuery, playerID, string(kind)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return n, nil
}

// PurchaseProphet rejects with E_CONFLICT if the prophet count moved since
// the caller priced the purchase.
func (s *Store) PurchaseProphet(ctx context.Context, villageID int64, price tuning.Price, owned int) (store.Unit, error) {
	var out store.Unit
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		v, err := getVillage(ctx, tx, villageID)
		if err != nil {
			return err
		}
		var n int
		if err := tx.QueryRowContext(ctx, countUnitsQuery, v.PlayerID, string(store.UnitProphet)).Scan(&n); err != nil {
			return fmt.Errorf("count prophets: %w", err)
		}
		if n != owned {
			return failure.Validation("E_CONFLICT", "prophet count changed (%d, expected %d)", n, owned)
		}
		ok, err := spend(ctx, tx, villageID, price)
		if err != nil {
			return err
		}
		if !ok {
			return failure.Validation("E_NO_RESOURCE", "not enough resources for a prophet")
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO units (home_village_id, kind, hp, speed) VALUES (?, ?, 1, 0)`,
			villageID, string(store.UnitProphet))
		if err != nil {
			return fmt.Errorf("insert prophet: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		home := villageID
		out = store.Unit{ID: id, HomeVillageID: &home, Kind: store.UnitProphet, HP: 1}
		return nil
	})
	return out, err
}

const taskColumns = `id, unit_id, seq, type, x, y, start, started, finished`

func scanTask(row scanner) (store.Task, error) {
	var (
		t                 store.Task
		typ               string
		start             int64
		started, finished int
	)
	if err := row.Scan(&t.ID, &t.UnitID, &t.Seq, &typ, &t.Tile.X, &t.Tile.Y, &start, &started, &finished); err != nil {
		return store.Task{}, err
	}
	t.Type = store.TaskType(typ)
	t.Start = clockOf(start)
	t.Started = started != 0
	t.Finished = finished != 0
	return t, nil
}

func listTasks(ctx context.Context, q queryer, query string, args ...any) ([]store.Task, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []store.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListTasks(ctx context.Context, unitID int64) ([]store.Task, error) {
	return listTasks(ctx, s.db, `SELECT `+taskColumns+` FROM tasks WHERE unit_id = ? ORDER BY seq`, unitID)
}

// ReplaceTasks drops the unit's tasks that have not started and appends
// the new list after the remaining ones.
func (s *Store) ReplaceTasks(ctx context.Context, unitID int64, tasks []store.NewTask) ([]store.Task, error) {
	var out []store.Task
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM units WHERE id = ?`, unitID).Scan(&exists); err != nil {
			return fmt.Errorf("check unit: %w", err)
		}
		if exists == 0 {
			return failure.Missing("E_NOT_FOUND", "unit %d not found", unitID)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE unit_id = ? AND started = 0`, unitID); err != nil {
			return fmt.Errorf("delete pending tasks: %w", err)
		}
		var seq int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM tasks WHERE unit_id = ?`, unitID).Scan(&seq); err != nil {
			return fmt.Errorf("max task seq: %w", err)
		}
		out = make([]store.Task, 0, len(tasks))
		for _, nt := range tasks {
			seq++
			res, err := tx.ExecContext(ctx,
				`INSERT INTO tasks (unit_id, seq, type, x, y, start) VALUES (?, ?, ?, ?, ?, ?)`,
				unitID, seq, string(nt.Type), nt.Tile.X, nt.Tile.Y, int64(nt.Start))
			if err != nil {
				return fmt.Errorf("insert task: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			out = append(out, store.Task{ID: id, UnitID: unitID, Seq: seq, Type: nt.Type, Tile: nt.Tile, Start: nt.Start})
		}
		return nil
	})
	return out, err
}

// StartTask marks the task started, finishes the task it replaces and
// credits that task's reward to the unit's home village. Starting an
// already started task reports Applied=false.
func (s *Store) StartTask(ctx context.Context, unitID, taskID int64, rewards map[string]tuning.Price) (store.TaskAdvance, error) {
	var out store.TaskAdvance
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		task, err := scanTask(tx.QueryRowContext(ctx,
			`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND unit_id = ?`, taskID, unitID))
		if err != nil {
			return notFound(err, "task", taskID)
		}
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET started = 1 WHERE id = ? AND started = 0`, taskID)
		if err != nil {
			return fmt.Errorf("start task: %w", err)
		}
		if ok, err := affected(res); err != nil || !ok {
			return err
		}
		out.Applied = true

		prev, err := listTasks(ctx, tx, `SELECT `+taskColumns+` FROM tasks
WHERE unit_id = ? AND started = 1 AND finished = 0 AND seq < ? ORDER BY seq`, unitID, task.Seq)
		if err != nil {
			return err
		}
		if len(prev) > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE tasks SET finished = 1 WHERE unit_id = ? AND started = 1 AND finished = 0 AND seq < ?`,
				unitID, task.Seq); err != nil {
				return fmt.Errorf("finish tasks: %w", err)
			}
			last := prev[len(prev)-1]
			last.Finished = true
			out.Finished = &last

			var home sql.NullInt64
			if err := tx.QueryRowContext(ctx, `SELECT home_village_id FROM units WHERE id = ?`, unitID).Scan(&home); err != nil {
				return fmt.Errorf("load unit home: %w", err)
			}
			if home.Valid {
				var reward tuning.Price
				for _, p := range prev {
					reward = reward.Add(rewards[string(p.Type)])
				}
				if err := credit(ctx, tx, home.Int64, reward); err != nil {
					return err
				}
			}
		}

		next, err := listTasks(ctx, tx, `SELECT `+taskColumns+` FROM tasks
WHERE unit_id = ? AND started = 0 AND seq > ? ORDER BY seq LIMIT 1`, unitID, task.Seq)
		if err != nil {
			return err
		}
		if len(next) > 0 {
			out.Next = &next[0]
		}
		return nil
	})
	return out, err
}

func (s *Store) ListNextTasks(ctx context.Context) ([]store.Task, error) {
	return listTasks(ctx, s.db, `SELECT `+taskColumns+` FROM tasks t
WHERE t.started = 0 AND t.seq = (
	SELECT MIN(seq) FROM tasks t2 WHERE t2.unit_id = t.unit_id AND t2.started = 0
)
ORDER BY t.start, t.unit_id`)
}
