package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/tuning"
)

const villageColumns = `id, player_id, x, y, capacity, last_tick, next_spawn, feathers, sticks, logs`

type scanner interface {
	Scan(dest ...any) error
}

func clockOf(us int64) clock.Timestamp { return clock.Timestamp(us) }

func scanVillage(row scanner) (store.Village, error) {
	var (
		v         store.Village
		lastTick  int64
		nextSpawn sql.NullInt64
	)
	err := row.Scan(&v.ID, &v.PlayerID, &v.X, &v.Y, &v.Capacity, &lastTick, &nextSpawn,
		&v.Resources.Feathers, &v.Resources.Sticks, &v.Resources.Logs)
	if err != nil {
		return store.Village{}, err
	}
	v.LastTick = clockOf(lastTick)
	v.NextSpawn = timePtr(nextSpawn)
	return v, nil
}

func getVillage(ctx context.Context, q queryer, id int64) (store.Village, error) {
	v, err := scanVillage(q.QueryRowContext(ctx, `SELECT `+villageColumns+` FROM villages WHERE id = ?`, id))
	if err != nil {
		return store.Village{}, notFound(err, "village", id)
	}
	return v, nil
}

func (s *Store) GetVillage(ctx context.Context, id int64) (store.Village, error) {
	return getVillage(ctx, s.db, id)
}

func (s *Store) VillageAt(ctx context.Context, x, y int) (store.Village, error) {
	v, err := scanVillage(s.db.QueryRowContext(ctx, `SELECT `+villageColumns+` FROM villages WHERE x = ? AND y = ?`, x, y))
	if err != nil {
		return store.Village{}, notFound(err, "village at", fmt.Sprintf("(%d,%d)", x, y))
	}
	return v, nil
}

func (s *Store) ListVillages(ctx context.Context) ([]store.Village, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+villageColumns+` FROM villages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list villages: %w", err)
	}
	defer rows.Close()
	var out []store.Village
	for rows.Next() {
		v, err := scanVillage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan village: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ApplyEconomyTick is a compare-and-set on last_tick; a second call with
// the same prev does nothing.
func (s *Store) ApplyEconomyTick(ctx context.Context, villageID int64, prev, next clock.Timestamp, delta tuning.Price) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
UPDATE villages
SET last_tick = ?, feathers = feathers + ?, sticks = sticks + ?, logs = logs + ?
WHERE id = ? AND last_tick = ?`,
		int64(next), delta.Feathers, delta.Sticks, delta.Logs, villageID, int64(prev))
	if err != nil {
		return false, fmt.Errorf("apply economy tick: %w", err)
	}
	return affected(res)
}

// spend deducts price from the village if it can afford it.
func spend(ctx context.Context, tx *sql.Tx, villageID int64, price tuning.Price) (bool, error) {
	res, err := tx.ExecContext(ctx, `
UPDATE villages
SET feathers = feathers - ?, sticks = sticks - ?, logs = logs - ?
WHERE id = ? AND feathers >= ? AND sticks >= ? AND logs >= ?`,
		price.Feathers, price.Sticks, price.Logs, villageID,
		price.Feathers, price.Sticks, price.Logs)
	if err != nil {
		return false, fmt.Errorf("spend resources: %w", err)
	}
	return affected(res)
}

func credit(ctx context.Context, tx *sql.Tx, villageID int64, p tuning.Price) error {
	if p.IsZero() {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
UPDATE villages SET feathers = feathers + ?, sticks = sticks + ?, logs = logs + ? WHERE id = ?`,
		p.Feathers, p.Sticks, p.Logs, villageID)
	if err != nil {
		return fmt.Errorf("credit resources: %w", err)
	}
	return nil
}
