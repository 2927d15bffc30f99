package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/failure"
	"paddlers.io/internal/sim/tuning"
)

const buildingColumns = `id, village_id, type, x, y, level, created, completes_at, completed, producing_since`

func scanBuilding(row scanner) (store.Building, error) {
	var (
		b                    store.Building
		created, completesAt int64
		completed            int
		producing            sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.VillageID, &b.Type, &b.Tile.X, &b.Tile.Y, &b.Level,
		&created, &completesAt, &completed, &producing)
	if err != nil {
		return store.Building{}, err
	}
	b.Created = clockOf(created)
	b.CompletesAt = clockOf(completesAt)
	b.Completed = completed != 0
	b.ProducingSince = timePtr(producing)
	return b, nil
}

func (s *Store) queryBuildings(ctx context.Context, what, query string, args ...any) ([]store.Building, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()
	var out []store.Building
	for rows.Next() {
		b, err := scanBuilding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan building: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBuilding(ctx context.Context, id int64) (store.Building, error) {
	b, err := scanBuilding(s.db.QueryRowContext(ctx, `SELECT `+buildingColumns+` FROM buildings WHERE id = ?`, id))
	if err != nil {
		return store.Building{}, notFound(err, "building", id)
	}
	return b, nil
}

func (s *Store) ListBuildings(ctx context.Context, villageID int64) ([]store.Building, error) {
	return s.queryBuildings(ctx, "list buildings",
		`SELECT `+buildingColumns+` FROM buildings WHERE village_id = ? ORDER BY id`, villageID)
}

func (s *Store) ListIncompleteBuildings(ctx context.Context) ([]store.Building, error) {
	return s.queryBuildings(ctx, "list incomplete buildings",
		`SELECT `+buildingColumns+` FROM buildings WHERE completed = 0 ORDER BY completes_at, id`)
}

func (s *Store) ListIdleProducers(ctx context.Context, types []string) ([]store.Building, error) {
	if len(types) == 0 {
		return nil, nil
	}
	args := make([]any, len(types))
	for i, t := range types {
		args[i] = t
	}
	return s.queryBuildings(ctx, "list idle producers",
		`SELECT `+buildingColumns+` FROM buildings
WHERE completed = 1 AND producing_since IS NULL AND type IN (`+placeholders(len(types))+`)
ORDER BY id`, args...)
}

// PurchaseBuilding checks the tile, spends the cost and inserts the
// building in one transaction.
func (s *Store) PurchaseBuilding(ctx context.Context, nb store.NewBuilding) (store.Building, error) {
	var out store.Building
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := getVillage(ctx, tx, nb.VillageID); err != nil {
			return err
		}
		var taken int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM buildings WHERE village_id = ? AND x = ? AND y = ?`,
			nb.VillageID, nb.Tile.X, nb.Tile.Y).Scan(&taken); err != nil {
			return fmt.Errorf("check tile: %w", err)
		}
		if taken > 0 {
			return failure.Validation("E_CONFLICT", "tile (%d,%d) is occupied", nb.Tile.X, nb.Tile.Y)
		}
		ok, err := spend(ctx, tx, nb.VillageID, nb.Cost)
		if err != nil {
			return err
		}
		if !ok {
			return failure.Validation("E_NO_RESOURCE", "not enough resources for %s", nb.Type)
		}
		res, err := tx.ExecContext(ctx, `
INSERT INTO buildings (village_id, type, x, y, level, created, completes_at, completed)
VALUES (?, ?, ?, ?, 1, ?, ?, 0)`,
			nb.VillageID, nb.Type, nb.Tile.X, nb.Tile.Y, int64(nb.Created), int64(nb.CompletesAt))
		if err != nil {
			return fmt.Errorf("insert building: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		out = store.Building{
			ID: id, VillageID: nb.VillageID, Type: nb.Type, Tile: nb.Tile, Level: 1,
			Created: nb.Created, CompletesAt: nb.CompletesAt,
		}
		return nil
	})
	return out, err
}

func (s *Store) DeleteBuilding(ctx context.Context, villageID, buildingID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM buildings WHERE id = ? AND village_id = ?`, buildingID, villageID)
	if err != nil {
		return fmt.Errorf("delete building: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return err
	}
	if !ok {
		return failure.Missing("E_NOT_FOUND", "building %d not found in village %d", buildingID, villageID)
	}
	return nil
}

// CompleteBuilding flips completed from 0 to 1. A missing building is a
// failure.Missing; an already completed one reports false.
func (s *Store) CompleteBuilding(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE buildings SET completed = 1 WHERE id = ? AND completed = 0`, id)
	if err != nil {
		return false, fmt.Errorf("complete building: %w", err)
	}
	ok, err := affected(res)
	if err != nil || ok {
		return ok, err
	}
	if _, err := s.GetBuilding(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) StartProduction(ctx context.Context, id int64, since clock.Timestamp, backlog func(clock.Timestamp) tuning.Price) (bool, error) {
	var started bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		b, err := scanBuilding(tx.QueryRowContext(ctx, `SELECT `+buildingColumns+` FROM buildings WHERE id = ?`, id))
		if err != nil {
			return notFound(err, "building", id)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE buildings SET producing_since = ? WHERE id = ? AND completed = 1 AND producing_since IS NULL`,
			int64(since), id)
		if err != nil {
			return fmt.Errorf("start production: %w", err)
		}
		if started, err = affected(res); err != nil || !started || backlog == nil {
			return err
		}
		v, err := getVillage(ctx, tx, b.VillageID)
		if err != nil {
			return err
		}
		if v.LastTick <= since {
			return nil
		}
		return credit(ctx, tx, b.VillageID, backlog(v.LastTick))
	})
	if err != nil {
		return false, err
	}
	return started, nil
}
