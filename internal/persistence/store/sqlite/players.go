package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/failure"
)

// CreatePlayer inserts the player, the home village and its starting
// workers.
func (s *Store) CreatePlayer(ctx context.Context, p store.NewPlayer) (store.Player, store.Village, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return store.Player{}, store.Village{}, failure.Validation("E_BAD_REQUEST", "player name is required")
	}
	if p.Capacity <= 0 {
		return store.Player{}, store.Village{}, failure.Validation("E_BAD_REQUEST", "village capacity must be > 0")
	}

	var (
		player  store.Player
		village store.Village
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var taken int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM villages WHERE x = ? AND y = ?`, p.X, p.Y).Scan(&taken)
		if err != nil {
			return fmt.Errorf("check map position: %w", err)
		}
		if taken > 0 {
			return failure.Validation("E_CONFLICT", "map position (%d,%d) is taken", p.X, p.Y)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO players (name, karma, story_state, created_at) VALUES (?, 0, ?, ?)`,
			p.Name, p.StoryState, int64(p.Now))
		if err != nil {
			return fmt.Errorf("insert player: %w", err)
		}
		playerID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		player = store.Player{ID: playerID, Name: p.Name, StoryState: p.StoryState, CreatedAt: p.Now}

		res, err = tx.ExecContext(ctx, `
INSERT INTO villages (player_id, x, y, capacity, last_tick, next_spawn, feathers, sticks, logs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			playerID, p.X, p.Y, p.Capacity, int64(p.Now), nullTime(p.NextSpawn),
			p.Resources.Feathers, p.Resources.Sticks, p.Resources.Logs)
		if err != nil {
			return fmt.Errorf("insert village: %w", err)
		}
		villageID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		village = store.Village{
			ID: villageID, PlayerID: playerID, X: p.X, Y: p.Y, Capacity: p.Capacity,
			LastTick: p.Now, NextSpawn: p.NextSpawn, Resources: p.Resources,
		}

		for i := 0; i < p.Workers; i++ {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO units (home_village_id, kind, hp, speed) VALUES (?, ?, ?, ?)`,
				villageID, string(store.UnitBasic), p.WorkerHP, p.WorkerSpeed); err != nil {
				return fmt.Errorf("insert worker: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return store.Player{}, store.Village{}, err
	}
	return player, village, nil
}

func (s *Store) GetPlayer(ctx context.Context, id int64) (store.Player, error) {
	var p store.Player
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, karma, story_state, created_at FROM players WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Karma, &p.StoryState, &created)
	if err != nil {
		return store.Player{}, notFound(err, "player", id)
	}
	p.CreatedAt = clockOf(created)
	return p, nil
}

// TransitionStory moves the story state only if it is still from.
func (s *Store) TransitionStory(ctx context.Context, playerID int64, from, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET story_state = ? WHERE id = ? AND story_state = ?`, to, playerID, from)
	if err != nil {
		return false, fmt.Errorf("transition story: %w", err)
	}
	return affected(res)
}

func (s *Store) InsertStatistics(ctx context.Context, st store.Statistics) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runtime_statistics (player_id, session_duration_us, fps, raw, recorded_at)
VALUES (?, ?, ?, ?, ?)`,
		st.PlayerID, st.SessionDuration.Microseconds(), st.FPS, st.Raw, int64(st.RecordedAt))
	if err != nil {
		return fmt.Errorf("insert statistics: %w", err)
	}
	return nil
}
