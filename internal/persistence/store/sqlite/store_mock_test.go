package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paddlers.io/internal/persistence/store"
	"paddlers.io/internal/sim/failure"
	"paddlers.io/internal/sim/town"
	"paddlers.io/internal/sim/tuning"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: db}, mock
}

func TestMock_DriverErrorsAreUnclassified(t *testing.T) {
	s, mock := newMockStore(t)
	driverErr := errors.New("database is locked")
	mock.ExpectExec("UPDATE villages").WillReturnError(driverErr)

	ok, err := s.ApplyEconomyTick(context.Background(), 1, 0, 10, tuning.Price{Sticks: 1})
	require.Error(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, err, driverErr)
	assert.Equal(t, failure.KindStore, failure.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_NoRowsIsMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM villages WHERE id = ?").
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetVillage(context.Background(), 42)
	assert.True(t, failure.IsMissing(err), "err=%v", err)
	assert.Equal(t, "E_NOT_FOUND", failure.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_PurchaseRollsBackWhenPoor(t *testing.T) {
	s, mock := newMockStore(t)
	villageRow := sqlmock.NewRows([]string{"id", "player_id", "x", "y", "capacity", "last_tick", "next_spawn", "feathers", "sticks", "logs"}).
		AddRow(int64(1), int64(1), 0, 0, 1, int64(0), nil, int64(5), int64(0), int64(0))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .* FROM villages WHERE id = ?").WillReturnRows(villageRow)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM buildings").WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))
	mock.ExpectExec("UPDATE villages").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := s.PurchaseBuilding(context.Background(), store.NewBuilding{
		VillageID: 1, Type: "saw_mill", Tile: town.Tile{X: 1, Y: 1}, Cost: tuning.Price{Feathers: 60},
	})
	assert.True(t, failure.IsValidation(err), "err=%v", err)
	assert.Equal(t, "E_NO_RESOURCE", failure.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMock_CommitFailureSurfaces(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE villages SET next_spawn").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	_, ok, err := s.SpawnAttack(context.Background(), 1, 10, 20, nil)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "commit")
	assert.Equal(t, failure.KindStore, failure.KindOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
