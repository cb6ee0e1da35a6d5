package txn

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err = Run(context.Background(), db, sql.LevelDefault, func(ctx context.Context) error {
		tx, ok := Current(ctx)
		require.True(t, ok)
		_, execErr := tx.ExecContext(ctx, "UPDATE users SET name = ?", "a")
		return execErr
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_RollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = Run(context.Background(), db, sql.LevelDefault, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ReusesAmbientTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// One Begin/Commit pair for two nested Run calls.
	mock.ExpectBegin()
	mock.ExpectCommit()

	err = Run(context.Background(), db, sql.LevelDefault, func(ctx context.Context) error {
		outer, ok := Current(ctx)
		require.True(t, ok)
		return Run(ctx, db, sql.LevelSerializable, func(inner context.Context) error {
			tx, ok := Current(inner)
			require.True(t, ok)
			assert.Same(t, outer, tx)
			return nil
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_InnerErrorRollsBackOuter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("inner failed")
	err = Run(context.Background(), db, sql.LevelDefault, func(ctx context.Context) error {
		return Run(ctx, db, sql.LevelDefault, func(context.Context) error {
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTransaction(t *testing.T) {
	ctx := context.Background()
	assert.False(t, InTransaction(ctx))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()

	tx, err := db.Begin()
	require.NoError(t, err)
	assert.True(t, InTransaction(WithTx(ctx, tx)))
}
