package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupMockDB(t *testing.T) (sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)

	return mock, gdb
}

func TestTuneAppliesPoolSettings(t *testing.T) {
	_, gdb := setupMockDB(t)

	cfg := DefaultPoolConfig()
	require.NoError(t, Tune(gdb, cfg, zap.NewNop()))

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxOpenConns, sqlDB.Stats().MaxOpenConnections)
}

func TestRunInTxCommits(t *testing.T) {
	mock, gdb := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := RunInTx(context.Background(), gdb, zap.NewNop(), 3, func(tx *gorm.DB) error {
		return nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackWithoutRetryOnPermanentError(t *testing.T) {
	mock, gdb := setupMockDB(t)
	permanent := errors.New("syntax error near SELECT")

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err := RunInTx(context.Background(), gdb, zap.NewNop(), 3, func(tx *gorm.DB) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRetriesTransientError(t *testing.T) {
	mock, gdb := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err := RunInTx(context.Background(), gdb, zap.NewNop(), 3, func(tx *gorm.DB) error {
		calls++
		if calls == 1 {
			return errors.New("Deadlock found when trying to get lock")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxGivesUpAfterMaxAttempts(t *testing.T) {
	mock, gdb := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectRollback()

	transient := errors.New("connection reset by peer")
	err := RunInTx(context.Background(), gdb, zap.NewNop(), 2, func(tx *gorm.DB) error {
		return transient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, transient)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestRunInTxStopsOnCancelledContext(t *testing.T) {
	mock, gdb := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	ctx, cancel := context.WithCancel(context.Background())
	err := RunInTx(ctx, gdb, zap.NewNop(), 5, func(tx *gorm.DB) error {
		cancel()
		return errors.New("deadlock detected")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":                   {nil, false},
		"deadlock":              {errors.New("Deadlock found when trying to get lock"), true},
		"serialization failure": {errors.New("ERROR: could not serialize access (SQLSTATE 40001)"), true},
		"connection reset":      {errors.New("read tcp: connection reset by peer"), true},
		"bad connection":        {sql.ErrConnDone, false},
		"driver bad conn":       {errors.New("driver: bad connection"), true},
		"lock wait timeout":     {errors.New("Lock wait timeout exceeded"), true},
		"syntax error":          {errors.New("syntax error at or near"), false},
		"not found":             {gorm.ErrRecordNotFound, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}
