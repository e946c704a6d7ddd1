package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: transactions.external_id")))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
	assert.False(t, IsDuplicateKeyErr(nil))
}

func TestIsTransientErr(t *testing.T) {
	assert.True(t, IsTransientErr(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))
	assert.True(t, IsTransientErr(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsTransientErr(&pgconn.PgError{Code: "55P03"}))
	assert.True(t, IsTransientErr(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, IsTransientErr(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsTransientErr(nil))
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(Config{Type: "oracle"})
	require.Error(t, err)

	d, err := Dialect(Config{Type: "sqlite", Name: ":memory:"})
	require.NoError(t, err)
	assert.Equal(t, DialectSQLite, d.Name())
}

func TestForUpdateOnPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	type row struct {
		ID int64
	}
	stmt := ForUpdate(conn.Session(&gorm.Session{DryRun: true})).Table("balances").Where("id = ?", 1).Find(&[]row{}).Statement
	assert.Contains(t, stmt.SQL.String(), "FOR UPDATE")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestForUpdateSkippedOnSQLite(t *testing.T) {
	conn, err := NewTest()
	require.NoError(t, err)

	type row struct {
		ID int64
	}
	stmt := ForUpdate(conn.Session(&gorm.Session{DryRun: true})).Table("balances").Where("id = ?", 1).Find(&[]row{}).Statement
	assert.NotContains(t, stmt.SQL.String(), "FOR UPDATE")
	assert.True(t, IsSQLite(conn))
}
