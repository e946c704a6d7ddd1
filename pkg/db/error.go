package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// errorClass groups the postgres SQLSTATE codes and the driver message
// fragments (mysql, sqlite) that signal the same condition.
type errorClass struct {
	pgCodes   []string
	fragments []string
}

var (
	duplicateKey = errorClass{
		pgCodes: []string{"23505"},
		fragments: []string{
			"duplicate key value violates unique constraint",
			"Error 1062",
			"UNIQUE constraint failed",
		},
	}
	// Serialization failure, deadlock, lock_not_available, and the mysql
	// and sqlite equivalents. All of them clear on a full retry.
	transient = errorClass{
		pgCodes: []string{"40001", "40P01", "55P03"},
		fragments: []string{
			"Error 1213",
			"Error 1205",
			"database is locked",
			"database table is locked",
			"SQLITE_BUSY",
		},
	}
)

func (c errorClass) matches(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, code := range c.pgCodes {
			if pgErr.Code == code {
				return true
			}
		}
	}
	msg := err.Error()
	for _, fragment := range c.fragments {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

// IsDuplicateKeyErr reports a unique constraint violation.
func IsDuplicateKeyErr(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || duplicateKey.matches(err)
}

// IsTransientErr reports errors that resolve by retrying the whole
// transaction.
func IsTransientErr(err error) bool {
	return transient.matches(err)
}

// SQLState returns the postgres error code carried by err, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
