package db

import (
	"errors"
	"strings"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueFailMsg  = "UNIQUE constraint failed"
	pgUniqueViolationMsg = "duplicate key value violates unique constraint"
)

// IsDuplicateKeyErr reports whether err is a unique constraint violation from
// any supported dialect, translated by gorm or not.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	// drivers that only surface text, e.g. pure-go sqlite
	msg := err.Error()
	return strings.Contains(msg, sqliteUniqueFailMsg) || strings.Contains(msg, pgUniqueViolationMsg)
}
