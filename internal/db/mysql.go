package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmehdipour/agency-crm/internal/config"
	"github.com/jmoiron/sqlx"
)

// NewMySQLConnection opens the primary store. parseTime is forced on so
// DATETIME columns scan into time.Time.
func NewMySQLConnection(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("empty MySQL DSN")
	}

	parsed, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse MySQL DSN: %w", err)
	}
	parsed.ParseTime = true
	cfg.DSN = parsed.FormatDSN()

	return openPool("mysql", cfg, 5*time.Second)
}

const (
	mysqlErrDupEntry      = 1062
	mysqlErrNoReferenced  = 1452
	mysqlErrNoReferenced2 = 1216

	// strict-mode rejections of a value that does not fit its column
	mysqlErrOutOfRange  = 1264
	mysqlErrTruncated   = 1265
	mysqlErrBadValue    = 1366
	mysqlErrDataTooLong = 1406
)

// IsDuplicateKey reports whether err is a MySQL unique-key violation.
func IsDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlErrDupEntry
}

// IsForeignKeyViolation reports whether err is a MySQL missing-parent error.
func IsForeignKeyViolation(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && (me.Number == mysqlErrNoReferenced || me.Number == mysqlErrNoReferenced2)
}

// IsDataTooLarge reports whether err is a MySQL strict-mode rejection of a
// value that does not fit its column.
func IsDataTooLarge(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case mysqlErrOutOfRange, mysqlErrTruncated, mysqlErrBadValue, mysqlErrDataTooLong:
		return true
	}
	return false
}
