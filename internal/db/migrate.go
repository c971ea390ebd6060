package db

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmehdipour/agency-crm/internal/logger"
	"github.com/jmehdipour/agency-crm/migrations"
	"github.com/jmoiron/sqlx"
)

// NewMigrator binds the embedded schema to an open MySQL connection.
func NewMigrator(dbx *sqlx.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migrations source: %w", err)
	}

	driver, err := migratemysql.WithInstance(dbx.DB, &migratemysql.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrations driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return nil, err
	}
	m.Log = migrateLogger{}
	return m, nil
}

// IgnoreNoChange turns migrate.ErrNoChange into success.
func IgnoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	logger.Log.Sugar().Infof(format, v...)
}

func (migrateLogger) Verbose() bool { return false }
