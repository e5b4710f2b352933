package sqldb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate brings the schema up to date. It opens its own connection
// because the migrate drivers close the handle they are given.
func Migrate(driver, dsn string) error {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("open %s for migration: %w", driver, err)
	}

	var dbDriver database.Driver
	switch driver {
	case DriverSQLite:
		dbDriver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	case DriverPostgres:
		dbDriver, err = migratepostgres.WithInstance(db, &migratepostgres.Config{})
	default:
		_, err = dialectFor(driver)
	}
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		_ = dbDriver.Close()
		return fmt.Errorf("read migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, dbDriver)
	if err != nil {
		_ = dbDriver.Close()
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
