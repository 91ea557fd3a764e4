package mapdb

import (
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrator builds a migrate instance over the open handle. It is never
// closed because that would close db.DB with it.
func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("embedded migrations: %w", err)
	}
	drv, err := sqlitemigrate.WithInstance(db.DB, &sqlitemigrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("migrate sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	m.Log = migrateLog{}
	return m, nil
}

func (db *DB) runMigration(name string, step func(*migrate.Migrate) error) error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", name, err)
	}
	return nil
}

// MigrateUp applies pending migrations. An up-to-date schema is not an error.
func (db *DB) MigrateUp() error {
	return db.runMigration("up", (*migrate.Migrate).Up)
}

// MigrateDown reverts the newest applied migration.
func (db *DB) MigrateDown() error {
	return db.runMigration("down", func(m *migrate.Migrate) error { return m.Steps(-1) })
}

// MigrateVersion reports the schema version and dirty flag; an empty
// database is version 0.
func (db *DB) MigrateVersion() (uint, bool, error) {
	m, err := db.migrator()
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

type migrateLog struct{}

func (migrateLog) Printf(format string, v ...any) { log.Printf("[mapdb] migrate: "+format, v...) }
func (migrateLog) Verbose() bool                  { return false }
