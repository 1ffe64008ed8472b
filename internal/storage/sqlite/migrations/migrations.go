// Package migrations manages the schema of the stockd SQLite database. The
// SQL files are embedded so the binary migrates its own data file on startup.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/stockd/stockd/internal/log"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migrator applies the embedded schema migrations to a stockd database.
type Migrator struct {
	db     *sql.DB
	logger log.Logger
}

// NewMigrator creates a new migrator over an open database handle.
func NewMigrator(db *sql.DB, logger log.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if logger == nil {
		logger = log.Noop
	}

	return &Migrator{
		db:     db,
		logger: logger.WithValues(log.Kv{"svc": "migrations.Migrator"}),
	}, nil
}

// Up applies all pending migrations, it is a no-op on an up-to-date schema.
func (m *Migrator) Up(ctx context.Context) error {
	inst, cleanup, err := m.instance(ctx)
	defer cleanup()
	if err != nil {
		return err
	}

	err = inst.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	m.logger.Debugf("Schema migrations applied")
	return nil
}

// Down reverts all migrations, dropping the task and market tables.
func (m *Migrator) Down(ctx context.Context) error {
	inst, cleanup, err := m.instance(ctx)
	defer cleanup()
	if err != nil {
		return err
	}

	err = inst.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not revert migrations: %w", err)
	}

	m.logger.Debugf("Schema migrations reverted")
	return nil
}

func (m *Migrator) instance(ctx context.Context) (instance *migrate.Migrate, cleanup func(), err error) {
	cleanup = func() {}

	driver, err := sqlite3.WithInstance(m.db, &sqlite3.Config{})
	if err != nil {
		return nil, cleanup, fmt.Errorf("could not create driver: %w", err)
	}

	src, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return nil, cleanup, fmt.Errorf("could not create migration source: %w", err)
	}
	cleanup = func() {
		err := src.Close()
		if err != nil {
			m.logger.Errorf("could not close migration source: %s", err)
		}
	}

	instance, err = migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return nil, cleanup, fmt.Errorf("could not create migration instance: %w", err)
	}

	return instance, cleanup, nil
}
