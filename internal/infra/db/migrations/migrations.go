// Package migrations embeds the schema for both supported dialects.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed mysql/*.sql postgres/*.sql
var files embed.FS

// Runner applies the embedded migrations for one dialect.
type Runner struct {
	migrate *migrate.Migrate
	log     logrus.FieldLogger
}

// NewRunner builds a runner. dialect is "mysql" or "postgres"; databaseURL
// uses the golang-migrate URL form (mysql://... or postgres://...).
func NewRunner(dialect, databaseURL string, log logrus.FieldLogger) (*Runner, error) {
	if dialect != "mysql" && dialect != "postgres" {
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	src, err := iofs.New(files, dialect)
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating migration instance: %w", err)
	}
	return &Runner{migrate: m, log: log.WithField("dialect", dialect)}, nil
}

// Up runs all pending migrations
func (r *Runner) Up() error {
	if err := r.migrate.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.log.Info("no pending migrations")
			return nil
		}
		return fmt.Errorf("running migrations up: %w", err)
	}
	r.logVersion("migrations applied")
	return nil
}

// Down rolls back one migration
func (r *Runner) Down() error {
	if err := r.migrate.Steps(-1); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			r.log.Info("no migrations to roll back")
			return nil
		}
		return fmt.Errorf("rolling back migration: %w", err)
	}
	r.logVersion("migration rolled back")
	return nil
}

func (r *Runner) logVersion(msg string) {
	version, dirty, err := r.migrate.Version()
	if err != nil {
		r.log.WithError(err).Warn("could not read migration version")
		return
	}
	r.log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info(msg)
}

// Close closes the migration runner
func (r *Runner) Close() error {
	sourceErr, dbErr := r.migrate.Close()
	if sourceErr != nil {
		return fmt.Errorf("closing migration source: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing migration database: %w", dbErr)
	}
	return nil
}
