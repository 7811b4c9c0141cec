// Package migrations embeds the relational schema and applies it with
// golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/golang-migrate/migrate/v4/database/postgres"
)

//go:embed sql/*.sql
var files embed.FS

// Migrator applies embedded migrations to one database.
type Migrator struct {
	m *migrate.Migrate
}

// Open prepares a Migrator for the database at dsn.
func Open(dsn string) (*Migrator, error) {
	source, err := iofs.New(files, "sql")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (g *Migrator) Up() error {
	return ignoreNoChange(g.m.Up())
}

// Down reverts every migration.
func (g *Migrator) Down() error {
	return ignoreNoChange(g.m.Down())
}

// Steps applies n migrations forward, or -n backward when negative.
func (g *Migrator) Steps(n int) error {
	return ignoreNoChange(g.m.Steps(n))
}

// Force sets the recorded version without running migrations.
func (g *Migrator) Force(version int) error {
	return g.m.Force(version)
}

// Version reports the applied version and whether the last migration failed
// midway. A database with no migrations applied reports version 0.
func (g *Migrator) Version() (uint, bool, error) {
	v, dirty, err := g.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the source and database handles.
func (g *Migrator) Close() error {
	srcErr, dbErr := g.m.Close()
	return errors.Join(srcErr, dbErr)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
