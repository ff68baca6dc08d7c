package migration

import (
	"context"

	"goqem/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the dataset schema. Statements are portable between SQLite and
// PostgreSQL and idempotent, so Run is safe on every open.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createDatasetsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create qem_datasets table")
	}

	if err := r.createTriplesTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create qem_triples table")
	}

	if err := r.createSurrogateSamplesTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create qem_surrogate_samples table")
	}

	return nil
}

func (r *MigrationRunner) createDatasetsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS qem_datasets (
			ref TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			size INTEGER NOT NULL,
			fingerprint TEXT NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	return err
}

// Observables are JSON text; expectation values are 8-byte floats in both dialects
func (r *MigrationRunner) createTriplesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS qem_triples (
			ref TEXT NOT NULL,
			idx INTEGER NOT NULL,
			observable TEXT NOT NULL,
			noisy DOUBLE PRECISION NOT NULL,
			ideal DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (ref, idx)
		)
	`)
	return err
}

func (r *MigrationRunner) createSurrogateSamplesTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS qem_surrogate_samples (
			ref TEXT NOT NULL,
			idx INTEGER NOT NULL,
			probabilities TEXT NOT NULL,
			observable TEXT NOT NULL,
			expectation DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (ref, idx)
		)
	`)
	return err
}
