// Package sqlstore keeps datasets in a SQL database: SQLite for local runs, PostgreSQL for shared ones.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"goqem/domain/core"
	"goqem/domain/mitigation"
	"goqem/domain/quantum"
	"goqem/internal/errors"
	"goqem/internal/migration"
	"goqem/ports"
)

const (
	KindTriples          = "triples"
	KindSurrogateSamples = "surrogate_samples"
)

// Store implements ports.TripleRepository, ports.SurrogateSampleRepository and ports.DatasetCatalog
type Store struct {
	db *sqlx.DB
}

// DriverFor maps a DSN to a driver name and driver-specific DSN.
// "postgres://" and "postgresql://" select lib/pq; "sqlite3://path", "sqlite://path" or a bare path select SQLite.
func DriverFor(dsn string) (driver, source string) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn
	case strings.HasPrefix(dsn, "sqlite3://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite3://")
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://")
	}
	return "sqlite3", dsn
}

// IsDSN reports whether a dataset reference names a database rather than a file
func IsDSN(ref string) bool {
	for _, p := range []string{"postgres://", "postgresql://", "sqlite3://", "sqlite://"} {
		if strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

// Open connects and runs the schema migrations
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source := DriverFor(dsn)
	db, err := sqlx.ConnectContext(ctx, driver, source)
	if err != nil {
		return nil, errors.StorageError(err, fmt.Sprintf("failed to connect to %s database", driver))
	}
	if driver == "sqlite3" {
		// one writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}
	if err := migration.NewRunner().Run(ctx, db); err != nil {
		db.Close()
		return nil, errors.StorageError(err, "failed to migrate dataset schema")
	}
	return New(db), nil
}

// New wraps an already migrated connection
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

type tripleRow struct {
	Observable string  `db:"observable"`
	Noisy      float64 `db:"noisy"`
	Ideal      float64 `db:"ideal"`
}

type sampleRow struct {
	Probabilities string  `db:"probabilities"`
	Observable    string  `db:"observable"`
	Expectation   float64 `db:"expectation"`
}

type datasetRow struct {
	Ref         string `db:"ref"`
	Kind        string `db:"kind"`
	Size        int    `db:"size"`
	Fingerprint string `db:"fingerprint"`
	CreatedAt   string `db:"created_at"`
}

// SaveTriples replaces the dataset stored under ref in one transaction
func (s *Store) SaveTriples(ctx context.Context, ref string, triples []mitigation.Triple) error {
	rows := make([][]interface{}, len(triples))
	for i, t := range triples {
		if t.Observable == nil {
			return errors.InvalidInput(fmt.Sprintf("triple %d has no observable", i))
		}
		obs, err := json.Marshal(t.Observable)
		if err != nil {
			return errors.StorageError(err, fmt.Sprintf("failed to encode observable %d", i))
		}
		rows[i] = []interface{}{ref, i, string(obs), t.Noisy, t.Ideal}
	}
	err := s.replace(ctx, ref, KindTriples, mitigation.Fingerprint(triples), "qem_triples",
		`INSERT INTO qem_triples (ref, idx, observable, noisy, ideal) VALUES (?, ?, ?, ?, ?)`, rows)
	if err != nil {
		return err
	}
	log.Info().Str("component", "sqlstore").Str("ref", ref).Int("size", len(triples)).Msg("triples saved")
	return nil
}

// LoadTriples reads the dataset stored under ref in insertion order
func (s *Store) LoadTriples(ctx context.Context, ref string) ([]mitigation.Triple, error) {
	if _, err := s.lookup(ctx, ref, KindTriples); err != nil {
		return nil, err
	}
	var rows []tripleRow
	query := s.db.Rebind(`SELECT observable, noisy, ideal FROM qem_triples WHERE ref = ? ORDER BY idx`)
	if err := s.db.SelectContext(ctx, &rows, query, ref); err != nil {
		return nil, errors.StorageError(err, "failed to query triples")
	}
	out := make([]mitigation.Triple, len(rows))
	for i, r := range rows {
		obs, err := decodeMatrix(r.Observable)
		if err != nil {
			return nil, errors.StorageError(err, fmt.Sprintf("failed to decode observable %d", i))
		}
		out[i] = mitigation.Triple{Observable: obs, Noisy: r.Noisy, Ideal: r.Ideal}
	}
	return out, nil
}

// SaveSamples replaces the surrogate dataset stored under ref
func (s *Store) SaveSamples(ctx context.Context, ref string, samples []mitigation.SurrogateSample) error {
	rows := make([][]interface{}, len(samples))
	for i, smp := range samples {
		if smp.Observable == nil {
			return errors.InvalidInput(fmt.Sprintf("sample %d has no observable", i))
		}
		obs, err := json.Marshal(smp.Observable)
		if err != nil {
			return errors.StorageError(err, fmt.Sprintf("failed to encode observable %d", i))
		}
		probs, err := json.Marshal(smp.Probabilities)
		if err != nil {
			return errors.StorageError(err, fmt.Sprintf("failed to encode probabilities %d", i))
		}
		rows[i] = []interface{}{ref, i, string(probs), string(obs), smp.Expectation}
	}
	err := s.replace(ctx, ref, KindSurrogateSamples, mitigation.FingerprintSamples(samples), "qem_surrogate_samples",
		`INSERT INTO qem_surrogate_samples (ref, idx, probabilities, observable, expectation) VALUES (?, ?, ?, ?, ?)`, rows)
	if err != nil {
		return err
	}
	log.Info().Str("component", "sqlstore").Str("ref", ref).Int("size", len(samples)).Msg("surrogate samples saved")
	return nil
}

// LoadSamples reads the surrogate dataset stored under ref
func (s *Store) LoadSamples(ctx context.Context, ref string) ([]mitigation.SurrogateSample, error) {
	if _, err := s.lookup(ctx, ref, KindSurrogateSamples); err != nil {
		return nil, err
	}
	var rows []sampleRow
	query := s.db.Rebind(`SELECT probabilities, observable, expectation FROM qem_surrogate_samples WHERE ref = ? ORDER BY idx`)
	if err := s.db.SelectContext(ctx, &rows, query, ref); err != nil {
		return nil, errors.StorageError(err, "failed to query surrogate samples")
	}
	out := make([]mitigation.SurrogateSample, len(rows))
	for i, r := range rows {
		obs, err := decodeMatrix(r.Observable)
		if err != nil {
			return nil, errors.StorageError(err, fmt.Sprintf("failed to decode observable %d", i))
		}
		var probs mitigation.Probabilities
		if err := json.Unmarshal([]byte(r.Probabilities), &probs); err != nil {
			return nil, errors.StorageError(err, fmt.Sprintf("failed to decode probabilities %d", i))
		}
		out[i] = mitigation.SurrogateSample{Probabilities: probs, Observable: obs, Expectation: r.Expectation}
	}
	return out, nil
}

// Describe returns the catalog entry of ref
func (s *Store) Describe(ctx context.Context, ref string) (*ports.DatasetInfo, error) {
	row, err := s.lookup(ctx, ref, "")
	if err != nil {
		return nil, err
	}
	created, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return nil, errors.StorageError(err, "invalid created_at")
	}
	return &ports.DatasetInfo{
		Ref:         row.Ref,
		Kind:        row.Kind,
		Size:        row.Size,
		Fingerprint: core.Hash(row.Fingerprint),
		CreatedAt:   core.NewTimestamp(created),
	}, nil
}

func (s *Store) lookup(ctx context.Context, ref, kind string) (*datasetRow, error) {
	var row datasetRow
	query := s.db.Rebind(`SELECT ref, kind, size, fingerprint, created_at FROM qem_datasets WHERE ref = ?`)
	if err := s.db.GetContext(ctx, &row, query, ref); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.WithCode(errors.CodeNotFound, fmt.Errorf("dataset %s: %w", ref, core.ErrDatasetNotFound))
		}
		return nil, errors.StorageError(err, "failed to query dataset catalog")
	}
	if kind != "" && row.Kind != kind {
		return nil, errors.InvalidInput(fmt.Sprintf("dataset %s holds %s, expected %s", ref, row.Kind, kind))
	}
	return &row, nil
}

func (s *Store) replace(ctx context.Context, ref, kind string, fingerprint core.Hash, table, insert string, rows [][]interface{}) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StorageError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM `+table+` WHERE ref = ?`), ref); err != nil {
		return errors.StorageError(err, "failed to clear previous rows")
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM qem_datasets WHERE ref = ?`), ref); err != nil {
		return errors.StorageError(err, "failed to clear previous catalog entry")
	}
	if _, err = tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO qem_datasets (ref, kind, size, fingerprint, created_at) VALUES (?, ?, ?, ?, ?)`),
		ref, kind, len(rows), fingerprint.String(), core.Now().Time().Format(time.RFC3339Nano)); err != nil {
		return errors.StorageError(err, "failed to write catalog entry")
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insert))
	if err != nil {
		return errors.StorageError(err, "failed to prepare insert")
	}
	defer stmt.Close()
	for i, args := range rows {
		if _, err = stmt.ExecContext(ctx, args...); err != nil {
			return errors.StorageError(err, fmt.Sprintf("failed to insert row %d", i))
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.StorageError(err, "failed to commit dataset")
	}
	return nil
}

func decodeMatrix(s string) (*quantum.Matrix, error) {
	var m quantum.Matrix
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return &m, nil
}
