// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/provenance/internal/model"
	"github.com/alfredjeanlab/provenance/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.ChangeEvent) error {
	return queryAppendEvent(ctx, s.db, e)
}

func (s *PostgresStore) EventsBetween(ctx context.Context, entityType string, recordID int64, from, to time.Time) ([]*model.ChangeEvent, error) {
	return queryEventsBetween(ctx, s.db, entityType, recordID, from, to)
}

func (s *PostgresStore) EventsSince(ctx context.Context, entityType string, recordID int64, after, until time.Time) ([]*model.ChangeEvent, error) {
	return queryEventsSince(ctx, s.db, entityType, recordID, after, until)
}

func (s *PostgresStore) CountEventsSince(ctx context.Context, entityType string, recordID int64, since time.Time) (int, error) {
	return queryCountEventsSince(ctx, s.db, entityType, recordID, since)
}

func (s *PostgresStore) RecentEvents(ctx context.Context, entityType string, limit int) ([]*model.ChangeEvent, error) {
	return queryRecentEvents(ctx, s.db, entityType, limit)
}

func (s *PostgresStore) AllEvents(ctx context.Context) ([]*model.ChangeEvent, error) {
	return queryAllEvents(ctx, s.db)
}

func (s *PostgresStore) AppendDigest(ctx context.Context, d *model.IntegrityDigest) error {
	return queryAppendDigest(ctx, s.db, d)
}

func (s *PostgresStore) LatestDigest(ctx context.Context, entityType string, recordID int64) (*model.IntegrityDigest, error) {
	return queryLatestDigest(ctx, s.db, entityType, recordID)
}

func (s *PostgresStore) DigestsBetween(ctx context.Context, entityType string, recordID int64, from, to time.Time) ([]*model.IntegrityDigest, error) {
	return queryDigestsBetween(ctx, s.db, entityType, recordID, from, to)
}

func (s *PostgresStore) AllDigests(ctx context.Context) ([]*model.IntegrityDigest, error) {
	return queryAllDigests(ctx, s.db)
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap *model.Snapshot) error {
	return queryAppendSnapshot(ctx, s.db, snap)
}

func (s *PostgresStore) NearestSnapshot(ctx context.Context, entityType string, recordID int64, at time.Time) (*model.Snapshot, error) {
	return queryNearestSnapshot(ctx, s.db, entityType, recordID, at)
}

func (s *PostgresStore) AllSnapshots(ctx context.Context) ([]*model.Snapshot, error) {
	return queryAllSnapshots(ctx, s.db)
}

func (s *PostgresStore) TrackedRecords(ctx context.Context) ([]model.RecordRef, error) {
	return queryTrackedRecords(ctx, s.db)
}

func (s *PostgresStore) Stats(ctx context.Context) (*model.Stats, error) {
	return queryStats(ctx, s.db)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) AppendEvent(ctx context.Context, e *model.ChangeEvent) error {
	return queryAppendEvent(ctx, s.tx, e)
}

func (s *txStore) EventsBetween(ctx context.Context, entityType string, recordID int64, from, to time.Time) ([]*model.ChangeEvent, error) {
	return queryEventsBetween(ctx, s.tx, entityType, recordID, from, to)
}

func (s *txStore) EventsSince(ctx context.Context, entityType string, recordID int64, after, until time.Time) ([]*model.ChangeEvent, error) {
	return queryEventsSince(ctx, s.tx, entityType, recordID, after, until)
}

func (s *txStore) CountEventsSince(ctx context.Context, entityType string, recordID int64, since time.Time) (int, error) {
	return queryCountEventsSince(ctx, s.tx, entityType, recordID, since)
}

func (s *txStore) RecentEvents(ctx context.Context, entityType string, limit int) ([]*model.ChangeEvent, error) {
	return queryRecentEvents(ctx, s.tx, entityType, limit)
}

func (s *txStore) AllEvents(ctx context.Context) ([]*model.ChangeEvent, error) {
	return queryAllEvents(ctx, s.tx)
}

func (s *txStore) AppendDigest(ctx context.Context, d *model.IntegrityDigest) error {
	return queryAppendDigest(ctx, s.tx, d)
}

func (s *txStore) LatestDigest(ctx context.Context, entityType string, recordID int64) (*model.IntegrityDigest, error) {
	return queryLatestDigest(ctx, s.tx, entityType, recordID)
}

func (s *txStore) DigestsBetween(ctx context.Context, entityType string, recordID int64, from, to time.Time) ([]*model.IntegrityDigest, error) {
	return queryDigestsBetween(ctx, s.tx, entityType, recordID, from, to)
}

func (s *txStore) AllDigests(ctx context.Context) ([]*model.IntegrityDigest, error) {
	return queryAllDigests(ctx, s.tx)
}

func (s *txStore) AppendSnapshot(ctx context.Context, snap *model.Snapshot) error {
	return queryAppendSnapshot(ctx, s.tx, snap)
}

func (s *txStore) NearestSnapshot(ctx context.Context, entityType string, recordID int64, at time.Time) (*model.Snapshot, error) {
	return queryNearestSnapshot(ctx, s.tx, entityType, recordID, at)
}

func (s *txStore) AllSnapshots(ctx context.Context) ([]*model.Snapshot, error) {
	return queryAllSnapshots(ctx, s.tx)
}

func (s *txStore) TrackedRecords(ctx context.Context) ([]model.RecordRef, error) {
	return queryTrackedRecords(ctx, s.tx)
}

func (s *txStore) Stats(ctx context.Context) (*model.Stats, error) {
	return queryStats(ctx, s.tx)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
