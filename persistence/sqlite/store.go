// Package sqlite is a persistence collaborator backed by an embedded,
// CGO-free SQLite engine: one small table, opened with WAL and a
// busy-timeout pragma, no ORM layer in between.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/objectcore/objectcore/internal/env"
	"github.com/objectcore/objectcore/internal/token"
	"github.com/objectcore/objectcore/persistence"
)

// openPingMaxElapsed bounds how long Open retries a failing ping before
// giving up, covering a database file that is briefly locked by another
// process opening it at the same moment.
const openPingMaxElapsed = 10 * time.Second

func newOpenPingBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openPingMaxElapsed
	return bo
}

func init() {
	persistence.Register("sqlite", Open)
}

// Store persists one JSON blob of field values per (model, id) row.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database at the path named
// by dsn's opaque part (sqlite://path/to/file.db or sqlite:path.db) and
// ensures its one table exists.
func Open(ctx context.Context, dsn string) (env.Persister, error) {
	path := strings.TrimPrefix(dsn, "sqlite://")
	path = strings.TrimPrefix(path, "sqlite:")

	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	pingErr := backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(newOpenPingBackoff(), ctx))
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, pingErr)
	}
	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS objectcore_records (
		model TEXT NOT NULL,
		record_id INTEGER NOT NULL,
		fields TEXT NOT NULL,
		PRIMARY KEY (model, record_id)
	)`)
	if err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	return nil
}

// Persist merges one record's dirty field values into whatever is already
// stored for (model, id) and upserts the result as a single JSON blob.
// Each call only carries the fields dirtied since the last flush, so a
// blind overwrite would discard fields an earlier flush persisted that
// this call's fieldValues doesn't mention.
func (s *Store) Persist(ctx context.Context, modelName string, id token.RecordID, fieldValues map[string]any) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx for %s#%d: %w", modelName, id, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	var stored string
	queryErr := tx.QueryRowContext(ctx,
		`SELECT fields FROM objectcore_records WHERE model = ? AND record_id = ?`,
		modelName, uint64(id)).Scan(&stored)
	if queryErr != nil && queryErr != sql.ErrNoRows {
		err = fmt.Errorf("sqlite: read existing %s#%d: %w", modelName, id, queryErr)
		return err
	}

	merged, mergeErr := persistence.MergeFields([]byte(stored), fieldValues)
	if mergeErr != nil {
		err = fmt.Errorf("sqlite: merge %s#%d: %w", modelName, id, mergeErr)
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO objectcore_records (model, record_id, fields)
		VALUES (?, ?, ?)
		ON CONFLICT(model, record_id) DO UPDATE SET fields = excluded.fields`,
		modelName, uint64(id), string(merged))
	if err != nil {
		err = fmt.Errorf("sqlite: persist %s#%d: %w", modelName, id, err)
		return err
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
