// Package sqlite implements storage.Store and storage.Tx on top of a
// single-file SQLite database, driven through the pure-Go ncruces/go-sqlite3
// driver (no cgo, runs under wazero).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

// connString builds a file: URI carrying the pragmas every connection in
// the pool must run with: WAL so readers never block the writer, a busy
// timeout so lock contention resolves by waiting rather than by erroring,
// and foreign key enforcement.
func connString(path string) string {
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)",
		path,
	)
}

// Store is the sqlite-backed storage.Store implementation.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if absent) the database at path, applies the
// IF NOT EXISTS schema (creating only what is missing), and verifies every
// recorded migration is one this binary understands. maxOpenConns bounds the read pool; 0 defaults to
// runtime.NumCPU(). WAL lets that many readers proceed alongside the single
// in-flight writer that BEGIN IMMEDIATE serializes.
func Open(ctx context.Context, path string, maxOpenConns int) (*Store, error) {
	db, err := sql.Open("sqlite3", connString(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if maxOpenConns <= 0 {
		maxOpenConns = runtime.NumCPU()
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := checkMigrationHead(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// WithinTransaction runs fn inside a single BEGIN IMMEDIATE transaction:
// IMMEDIATE acquires the write lock up front instead of on first write,
// so a second concurrent mutation waits at BEGIN (up to the busy timeout)
// rather than deadlocking against the first mid-transaction. If the wait
// times out, the wrapped driver error is returned, not a types.Error.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin immediate: %w", err)
	}

	tx := &Tx{conn: conn}
	if err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = types.NewError(types.KindInternal, "recovered panic in transaction: %v", r)
			}
		}()
		return fn(tx)
	}(); err != nil {
		_, rerr := conn.ExecContext(ctx, "ROLLBACK")
		if rerr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rerr)
		}
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
