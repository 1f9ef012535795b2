/*
locator.go - Primary/secondary storage failover

PURPOSE:
  Resolves which of the two configured storage locations is currently
  live. The primary is tried first; if its file does not exist or cannot
  be opened, the secondary is tried; if neither is usable the request
  fails closed with ErrStorageUnavailable. The choice is made fresh on
  every Acquire, so a primary that comes back is preferred on the next
  call - no state is cached across unrelated operations.

FAIL CLOSED:
  Acquire never creates an empty database. Files are stat-ed before
  opening and the sqlite URI uses mode=rw (not rwc). Use New() / the
  init-db command to create storage.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/Spuriosity1/beanserver/ledger"
)

// Locator resolves the live storage location per call.
type Locator struct {
	Primary   string
	Secondary string
}

// Acquire opens the first usable storage location. The caller owns the
// returned store for one logical operation and must Close it.
func (l Locator) Acquire(ctx context.Context) (*Store, error) {
	for _, path := range []string{l.Primary, l.Secondary} {
		if path == "" {
			continue
		}
		store, err := Open(ctx, path)
		if err != nil {
			continue
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: neither %q nor %q is usable",
		ledger.ErrStorageUnavailable, l.Primary, l.Secondary)
}

// Open opens an existing database file. Unlike New it refuses to create
// one: the file must already exist and be openable.
func Open(ctx context.Context, path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("storage location %q: %w", path, err)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=rw&_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage location %q not openable: %w", path, err)
	}
	return &Store{db: db, location: path}, nil
}
