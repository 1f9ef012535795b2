/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.TxStore over one of two equivalent
  sqlite database files. Which file is live is decided per call by the
  Locator (locator.go); this package never shares a connection across
  unrelated operations.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement touches the transactions table. The only
  mutable column anywhere is users.debt, maintained by the recorder inside
  a storage transaction.

KEY TABLES:
  users:        crsid (PK), debt (cached aggregate), rfid, access_level
  transactions: ts, crsid, type, debit, ncoffee, rfid - the immutable log

MIGRATION:
  New() creates and migrates a database; Open() refuses to create one.
  Schema bootstrap belongs to the init-db command, not the request path.

SEE ALSO:
  - ledger/store.go: interface definitions
  - locator.go:      primary/secondary failover
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Spuriosity1/beanserver/ledger"
)

// Store implements ledger.TxStore against one sqlite database file.
type Store struct {
	db       *sql.DB
	location string
}

// New opens the database at path, creating and migrating it if needed.
// Use ":memory:" for an in-memory database (tests).
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent across calls
	// and gives the recorder its single-writer discipline.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, location: path}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Location returns the path this store was opened at.
func (s *Store) Location() string {
	return s.location
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		crsid TEXT PRIMARY KEY,
		debt INTEGER NOT NULL DEFAULT 0,
		rfid INTEGER,
		access_level INTEGER
	);

	-- Transactions (append-only ledger). No UPDATE, no DELETE.
	CREATE TABLE IF NOT EXISTS transactions (
		ts INTEGER NOT NULL,
		crsid TEXT NOT NULL,
		type TEXT NOT NULL,
		debit INTEGER NOT NULL,
		ncoffee INTEGER NOT NULL DEFAULT 0,
		rfid INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_crsid
		ON transactions(crsid);
	CREATE INDEX IF NOT EXISTS idx_transactions_ts
		ON transactions(ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryer is the subset of *sql.DB and *sql.Tx the store operations need,
// so the same helpers serve both direct and transactional calls.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// USER STORE (ledger.Store interface)
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, crsid string, initialDebt ledger.Pence) error {
	return createUser(ctx, s.db, crsid, initialDebt)
}

func createUser(ctx context.Context, db queryer, crsid string, initialDebt ledger.Pence) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO users (crsid, debt) VALUES (?, ?)",
		crsid, int64(initialDebt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateUser, crsid)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) UserExists(ctx context.Context, crsid string) (bool, *int64, error) {
	return userExists(ctx, s.db, crsid)
}

func userExists(ctx context.Context, db queryer, crsid string) (bool, *int64, error) {
	var rfid sql.NullInt64
	err := db.QueryRowContext(ctx,
		"SELECT rfid FROM users WHERE crsid = ?", crsid,
	).Scan(&rfid)
	if err == sql.ErrNoRows {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	if rfid.Valid {
		v := rfid.Int64
		return true, &v, nil
	}
	return true, nil, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]ledger.UserSummary, error) {
	return listUsers(ctx, s.db)
}

func listUsers(ctx context.Context, db queryer) ([]ledger.UserSummary, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT crsid, rfid IS NOT NULL FROM users ORDER BY crsid ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []ledger.UserSummary
	for rows.Next() {
		var u ledger.UserSummary
		if err := rows.Scan(&u.CRSID, &u.HasRFID); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) CachedBalance(ctx context.Context, crsid string) (ledger.Pence, error) {
	return cachedBalance(ctx, s.db, crsid)
}

func cachedBalance(ctx context.Context, db queryer, crsid string) (ledger.Pence, error) {
	var debt int64
	err := db.QueryRowContext(ctx,
		"SELECT debt FROM users WHERE crsid = ?", crsid,
	).Scan(&debt)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s", ledger.ErrUnknownUser, crsid)
	}
	if err != nil {
		return 0, err
	}
	return ledger.Pence(debt), nil
}

func (s *Store) DerivedBalance(ctx context.Context, crsid string) (ledger.Pence, error) {
	return derivedBalance(ctx, s.db, crsid)
}

func derivedBalance(ctx context.Context, db queryer, crsid string) (ledger.Pence, error) {
	var sum int64
	err := db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(debit), 0) FROM transactions WHERE crsid = ?", crsid,
	).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return ledger.Pence(sum), nil
}

func (s *Store) AdjustBalance(ctx context.Context, crsid string, delta ledger.Pence) error {
	return adjustBalance(ctx, s.db, crsid, delta)
}

func adjustBalance(ctx context.Context, db queryer, crsid string, delta ledger.Pence) error {
	res, err := db.ExecContext(ctx,
		"UPDATE users SET debt = debt + ? WHERE crsid = ?",
		int64(delta), crsid,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrUnknownUser, crsid)
	}
	return nil
}

// =============================================================================
// TRANSACTION LOG (append-only)
// =============================================================================

func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, db queryer, tx ledger.Transaction) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO transactions (ts, crsid, type, debit, ncoffee, rfid) VALUES (?, ?, ?, ?, ?, ?)",
		tx.TS, tx.CRSID, tx.Type, int64(tx.Debit), tx.NCoffee, nullRFID(tx.RFID),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

// =============================================================================
// AGGREGATION QUERIES
// =============================================================================

func (s *Store) Leaderboard(ctx context.Context, since int64) ([]ledger.LeaderboardEntry, error) {
	return leaderboard(ctx, s.db, since)
}

func leaderboard(ctx context.Context, db queryer, since int64) ([]ledger.LeaderboardEntry, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT crsid, SUM(ncoffee)
		FROM transactions
		WHERE ts > ?
		GROUP BY crsid
		ORDER BY SUM(ncoffee) DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.LeaderboardEntry
	for rows.Next() {
		var e ledger.LeaderboardEntry
		if err := rows.Scan(&e.CRSID, &e.Shots); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) ShotSpendTotals(ctx context.Context, crsid string, since int64) (int64, ledger.Pence, error) {
	return shotSpendTotals(ctx, s.db, crsid, since)
}

func shotSpendTotals(ctx context.Context, db queryer, crsid string, since int64) (int64, ledger.Pence, error) {
	var shots, spend int64
	err := db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ncoffee), 0), COALESCE(SUM(debit), 0)
		FROM transactions
		WHERE crsid = ? AND ts > ?
	`, crsid, since).Scan(&shots, &spend)
	if err != nil {
		return 0, 0, err
	}
	return shots, ledger.Pence(spend), nil
}

func (s *Store) TypeCounts(ctx context.Context, crsid string, since int64) (map[string]int64, error) {
	return typeCounts(ctx, s.db, crsid, since)
}

func typeCounts(ctx context.Context, db queryer, crsid string, since int64) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT type, COUNT(*)
		FROM transactions
		WHERE crsid = ? AND ts > ?
		GROUP BY type
	`, crsid, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var typ string
		var n int64
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// TimeSeries builds the projection as a conjunction of the supplied
// bounds. Column order is fixed: timestamp, type, [crsid when no user
// filter], [debit when requested].
func (s *Store) TimeSeries(ctx context.Context, q ledger.TimeSeriesQuery) (ledger.Table, error) {
	return timeSeries(ctx, s.db, q)
}

func timeSeries(ctx context.Context, db queryer, q ledger.TimeSeriesQuery) (ledger.Table, error) {
	cols := []string{"DATETIME(ts, 'unixepoch')", "type"}
	headers := []string{"timestamp", "type"}
	var conds []string
	var args []any

	if q.CRSID == "" {
		cols = append(cols, "crsid")
		headers = append(headers, "crsid")
	} else {
		conds = append(conds, "crsid = ?")
		args = append(args, q.CRSID)
	}
	if q.After != nil {
		conds = append(conds, "ts >= ?")
		args = append(args, *q.After)
	}
	if q.Before != nil {
		conds = append(conds, "ts <= ?")
		args = append(args, *q.Before)
	}
	if q.IncludeDebit {
		cols = append(cols, "debit")
		headers = append(headers, "debit")
	}

	query := "SELECT " + strings.Join(cols, ", ") + " FROM transactions"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY ts ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return ledger.Table{}, err
	}
	defer rows.Close()

	table := ledger.Table{Headers: headers}
	for rows.Next() {
		var (
			timestamp, typ string
			crsid          string
			debit          int64
		)
		dest := []any{&timestamp, &typ}
		if q.CRSID == "" {
			dest = append(dest, &crsid)
		}
		if q.IncludeDebit {
			dest = append(dest, &debit)
		}
		if err := rows.Scan(dest...); err != nil {
			return ledger.Table{}, err
		}

		row := []any{timestamp, typ}
		if q.CRSID == "" {
			row = append(row, crsid)
		}
		if q.IncludeDebit {
			row = append(row, debit)
		}
		table.Rows = append(table.Rows, row)
	}
	return table, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. Any error from fn
// rolls back every write made inside it.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every operation through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateUser(ctx context.Context, crsid string, initialDebt ledger.Pence) error {
	return createUser(ctx, ts.tx, crsid, initialDebt)
}

func (ts *txStore) UserExists(ctx context.Context, crsid string) (bool, *int64, error) {
	return userExists(ctx, ts.tx, crsid)
}

func (ts *txStore) ListUsers(ctx context.Context) ([]ledger.UserSummary, error) {
	return listUsers(ctx, ts.tx)
}

func (ts *txStore) CachedBalance(ctx context.Context, crsid string) (ledger.Pence, error) {
	return cachedBalance(ctx, ts.tx, crsid)
}

func (ts *txStore) DerivedBalance(ctx context.Context, crsid string) (ledger.Pence, error) {
	return derivedBalance(ctx, ts.tx, crsid)
}

func (ts *txStore) AdjustBalance(ctx context.Context, crsid string, delta ledger.Pence) error {
	return adjustBalance(ctx, ts.tx, crsid, delta)
}

func (ts *txStore) Append(ctx context.Context, tx ledger.Transaction) error {
	return appendTx(ctx, ts.tx, tx)
}

func (ts *txStore) Leaderboard(ctx context.Context, since int64) ([]ledger.LeaderboardEntry, error) {
	return leaderboard(ctx, ts.tx, since)
}

func (ts *txStore) ShotSpendTotals(ctx context.Context, crsid string, since int64) (int64, ledger.Pence, error) {
	return shotSpendTotals(ctx, ts.tx, crsid, since)
}

func (ts *txStore) TypeCounts(ctx context.Context, crsid string, since int64) (map[string]int64, error) {
	return typeCounts(ctx, ts.tx, crsid, since)
}

func (ts *txStore) TimeSeries(ctx context.Context, q ledger.TimeSeriesQuery) (ledger.Table, error) {
	return timeSeries(ctx, ts.tx, q)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullRFID(rfid int64) sql.NullInt64 {
	if rfid == ledger.NoRFID {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: rfid, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
