/*
store.go - Persistence interface for users and transactions

PURPOSE:
  Defines the interface between the ledger core and the database. The store
  exclusively owns the two relations (users, transactions); no component
  caches rows across calls.

APPEND-ONLY CONTRACT:
  Append() is the only write against the transaction log. There is no
  update or delete; the log is immutable once written.

IMPLEMENTATIONS:
  - store/sqlite: production store, two-file failover via Locator

SEE ALSO:
  - recorder.go: uses WithTx for the atomic balance-update + append pair
*/
package ledger

import "context"

// =============================================================================
// STORE - Interface for user and transaction persistence
// =============================================================================

// Store handles persistence of users and transactions.
// The transactions relation is APPEND-ONLY: no update, no delete.
type Store interface {
	// CreateUser inserts a user with the given opening debt.
	// Returns ErrDuplicateUser if the identifier is already registered.
	// The crsid must already be normalized (see NormalizeCRSID).
	CreateUser(ctx context.Context, crsid string, initialDebt Pence) error

	// UserExists reports whether the user is registered and returns the
	// associated card identifier, if any.
	UserExists(ctx context.Context, crsid string) (bool, *int64, error)

	// ListUsers returns all users ordered by crsid ascending.
	ListUsers(ctx context.Context) ([]UserSummary, error)

	// CachedBalance returns the cached debt field.
	// Returns ErrUnknownUser if the user is not registered.
	CachedBalance(ctx context.Context, crsid string) (Pence, error)

	// DerivedBalance recomputes the debt as SUM(debit) over the user's
	// transactions. An empty log derives to zero.
	DerivedBalance(ctx context.Context, crsid string) (Pence, error)

	// AdjustBalance adds delta to the cached debt.
	// Returns ErrUnknownUser if the user is not registered.
	AdjustBalance(ctx context.Context, crsid string, delta Pence) error

	// Append adds a transaction to the log. The ONLY log write.
	Append(ctx context.Context, tx Transaction) error

	// Leaderboard sums shots per user for transactions with ts > since,
	// ordered by descending total. Users with no matching rows are absent.
	Leaderboard(ctx context.Context, since int64) ([]LeaderboardEntry, error)

	// ShotSpendTotals returns the shot total and debit sum for one user
	// over transactions with ts > since. No rows sums to zero.
	ShotSpendTotals(ctx context.Context, crsid string, since int64) (int64, Pence, error)

	// TypeCounts returns per-type row counts for one user, ts > since.
	TypeCounts(ctx context.Context, crsid string, since int64) (map[string]int64, error)

	// TimeSeries executes a filtered projection of the transaction log.
	// See TimeSeriesQuery for the column rules.
	TimeSeries(ctx context.Context, q TimeSeriesQuery) (Table, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For the recorder's atomic two-step write
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a storage transaction.
	// If fn returns an error, every write made inside is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
