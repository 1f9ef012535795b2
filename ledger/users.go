/*
users.go - Registration and lookup rules for user records

PURPOSE:
  Wraps the Store with the identifier rules: registration normalizes and
  validates the crsid, lookups accept any casing. Debt is never mutated
  here - that is the Recorder's job.
*/
package ledger

import "context"

// Users exposes the user-record operations of the ledger store.
type Users struct {
	Store Store
}

func NewUsers(store Store) *Users {
	return &Users{Store: store}
}

// Create registers a new user with the given opening debt.
// Fails with ErrValidation on a bad identifier and ErrDuplicateUser if the
// normalized identifier is already taken. No transaction row is written for
// a nonzero opening debt; callers that want the log to reflect it record a
// TypePrevBalance transaction explicitly.
func (u *Users) Create(ctx context.Context, crsid string, initialDebt Pence) error {
	c, err := NormalizeCRSID(crsid)
	if err != nil {
		return err
	}
	return u.Store.CreateUser(ctx, c, initialDebt)
}

// Exists reports whether the user is registered, with the bound card if any.
func (u *Users) Exists(ctx context.Context, crsid string) (bool, *int64, error) {
	return u.Store.UserExists(ctx, canonicalCRSID(crsid))
}

// List returns all users ordered by crsid ascending.
func (u *Users) List(ctx context.Context) ([]UserSummary, error) {
	return u.Store.ListUsers(ctx)
}

// CachedBalance returns the cached debt. Fails with ErrUnknownUser.
func (u *Users) CachedBalance(ctx context.Context, crsid string) (Pence, error) {
	return u.Store.CachedBalance(ctx, canonicalCRSID(crsid))
}
