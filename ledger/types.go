/*
Package ledger is the core of the coffee-token tracking backend.

PURPOSE:
  Tracks who drank how many shots of coffee and who owes what. The source
  of truth is an append-only transaction log; each user record additionally
  carries a cached debt balance that is maintained incrementally by the
  Transaction Recorder and audited by the Reconciliation Checker.

CRITICAL INVARIANT:
  For every user, debt == SUM(debit) over that user's transactions, at all
  times observable between completed operations.

KEY CONCEPTS IN THIS FILE (types.go):
  - Pence: signed monetary amount in minor currency units
  - User: registered account with cached debt and optional card binding
  - Transaction: an immutable ledger entry (never updated, never deleted)

SEE ALSO:
  - recorder.go:  the only writer of transactions and cached balances
  - reconcile.go: cached-vs-derived balance audit
  - aggregate.go: read-only leaderboard/stats/time-series queries
  - store.go:     persistence interface implemented by store/sqlite
*/
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Minor currency units
// =============================================================================

// Pence is a signed monetary amount in minor currency units.
// Positive values are charges, negative values are credits.
type Pence int64

// Pounds converts the amount to major currency units.
func (p Pence) Pounds() decimal.Decimal {
	return decimal.NewFromInt(int64(p)).Div(decimal.NewFromInt(100))
}

func (p Pence) String() string {
	return p.Pounds().StringFixed(2)
}

// =============================================================================
// USERS
// =============================================================================

// MaxCRSIDLen is the maximum length of a user identifier.
const MaxCRSIDLen = 8

// User is a registered account. Debt is a cached aggregate over the
// transaction log; it is mutated only by the Recorder.
type User struct {
	CRSID       string
	Debt        Pence
	RFID        *int64 // optional card binding, nil when no card is associated
	AccessLevel *int64 // interpreted by the auth layer, opaque here
}

// UserSummary is the listing view of a user.
type UserSummary struct {
	CRSID   string
	HasRFID bool
}

// NormalizeCRSID trims and lowercases a user identifier and validates it
// for registration: it must be non-empty and at most MaxCRSIDLen characters.
func NormalizeCRSID(crsid string) (string, error) {
	c := canonicalCRSID(crsid)
	if c == "" {
		return "", fmt.Errorf("%w: crsid is empty", ErrValidation)
	}
	if len(c) > MaxCRSIDLen {
		return "", fmt.Errorf("%w: crsid %q is longer than %d characters", ErrValidation, c, MaxCRSIDLen)
	}
	return c, nil
}

// canonicalCRSID is the lookup form: trim and lowercase, no length check.
func canonicalCRSID(crsid string) string {
	return strings.ToLower(strings.TrimSpace(crsid))
}

// =============================================================================
// TRANSACTIONS - Append-only ledger entries
// =============================================================================

// NoRFID marks a transaction that did not originate from a card swipe,
// e.g. a manual payment.
const NoRFID int64 = -1

// Reserved transaction type tags. Coffee variants ("espresso",
// "cappuccino2", ...) are free-form tags chosen by the client; types whose
// shot-equivalent count differs from one carry it in NCoffee.
const (
	TypePayment     = "Payment"
	TypePrevBalance = "prevbalance"
)

// Transaction is one immutable ledger entry.
//
// INVARIANTS:
//   - Append-only: no update, no delete
//   - Debit is the quantity summed into the user's cached debt
type Transaction struct {
	TS      int64  // event time, seconds since epoch
	CRSID   string // owning user
	Type    string // event category tag
	Debit   Pence  // signed; positive = charge, negative = credit
	NCoffee int64  // shot-equivalent count; zero for non-coffee events
	RFID    int64  // originating card, NoRFID when not card-originated
}
