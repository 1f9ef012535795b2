/*
reconcile.go - Cached-vs-derived balance audit

PURPOSE:
  Recomputes a user's debt from the transaction log and compares it against
  the cached field on the user record. A mismatch means the central
  invariant is broken: it is logged at high severity and surfaced to the
  caller with both values. It is never silently corrected - the log is the
  source of truth and drift needs a human.
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Report is the outcome of one reconciliation check.
type Report struct {
	CRSID      string
	Consistent bool
	Cached     Pence
	Derived    Pence
}

// Err returns the inconsistency as an error, or nil when consistent.
func (r Report) Err() error {
	if r.Consistent {
		return nil
	}
	return &InconsistencyError{CRSID: r.CRSID, Cached: r.Cached, Derived: r.Derived}
}

// Checker is a standing correctness probe over one user's ledger.
type Checker struct {
	Store Store
	Log   zerolog.Logger
}

func NewChecker(store Store) *Checker {
	return &Checker{Store: store, Log: log.Logger}
}

// Check derives the user's debt as SUM(debit) over the transaction log
// (an empty log derives to zero) and compares it with the cached value.
// Fails with ErrUnknownUser if the user is not registered.
func (c *Checker) Check(ctx context.Context, crsid string) (Report, error) {
	id := canonicalCRSID(crsid)

	cached, err := c.Store.CachedBalance(ctx, id)
	if err != nil {
		return Report{}, err
	}
	derived, err := c.Store.DerivedBalance(ctx, id)
	if err != nil {
		return Report{}, fmt.Errorf("%w: deriving balance for %s: %v", ErrStorage, id, err)
	}

	rep := Report{
		CRSID:      id,
		Consistent: cached == derived,
		Cached:     cached,
		Derived:    derived,
	}
	if !rep.Consistent {
		c.Log.Error().
			Str("crsid", id).
			Int64("cached_debt", int64(cached)).
			Int64("derived_debt", int64(derived)).
			Msg("ledger drift: cached debt does not match transaction log")
	}
	return rep, nil
}
