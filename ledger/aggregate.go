/*
aggregate.go - Read-only queries over the transaction log

PURPOSE:
  Leaderboard, per-user statistics, and the filterable time series. All
  bounds are absolute instants produced by the Time Window Resolver; the
  engine does not care which input form produced them.

EDGE-CASE POLICY:
  An empty result set is a valid, non-error outcome: empty slice, zeroed
  totals. A window with after > before is not rejected - it legitimately
  yields nothing. Only userStats treats an unregistered user as an error;
  a registered user with no matching rows is zero data, not a failure.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// LeaderboardEntry is one user's shot total since the window bound.
type LeaderboardEntry struct {
	CRSID string
	Shots int64
}

// Stats is the per-user summary over a window.
// TotalShots and Spend can disagree in proportion: some transaction types
// count two shots but bill as one drink.
type Stats struct {
	TotalShots int64
	PerType    map[string]int64
	Spend      Pence
}

// TimeSeriesQuery filters the time-series projection. Nil bounds are
// omitted from the query; the supplied ones are combined as a conjunction
// (ts >= After, ts <= Before, crsid = CRSID).
type TimeSeriesQuery struct {
	CRSID        string // empty = all users; then each row carries its crsid
	After        *int64 // inclusive lower bound, seconds since epoch
	Before       *int64 // inclusive upper bound
	IncludeDebit bool   // append the debit column
}

// Table is a projected result: Headers names the columns, in order
// timestamp, type, [crsid when unfiltered], [debit when requested];
// rows are ordered by ascending ts.
type Table struct {
	Headers []string
	Rows    [][]any
}

// =============================================================================
// AGGREGATION ENGINE
// =============================================================================

// Aggregator builds and executes the read-only queries.
type Aggregator struct {
	Store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{Store: store}
}

// Leaderboard returns per-user shot totals for transactions with
// ts > since, ordered by descending total. Users with no rows after the
// bound are absent, not zero-valued.
func (a *Aggregator) Leaderboard(ctx context.Context, since time.Time) ([]LeaderboardEntry, error) {
	entries, err := a.Store.Leaderboard(ctx, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: leaderboard: %v", ErrStorage, err)
	}
	if entries == nil {
		entries = []LeaderboardEntry{}
	}
	return entries, nil
}

// UserStats returns the shot total, per-type counts, and spend for one
// user over transactions with ts > since.
// Fails with ErrUnknownUser for an unregistered user; a registered user
// with no matching transactions yields zeroed totals.
func (a *Aggregator) UserStats(ctx context.Context, crsid string, since time.Time) (Stats, error) {
	id := canonicalCRSID(crsid)

	exists, _, err := a.Store.UserExists(ctx, id)
	if err != nil {
		return Stats{}, fmt.Errorf("%w: checking user %s: %v", ErrStorage, id, err)
	}
	if !exists {
		return Stats{}, fmt.Errorf("%w: %s", ErrUnknownUser, id)
	}

	shots, spend, err := a.Store.ShotSpendTotals(ctx, id, since.Unix())
	if err != nil {
		return Stats{}, fmt.Errorf("%w: totals for %s: %v", ErrStorage, id, err)
	}
	perType, err := a.Store.TypeCounts(ctx, id, since.Unix())
	if err != nil {
		return Stats{}, fmt.Errorf("%w: type counts for %s: %v", ErrStorage, id, err)
	}
	if perType == nil {
		perType = map[string]int64{}
	}
	return Stats{TotalShots: shots, PerType: perType, Spend: spend}, nil
}

// TimeSeries projects the transaction log with the supplied filter.
func (a *Aggregator) TimeSeries(ctx context.Context, q TimeSeriesQuery) (Table, error) {
	if q.CRSID != "" {
		q.CRSID = canonicalCRSID(q.CRSID)
	}
	table, err := a.Store.TimeSeries(ctx, q)
	if err != nil {
		return Table{}, fmt.Errorf("%w: time series: %v", ErrStorage, err)
	}
	if table.Rows == nil {
		table.Rows = [][]any{}
	}
	return table, nil
}
