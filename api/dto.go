/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the API contract. Balances appear twice: raw pence
  for machines, formatted pounds for humans. Field names follow the
  original wire format where one existed (user-exists, total_shots,
  totals, headers/table).
*/
package api

import "github.com/Spuriosity1/beanserver/ledger"

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// UserDTO is one row of the user listing.
type UserDTO struct {
	CRSID   string `json:"crsid"`
	HasRFID bool   `json:"has_rfid"`
}

// CreateUserRequest registers a user, optionally with an opening debt.
type CreateUserRequest struct {
	CRSID string `json:"crsid"`
	Debt  int64  `json:"debt,omitempty"`
}

// CreateUserResponse reports what the registration wrote.
type CreateUserResponse struct {
	AddedUser            bool `json:"added_user"`
	AddedInitTransaction bool `json:"added_init_transaction"`
}

// ExistsDTO answers an existence lookup.
type ExistsDTO struct {
	UserExists bool   `json:"user-exists"`
	RFID       *int64 `json:"rfid,omitempty"`
}

// BalanceDTO carries the cached debt.
type BalanceDTO struct {
	CRSID     string `json:"crsid"`
	DebtPence int64  `json:"debt_pence"`
	Debt      string `json:"debt"`
}

// CheckDTO is a reconciliation report.
type CheckDTO struct {
	CRSID        string `json:"crsid"`
	Consistent   bool   `json:"consistent"`
	CachedPence  int64  `json:"cached_debt_pence"`
	DerivedPence int64  `json:"derived_debt_pence"`
}

// PaymentRequest credits a user's debt.
type PaymentRequest struct {
	AmountPence int64 `json:"amount_pence"`
}

// PaymentResponse reports the post-payment state.
type PaymentResponse struct {
	CRSID     string `json:"crsid"`
	DebtPence int64  `json:"debt_pence"`
	Debt      string `json:"debt"`
}

// RecordTransactionRequest appends a coffee (or other) event to the log.
type RecordTransactionRequest struct {
	TS         int64  `json:"ts,omitempty"` // seconds since epoch; zero = now
	CRSID      string `json:"crsid"`
	Type       string `json:"type"`
	DebitPence int64  `json:"debit_pence"`
	NCoffee    int64  `json:"ncoffee"`
	RFID       *int64 `json:"rfid,omitempty"`
}

// LeaderboardEntryDTO is one user's shot total.
type LeaderboardEntryDTO struct {
	CRSID string `json:"crsid"`
	Shots int64  `json:"shots"`
}

// UserStatsDTO is the per-user summary over a window.
type UserStatsDTO struct {
	TotalShots int64            `json:"total_shots"`
	Totals     map[string]int64 `json:"totals"`
	SpendPence int64            `json:"spend_pence"`
	Spend      string           `json:"spend"`
}

// TimeSeriesDTO is the filterable log projection.
type TimeSeriesDTO struct {
	Headers []string `json:"headers"`
	Table   [][]any  `json:"table"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTOs(users []ledger.UserSummary) []UserDTO {
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = UserDTO{CRSID: u.CRSID, HasRFID: u.HasRFID}
	}
	return dtos
}

func toLeaderboardDTOs(entries []ledger.LeaderboardEntry) []LeaderboardEntryDTO {
	dtos := make([]LeaderboardEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LeaderboardEntryDTO{CRSID: e.CRSID, Shots: e.Shots}
	}
	return dtos
}

func toCheckDTO(rep ledger.Report) CheckDTO {
	return CheckDTO{
		CRSID:        rep.CRSID,
		Consistent:   rep.Consistent,
		CachedPence:  int64(rep.Cached),
		DerivedPence: int64(rep.Derived),
	}
}
