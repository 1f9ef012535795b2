/*
handlers.go - HTTP API handlers for the coffee-token ledger

PURPOSE:
  Exposes the ledger core as a JSON API. Handlers parse untrusted input,
  acquire a live storage location for the duration of one request, call
  the core, and map core error kinds to status codes.

ENDPOINTS:
  GET/POST /ping                       Liveness check
  GET      /api/users                  List users
  POST     /api/users                  Register a user
  GET      /api/users/{crsid}          Existence + card binding
  GET      /api/users/{crsid}/balance  Cached debt
  GET      /api/users/{crsid}/check    Reconciliation report
  POST     /api/users/{crsid}/pay      Record a payment
  POST     /api/transactions           Record a coffee debit
  GET      /api/leaderboard            Shot totals since a window bound
  GET      /api/userstats/{crsid}      Per-user summary
  GET      /api/timeseries             Filterable log projection

WINDOW PARAMETERS:
  leaderboard and userstats accept at most one of:
    since=YYYY-MM-DDTHH:MM:SS (or bare date)
    weekday=0..6 (0=Monday, most recent strictly before today)
    last=1w4d5h  (duration spec)
  No parameter means all time.

ERROR HANDLING:
  400 validation / malformed time / malformed spec
  404 unknown user
  409 duplicate user
  503 storage unavailable
  500 storage error, broken ledger invariant
  Unknown-user and broken-invariant conditions never share a code or shape.
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Spuriosity1/beanserver/ledger"
	"github.com/Spuriosity1/beanserver/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers. Storage is resolved
// per request through the Locator, never cached across requests.
type Handler struct {
	Locator sqlite.Locator

	// Now supplies "now" for window resolution and payment timestamps.
	Now func() time.Time
	Log zerolog.Logger
}

// NewHandler creates a handler over the given storage locations.
func NewHandler(locator sqlite.Locator) *Handler {
	return &Handler{Locator: locator, Now: time.Now, Log: log.Logger}
}

// Ping answers a liveness check.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("Pong!"))
}

// =============================================================================
// USER HANDLERS
// =============================================================================

// ListUsers returns all users, crsid ascending.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	users, err := ledger.NewUsers(store).List(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTOs(users))
}

// CreateUser registers a new user. A nonzero opening debt is recorded
// through the Recorder as a prevbalance transaction so the log reflects
// it and the debt invariant holds from the first row.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	if err := ledger.NewUsers(store).Create(r.Context(), req.CRSID, 0); err != nil {
		h.coreError(w, err)
		return
	}

	resp := CreateUserResponse{AddedUser: true}
	if req.Debt != 0 {
		recorder := ledger.NewRecorder(store)
		recorder.Now = h.Now
		err := recorder.Record(r.Context(), ledger.Transaction{
			TS:      h.Now().Unix(),
			CRSID:   req.CRSID,
			Type:    ledger.TypePrevBalance,
			Debit:   ledger.Pence(req.Debt),
			NCoffee: 0,
			RFID:    ledger.NoRFID,
		})
		if err != nil {
			h.coreError(w, err)
			return
		}
		resp.AddedInitTransaction = true
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetUser answers an existence lookup with the bound card, if any.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	exists, rfid, err := ledger.NewUsers(store).Exists(r.Context(), chi.URLParam(r, "crsid"))
	if err != nil {
		h.coreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ExistsDTO{UserExists: exists, RFID: rfid})
}

// GetBalance returns the cached debt.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	crsid := chi.URLParam(r, "crsid")

	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	debt, err := ledger.NewUsers(store).CachedBalance(r.Context(), crsid)
	if err != nil {
		h.coreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		CRSID:     crsid,
		DebtPence: int64(debt),
		Debt:      debt.String(),
	})
}

// CheckUser runs the reconciliation probe for one user. A mismatch is a
// broken invariant: reported with both values, never auto-corrected.
func (h *Handler) CheckUser(w http.ResponseWriter, r *http.Request) {
	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	checker := ledger.NewChecker(store)
	checker.Log = h.Log
	rep, err := checker.Check(r.Context(), chi.URLParam(r, "crsid"))
	if err != nil {
		h.coreError(w, err)
		return
	}
	if err := rep.Err(); err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "inconsistent_ledger",
			"Ledger invariant violated", toCheckDTO(rep))
		return
	}
	writeJSON(w, http.StatusOK, toCheckDTO(rep))
}

// =============================================================================
// WRITE HANDLERS
// =============================================================================

// Pay records a payment and reconciles the user's ledger afterwards. An
// inconsistency found here is an operational alert, not a silent success.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	crsid := chi.URLParam(r, "crsid")

	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	recorder := ledger.NewRecorder(store)
	recorder.Now = h.Now
	if err := recorder.RecordPayment(r.Context(), crsid, ledger.Pence(req.AmountPence)); err != nil {
		h.coreError(w, err)
		return
	}

	checker := ledger.NewChecker(store)
	checker.Log = h.Log
	rep, err := checker.Check(r.Context(), crsid)
	if err != nil {
		h.coreError(w, err)
		return
	}
	if err := rep.Err(); err != nil {
		writeErrorCode(w, http.StatusInternalServerError, "inconsistent_ledger",
			"Payment recorded but ledger invariant violated", toCheckDTO(rep))
		return
	}

	writeJSON(w, http.StatusOK, PaymentResponse{
		CRSID:     rep.CRSID,
		DebtPence: int64(rep.Cached),
		Debt:      rep.Cached.String(),
	})
}

// RecordTransaction appends a coffee debit (card or manual entry path).
func (h *Handler) RecordTransaction(w http.ResponseWriter, r *http.Request) {
	var req RecordTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "Missing transaction type", nil)
		return
	}

	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	ts := req.TS
	if ts == 0 {
		ts = h.Now().Unix()
	}
	rfid := ledger.NoRFID
	if req.RFID != nil {
		rfid = *req.RFID
	}

	recorder := ledger.NewRecorder(store)
	recorder.Now = h.Now
	err = recorder.Record(r.Context(), ledger.Transaction{
		TS:      ts,
		CRSID:   req.CRSID,
		Type:    req.Type,
		Debit:   ledger.Pence(req.DebitPence),
		NCoffee: req.NCoffee,
		RFID:    rfid,
	})
	if err != nil {
		h.coreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"recorded": true})
}

// =============================================================================
// AGGREGATION HANDLERS
// =============================================================================

// Leaderboard returns per-user shot totals since the window bound.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	since, err := h.windowFrom(r)
	if err != nil {
		h.coreError(w, err)
		return
	}

	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	entries, err := ledger.NewAggregator(store).Leaderboard(r.Context(), since)
	if err != nil {
		h.coreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardDTOs(entries))
}

// UserStats returns the per-user summary over the window.
func (h *Handler) UserStats(w http.ResponseWriter, r *http.Request) {
	since, err := h.windowFrom(r)
	if err != nil {
		h.coreError(w, err)
		return
	}

	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	stats, err := ledger.NewAggregator(store).UserStats(r.Context(), chi.URLParam(r, "crsid"), since)
	if err != nil {
		h.coreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserStatsDTO{
		TotalShots: stats.TotalShots,
		Totals:     stats.PerType,
		SpendPence: int64(stats.Spend),
		Spend:      stats.Spend.String(),
	})
}

// TimeSeries returns the filterable projection of the transaction log.
func (h *Handler) TimeSeries(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	resolver := ledger.Resolver{Now: h.Now}
	query := ledger.TimeSeriesQuery{CRSID: params.Get("crsid")}

	if v := params.Get("after"); v != "" {
		t, err := resolver.Timestamp(v)
		if err != nil {
			h.coreError(w, err)
			return
		}
		after := t.Unix()
		query.After = &after
	}
	if v := params.Get("before"); v != "" {
		t, err := resolver.Timestamp(v)
		if err != nil {
			h.coreError(w, err)
			return
		}
		before := t.Unix()
		query.Before = &before
	}
	if v := params.Get("debit"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid debit flag (use true/false)", err)
			return
		}
		query.IncludeDebit = include
	}

	store, err := h.Locator.Acquire(r.Context())
	if err != nil {
		h.coreError(w, err)
		return
	}
	defer store.Close()

	table, err := ledger.NewAggregator(store).TimeSeries(r.Context(), query)
	if err != nil {
		h.coreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TimeSeriesDTO{Headers: table.Headers, Table: table.Rows})
}

// windowFrom resolves the since/weekday/last query parameters to one
// absolute lower bound. At most one form may be supplied; none means all
// time (the epoch).
func (h *Handler) windowFrom(r *http.Request) (time.Time, error) {
	params := r.URL.Query()
	resolver := ledger.Resolver{Now: h.Now}

	given := 0
	for _, key := range []string{"since", "weekday", "last"} {
		if params.Get(key) != "" {
			given++
		}
	}
	if given > 1 {
		return time.Time{}, fmt.Errorf("%w: give at most one of since, weekday, last", ledger.ErrValidation)
	}

	switch {
	case params.Get("since") != "":
		return resolver.Timestamp(params.Get("since"))
	case params.Get("weekday") != "":
		d, err := strconv.Atoi(params.Get("weekday"))
		if err != nil {
			return time.Time{}, errors.Join(ledger.ErrValidation, err)
		}
		return resolver.Weekday(d)
	case params.Get("last") != "":
		return resolver.DurationSpec(params.Get("last"))
	default:
		return time.Unix(0, 0), nil
	}
}

// =============================================================================
// ERROR MAPPING AND JSON HELPERS
// =============================================================================

// statusFor maps core error kinds to transport status codes. "Not yet
// registered" and "something is broken" must never share a code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrUnknownUser):
		return http.StatusNotFound, "unknown_user"
	case errors.Is(err, ledger.ErrDuplicateUser):
		return http.StatusConflict, "duplicate_user"
	case errors.Is(err, ledger.ErrMalformedTime):
		return http.StatusBadRequest, "malformed_time"
	case errors.Is(err, ledger.ErrMalformedSpec):
		return http.StatusBadRequest, "malformed_spec"
	case errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, ledger.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, ledger.ErrInconsistent):
		return http.StatusInternalServerError, "inconsistent_ledger"
	default:
		return http.StatusInternalServerError, "storage_error"
	}
}

func (h *Handler) coreError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().Err(err).Msg("request failed")
	}
	writeErrorCode(w, status, code, err.Error(), nil)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}
