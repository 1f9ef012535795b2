/*
handlers_test.go - HTTP round-trip tests for the API

Tests for:
- Registration, balances, payments, and reconciliation over HTTP
- Window parameter parsing on the aggregation endpoints
- The full error-to-status mapping, including fail-closed storage
*/
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spuriosity1/beanserver/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// newTestServer serves the API over a freshly migrated temp-file database.
// Handlers re-open the database per request, so :memory: is no use here.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bean.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	h := NewHandler(sqlite.Locator{Primary: path})
	h.Now = func() time.Time { return time.Unix(1700000000, 0) }

	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func registerUser(t *testing.T, srv *httptest.Server, crsid string, debt int64) {
	t.Helper()
	resp := do(t, http.MethodPost, srv.URL+"/api/users", CreateUserRequest{CRSID: crsid, Debt: debt})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func recordCoffee(t *testing.T, srv *httptest.Server, crsid string, ts, debit, ncoffee int64) {
	t.Helper()
	resp := do(t, http.MethodPost, srv.URL+"/api/transactions", RecordTransactionRequest{
		TS: ts, CRSID: crsid, Type: "espresso", DebitPence: debit, NCoffee: ncoffee,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// LIVENESS
// =============================================================================

func TestPing(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/ping", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Pong!", string(body))
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestCreateUser(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/users", CreateUserRequest{CRSID: "ab1001"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decode[CreateUserResponse](t, resp)
	assert.True(t, created.AddedUser)
	assert.False(t, created.AddedInitTransaction)
}

func TestCreateUser_WithOpeningDebt(t *testing.T) {
	// A nonzero opening debt is mirrored into the log so the ledger is
	// consistent from the first row.
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/users", CreateUserRequest{CRSID: "ab1001", Debt: 500})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[CreateUserResponse](t, resp)
	assert.True(t, created.AddedUser)
	assert.True(t, created.AddedInitTransaction)

	resp = do(t, http.MethodGet, srv.URL+"/api/users/ab1001/balance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	balance := decode[BalanceDTO](t, resp)
	assert.Equal(t, int64(500), balance.DebtPence)
	assert.Equal(t, "5.00", balance.Debt)

	resp = do(t, http.MethodGet, srv.URL+"/api/users/ab1001/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	check := decode[CheckDTO](t, resp)
	assert.True(t, check.Consistent)
}

func TestCreateUser_Duplicate(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "ab1001", 0)

	resp := do(t, http.MethodPost, srv.URL+"/api/users", CreateUserRequest{CRSID: "AB1001"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "duplicate_user", decode[ErrorResponse](t, resp).Code)
}

func TestCreateUser_InvalidIdentifier(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/users", CreateUserRequest{CRSID: "waytoolongid"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", decode[ErrorResponse](t, resp).Code)
}

func TestListUsers(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "zz999", 0)
	registerUser(t, srv, "ab1001", 0)

	resp := do(t, http.MethodGet, srv.URL+"/api/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	users := decode[[]UserDTO](t, resp)
	require.Len(t, users, 2)
	assert.Equal(t, "ab1001", users[0].CRSID)
	assert.Equal(t, "zz999", users[1].CRSID)
}

func TestGetUser_Existence(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "ab1001", 0)

	resp := do(t, http.MethodGet, srv.URL+"/api/users/ab1001", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[ExistsDTO](t, resp).UserExists)

	resp = do(t, http.MethodGet, srv.URL+"/api/users/nobody", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decode[ExistsDTO](t, resp).UserExists)
}

func TestGetBalance_UnknownUser(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/users/nobody/balance", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "unknown_user", decode[ErrorResponse](t, resp).Code)
}

// =============================================================================
// WRITES
// =============================================================================

func TestRecordTransaction_ThenPay_SettlesToZero(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "ab1001", 0)
	recordCoffee(t, srv, "ab1001", 1000, 150, 1)

	resp := do(t, http.MethodPost, srv.URL+"/api/users/ab1001/pay", PaymentRequest{AmountPence: 150})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	payment := decode[PaymentResponse](t, resp)
	assert.Equal(t, int64(0), payment.DebtPence)
	assert.Equal(t, "0.00", payment.Debt)
}

func TestRecordTransaction_UnknownUser(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/transactions", RecordTransactionRequest{
		CRSID: "nobody", Type: "espresso", DebitPence: 150, NCoffee: 1,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecordTransaction_MissingType(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "ab1001", 0)

	resp := do(t, http.MethodPost, srv.URL+"/api/transactions", RecordTransactionRequest{
		CRSID: "ab1001", DebitPence: 150, NCoffee: 1,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPay_NonPositiveAmount(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "ab1001", 0)

	resp := do(t, http.MethodPost, srv.URL+"/api/users/ab1001/pay", PaymentRequest{AmountPence: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", decode[ErrorResponse](t, resp).Code)
}

// =============================================================================
// AGGREGATION
// =============================================================================

func TestLeaderboard(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "ab1001", 0)
	registerUser(t, srv, "cd2002", 0)
	recordCoffee(t, srv, "ab1001", 1000, 150, 1)
	recordCoffee(t, srv, "ab1001", 2000, 150, 1)
	recordCoffee(t, srv, "cd2002", 3000, 150, 1)

	resp := do(t, http.MethodGet, srv.URL+"/api/leaderboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]LeaderboardEntryDTO](t, resp)
	require.Len(t, entries, 2)
	assert.Equal(t, LeaderboardEntryDTO{CRSID: "ab1001", Shots: 2}, entries[0])
	assert.Equal(t, LeaderboardEntryDTO{CRSID: "cd2002", Shots: 1}, entries[1])
}

func TestLeaderboard_SinceBound(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "ab1001", 0)
	recordCoffee(t, srv, "ab1001", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix(), 150, 1)
	recordCoffee(t, srv, "ab1001", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Unix(), 150, 1)

	resp := do(t, http.MethodGet, srv.URL+"/api/leaderboard?since=2024-03-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]LeaderboardEntryDTO](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Shots)
}

func TestLeaderboard_WindowParamErrors(t *testing.T) {
	srv := newTestServer(t)

	cases := map[string]string{
		"malformed since":       "since=not-a-time",
		"weekday out of range":  "weekday=9",
		"weekday not a number":  "weekday=tuesday",
		"malformed duration":    "last=abc",
		"conflicting selectors": "since=2024-01-01&last=1w",
	}
	for name, query := range cases {
		resp := do(t, http.MethodGet, srv.URL+"/api/leaderboard?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestUserStats(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "ab1001", 0)
	recordCoffee(t, srv, "ab1001", 1000, 150, 1)
	recordCoffee(t, srv, "ab1001", 2000, 150, 1)

	resp := do(t, http.MethodGet, srv.URL+"/api/userstats/ab1001", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[UserStatsDTO](t, resp)
	assert.Equal(t, int64(2), stats.TotalShots)
	assert.Equal(t, int64(300), stats.SpendPence)
	assert.Equal(t, map[string]int64{"espresso": 2}, stats.Totals)
}

func TestUserStats_UnknownUser(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/userstats/nobody", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTimeSeries(t *testing.T) {
	srv := newTestServer(t)
	registerUser(t, srv, "ab1001", 0)
	recordCoffee(t, srv, "ab1001", 1000, 150, 1)

	resp := do(t, http.MethodGet, srv.URL+"/api/timeseries?crsid=ab1001&debit=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	series := decode[TimeSeriesDTO](t, resp)
	assert.Equal(t, []string{"timestamp", "type", "debit"}, series.Headers)
	require.Len(t, series.Table, 1)
}

func TestTimeSeries_BadBounds(t *testing.T) {
	srv := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/timeseries?after=garbage", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "malformed_time", decode[ErrorResponse](t, resp).Code)

	resp = do(t, http.MethodGet, srv.URL+"/api/timeseries?debit=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// STORAGE FAILURE
// =============================================================================

func TestStorageUnavailable(t *testing.T) {
	// Neither configured location exists: every endpoint fails closed.
	h := NewHandler(sqlite.Locator{
		Primary:   filepath.Join(t.TempDir(), "gone.db"),
		Secondary: filepath.Join(t.TempDir(), "also-gone.db"),
	})
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)

	resp := do(t, http.MethodGet, srv.URL+"/api/users", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "storage_unavailable", decode[ErrorResponse](t, resp).Code)
}

func TestStorageFailover(t *testing.T) {
	// Only the secondary exists: requests are served from it.
	path := filepath.Join(t.TempDir(), "secondary.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	h := NewHandler(sqlite.Locator{
		Primary:   filepath.Join(t.TempDir(), "gone.db"),
		Secondary: path,
	})
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)

	resp := do(t, http.MethodPost, srv.URL+"/api/users", CreateUserRequest{CRSID: "ab1001"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}
