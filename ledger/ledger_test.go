/*
ledger_test.go - Unit tests for user registration and lookup rules

Tests for:
- Identifier normalization and validation on registration
- Duplicate detection across casings
- Listing order and balance lookups
*/
package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spuriosity1/beanserver/ledger"
	"github.com/Spuriosity1/beanserver/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestUsers_Create_NormalizesIdentifier(t *testing.T) {
	// GIVEN: an identifier with mixed case and surrounding whitespace
	// WHEN: registering
	// THEN: the stored identifier is trimmed and lowercased

	store := newTestStore(t)
	users := ledger.NewUsers(store)
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, "  AB1234 ", 0))

	exists, _, err := users.Exists(ctx, "ab1234")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUsers_Create_Duplicate(t *testing.T) {
	store := newTestStore(t)
	users := ledger.NewUsers(store)
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, "ab1234", 150))

	// Same identifier again, different casing: still a collision, and the
	// original record keeps its debt.
	err := users.Create(ctx, "AB1234", 999)
	assert.ErrorIs(t, err, ledger.ErrDuplicateUser)

	debt, err := users.CachedBalance(ctx, "ab1234")
	require.NoError(t, err)
	assert.Equal(t, ledger.Pence(150), debt)
}

func TestUsers_Create_RejectsBadIdentifiers(t *testing.T) {
	store := newTestStore(t)
	users := ledger.NewUsers(store)
	ctx := context.Background()

	assert.ErrorIs(t, users.Create(ctx, "", 0), ledger.ErrValidation)
	assert.ErrorIs(t, users.Create(ctx, "   ", 0), ledger.ErrValidation)
	assert.ErrorIs(t, users.Create(ctx, "abcdefghi", 0), ledger.ErrValidation) // 9 chars
}

func TestUsers_Create_AcceptsMaxLengthIdentifier(t *testing.T) {
	store := newTestStore(t)
	users := ledger.NewUsers(store)

	assert.NoError(t, users.Create(context.Background(), "abcdefgh", 0)) // 8 chars
}

// =============================================================================
// LOOKUPS
// =============================================================================

func TestUsers_Exists_Unregistered(t *testing.T) {
	store := newTestStore(t)
	users := ledger.NewUsers(store)

	exists, rfid, err := users.Exists(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Nil(t, rfid)
}

func TestUsers_CachedBalance_CaseInsensitiveLookup(t *testing.T) {
	store := newTestStore(t)
	users := ledger.NewUsers(store)
	ctx := context.Background()

	require.NoError(t, users.Create(ctx, "ab1234", 250))

	debt, err := users.CachedBalance(ctx, "AB1234")
	require.NoError(t, err)
	assert.Equal(t, ledger.Pence(250), debt)
}

func TestUsers_CachedBalance_UnknownUser(t *testing.T) {
	store := newTestStore(t)
	users := ledger.NewUsers(store)

	_, err := users.CachedBalance(context.Background(), "nobody")
	assert.ErrorIs(t, err, ledger.ErrUnknownUser)
}

func TestUsers_List_OrderedByIdentifier(t *testing.T) {
	store := newTestStore(t)
	users := ledger.NewUsers(store)
	ctx := context.Background()

	for _, crsid := range []string{"zz999", "ab1234", "mm500"} {
		require.NoError(t, users.Create(ctx, crsid, 0))
	}

	list, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "ab1234", list[0].CRSID)
	assert.Equal(t, "mm500", list[1].CRSID)
	assert.Equal(t, "zz999", list[2].CRSID)
	for _, u := range list {
		assert.False(t, u.HasRFID)
	}
}

func TestUsers_List_Empty(t *testing.T) {
	store := newTestStore(t)

	list, err := ledger.NewUsers(store).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

// =============================================================================
// MONEY FORMATTING
// =============================================================================

func TestPence_Pounds(t *testing.T) {
	assert.Equal(t, "1.50", ledger.Pence(150).String())
	assert.Equal(t, "0.00", ledger.Pence(0).String())
	assert.Equal(t, "-2.05", ledger.Pence(-205).String())
}
