package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"rewardsd/models"
)

func TestGetLedgerPagination(t *testing.T) {
	db := setupTestDB(t)

	// A fixed clock keeps entry timestamps distinct and ordered.
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	eng, err := New(db, testParams(), WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}))
	require.NoError(t, err)

	account := createAccount(t, db, models.RoleCustomer, "", nil)
	for i := 0; i < 7; i++ {
		mustRecord(t, eng, account.ID, 100, models.KindEarn, fmt.Sprintf("evt-%d", i))
	}

	ctx := context.Background()
	first, err := eng.GetLedger(ctx, account.ID, "", 3)
	require.NoError(t, err)
	require.Len(t, first.Entries, 3)
	require.NotEmpty(t, first.NextCursor)
	require.Equal(t, "evt-6", first.Entries[0].IdempotencyKey)

	second, err := eng.GetLedger(ctx, account.ID, first.NextCursor, 3)
	require.NoError(t, err)
	require.Len(t, second.Entries, 3)
	require.NotEmpty(t, second.NextCursor)

	third, err := eng.GetLedger(ctx, account.ID, second.NextCursor, 3)
	require.NoError(t, err)
	require.Len(t, third.Entries, 1)
	require.Empty(t, third.NextCursor)
	require.Equal(t, "evt-0", third.Entries[0].IdempotencyKey)

	// No entry appears twice across pages.
	seen := map[string]bool{}
	for _, page := range [][]models.LedgerEntry{first.Entries, second.Entries, third.Entries} {
		for _, entry := range page {
			require.False(t, seen[entry.IdempotencyKey])
			seen[entry.IdempotencyKey] = true
		}
	}
	require.Len(t, seen, 7)
}

func TestGetLedgerUnknownCursorReturnsEmptyPage(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())
	account := createAccount(t, db, models.RoleCustomer, "", nil)
	mustRecord(t, eng, account.ID, 100, models.KindEarn, "evt-1")

	page, err := eng.GetLedger(context.Background(), account.ID, "00000000-0000-0000-0000-000000000001", 10)
	require.NoError(t, err)
	require.Empty(t, page.Entries)
}

func TestGetLedgerCursorScopedToAccount(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	alice := createAccount(t, db, models.RoleCustomer, "", nil)
	bob := createAccount(t, db, models.RoleCustomer, "", nil)
	mustRecord(t, eng, alice.ID, 100, models.KindEarn, "alice-1")
	mustRecord(t, eng, alice.ID, 100, models.KindEarn, "alice-2")
	bobEntry := mustRecord(t, eng, bob.ID, 100, models.KindEarn, "bob-1")

	// Another account's entry id is not a valid pivot into this ledger.
	page, err := eng.GetLedger(context.Background(), alice.ID, bobEntry.Entry.ID.String(), 10)
	require.NoError(t, err)
	require.Empty(t, page.Entries)
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	_, err := eng.GetBalance(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrAccountNotFound)
}
