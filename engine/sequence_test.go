package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"rewardsd/models"
)

// qualify creates an account and pushes it over the qualifying threshold.
func qualify(t *testing.T, eng *Engine, db *gorm.DB, region string) *models.Account {
	t.Helper()
	account := createAccount(t, db, models.RoleCustomer, region, nil)
	mustRecord(t, eng, account.ID, DefaultQualifyingBalance, models.KindEarn,
		"qualify:"+account.ID.String())
	reloaded, err := eng.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	return reloaded
}

func TestSerialNumbersDenseAndOrdered(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	const n = 9
	for i := 0; i < n; i++ {
		qualify(t, eng, db, "")
	}

	var accounts []models.Account
	require.NoError(t, db.Where("global_serial_number IS NOT NULL").
		Order("global_serial_number ASC").Find(&accounts).Error)
	require.Len(t, accounts, n)
	for i, account := range accounts {
		require.Equal(t, uint64(i+1), *account.GlobalSerialNumber)
	}
}

func TestSerialAssignmentIdempotentPerAccount(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	account := qualify(t, eng, db, "")
	require.NotNil(t, account.GlobalSerialNumber)
	serial := *account.GlobalSerialNumber

	// Further earnings never reassign or shift the number.
	mustRecord(t, eng, account.ID, 5_000, models.KindEarn, "more-1")
	mustRecord(t, eng, account.ID, 5_000, models.KindEarn, "more-2")

	reloaded, err := eng.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Equal(t, serial, *reloaded.GlobalSerialNumber)
}

func TestBelowThresholdNotAssigned(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	account := createAccount(t, db, models.RoleCustomer, "", nil)
	mustRecord(t, eng, account.ID, DefaultQualifyingBalance-1, models.KindEarn, "evt-1")

	reloaded, err := eng.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.Nil(t, reloaded.GlobalSerialNumber)

	// The next point crosses the threshold.
	mustRecord(t, eng, account.ID, 1, models.KindEarn, "evt-2")
	reloaded, err = eng.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.GlobalSerialNumber)
	require.Equal(t, uint64(1), *reloaded.GlobalSerialNumber)
}

func TestLocalSerialsScopedPerRegion(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	east1 := qualify(t, eng, db, "E")
	west1 := qualify(t, eng, db, "W")
	east2 := qualify(t, eng, db, "E")

	require.Equal(t, uint64(1), *east1.LocalSerialNumber)
	require.Equal(t, uint64(1), *west1.LocalSerialNumber)
	require.Equal(t, uint64(2), *east2.LocalSerialNumber)

	// Global numbering is independent of regions.
	require.Equal(t, uint64(1), *east1.GlobalSerialNumber)
	require.Equal(t, uint64(2), *west1.GlobalSerialNumber)
	require.Equal(t, uint64(3), *east2.GlobalSerialNumber)
}

func TestSerialAssignmentConcurrent(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)", filepath.Join(t.TempDir(), "rewards.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	params := testParams()
	params.RetryAttempts = 20
	eng := newTestEngine(t, db, params)

	const n = 6
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = createAccount(t, db, models.RoleCustomer, "", nil).ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Record(context.Background(), RecordCommand{
				AccountID:      ids[i],
				Amount:         DefaultQualifyingBalance,
				Kind:           models.KindEarn,
				SourceRef:      "concurrent",
				IdempotencyKey: fmt.Sprintf("concurrent:%d", i),
			})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "goroutine %d", i)
	}

	// Regardless of interleaving, the serials form {1..n} exactly.
	var serials []uint64
	require.NoError(t, db.Model(&models.Account{}).
		Where("global_serial_number IS NOT NULL").
		Order("global_serial_number ASC").
		Pluck("global_serial_number", &serials).Error)
	require.Len(t, serials, n)
	for i, serial := range serials {
		require.Equal(t, uint64(i+1), serial)
	}
}
