package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"rewardsd/models"
)

func TestStepUpRewardFiresOnExactMultiple(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	// Occupy serials 1..34, then let the 35th qualification fire the
	// multiple: 35 = 7 x 5, so the holder of serial 7 earns 500.
	accounts := make([]*models.Account, 0, 35)
	for i := 0; i < 35; i++ {
		accounts = append(accounts, qualify(t, eng, db, ""))
	}
	seventh := accounts[6]
	require.Equal(t, uint64(7), *seventh.GlobalSerialNumber)

	rewards, err := eng.GetStepUpRewards(context.Background(), seventh.ID)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	require.Equal(t, uint64(7), rewards[0].BeneficiarySerial)
	require.Equal(t, uint64(5), rewards[0].Multiplier)
	require.Equal(t, uint64(35), rewards[0].TriggerSerial)
	require.Equal(t, int64(500), rewards[0].RewardPoints)

	balance, err := eng.GetBalance(context.Background(), seventh.ID)
	require.NoError(t, err)
	require.Equal(t, int64(DefaultQualifyingBalance+500), balance)
}

func TestStepUpRewardNotDuplicatedOnReplay(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	for i := 0; i < 34; i++ {
		qualify(t, eng, db, "")
	}
	trigger := createAccount(t, db, models.RoleCustomer, "", nil)
	mustRecord(t, eng, trigger.ID, DefaultQualifyingBalance, models.KindEarn, "trigger-35")

	// Replay of the triggering event must not re-run the cascade.
	replay := mustRecord(t, eng, trigger.ID, DefaultQualifyingBalance, models.KindEarn, "trigger-35")
	require.True(t, replay.Replayed)

	var count int64
	require.NoError(t, db.Model(&models.StepUpReward{}).
		Where("beneficiary_serial = ? AND multiplier = ?", 7, 5).
		Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestStepUpMultiplierTableAmounts(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	// 25 qualifications: serial 25 divides by both 5 (target 5) and 25
	// (target 1), paying out the configured amount per tier.
	accounts := make([]*models.Account, 0, 25)
	for i := 0; i < 25; i++ {
		accounts = append(accounts, qualify(t, eng, db, ""))
	}

	first, err := eng.GetStepUpRewards(context.Background(), accounts[0].ID)
	require.NoError(t, err)
	// Serial 1 was rewarded at trigger 5 (multiplier 5) and trigger 25
	// (multiplier 25), once per pair.
	require.Len(t, first, 2)
	byMultiplier := map[uint64]int64{}
	for _, reward := range first {
		byMultiplier[reward.Multiplier] += reward.RewardPoints
	}
	require.Equal(t, int64(500), byMultiplier[5])
	require.Equal(t, int64(1_500), byMultiplier[25])

	fifth, err := eng.GetStepUpRewards(context.Background(), accounts[4].ID)
	require.NoError(t, err)
	require.Len(t, fifth, 1)
	require.Equal(t, int64(500), fifth[0].RewardPoints)
	require.Equal(t, uint64(25), fifth[0].TriggerSerial)
}

func TestStepUpUnclaimedMultipleIsNoop(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	// Seed a sparse serial space, as left behind by an imported legacy
	// dataset: the counter sits at 25 with serials 1..24 vacant.
	require.NoError(t, db.Create(&models.SequenceCounter{Scope: scopeGlobal, Next: 25}).Error)

	account := qualify(t, eng, db, "")
	require.Equal(t, uint64(25), *account.GlobalSerialNumber)

	// 25 divides by 5 and 25, but nobody holds serial 5 or 1; the
	// multiples stay unclaimed rather than erroring.
	var count int64
	require.NoError(t, db.Model(&models.StepUpReward{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestStepUpRippleToReferrer(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	referrer := createAccount(t, db, models.RoleCustomer, "", nil)
	referred := createAccount(t, db, models.RoleCustomer, "", &referrer.ID)
	mustRecord(t, eng, referred.ID, DefaultQualifyingBalance, models.KindEarn, "q-referred")

	// Fill serials 2..4, then the 5th qualification rewards serial 1
	// (the referred account), which ripples 10% of 500 to the referrer.
	for i := 0; i < 4; i++ {
		qualify(t, eng, db, "")
	}

	ripples, err := eng.GetRippleRewards(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Len(t, ripples, 1)
	require.Equal(t, int64(50), ripples[0].RippleAmount)
	require.Equal(t, referred.ID, ripples[0].ReferredID)

	// The referrer holds the ripple bonus plus the 5% commission on the
	// referred account's qualifying earn (75 of 1500).
	balance, err := eng.GetBalance(context.Background(), referrer.ID)
	require.NoError(t, err)
	require.Equal(t, int64(125), balance)
}

func TestStepUpNoRippleWithoutReferrer(t *testing.T) {
	db := setupTestDB(t)
	eng := newTestEngine(t, db, testParams())

	for i := 0; i < 5; i++ {
		qualify(t, eng, db, "")
	}

	var count int64
	require.NoError(t, db.Model(&models.RippleReward{}).Count(&count).Error)
	require.Zero(t, count)
}
