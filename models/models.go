package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role enumerations for persistence.
const (
	RoleCustomer = "customer"
	RoleMerchant = "merchant"
)

// EntryKind classifies a ledger entry. The set is closed; the engine rejects
// anything outside it.
type EntryKind string

// All ledger entry kinds.
const (
	KindEarn        EntryKind = "earn"
	KindSpend       EntryKind = "spend"
	KindTransferIn  EntryKind = "transfer_in"
	KindTransferOut EntryKind = "transfer_out"
	KindReward      EntryKind = "reward"
	KindCommission  EntryKind = "commission"
	KindRipple      EntryKind = "ripple"
	KindVoucher     EntryKind = "voucher"
)

// Credit reports whether entries of this kind add points to the account.
func (k EntryKind) Credit() bool {
	switch k {
	case KindEarn, KindTransferIn, KindReward, KindCommission, KindRipple, KindVoucher:
		return true
	}
	return false
}

// Debit reports whether entries of this kind remove points and therefore must
// not drive the balance negative.
func (k EntryKind) Debit() bool {
	return k == KindSpend || k == KindTransferOut
}

// Known reports whether the kind belongs to the closed enumeration.
func (k EntryKind) Known() bool {
	return k.Credit() || k.Debit()
}

// Account is a customer or merchant wallet. Serial numbers, once assigned,
// never change; PointBalance always equals the signed sum of the account's
// ledger entries.
type Account struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Role               string     `gorm:"size:16;index"`
	Region             string     `gorm:"size:8;index;uniqueIndex:idx_region_local"`
	PointBalance       int64      `gorm:"not null"`
	LifetimeEarned     int64      `gorm:"not null"`
	GlobalSerialNumber *uint64    `gorm:"uniqueIndex"`
	LocalSerialNumber  *uint64    `gorm:"uniqueIndex:idx_region_local"`
	ReferredByID       *uuid.UUID `gorm:"type:uuid;index"`
	Tier               string     `gorm:"size:16"`
	Active             bool       `gorm:"not null;default:true"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// LedgerEntry is one append-only movement of points. The unique index on
// (account_id, idempotency_key) is what makes replays observable as replays
// instead of double-applies.
type LedgerEntry struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID      uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_account_idem"`
	Amount         int64     `gorm:"not null"`
	Kind           EntryKind `gorm:"size:16;index"`
	SourceRef      string    `gorm:"size:128"`
	IdempotencyKey string    `gorm:"size:128;uniqueIndex:idx_account_idem"`
	CreatedAt      time.Time `gorm:"index"`
}

// SequenceCounter backs serial-number assignment. One row per scope
// ("global" or "region:<code>"); incremented only under a FOR UPDATE lock.
type SequenceCounter struct {
	Scope     string `gorm:"primaryKey;size:32"`
	Next      uint64 `gorm:"not null"`
	UpdatedAt time.Time
}

// StepUpReward records a milestone payout. At most one row may exist per
// (beneficiary_serial, multiplier) pair.
type StepUpReward struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	BeneficiaryID     uuid.UUID `gorm:"type:uuid;index"`
	BeneficiarySerial uint64    `gorm:"uniqueIndex:idx_serial_mult"`
	Multiplier        uint64    `gorm:"uniqueIndex:idx_serial_mult"`
	TriggerSerial     uint64    `gorm:"index"`
	RewardPoints      int64     `gorm:"not null"`
	AwardedAt         time.Time
}

// InfinityCycle records one lifetime-points cycle payout. Cycles for an
// account are strictly increasing with no repeats.
type InfinityCycle struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	AccountID       uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_account_cycle"`
	CycleNumber     uint32    `gorm:"uniqueIndex:idx_account_cycle"`
	MilestonePoints int64     `gorm:"not null"`
	RewardPoints    int64     `gorm:"not null"`
	AwardedAt       time.Time
}

// ReferralCommission records a lifetime referral payout for one qualifying
// ledger entry of the referred account.
type ReferralCommission struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReferrerID       uuid.UUID `gorm:"type:uuid;index"`
	ReferredID       uuid.UUID `gorm:"type:uuid;index"`
	SourceEntryID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	SourceAmount     int64     `gorm:"not null"`
	CommissionBps    uint32    `gorm:"not null"`
	CommissionAmount int64     `gorm:"not null"`
	CreatedAt        time.Time
}

// RippleReward records the referrer bonus paid when a referred account
// receives a StepUp reward.
type RippleReward struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReferrerID     uuid.UUID `gorm:"type:uuid;index"`
	ReferredID     uuid.UUID `gorm:"type:uuid;index"`
	StepUpRewardID uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	RippleBps      uint32    `gorm:"not null"`
	RippleAmount   int64     `gorm:"not null"`
	CreatedAt      time.Time
}

// ShoppingVoucher records one merchant's share of the pool distributed when a
// StepUp reward fires. Shares for one triggering reward sum to the pool.
type ShoppingVoucher struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	MerchantID     uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_reward_merchant"`
	StepUpRewardID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_reward_merchant"`
	VoucherAmount  int64     `gorm:"not null"`
	DistributedAt  time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&LedgerEntry{},
		&SequenceCounter{},
		&StepUpReward{},
		&InfinityCycle{},
		&ReferralCommission{},
		&RippleReward{},
		&ShoppingVoucher{},
	)
}
