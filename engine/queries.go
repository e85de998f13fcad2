package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rewardsd/models"
)

// DefaultLedgerPageSize bounds GetLedger pages when the caller does not say.
const DefaultLedgerPageSize = 50

// LedgerPage is one cursor-delimited slice of an account's ledger, newest
// first. NextCursor is empty on the last page.
type LedgerPage struct {
	Entries    []models.LedgerEntry
	NextCursor string
}

// GetBalance returns the account's current point balance.
func (e *Engine) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var account models.Account
	if err := e.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return account.PointBalance, nil
}

// GetAccount returns the full account row.
func (e *Engine) GetAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := e.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetLedger pages through an account's entries newest first. The cursor is
// the id of the last entry of the previous page; an empty cursor starts from
// the top. Pages are restartable: a cursor stays valid as new entries land
// because ordering is (created_at, id) descending.
func (e *Engine) GetLedger(ctx context.Context, accountID uuid.UUID, cursor string, limit int) (*LedgerPage, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultLedgerPageSize
	}

	q := e.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if cursor != "" {
		cursorID, err := uuid.Parse(cursor)
		if err != nil {
			return nil, err
		}
		var pivot models.LedgerEntry
		if err := e.db.WithContext(ctx).
			First(&pivot, "id = ? AND account_id = ?", cursorID, accountID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &LedgerPage{}, nil
			}
			return nil, err
		}
		q = q.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			pivot.CreatedAt, pivot.CreatedAt, pivot.ID)
	}

	var entries []models.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}

	page := &LedgerPage{}
	if len(entries) > limit {
		entries = entries[:limit]
		page.NextCursor = entries[len(entries)-1].ID.String()
	}
	page.Entries = entries
	return page, nil
}

// GetStepUpRewards lists the account's milestone rewards, newest first.
func (e *Engine) GetStepUpRewards(ctx context.Context, accountID uuid.UUID) ([]models.StepUpReward, error) {
	var rewards []models.StepUpReward
	err := e.db.WithContext(ctx).
		Where("beneficiary_id = ?", accountID).
		Order("awarded_at DESC").
		Find(&rewards).Error
	return rewards, err
}

// GetInfinityCycles lists the account's cycle awards in cycle order.
func (e *Engine) GetInfinityCycles(ctx context.Context, accountID uuid.UUID) ([]models.InfinityCycle, error) {
	var cycles []models.InfinityCycle
	err := e.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("cycle_number ASC").
		Find(&cycles).Error
	return cycles, err
}

// GetReferralCommissions lists commissions earned by the account as referrer,
// newest first.
func (e *Engine) GetReferralCommissions(ctx context.Context, accountID uuid.UUID) ([]models.ReferralCommission, error) {
	var commissions []models.ReferralCommission
	err := e.db.WithContext(ctx).
		Where("referrer_id = ?", accountID).
		Order("created_at DESC").
		Find(&commissions).Error
	return commissions, err
}

// GetRippleRewards lists ripple bonuses earned by the account as referrer,
// newest first.
func (e *Engine) GetRippleRewards(ctx context.Context, accountID uuid.UUID) ([]models.RippleReward, error) {
	var ripples []models.RippleReward
	err := e.db.WithContext(ctx).
		Where("referrer_id = ?", accountID).
		Order("created_at DESC").
		Find(&ripples).Error
	return ripples, err
}

// GetShoppingVouchers lists vouchers distributed to the merchant, newest
// first.
func (e *Engine) GetShoppingVouchers(ctx context.Context, merchantID uuid.UUID) ([]models.ShoppingVoucher, error) {
	var vouchers []models.ShoppingVoucher
	err := e.db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("distributed_at DESC").
		Find(&vouchers).Error
	return vouchers, err
}

// CreateAccount registers an account. The surrounding platform calls this
// once at signup; the engine needs the row to exist before any Record call.
func (e *Engine) CreateAccount(ctx context.Context, account *models.Account) error {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if account.Role == "" {
		account.Role = models.RoleCustomer
	}
	now := e.now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	account.Active = true
	return e.db.WithContext(ctx).Create(account).Error
}
