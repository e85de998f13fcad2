package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rewardsd/models"
)

// evaluateCommission pays the referrer of an account a lifetime percentage of
// every earn or transfer-in credit. The rate is keyed by the referrer's role;
// a role without a configured rate is a refusal, not a silent skip. Derived
// kinds (reward, commission, ripple, voucher) never generate commission, so
// commission can not compound on itself.
func (c *cascade) evaluateCommission(account *models.Account, entry *models.LedgerEntry) ([]cascadeItem, error) {
	if entry.Kind != models.KindEarn && entry.Kind != models.KindTransferIn {
		return nil, nil
	}
	if account.ReferredByID == nil {
		return nil, nil
	}

	var referrer models.Account
	if err := c.tx.First(&referrer, "id = ?", *account.ReferredByID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: referrer %s", ErrAccountNotFound, *account.ReferredByID)
		}
		return nil, err
	}

	bps, ok := c.engine.params.CommissionBps[referrer.Role]
	if !ok {
		return nil, fmt.Errorf("%w: commission rate for role %q", ErrConfigMissing, referrer.Role)
	}
	amount := entry.Amount * int64(bps) / RateBpsDenominator
	if amount <= 0 {
		return nil, nil
	}

	commission := models.ReferralCommission{
		ID:               uuid.New(),
		ReferrerID:       referrer.ID,
		ReferredID:       account.ID,
		SourceEntryID:    entry.ID,
		SourceAmount:     entry.Amount,
		CommissionBps:    bps,
		CommissionAmount: amount,
		CreatedAt:        c.engine.now(),
	}
	if err := c.tx.Create(&commission).Error; err != nil {
		return nil, err
	}

	c.engine.metrics.CommissionAwarded(referrer.Role)
	return []cascadeItem{{
		accountID: referrer.ID,
		amount:    amount,
		kind:      models.KindCommission,
		sourceRef: fmt.Sprintf("commission:%s", account.ID),
		idemKey:   fmt.Sprintf("commission:%s:%s", account.ID, entry.IdempotencyKey),
	}}, nil
}
