package engine

import (
	"fmt"

	"github.com/google/uuid"

	"rewardsd/models"
)

// merchantWeight pairs an active merchant with its recent credited-points
// volume, the weighting input for voucher distribution.
type merchantWeight struct {
	MerchantID uuid.UUID
	Weight     int64
}

// distributeVouchers splits the fixed voucher pool across active merchants in
// proportion to the points credited to each inside the configured window.
// Shares always sum to the pool exactly: integer division rounds every share
// down and the residual lands on the largest share. Merchants whose share
// rounds to zero receive nothing. No-op with no active merchants.
func (c *cascade) distributeVouchers(reward *models.StepUpReward) ([]cascadeItem, error) {
	cutoff := c.engine.now().Add(-c.engine.params.VoucherWindow)

	var weights []merchantWeight
	err := c.tx.Raw(`
		SELECT a.id AS merchant_id, COALESCE(SUM(le.amount), 0) AS weight
		FROM accounts a
		LEFT JOIN ledger_entries le
			ON le.account_id = a.id AND le.amount > 0 AND le.created_at >= ?
		WHERE a.role = ? AND a.active = ?
		GROUP BY a.id
		ORDER BY a.id`, cutoff, models.RoleMerchant, true).
		Scan(&weights).Error
	if err != nil {
		return nil, err
	}
	if len(weights) == 0 {
		return nil, nil
	}

	pool := c.engine.params.VoucherPool
	shares := splitPool(pool, weights)

	var queue []cascadeItem
	for i, w := range weights {
		if shares[i] <= 0 {
			continue
		}
		voucher := models.ShoppingVoucher{
			ID:             uuid.New(),
			MerchantID:     w.MerchantID,
			StepUpRewardID: reward.ID,
			VoucherAmount:  shares[i],
			DistributedAt:  c.engine.now(),
		}
		if err := c.tx.Create(&voucher).Error; err != nil {
			return nil, err
		}
		queue = append(queue, cascadeItem{
			accountID: w.MerchantID,
			amount:    shares[i],
			kind:      models.KindVoucher,
			sourceRef: fmt.Sprintf("voucher:stepup:%d:%d", reward.BeneficiarySerial, reward.Multiplier),
			idemKey:   fmt.Sprintf("voucher:stepup:%d:%d", reward.BeneficiarySerial, reward.Multiplier),
		})
		c.engine.metrics.VoucherDistributed()
	}
	return queue, nil
}

// splitPool apportions pool across the weights, floor per share, with the
// undistributed remainder assigned to the largest share (first in iteration
// order on ties, which is deterministic because weights arrive ordered by
// merchant id). Zero total weight degrades to an equal split.
func splitPool(pool int64, weights []merchantWeight) []int64 {
	shares := make([]int64, len(weights))

	var total int64
	for _, w := range weights {
		total += w.Weight
	}

	var distributed int64
	largest := 0
	if total == 0 {
		base := pool / int64(len(weights))
		for i := range shares {
			shares[i] = base
			distributed += base
		}
	} else {
		for i, w := range weights {
			shares[i] = pool * w.Weight / total
			distributed += shares[i]
			if w.Weight > weights[largest].Weight {
				largest = i
			}
		}
	}

	shares[largest] += pool - distributed
	return shares
}
