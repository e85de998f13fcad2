package engine

import (
	"fmt"

	"github.com/google/uuid"

	"rewardsd/models"
)

// evaluateInfinity awards every cycle whose lifetime-points threshold the
// account has now crossed. Cycles are strictly ordered: cycle n fires only
// after cycles 0..n-1 exist, and each fires exactly once. A single large
// grant can cross several thresholds in one pass; the loop keeps going until
// the next threshold is out of reach.
func (c *cascade) evaluateInfinity(account *models.Account) ([]cascadeItem, error) {
	var awarded int64
	if err := c.tx.Model(&models.InfinityCycle{}).
		Where("account_id = ?", account.ID).
		Count(&awarded).Error; err != nil {
		return nil, err
	}

	var queue []cascadeItem
	for cycle := uint32(awarded); ; cycle++ {
		threshold := c.engine.params.infinityThreshold(cycle)
		if account.LifetimeEarned < threshold {
			break
		}

		reward := c.engine.params.infinityReward(cycle)
		row := models.InfinityCycle{
			ID:              uuid.New(),
			AccountID:       account.ID,
			CycleNumber:     cycle,
			MilestonePoints: threshold,
			RewardPoints:    reward,
			AwardedAt:       c.engine.now(),
		}
		if err := c.tx.Create(&row).Error; err != nil {
			return nil, err
		}
		queue = append(queue, cascadeItem{
			accountID: account.ID,
			amount:    reward,
			kind:      models.KindReward,
			sourceRef: fmt.Sprintf("infinity:cycle:%d", cycle),
			idemKey:   fmt.Sprintf("infinity:cycle:%d", cycle),
		})

		c.engine.metrics.InfinityAwarded(cycle)
		c.engine.log.Info("infinity cycle awarded",
			"account", account.ID,
			"cycle", cycle,
			"milestone", threshold,
			"points", reward,
		)
	}
	return queue, nil
}
