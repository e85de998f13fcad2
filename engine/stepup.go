package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"rewardsd/models"
)

// evaluateStepUp runs after serial trigger was assigned. For each configured
// multiplier m dividing trigger, the holder of serial trigger/m is owed the
// configured reward, at most once per (serial, multiplier) pair. Each fired
// reward then owes its beneficiary's referrer a ripple bonus and the merchant
// pool a voucher round. Cost is O(|multipliers|) per assignment; no scans.
func (c *cascade) evaluateStepUp(trigger uint64) ([]cascadeItem, error) {
	var queue []cascadeItem
	for _, m := range c.engine.params.multipliers() {
		if trigger%m != 0 {
			continue
		}
		target := trigger / m
		if target == 0 {
			continue
		}

		var beneficiary models.Account
		err := c.tx.First(&beneficiary, "global_serial_number = ?", target).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Nobody holds that serial yet. The multiple stays
			// unclaimed; rewards are never awarded retroactively.
			continue
		}
		if err != nil {
			return nil, err
		}

		var existing models.StepUpReward
		err = c.tx.First(&existing, "beneficiary_serial = ? AND multiplier = ?", target, m).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		points := c.engine.params.StepUpTable[m]
		reward := models.StepUpReward{
			ID:                uuid.New(),
			BeneficiaryID:     beneficiary.ID,
			BeneficiarySerial: target,
			Multiplier:        m,
			TriggerSerial:     trigger,
			RewardPoints:      points,
			AwardedAt:         c.engine.now(),
		}
		if err := c.tx.Create(&reward).Error; err != nil {
			return nil, err
		}
		queue = append(queue, cascadeItem{
			accountID: beneficiary.ID,
			amount:    points,
			kind:      models.KindReward,
			sourceRef: fmt.Sprintf("stepup:trigger:%d", trigger),
			idemKey:   fmt.Sprintf("stepup:%d:%d", target, m),
		})

		c.engine.metrics.StepUpAwarded(m)
		c.engine.log.Info("stepup reward fired",
			"beneficiary", beneficiary.ID,
			"serial", target,
			"multiplier", m,
			"trigger", trigger,
			"points", points,
		)

		items, err := c.evaluateRipple(&beneficiary, &reward)
		if err != nil {
			return nil, err
		}
		queue = append(queue, items...)

		items, err = c.distributeVouchers(&reward)
		if err != nil {
			return nil, err
		}
		queue = append(queue, items...)
	}
	return queue, nil
}

// evaluateRipple credits the beneficiary's referrer a fixed share of the
// StepUp reward. No-op when the beneficiary was not referred.
func (c *cascade) evaluateRipple(beneficiary *models.Account, reward *models.StepUpReward) ([]cascadeItem, error) {
	if beneficiary.ReferredByID == nil {
		return nil, nil
	}
	bps, ok := c.engine.params.RippleBps[reward.Multiplier]
	if !ok {
		return nil, fmt.Errorf("%w: ripple rate for multiplier %d", ErrConfigMissing, reward.Multiplier)
	}
	amount := reward.RewardPoints * int64(bps) / RateBpsDenominator
	if amount <= 0 {
		return nil, nil
	}

	ripple := models.RippleReward{
		ID:             uuid.New(),
		ReferrerID:     *beneficiary.ReferredByID,
		ReferredID:     beneficiary.ID,
		StepUpRewardID: reward.ID,
		RippleBps:      bps,
		RippleAmount:   amount,
		CreatedAt:      c.engine.now(),
	}
	if err := c.tx.Create(&ripple).Error; err != nil {
		return nil, err
	}
	c.engine.metrics.RippleAwarded()
	return []cascadeItem{{
		accountID: *beneficiary.ReferredByID,
		amount:    amount,
		kind:      models.KindRipple,
		sourceRef: fmt.Sprintf("ripple:stepup:%d:%d", reward.BeneficiarySerial, reward.Multiplier),
		idemKey:   fmt.Sprintf("ripple:stepup:%d:%d", reward.BeneficiarySerial, reward.Multiplier),
	}}, nil
}
