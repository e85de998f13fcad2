package engine

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rewardsd/models"
)

const (
	scopeGlobal       = "global"
	scopeRegionPrefix = "region:"
)

// assignSerials gives the account its global (and, when the account carries a
// region, local) serial number the first time its balance reaches the
// qualifying threshold. Idempotent per account: an already numbered account
// is never touched again. Returns the assigned global serial.
func (c *cascade) assignSerials(account *models.Account) (bool, uint64, error) {
	if account.GlobalSerialNumber != nil {
		return false, 0, nil
	}
	if account.PointBalance < c.engine.params.QualifyingBalance {
		return false, 0, nil
	}

	global, err := c.nextSerial(scopeGlobal)
	if err != nil {
		return false, 0, err
	}
	account.GlobalSerialNumber = &global

	if account.Region != "" {
		local, err := c.nextSerial(scopeRegionPrefix + account.Region)
		if err != nil {
			return false, 0, err
		}
		account.LocalSerialNumber = &local
	}

	account.UpdatedAt = c.engine.now()
	if err := c.tx.Save(account).Error; err != nil {
		return false, 0, err
	}

	c.engine.metrics.SerialAssigned(account.Region)
	c.engine.log.Info("serial number assigned",
		"account", account.ID,
		"global_serial", global,
		"region", account.Region,
	)
	return true, global, nil
}

// nextSerial reads and increments the counter row for the given scope under a
// FOR UPDATE lock. Concurrent qualifiers serialize on this row, so the values
// handed out are consecutive with no gaps and no duplicates.
func (c *cascade) nextSerial(scope string) (uint64, error) {
	var counter models.SequenceCounter
	err := c.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&counter, "scope = ?", scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		counter = models.SequenceCounter{Scope: scope, Next: 1, UpdatedAt: c.engine.now()}
		if err := c.tx.Create(&counter).Error; err != nil {
			// A concurrent insert of the same scope loses here; the
			// conflict surfaces as a retryable error to the caller.
			return 0, fmt.Errorf("create sequence counter %q: %w", scope, err)
		}
	} else if err != nil {
		return 0, err
	}

	value := counter.Next
	counter.Next = value + 1
	counter.UpdatedAt = c.engine.now()
	if err := c.tx.Save(&counter).Error; err != nil {
		return 0, err
	}
	return value, nil
}
