// Package engine implements the points and milestone reward engine: the
// append-only points ledger plus every effect that cascades from a ledger
// write (serial-number assignment, StepUp milestone rewards, Infinity cycles,
// referral commissions, ripple bonuses, merchant voucher distribution).
//
// Every externally triggered Record call runs as one database transaction.
// Cascading credits re-enter the ledger inside the same transaction with
// deterministic idempotency keys, so a crashed or retried cascade is a no-op
// the second time and no partial state is ever visible.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rewardsd/models"
	"rewardsd/observability"
)

// Engine evaluates ledger writes and their cascading reward effects.
type Engine struct {
	db      *gorm.DB
	params  Params
	log     *slog.Logger
	metrics *observability.EngineMetrics
	now     func() time.Time
}

// Option tunes engine construction.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics attaches the Prometheus registry.
func WithMetrics(m *observability.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New validates the parameter set and returns a ready engine.
func New(db *gorm.DB, params Params, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("engine: nil db")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		db:     db,
		params: params,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RecordCommand is one externally triggered point movement. Amount is the
// positive magnitude; the entry kind decides the sign on the ledger.
type RecordCommand struct {
	AccountID      uuid.UUID
	Amount         int64
	Kind           models.EntryKind
	SourceRef      string
	IdempotencyKey string
}

// RecordResult reports the applied (or replayed) entry and the balance after
// the full cascade settled.
type RecordResult struct {
	Entry    models.LedgerEntry
	Balance  int64
	Replayed bool
}

// reservedKeyPrefixes namespace the idempotency keys the cascade derives for
// its own credits. External keys must not collide with them: a collision
// would make a cascade credit look like a replay and the points would never
// land.
var reservedKeyPrefixes = []string{"stepup:", "infinity:", "commission:", "ripple:", "voucher:"}

// Record applies one point movement and every effect that follows from it,
// atomically. Replaying the same idempotency key returns the original entry
// without touching the ledger again.
func (e *Engine) Record(ctx context.Context, cmd RecordCommand) (*RecordResult, error) {
	if cmd.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !cmd.Kind.Known() {
		return nil, ErrUnknownKind
	}
	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		return nil, ErrMissingIdempotency
	}
	for _, prefix := range reservedKeyPrefixes {
		if strings.HasPrefix(key, prefix) {
			return nil, fmt.Errorf("%w: %q", ErrReservedKey, prefix)
		}
	}

	var result RecordResult
	err := e.withRetry(ctx, func(tx *gorm.DB) error {
		result = RecordResult{}
		c := &cascade{engine: e, tx: tx}
		entry, account, replayed, err := c.apply(cascadeItem{
			accountID: cmd.AccountID,
			amount:    cmd.Amount,
			kind:      cmd.Kind,
			sourceRef: cmd.SourceRef,
			idemKey:   key,
		})
		if err != nil {
			return err
		}
		result.Entry = *entry
		result.Replayed = replayed
		if !replayed {
			if err := c.run(account, entry, 0); err != nil {
				return err
			}
		}
		// The cascade may have credited the originating account again;
		// re-read the settled balance.
		var settled models.Account
		if err := tx.First(&settled, "id = ?", cmd.AccountID).Error; err != nil {
			return err
		}
		result.Balance = settled.PointBalance
		return nil
	})
	if err != nil {
		e.metrics.RecordEntry(string(cmd.Kind), "error")
		return nil, err
	}
	outcome := "applied"
	if result.Replayed {
		outcome = "replayed"
	}
	e.metrics.RecordEntry(string(cmd.Kind), outcome)
	return &result, nil
}

// cascadeItem is one pending ledger credit or debit inside a transaction.
type cascadeItem struct {
	accountID uuid.UUID
	amount    int64
	kind      models.EntryKind
	sourceRef string
	idemKey   string
}

// cascade walks the effect graph of one Record call. All state lives in the
// enclosing transaction; nothing escapes until commit.
type cascade struct {
	engine *Engine
	tx     *gorm.DB
}

// run evaluates every effect of a freshly applied entry and drains the
// resulting work queue. Depth counts cascade generations, not queue length:
// a StepUp credit that itself qualifies a serial number is generation two.
func (c *cascade) run(account *models.Account, entry *models.LedgerEntry, depth int) error {
	if depth >= maxCascadeDepth {
		return ErrCascadeDepth
	}
	c.engine.metrics.ObserveCascadeDepth(depth)

	queue, err := c.effects(account, entry)
	if err != nil {
		return err
	}
	for _, item := range queue {
		next, nextAccount, replayed, err := c.apply(item)
		if err != nil {
			return err
		}
		if replayed {
			continue
		}
		if err := c.run(nextAccount, next, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// effects computes the downstream work owed to one applied entry.
func (c *cascade) effects(account *models.Account, entry *models.LedgerEntry) ([]cascadeItem, error) {
	if entry.Amount <= 0 {
		return nil, nil
	}
	var queue []cascadeItem

	assigned, serial, err := c.assignSerials(account)
	if err != nil {
		return nil, err
	}
	if assigned {
		items, err := c.evaluateStepUp(serial)
		if err != nil {
			return nil, err
		}
		queue = append(queue, items...)
	}

	items, err := c.evaluateInfinity(account)
	if err != nil {
		return nil, err
	}
	queue = append(queue, items...)

	items, err = c.evaluateCommission(account, entry)
	if err != nil {
		return nil, err
	}
	queue = append(queue, items...)

	return queue, nil
}

// apply writes one ledger entry and updates the account balance under a row
// lock. A previously seen (account, idempotency key) pair short-circuits to
// the stored entry.
func (c *cascade) apply(item cascadeItem) (*models.LedgerEntry, *models.Account, bool, error) {
	var account models.Account
	if err := c.tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&account, "id = ?", item.accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, false, fmt.Errorf("%w: %s", ErrAccountNotFound, item.accountID)
		}
		return nil, nil, false, err
	}

	var existing models.LedgerEntry
	err := c.tx.First(&existing, "account_id = ? AND idempotency_key = ?", item.accountID, item.idemKey).Error
	if err == nil {
		return &existing, &account, true, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, false, err
	}

	signed := item.amount
	if item.kind.Debit() {
		signed = -item.amount
		if account.PointBalance+signed < 0 {
			return nil, nil, false, fmt.Errorf("%w: balance %d, debit %d",
				ErrInsufficientBalance, account.PointBalance, item.amount)
		}
	}

	now := c.engine.now()
	entry := models.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      account.ID,
		Amount:         signed,
		Kind:           item.kind,
		SourceRef:      item.sourceRef,
		IdempotencyKey: item.idemKey,
		CreatedAt:      now,
	}
	if err := c.tx.Create(&entry).Error; err != nil {
		return nil, nil, false, err
	}

	account.PointBalance += signed
	if signed > 0 {
		account.LifetimeEarned += signed
	}
	account.UpdatedAt = now
	if err := c.tx.Save(&account).Error; err != nil {
		return nil, nil, false, err
	}

	return &entry, &account, false, nil
}
