package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// withRetry runs fn in one transaction, retrying the whole cascade on
// transient serialization and lock-contention failures. Because every
// internal write carries a deterministic idempotency key, re-running the
// cascade from scratch is safe.
func (e *Engine) withRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var last error
	for attempt := 0; attempt < e.params.RetryAttempts; attempt++ {
		if attempt > 0 {
			e.metrics.RecordRetry()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
			}
		}
		err := e.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		last = err
	}
	return fmt.Errorf("%w: %v", ErrRetryExhausted, last)
}

// retryable classifies transient storage failures: postgres serialization
// (40001) and deadlock (40P01) aborts, sqlite writer contention, and the
// counter-row insert race, which the next attempt resolves by locking the
// now existing row.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"40001",
		"40p01",
		"serialization failure",
		"deadlock detected",
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"duplicate key value violates unique constraint",
		"unique constraint failed",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
