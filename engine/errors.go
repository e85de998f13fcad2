package engine

import "errors"

var (
	ErrAccountNotFound     = errors.New("engine: account not found")
	ErrInvalidAmount       = errors.New("engine: amount must be non-zero")
	ErrUnknownKind         = errors.New("engine: unknown entry kind")
	ErrInsufficientBalance = errors.New("engine: insufficient balance")
	ErrMissingIdempotency  = errors.New("engine: idempotency key required")
	ErrReservedKey         = errors.New("engine: idempotency key uses a reserved prefix")
	ErrConfigMissing       = errors.New("engine: required configuration entry missing")
	ErrCascadeDepth        = errors.New("engine: cascade depth exceeded")
	ErrRetryExhausted      = errors.New("engine: retries exhausted")
)
