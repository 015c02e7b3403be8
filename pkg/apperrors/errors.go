package apperrors

import "errors"

// Venue errors, classified per the transient/permanent split so callers
// can decide retry vs surface with errors.Is against the relevant group.
var (
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrNetwork             = errors.New("network error")
	ErrExchangeMaintenance = errors.New("exchange maintenance")
	ErrSystemOverload      = errors.New("system overload")

	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrOrderRejected         = errors.New("order rejected")
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrAuthenticationFailed  = errors.New("authentication failed")
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("duplicate order")
	ErrInvalidOrderParameter = errors.New("invalid order parameter")
	ErrTimestampOutOfBounds  = errors.New("timestamp out of bounds")
)

// Transient is true for venue errors a caller should retry rather than
// surface immediately.
func Transient(err error) bool {
	switch {
	case errors.Is(err, ErrRateLimitExceeded),
		errors.Is(err, ErrNetwork),
		errors.Is(err, ErrExchangeMaintenance),
		errors.Is(err, ErrSystemOverload):
		return true
	default:
		return false
	}
}

// Data integrity: a candidate sample is missing fields or contains
// absurd values. Discarded at debug level, never retried.
var (
	ErrMissingField = errors.New("required field missing from sample")
	ErrAbsurdValue  = errors.New("sample value outside sane bounds")
	ErrStaleSample  = errors.New("sample older than staleness window")
)

// Risk-blocked: a pre-trade gate rejected the candidate. Surfaced to
// the operator as execution_failed, never retried automatically.
var ErrRiskBlocked = errors.New("risk gate rejected entry")

// Leg-atomicity breach: the second leg of a hedge pair failed after the
// first filled, and rollback either was not attempted or failed too.
// Always escalated to a critical RiskEvent.
var (
	ErrLegAtomicityBreach = errors.New("hedge leg atomicity breach")
	ErrRollbackFailed     = errors.New("rollback order failed")
)

// Storage: persistence layer failures. Retried with backoff; a
// persistent failure degrades the caller to in-memory-only operation
// with a warning rather than crashing the process.
var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrRecordNotFound     = errors.New("record not found")
)

// Configuration: missing or unparseable config. The default value is
// used and a warning logged; never fatal post-bootstrap.
var (
	ErrConfigMissing     = errors.New("configuration value missing")
	ErrConfigUnparseable = errors.New("configuration value unparseable")
)
