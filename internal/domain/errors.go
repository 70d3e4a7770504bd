package domain

import "fmt"

// ValidationReason identifies which guard rejected a trade.
type ValidationReason string

const (
	ReasonStaleQuote         ValidationReason = "STALE_QUOTE"
	ReasonPriceLimitExceeded ValidationReason = "PRICE_LIMIT_EXCEEDED"
	ReasonSlippageExceeded   ValidationReason = "SLIPPAGE_EXCEEDED"
	ReasonCostExceedsLimit   ValidationReason = "COST_EXCEEDS_LIMIT"
	ReasonMinFillNotMet      ValidationReason = "MIN_FILL_NOT_MET"
	ReasonNoExecutableSize   ValidationReason = "NO_EXECUTABLE_SIZE"
	ReasonProceedsBelowMin   ValidationReason = "PROCEEDS_BELOW_MIN"
)

// ValidationError is produced locally by the guard validator. Never retried.
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return "validation: " + string(e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Reason, e.Detail)
}

// Is matches sentinels by reason so errors.Is(err, ErrStaleQuote) works on
// errors carrying a detail.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Reason == e.Reason
}

var (
	ErrStaleQuote         = &ValidationError{Reason: ReasonStaleQuote}
	ErrPriceLimitExceeded = &ValidationError{Reason: ReasonPriceLimitExceeded}
	ErrSlippageExceeded   = &ValidationError{Reason: ReasonSlippageExceeded}
	ErrCostExceedsLimit   = &ValidationError{Reason: ReasonCostExceedsLimit}
	ErrMinFillNotMet      = &ValidationError{Reason: ReasonMinFillNotMet}
	ErrNoExecutableSize   = &ValidationError{Reason: ReasonNoExecutableSize}
	ErrProceedsBelowMin   = &ValidationError{Reason: ReasonProceedsBelowMin}
)

func validationErr(reason ValidationReason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// MarketStateReason identifies why an order cannot run against the current market.
type MarketStateReason string

const (
	ReasonMarketClosed                  MarketStateReason = "MARKET_CLOSED"
	ReasonMarketExpired                 MarketStateReason = "MARKET_EXPIRED"
	ReasonInsufficientOutstandingShares MarketStateReason = "INSUFFICIENT_OUTSTANDING_SHARES"
	ReasonMarketUnpriceable             MarketStateReason = "MARKET_UNPRICEABLE"
)

// MarketStateError makes the keeper skip an order for this tick only; market
// state can change, so the order stays pending.
type MarketStateError struct {
	Reason MarketStateReason
	Detail string
}

func (e *MarketStateError) Error() string {
	if e.Detail == "" {
		return "market state: " + string(e.Reason)
	}
	return fmt.Sprintf("market state: %s: %s", e.Reason, e.Detail)
}

func (e *MarketStateError) Is(target error) bool {
	t, ok := target.(*MarketStateError)
	return ok && t.Reason == e.Reason
}

var (
	ErrMarketClosed                  = &MarketStateError{Reason: ReasonMarketClosed}
	ErrMarketExpired                 = &MarketStateError{Reason: ReasonMarketExpired}
	ErrInsufficientOutstandingShares = &MarketStateError{Reason: ReasonInsufficientOutstandingShares}
	ErrMarketUnpriceable             = &MarketStateError{Reason: ReasonMarketUnpriceable}
)

// ReconciliationReason identifies a failed settlement invariant.
type ReconciliationReason string

const (
	ReasonPpsMismatch                ReconciliationReason = "PPS_MISMATCH"
	ReasonVaultDropMismatch          ReconciliationReason = "VAULT_DROP_MISMATCH"
	ReasonNonZeroPositionAfterRedeem ReconciliationReason = "NON_ZERO_POSITION_AFTER_REDEEM"
)

// ReconciliationError halts automated settlement. A retry could double-pay or
// under-pay holders, so callers must stop and surface it.
type ReconciliationError struct {
	Reason   ReconciliationReason
	Expected int64
	Actual   int64
	Detail   string
}

func (e *ReconciliationError) Error() string {
	msg := fmt.Sprintf("reconciliation: %s: expected %d, got %d", e.Reason, e.Expected, e.Actual)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

func (e *ReconciliationError) Is(target error) bool {
	t, ok := target.(*ReconciliationError)
	return ok && t.Reason == e.Reason
}

var (
	ErrPpsMismatch                = &ReconciliationError{Reason: ReasonPpsMismatch}
	ErrVaultDropMismatch          = &ReconciliationError{Reason: ReasonVaultDropMismatch}
	ErrNonZeroPositionAfterRedeem = &ReconciliationError{Reason: ReasonNonZeroPositionAfterRedeem}
)
