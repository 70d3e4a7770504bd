package domain

import (
	"fmt"
	"strings"
)

// ChainErrorCode is the closed set of program errors the keeper understands.
// Numbers follow the program's error enum (Anchor custom errors start at 6000).
type ChainErrorCode uint32

const (
	ChainUnknown              ChainErrorCode = 0
	ChainMarketClosed         ChainErrorCode = 6000
	ChainInsufficientCoverage ChainErrorCode = 6001
	ChainPriceLimitExceeded   ChainErrorCode = 6002
	ChainSlippageExceeded     ChainErrorCode = 6003
	ChainCostExceedsLimit     ChainErrorCode = 6004
	ChainMinFillNotMet        ChainErrorCode = 6005
	ChainOrderExpired         ChainErrorCode = 6006
	ChainInvalidSignature     ChainErrorCode = 6007
	ChainNonceAlreadyUsed     ChainErrorCode = 6008
	ChainInsufficientShares   ChainErrorCode = 6009
	ChainStaleQuote           ChainErrorCode = 6010
	ChainNoExecutableSize     ChainErrorCode = 6011
	ChainUnauthorized         ChainErrorCode = 6012
)

func (c ChainErrorCode) String() string {
	switch c {
	case ChainUnknown:
		return "Unknown"
	case ChainMarketClosed:
		return "MarketClosed"
	case ChainInsufficientCoverage:
		return "InsufficientCoverage"
	case ChainPriceLimitExceeded:
		return "PriceLimitExceeded"
	case ChainSlippageExceeded:
		return "SlippageExceeded"
	case ChainCostExceedsLimit:
		return "CostExceedsLimit"
	case ChainMinFillNotMet:
		return "MinFillNotMet"
	case ChainOrderExpired:
		return "OrderExpired"
	case ChainInvalidSignature:
		return "InvalidSignature"
	case ChainNonceAlreadyUsed:
		return "NonceAlreadyUsed"
	case ChainInsufficientShares:
		return "InsufficientShares"
	case ChainStaleQuote:
		return "StaleQuote"
	case ChainNoExecutableSize:
		return "NoExecutableSize"
	case ChainUnauthorized:
		return "Unauthorized"
	}
	return fmt.Sprintf("ChainError(%d)", uint32(c))
}

// ChainErrorFromNumber maps a program error number onto the enum. Numbers the
// program does not define map to ChainUnknown; the raw number is kept on the
// ChainError.
func ChainErrorFromNumber(n uint32) ChainErrorCode {
	c := ChainErrorCode(n)
	switch c {
	case ChainMarketClosed, ChainInsufficientCoverage, ChainPriceLimitExceeded,
		ChainSlippageExceeded, ChainCostExceedsLimit, ChainMinFillNotMet,
		ChainOrderExpired, ChainInvalidSignature, ChainNonceAlreadyUsed,
		ChainInsufficientShares, ChainStaleQuote, ChainNoExecutableSize,
		ChainUnauthorized:
		return c
	}
	return ChainUnknown
}

// knownMessages maps message fragments to codes for errors that reach the logs
// without an error number (older program builds, require! macros).
var knownMessages = []struct {
	fragment string
	code     ChainErrorCode
}{
	{"market is closed", ChainMarketClosed},
	{"insufficient coverage", ChainInsufficientCoverage},
	{"price limit", ChainPriceLimitExceeded},
	{"slippage", ChainSlippageExceeded},
	{"cost exceeds", ChainCostExceedsLimit},
	{"min fill", ChainMinFillNotMet},
	{"order expired", ChainOrderExpired},
	{"invalid signature", ChainInvalidSignature},
	{"nonce already used", ChainNonceAlreadyUsed},
	{"insufficient shares", ChainInsufficientShares},
}

// ChainErrorFromMessage matches a lowercase message against known fragments.
func ChainErrorFromMessage(msg string) (ChainErrorCode, bool) {
	lower := strings.ToLower(msg)
	for _, m := range knownMessages {
		if strings.Contains(lower, m.fragment) {
			return m.code, true
		}
	}
	return ChainUnknown, false
}

// ChainError is a decoded on-chain failure. Logs are preserved for audit.
type ChainError struct {
	Code    ChainErrorCode
	Number  uint32 // raw program error number, 0 if none was found
	Message string
	Logs    []string
}

func (e *ChainError) Error() string {
	if e.Number != 0 {
		return fmt.Sprintf("chain: %s (%d): %s", e.Code, e.Number, e.Message)
	}
	return fmt.Sprintf("chain: %s: %s", e.Code, e.Message)
}

func (e *ChainError) Is(target error) bool {
	t, ok := target.(*ChainError)
	return ok && t.Code == e.Code
}

// Retryable reports whether the same order might succeed on a later tick.
// Guard and coverage failures depend on market state; signature, nonce and
// authority failures never will.
func (e *ChainError) Retryable() bool {
	switch e.Code {
	case ChainInvalidSignature, ChainNonceAlreadyUsed, ChainOrderExpired, ChainUnauthorized:
		return false
	case ChainMarketClosed, ChainInsufficientCoverage, ChainPriceLimitExceeded,
		ChainSlippageExceeded, ChainCostExceedsLimit, ChainMinFillNotMet,
		ChainInsufficientShares, ChainStaleQuote, ChainNoExecutableSize, ChainUnknown:
		return true
	}
	return true
}
