package domain

// guard.go — pre-execution guards and the bounded partial-fill search.
//
// The same checks run on-chain at execution time. Evaluating them here lets the
// keeper and the submitter predict whether a size will pass without sending a
// transaction. The search is capped at MaxSearchIterations to match the
// program's compute budget, so results are deterministic for a given snapshot.

import (
	"fmt"
	"time"
)

const (
	// QuoteValidity is how long a slippage quote stays usable.
	QuoteValidity = 30 * time.Second

	// MaxSearchIterations bounds the partial-fill binary search.
	MaxSearchIterations = 16
)

// MinimumTradeSize is the smallest size the program accepts: 0.1 share for
// buys, 0.05 share for sells.
func MinimumTradeSize(action Action, decimals uint8) int64 {
	scale := Scale(decimals)
	if action == ActionSell {
		return scale / 20
	}
	return scale / 10
}

// TradeRequest is the trade being checked.
type TradeRequest struct {
	Action   Action
	Side     Side
	SharesE6 int64
}

// GuardConfig is attached to one execution attempt and never persisted.
// Zero values disable the corresponding guard.
type GuardConfig struct {
	PriceLimitE6    int64 // ceiling for Buy, floor for Sell
	MaxSlippageBps  int64
	QuotePriceE6    int64
	QuoteTimestamp  time.Time
	MaxTotalCostE6  int64 // Buy only
	AllowPartial    bool
	MinFillSharesE6 int64
}

// SlippageConfigured reports whether a slippage band is in effect.
func (c GuardConfig) SlippageConfigured() bool {
	return c.MaxSlippageBps > 0
}

// GuardName identifies an individual guard in results.
type GuardName string

const (
	GuardPriceLimit GuardName = "price_limit"
	GuardSlippage   GuardName = "slippage"
	GuardCostLimit  GuardName = "cost_limit"
)

// GuardCheck is the outcome of one guard at one size.
type GuardCheck struct {
	Guard  GuardName
	Passed bool
	Bound  int64
	Value  int64
}

// SearchStep records one size tested by the validator.
type SearchStep struct {
	SharesE6       int64
	Passed         bool
	ExecutionPrice int64
	Amount         int64
}

// GuardResult is the aggregate decision.
type GuardResult struct {
	Success         bool
	SharesToExecute int64
	ExecutionPrice  int64
	TotalCost       int64 // spend for Buy, net proceeds for Sell
	IsPartialFill   bool
	Err             *ValidationError
	Checks          []GuardCheck // checks at the full requested size
	Steps           []SearchStep
}

// Rejection returns the rejection as an error, or nil on success.
func (r GuardResult) Rejection() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}

type sizeEval struct {
	passed    bool
	execPrice int64
	amount    int64
	checks    []GuardCheck
	firstFail *ValidationError
}

// evaluateSize runs every configured guard for size s.
func evaluateSize(req TradeRequest, cfg GuardConfig, s AmmState, size int64) sizeEval {
	amount := TradeAmount(s, req.Action, req.Side, size)
	execPrice := ExecutionPrice(amount, size, s.Decimals)
	ev := sizeEval{passed: true, execPrice: execPrice, amount: amount}

	record := func(check GuardCheck, err *ValidationError) {
		ev.checks = append(ev.checks, check)
		if !check.Passed {
			ev.passed = false
			if ev.firstFail == nil {
				ev.firstFail = err
			}
		}
	}

	if cfg.PriceLimitE6 > 0 {
		ok := execPrice <= cfg.PriceLimitE6
		if req.Action == ActionSell {
			ok = execPrice >= cfg.PriceLimitE6
		}
		record(GuardCheck{Guard: GuardPriceLimit, Passed: ok, Bound: cfg.PriceLimitE6, Value: execPrice},
			validationErr(ReasonPriceLimitExceeded, "%s price %d vs limit %d", req.Action, execPrice, cfg.PriceLimitE6))
	}

	if cfg.MaxSlippageBps > 0 && cfg.QuotePriceE6 > 0 {
		deviation := BpsOf(cfg.QuotePriceE6, cfg.MaxSlippageBps)
		bound := cfg.QuotePriceE6 + deviation
		ok := execPrice <= bound
		if req.Action == ActionSell {
			bound = max(0, cfg.QuotePriceE6-deviation)
			ok = execPrice >= bound
		}
		record(GuardCheck{Guard: GuardSlippage, Passed: ok, Bound: bound, Value: execPrice},
			validationErr(ReasonSlippageExceeded, "%s price %d outside band %d (quote %d, %d bps)",
				req.Action, execPrice, bound, cfg.QuotePriceE6, cfg.MaxSlippageBps))
	}

	if req.Action == ActionBuy && cfg.MaxTotalCostE6 > 0 {
		ok := amount <= cfg.MaxTotalCostE6
		record(GuardCheck{Guard: GuardCostLimit, Passed: ok, Bound: cfg.MaxTotalCostE6, Value: amount},
			validationErr(ReasonCostExceedsLimit, "cost %d > max %d", amount, cfg.MaxTotalCostE6))
	}

	return ev
}

// ValidateTrade decides whether req can execute against the snapshot and, when
// partial fills are allowed, finds the largest size that passes every guard.
func ValidateTrade(req TradeRequest, cfg GuardConfig, s AmmState, now time.Time) GuardResult {
	if cfg.SlippageConfigured() && now.Sub(cfg.QuoteTimestamp) > QuoteValidity {
		return GuardResult{Err: validationErr(ReasonStaleQuote, "quote age %s > %s",
			now.Sub(cfg.QuoteTimestamp).Truncate(time.Millisecond), QuoteValidity)}
	}
	if req.SharesE6 <= 0 {
		return GuardResult{Err: validationErr(ReasonNoExecutableSize, "requested size %d", req.SharesE6)}
	}

	full := evaluateSize(req, cfg, s, req.SharesE6)
	result := GuardResult{
		Checks: full.checks,
		Steps:  []SearchStep{{SharesE6: req.SharesE6, Passed: full.passed, ExecutionPrice: full.execPrice, Amount: full.amount}},
	}
	if full.passed {
		result.Success = true
		result.SharesToExecute = req.SharesE6
		result.ExecutionPrice = full.execPrice
		result.TotalCost = full.amount
		return result
	}
	if !cfg.AllowPartial {
		result.Err = full.firstFail
		return result
	}

	floor := MinimumTradeSize(req.Action, s.Decimals)
	lo := max(cfg.MinFillSharesE6, floor)
	hi := req.SharesE6 - 1

	var best sizeEval
	bestSize := int64(0)
	for i := 0; i < MaxSearchIterations && lo <= hi; i++ {
		mid := lo + (hi-lo)/2
		ev := evaluateSize(req, cfg, s, mid)
		result.Steps = append(result.Steps, SearchStep{SharesE6: mid, Passed: ev.passed, ExecutionPrice: ev.execPrice, Amount: ev.amount})
		if ev.passed {
			best, bestSize = ev, mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if bestSize == 0 {
		// nothing at or above the min fill passes; a smaller size passing
		// means the user's floor, not the market, blocks the trade
		if cfg.MinFillSharesE6 > floor && floor < req.SharesE6 {
			ev := evaluateSize(req, cfg, s, floor)
			result.Steps = append(result.Steps, SearchStep{SharesE6: floor, Passed: ev.passed, ExecutionPrice: ev.execPrice, Amount: ev.amount})
			if ev.passed {
				result.Err = validationErr(ReasonMinFillNotMet, "size %d passes but min fill is %d", floor, cfg.MinFillSharesE6)
				return result
			}
		}
		result.Err = validationErr(ReasonNoExecutableSize, "no size in [%d, %d] passes (full size: %v)",
			lo, req.SharesE6, full.firstFail)
		return result
	}

	result.Success = true
	result.SharesToExecute = bestSize
	result.ExecutionPrice = best.execPrice
	result.TotalCost = best.amount
	result.IsPartialFill = bestSize < req.SharesE6
	return result
}

// String is a compact one-line description for logs.
func (r GuardResult) String() string {
	if !r.Success {
		return fmt.Sprintf("rejected: %v", r.Err)
	}
	return fmt.Sprintf("ok shares=%d price=%d cost=%d partial=%t", r.SharesToExecute, r.ExecutionPrice, r.TotalCost, r.IsPartialFill)
}
