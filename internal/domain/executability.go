package domain

import (
	"fmt"
	"time"
)

// Default buffers used by the keeper before it spends a transaction. They
// duplicate values compiled into the program, so they are configurable and
// logged at startup.
const (
	DefaultSlippageBufferBps   = 50 // 0.5% stricter than the raw limit
	DefaultOnchainToleranceBps = 20 // 0.2% band the program itself allows
)

// ExecutabilityConfig tunes the keeper's conservative pre-check.
type ExecutabilityConfig struct {
	SlippageBufferBps   int64
	OnchainToleranceBps int64
}

// DefaultExecutabilityConfig returns the standard buffers.
func DefaultExecutabilityConfig() ExecutabilityConfig {
	return ExecutabilityConfig{
		SlippageBufferBps:   DefaultSlippageBufferBps,
		OnchainToleranceBps: DefaultOnchainToleranceBps,
	}
}

// ExecutionPath tells the keeper how to size and budget the transaction.
type ExecutionPath int

const (
	PathNone ExecutionPath = iota
	// PathFull: the whole order passes the conservative check.
	PathFull
	// PathPartial: a local search found a partial size above the order's floor.
	PathPartial
	// PathDeferToChain: the order accepts any fill size, so the program's own
	// binary search decides.
	PathDeferToChain
)

func (p ExecutionPath) String() string {
	switch p {
	case PathFull:
		return "full"
	case PathPartial:
		return "partial"
	case PathDeferToChain:
		return "defer_to_chain"
	default:
		return "none"
	}
}

// ParseExecutionPath is the inverse of String; unknown values map to PathNone.
func ParseExecutionPath(s string) ExecutionPath {
	switch s {
	case "full":
		return PathFull
	case "partial":
		return PathPartial
	case "defer_to_chain":
		return PathDeferToChain
	}
	return PathNone
}

// NeedsPartialBudget reports whether the program will run its partial-fill search.
func (p ExecutionPath) NeedsPartialBudget() bool {
	return p == PathPartial || p == PathDeferToChain
}

// Executability is the keeper's decision for one order against one snapshot.
type Executability struct {
	Executable     bool
	Path           ExecutionPath
	UnitPriceE6    int64
	ExpectedShares int64
	ExpectedPrice  int64
	ExpectedAmount int64
	Err            error // *MarketStateError or *ValidationError when not executable
}

// tolerantLimit widens the order's limit by the on-chain tolerance band.
func tolerantLimit(o LimitOrder, cfg ExecutabilityConfig) int64 {
	tol := BpsOf(o.LimitPriceE6, cfg.OnchainToleranceBps)
	if o.Action == ActionSell {
		return max(0, o.LimitPriceE6-tol)
	}
	return o.LimitPriceE6 + tol
}

// ConservativeLimit is the tolerant limit tightened by the keeper's own buffer.
func ConservativeLimit(o LimitOrder, cfg ExecutabilityConfig) int64 {
	if o.LimitPriceE6 == 0 {
		return 0
	}
	buf := BpsOf(o.LimitPriceE6, cfg.SlippageBufferBps)
	if o.Action == ActionSell {
		return tolerantLimit(o, cfg) + buf
	}
	return max(1, tolerantLimit(o, cfg)-buf)
}

// OrderGuardConfig derives the guard configuration the program applies to o,
// with the price limit replaced by limit.
func OrderGuardConfig(o LimitOrder, limit int64) GuardConfig {
	cfg := GuardConfig{
		PriceLimitE6:    limit,
		AllowPartial:    o.AllowsPartial(),
		MinFillSharesE6: o.MinFillSharesE6(),
	}
	if o.Action == ActionBuy {
		cfg.MaxTotalCostE6 = o.MaxCostE6
	}
	return cfg
}

// CheckExecutability decides whether the keeper should attempt o now.
// Market-state failures come first; then a cheap unit-price check; then the
// full size is priced against the conservative limit.
func CheckExecutability(o LimitOrder, s AmmState, cfg ExecutabilityConfig, now time.Time) Executability {
	unit, _ := UnitPriceE6(s, o.Side)
	return CheckExecutabilityAt(o, s, cfg, now, unit)
}

// CheckExecutabilityAt is CheckExecutability with the marginal price of the
// order's side supplied by the caller, e.g. from a ProbabilityTracker.
func CheckExecutabilityAt(o LimitOrder, s AmmState, cfg ExecutabilityConfig, now time.Time, unitPriceE6 int64) Executability {
	if !s.IsOpen() {
		return Executability{Err: &MarketStateError{Reason: ReasonMarketClosed, Detail: "status " + s.Status.String()}}
	}
	if o.IsExpired(now) {
		return Executability{Err: &MarketStateError{Reason: ReasonMarketExpired,
			Detail: fmt.Sprintf("expiry %d <= now %d", o.ExpiryTs, now.Unix())}}
	}
	if o.Action == ActionSell && s.Inventory(o.Side) < o.SharesE6 {
		return Executability{Err: &MarketStateError{Reason: ReasonInsufficientOutstandingShares,
			Detail: fmt.Sprintf("outstanding %s %d < %d", o.Side, s.Inventory(o.Side), o.SharesE6)}}
	}

	// every amount below would collapse to 0 and pass any buy limit
	if s.BScaled <= 0 {
		return Executability{Err: &MarketStateError{Reason: ReasonMarketUnpriceable,
			Detail: fmt.Sprintf("b_scaled %d", s.BScaled)}}
	}

	ex := Executability{UnitPriceE6: unitPriceE6}
	if o.LimitPriceE6 > 0 {
		limit := tolerantLimit(o, cfg)
		if (o.Action == ActionBuy && unitPriceE6 > limit) || (o.Action == ActionSell && unitPriceE6 < limit) {
			ex.Err = validationErr(ReasonPriceLimitExceeded, "unit price %d vs limit %d", unitPriceE6, limit)
			return ex
		}
	}

	conservative := ConservativeLimit(o, cfg)
	amount := TradeAmount(s, o.Action, o.Side, o.SharesE6)
	price := ExecutionPrice(amount, o.SharesE6, s.Decimals)

	fullErr := checkFullSize(o, conservative, amount, price)
	if fullErr == nil {
		ex.Executable = true
		ex.Path = PathFull
		ex.ExpectedShares = o.SharesE6
		ex.ExpectedPrice = price
		ex.ExpectedAmount = amount
		return ex
	}

	if o.MinFillBps == 0 {
		// Any fill size is acceptable to the user; the program sizes it.
		ex.Executable = true
		ex.Path = PathDeferToChain
		ex.ExpectedShares = o.SharesE6
		res := ValidateTrade(TradeRequest{Action: o.Action, Side: o.Side, SharesE6: o.SharesE6},
			OrderGuardConfig(o, conservative), s, now)
		if res.Success {
			ex.ExpectedShares = res.SharesToExecute
			ex.ExpectedPrice = res.ExecutionPrice
			ex.ExpectedAmount = res.TotalCost
		}
		return ex
	}

	if o.AllowsPartial() {
		res := ValidateTrade(TradeRequest{Action: o.Action, Side: o.Side, SharesE6: o.SharesE6},
			OrderGuardConfig(o, conservative), s, now)
		if res.Success {
			ex.Executable = true
			ex.Path = PathPartial
			ex.ExpectedShares = res.SharesToExecute
			ex.ExpectedPrice = res.ExecutionPrice
			ex.ExpectedAmount = res.TotalCost
			return ex
		}
		ex.Err = res.Err
		return ex
	}

	ex.Err = fullErr
	return ex
}

func checkFullSize(o LimitOrder, limit, amount, price int64) *ValidationError {
	switch o.Action {
	case ActionBuy:
		if limit > 0 && price > limit {
			return validationErr(ReasonPriceLimitExceeded, "avg price %d > conservative limit %d", price, limit)
		}
		if o.MaxCostE6 > 0 && amount > o.MaxCostE6 {
			return validationErr(ReasonCostExceedsLimit, "cost %d > max %d", amount, o.MaxCostE6)
		}
	case ActionSell:
		if limit > 0 && price < limit {
			return validationErr(ReasonPriceLimitExceeded, "avg price %d < conservative floor %d", price, limit)
		}
		if o.MinProceedsE6 > 0 && amount < o.MinProceedsE6 {
			return validationErr(ReasonProceedsBelowMin, "proceeds %d < min %d", amount, o.MinProceedsE6)
		}
	}
	return nil
}
