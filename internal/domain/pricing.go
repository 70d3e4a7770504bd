package domain

// pricing.go — LMSR cost function, mirrored from the on-chain program.
//
// Inputs are fixed-point integers; float64 is only used for exp/ln. Results are
// rounded back to integers the same way the program does: buy cost to the
// nearest unit, sell proceeds floored after the fee.

import (
	"math"
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Cost evaluates C(qY, qN) = b * ln(exp(qY/b) + exp(qN/b)) with log-sum-exp
// stabilisation so large inventories do not overflow exp.
func Cost(qYes, qNo, b float64) float64 {
	if b <= 0 {
		return math.NaN()
	}
	y := qYes / b
	n := qNo / b
	m := math.Max(y, n)
	return b * (m + math.Log(math.Exp(y-m)+math.Exp(n-m)))
}

// stateCost evaluates Cost on the raw scaled inventory of a snapshot.
func stateCost(s AmmState) float64 {
	return Cost(float64(s.QYes), float64(s.QNo), float64(s.BScaled))
}

// BuyCost returns the collateral needed to buy delta shares of side, in fixed-point.
// Non-finite or negative differences collapse to 0.
func BuyCost(s AmmState, side Side, delta int64) int64 {
	if delta <= 0 || s.BScaled <= 0 {
		return 0
	}
	diff := stateCost(s.WithTrade(side, delta)) - stateCost(s)
	if math.IsNaN(diff) || math.IsInf(diff, 0) || diff < 0 {
		return 0
	}
	if diff >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Round(diff))
}

// SellQuote breaks down the proceeds of a sell.
type SellQuote struct {
	Gross int64
	Fee   int64
	Net   int64
}

// QuoteSell computes gross proceeds, the fee and the net paid to the seller.
func QuoteSell(s AmmState, side Side, delta int64) SellQuote {
	if delta <= 0 || s.BScaled <= 0 {
		return SellQuote{}
	}
	gross := stateCost(s) - stateCost(s.WithTrade(side, -delta))
	if math.IsNaN(gross) || math.IsInf(gross, 0) || gross < 0 {
		gross = 0
	}
	if gross >= math.MaxInt64 {
		gross = math.MaxInt64
	}
	net := math.Floor(gross * (1 - float64(s.FeeBps)/BpsDenominator))
	if net < 0 {
		net = 0
	}
	grossInt := int64(math.Floor(gross))
	netInt := int64(net)
	return SellQuote{Gross: grossInt, Fee: grossInt - netInt, Net: netInt}
}

// SellProceeds returns the net collateral paid out for selling delta shares.
func SellProceeds(s AmmState, side Side, delta int64) int64 {
	return QuoteSell(s, side, delta).Net
}

// TradeAmount is the spend (Buy) or net proceeds (Sell) for size shares.
func TradeAmount(s AmmState, action Action, side Side, size int64) int64 {
	if action == ActionSell {
		return SellProceeds(s, side, size)
	}
	return BuyCost(s, side, size)
}

// ExecutionPrice returns floor(amount * 10^d / size), the average fill price.
func ExecutionPrice(amount, size int64, decimals uint8) int64 {
	if size <= 0 || amount <= 0 {
		return 0
	}
	return mustMulDivFloor(amount, Scale(decimals), size)
}

// ImpliedProbability returns P(side) = exp(q_side/b) / (exp(qYes/b) + exp(qNo/b)).
// The raw exponentials are tried first; if they overflow the softmax is taken
// on shifted exponents. ok is false when b is not positive.
func ImpliedProbability(s AmmState, side Side) (float64, bool) {
	if s.BScaled <= 0 {
		return 0, false
	}
	b := float64(s.BScaled)
	y := float64(s.QYes) / b
	n := float64(s.QNo) / b

	ey, en := math.Exp(y), math.Exp(n)
	sum := ey + en
	if !math.IsInf(ey, 0) && !math.IsInf(en, 0) && !math.IsNaN(sum) && sum > 0 && !math.IsInf(sum, 0) {
		if side == SideNo {
			return en / sum, true
		}
		return ey / sum, true
	}

	m := math.Max(y, n)
	ey, en = math.Exp(y-m), math.Exp(n-m)
	sum = ey + en
	if math.IsNaN(sum) || sum <= 0 {
		return 0, false
	}
	if side == SideNo {
		return en / sum, true
	}
	return ey / sum, true
}

// UnitPriceE6 is the marginal price of one share of side, in fixed-point.
func UnitPriceE6(s AmmState, side Side) (int64, bool) {
	p, ok := ImpliedProbability(s, side)
	if !ok {
		return 0, false
	}
	return FromFloat(p, s.Decimals), true
}

// ProbabilityTracker remembers the last known-good YES probability per market,
// used when a snapshot cannot be priced.
type ProbabilityTracker struct {
	mu   sync.Mutex
	last map[solana.PublicKey]float64
}

// NewProbabilityTracker returns an empty tracker.
func NewProbabilityTracker() *ProbabilityTracker {
	return &ProbabilityTracker{last: make(map[solana.PublicKey]float64)}
}

// Probability returns P(side) for the snapshot, or the last good value, or 0.5.
func (t *ProbabilityTracker) Probability(s AmmState, side Side) float64 {
	pYes, ok := t.yes(s)
	if !ok {
		pYes = 0.5
	}
	if side == SideNo {
		return 1 - pYes
	}
	return pYes
}

// UnitPriceE6 prices side from the snapshot, or from the last good probability
// of the market. ok is false when the market has never been priceable; the
// 0.5 default is not a price anyone should trade on.
func (t *ProbabilityTracker) UnitPriceE6(s AmmState, side Side) (int64, bool) {
	pYes, ok := t.yes(s)
	if !ok {
		return 0, false
	}
	if side == SideNo {
		pYes = 1 - pYes
	}
	return FromFloat(pYes, s.Decimals), true
}

// yes returns P(Yes) for the snapshot, recording it, or the last recorded value.
func (t *ProbabilityTracker) yes(s AmmState) (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if pYes, ok := ImpliedProbability(s, SideYes); ok {
		t.last[s.Address] = pYes
		return pYes, true
	}
	pYes, ok := t.last[s.Address]
	return pYes, ok
}
