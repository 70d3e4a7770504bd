package domain

import (
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const e6 = int64(1_000_000)

func evenMarket() AmmState {
	return AmmState{
		Address:  solana.PublicKey{9},
		Decimals: DefaultDecimals,
		BScaled:  500_000 * e6,
		FeeBps:   100,
		Status:   StatusOpen,
	}
}

func TestImpliedProbability_SumsToOne(t *testing.T) {
	bs := []int64{1, 1_000, 10 * e6, 500_000 * e6}
	qs := []int64{0, 1, 999, 50 * e6, 1_000_000 * e6, 7_000_000_000 * e6}
	for _, b := range bs {
		for _, qy := range qs {
			for _, qn := range qs {
				s := AmmState{BScaled: b, QYes: qy, QNo: qn, Decimals: 6}
				py, ok := ImpliedProbability(s, SideYes)
				require.True(t, ok)
				pn, ok := ImpliedProbability(s, SideNo)
				require.True(t, ok)
				assert.InDelta(t, 1.0, py+pn, 1e-9, "b=%d qy=%d qn=%d", b, qy, qn)
				assert.GreaterOrEqual(t, py, 0.0)
				assert.LessOrEqual(t, py, 1.0)
				assert.GreaterOrEqual(t, pn, 0.0)
				assert.LessOrEqual(t, pn, 1.0)
			}
		}
	}
}

func TestImpliedProbability_EvenMarket(t *testing.T) {
	p, ok := ImpliedProbability(evenMarket(), SideYes)
	require.True(t, ok)
	assert.InDelta(t, 0.5, p, 1e-12)

	unit, ok := UnitPriceE6(evenMarket(), SideNo)
	require.True(t, ok)
	assert.Equal(t, int64(500_000), unit)
}

func TestImpliedProbability_OverflowFallsBackToSoftmax(t *testing.T) {
	// exp(1000) overflows float64
	s := AmmState{BScaled: 1, QYes: 1000, QNo: 0}
	p, ok := ImpliedProbability(s, SideYes)
	require.True(t, ok)
	assert.InDelta(t, 1.0, p, 1e-12)
	assert.False(t, math.IsNaN(p))
}

func TestImpliedProbability_InvalidB(t *testing.T) {
	_, ok := ImpliedProbability(AmmState{BScaled: 0}, SideYes)
	assert.False(t, ok)
	_, ok = ImpliedProbability(AmmState{BScaled: -5}, SideNo)
	assert.False(t, ok)
}

func TestCost_MonotonicInQYes(t *testing.T) {
	for _, b := range []float64{1e3, 1e9, 5e11} {
		prev := Cost(0, 1e8, b)
		for q := 1e6; q < 1e13; q *= 3 {
			c := Cost(q, 1e8, b)
			assert.GreaterOrEqual(t, c, prev, "b=%g q=%g", b, q)
			prev = c
		}
	}
}

func TestCost_NonPositiveB(t *testing.T) {
	assert.True(t, math.IsNaN(Cost(1, 1, 0)))
}

func TestBuyCost_EvenMarket(t *testing.T) {
	// 100 shares from 50/50 cost slightly more than $50
	cost := BuyCost(evenMarket(), SideYes, 100*e6)
	assert.Greater(t, cost, 50*e6)
	assert.InDelta(t, float64(50*e6), float64(cost), 10_000)

	assert.Equal(t, int64(0), BuyCost(evenMarket(), SideYes, 0))
	assert.Equal(t, int64(0), BuyCost(AmmState{}, SideYes, 100))
}

func TestBuyCost_SymmetricSides(t *testing.T) {
	assert.Equal(t, BuyCost(evenMarket(), SideYes, 10*e6), BuyCost(evenMarket(), SideNo, 10*e6))
}

func TestSellQuote_AppliesFeeAndFloors(t *testing.T) {
	s := evenMarket()
	s.QYes = 1_000 * e6
	q := QuoteSell(s, SideYes, 100*e6)
	require.Greater(t, q.Gross, int64(0))
	assert.Equal(t, q.Gross, q.Fee+q.Net)
	assert.InDelta(t, float64(q.Gross)*0.99, float64(q.Net), 1.0)
	assert.Less(t, q.Net, q.Gross)
	assert.Equal(t, q.Net, SellProceeds(s, SideYes, 100*e6))
}

func TestSellProceeds_NoFee(t *testing.T) {
	s := evenMarket()
	s.FeeBps = 0
	s.QNo = 200 * e6
	q := QuoteSell(s, SideNo, 50*e6)
	assert.Equal(t, q.Gross, q.Net)
	assert.Equal(t, int64(0), q.Fee)
}

func TestBuyThenSell_RoundTripLosesOnlyFee(t *testing.T) {
	s := evenMarket()
	s.FeeBps = 0
	cost := BuyCost(s, SideYes, 25*e6)
	after := s.WithTrade(SideYes, 25*e6)
	proceeds := SellProceeds(after, SideYes, 25*e6)
	assert.InDelta(t, float64(cost), float64(proceeds), 2)
}

func TestExecutionPrice(t *testing.T) {
	assert.Equal(t, int64(500_000), ExecutionPrice(50*e6, 100*e6, 6))
	assert.Equal(t, int64(333_333), ExecutionPrice(1*e6, 3*e6, 6))
	assert.Equal(t, int64(0), ExecutionPrice(10, 0, 6))
}

func TestProbabilityTracker_FallsBack(t *testing.T) {
	tr := NewProbabilityTracker()
	s := evenMarket()
	s.QYes = 100_000 * e6

	good := tr.Probability(s, SideYes)
	assert.Greater(t, good, 0.5)

	broken := s
	broken.BScaled = 0
	assert.InDelta(t, good, tr.Probability(broken, SideYes), 1e-12)
	assert.InDelta(t, 1-good, tr.Probability(broken, SideNo), 1e-12)

	unknown := AmmState{Address: solana.PublicKey{42}}
	assert.Equal(t, 0.5, tr.Probability(unknown, SideYes))
}

func TestProbabilityTracker_UnitPriceNeedsAGoodSnapshot(t *testing.T) {
	tr := NewProbabilityTracker()
	s := evenMarket()
	broken := s
	broken.BScaled = 0

	_, ok := tr.UnitPriceE6(broken, SideYes)
	assert.False(t, ok, "never priced: no fallback")

	yes, ok := tr.UnitPriceE6(s, SideYes)
	require.True(t, ok)
	assert.Equal(t, int64(500_000), yes)

	no, ok := tr.UnitPriceE6(broken, SideNo)
	require.True(t, ok, "last good price survives a bad snapshot")
	assert.Equal(t, int64(500_000), no)
}

func TestAmmState_Validate(t *testing.T) {
	assert.NoError(t, evenMarket().Validate())

	for name, mutate := range map[string]func(*AmmState){
		"zero b":             func(s *AmmState) { s.BScaled = 0 },
		"negative b":         func(s *AmmState) { s.BScaled = -1 },
		"negative inventory": func(s *AmmState) { s.QNo = -1 },
		"fee out of range":   func(s *AmmState) { s.FeeBps = BpsDenominator + 1 },
		"settled no winner":  func(s *AmmState) { s.Status = StatusSettled },
	} {
		s := evenMarket()
		mutate(&s)
		assert.Error(t, s.Validate(), name)
	}
}
