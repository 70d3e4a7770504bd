package domain

import (
	"math/rand"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func holder(id byte, yes, no int64) Position {
	return Position{Owner: solana.PublicKey{id}, Address: solana.PublicKey{0xAA, id}, YesShares: yes, NoShares: no}
}

func TestSettlement_TwoHoldersYesWins(t *testing.T) {
	const d = 6
	w := 1_000_000 * e6
	vault := 800_000 * e6
	s := AmmState{Decimals: d, Vault: vault, WinningTotal: w, PricePerShare: 800_000, Status: StatusSettled, Winner: OutcomeYes}
	require.NoError(t, VerifyPps(s))

	positions := []Position{
		holder(2, 400_000*e6, 5*e6),
		holder(1, 600_000*e6, 0),
		holder(3, 0, 900*e6), // loser
	}
	rows := ComputePayouts(positions, OutcomeYes, s.PricePerShare, d)
	require.Len(t, rows, 2)
	assert.Equal(t, solana.PublicKey{1}, rows[0].User)
	assert.Equal(t, 480_000*e6, rows[0].OnChainPayout)
	assert.Equal(t, 320_000*e6, rows[1].OnChainPayout)
	assert.Equal(t, 800_000*e6, TotalPayout(rows))

	require.NoError(t, VerifyVaultDrop(vault, 0, rows))
	err := VerifyVaultDrop(vault, 1, rows)
	assert.ErrorIs(t, err, ErrVaultDropMismatch)
}

func TestExpectedPps(t *testing.T) {
	assert.Equal(t, int64(0), ExpectedPps(100, 0, 6))
	assert.Equal(t, int64(1_000_000), ExpectedPps(2_000*e6, 1_000*e6, 6), "capped at 1.0")
	assert.Equal(t, int64(333_333), ExpectedPps(1*e6, 3*e6, 6))
}

func TestVerifyPps_Tolerance(t *testing.T) {
	s := AmmState{Decimals: 6, Vault: 1 * e6, WinningTotal: 3 * e6, PricePerShare: 333_334}
	assert.NoError(t, VerifyPps(s))

	s.PricePerShare = 333_335
	err := VerifyPps(s)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPpsMismatch)

	var rerr *ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, int64(333_333), rerr.Expected)
	assert.Equal(t, int64(333_335), rerr.Actual)
}

func TestPayouts_ExactAgainstVault(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(20)
		positions := make([]Position, n)
		var w int64
		for i := range positions {
			raw := rng.Int63n(5_000_000 * e6)
			positions[i] = holder(byte(i+1), raw, rng.Int63n(e6))
			w += raw
		}
		vault := rng.Int63n(w + 1)
		pps := ExpectedPps(vault, w, 6)

		rows := ComputePayouts(positions, OutcomeYes, pps, 6)
		total := TotalPayout(rows)
		assert.LessOrEqual(t, total, vault, "round %d", round)
		for _, r := range rows {
			want := decimal.NewFromInt(r.WinningSharesRaw).Mul(decimal.NewFromInt(pps)).
				Div(decimal.NewFromInt(e6)).Floor().IntPart()
			assert.Equal(t, want, r.OnChainPayout)
		}
		// the identity reconciliation relies on
		require.NoError(t, VerifyVaultDrop(vault, vault-total, rows))
	}
}

func TestBuildDisplayTable_DriftToLargestHolder(t *testing.T) {
	rows := ComputePayouts([]Position{
		holder(3, 1, 0),
		holder(1, 1, 0),
		holder(2, 1, 0),
	}, OutcomeYes, 1_000_000, 6)
	BuildDisplayTable(rows, 10, 1_000_000, 6)

	var sum int64
	pct := decimal.Zero
	for _, r := range rows {
		sum += r.DisplayWinningShares
		pct = pct.Add(r.DisplayPercent)
	}
	assert.Equal(t, int64(10), sum)
	// ties on raw balance resolve to the lowest pubkey
	assert.Equal(t, solana.PublicKey{1}, rows[0].User)
	assert.Equal(t, int64(4), rows[0].DisplayWinningShares)
	assert.Equal(t, int64(3), rows[1].DisplayWinningShares)
	assert.True(t, pct.Equal(decimal.NewFromInt(100)), pct.String())

	// display never touches the on-chain amounts
	for _, r := range rows {
		assert.Equal(t, int64(1), r.OnChainPayout)
	}
}

func TestBuildDisplayTable_LargestRawWins(t *testing.T) {
	rows := ComputePayouts([]Position{
		holder(1, 1, 0),
		holder(2, 5, 0),
	}, OutcomeYes, 500_000, 6)
	BuildDisplayTable(rows, 7, 500_000, 6)
	assert.Equal(t, int64(1), rows[0].DisplayWinningShares)
	assert.Equal(t, int64(6), rows[1].DisplayWinningShares)
}

func TestVerifyPositionsCleared(t *testing.T) {
	redeemed := []SettlementRow{{User: solana.PublicKey{1}}}

	ok := []Position{holder(1, 0, 0), holder(2, 0, 30)}
	assert.NoError(t, VerifyPositionsCleared(ok, redeemed, OutcomeYes))

	leftover := []Position{holder(1, 0, 3)}
	assert.ErrorIs(t, VerifyPositionsCleared(leftover, redeemed, OutcomeYes), ErrNonZeroPositionAfterRedeem)

	missed := []Position{holder(1, 0, 0), holder(4, 9, 0)}
	assert.ErrorIs(t, VerifyPositionsCleared(missed, redeemed, OutcomeYes), ErrNonZeroPositionAfterRedeem)
}

func TestPosition_WinningShares(t *testing.T) {
	p := holder(1, 10, 20)
	assert.Equal(t, int64(10), p.WinningShares(OutcomeYes))
	assert.Equal(t, int64(20), p.WinningShares(OutcomeNo))
	assert.Equal(t, int64(0), p.WinningShares(OutcomeNone))
}
