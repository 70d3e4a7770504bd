package domain

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// PpsTolerance is the integer rounding slack allowed when re-deriving pps.
const PpsTolerance = 1

// Position is a holder's share balance in one market.
type Position struct {
	Address   solana.PublicKey
	Owner     solana.PublicKey
	Market    solana.PublicKey
	YesShares int64
	NoShares  int64
}

// WinningShares returns the balance on the side that won.
func (p Position) WinningShares(winner Outcome) int64 {
	switch winner {
	case OutcomeYes:
		return p.YesShares
	case OutcomeNo:
		return p.NoShares
	}
	return 0
}

// IsZero reports whether both sides are empty.
func (p Position) IsZero() bool {
	return p.YesShares == 0 && p.NoShares == 0
}

// ExpectedPps is min(10^d, floor(vault * 10^d / W)), or 0 when W is 0.
func ExpectedPps(vault, winningTotal int64, decimals uint8) int64 {
	if winningTotal <= 0 || vault <= 0 {
		return 0
	}
	scale := Scale(decimals)
	pps, err := MulDivFloor(vault, scale, winningTotal)
	if err != nil || pps > scale {
		return scale
	}
	return pps
}

// VerifyPps checks the settled price-per-share against the vault snapshot.
func VerifyPps(s AmmState) error {
	expected := ExpectedPps(s.Vault, s.WinningTotal, s.Decimals)
	diff := s.PricePerShare - expected
	if diff < -PpsTolerance || diff > PpsTolerance {
		return &ReconciliationError{
			Reason:   ReasonPpsMismatch,
			Expected: expected,
			Actual:   s.PricePerShare,
			Detail:   fmt.Sprintf("vault=%d W=%d decimals=%d", s.Vault, s.WinningTotal, s.Decimals),
		}
	}
	return nil
}

// OnChainPayout is floor(raw * pps / 10^d), what admin_redeem will transfer.
func OnChainPayout(raw, pps int64, decimals uint8) int64 {
	if raw <= 0 || pps <= 0 {
		return 0
	}
	return mustMulDivFloor(raw, pps, Scale(decimals))
}

// SettlementRow is one holder's payout line.
type SettlementRow struct {
	User                 solana.PublicKey
	Position             solana.PublicKey
	WinningSharesRaw     int64
	OnChainPayout        int64
	DisplayWinningShares int64
	DisplayPayout        int64
	DisplayPercent       decimal.Decimal
}

// ComputePayouts returns one row per holder with a nonzero winning balance,
// ordered by owner.
func ComputePayouts(positions []Position, winner Outcome, pps int64, decimals uint8) []SettlementRow {
	rows := make([]SettlementRow, 0, len(positions))
	for _, p := range positions {
		raw := p.WinningShares(winner)
		if raw <= 0 {
			continue
		}
		rows = append(rows, SettlementRow{
			User:             p.Owner,
			Position:         p.Address,
			WinningSharesRaw: raw,
			OnChainPayout:    OnChainPayout(raw, pps, decimals),
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return bytes.Compare(rows[i].User[:], rows[j].User[:]) < 0
	})
	return rows
}

// TotalPayout sums the on-chain payouts.
func TotalPayout(rows []SettlementRow) int64 {
	var total int64
	for _, r := range rows {
		total += r.OnChainPayout
	}
	return total
}

// BuildDisplayTable fills the display columns in place: winning shares are
// pro-rated to sum to W exactly, and the rounding drift goes to the largest
// raw holder (lowest pubkey on ties). Display values are never used to redeem.
func BuildDisplayTable(rows []SettlementRow, winningTotal, pps int64, decimals uint8) {
	if len(rows) == 0 {
		return
	}
	var sumRaw int64
	for _, r := range rows {
		sumRaw += r.WinningSharesRaw
	}
	if sumRaw <= 0 {
		return
	}

	var sumDisplay int64
	largest := 0
	for i := range rows {
		rows[i].DisplayWinningShares = mustMulDivFloor(rows[i].WinningSharesRaw, max(winningTotal, 0), sumRaw)
		sumDisplay += rows[i].DisplayWinningShares
		if rows[i].WinningSharesRaw > rows[largest].WinningSharesRaw ||
			(rows[i].WinningSharesRaw == rows[largest].WinningSharesRaw &&
				bytes.Compare(rows[i].User[:], rows[largest].User[:]) < 0) {
			largest = i
		}
	}
	rows[largest].DisplayWinningShares += winningTotal - sumDisplay

	total := decimal.NewFromInt(winningTotal)
	for i := range rows {
		rows[i].DisplayPayout = OnChainPayout(rows[i].DisplayWinningShares, pps, decimals)
		if winningTotal > 0 {
			rows[i].DisplayPercent = decimal.NewFromInt(rows[i].DisplayWinningShares).
				Mul(decimal.NewFromInt(100)).Div(total).Round(4)
		}
	}
}

// VerifyVaultDrop requires vaultBefore - vaultAfter to equal the summed payouts exactly.
func VerifyVaultDrop(vaultBefore, vaultAfter int64, rows []SettlementRow) error {
	expected := TotalPayout(rows)
	actual := vaultBefore - vaultAfter
	if actual != expected {
		return &ReconciliationError{
			Reason:   ReasonVaultDropMismatch,
			Expected: expected,
			Actual:   actual,
			Detail:   fmt.Sprintf("vault %d -> %d over %d holders", vaultBefore, vaultAfter, len(rows)),
		}
	}
	return nil
}

// VerifyPositionsCleared checks the post-redeem positions: every redeemed
// holder must be fully zero and nobody may keep a winning balance.
func VerifyPositionsCleared(after []Position, redeemed []SettlementRow, winner Outcome) error {
	want := make(map[solana.PublicKey]bool, len(redeemed))
	for _, r := range redeemed {
		want[r.User] = true
	}
	for _, p := range after {
		if want[p.Owner] && !p.IsZero() {
			return &ReconciliationError{
				Reason: ReasonNonZeroPositionAfterRedeem,
				Actual: p.YesShares + p.NoShares,
				Detail: fmt.Sprintf("owner %s yes=%d no=%d", p.Owner, p.YesShares, p.NoShares),
			}
		}
		if w := p.WinningShares(winner); w != 0 {
			return &ReconciliationError{
				Reason: ReasonNonZeroPositionAfterRedeem,
				Actual: w,
				Detail: fmt.Sprintf("owner %s keeps %d winning shares", p.Owner, w),
			}
		}
	}
	return nil
}

// SettlementStatus is the outcome of a reconciliation run.
type SettlementStatus string

const (
	SettlementRunning   SettlementStatus = "RUNNING"
	SettlementCompleted SettlementStatus = "COMPLETED"
	SettlementFailed    SettlementStatus = "FAILED"
)

// SettlementReport is the audit record of one reconciliation run.
type SettlementReport struct {
	RunID        string
	Market       solana.PublicKey
	Winner       Outcome
	Decimals     uint8
	VaultBefore  int64
	VaultAfter   int64
	WinningTotal int64
	Pps          int64
	Fees         int64
	Rows         []SettlementRow
	TotalPayout  int64
	RedeemTxs    []string
	Status       SettlementStatus
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// VaultDrop is the collateral that left the vault during redemption.
func (r *SettlementReport) VaultDrop() int64 {
	return r.VaultBefore - r.VaultAfter
}

// Fail marks the report failed with err.
func (r *SettlementReport) Fail(err error) {
	r.Status = SettlementFailed
	r.Error = err.Error()
	r.FinishedAt = time.Now().UTC()
}
