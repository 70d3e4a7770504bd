package domain

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// MarketStatus is the lifecycle stage of an AMM market as stored on-chain.
type MarketStatus uint8

const (
	StatusOpen    MarketStatus = 0
	StatusStopped MarketStatus = 1
	StatusSettled MarketStatus = 2
)

func (s MarketStatus) String() string {
	switch s {
	case StatusOpen:
		return "OPEN"
	case StatusStopped:
		return "STOPPED"
	case StatusSettled:
		return "SETTLED"
	default:
		return fmt.Sprintf("STATUS(%d)", uint8(s))
	}
}

// Outcome is the resolved winner of a market. OutcomeNone until settlement.
type Outcome uint8

const (
	OutcomeNone Outcome = 0
	OutcomeYes  Outcome = 1
	OutcomeNo   Outcome = 2
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "NONE"
	case OutcomeYes:
		return "YES"
	case OutcomeNo:
		return "NO"
	default:
		return fmt.Sprintf("OUTCOME(%d)", uint8(o))
	}
}

// ParseOutcome accepts "yes" / "no" in any case.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "yes", "YES", "Yes":
		return OutcomeYes, nil
	case "no", "NO", "No":
		return OutcomeNo, nil
	}
	return OutcomeNone, fmt.Errorf("domain.ParseOutcome: unknown outcome %q", s)
}

// Side returns the share side that pays out for this outcome.
func (o Outcome) Side() (Side, bool) {
	switch o {
	case OutcomeYes:
		return SideYes, true
	case OutcomeNo:
		return SideNo, true
	}
	return SideYes, false
}

// AmmState is a snapshot of the on-chain market account.
// Share and collateral quantities are fixed-point integers scaled by 10^Decimals.
type AmmState struct {
	Address       solana.PublicKey
	Bump          uint8
	Decimals      uint8
	BScaled       int64
	FeeBps        uint16
	QYes          int64
	QNo           int64
	FeesAccrued   int64
	Vault         int64
	Status        MarketStatus
	Winner        Outcome
	WinningTotal  int64 // W
	PricePerShare int64 // pps, <= 10^Decimals once settled
	FeeDest       solana.PublicKey
	VaultBump     uint8
	StartPrice    int64
}

// Validate checks the invariants every decoded snapshot must satisfy.
func (s AmmState) Validate() error {
	if s.QYes < 0 || s.QNo < 0 {
		return fmt.Errorf("domain.AmmState: negative inventory qYes=%d qNo=%d", s.QYes, s.QNo)
	}
	if s.BScaled <= 0 {
		return fmt.Errorf("domain.AmmState: b_scaled %d must be positive", s.BScaled)
	}
	if s.FeeBps > BpsDenominator {
		return fmt.Errorf("domain.AmmState: fee_bps %d out of range", s.FeeBps)
	}
	if s.Status == StatusSettled && s.Winner == OutcomeNone {
		return fmt.Errorf("domain.AmmState: settled market without winner")
	}
	return nil
}

// Scale returns 10^Decimals.
func (s AmmState) Scale() int64 {
	return Scale(s.Decimals)
}

// Inventory returns the outstanding shares on the given side.
func (s AmmState) Inventory(side Side) int64 {
	if side == SideNo {
		return s.QNo
	}
	return s.QYes
}

// WithTrade returns a copy of the state with delta added to the side's inventory.
func (s AmmState) WithTrade(side Side, delta int64) AmmState {
	out := s
	if side == SideNo {
		out.QNo += delta
	} else {
		out.QYes += delta
	}
	return out
}

// IsOpen reports whether the market accepts trades.
func (s AmmState) IsOpen() bool {
	return s.Status == StatusOpen
}
