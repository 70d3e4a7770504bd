package domain

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

// AttemptStatus is the outcome of one keeper attempt on one order.
type AttemptStatus string

const (
	AttemptExecuted AttemptStatus = "EXECUTED"
	AttemptPartial  AttemptStatus = "PARTIAL"
	AttemptSkipped  AttemptStatus = "SKIPPED"
	AttemptFailed   AttemptStatus = "FAILED"
	AttemptRejected AttemptStatus = "REJECTED"
)

// ExecutionAttempt is the journal record of a keeper attempt.
type ExecutionAttempt struct {
	ID              string // UUID
	OrderID         string
	OrderHash       string
	Market          solana.PublicKey
	User            solana.PublicKey
	KeeperID        string
	Action          Action
	Side            Side
	Status          AttemptStatus
	Path            ExecutionPath
	Reason          string
	RequestedShares int64
	FilledShares    int64
	ExecutionPrice  int64
	TxSignature     string
	Logs            []string
	AttemptedAt     time.Time
}

// Fill is what the keeper learned about an executed order.
// Parsed is false when the log markers could not be found and the values are
// the requested size and limit price.
type Fill struct {
	TxSignature      string
	FilledSharesE6   int64
	ExecutionPriceE6 int64
	Parsed           bool
	Logs             []string
}

// IsPartial reports whether fewer shares than requested were filled.
func (f Fill) IsPartial(requested int64) bool {
	return f.FilledSharesE6 > 0 && f.FilledSharesE6 < requested
}

// Notional is filled shares times price, in collateral units.
func (f Fill) Notional(decimals uint8) int64 {
	if f.FilledSharesE6 <= 0 || f.ExecutionPriceE6 <= 0 {
		return 0
	}
	return mustMulDivFloor(f.FilledSharesE6, f.ExecutionPriceE6, Scale(decimals))
}

// UserTotals are the running buy/sell totals of one user.
type UserTotals struct {
	User          solana.PublicKey
	BuyCount      int
	SellCount     int
	SharesBought  int64
	SharesSold    int64
	CollateralIn  int64 // spent on buys
	CollateralOut int64 // received from sells
	LastFillAt    time.Time
}

// TradeAccumulator keeps per-user fill totals for the lifetime of a keeper.
type TradeAccumulator struct {
	mu     sync.Mutex
	totals map[solana.PublicKey]*UserTotals
}

// NewTradeAccumulator returns an empty accumulator.
func NewTradeAccumulator() *TradeAccumulator {
	return &TradeAccumulator{totals: make(map[solana.PublicKey]*UserTotals)}
}

// Record adds a fill for order o.
func (a *TradeAccumulator) Record(o LimitOrder, f Fill, decimals uint8, at time.Time) {
	if f.FilledSharesE6 <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.totals[o.User]
	if !ok {
		t = &UserTotals{User: o.User}
		a.totals[o.User] = t
	}
	notional := f.Notional(decimals)
	if o.Action == ActionSell {
		t.SellCount++
		t.SharesSold += f.FilledSharesE6
		t.CollateralOut += notional
	} else {
		t.BuyCount++
		t.SharesBought += f.FilledSharesE6
		t.CollateralIn += notional
	}
	t.LastFillAt = at
}

// Totals returns a copy of the user's totals.
func (a *TradeAccumulator) Totals(user solana.PublicKey) (UserTotals, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.totals[user]
	if !ok {
		return UserTotals{User: user}, false
	}
	return *t, true
}

// Snapshot returns all users ordered by pubkey.
func (a *TradeAccumulator) Snapshot() []UserTotals {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]UserTotals, 0, len(a.totals))
	for _, t := range a.totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].User[:], out[j].User[:]) < 0
	})
	return out
}

// CircuitBreaker tracks consecutive failed executions and pauses the keeper.
type CircuitBreaker struct {
	ConsecutiveFailures int
	MaxFailures         int
	CooldownUntil       time.Time
	CooldownDuration    time.Duration
	TotalFailures       int
	MaxTotalFailures    int // 0 = no hard stop
	Triggered           bool
	TriggeredReason     string
}

// NewCircuitBreaker builds a breaker; maxFailures <= 0 disables the cooldown.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration, maxTotal int) *CircuitBreaker {
	return &CircuitBreaker{MaxFailures: maxFailures, CooldownDuration: cooldown, MaxTotalFailures: maxTotal}
}

// IsOpen returns true if execution is allowed at now.
func (cb *CircuitBreaker) IsOpen(now time.Time) bool {
	if cb.Triggered {
		return false
	}
	return !now.Before(cb.CooldownUntil)
}

// RecordFailure records a failed execution and may trip the breaker.
func (cb *CircuitBreaker) RecordFailure(now time.Time) {
	cb.ConsecutiveFailures++
	cb.TotalFailures++
	if cb.MaxFailures > 0 && cb.ConsecutiveFailures >= cb.MaxFailures {
		cb.CooldownUntil = now.Add(cb.CooldownDuration)
		cb.ConsecutiveFailures = 0
		cb.TriggeredReason = "consecutive failures"
	}
	if cb.MaxTotalFailures > 0 && cb.TotalFailures >= cb.MaxTotalFailures {
		cb.Triggered = true
		cb.TriggeredReason = "max total failures exceeded"
	}
}

// RecordSuccess resets the consecutive failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.ConsecutiveFailures = 0
}

// SubmitReceipt is the order store's acknowledgement of a submitted order.
type SubmitReceipt struct {
	OrderID   string
	OrderHash string
}

// FillReport is sent back to the order store after an execution.
type FillReport struct {
	TxSignature    string
	SharesFilled   int64
	ExecutionPrice int64
	KeeperPubkey   solana.PublicKey
}

// TickResult summarises one keeper tick.
type TickResult struct {
	StartedAt time.Time
	Duration  time.Duration
	Fetched   int
	Markets   int
	Executed  int
	Partial   int
	Skipped   int
	Failed    int
	Rejected  int
	Attempts  []ExecutionAttempt
	Paused    bool // circuit breaker open, nothing attempted
}

// Add counts an attempt into the summary.
func (r *TickResult) Add(a ExecutionAttempt) {
	r.Attempts = append(r.Attempts, a)
	switch a.Status {
	case AttemptExecuted:
		r.Executed++
	case AttemptPartial:
		r.Partial++
	case AttemptSkipped:
		r.Skipped++
	case AttemptFailed:
		r.Failed++
	case AttemptRejected:
		r.Rejected++
	}
}

// KeeperStats aggregates the journal.
type KeeperStats struct {
	TotalAttempts int
	Executed      int
	Partial       int
	Skipped       int
	Failed        int
	Rejected      int
	SharesFilled  int64
	ActiveClaims  int
	Settlements   int
	LastAttemptAt *time.Time
}
