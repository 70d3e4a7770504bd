package orders

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
	"github.com/alejandrodnm/lmsrkeeper/internal/ports"
)

// ErrHashMismatch means the order store hashed a different encoding than the
// one that was signed.
var ErrHashMismatch = errors.New("order store returned a different order hash")

// SubmitOptions tunes the pre-submit guard check.
type SubmitOptions struct {
	// MaxSlippageBps bands the execution price around the current unit price.
	// 0 disables the slippage guard.
	MaxSlippageBps int64

	// AllowResting submits the order even when it cannot execute right now;
	// it then waits in the store until the market moves.
	AllowResting bool
}

// SubmitResult is the store's receipt plus the guard decision taken locally.
type SubmitResult struct {
	OrderID      string
	OrderHash    string
	QuotePriceE6 int64
	Guard        domain.GuardResult
	Resting      bool // guard rejected but submitted because of AllowResting
}

// Submitter signs orders and posts them to the dark pool.
type Submitter struct {
	store   ports.OrderStore
	markets ports.MarketReader
}

// NewSubmitter creates a submitter.
func NewSubmitter(store ports.OrderStore, markets ports.MarketReader) *Submitter {
	return &Submitter{store: store, markets: markets}
}

// Submit validates o against the current market, signs it with key and posts it.
func (s *Submitter) Submit(ctx context.Context, o domain.LimitOrder, key ed25519.PrivateKey, opts SubmitOptions) (SubmitResult, error) {
	now := time.Now()
	if err := o.Validate(now); err != nil {
		return SubmitResult{}, fmt.Errorf("orders.Submit: %w", err)
	}

	state, err := s.markets.FetchAmmState(ctx, o.Market)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("orders.Submit: fetch market: %w", err)
	}
	if !state.IsOpen() {
		return SubmitResult{}, fmt.Errorf("orders.Submit: %w", &domain.MarketStateError{
			Reason: domain.ReasonMarketClosed, Detail: "status " + state.Status.String()})
	}

	cfg := domain.OrderGuardConfig(o, o.LimitPriceE6)
	var result SubmitResult
	if unit, ok := domain.UnitPriceE6(state, o.Side); ok {
		result.QuotePriceE6 = unit
		if opts.MaxSlippageBps > 0 {
			cfg.MaxSlippageBps = opts.MaxSlippageBps
			cfg.QuotePriceE6 = unit
			cfg.QuoteTimestamp = now
		}
	}

	result.Guard = domain.ValidateTrade(domain.TradeRequest{Action: o.Action, Side: o.Side, SharesE6: o.SharesE6}, cfg, state, now)
	if !result.Guard.Success {
		if !opts.AllowResting {
			return result, fmt.Errorf("orders.Submit: %w", result.Guard.Err)
		}
		result.Resting = true
		slog.Warn("orders: not executable now, submitting as resting order",
			"market", o.Market, "reason", result.Guard.Err)
	}

	sig, err := o.Sign(key)
	if err != nil {
		return result, fmt.Errorf("orders.Submit: %w", err)
	}
	rec, err := s.store.Submit(ctx, domain.SignedOrder{Order: o, Signature: sig})
	if err != nil {
		return result, fmt.Errorf("orders.Submit: %w", err)
	}
	result.OrderID = rec.OrderID
	result.OrderHash = rec.OrderHash

	if local := o.HashHex(); rec.OrderHash != local {
		return result, fmt.Errorf("orders.Submit: %w: local %s, store %s", ErrHashMismatch, local, rec.OrderHash)
	}

	slog.Info("orders: submitted",
		"order_id", rec.OrderID,
		"hash", rec.OrderHash,
		"trade", o.Action.String()+" "+o.Side.String(),
		"shares", domain.FormatFixed(o.SharesE6, 6),
		"limit", domain.FormatFixed(o.LimitPriceE6, 6),
		"quote", domain.FormatFixed(result.QuotePriceE6, state.Decimals),
		"guard", result.Guard.String())
	return result, nil
}
