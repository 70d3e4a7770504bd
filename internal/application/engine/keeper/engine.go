package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/lmsrkeeper/internal/application/engine"
	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
	"github.com/alejandrodnm/lmsrkeeper/internal/ports"
)

const (
	DefaultFetchLimit          = 100
	DefaultFetchTimeout        = 10 * time.Second
	DefaultExecuteTimeout      = 90 * time.Second
	DefaultClaimTTL            = 2 * time.Minute
	DefaultSingleComputeUnits  = 400_000
	DefaultPartialComputeUnits = 1_400_000

	maxReasonLen = 300 // RPC errors can carry whole simulation dumps

	circuitBreakerFailures = 5
	circuitBreakerCooldown = 5 * time.Minute
)

// Config holds configuration for the keeper loop.
type Config struct {
	KeeperID            string
	FetchLimit          int
	FetchTimeout        time.Duration
	ExecuteTimeout      time.Duration
	ClaimTTL            time.Duration
	SingleComputeUnits  uint32
	PartialComputeUnits uint32
	Executability       domain.ExecutabilityConfig

	MaxConsecutiveFailures int
	FailureCooldown        time.Duration
	MaxTotalFailures       int // 0 = no hard stop

	StopFile string // checked between ticks; "" disables
}

func (c *Config) setDefaults() {
	if c.FetchLimit <= 0 {
		c.FetchLimit = DefaultFetchLimit
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.ExecuteTimeout <= 0 {
		c.ExecuteTimeout = DefaultExecuteTimeout
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = DefaultClaimTTL
	}
	if c.SingleComputeUnits == 0 {
		c.SingleComputeUnits = DefaultSingleComputeUnits
	}
	if c.PartialComputeUnits == 0 {
		c.PartialComputeUnits = DefaultPartialComputeUnits
	}
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = circuitBreakerFailures
	}
	if c.FailureCooldown <= 0 {
		c.FailureCooldown = circuitBreakerCooldown
	}
}

// Engine executes pending dark-pool orders whose guards pass.
type Engine struct {
	store   ports.OrderStore
	ledger  ports.Ledger
	journal ports.KeeperJournal
	cfg     Config
	breaker *domain.CircuitBreaker
	trades  *domain.TradeAccumulator
	prices  *domain.ProbabilityTracker

	// orders that can never succeed (bad signature, used nonce...); never
	// retried by this process
	rejected map[string]struct{}
}

// New creates a keeper. Without an explicit KeeperID the keeper's public key
// is used, so claims and the saved breaker survive restarts.
func New(store ports.OrderStore, ledger ports.Ledger, journal ports.KeeperJournal, cfg Config) *Engine {
	if cfg.KeeperID == "" {
		cfg.KeeperID = ledger.KeeperPubkey().String()
	}
	cfg.setDefaults()
	return &Engine{
		store:    store,
		ledger:   ledger,
		journal:  journal,
		cfg:      cfg,
		breaker:  domain.NewCircuitBreaker(cfg.MaxConsecutiveFailures, cfg.FailureCooldown, cfg.MaxTotalFailures),
		trades:   domain.NewTradeAccumulator(),
		prices:   domain.NewProbabilityTracker(),
		rejected: make(map[string]struct{}),
	}
}

// RestoreCircuitBreaker loads a previously saved breaker. Thresholds always
// come from the current config.
func (e *Engine) RestoreCircuitBreaker(cb domain.CircuitBreaker) {
	cb.MaxFailures = e.breaker.MaxFailures
	cb.CooldownDuration = e.breaker.CooldownDuration
	cb.MaxTotalFailures = e.breaker.MaxTotalFailures
	e.breaker = &cb
}

// CircuitBreaker returns a copy of the breaker state.
func (e *Engine) CircuitBreaker() domain.CircuitBreaker {
	return *e.breaker
}

// Trades returns the per-user fill totals of this process.
func (e *Engine) Trades() *domain.TradeAccumulator {
	return e.trades
}

// KeeperID identifies this keeper in claims and the journal.
func (e *Engine) KeeperID() string {
	return e.cfg.KeeperID
}

// RunOnce executes one tick: fetch pending orders, check each against its
// market, execute the executable ones. A failing order never aborts the tick.
func (e *Engine) RunOnce(ctx context.Context) (*domain.TickResult, error) {
	start := time.Now()
	tick := &domain.TickResult{StartedAt: start}
	defer func() { tick.Duration = time.Since(start) }()

	// 1. Protection
	if !e.breaker.IsOpen(start) {
		tick.Paused = true
		slog.Warn("keeper: circuit breaker active, skipping tick",
			"reason", e.breaker.TriggeredReason,
			"until", e.breaker.CooldownUntil.Format("15:04:05"),
			"hard_stop", e.breaker.Triggered)
		return tick, nil
	}

	// 2. Discovery
	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	orders, err := e.store.FetchPending(fetchCtx, e.cfg.FetchLimit)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("keeper.RunOnce: fetch pending: %w", err)
	}
	tick.Fetched = len(orders)
	if len(orders) == 0 {
		slog.Debug("keeper: no pending orders")
		return tick, nil
	}

	// 3. Execution, one order at a time
	markets := engine.NewMarketCache(e.ledger)
	for _, po := range orders {
		if _, ok := e.rejected[po.ID]; ok {
			continue
		}
		attempt := e.processOrder(ctx, markets, po)
		tick.Add(attempt)
		if err := e.journal.RecordAttempt(ctx, attempt); err != nil {
			slog.Warn("keeper: journal write failed", "order", po.ID, "err", err)
		}
	}
	tick.Markets = markets.Len()

	if err := e.journal.SaveCircuitBreaker(ctx, e.cfg.KeeperID, *e.breaker); err != nil {
		slog.Warn("keeper: failed to persist circuit breaker", "err", err)
	}
	return tick, nil
}

func (e *Engine) processOrder(ctx context.Context, markets *engine.MarketCache, po domain.PendingOrder) domain.ExecutionAttempt {
	o := po.Order
	now := time.Now()
	attempt := domain.ExecutionAttempt{
		ID:              engine.NewID(),
		OrderID:         po.ID,
		OrderHash:       o.HashHex(),
		Market:          o.Market,
		User:            o.User,
		KeeperID:        e.cfg.KeeperID,
		Action:          o.Action,
		Side:            o.Side,
		RequestedShares: o.SharesE6,
		AttemptedAt:     now.UTC(),
	}

	if err := o.Verify(po.Signature); err != nil {
		e.rejected[po.ID] = struct{}{}
		attempt.Status = domain.AttemptRejected
		attempt.Reason = err.Error()
		slog.Warn("keeper: order rejected, bad signature", "order", po.ID, "user", o.User, "err", err)
		return attempt
	}

	state, err := markets.Get(ctx, o.Market)
	if err != nil {
		attempt.Status = domain.AttemptFailed
		attempt.Reason = err.Error()
		slog.Warn("keeper: market unavailable", "order", po.ID, "market", o.Market, "err", err)
		return attempt
	}

	unit, ok := e.prices.UnitPriceE6(state, o.Side)
	if !ok {
		attempt.Status = domain.AttemptSkipped
		attempt.Reason = domain.ErrMarketUnpriceable.Error()
		slog.Warn("keeper: market has never been priceable, skipping", "order", po.ID, "market", o.Market)
		return attempt
	}

	ex := domain.CheckExecutabilityAt(o, state, e.cfg.Executability, now, unit)
	if !ex.Executable {
		attempt.Status = domain.AttemptSkipped
		attempt.Reason = ex.Err.Error()
		slog.Debug("keeper: order not executable", "order", po.ID, "reason", ex.Err)
		return attempt
	}
	attempt.Path = ex.Path

	claimed, err := e.journal.ClaimOrder(ctx, po.ID, e.cfg.KeeperID, e.cfg.ClaimTTL)
	if err != nil {
		attempt.Status = domain.AttemptFailed
		attempt.Reason = fmt.Sprintf("claim: %v", err)
		slog.Warn("keeper: claim failed", "order", po.ID, "err", err)
		return attempt
	}
	if !claimed {
		attempt.Status = domain.AttemptSkipped
		attempt.Reason = "claimed by another keeper"
		return attempt
	}
	defer func() {
		if err := e.journal.ReleaseClaim(context.WithoutCancel(ctx), po.ID, e.cfg.KeeperID); err != nil {
			slog.Warn("keeper: release claim failed", "order", po.ID, "err", err)
		}
	}()

	units := e.cfg.SingleComputeUnits
	if ex.Path.NeedsPartialBudget() {
		units = e.cfg.PartialComputeUnits
	}
	slog.Info("keeper: executing order",
		"order", po.ID,
		"user", o.User,
		"trade", o.Action.String()+" "+o.Side.String(),
		"shares", domain.FormatFixed(o.SharesE6, 6),
		"limit", domain.FormatFixed(o.LimitPriceE6, 6),
		"path", ex.Path,
		"expected_shares", ex.ExpectedShares,
		"compute_units", units)

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.ExecuteTimeout)
	fill, err := e.ledger.ExecuteOrder(execCtx, po.SignedOrder, state.FeeDest, units)
	cancel()
	attempt.TxSignature = fill.TxSignature
	attempt.Logs = fill.Logs
	if err != nil {
		e.breaker.RecordFailure(time.Now())
		attempt.Status = domain.AttemptFailed
		attempt.Reason = engine.TruncateStr(err.Error(), maxReasonLen)

		var ce *domain.ChainError
		if errors.As(err, &ce) {
			attempt.Logs = ce.Logs
			if !ce.Retryable() {
				e.rejected[po.ID] = struct{}{}
			}
			slog.Error("keeper: execution failed on-chain",
				"order", po.ID, "code", ce.Code, "number", ce.Number,
				"retryable", ce.Retryable(), "tx", fill.TxSignature,
				"logs", strings.Join(ce.Logs, " | "))
		} else {
			slog.Error("keeper: execution failed", "order", po.ID, "tx", fill.TxSignature, "err", err)
		}
		return attempt
	}
	e.breaker.RecordSuccess()

	if !fill.Parsed {
		fill.FilledSharesE6 = o.SharesE6
		fill.ExecutionPriceE6 = o.LimitPriceE6
		if fill.ExecutionPriceE6 == 0 {
			fill.ExecutionPriceE6 = ex.ExpectedPrice
		}
		slog.Warn("keeper: fill markers missing, reporting requested size",
			"order", po.ID, "tx", fill.TxSignature)
	}
	attempt.FilledShares = fill.FilledSharesE6
	attempt.ExecutionPrice = fill.ExecutionPriceE6
	attempt.Status = domain.AttemptExecuted
	if fill.IsPartial(o.SharesE6) {
		attempt.Status = domain.AttemptPartial
	}
	e.trades.Record(o, fill, state.Decimals, now)

	report := domain.FillReport{
		TxSignature:    fill.TxSignature,
		SharesFilled:   fill.FilledSharesE6,
		ExecutionPrice: fill.ExecutionPriceE6,
		KeeperPubkey:   e.ledger.KeeperPubkey(),
	}
	if err := e.store.ReportFill(ctx, po.ID, report); err != nil {
		// the trade landed; the store reconciles from chain if this is lost
		attempt.Reason = engine.TruncateStr(fmt.Sprintf("report fill: %v", err), maxReasonLen)
		slog.Error("keeper: report fill failed", "order", po.ID, "tx", fill.TxSignature, "err", err)
	}

	slog.Info("keeper: order executed",
		"order", po.ID,
		"status", attempt.Status,
		"filled", domain.FormatFixed(fill.FilledSharesE6, 6),
		"price", domain.FormatFixed(fill.ExecutionPriceE6, 6),
		"tx", fill.TxSignature)
	return attempt
}

// Run ticks every interval until ctx is cancelled or the stop file appears.
// Each tick runs detached from ctx so an in-flight order always completes.
func (e *Engine) Run(ctx context.Context, interval time.Duration, reporter ports.Reporter) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("keeper: started", "keeper_id", e.cfg.KeeperID, "interval", interval, "stop_file", e.cfg.StopFile)

	ticks := 1
	e.tick(ctx, reporter, ticks)
	for {
		select {
		case <-ctx.Done():
			slog.Info("keeper: stopped (signal)", "ticks", ticks)
			return nil
		case <-ticker.C:
			if e.stopRequested() {
				slog.Info("keeper: stop file detected, shutting down", "file", e.cfg.StopFile, "ticks", ticks)
				os.Remove(e.cfg.StopFile)
				return nil
			}
			ticks++
			e.tick(ctx, reporter, ticks)
		}
	}
}

func (e *Engine) tick(ctx context.Context, reporter ports.Reporter, n int) {
	tickCtx := context.WithoutCancel(ctx)
	result, err := e.RunOnce(tickCtx)
	if err != nil {
		slog.Error("keeper: tick failed", "tick", n, "err", err)
		return
	}
	slog.Debug("keeper: tick complete",
		"tick", n,
		"fetched", result.Fetched,
		"executed", result.Executed,
		"partial", result.Partial,
		"failed", result.Failed,
		"duration", result.Duration)
	if reporter != nil {
		if err := reporter.ReportTick(tickCtx, result); err != nil {
			slog.Warn("keeper: reporter error", "err", err)
		}
	}
}

func (e *Engine) stopRequested() bool {
	if e.cfg.StopFile == "" {
		return false
	}
	_, err := os.Stat(e.cfg.StopFile)
	return err == nil
}
