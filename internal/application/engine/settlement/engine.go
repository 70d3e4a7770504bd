package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alejandrodnm/lmsrkeeper/internal/application/engine"
	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
	"github.com/alejandrodnm/lmsrkeeper/internal/ports"
)

// RunRequest selects which steps of a settlement run execute.
type RunRequest struct {
	Market solana.PublicKey
	Winner domain.Outcome

	Stop   bool // send stop_market if the market is still open
	Settle bool // send settle_market(Winner) if not yet settled
	Redeem bool // redeem holders and reconcile; false = dry run of the payout table

	// RedeemLosers also redeems holders that only carry losing shares, so
	// their position accounts end up empty. They are paid nothing.
	RedeemLosers bool
}

// Engine reconciles a settled market against its vault.
type Engine struct {
	ledger   ports.SettlementLedger
	journal  ports.SettlementJournal
	reporter ports.Reporter
}

// New creates a settlement engine. journal and reporter may be nil.
func New(ledger ports.SettlementLedger, journal ports.SettlementJournal, reporter ports.Reporter) *Engine {
	return &Engine{ledger: ledger, journal: journal, reporter: reporter}
}

// Run executes one settlement run. The report is always returned, with status
// FAILED when err is non-nil. A *domain.ReconciliationError means the on-chain
// result disagrees with the computed payouts: stop and investigate, never retry.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*domain.SettlementReport, error) {
	report := &domain.SettlementReport{
		RunID:     engine.NewID(),
		Market:    req.Market,
		Winner:    req.Winner,
		Status:    domain.SettlementRunning,
		StartedAt: time.Now().UTC(),
	}
	if _, ok := req.Winner.Side(); !ok {
		err := fmt.Errorf("settlement.Run: invalid winner %s", req.Winner)
		report.Fail(err)
		return report, err
	}
	e.save(ctx, report)

	err := e.run(ctx, req, report)
	if err != nil {
		report.Fail(err)
		var rerr *domain.ReconciliationError
		if errors.As(err, &rerr) {
			slog.Error("settlement: RECONCILIATION FAILED, manual review required",
				"market", req.Market, "run", report.RunID, "reason", rerr.Reason,
				"expected", rerr.Expected, "actual", rerr.Actual, "detail", rerr.Detail)
		} else {
			slog.Error("settlement: run failed", "market", req.Market, "run", report.RunID, "err", err)
		}
	} else {
		report.Status = domain.SettlementCompleted
		report.FinishedAt = time.Now().UTC()
		slog.Info("settlement: run completed",
			"market", req.Market,
			"winner", req.Winner,
			"holders", len(report.Rows),
			"total_payout", domain.FormatFixed(report.TotalPayout, report.Decimals),
			"vault_drop", domain.FormatFixed(report.VaultDrop(), report.Decimals))
	}

	e.save(ctx, report)
	if e.reporter != nil {
		if rerr := e.reporter.ReportSettlement(ctx, report); rerr != nil {
			slog.Warn("settlement: reporter error", "err", rerr)
		}
	}
	return report, err
}

func (e *Engine) run(ctx context.Context, req RunRequest, report *domain.SettlementReport) error {
	// 0. Lifecycle
	state, err := e.ledger.FetchAmmState(ctx, req.Market)
	if err != nil {
		return fmt.Errorf("settlement.Run: fetch market: %w", err)
	}
	if req.Stop && state.Status == domain.StatusOpen {
		if _, err := e.ledger.StopMarket(ctx, req.Market); err != nil {
			return fmt.Errorf("settlement.Run: stop: %w", err)
		}
		state.Status = domain.StatusStopped
	}
	if req.Settle && state.Status != domain.StatusSettled {
		if state.Status != domain.StatusStopped {
			return fmt.Errorf("settlement.Run: cannot settle market in status %s", state.Status)
		}
		if _, err := e.ledger.SettleMarket(ctx, req.Market, req.Winner); err != nil {
			return fmt.Errorf("settlement.Run: settle: %w", err)
		}
	}

	// 1. Snapshot + pps
	state, err = e.ledger.FetchAmmState(ctx, req.Market)
	if err != nil {
		return fmt.Errorf("settlement.Run: fetch settled market: %w", err)
	}
	if state.Status != domain.StatusSettled {
		return fmt.Errorf("settlement.Run: market status %s, want SETTLED", state.Status)
	}
	if state.Winner != req.Winner {
		return fmt.Errorf("settlement.Run: market settled %s, requested %s", state.Winner, req.Winner)
	}
	report.Decimals = state.Decimals
	report.VaultBefore = state.Vault
	report.WinningTotal = state.WinningTotal
	report.Pps = state.PricePerShare
	report.Fees = state.FeesAccrued
	slog.Info("settlement: market snapshot",
		"market", req.Market,
		"vault", domain.FormatFixed(state.Vault, state.Decimals),
		"winning_total", domain.FormatFixed(state.WinningTotal, state.Decimals),
		"pps", domain.FormatFixed(state.PricePerShare, state.Decimals),
		"fees", domain.FormatFixed(state.FeesAccrued, state.Decimals))
	if err := domain.VerifyPps(state); err != nil {
		return fmt.Errorf("settlement.Run: %w", err)
	}

	// 2. Payouts
	positions, err := e.ledger.ListPositions(ctx, req.Market)
	if err != nil {
		return fmt.Errorf("settlement.Run: list positions: %w", err)
	}
	report.Rows = domain.ComputePayouts(positions, req.Winner, state.PricePerShare, state.Decimals)
	report.TotalPayout = domain.TotalPayout(report.Rows)

	// 3. Display table
	domain.BuildDisplayTable(report.Rows, state.WinningTotal, state.PricePerShare, state.Decimals)

	if !req.Redeem {
		report.VaultAfter = report.VaultBefore
		slog.Info("settlement: dry run, nothing redeemed", "holders", len(report.Rows))
		return nil
	}

	// 4. Redeem
	redeemed := append([]domain.SettlementRow(nil), report.Rows...)
	for _, r := range report.Rows {
		tx, err := e.ledger.Redeem(ctx, req.Market, r.User)
		if err != nil {
			return fmt.Errorf("settlement.Run: redeem %s: %w", r.User, err)
		}
		report.RedeemTxs = append(report.RedeemTxs, tx)
		slog.Info("settlement: redeemed", "user", r.User,
			"payout", domain.FormatFixed(r.OnChainPayout, state.Decimals), "tx", tx)
	}
	if req.RedeemLosers {
		for _, p := range positions {
			if p.IsZero() || p.WinningShares(req.Winner) > 0 {
				continue
			}
			tx, err := e.ledger.Redeem(ctx, req.Market, p.Owner)
			if err != nil {
				return fmt.Errorf("settlement.Run: redeem loser %s: %w", p.Owner, err)
			}
			report.RedeemTxs = append(report.RedeemTxs, tx)
			redeemed = append(redeemed, domain.SettlementRow{User: p.Owner, Position: p.Address})
		}
	}

	after, err := e.ledger.FetchAmmState(ctx, req.Market)
	if err != nil {
		return fmt.Errorf("settlement.Run: fetch vault after redeem: %w", err)
	}
	report.VaultAfter = after.Vault

	// 5. Vault drop
	if err := domain.VerifyVaultDrop(report.VaultBefore, report.VaultAfter, report.Rows); err != nil {
		return fmt.Errorf("settlement.Run: %w", err)
	}

	// 6. Positions cleared
	remaining, err := e.ledger.ListPositions(ctx, req.Market)
	if err != nil {
		return fmt.Errorf("settlement.Run: re-list positions: %w", err)
	}
	if err := domain.VerifyPositionsCleared(remaining, redeemed, req.Winner); err != nil {
		return fmt.Errorf("settlement.Run: %w", err)
	}
	return nil
}

func (e *Engine) save(ctx context.Context, report *domain.SettlementReport) {
	if e.journal == nil {
		return
	}
	if err := e.journal.SaveSettlement(ctx, report); err != nil {
		slog.Warn("settlement: failed to persist report", "run", report.RunID, "err", err)
	}
}
