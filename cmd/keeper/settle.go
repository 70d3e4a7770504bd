package main

import (
	"context"
	"errors"
	"flag"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/alejandrodnm/lmsrkeeper/config"
	"github.com/alejandrodnm/lmsrkeeper/internal/adapters/notify"
	"github.com/alejandrodnm/lmsrkeeper/internal/application/engine/settlement"
	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

func runSettle(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("settle", flag.ExitOnError)
	marketStr := fs.String("market", "", "market account (base58)")
	winnerStr := fs.String("winner", "", "winning outcome: yes|no")
	stop := fs.Bool("stop", false, "send stop_market first if the market is open")
	settle := fs.Bool("settle", false, "send settle_market(winner) if not yet settled")
	redeem := fs.Bool("redeem", false, "redeem every winning holder and reconcile the vault")
	redeemLosers := fs.Bool("redeem-losers", false, "also redeem holders with only losing shares")
	history := fs.Bool("history", false, "print previous runs for the market and exit")
	keypair := fs.String("keypair", cfg.Ledger.Keypair, "market admin keypair")
	fs.Parse(args)

	market, err := solana.PublicKeyFromBase58(*marketStr)
	if err != nil {
		return fmt.Errorf("-market: %w", err)
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	console := notify.NewConsole(false)

	if *history {
		runs, err := store.GetSettlements(ctx, market)
		if err != nil {
			return err
		}
		for i := range runs {
			console.ReportSettlement(ctx, &runs[i])
		}
		if len(runs) == 0 {
			fmt.Println("no settlement runs for", market)
		}
		return nil
	}

	winner, err := domain.ParseOutcome(*winnerStr)
	if err != nil {
		return fmt.Errorf("-winner: %w", err)
	}
	chain, err := openLedger(cfg, *keypair)
	if err != nil {
		return err
	}

	report, err := settlement.New(chain, store, console).Run(ctx, settlement.RunRequest{
		Market:       market,
		Winner:       winner,
		Stop:         *stop,
		Settle:       *settle,
		Redeem:       *redeem,
		RedeemLosers: *redeemLosers,
	})
	if err != nil {
		var rerr *domain.ReconciliationError
		if errors.As(err, &rerr) {
			return fmt.Errorf("run %s halted, do not retry: %w", report.RunID, err)
		}
		return err
	}
	return nil
}
