package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/alejandrodnm/lmsrkeeper/config"
	"github.com/alejandrodnm/lmsrkeeper/internal/adapters/ledger"
	"github.com/alejandrodnm/lmsrkeeper/internal/adapters/notify"
)

func runReport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	limit := fs.Int("limit", 20, "recent attempts to show")
	keeperID := fs.String("keeper-id", cfg.Keeper.ID, "keeper whose circuit breaker to show (default: keypair pubkey)")
	fs.Parse(args)

	// same default as `run`: the keeper's public key
	if *keeperID == "" && cfg.Ledger.Keypair != "" {
		if key, err := ledger.LoadKeypair(cfg.Ledger.Keypair); err == nil {
			*keeperID = key.PublicKey().String()
		} else {
			slog.Warn("report: keypair unreadable, circuit breaker not shown", "err", err)
		}
	}

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.KeeperStats(ctx)
	if err != nil {
		return err
	}
	recent, err := store.RecentAttempts(ctx, *limit)
	if err != nil {
		return err
	}
	in := notify.ReportInput{KeeperID: *keeperID, Stats: stats, Recent: recent}
	if *keeperID != "" {
		if cb, ok, err := store.LoadCircuitBreaker(ctx, *keeperID); err == nil && ok {
			in.CircuitBreaker = cb
		}
	}
	notify.NewConsole(true).PrintReport(in)
	return nil
}
