package main

import (
	"context"
	"flag"
	"log/slog"

	"github.com/alejandrodnm/lmsrkeeper/config"
	"github.com/alejandrodnm/lmsrkeeper/internal/adapters/notify"
	"github.com/alejandrodnm/lmsrkeeper/internal/application/engine/keeper"
	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

func runKeeper(ctx context.Context, cfg *config.Config, verbose bool, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	once := fs.Bool("once", false, "run one tick and exit")
	keypair := fs.String("keypair", cfg.Ledger.Keypair, "keeper keypair (overrides config)")
	fs.Parse(args)

	store, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	chain, err := openLedger(cfg, *keypair)
	if err != nil {
		return err
	}

	exec := domain.ExecutabilityConfig{
		SlippageBufferBps:   cfg.SlippageBufferBps(),
		OnchainToleranceBps: cfg.OnchainToleranceBps(),
	}
	eng := keeper.New(openOrderStore(cfg), chain, store, keeper.Config{
		KeeperID:               cfg.Keeper.ID,
		FetchLimit:             cfg.Keeper.FetchLimit,
		FetchTimeout:           cfg.FetchTimeout(),
		ExecuteTimeout:         cfg.ExecuteTimeout(),
		ClaimTTL:               cfg.ClaimTTL(),
		SingleComputeUnits:     cfg.Keeper.SingleComputeUnits,
		PartialComputeUnits:    cfg.Keeper.PartialComputeUnits,
		Executability:          exec,
		MaxConsecutiveFailures: cfg.Keeper.MaxConsecutiveFailures,
		FailureCooldown:        cfg.FailureCooldown(),
		MaxTotalFailures:       cfg.Keeper.MaxTotalFailures,
		StopFile:               cfg.Keeper.StopFile,
	})

	// these must match the deployed program; a drift only shows up as failed txs
	slog.Info("keeper starting",
		"keeper_id", eng.KeeperID(),
		"keeper_pubkey", chain.KeeperPubkey(),
		"program", cfg.Ledger.ProgramID,
		"order_store", cfg.OrderStore.BaseURL,
		"interval", cfg.PollInterval(),
		"slippage_buffer_bps", exec.SlippageBufferBps,
		"onchain_tolerance_bps", exec.OnchainToleranceBps,
		"once", *once)

	if saved, ok, err := store.LoadCircuitBreaker(ctx, eng.KeeperID()); err != nil {
		slog.Warn("keeper: could not load circuit breaker", "err", err)
	} else if ok {
		eng.RestoreCircuitBreaker(saved)
		slog.Info("keeper: circuit breaker state restored",
			"total_failures", saved.TotalFailures,
			"cooldown_until", saved.CooldownUntil,
			"triggered", saved.Triggered)
	}

	console := notify.NewConsole(verbose)
	if *once {
		tick, err := eng.RunOnce(ctx)
		if err != nil {
			return err
		}
		return console.ReportTick(ctx, tick)
	}

	if err := eng.Run(ctx, cfg.PollInterval(), console); err != nil {
		return err
	}

	stats, err := store.KeeperStats(context.WithoutCancel(ctx))
	if err != nil {
		slog.Warn("keeper: stats unavailable", "err", err)
	}
	console.PrintReport(notify.ReportInput{
		KeeperID:       eng.KeeperID(),
		Stats:          stats,
		CircuitBreaker: eng.CircuitBreaker(),
		Users:          eng.Trades().Snapshot(),
	})
	slog.Info("keeper stopped cleanly")
	return nil
}
