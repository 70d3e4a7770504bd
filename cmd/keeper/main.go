package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gagliardetto/solana-go"

	"github.com/alejandrodnm/lmsrkeeper/config"
	"github.com/alejandrodnm/lmsrkeeper/internal/adapters/ledger"
	"github.com/alejandrodnm/lmsrkeeper/internal/adapters/orderstore"
	"github.com/alejandrodnm/lmsrkeeper/internal/adapters/storage"
)

const usage = `usage: keeper [flags] <command> [command flags]

commands:
  run      poll the order store and execute orders (default)
  settle   stop, settle, redeem and reconcile a market
  submit   sign and submit a limit order
  report   print journal stats and recent attempts
`

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug and print per-order tables")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	cmd, args := "run", flag.Args()
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "run":
		err = runKeeper(ctx, cfg, *verbose, args)
	case "settle":
		err = runSettle(ctx, cfg, args)
	case "submit":
		err = runSubmit(ctx, cfg, args)
	case "report":
		err = runReport(ctx, cfg, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("keeper: command failed", "command", cmd, "err", err)
		cancel()
		os.Exit(1)
	}
}

func openStorage(cfg *config.Config) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage %q: %w", cfg.Storage.DSN, err)
	}
	return store, nil
}

// openLedger builds the RPC adapter signing with keypair (a keygen file or a
// base58 secret).
func openLedger(cfg *config.Config, keypair string) (*ledger.Client, error) {
	if cfg.Ledger.ProgramID == "" {
		return nil, fmt.Errorf("ledger.program_id is required (KEEPER_PROGRAM_ID)")
	}
	program, err := solana.PublicKeyFromBase58(cfg.Ledger.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("invalid program id: %w", err)
	}
	key, err := ledger.LoadKeypair(keypair)
	if err != nil {
		return nil, err
	}
	return ledger.NewClient(ledger.Config{
		RPCURL:         cfg.Ledger.RPCURL,
		ProgramID:      program,
		RatePerSec:     cfg.Ledger.RatePerSec,
		ConfirmTimeout: cfg.ConfirmTimeout(),
		SkipPreflight:  cfg.Ledger.SkipPreflight,
	}, key)
}

func openOrderStore(cfg *config.Config) *orderstore.Client {
	return orderstore.NewClient(cfg.OrderStore.BaseURL, cfg.StoreTimeout())
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
