package main

import (
	"context"
	"crypto/ed25519"
	"flag"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alejandrodnm/lmsrkeeper/config"
	"github.com/alejandrodnm/lmsrkeeper/internal/adapters/ledger"
	"github.com/alejandrodnm/lmsrkeeper/internal/application/orders"
	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

func runSubmit(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	marketStr := fs.String("market", "", "market account (base58)")
	actionStr := fs.String("action", "buy", "buy|sell")
	sideStr := fs.String("side", "yes", "yes|no")
	shares := fs.String("shares", "", "shares, e.g. 10.5")
	limit := fs.String("limit", "0", "limit price per share, e.g. 0.55 (0 = none)")
	maxCost := fs.String("max-cost", "0", "max total cost for buys (0 = none)")
	minProceeds := fs.String("min-proceeds", "0", "min net proceeds for sells (0 = none)")
	expiry := fs.Duration("expiry", time.Hour, "order lifetime")
	nonce := fs.Uint64("nonce", 0, "order nonce (0 = current unix nanos)")
	keeperFee := fs.Uint("keeper-fee-bps", 0, "keeper fee in bps")
	minFill := fs.Uint("min-fill-bps", domain.BpsDenominator, "minimum fill in bps of shares (10000 = all or nothing)")
	slippage := fs.Int64("slippage-bps", 0, "max slippage vs current price (0 = off)")
	resting := fs.Bool("resting", false, "submit even if the order cannot execute now")
	keypair := fs.String("keypair", "", "user keypair (file or base58)")
	fs.Parse(args)

	o, err := buildOrder(*marketStr, *actionStr, *sideStr, *shares, *limit, *maxCost, *minProceeds)
	if err != nil {
		return err
	}
	o.ExpiryTs = time.Now().Add(*expiry).Unix()
	o.Nonce = *nonce
	if o.Nonce == 0 {
		o.Nonce = uint64(time.Now().UnixNano())
	}
	o.KeeperFeeBps = uint16(*keeperFee)
	o.MinFillBps = uint16(*minFill)

	key, err := ledger.LoadKeypair(*keypair)
	if err != nil {
		return err
	}
	o.User = key.PublicKey()

	// market reads only; the ledger signer is not used to submit
	chain, err := openLedger(cfg, *keypair)
	if err != nil {
		return err
	}

	res, err := orders.NewSubmitter(openOrderStore(cfg), chain).Submit(ctx, o, ed25519.PrivateKey(key), orders.SubmitOptions{
		MaxSlippageBps: *slippage,
		AllowResting:   *resting,
	})
	if err != nil {
		return err
	}
	fmt.Printf("order_id:   %s\norder_hash: %s\nquote:      %s\nguard:      %s\n",
		res.OrderID, res.OrderHash, domain.FormatFixed(res.QuotePriceE6, domain.DefaultDecimals), res.Guard.String())
	if res.Resting {
		fmt.Println("note:       not executable at the current price, resting in the pool")
	}
	return nil
}

func buildOrder(market, action, side, shares, limit, maxCost, minProceeds string) (domain.LimitOrder, error) {
	var o domain.LimitOrder
	var err error
	if o.Market, err = solana.PublicKeyFromBase58(market); err != nil {
		return o, fmt.Errorf("-market: %w", err)
	}
	if o.Action, err = domain.ParseAction(action); err != nil {
		return o, err
	}
	if o.Side, err = domain.ParseSide(side); err != nil {
		return o, err
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  *int64
	}{
		{"-shares", shares, &o.SharesE6},
		{"-limit", limit, &o.LimitPriceE6},
		{"-max-cost", maxCost, &o.MaxCostE6},
		{"-min-proceeds", minProceeds, &o.MinProceedsE6},
	} {
		if *f.dst, err = domain.ParseFixed(f.raw, domain.DefaultDecimals); err != nil {
			return o, fmt.Errorf("%s: %w", f.name, err)
		}
	}
	return o, nil
}
