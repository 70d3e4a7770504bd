package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

const adminComputeUnits = 200_000

// StopMarket sends stop_market signed by the admin key.
func (c *Client) StopMarket(ctx context.Context, market solana.PublicKey) (string, error) {
	sig, err := c.submit(ctx, []solana.Instruction{
		SetComputeUnitLimit(adminComputeUnits),
		StopMarket(c.cfg.ProgramID, market, c.pub),
	})
	if err != nil {
		return sigString(sig), fmt.Errorf("ledger.StopMarket: %w", err)
	}
	slog.Info("ledger: market stopped", "market", market, "tx", sig)
	return sig.String(), nil
}

// SettleMarket sends settle_market(winner).
func (c *Client) SettleMarket(ctx context.Context, market solana.PublicKey, winner domain.Outcome) (string, error) {
	if winner != domain.OutcomeYes && winner != domain.OutcomeNo {
		return "", fmt.Errorf("ledger.SettleMarket: invalid winner %s", winner)
	}
	sig, err := c.submit(ctx, []solana.Instruction{
		SetComputeUnitLimit(adminComputeUnits),
		SettleMarket(c.cfg.ProgramID, market, c.pub, winner),
	})
	if err != nil {
		return sigString(sig), fmt.Errorf("ledger.SettleMarket: %w", err)
	}
	slog.Info("ledger: market settled", "market", market, "winner", winner, "tx", sig)
	return sig.String(), nil
}

// Redeem sends admin_redeem for one holder.
func (c *Client) Redeem(ctx context.Context, market, owner solana.PublicKey) (string, error) {
	ix, err := AdminRedeem(c.cfg.ProgramID, market, owner, c.pub)
	if err != nil {
		return "", fmt.Errorf("ledger.Redeem: %w", err)
	}
	sig, err := c.submit(ctx, []solana.Instruction{SetComputeUnitLimit(adminComputeUnits), ix})
	if err != nil {
		return sigString(sig), fmt.Errorf("ledger.Redeem: %s: %w", owner, err)
	}
	return sig.String(), nil
}

// ListPositions returns all position accounts of market, filtered server-side
// by discriminator and market key. One undecodable account fails the whole
// listing; settlement must not run on a partial holder set.
func (c *Client) ListPositions(ctx context.Context, market solana.PublicKey) ([]domain.Position, error) {
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("ledger.ListPositions: %w", err)
	}
	res, err := c.rpc.GetProgramAccountsWithOpts(ctx, c.cfg.ProgramID, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(positionDiscriminator[:])}},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: positionMarketOffset, Bytes: solana.Base58(market[:])}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ledger.ListPositions: %w", err)
	}

	positions := make([]domain.Position, 0, len(res))
	for _, ka := range res {
		if ka == nil || ka.Account == nil || ka.Account.Data == nil {
			continue
		}
		p, err := DecodePosition(ka.Pubkey, ka.Account.Data.GetBinary())
		if err != nil {
			return nil, fmt.Errorf("ledger.ListPositions: %s: %w", ka.Pubkey, err)
		}
		if !p.Market.Equals(market) {
			continue
		}
		positions = append(positions, p)
	}
	return positions, nil
}
