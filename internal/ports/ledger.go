package ports

import (
	"context"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
	"github.com/gagliardetto/solana-go"
)

// MarketReader reads market accounts from the ledger.
type MarketReader interface {
	// FetchAmmState decodes the market account at its latest confirmed state.
	FetchAmmState(ctx context.Context, market solana.PublicKey) (domain.AmmState, error)
}

// Ledger executes signed orders on-chain on behalf of the keeper.
type Ledger interface {
	MarketReader

	// ExecuteOrder builds, signs, submits and confirms the execution transaction,
	// then reads its logs. A program failure is returned as *domain.ChainError
	// with the raw logs attached. Fill.Parsed is false when the logs carried no
	// fill markers. feeDest comes from the market snapshot the order was
	// checked against.
	ExecuteOrder(ctx context.Context, order domain.SignedOrder, feeDest solana.PublicKey, computeUnits uint32) (domain.Fill, error)

	// KeeperPubkey is the fee payer and signer of execution transactions.
	KeeperPubkey() solana.PublicKey
}

// SettlementLedger runs the admin side of a market's lifecycle.
type SettlementLedger interface {
	MarketReader

	StopMarket(ctx context.Context, market solana.PublicKey) (string, error)
	SettleMarket(ctx context.Context, market solana.PublicKey, winner domain.Outcome) (string, error)

	// Redeem pays out owner's position at the settled price-per-share.
	Redeem(ctx context.Context, market, owner solana.PublicKey) (string, error)

	// ListPositions returns every position account of the market.
	ListPositions(ctx context.Context, market solana.PublicKey) ([]domain.Position, error)
}
