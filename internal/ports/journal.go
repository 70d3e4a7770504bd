package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
	"github.com/gagliardetto/solana-go"
)

// KeeperJournal persists keeper attempts and order claims.
type KeeperJournal interface {
	// ClaimOrder takes an exclusive, expiring claim on orderID for keeperID.
	// It returns false when another keeper holds a live claim.
	ClaimOrder(ctx context.Context, orderID, keeperID string, ttl time.Duration) (bool, error)
	ReleaseClaim(ctx context.Context, orderID, keeperID string) error

	RecordAttempt(ctx context.Context, attempt domain.ExecutionAttempt) error
	RecentAttempts(ctx context.Context, limit int) ([]domain.ExecutionAttempt, error)

	// Circuit breaker persistence
	SaveCircuitBreaker(ctx context.Context, keeperID string, cb domain.CircuitBreaker) error
	LoadCircuitBreaker(ctx context.Context, keeperID string) (domain.CircuitBreaker, bool, error)

	KeeperStats(ctx context.Context) (domain.KeeperStats, error)
}

// SettlementJournal persists settlement reconciliation reports.
type SettlementJournal interface {
	SaveSettlement(ctx context.Context, report *domain.SettlementReport) error
	GetSettlements(ctx context.Context, market solana.PublicKey) ([]domain.SettlementReport, error)
}
