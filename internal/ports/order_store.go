package ports

import (
	"context"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

// OrderStore is the off-chain dark pool holding signed orders until a keeper
// executes them.
type OrderStore interface {
	// Submit posts a signed order and returns the store's id and hash for it.
	Submit(ctx context.Context, order domain.SignedOrder) (domain.SubmitReceipt, error)

	// FetchPending returns up to limit orders waiting for execution.
	FetchPending(ctx context.Context, limit int) ([]domain.PendingOrder, error)

	// ReportFill marks an order executed.
	ReportFill(ctx context.Context, orderID string, report domain.FillReport) error
}
