package ports

import (
	"context"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

// Reporter presents keeper and settlement results to the operator.
type Reporter interface {
	ReportTick(ctx context.Context, tick *domain.TickResult) error
	ReportSettlement(ctx context.Context, report *domain.SettlementReport) error
}
