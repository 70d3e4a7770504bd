package orderstore

// orders.go — order-store REST endpoints, implements ports.OrderStore.

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/mr-tron/base58"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

// Submit posts a signed order to POST /orders/submit.
func (c *Client) Submit(ctx context.Context, order domain.SignedOrder) (domain.SubmitReceipt, error) {
	body := submitRequest{
		Order:     toOrderJSON(order.Order),
		Signature: base58.Encode(order.Signature),
	}
	var resp submitResponse
	if err := c.post(ctx, c.base+"/orders/submit", body, &resp); err != nil {
		return domain.SubmitReceipt{}, fmt.Errorf("orderstore.Submit: %w", err)
	}
	if resp.OrderID == "" {
		return domain.SubmitReceipt{}, fmt.Errorf("orderstore.Submit: empty order_id in response")
	}
	return domain.SubmitReceipt{OrderID: resp.OrderID, OrderHash: resp.OrderHash}, nil
}

// FetchPending reads GET /orders/pending?limit=N. Orders that cannot be decoded
// are logged and dropped; they never reach the keeper.
func (c *Client) FetchPending(ctx context.Context, limit int) ([]domain.PendingOrder, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	u := c.base + "/orders/pending"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var resp pendingResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("orderstore.FetchPending: %w", err)
	}
	orders, errs := mapPending(resp.Orders)
	for _, err := range errs {
		slog.Warn("orderstore: dropping undecodable order", "err", err)
	}
	return orders, nil
}

// ReportFill posts POST /orders/{id}/fill.
func (c *Client) ReportFill(ctx context.Context, orderID string, report domain.FillReport) error {
	if orderID == "" {
		return fmt.Errorf("orderstore.ReportFill: empty order id")
	}
	body := fillRequest{
		TxSignature:    report.TxSignature,
		SharesFilled:   report.SharesFilled,
		ExecutionPrice: report.ExecutionPrice,
		KeeperPubkey:   report.KeeperPubkey.String(),
	}
	var ack ackResponse
	u := fmt.Sprintf("%s/orders/%s/fill", c.base, url.PathEscape(orderID))
	if err := c.post(ctx, u, body, &ack); err != nil {
		return fmt.Errorf("orderstore.ReportFill: %w", err)
	}
	if ack.OK != nil && !*ack.OK {
		return fmt.Errorf("orderstore.ReportFill: store refused fill for %s: %s", orderID, ack.Message)
	}
	return nil
}
