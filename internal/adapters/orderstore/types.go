package orderstore

// Wire DTOs of the order-store REST contract. Only used inside this package;
// conversion to domain types is in mapping.go.

// orderJSON is the JSON form of a limit order. Keys are base58, enums are
// lowercase words, amounts are fixed-point integers.
type orderJSON struct {
	Market        string `json:"market"`
	User          string `json:"user"`
	Action        string `json:"action"`
	Side          string `json:"side"`
	SharesE6      int64  `json:"shares_e6"`
	LimitPriceE6  int64  `json:"limit_price_e6"`
	MaxCostE6     int64  `json:"max_cost_e6"`
	MinProceedsE6 int64  `json:"min_proceeds_e6"`
	ExpiryTs      int64  `json:"expiry_ts"`
	Nonce         uint64 `json:"nonce"`
	KeeperFeeBps  uint16 `json:"keeper_fee_bps"`
	MinFillBps    uint16 `json:"min_fill_bps"`
}

// submitRequest is the body of POST /orders/submit.
type submitRequest struct {
	Order     orderJSON `json:"order"`
	Signature string    `json:"signature"`
}

// submitResponse is the reply of POST /orders/submit.
type submitResponse struct {
	OrderID   string `json:"order_id"`
	OrderHash string `json:"order_hash"`
}

// pendingResponse is the reply of GET /orders/pending.
type pendingResponse struct {
	Orders []pendingOrderJSON `json:"orders"`
}

type pendingOrderJSON struct {
	OrderID     string    `json:"order_id"`
	Order       orderJSON `json:"order"`
	Signature   string    `json:"signature"`
	SubmittedAt flexTime  `json:"submitted_at"`
}

// fillRequest is the body of POST /orders/{id}/fill.
type fillRequest struct {
	TxSignature    string `json:"tx_signature"`
	SharesFilled   int64  `json:"shares_filled"`
	ExecutionPrice int64  `json:"execution_price"`
	KeeperPubkey   string `json:"keeper_pubkey"`
}

type ackResponse struct {
	OK      *bool  `json:"ok"`
	Message string `json:"message,omitempty"`
}
