package orderstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

// toOrderJSON converts a domain order to its wire form.
func toOrderJSON(o domain.LimitOrder) orderJSON {
	return orderJSON{
		Market:        o.Market.String(),
		User:          o.User.String(),
		Action:        o.Action.String(),
		Side:          o.Side.String(),
		SharesE6:      o.SharesE6,
		LimitPriceE6:  o.LimitPriceE6,
		MaxCostE6:     o.MaxCostE6,
		MinProceedsE6: o.MinProceedsE6,
		ExpiryTs:      o.ExpiryTs,
		Nonce:         o.Nonce,
		KeeperFeeBps:  o.KeeperFeeBps,
		MinFillBps:    o.MinFillBps,
	}
}

// fromOrderJSON converts the wire form back to a domain order.
func fromOrderJSON(j orderJSON) (domain.LimitOrder, error) {
	market, err := solana.PublicKeyFromBase58(j.Market)
	if err != nil {
		return domain.LimitOrder{}, fmt.Errorf("market: %w", err)
	}
	user, err := solana.PublicKeyFromBase58(j.User)
	if err != nil {
		return domain.LimitOrder{}, fmt.Errorf("user: %w", err)
	}
	action, err := domain.ParseAction(j.Action)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	side, err := domain.ParseSide(j.Side)
	if err != nil {
		return domain.LimitOrder{}, err
	}
	return domain.LimitOrder{
		Market:        market,
		User:          user,
		Action:        action,
		Side:          side,
		SharesE6:      j.SharesE6,
		LimitPriceE6:  j.LimitPriceE6,
		MaxCostE6:     j.MaxCostE6,
		MinProceedsE6: j.MinProceedsE6,
		ExpiryTs:      j.ExpiryTs,
		Nonce:         j.Nonce,
		KeeperFeeBps:  j.KeeperFeeBps,
		MinFillBps:    j.MinFillBps,
	}, nil
}

// decodeSignature parses a base58 signature. Length is checked by
// LimitOrder.Verify so a bad signature still reaches the journal.
func decodeSignature(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("empty signature")
	}
	return base58.Decode(s)
}

// mapPending converts pending orders, returning the ones that could not be
// decoded separately so the caller can log them.
func mapPending(raw []pendingOrderJSON) ([]domain.PendingOrder, []error) {
	out := make([]domain.PendingOrder, 0, len(raw))
	var errs []error
	for _, r := range raw {
		o, err := fromOrderJSON(r.Order)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", r.OrderID, err))
			continue
		}
		sig, err := decodeSignature(r.Signature)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: signature: %w", r.OrderID, err))
			continue
		}
		out = append(out, domain.PendingOrder{
			ID:          r.OrderID,
			SignedOrder: domain.SignedOrder{Order: o, Signature: sig},
			SubmittedAt: time.Time(r.SubmittedAt),
		})
	}
	return out, errs
}

// flexTime accepts RFC3339 strings, unix seconds or unix milliseconds.
type flexTime time.Time

func (t *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				*t = flexTime(parsed.UTC())
				return nil
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*t = flexTime(unixAuto(n))
			return nil
		}
		return fmt.Errorf("submitted_at: unrecognised time %q", s)
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("submitted_at: %w", err)
	}
	*t = flexTime(unixAuto(n))
	return nil
}

// unixAuto treats values past year 2286 in seconds as milliseconds.
func unixAuto(n int64) time.Time {
	if n > 9_999_999_999 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
