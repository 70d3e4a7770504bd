package domain

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Action is the trade direction of a limit order.
type Action uint8

const (
	ActionBuy  Action = 0
	ActionSell Action = 1
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return fmt.Sprintf("action(%d)", uint8(a))
	}
}

// ParseAction parses "buy" / "sell".
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "buy":
		return ActionBuy, nil
	case "sell":
		return ActionSell, nil
	}
	return ActionBuy, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// Side is the share side traded.
type Side uint8

const (
	SideYes Side = 0
	SideNo  Side = 1
)

func (s Side) String() string {
	switch s {
	case SideYes:
		return "yes"
	case SideNo:
		return "no"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// ParseSide parses "yes" / "no".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "yes":
		return SideYes, nil
	case "no":
		return SideNo, nil
	}
	return SideYes, fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

// Canonical order layout. Every field at its fixed width, little-endian:
// market(32) user(32) action(1) side(1) shares(8) limit_price(8) max_cost(8)
// min_proceeds(8) expiry_ts(8) nonce(8) keeper_fee_bps(2) min_fill_bps(2).
const (
	offMarket        = 0
	offUser          = 32
	offAction        = 64
	offSide          = 65
	offShares        = 66
	offLimitPrice    = 74
	offMaxCost       = 82
	offMinProceeds   = 90
	offExpiry        = 98
	offNonce         = 106
	offKeeperFeeBps  = 114
	offMinFillBps    = 116
	OrderEncodedLen  = 118
	SignatureLen     = ed25519.SignatureSize
)

var (
	ErrOrderLength     = errors.New("order encoding has wrong length")
	ErrInvalidAction   = errors.New("invalid order action")
	ErrInvalidSide     = errors.New("invalid order side")
	ErrSignatureLength = errors.New("signature must be 64 bytes")
	ErrBadSignature    = errors.New("signature verification failed")
	ErrSignerMismatch  = errors.New("private key does not belong to order user")
	ErrInvalidOrder    = errors.New("invalid order")
)

// LimitOrder is a signed dark-pool order. Immutable once signed: every field is
// covered by the signature through Encode.
type LimitOrder struct {
	Market        solana.PublicKey
	User          solana.PublicKey
	Action        Action
	Side          Side
	SharesE6      int64
	LimitPriceE6  int64
	MaxCostE6     int64 // Buy only
	MinProceedsE6 int64 // Sell only
	ExpiryTs      int64
	Nonce         uint64
	KeeperFeeBps  uint16
	MinFillBps    uint16
}

// Encode returns the canonical encoding signed by the user.
func (o LimitOrder) Encode() []byte {
	buf := make([]byte, OrderEncodedLen)
	copy(buf[offMarket:offUser], o.Market[:])
	copy(buf[offUser:offAction], o.User[:])
	buf[offAction] = byte(o.Action)
	buf[offSide] = byte(o.Side)
	binary.LittleEndian.PutUint64(buf[offShares:], uint64(o.SharesE6))
	binary.LittleEndian.PutUint64(buf[offLimitPrice:], uint64(o.LimitPriceE6))
	binary.LittleEndian.PutUint64(buf[offMaxCost:], uint64(o.MaxCostE6))
	binary.LittleEndian.PutUint64(buf[offMinProceeds:], uint64(o.MinProceedsE6))
	binary.LittleEndian.PutUint64(buf[offExpiry:], uint64(o.ExpiryTs))
	binary.LittleEndian.PutUint64(buf[offNonce:], o.Nonce)
	binary.LittleEndian.PutUint16(buf[offKeeperFeeBps:], o.KeeperFeeBps)
	binary.LittleEndian.PutUint16(buf[offMinFillBps:], o.MinFillBps)
	return buf
}

// DecodeLimitOrder parses the canonical encoding.
func DecodeLimitOrder(b []byte) (LimitOrder, error) {
	if len(b) != OrderEncodedLen {
		return LimitOrder{}, fmt.Errorf("domain.DecodeLimitOrder: %w: got %d, want %d", ErrOrderLength, len(b), OrderEncodedLen)
	}
	var o LimitOrder
	copy(o.Market[:], b[offMarket:offUser])
	copy(o.User[:], b[offUser:offAction])
	o.Action = Action(b[offAction])
	o.Side = Side(b[offSide])
	if o.Action != ActionBuy && o.Action != ActionSell {
		return LimitOrder{}, fmt.Errorf("domain.DecodeLimitOrder: %w: %d", ErrInvalidAction, b[offAction])
	}
	if o.Side != SideYes && o.Side != SideNo {
		return LimitOrder{}, fmt.Errorf("domain.DecodeLimitOrder: %w: %d", ErrInvalidSide, b[offSide])
	}
	o.SharesE6 = int64(binary.LittleEndian.Uint64(b[offShares:]))
	o.LimitPriceE6 = int64(binary.LittleEndian.Uint64(b[offLimitPrice:]))
	o.MaxCostE6 = int64(binary.LittleEndian.Uint64(b[offMaxCost:]))
	o.MinProceedsE6 = int64(binary.LittleEndian.Uint64(b[offMinProceeds:]))
	o.ExpiryTs = int64(binary.LittleEndian.Uint64(b[offExpiry:]))
	o.Nonce = binary.LittleEndian.Uint64(b[offNonce:])
	o.KeeperFeeBps = binary.LittleEndian.Uint16(b[offKeeperFeeBps:])
	o.MinFillBps = binary.LittleEndian.Uint16(b[offMinFillBps:])
	return o, nil
}

// Sign produces the detached Ed25519 signature over Encode. The key must belong
// to o.User.
func (o LimitOrder) Sign(key ed25519.PrivateKey) ([]byte, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("domain.LimitOrder.Sign: private key must be %d bytes", ed25519.PrivateKeySize)
	}
	pub, _ := key.Public().(ed25519.PublicKey)
	if !solana.PublicKeyFromBytes(pub).Equals(o.User) {
		return nil, fmt.Errorf("domain.LimitOrder.Sign: %w", ErrSignerMismatch)
	}
	return ed25519.Sign(key, o.Encode()), nil
}

// Verify checks sig against o.User. Signatures that are not exactly 64 bytes are
// rejected before verification.
func (o LimitOrder) Verify(sig []byte) error {
	if len(sig) != SignatureLen {
		return fmt.Errorf("domain.LimitOrder.Verify: %w: got %d", ErrSignatureLength, len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(o.User[:]), o.Encode(), sig) {
		return ErrBadSignature
	}
	return nil
}

// Hash is the SHA-256 digest of the canonical encoding, used by the order store
// for deduplication.
func (o LimitOrder) Hash() [32]byte {
	return sha256.Sum256(o.Encode())
}

// HashHex returns Hash as lowercase hex.
func (o LimitOrder) HashHex() string {
	h := o.Hash()
	return hex.EncodeToString(h[:])
}

// Validate checks the fields a keeper or submitter relies on.
func (o LimitOrder) Validate(now time.Time) error {
	switch {
	case o.Action != ActionBuy && o.Action != ActionSell:
		return fmt.Errorf("%w: action %d", ErrInvalidOrder, o.Action)
	case o.Side != SideYes && o.Side != SideNo:
		return fmt.Errorf("%w: side %d", ErrInvalidOrder, o.Side)
	case o.SharesE6 <= 0:
		return fmt.Errorf("%w: shares must be positive", ErrInvalidOrder)
	case o.LimitPriceE6 < 0 || o.MaxCostE6 < 0 || o.MinProceedsE6 < 0:
		return fmt.Errorf("%w: negative price bound", ErrInvalidOrder)
	case o.KeeperFeeBps > BpsDenominator:
		return fmt.Errorf("%w: keeper_fee_bps %d", ErrInvalidOrder, o.KeeperFeeBps)
	case o.MinFillBps > BpsDenominator:
		return fmt.Errorf("%w: min_fill_bps %d", ErrInvalidOrder, o.MinFillBps)
	case o.ExpiryTs <= now.Unix():
		return fmt.Errorf("%w: expired at %d", ErrInvalidOrder, o.ExpiryTs)
	}
	return nil
}

// MinFillSharesE6 converts MinFillBps into a share floor.
func (o LimitOrder) MinFillSharesE6() int64 {
	return BpsOf(o.SharesE6, int64(o.MinFillBps))
}

// AllowsPartial is true unless the order demands an all-or-nothing fill.
func (o LimitOrder) AllowsPartial() bool {
	return o.MinFillBps < BpsDenominator
}

// IsExpired reports whether the order can no longer execute at now.
func (o LimitOrder) IsExpired(now time.Time) bool {
	return o.ExpiryTs <= now.Unix()
}

// SignedOrder is what the user submits to the order store.
type SignedOrder struct {
	Order     LimitOrder
	Signature []byte
}

// PendingOrder is a signed order waiting in the store for a keeper.
type PendingOrder struct {
	ID          string
	SignedOrder
	SubmittedAt time.Time
}
