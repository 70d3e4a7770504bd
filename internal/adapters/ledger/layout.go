package ledger

// layout.go — typed decoding of the program's accounts.
//
// Accounts are Anchor accounts: an 8-byte discriminator followed by the fields
// in declaration order, little-endian, no padding. Trailing bytes past the last
// field we read are ignored so the program can grow the account.

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

const discriminatorLen = 8

var (
	ammStateDiscriminator = accountDiscriminator("AmmState")
	positionDiscriminator = accountDiscriminator("Position")

	ErrDiscriminator = errors.New("account discriminator mismatch")
	ErrShortAccount  = errors.New("account data too short")
)

// instructionDiscriminator is sha256("global:<name>")[:8].
func instructionDiscriminator(name string) [discriminatorLen]byte {
	return discriminator("global:" + name)
}

// accountDiscriminator is sha256("account:<Name>")[:8].
func accountDiscriminator(name string) [discriminatorLen]byte {
	return discriminator("account:" + name)
}

func discriminator(preimage string) [discriminatorLen]byte {
	sum := sha256.Sum256([]byte(preimage))
	var d [discriminatorLen]byte
	copy(d[:], sum[:discriminatorLen])
	return d
}

// ammStateAccount mirrors the on-chain AmmState fields we read.
type ammStateAccount struct {
	Bump         uint8
	Decimals     uint8
	BScaled      int64
	FeeBps       uint16
	QYes         int64
	QNo          int64
	Fees         int64
	Vault        int64
	Status       uint8
	Winner       uint8
	WinningTotal int64
	Pps          int64
	FeeDest      solana.PublicKey
	VaultBump    uint8
	StartPrice   int64
}

// ammStateLen is discriminator + the fields above.
const ammStateLen = discriminatorLen + 1 + 1 + 8 + 2 + 8*4 + 1 + 1 + 8 + 8 + 32 + 1 + 8

// positionAccount mirrors the on-chain Position.
type positionAccount struct {
	Owner     solana.PublicKey
	Market    solana.PublicKey
	YesShares int64
	NoShares  int64
}

const (
	positionLen          = discriminatorLen + 32 + 32 + 8 + 8
	positionMarketOffset = discriminatorLen + 32
)

func checkHeader(data []byte, want [discriminatorLen]byte, minLen int) error {
	if len(data) < minLen {
		return fmt.Errorf("%w: %d < %d", ErrShortAccount, len(data), minLen)
	}
	if !bytes.Equal(data[:discriminatorLen], want[:]) {
		return fmt.Errorf("%w: %x", ErrDiscriminator, data[:discriminatorLen])
	}
	return nil
}

// DecodeAmmState parses a market account.
func DecodeAmmState(address solana.PublicKey, data []byte) (domain.AmmState, error) {
	if err := checkHeader(data, ammStateDiscriminator, ammStateLen); err != nil {
		return domain.AmmState{}, fmt.Errorf("ledger.DecodeAmmState: %w", err)
	}
	var acc ammStateAccount
	if err := bin.NewBorshDecoder(data[discriminatorLen:ammStateLen]).Decode(&acc); err != nil {
		return domain.AmmState{}, fmt.Errorf("ledger.DecodeAmmState: %w", err)
	}
	s := domain.AmmState{
		Address:       address,
		Bump:          acc.Bump,
		Decimals:      acc.Decimals,
		BScaled:       acc.BScaled,
		FeeBps:        acc.FeeBps,
		QYes:          acc.QYes,
		QNo:           acc.QNo,
		FeesAccrued:   acc.Fees,
		Vault:         acc.Vault,
		Status:        domain.MarketStatus(acc.Status),
		Winner:        domain.Outcome(acc.Winner),
		WinningTotal:  acc.WinningTotal,
		PricePerShare: acc.Pps,
		FeeDest:       acc.FeeDest,
		VaultBump:     acc.VaultBump,
		StartPrice:    acc.StartPrice,
	}
	if err := s.Validate(); err != nil {
		return domain.AmmState{}, fmt.Errorf("ledger.DecodeAmmState: %w", err)
	}
	return s, nil
}

// DecodePosition parses a position account. Negative balances are clamped to 0.
func DecodePosition(address solana.PublicKey, data []byte) (domain.Position, error) {
	if err := checkHeader(data, positionDiscriminator, positionLen); err != nil {
		return domain.Position{}, fmt.Errorf("ledger.DecodePosition: %w", err)
	}
	var acc positionAccount
	if err := bin.NewBorshDecoder(data[discriminatorLen:positionLen]).Decode(&acc); err != nil {
		return domain.Position{}, fmt.Errorf("ledger.DecodePosition: %w", err)
	}
	return domain.Position{
		Address:   address,
		Owner:     acc.Owner,
		Market:    acc.Market,
		YesShares: max(acc.YesShares, 0),
		NoShares:  max(acc.NoShares, 0),
	}, nil
}
