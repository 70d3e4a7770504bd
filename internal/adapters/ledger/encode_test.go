package ledger

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

// encodeAmmState is the inverse of DecodeAmmState; tests build accounts with it.
func encodeAmmState(s domain.AmmState) ([]byte, error) {
	acc := ammStateAccount{
		Bump:         s.Bump,
		Decimals:     s.Decimals,
		BScaled:      s.BScaled,
		FeeBps:       s.FeeBps,
		QYes:         s.QYes,
		QNo:          s.QNo,
		Fees:         s.FeesAccrued,
		Vault:        s.Vault,
		Status:       uint8(s.Status),
		Winner:       uint8(s.Winner),
		WinningTotal: s.WinningTotal,
		Pps:          s.PricePerShare,
		FeeDest:      s.FeeDest,
		VaultBump:    s.VaultBump,
		StartPrice:   s.StartPrice,
	}
	return encodeAccount(ammStateDiscriminator, &acc)
}

func encodePosition(p domain.Position) ([]byte, error) {
	acc := positionAccount{Owner: p.Owner, Market: p.Market, YesShares: p.YesShares, NoShares: p.NoShares}
	return encodeAccount(positionDiscriminator, &acc)
}

func encodeAccount(disc [discriminatorLen]byte, v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	return buf.Bytes(), nil
}
