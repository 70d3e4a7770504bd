package ledger

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

func TestDiscriminators(t *testing.T) {
	assert.Equal(t, [8]byte{0x42, 0x7f, 0xf4, 0xa8, 0x66, 0x0c, 0x5f, 0x02}, ammStateDiscriminator)
	assert.Equal(t, [8]byte{0xaa, 0xbc, 0x8f, 0xe4, 0x7a, 0x40, 0xf7, 0xd0}, positionDiscriminator)
	assert.Equal(t, [8]byte{0x34, 0x21, 0x3c, 0x1e, 0x2f, 0x64, 0x28, 0x16}, instructionDiscriminator(ixExecuteLimitOrder))
	assert.Equal(t, [8]byte{0xc1, 0x99, 0x5f, 0xd8, 0xa6, 0x06, 0x90, 0xd9}, instructionDiscriminator(ixSettleMarket))
}

func sampleState() domain.AmmState {
	return domain.AmmState{
		Address:       solana.PublicKey{0x11},
		Bump:          254,
		Decimals:      6,
		BScaled:       500_000_000_000,
		FeeBps:        150,
		QYes:          1_234_000_000,
		QNo:           9_000_000,
		FeesAccrued:   77,
		Vault:         800_000_000_000,
		Status:        domain.StatusSettled,
		Winner:        domain.OutcomeNo,
		WinningTotal:  1_000_000_000_000,
		PricePerShare: 800_000,
		FeeDest:       solana.PublicKey{0xFE, 0xED},
		VaultBump:     253,
		StartPrice:    -5,
	}
}

func TestAmmState_ByteLayout(t *testing.T) {
	s := sampleState()
	data, err := encodeAmmState(s)
	require.NoError(t, err)
	require.Len(t, data, ammStateLen)
	require.Equal(t, 111, ammStateLen)

	le := binary.LittleEndian
	assert.Equal(t, ammStateDiscriminator[:], data[0:8])
	assert.Equal(t, byte(254), data[8])
	assert.Equal(t, byte(6), data[9])
	assert.Equal(t, uint64(500_000_000_000), le.Uint64(data[10:]))
	assert.Equal(t, uint16(150), le.Uint16(data[18:]))
	assert.Equal(t, uint64(1_234_000_000), le.Uint64(data[20:]))
	assert.Equal(t, uint64(9_000_000), le.Uint64(data[28:]))
	assert.Equal(t, uint64(77), le.Uint64(data[36:]))
	assert.Equal(t, uint64(800_000_000_000), le.Uint64(data[44:]))
	assert.Equal(t, byte(domain.StatusSettled), data[52])
	assert.Equal(t, byte(domain.OutcomeNo), data[53])
	assert.Equal(t, uint64(1_000_000_000_000), le.Uint64(data[54:]))
	assert.Equal(t, uint64(800_000), le.Uint64(data[62:]))
	assert.Equal(t, s.FeeDest[:], data[70:102])
	assert.Equal(t, byte(253), data[102])
	assert.Equal(t, int64(-5), int64(le.Uint64(data[103:])))
}

func TestAmmState_RoundTripIgnoresTrailingBytes(t *testing.T) {
	s := sampleState()
	data, err := encodeAmmState(s)
	require.NoError(t, err)
	data = append(data, make([]byte, 64)...)

	got, err := DecodeAmmState(s.Address, data)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestDecodeAmmState_Errors(t *testing.T) {
	data, err := encodeAmmState(sampleState())
	require.NoError(t, err)

	_, err = DecodeAmmState(solana.PublicKey{}, data[:ammStateLen-1])
	assert.ErrorIs(t, err, ErrShortAccount)

	bad := append([]byte(nil), data...)
	bad[0] ^= 0xFF
	_, err = DecodeAmmState(solana.PublicKey{}, bad)
	assert.ErrorIs(t, err, ErrDiscriminator)

	negative := sampleState()
	negative.QYes = -1
	data, err = encodeAmmState(negative)
	require.NoError(t, err)
	_, err = DecodeAmmState(solana.PublicKey{}, data)
	assert.Error(t, err, "negative inventory is rejected")
}

func TestPosition_LayoutAndClamp(t *testing.T) {
	p := domain.Position{
		Address:   solana.PublicKey{0x01},
		Owner:     solana.PublicKey{0x02},
		Market:    solana.PublicKey{0x03},
		YesShares: 600_000_000_000,
		NoShares:  -3,
	}
	data, err := encodePosition(p)
	require.NoError(t, err)
	require.Len(t, data, positionLen)
	assert.Equal(t, positionDiscriminator[:], data[:8])
	assert.Equal(t, p.Owner[:], data[8:40])
	assert.Equal(t, p.Market[:], data[positionMarketOffset:positionMarketOffset+32])

	got, err := DecodePosition(p.Address, data)
	require.NoError(t, err)
	assert.Equal(t, int64(600_000_000_000), got.YesShares)
	assert.Equal(t, int64(0), got.NoShares, "negative balances clamp to zero")
	assert.Equal(t, p.Owner, got.Owner)
}
