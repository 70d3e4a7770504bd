package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDivFloor_WideIntermediate(t *testing.T) {
	// 9e18 * 1e6 overflows int64 but the quotient fits
	v, err := MulDivFloor(9_000_000_000_000_000_000/1_000, 1_000_000, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(9_000_000_000_000), v)

	v, err = MulDivFloor(7, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestMulDivFloor_Overflow(t *testing.T) {
	_, err := MulDivFloor(math.MaxInt64, math.MaxInt64, 1)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = MulDivFloor(math.MaxInt64, 2, 1)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulDivFloor_BadOperands(t *testing.T) {
	_, err := MulDivFloor(-1, 2, 3)
	assert.Error(t, err)
	_, err = MulDivFloor(1, 2, 0)
	assert.Error(t, err)
}

func TestBpsOf(t *testing.T) {
	assert.Equal(t, int64(2_500), BpsOf(500_000, 50))
	assert.Equal(t, int64(1_000), BpsOf(500_000, 20))
	assert.Equal(t, int64(0), BpsOf(500_000, 0))
	assert.Equal(t, int64(0), BpsOf(-1, 20))
	assert.Equal(t, int64(999), BpsOf(9_999, 10_000/10))
}

func TestScale(t *testing.T) {
	assert.Equal(t, int64(1), Scale(0))
	assert.Equal(t, int64(1_000_000), Scale(6))
	assert.Equal(t, int64(1_000_000_000_000_000_000), Scale(30))
}

func TestFormatFixed(t *testing.T) {
	assert.Equal(t, "480000.000000", FormatFixed(480_000_000_000, 6))
	assert.Equal(t, "0.050000", FormatFixed(50_000, 6))
	assert.Equal(t, "-1.50", FormatFixed(-150, 2))
	assert.Equal(t, "1.5", FormatFixed(15, 1))
}

func TestFromFloat(t *testing.T) {
	assert.Equal(t, int64(500_000), FromFloat(0.5, 6))
	assert.InDelta(t, 0.5, ToFloat(500_000, 6), 1e-12)
}

func TestParseFixed(t *testing.T) {
	v, err := ParseFixed("0.55", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(550_000), v)

	v, err = ParseFixed("10", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), v)

	_, err = ParseFixed("0.0000001", 6)
	assert.ErrorContains(t, err, "more than 6 decimals")

	_, err = ParseFixed("abc", 6)
	assert.Error(t, err)

	_, err = ParseFixed("99999999999999999999", 6)
	assert.ErrorContains(t, err, "out of range")
}
