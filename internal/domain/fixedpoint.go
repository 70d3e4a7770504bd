package domain

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/shopspring/decimal"
)

// BpsDenominator is 100% expressed in basis points.
const BpsDenominator = 10_000

// DefaultDecimals is the fixed-point precision used by the market (e6).
const DefaultDecimals = 6

// ErrOverflow is returned when a fixed-point operation does not fit in int64.
var ErrOverflow = errors.New("fixed-point overflow")

var pow10 = [...]int64{
	1, 10, 100, 1_000, 10_000, 100_000, 1_000_000, 10_000_000, 100_000_000,
	1_000_000_000, 10_000_000_000, 100_000_000_000, 1_000_000_000_000,
	10_000_000_000_000, 100_000_000_000_000, 1_000_000_000_000_000,
	10_000_000_000_000_000, 100_000_000_000_000_000, 1_000_000_000_000_000_000,
}

// Scale returns 10^decimals. Decimals above 18 are clamped.
func Scale(decimals uint8) int64 {
	if int(decimals) >= len(pow10) {
		return pow10[len(pow10)-1]
	}
	return pow10[decimals]
}

// MulDivFloor computes floor(a*b/c) for non-negative operands using a 128-bit
// intermediate, so a*b may exceed int64 as long as the quotient does not.
func MulDivFloor(a, b, c int64) (int64, error) {
	if a < 0 || b < 0 || c <= 0 {
		return 0, errors.New("MulDivFloor: operands must be non-negative and divisor positive")
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(c) {
		return 0, ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return 0, ErrOverflow
	}
	return int64(q), nil
}

// mustMulDivFloor is MulDivFloor for call sites whose operands are already
// bounded (bps against a share quantity). Overflow saturates at MaxInt64.
func mustMulDivFloor(a, b, c int64) int64 {
	v, err := MulDivFloor(a, b, c)
	if err != nil {
		return math.MaxInt64
	}
	return v
}

// BpsOf returns floor(amount * bps / 10000).
func BpsOf(amount int64, bps int64) int64 {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return mustMulDivFloor(amount, bps, BpsDenominator)
}

// ToFloat converts a fixed-point value to float64. Only for transcendental math
// and logging.
func ToFloat(v int64, decimals uint8) float64 {
	return float64(v) / float64(Scale(decimals))
}

// FromFloat converts a float to fixed-point by rounding to the nearest unit.
func FromFloat(f float64, decimals uint8) int64 {
	return int64(math.Round(f * float64(Scale(decimals))))
}

// FormatFixed renders a fixed-point integer as a decimal string, e.g.
// FormatFixed(480_000_000_000, 6) == "480000.000000".
func FormatFixed(v int64, decimals uint8) string {
	return decimal.New(v, -int32(decimals)).StringFixed(int32(decimals))
}

// ParseFixed parses a decimal string such as "0.55" into fixed-point. Digits
// beyond decimals are rejected rather than rounded.
func ParseFixed(s string, decimals uint8) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("domain.ParseFixed: %w", err)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("domain.ParseFixed: %q has more than %d decimals", s, decimals)
	}
	if scaled.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, fmt.Errorf("domain.ParseFixed: %q out of range", s)
	}
	return scaled.IntPart(), nil
}
