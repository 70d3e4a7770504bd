package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

func TestParseFill(t *testing.T) {
	logs := []string{
		"Program ComputeBudget111111111111111111111111111111 invoke [1]",
		"Program log: Instruction: ExecuteLimitOrder",
		"Program log: filled_shares=2500000 exec_price=512345",
		"Program Fg6PaFpoGXkYsidMpWTK6W2BeZ7FEfcYkg476zPFsLnS success",
	}
	shares, price, ok := ParseFill(logs)
	assert.True(t, ok)
	assert.Equal(t, int64(2_500_000), shares)
	assert.Equal(t, int64(512_345), price)

	// markers may arrive on separate lines
	shares, price, ok = ParseFill([]string{"Program log: filled_shares=7", "Program log: exec_price=9"})
	assert.True(t, ok)
	assert.Equal(t, int64(7), shares)
	assert.Equal(t, int64(9), price)

	_, _, ok = ParseFill([]string{"Program log: filled_shares=7"})
	assert.False(t, ok, "price missing")
	_, _, ok = ParseFill(nil)
	assert.False(t, ok)
}

func TestParseChainError_AnchorLog(t *testing.T) {
	logs := []string{
		"Program log: AnchorError occurred. Error Code: PriceLimitExceeded. Error Number: 6002. Error Message: Price limit exceeded.",
	}
	ce := ParseChainError(logs, "Transaction simulation failed")
	assert.Equal(t, domain.ChainPriceLimitExceeded, ce.Code)
	assert.Equal(t, uint32(6002), ce.Number)
	assert.Equal(t, "Price limit exceeded", ce.Message)
	assert.Equal(t, logs, ce.Logs)
}

func TestParseChainError_CustomHex(t *testing.T) {
	ce := ParseChainError(nil, "Transaction simulation failed: Error processing Instruction 2: custom program error: 0x1778")
	assert.Equal(t, domain.ChainNonceAlreadyUsed, ce.Code)
	assert.Equal(t, uint32(6008), ce.Number)
}

func TestParseChainError_UnknownNumberKept(t *testing.T) {
	ce := ParseChainError([]string{"Program log: Error Number: 6099. Error Message: brand new."}, "")
	assert.Equal(t, domain.ChainUnknown, ce.Code)
	assert.Equal(t, uint32(6099), ce.Number)
	assert.True(t, ce.Retryable())
}

func TestParseChainError_MessageFallback(t *testing.T) {
	ce := ParseChainError([]string{"Program log: market is closed"}, "simulation failed")
	assert.Equal(t, domain.ChainMarketClosed, ce.Code)
	assert.Zero(t, ce.Number)

	ce = ParseChainError(nil, "")
	assert.Equal(t, domain.ChainUnknown, ce.Code)
	assert.Equal(t, "Unknown", ce.Message)
}

func TestCustomFromStatus(t *testing.T) {
	status := map[string]any{
		"InstructionError": []any{float64(2), map[string]any{"Custom": float64(6005)}},
	}
	n, ok := customFromStatus(status)
	assert.True(t, ok)
	assert.Equal(t, uint32(6005), n)

	_, ok = customFromStatus(map[string]any{"InstructionError": []any{float64(0), "InvalidAccountData"}})
	assert.False(t, ok)

	ce := statusChainError(status, nil)
	assert.Equal(t, domain.ChainMinFillNotMet, ce.Code)
}
