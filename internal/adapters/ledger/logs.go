package ledger

// logs.go — fill markers and program errors from transaction logs.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

var (
	reFilledShares = regexp.MustCompile(`filled_shares=(\d+)`)
	reExecPrice    = regexp.MustCompile(`exec_price=(\d+)`)
	reErrorNumber  = regexp.MustCompile(`Error Number: (\d+)`)
	reErrorMessage = regexp.MustCompile(`Error Message: (.+?)\.?$`)
	reCustomHex    = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)
)

// ParseFill extracts the last filled_shares / exec_price markers. ok is false
// unless both are present.
func ParseFill(logs []string) (shares, price int64, ok bool) {
	var haveShares, havePrice bool
	for _, line := range logs {
		if m := reFilledShares.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				shares, haveShares = v, true
			}
		}
		if m := reExecPrice.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				price, havePrice = v, true
			}
		}
	}
	return shares, price, haveShares && havePrice
}

// ParseChainError decodes a program failure from logs and the RPC error text.
// The error number wins over message fragments; unknown numbers are kept raw.
func ParseChainError(logs []string, rpcMessage string) *domain.ChainError {
	ce := &domain.ChainError{Code: domain.ChainUnknown, Logs: logs, Message: strings.TrimSpace(rpcMessage)}

	for _, line := range logs {
		if m := reErrorNumber.FindStringSubmatch(line); m != nil {
			if n, err := strconv.ParseUint(m[1], 10, 32); err == nil {
				ce.Number = uint32(n)
			}
		}
		if m := reErrorMessage.FindStringSubmatch(line); m != nil {
			ce.Message = m[1]
		}
		if ce.Number == 0 {
			if n, ok := customHex(line); ok {
				ce.Number = n
			}
		}
	}
	if ce.Number == 0 {
		if n, ok := customHex(rpcMessage); ok {
			ce.Number = n
		}
	}

	if ce.Number != 0 {
		ce.Code = domain.ChainErrorFromNumber(ce.Number)
	}
	if ce.Code == domain.ChainUnknown {
		for _, line := range append([]string{rpcMessage}, logs...) {
			if c, ok := domain.ChainErrorFromMessage(line); ok {
				ce.Code = c
				break
			}
		}
	}
	if ce.Message == "" {
		ce.Message = ce.Code.String()
	}
	return ce
}

func customHex(s string) (uint32, bool) {
	m := reCustomHex.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// customFromStatus digs the Custom code out of a transaction status error such
// as {"InstructionError":[2,{"Custom":6002}]}.
func customFromStatus(v any) (uint32, bool) {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			if k == "Custom" {
				switch n := inner.(type) {
				case float64:
					return uint32(n), true
				case int:
					return uint32(n), true
				case uint32:
					return n, true
				}
			}
			if n, ok := customFromStatus(inner); ok {
				return n, true
			}
		}
	case []any:
		for _, inner := range t {
			if n, ok := customFromStatus(inner); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// statusChainError builds the chain error of a confirmed-but-failed transaction.
func statusChainError(status any, logs []string) *domain.ChainError {
	ce := ParseChainError(logs, fmt.Sprint(status))
	if ce.Number == 0 {
		if n, ok := customFromStatus(status); ok {
			ce.Number = n
			ce.Code = domain.ChainErrorFromNumber(n)
		}
	}
	return ce
}
