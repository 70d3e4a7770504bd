package engine

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
	"github.com/alejandrodnm/lmsrkeeper/internal/ports"
)

// MarketCache memoizes AmmState reads for the lifetime of one tick, so every
// order on the same market is checked against the same snapshot.
type MarketCache struct {
	reader ports.MarketReader
	states map[solana.PublicKey]domain.AmmState
	errs   map[solana.PublicKey]error
}

// NewMarketCache returns an empty cache over reader.
func NewMarketCache(reader ports.MarketReader) *MarketCache {
	return &MarketCache{
		reader: reader,
		states: make(map[solana.PublicKey]domain.AmmState),
		errs:   make(map[solana.PublicKey]error),
	}
}

// Get returns the cached snapshot, fetching it on first use. Fetch errors are
// cached too: a market that failed once is not retried within the tick.
func (c *MarketCache) Get(ctx context.Context, market solana.PublicKey) (domain.AmmState, error) {
	if s, ok := c.states[market]; ok {
		return s, nil
	}
	if err, ok := c.errs[market]; ok {
		return domain.AmmState{}, err
	}
	s, err := c.reader.FetchAmmState(ctx, market)
	if err != nil {
		err = fmt.Errorf("engine.MarketCache: %s: %w", market, err)
		c.errs[market] = err
		return domain.AmmState{}, err
	}
	c.states[market] = s
	return s, nil
}

// Len is the number of markets touched so far.
func (c *MarketCache) Len() int {
	return len(c.states) + len(c.errs)
}

// NewID returns a fresh UUID for journal records.
func NewID() string {
	return uuid.NewString()
}

// TruncateStr trunca un string a maxLen caracteres añadiendo "..." si es necesario.
func TruncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
