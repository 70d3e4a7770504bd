package orders_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lmsrkeeper/internal/application/orders"
	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

var market = solana.PublicKey{0x55}

type fakeStore struct {
	submitted []domain.SignedOrder
	hash      string // overrides the echoed hash when set
	err       error
}

func (s *fakeStore) Submit(_ context.Context, so domain.SignedOrder) (domain.SubmitReceipt, error) {
	if s.err != nil {
		return domain.SubmitReceipt{}, s.err
	}
	s.submitted = append(s.submitted, so)
	h := so.Order.HashHex()
	if s.hash != "" {
		h = s.hash
	}
	return domain.SubmitReceipt{OrderID: "ord-1", OrderHash: h}, nil
}

func (s *fakeStore) FetchPending(context.Context, int) ([]domain.PendingOrder, error) {
	return nil, nil
}

func (s *fakeStore) ReportFill(context.Context, string, domain.FillReport) error {
	return nil
}

type fakeMarkets struct {
	state domain.AmmState
}

func (m fakeMarkets) FetchAmmState(context.Context, solana.PublicKey) (domain.AmmState, error) {
	return m.state, nil
}

func openMarket() fakeMarkets {
	return fakeMarkets{state: domain.AmmState{
		Address: market, Decimals: 6, BScaled: 500_000_000_000, Status: domain.StatusOpen,
	}}
}

func buyOrder(t *testing.T, limit int64) (domain.LimitOrder, ed25519.PrivateKey) {
	t.Helper()
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{9}, ed25519.SeedSize))
	return domain.LimitOrder{
		Market:       market,
		User:         solana.PublicKeyFromBytes(key.Public().(ed25519.PublicKey)),
		Action:       domain.ActionBuy,
		Side:         domain.SideYes,
		SharesE6:     100_000_000,
		LimitPriceE6: limit,
		ExpiryTs:     time.Now().Add(time.Hour).Unix(),
		Nonce:        1,
		MinFillBps:   10_000,
	}, key
}

func TestSubmit_SignsAndPosts(t *testing.T) {
	store := &fakeStore{}
	o, key := buyOrder(t, 1_000_000)

	res, err := orders.NewSubmitter(store, openMarket()).Submit(context.Background(), o, key, orders.SubmitOptions{MaxSlippageBps: 100})
	require.NoError(t, err)
	assert.Equal(t, "ord-1", res.OrderID)
	assert.Equal(t, o.HashHex(), res.OrderHash)
	assert.Equal(t, int64(500_000), res.QuotePriceE6)
	assert.True(t, res.Guard.Success)
	assert.False(t, res.Resting)

	require.Len(t, store.submitted, 1)
	assert.NoError(t, store.submitted[0].Order.Verify(store.submitted[0].Signature))
}

func TestSubmit_GuardRejects(t *testing.T) {
	store := &fakeStore{}
	o, key := buyOrder(t, 10_000)

	res, err := orders.NewSubmitter(store, openMarket()).Submit(context.Background(), o, key, orders.SubmitOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPriceLimitExceeded)
	assert.False(t, res.Guard.Success)
	assert.Empty(t, store.submitted)
}

func TestSubmit_RestingOrder(t *testing.T) {
	store := &fakeStore{}
	o, key := buyOrder(t, 10_000)

	res, err := orders.NewSubmitter(store, openMarket()).Submit(context.Background(), o, key, orders.SubmitOptions{AllowResting: true})
	require.NoError(t, err)
	assert.True(t, res.Resting)
	assert.Len(t, store.submitted, 1)
}

func TestSubmit_SlippageBand(t *testing.T) {
	o, key := buyOrder(t, 1_000_000)
	o.SharesE6 = 500_000_000_000 // large enough to move the price well past 1%

	_, err := orders.NewSubmitter(&fakeStore{}, openMarket()).Submit(context.Background(), o, key, orders.SubmitOptions{MaxSlippageBps: 100})
	assert.ErrorIs(t, err, domain.ErrSlippageExceeded)
}

func TestSubmit_ClosedMarket(t *testing.T) {
	m := openMarket()
	m.state.Status = domain.StatusSettled
	o, key := buyOrder(t, 1_000_000)

	_, err := orders.NewSubmitter(&fakeStore{}, m).Submit(context.Background(), o, key, orders.SubmitOptions{})
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestSubmit_InvalidOrder(t *testing.T) {
	o, key := buyOrder(t, 1_000_000)
	o.ExpiryTs = time.Now().Add(-time.Minute).Unix()

	_, err := orders.NewSubmitter(&fakeStore{}, openMarket()).Submit(context.Background(), o, key, orders.SubmitOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestSubmit_WrongKey(t *testing.T) {
	o, _ := buyOrder(t, 1_000_000)
	other := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{1}, ed25519.SeedSize))

	_, err := orders.NewSubmitter(&fakeStore{}, openMarket()).Submit(context.Background(), o, other, orders.SubmitOptions{})
	assert.ErrorIs(t, err, domain.ErrSignerMismatch)
}

func TestSubmit_HashMismatch(t *testing.T) {
	o, key := buyOrder(t, 1_000_000)
	store := &fakeStore{hash: "deadbeef"}

	res, err := orders.NewSubmitter(store, openMarket()).Submit(context.Background(), o, key, orders.SubmitOptions{})
	assert.ErrorIs(t, err, orders.ErrHashMismatch)
	assert.Equal(t, "ord-1", res.OrderID)
}

func TestSubmit_StoreError(t *testing.T) {
	o, key := buyOrder(t, 1_000_000)
	store := &fakeStore{err: errors.New("503")}

	_, err := orders.NewSubmitter(store, openMarket()).Submit(context.Background(), o, key, orders.SubmitOptions{})
	assert.ErrorContains(t, err, "503")
}
