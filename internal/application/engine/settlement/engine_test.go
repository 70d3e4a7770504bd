package settlement_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/lmsrkeeper/internal/application/engine/settlement"
	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

const e6 int64 = 1_000_000

var market = solana.PublicKey{0x44}

// fakeChain mimics the program: settle derives pps from the vault, redeem pays
// floor(raw * pps / 10^d) and clears the position.
type fakeChain struct {
	state     domain.AmmState
	positions []*domain.Position

	ppsOverride int64
	leak        int64                     // extra vault drain per redeem
	keep        map[solana.PublicKey]bool // redeem leaves these positions untouched

	stops, settles int
	redeemed       []solana.PublicKey
}

func newChain(vault int64, positions ...domain.Position) *fakeChain {
	c := &fakeChain{
		state: domain.AmmState{Address: market, Decimals: 6, BScaled: 1000 * e6, Status: domain.StatusOpen, Vault: vault, FeesAccrued: 12 * e6},
		keep:  map[solana.PublicKey]bool{},
	}
	for i := range positions {
		p := positions[i]
		c.positions = append(c.positions, &p)
	}
	return c
}

func (c *fakeChain) FetchAmmState(context.Context, solana.PublicKey) (domain.AmmState, error) {
	return c.state, nil
}

func (c *fakeChain) StopMarket(context.Context, solana.PublicKey) (string, error) {
	c.stops++
	c.state.Status = domain.StatusStopped
	return "stop-tx", nil
}

func (c *fakeChain) SettleMarket(_ context.Context, _ solana.PublicKey, winner domain.Outcome) (string, error) {
	c.settles++
	var w int64
	for _, p := range c.positions {
		w += p.WinningShares(winner)
	}
	c.state.Status = domain.StatusSettled
	c.state.Winner = winner
	c.state.WinningTotal = w
	c.state.PricePerShare = domain.ExpectedPps(c.state.Vault, w, c.state.Decimals)
	if c.ppsOverride != 0 {
		c.state.PricePerShare = c.ppsOverride
	}
	return "settle-tx", nil
}

func (c *fakeChain) Redeem(_ context.Context, _ solana.PublicKey, owner solana.PublicKey) (string, error) {
	for _, p := range c.positions {
		if p.Owner != owner {
			continue
		}
		c.redeemed = append(c.redeemed, owner)
		payout := domain.OnChainPayout(p.WinningShares(c.state.Winner), c.state.PricePerShare, c.state.Decimals)
		c.state.Vault -= payout + c.leak
		if !c.keep[owner] {
			p.YesShares, p.NoShares = 0, 0
		}
		return "redeem-" + owner.String()[:4], nil
	}
	return "", errors.New("position not found")
}

func (c *fakeChain) ListPositions(context.Context, solana.PublicKey) ([]domain.Position, error) {
	out := make([]domain.Position, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, *p)
	}
	return out, nil
}

type fakeJournal struct {
	statuses []domain.SettlementStatus
	last     *domain.SettlementReport
}

func (j *fakeJournal) SaveSettlement(_ context.Context, r *domain.SettlementReport) error {
	j.statuses = append(j.statuses, r.Status)
	j.last = r
	return nil
}

func (j *fakeJournal) GetSettlements(context.Context, solana.PublicKey) ([]domain.SettlementReport, error) {
	return nil, nil
}

type fakeReporter struct {
	settlements int
}

func (r *fakeReporter) ReportTick(context.Context, *domain.TickResult) error { return nil }

func (r *fakeReporter) ReportSettlement(context.Context, *domain.SettlementReport) error {
	r.settlements++
	return nil
}

func pos(id byte, yes, no int64) domain.Position {
	return domain.Position{Owner: solana.PublicKey{id}, Address: solana.PublicKey{0xAA, id}, Market: market, YesShares: yes, NoShares: no}
}

// two YES holders with 600k and 400k winning shares, pps 0.8, plus a NO holder
func scenarioC() *fakeChain {
	return newChain(800_000*e6,
		pos(2, 400_000*e6, 5*e6),
		pos(1, 600_000*e6, 0),
		pos(3, 0, 900*e6),
	)
}

func fullRun() settlement.RunRequest {
	return settlement.RunRequest{Market: market, Winner: domain.OutcomeYes, Stop: true, Settle: true, Redeem: true}
}

func TestRun_TwoHoldersReconcile(t *testing.T) {
	chain := scenarioC()
	journal := &fakeJournal{}
	reporter := &fakeReporter{}

	report, err := settlement.New(chain, journal, reporter).Run(context.Background(), fullRun())
	require.NoError(t, err)

	assert.Equal(t, 1, chain.stops)
	assert.Equal(t, 1, chain.settles)
	assert.Equal(t, domain.SettlementCompleted, report.Status)
	assert.Equal(t, int64(800_000), report.Pps)
	assert.Equal(t, 1_000_000*e6, report.WinningTotal)
	assert.Equal(t, 12*e6, report.Fees)

	require.Len(t, report.Rows, 2)
	assert.Equal(t, solana.PublicKey{1}, report.Rows[0].User)
	assert.Equal(t, 480_000*e6, report.Rows[0].OnChainPayout)
	assert.Equal(t, 320_000*e6, report.Rows[1].OnChainPayout)
	assert.Equal(t, 800_000*e6, report.TotalPayout)
	assert.Equal(t, 800_000*e6, report.VaultDrop())
	assert.Len(t, report.RedeemTxs, 2)
	assert.Equal(t, []solana.PublicKey{{1}, {2}}, chain.redeemed, "losers are not redeemed by default")

	assert.Equal(t, []domain.SettlementStatus{domain.SettlementRunning, domain.SettlementCompleted}, journal.statuses)
	assert.Equal(t, 1, reporter.settlements)
	assert.Equal(t, report.RunID, journal.last.RunID)
}

func TestRun_RedeemLosers(t *testing.T) {
	chain := scenarioC()
	req := fullRun()
	req.RedeemLosers = true

	report, err := settlement.New(chain, nil, nil).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, report.RedeemTxs, 3)
	assert.Len(t, report.Rows, 2, "losers do not appear in the payout table")
	for _, p := range chain.positions {
		assert.True(t, p.IsZero())
	}
}

func TestRun_DryRun(t *testing.T) {
	chain := scenarioC()
	req := fullRun()
	req.Redeem = false

	report, err := settlement.New(chain, nil, nil).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, chain.redeemed)
	assert.Equal(t, domain.SettlementCompleted, report.Status)
	assert.Equal(t, 800_000*e6, report.TotalPayout)
	assert.Zero(t, report.VaultDrop())
}

func TestRun_AlreadySettledSkipsLifecycle(t *testing.T) {
	chain := scenarioC()
	chain.StopMarket(context.Background(), market)
	chain.SettleMarket(context.Background(), market, domain.OutcomeYes)
	chain.stops, chain.settles = 0, 0

	_, err := settlement.New(chain, nil, nil).Run(context.Background(), fullRun())
	require.NoError(t, err)
	assert.Zero(t, chain.stops)
	assert.Zero(t, chain.settles)
}

func TestRun_PpsMismatchIsFatal(t *testing.T) {
	chain := scenarioC()
	chain.ppsOverride = 800_002
	journal := &fakeJournal{}
	reporter := &fakeReporter{}

	report, err := settlement.New(chain, journal, reporter).Run(context.Background(), fullRun())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPpsMismatch)
	assert.Empty(t, chain.redeemed, "nothing is paid out after a pps mismatch")
	assert.Equal(t, domain.SettlementFailed, report.Status)
	assert.Contains(t, report.Error, "PPS_MISMATCH")
	assert.Equal(t, []domain.SettlementStatus{domain.SettlementRunning, domain.SettlementFailed}, journal.statuses)
	assert.Equal(t, 1, reporter.settlements, "failed runs are still reported")
}

func TestRun_VaultDropMismatch(t *testing.T) {
	chain := scenarioC()
	chain.state.Vault += 10 // room for the leak
	chain.leak = 1

	report, err := settlement.New(chain, nil, nil).Run(context.Background(), fullRun())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVaultDropMismatch)

	var rerr *domain.ReconciliationError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, report.TotalPayout, rerr.Expected)
	assert.Equal(t, report.TotalPayout+2, rerr.Actual)
}

func TestRun_LeftoverPosition(t *testing.T) {
	chain := scenarioC()
	chain.keep[solana.PublicKey{2}] = true

	report, err := settlement.New(chain, nil, nil).Run(context.Background(), fullRun())
	assert.ErrorIs(t, err, domain.ErrNonZeroPositionAfterRedeem)
	assert.Equal(t, domain.SettlementFailed, report.Status)
}

func TestRun_WinnerMismatch(t *testing.T) {
	chain := scenarioC()
	chain.StopMarket(context.Background(), market)
	chain.SettleMarket(context.Background(), market, domain.OutcomeNo)

	_, err := settlement.New(chain, nil, nil).Run(context.Background(), fullRun())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settled NO, requested YES")
	assert.Empty(t, chain.redeemed)
}

func TestRun_SettleRequiresStop(t *testing.T) {
	chain := scenarioC()
	req := fullRun()
	req.Stop = false

	_, err := settlement.New(chain, nil, nil).Run(context.Background(), req)
	assert.ErrorContains(t, err, "cannot settle market in status OPEN")
	assert.Zero(t, chain.settles)
}

func TestRun_InvalidWinner(t *testing.T) {
	req := fullRun()
	req.Winner = domain.OutcomeNone

	report, err := settlement.New(scenarioC(), nil, nil).Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.SettlementFailed, report.Status)
}
