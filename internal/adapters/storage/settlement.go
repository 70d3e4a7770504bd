package storage

// settlement.go — reconciliation runs and their per-holder rows.

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

// SaveSettlement upserts the run and replaces its rows. Called at start
// (RUNNING) and again when the run completes or fails.
func (s *SQLiteStorage) SaveSettlement(ctx context.Context, r *domain.SettlementReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SaveSettlement: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO settlement_runs
		  (run_id, market, winner, decimals, vault_before, vault_after, winning_total,
		   pps, fees, total_payout, redeem_txs, status, error, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(run_id) DO UPDATE SET
		  vault_before=excluded.vault_before, vault_after=excluded.vault_after,
		  winning_total=excluded.winning_total, pps=excluded.pps, fees=excluded.fees,
		  total_payout=excluded.total_payout, redeem_txs=excluded.redeem_txs,
		  status=excluded.status, error=excluded.error, finished_at=excluded.finished_at`,
		r.RunID, r.Market.String(), int(r.Winner), int(r.Decimals), r.VaultBefore, r.VaultAfter,
		r.WinningTotal, r.Pps, r.Fees, r.TotalPayout, strings.Join(r.RedeemTxs, ","),
		string(r.Status), r.Error, toMillis(r.StartedAt), toMillis(r.FinishedAt),
	); err != nil {
		return fmt.Errorf("storage.SaveSettlement: upsert run %s: %w", r.RunID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM settlement_rows WHERE run_id=?`, r.RunID); err != nil {
		return fmt.Errorf("storage.SaveSettlement: clear rows: %w", err)
	}
	if len(r.Rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO settlement_rows
			  (run_id, user_pubkey, position, winning_raw, payout,
			   display_shares, display_payout, display_percent)
			VALUES (?,?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("storage.SaveSettlement: prepare: %w", err)
		}
		defer stmt.Close()
		for _, row := range r.Rows {
			if _, err := stmt.ExecContext(ctx,
				r.RunID, row.User.String(), row.Position.String(), row.WinningSharesRaw,
				row.OnChainPayout, row.DisplayWinningShares, row.DisplayPayout,
				row.DisplayPercent.String(),
			); err != nil {
				return fmt.Errorf("storage.SaveSettlement: row %s: %w", row.User, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SaveSettlement: commit: %w", err)
	}
	return nil
}

// GetSettlements returns every run of market, newest first, rows included.
func (s *SQLiteStorage) GetSettlements(ctx context.Context, market solana.PublicKey) ([]domain.SettlementReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, winner, decimals, vault_before, vault_after, winning_total, pps, fees,
		       total_payout, redeem_txs, status, error, started_at, finished_at
		FROM settlement_runs
		WHERE market=?
		ORDER BY started_at DESC`, market.String())
	if err != nil {
		return nil, fmt.Errorf("storage.GetSettlements: query: %w", err)
	}

	var reports []domain.SettlementReport
	for rows.Next() {
		r := domain.SettlementReport{Market: market}
		var winner, decimals int
		var txs, status string
		var started, finished int64
		if err := rows.Scan(
			&r.RunID, &winner, &decimals, &r.VaultBefore, &r.VaultAfter, &r.WinningTotal,
			&r.Pps, &r.Fees, &r.TotalPayout, &txs, &status, &r.Error, &started, &finished,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage.GetSettlements: scan: %w", err)
		}
		r.Winner = domain.Outcome(winner)
		r.Decimals = uint8(decimals)
		if txs != "" {
			r.RedeemTxs = strings.Split(txs, ",")
		}
		r.Status = domain.SettlementStatus(status)
		r.StartedAt = fromMillis(started)
		r.FinishedAt = fromMillis(finished)
		reports = append(reports, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.GetSettlements: %w", err)
	}

	// single connection: rows must be closed before the next query
	for i := range reports {
		if reports[i].Rows, err = s.settlementRows(ctx, reports[i].RunID); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

func (s *SQLiteStorage) settlementRows(ctx context.Context, runID string) ([]domain.SettlementRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_pubkey, position, winning_raw, payout, display_shares, display_payout, display_percent
		FROM settlement_rows WHERE run_id=?`, runID)
	if err != nil {
		return nil, fmt.Errorf("storage.settlementRows: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SettlementRow
	for rows.Next() {
		var row domain.SettlementRow
		var user, position, pct string
		if err := rows.Scan(&user, &position, &row.WinningSharesRaw, &row.OnChainPayout,
			&row.DisplayWinningShares, &row.DisplayPayout, &pct); err != nil {
			return nil, fmt.Errorf("storage.settlementRows: scan: %w", err)
		}
		if row.User, err = solana.PublicKeyFromBase58(user); err != nil {
			return nil, fmt.Errorf("storage.settlementRows: user: %w", err)
		}
		if row.Position, err = solana.PublicKeyFromBase58(position); err != nil {
			return nil, fmt.Errorf("storage.settlementRows: position: %w", err)
		}
		if row.DisplayPercent, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("storage.settlementRows: percent: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.settlementRows: %w", err)
	}
	// same order as domain.ComputePayouts
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].User[:], out[j].User[:]) < 0
	})
	return out, nil
}
