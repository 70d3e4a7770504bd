package storage

// journal.go — order claims, execution attempts and the circuit breaker.

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

// ─── Claims ──────────────────────────────────────────────────────────────────

// ClaimOrder takes the claim when nobody holds it, when the previous claim
// expired, or when keeperID already holds it (renewal). The conditional upsert
// makes the check-and-set atomic across processes sharing the file.
func (s *SQLiteStorage) ClaimOrder(ctx context.Context, orderID, keeperID string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO order_claims (order_id, keeper_id, claimed_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			keeper_id  = excluded.keeper_id,
			claimed_at = excluded.claimed_at,
			expires_at = excluded.expires_at
		WHERE order_claims.expires_at <= excluded.claimed_at
		   OR order_claims.keeper_id = excluded.keeper_id`,
		orderID, keeperID, toMillis(now), toMillis(now.Add(ttl)),
	)
	if err != nil {
		return false, fmt.Errorf("storage.ClaimOrder: %s: %w", orderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("storage.ClaimOrder: rows affected: %w", err)
	}
	return n > 0, nil
}

// ReleaseClaim drops keeperID's claim on orderID. Claims held by others are untouched.
func (s *SQLiteStorage) ReleaseClaim(ctx context.Context, orderID, keeperID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM order_claims WHERE order_id=? AND keeper_id=?`, orderID, keeperID,
	); err != nil {
		return fmt.Errorf("storage.ReleaseClaim: %s: %w", orderID, err)
	}
	return nil
}

// ─── Attempts ────────────────────────────────────────────────────────────────

// RecordAttempt appends one attempt to the journal.
func (s *SQLiteStorage) RecordAttempt(ctx context.Context, a domain.ExecutionAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_attempts
		  (id, order_id, order_hash, market, user_pubkey, keeper_id, action, side,
		   status, path, reason, requested, filled, exec_price, tx_signature, logs, attempted_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.OrderID, a.OrderHash, a.Market.String(), a.User.String(), a.KeeperID,
		a.Action.String(), a.Side.String(), string(a.Status), a.Path.String(), a.Reason,
		a.RequestedShares, a.FilledShares, a.ExecutionPrice, a.TxSignature,
		joinLines(a.Logs), toMillis(a.AttemptedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.RecordAttempt: %s: %w", a.OrderID, err)
	}
	return nil
}

// RecentAttempts returns the latest attempts, newest first.
func (s *SQLiteStorage) RecentAttempts(ctx context.Context, limit int) ([]domain.ExecutionAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, order_hash, market, user_pubkey, keeper_id, action, side,
		       status, path, reason, requested, filled, exec_price, tx_signature, logs, attempted_at
		FROM execution_attempts
		ORDER BY attempted_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentAttempts: query: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.RecentAttempts: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(rows *sql.Rows) (domain.ExecutionAttempt, error) {
	var (
		a                          domain.ExecutionAttempt
		market, user, action, side string
		status, path, logs         string
		attemptedAt                int64
	)
	if err := rows.Scan(
		&a.ID, &a.OrderID, &a.OrderHash, &market, &user, &a.KeeperID, &action, &side,
		&status, &path, &a.Reason, &a.RequestedShares, &a.FilledShares, &a.ExecutionPrice,
		&a.TxSignature, &logs, &attemptedAt,
	); err != nil {
		return a, fmt.Errorf("scan attempt: %w", err)
	}
	var err error
	if a.Market, err = solana.PublicKeyFromBase58(market); err != nil {
		return a, fmt.Errorf("attempt %s market: %w", a.ID, err)
	}
	if a.User, err = solana.PublicKeyFromBase58(user); err != nil {
		return a, fmt.Errorf("attempt %s user: %w", a.ID, err)
	}
	if a.Action, err = domain.ParseAction(action); err != nil {
		return a, fmt.Errorf("attempt %s: %w", a.ID, err)
	}
	if a.Side, err = domain.ParseSide(side); err != nil {
		return a, fmt.Errorf("attempt %s: %w", a.ID, err)
	}
	a.Status = domain.AttemptStatus(status)
	a.Path = domain.ParseExecutionPath(path)
	a.Logs = splitLines(logs)
	a.AttemptedAt = fromMillis(attemptedAt)
	return a, nil
}

// ─── Circuit breaker ─────────────────────────────────────────────────────────

// SaveCircuitBreaker persists the breaker state of keeperID.
func (s *SQLiteStorage) SaveCircuitBreaker(ctx context.Context, keeperID string, cb domain.CircuitBreaker) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keeper_circuit_breaker
		  (keeper_id, consecutive, max_failures, cooldown_until, cooldown_duration_s,
		   total_failures, max_total_failures, triggered, triggered_reason)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(keeper_id) DO UPDATE SET
		  consecutive=excluded.consecutive, max_failures=excluded.max_failures,
		  cooldown_until=excluded.cooldown_until, cooldown_duration_s=excluded.cooldown_duration_s,
		  total_failures=excluded.total_failures, max_total_failures=excluded.max_total_failures,
		  triggered=excluded.triggered, triggered_reason=excluded.triggered_reason`,
		keeperID, cb.ConsecutiveFailures, cb.MaxFailures, toMillis(cb.CooldownUntil),
		int(cb.CooldownDuration.Seconds()), cb.TotalFailures, cb.MaxTotalFailures,
		boolToInt(cb.Triggered), cb.TriggeredReason,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveCircuitBreaker: %w", err)
	}
	return nil
}

// LoadCircuitBreaker loads the persisted breaker; ok is false when keeperID
// never saved one.
func (s *SQLiteStorage) LoadCircuitBreaker(ctx context.Context, keeperID string) (domain.CircuitBreaker, bool, error) {
	var (
		cb                domain.CircuitBreaker
		cooldownUntil     int64
		cooldownDurationS int
		triggered         int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT consecutive, max_failures, cooldown_until, cooldown_duration_s,
		       total_failures, max_total_failures, triggered, triggered_reason
		FROM keeper_circuit_breaker WHERE keeper_id=?`, keeperID).Scan(
		&cb.ConsecutiveFailures, &cb.MaxFailures, &cooldownUntil, &cooldownDurationS,
		&cb.TotalFailures, &cb.MaxTotalFailures, &triggered, &cb.TriggeredReason,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return cb, false, nil
	}
	if err != nil {
		return cb, false, fmt.Errorf("storage.LoadCircuitBreaker: %w", err)
	}
	cb.CooldownUntil = fromMillis(cooldownUntil)
	cb.CooldownDuration = time.Duration(cooldownDurationS) * time.Second
	cb.Triggered = triggered != 0
	return cb, true, nil
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// KeeperStats aggregates the whole journal.
func (s *SQLiteStorage) KeeperStats(ctx context.Context) (domain.KeeperStats, error) {
	var st domain.KeeperStats
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(filled), 0) FROM execution_attempts GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("storage.KeeperStats: attempts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		var filled int64
		if err := rows.Scan(&status, &n, &filled); err != nil {
			return st, fmt.Errorf("storage.KeeperStats: scan: %w", err)
		}
		st.TotalAttempts += n
		st.SharesFilled += filled
		switch domain.AttemptStatus(status) {
		case domain.AttemptExecuted:
			st.Executed = n
		case domain.AttemptPartial:
			st.Partial = n
		case domain.AttemptSkipped:
			st.Skipped = n
		case domain.AttemptFailed:
			st.Failed = n
		case domain.AttemptRejected:
			st.Rejected = n
		}
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("storage.KeeperStats: %w", err)
	}

	var last sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(attempted_at) FROM execution_attempts`).Scan(&last); err != nil {
		return st, fmt.Errorf("storage.KeeperStats: last attempt: %w", err)
	}
	if last.Valid {
		t := fromMillis(last.Int64)
		st.LastAttemptAt = &t
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM order_claims WHERE expires_at > ?`, toMillis(time.Now().UTC()),
	).Scan(&st.ActiveClaims); err != nil {
		return st, fmt.Errorf("storage.KeeperStats: claims: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM settlement_runs`).Scan(&st.Settlements); err != nil {
		return st, fmt.Errorf("storage.KeeperStats: settlements: %w", err)
	}
	return st, nil
}
