package storage

// sqlite.go — keeper journal on SQLite (pure Go, no CGo).
//
// Tables:
//   order_claims           — one row per order, expiring claim held by a keeper
//   execution_attempts     — every keeper attempt, with raw program logs
//   keeper_circuit_breaker — breaker state per keeper id
//   settlement_runs        — one row per reconciliation run
//   settlement_rows        — per-holder payouts of a run
//
// Timestamps are stored as unix milliseconds so claim expiry compares in SQL.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_claims (
    order_id    TEXT PRIMARY KEY,
    keeper_id   TEXT    NOT NULL,
    claimed_at  INTEGER NOT NULL,
    expires_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS execution_attempts (
    id              TEXT PRIMARY KEY,   -- UUID
    order_id        TEXT    NOT NULL,
    order_hash      TEXT    NOT NULL DEFAULT '',
    market          TEXT    NOT NULL,
    user_pubkey     TEXT    NOT NULL,
    keeper_id       TEXT    NOT NULL,
    action          TEXT    NOT NULL,
    side            TEXT    NOT NULL,
    status          TEXT    NOT NULL,
    path            TEXT    NOT NULL DEFAULT 'none',
    reason          TEXT    NOT NULL DEFAULT '',
    requested       INTEGER NOT NULL DEFAULT 0,
    filled          INTEGER NOT NULL DEFAULT 0,
    exec_price      INTEGER NOT NULL DEFAULT 0,
    tx_signature    TEXT    NOT NULL DEFAULT '',
    logs            TEXT    NOT NULL DEFAULT '',
    attempted_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_at     ON execution_attempts(attempted_at DESC);
CREATE INDEX IF NOT EXISTS idx_attempts_order  ON execution_attempts(order_id);
CREATE INDEX IF NOT EXISTS idx_attempts_status ON execution_attempts(status);

CREATE TABLE IF NOT EXISTS keeper_circuit_breaker (
    keeper_id           TEXT PRIMARY KEY,
    consecutive         INTEGER NOT NULL DEFAULT 0,
    max_failures        INTEGER NOT NULL DEFAULT 0,
    cooldown_until      INTEGER NOT NULL DEFAULT 0,
    cooldown_duration_s INTEGER NOT NULL DEFAULT 0,
    total_failures      INTEGER NOT NULL DEFAULT 0,
    max_total_failures  INTEGER NOT NULL DEFAULT 0,
    triggered           INTEGER NOT NULL DEFAULT 0,
    triggered_reason    TEXT    NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settlement_runs (
    run_id         TEXT PRIMARY KEY,
    market         TEXT    NOT NULL,
    winner         INTEGER NOT NULL,
    decimals       INTEGER NOT NULL,
    vault_before   INTEGER NOT NULL DEFAULT 0,
    vault_after    INTEGER NOT NULL DEFAULT 0,
    winning_total  INTEGER NOT NULL DEFAULT 0,
    pps            INTEGER NOT NULL DEFAULT 0,
    fees           INTEGER NOT NULL DEFAULT 0,
    total_payout   INTEGER NOT NULL DEFAULT 0,
    redeem_txs     TEXT    NOT NULL DEFAULT '',
    status         TEXT    NOT NULL,
    error          TEXT    NOT NULL DEFAULT '',
    started_at     INTEGER NOT NULL,
    finished_at    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_settlement_market ON settlement_runs(market, started_at DESC);

CREATE TABLE IF NOT EXISTS settlement_rows (
    run_id          TEXT    NOT NULL,
    user_pubkey     TEXT    NOT NULL,
    position        TEXT    NOT NULL,
    winning_raw     INTEGER NOT NULL,
    payout          INTEGER NOT NULL,
    display_shares  INTEGER NOT NULL,
    display_payout  INTEGER NOT NULL,
    display_percent TEXT    NOT NULL,
    PRIMARY KEY (run_id, user_pubkey)
);
`

const (
	retentionAttempts = 30 * 24 * time.Hour
	logSeparator      = "\n"
)

// SQLiteStorage implements ports.KeeperJournal and ports.SettlementJournal.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at path, applies the schema
// and prunes old attempts and expired claims.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if path != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: pragmas: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// pruneOld keeps the journal small. Settlement runs are never pruned.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	now := time.Now().UTC()
	s.db.ExecContext(ctx, `DELETE FROM execution_attempts WHERE attempted_at < ?`, toMillis(now.Add(-retentionAttempts)))
	s.db.ExecContext(ctx, `DELETE FROM order_claims WHERE expires_at < ?`, toMillis(now))
}

// --- helpers ---

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinLines(lines []string) string {
	return strings.Join(lines, logSeparator)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, logSeparator)
}
