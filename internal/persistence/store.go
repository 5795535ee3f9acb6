// Package persistence is the daemon's durability layer (SPEC_FULL.md
// §4.17): the daily realized P&L ledger, account/symbol lockouts, and the
// append-only enforcement log, all backed by a single SQLite database.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/riskd/sentinel-risk-daemon/internal/database"
	"github.com/riskd/sentinel-risk-daemon/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_pnl (
	account_id   INTEGER NOT NULL,
	date         TEXT    NOT NULL,
	realized_pnl REAL    NOT NULL,
	PRIMARY KEY (account_id, date)
);

CREATE TABLE IF NOT EXISTS lockouts (
	account_id INTEGER NOT NULL,
	kind       INTEGER NOT NULL,
	symbol     TEXT    NOT NULL DEFAULT '',
	reason     TEXT    NOT NULL,
	applied_at TEXT    NOT NULL,
	until      TEXT,
	PRIMARY KEY (account_id, kind, symbol)
);

CREATE TABLE IF NOT EXISTS enforcement_log (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	at               TEXT    NOT NULL,
	account_id       INTEGER NOT NULL,
	rule_id          TEXT    NOT NULL,
	action           TEXT    NOT NULL,
	reason           TEXT    NOT NULL,
	success          INTEGER NOT NULL,
	observed_metrics BLOB
);

CREATE INDEX IF NOT EXISTS idx_enforcement_log_account ON enforcement_log(account_id, at);
`

// Store is the single durability surface for the daemon's own state,
// satisfying pnltracker.Store, lockout.Store, and enforcement.LogStore.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// Open creates (or reuses) a SQLite database at path and ensures the schema
// in place, following the teacher's ledger profile (maximum durability:
// fsync-on-write, no auto-vacuum) since the enforcement log is the
// daemon's audit trail.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := database.New(database.Config{Path: path, Profile: database.ProfileLedger, Name: "riskd"})
	if err != nil {
		return nil, fmt.Errorf("opening persistence store: %w", err)
	}
	if _, err := db.Conn().Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying persistence schema: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "persistence").Logger()}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying database handle for internal/backup and
// internal/maintenance, which operate on the file as a whole rather than
// through the repository methods above.
func (s *Store) DB() *database.DB {
	return s.db
}

// SaveDailyPnL upserts a single account/date realized P&L row.
// Satisfies pnltracker.Store.
func (s *Store) SaveDailyPnL(p domain.DailyPnL) error {
	_, err := s.db.Exec(`
		INSERT INTO daily_pnl (account_id, date, realized_pnl)
		VALUES (?, ?, ?)
		ON CONFLICT (account_id, date) DO UPDATE SET realized_pnl = excluded.realized_pnl
	`, p.AccountID, p.Date, p.RealizedPnL)
	if err != nil {
		return fmt.Errorf("saving daily pnl: %w", err)
	}
	return nil
}

// LoadDailyPnL returns every persisted daily P&L row, used at startup to
// hydrate internal/pnltracker before the stream is live.
func (s *Store) LoadDailyPnL() ([]domain.DailyPnL, error) {
	rows, err := s.db.Query(`SELECT account_id, date, realized_pnl FROM daily_pnl`)
	if err != nil {
		return nil, fmt.Errorf("loading daily pnl: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyPnL
	for rows.Next() {
		var p domain.DailyPnL
		if err := rows.Scan(&p.AccountID, &p.Date, &p.RealizedPnL); err != nil {
			return nil, fmt.Errorf("scanning daily pnl row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveLockout upserts a lockout row keyed by (account_id, kind, symbol).
// Satisfies lockout.Store.
func (s *Store) SaveLockout(l domain.Lockout) error {
	var until sql.NullString
	if l.Until != nil {
		until = sql.NullString{String: l.Until.Format(time.RFC3339), Valid: true}
	}
	_, err := s.db.Exec(`
		INSERT INTO lockouts (account_id, kind, symbol, reason, applied_at, until)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, kind, symbol) DO UPDATE SET
			reason = excluded.reason, applied_at = excluded.applied_at, until = excluded.until
	`, l.AccountID, int(l.Kind), l.Symbol, l.Reason, l.AppliedAt.Format(time.RFC3339), until)
	if err != nil {
		return fmt.Errorf("saving lockout: %w", err)
	}
	return nil
}

// DeleteLockout removes a single lockout row. Satisfies lockout.Store.
func (s *Store) DeleteLockout(accountID int64, kind domain.LockoutKind, symbol string) error {
	_, err := s.db.Exec(`DELETE FROM lockouts WHERE account_id = ? AND kind = ? AND symbol = ?`, accountID, int(kind), symbol)
	if err != nil {
		return fmt.Errorf("deleting lockout: %w", err)
	}
	return nil
}

// LoadLockouts returns every persisted lockout, expired or not; the caller
// (lockout.Manager.LoadFromStore) filters on Active(now). Satisfies
// lockout.Store.
func (s *Store) LoadLockouts() ([]domain.Lockout, error) {
	rows, err := s.db.Query(`SELECT account_id, kind, symbol, reason, applied_at, until FROM lockouts`)
	if err != nil {
		return nil, fmt.Errorf("loading lockouts: %w", err)
	}
	defer rows.Close()

	var out []domain.Lockout
	for rows.Next() {
		var l domain.Lockout
		var kind int
		var appliedAt string
		var until sql.NullString
		if err := rows.Scan(&l.AccountID, &kind, &l.Symbol, &l.Reason, &appliedAt, &until); err != nil {
			return nil, fmt.Errorf("scanning lockout row: %w", err)
		}
		l.Kind = domain.LockoutKind(kind)
		if t, err := time.Parse(time.RFC3339, appliedAt); err == nil {
			l.AppliedAt = t
		}
		if until.Valid {
			if t, err := time.Parse(time.RFC3339, until.String); err == nil {
				l.Until = &t
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveEnforcementLogEntry appends one enforcement decision. Satisfies
// enforcement.LogStore. observed_metrics is msgpack-encoded since its value
// type is map[string]any and varies per rule.
func (s *Store) SaveEnforcementLogEntry(e domain.EnforcementLogEntry) error {
	var blob []byte
	if len(e.ObservedMetrics) > 0 {
		encoded, err := msgpack.Marshal(e.ObservedMetrics)
		if err != nil {
			return fmt.Errorf("encoding observed metrics: %w", err)
		}
		blob = encoded
	}

	_, err := s.db.Exec(`
		INSERT INTO enforcement_log (at, account_id, rule_id, action, reason, success, observed_metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.At.Format(time.RFC3339), e.AccountID, e.RuleID, e.Action, e.Reason, e.Success, blob)
	if err != nil {
		return fmt.Errorf("saving enforcement log entry: %w", err)
	}
	return nil
}

// RecentEnforcementLog returns the most recent enforcement log entries for
// accountID, newest first, for internal/statusapi's read-only endpoint.
func (s *Store) RecentEnforcementLog(accountID int64, limit int) ([]domain.EnforcementLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT at, account_id, rule_id, action, reason, success, observed_metrics
		FROM enforcement_log
		WHERE account_id = ?
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying enforcement log: %w", err)
	}
	defer rows.Close()

	var out []domain.EnforcementLogEntry
	for rows.Next() {
		var e domain.EnforcementLogEntry
		var at string
		var blob []byte
		if err := rows.Scan(&at, &e.AccountID, &e.RuleID, &e.Action, &e.Reason, &e.Success, &blob); err != nil {
			return nil, fmt.Errorf("scanning enforcement log row: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			e.At = t
		}
		if len(blob) > 0 {
			if err := msgpack.Unmarshal(blob, &e.ObservedMetrics); err != nil {
				s.log.Warn().Err(err).Msg("failed to decode observed metrics, skipping")
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// WALCheckpoint and Vacuum expose internal/database's maintenance
// primitives for internal/maintenance's scheduled jobs.
func (s *Store) WALCheckpoint(mode string) error { return s.db.WALCheckpoint(mode) }
func (s *Store) Vacuum() error                   { return s.db.Vacuum() }

// HealthCheck reports whether the database is reachable and structurally
// sound, for internal/statusapi's health endpoint.
func (s *Store) HealthCheck(ctx context.Context) error { return s.db.HealthCheck(ctx) }

// Stats exposes the database's size/page metrics for internal/statusapi.
func (s *Store) Stats() (*database.Stats, error) { return s.db.GetStats() }
