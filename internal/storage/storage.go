// Package storage provides a SQLite-backed journal of emitted claim and idle alerts.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/claimwatch/internal/models"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for the alert journal.
// It is only an audit trail; the claim tracker never reads from it.
type Storage struct {
	db      *sql.DB
	maxRows int
}

// ClaimRecord is a journaled claim alert.
type ClaimRecord struct {
	ID            string
	TokenMint     string
	TokenSymbol   string
	CreatorWallet string
	CreatorName   string
	Previous      decimal.Decimal
	Current       decimal.Decimal
	Delta         decimal.Decimal
	DetectedAt    time.Time
	Notified      bool
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/claimwatch/journal.db.
func New(maxRows int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "claimwatch", "journal.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxRows: maxRows}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS claim_alerts (
			id              TEXT PRIMARY KEY,
			token_mint      TEXT NOT NULL,
			token_symbol    TEXT NOT NULL,
			creator_wallet  TEXT NOT NULL,
			creator_name    TEXT,
			prev_amount     TEXT NOT NULL,
			new_amount      TEXT NOT NULL,
			delta_amount    TEXT NOT NULL,
			detected_at     INTEGER NOT NULL,
			notified        INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS idle_alerts (
			id              TEXT PRIMARY KEY,
			last_claim_at   INTEGER NOT NULL,
			silent_for_ns   INTEGER NOT NULL,
			tracked_entries INTEGER NOT NULL,
			detected_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_alerts_detected_at ON claim_alerts(detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_claim_alerts_token ON claim_alerts(token_mint, creator_wallet)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// AddClaim journals a claim event. An empty event ID is replaced with a new UUID.
func (s *Storage) AddClaim(ev *models.ClaimEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO claim_alerts
			(id, token_mint, token_symbol, creator_wallet, creator_name,
			 prev_amount, new_amount, delta_amount, detected_at, notified)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		ev.ID, ev.Token.Mint, ev.Token.Label(), ev.Creator.Wallet, ev.Creator.DisplayName(),
		ev.Previous.String(), ev.Current.String(), ev.Delta.String(),
		ev.DetectedAt.UnixNano(), boolToInt(ev.Notified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim alert: %w", err)
	}
	return nil
}

// MarkClaimNotified flags a journaled claim as delivered.
func (s *Storage) MarkClaimNotified(id string) error {
	res, err := s.db.Exec(`UPDATE claim_alerts SET notified = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark claim notified: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("claim alert not found: %s", id)
	}
	return nil
}

// RecentClaims returns the k most recently detected claims, newest first.
func (s *Storage) RecentClaims(k int) ([]ClaimRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, token_mint, token_symbol, creator_wallet, creator_name,
		       prev_amount, new_amount, delta_amount, detected_at, notified
		FROM claim_alerts ORDER BY detected_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query claim alerts: %w", err)
	}
	defer rows.Close()

	var claims []ClaimRecord
	for rows.Next() {
		var r ClaimRecord
		var creatorName sql.NullString
		var previous, current, delta string
		var detectedAtNano int64
		var notified int

		err := rows.Scan(
			&r.ID, &r.TokenMint, &r.TokenSymbol, &r.CreatorWallet, &creatorName,
			&previous, &current, &delta, &detectedAtNano, &notified,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim alert: %w", err)
		}

		if r.Previous, err = decimal.NewFromString(previous); err != nil {
			return nil, fmt.Errorf("invalid previous amount %q: %w", previous, err)
		}
		if r.Current, err = decimal.NewFromString(current); err != nil {
			return nil, fmt.Errorf("invalid current amount %q: %w", current, err)
		}
		if r.Delta, err = decimal.NewFromString(delta); err != nil {
			return nil, fmt.Errorf("invalid delta %q: %w", delta, err)
		}
		r.CreatorName = creatorName.String
		r.DetectedAt = time.Unix(0, detectedAtNano)
		r.Notified = notified != 0
		claims = append(claims, r)
	}

	return claims, rows.Err()
}

// CountClaims returns the number of journaled claims.
func (s *Storage) CountClaims() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM claim_alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count claim alerts: %w", err)
	}
	return n, nil
}

// AddIdleAlert journals an idle notification.
func (s *Storage) AddIdleAlert(ev *models.IdleEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO idle_alerts (id, last_claim_at, silent_for_ns, tracked_entries, detected_at)
		VALUES (?,?,?,?,?)`,
		ev.ID, ev.LastClaimAt.UnixNano(), int64(ev.SilentFor), ev.TrackedEntries, ev.DetectedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert idle alert: %w", err)
	}
	return nil
}

// LastIdleAlert returns the most recent idle alert, or nil when none exists.
func (s *Storage) LastIdleAlert() (*models.IdleEvent, error) {
	row := s.db.QueryRow(`
		SELECT id, last_claim_at, silent_for_ns, tracked_entries, detected_at
		FROM idle_alerts ORDER BY detected_at DESC LIMIT 1`)

	var ev models.IdleEvent
	var lastClaimNano, silentNano, detectedNano int64
	err := row.Scan(&ev.ID, &lastClaimNano, &silentNano, &ev.TrackedEntries, &detectedNano)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load idle alert: %w", err)
	}
	ev.LastClaimAt = time.Unix(0, lastClaimNano)
	ev.SilentFor = time.Duration(silentNano)
	ev.DetectedAt = time.Unix(0, detectedNano)
	return &ev, nil
}

// Rotate keeps at most maxRows newest rows in each journal table.
func (s *Storage) Rotate() error {
	if s.maxRows <= 0 {
		return nil
	}
	for _, table := range []string{"claim_alerts", "idle_alerts"} {
		_, err := s.db.Exec(`
			DELETE FROM `+table+` WHERE id NOT IN (
				SELECT id FROM `+table+` ORDER BY detected_at DESC LIMIT ?
			)`, s.maxRows)
		if err != nil {
			return fmt.Errorf("failed to rotate %s: %w", table, err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
