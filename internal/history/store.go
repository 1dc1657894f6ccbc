// Package history implements the persistent audit log for Veritas.
//
// Every delta applied to the playbook store — including no_action — is
// recorded here with its case id, verdict, and the partition version it
// moved. The log answers "what did case X change" long after the playbook's
// own history snapshots have been pruned. It uses SQLite in WAL mode so the
// MCP server's concurrent tool calls never block each other on reads.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// Entry is one recorded playbook update.
type Entry struct {
	ID            int64  `json:"id"`
	CaseID        string `json:"case_id"`
	Action        string `json:"action"`
	TargetMemory  string `json:"target_memory"`
	RuleID        string `json:"rule_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Verdict       string `json:"verdict,omitempty"`
	VersionBefore string `json:"version_before"`
	VersionAfter  string `json:"version_after"`
	AppliedAt     string `json:"applied_at"`
}

// AddEntryParams holds the input for recording an applied update.
type AddEntryParams struct {
	CaseID        string
	Action        string
	TargetMemory  string
	RuleID        string
	Reason        string
	Verdict       string
	VersionBefore string
	VersionAfter  string
}

// MemoryCounts aggregates recorded updates per partition.
type MemoryCounts struct {
	Detection int `json:"detection"`
	Trust     int `json:"trust"`
}

// Config holds history store configuration.
type Config struct {
	DataDir string
}

// Store is the audit log backed by SQLite.
type Store struct {
	db *sql.DB
}

// New creates a Store, creating the data directory and running migrations
// if needed.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("history: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "history.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("history: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("history: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS updates (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			case_id        TEXT NOT NULL,
			action         TEXT NOT NULL,
			target_memory  TEXT NOT NULL,
			rule_id        TEXT,
			reason         TEXT,
			verdict        TEXT,
			version_before TEXT NOT NULL,
			version_after  TEXT NOT NULL,
			applied_at     TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_updates_case    ON updates(case_id);
		CREATE INDEX IF NOT EXISTS idx_updates_memory  ON updates(target_memory);
		CREATE INDEX IF NOT EXISTS idx_updates_applied ON updates(applied_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one applied update to the log. An empty case id gets a
// generated UUID so the entry stays addressable.
func (s *Store) Record(p AddEntryParams) (int64, error) {
	caseID := p.CaseID
	if caseID == "" {
		caseID = uuid.NewString()
	}

	res, err := s.db.Exec(
		`INSERT INTO updates (case_id, action, target_memory, rule_id, reason, verdict, version_before, version_after, applied_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		caseID, p.Action, p.TargetMemory, p.RuleID, p.Reason, p.Verdict,
		p.VersionBefore, p.VersionAfter, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("history: record update: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns the latest entries, newest first.
func (s *Store) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.queryEntries(
		`SELECT id, case_id, action, target_memory, COALESCE(rule_id, ''), COALESCE(reason, ''), COALESCE(verdict, ''),
		        version_before, version_after, applied_at
		 FROM updates ORDER BY id DESC LIMIT ?`, limit)
}

// ByCase returns every entry recorded for a case id, oldest first.
func (s *Store) ByCase(caseID string) ([]Entry, error) {
	return s.queryEntries(
		`SELECT id, case_id, action, target_memory, COALESCE(rule_id, ''), COALESCE(reason, ''), COALESCE(verdict, ''),
		        version_before, version_after, applied_at
		 FROM updates WHERE case_id = ? ORDER BY id ASC`, caseID)
}

// Counts returns how many updates each partition has absorbed.
func (s *Store) Counts() (*MemoryCounts, error) {
	rows, err := s.db.Query(`SELECT target_memory, COUNT(*) FROM updates GROUP BY target_memory`)
	if err != nil {
		return nil, fmt.Errorf("history: counts: %w", err)
	}
	defer rows.Close()

	counts := &MemoryCounts{}
	for rows.Next() {
		var memory string
		var n int
		if err := rows.Scan(&memory, &n); err != nil {
			return nil, err
		}
		switch memory {
		case "detection":
			counts.Detection = n
		case "trust":
			counts.Trust = n
		}
	}
	return counts, rows.Err()
}

// DeleteCase removes every entry for a case id and reports how many rows
// went away.
func (s *Store) DeleteCase(caseID string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM updates WHERE case_id = ?`, caseID)
	if err != nil {
		return 0, fmt.Errorf("history: delete case %q: %w", caseID, err)
	}
	return res.RowsAffected()
}

func (s *Store) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query updates: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.CaseID, &e.Action, &e.TargetMemory, &e.RuleID,
			&e.Reason, &e.Verdict, &e.VersionBefore, &e.VersionAfter, &e.AppliedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
