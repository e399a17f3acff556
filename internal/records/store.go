// Package records provides the append-only SQLite ledger of execution
// attempts. Records are written once per attempt and never mutated; the
// retry engine and status surfaces query it for history and aggregates.
package records

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mbright/conductor/pkg/models"
)

// Store wraps an SQLite database holding execution records.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens the record store at the given path.
// It creates the parent directories if they don't exist.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for concurrent reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// Migrate applies all pending schema migrations.
func (s *Store) Migrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Create schema version table
	_, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	// Get current version
	var currentVersion int
	row := s.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Records},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Records = `
CREATE TABLE IF NOT EXISTS execution_records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	skill_id TEXT NOT NULL,
	input TEXT,
	output TEXT,
	status TEXT NOT NULL,
	error_kind TEXT,
	error_message TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	retry_count INTEGER NOT NULL DEFAULT 0,
	stage_id TEXT,
	role_id TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_skill_id ON execution_records(skill_id);
CREATE INDEX IF NOT EXISTS idx_records_status ON execution_records(status);
`

// Append writes one execution record. Records are append-only; there is no
// update or delete path.
func (s *Store) Append(rec *models.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	input, err := marshalPayload(rec.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	output, err := marshalPayload(rec.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}

	_, err = s.conn.Exec(`
		INSERT INTO execution_records
		(skill_id, input, output, status, error_kind, error_message, duration_ms, retry_count, stage_id, role_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SkillID, input, output, string(rec.Status), string(rec.ErrorKind),
		rec.ErrorMessage, rec.Duration.Milliseconds(), rec.RetryCount,
		rec.StageID, rec.RoleID, formatTime(rec.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// History returns the most recent records for a skill, newest first.
// A limit of zero or less returns all records for the skill.
func (s *Store) History(skillID string, limit int) ([]models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT skill_id, input, output, status, error_kind, error_message, duration_ms, retry_count, stage_id, role_id, created_at
		FROM execution_records WHERE skill_id = ? ORDER BY seq DESC`
	args := []any{skillID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Recent returns the most recent records across all skills, newest first.
func (s *Store) Recent(limit int) ([]models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(`
		SELECT skill_id, input, output, status, error_kind, error_message, duration_ms, retry_count, stage_id, role_id, created_at
		FROM execution_records ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// SuccessRate returns the fraction of successful attempts for a skill,
// in [0, 1]. A skill with no recorded attempts has a rate of zero.
func (s *Store) SuccessRate(skillID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total, succeeded int
	row := s.conn.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0)
		FROM execution_records WHERE skill_id = ?`, skillID)
	if err := row.Scan(&total, &succeeded); err != nil {
		return 0, fmt.Errorf("query success rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(succeeded) / float64(total), nil
}

// AverageDuration returns the mean attempt duration for a skill.
// A skill with no recorded attempts has an average of zero.
func (s *Store) AverageDuration(skillID string) (time.Duration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avgMs sql.NullFloat64
	row := s.conn.QueryRow(`
		SELECT AVG(duration_ms) FROM execution_records WHERE skill_id = ?`, skillID)
	if err := row.Scan(&avgMs); err != nil {
		return 0, fmt.Errorf("query average duration: %w", err)
	}
	if !avgMs.Valid {
		return 0, nil
	}
	return time.Duration(avgMs.Float64 * float64(time.Millisecond)), nil
}

// CountByStatus returns attempt counts per record status for a skill.
func (s *Store) CountByStatus(skillID string) (map[models.RecordStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.conn.Query(`
		SELECT status, COUNT(*) FROM execution_records WHERE skill_id = ? GROUP BY status`, skillID)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RecordStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[models.RecordStatus(status)] = n
	}
	return counts, rows.Err()
}

// scanRecords reads all rows into execution records.
func scanRecords(rows *sql.Rows) ([]models.ExecutionRecord, error) {
	var recs []models.ExecutionRecord
	for rows.Next() {
		var rec models.ExecutionRecord
		var input, output, errorKind, errorMessage, stageID, roleID sql.NullString
		var durationMs int64
		var createdAt string

		if err := rows.Scan(&rec.SkillID, &input, &output, (*string)(&rec.Status),
			&errorKind, &errorMessage, &durationMs, &rec.RetryCount,
			&stageID, &roleID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		if input.Valid && input.String != "" {
			if err := json.Unmarshal([]byte(input.String), &rec.Input); err != nil {
				return nil, fmt.Errorf("unmarshal input: %w", err)
			}
		}
		if output.Valid && output.String != "" {
			if err := json.Unmarshal([]byte(output.String), &rec.Output); err != nil {
				return nil, fmt.Errorf("unmarshal output: %w", err)
			}
		}
		rec.ErrorKind = models.ErrorKind(errorKind.String)
		rec.ErrorMessage = errorMessage.String
		rec.StageID = stageID.String
		rec.RoleID = roleID.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		if t, err := parseTime(createdAt); err == nil {
			rec.Timestamp = t
		}

		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// marshalPayload serializes a payload map, mapping nil to the empty string.
func marshalPayload(m map[string]any) (string, error) {
	if m == nil {
		return "", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
