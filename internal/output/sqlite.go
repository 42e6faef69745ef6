package output

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// SQLiteWriter writes scans and their records to a SQLite database
type SQLiteWriter struct {
	db *sql.DB
}

// compile-time interface check
var _ Writer = (*SQLiteWriter)(nil)

// NewSQLiteWriter opens (or creates) the database at outputPath
func NewSQLiteWriter(outputPath string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", outputPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	writer := &SQLiteWriter{db: db}
	if err := writer.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return writer, nil
}

// createSchema creates the database schema
func (w *SQLiteWriter) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		scan_id TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		hostname TEXT NOT NULL,
		scan_time TEXT NOT NULL,
		duration_ms INTEGER NOT NULL,
		rules_version TEXT,
		auxiliary_available BOOLEAN NOT NULL,
		total_entries INTEGER NOT NULL,
		skipped_entries INTEGER NOT NULL,
		flagged INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL REFERENCES scans(scan_id),
		executed_at TEXT NOT NULL,
		execution_time TEXT NOT NULL,
		path TEXT NOT NULL,
		raw_path TEXT,
		sid TEXT NOT NULL,
		user TEXT,
		trust TEXT NOT NULL,
		signer TEXT,
		in_current_session BOOLEAN NOT NULL,
		pattern_matches TEXT NOT NULL DEFAULT '[]',
		replace_findings TEXT NOT NULL DEFAULT '[]'
	);

	CREATE INDEX IF NOT EXISTS idx_executions_scan ON executions(scan_id);
	CREATE INDEX IF NOT EXISTS idx_executions_trust ON executions(trust);
	CREATE INDEX IF NOT EXISTS idx_executions_executed_at ON executions(executed_at);
	`

	_, err := w.db.Exec(schema)
	return err
}

// WriteResult inserts the scan and its records in one transaction
func (w *SQLiteWriter) WriteResult(result *types.ScanResult) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO scans (
			scan_id, version, hostname, scan_time, duration_ms, rules_version,
			auxiliary_available, total_entries, skipped_entries, flagged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ScanID,
		result.Version,
		result.Host.Hostname,
		result.ScanTime.UTC().Format(time.RFC3339),
		result.ScanDurationMs,
		result.RulesVersion,
		result.AuxiliaryAvailable,
		result.Summary.TotalEntries,
		result.Summary.SkippedEntries,
		result.Summary.Flagged,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert scan: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO executions (
			scan_id, executed_at, execution_time, path, raw_path, sid, user,
			trust, signer, in_current_session, pattern_matches, replace_findings
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range result.Records {
		rec := &result.Records[i]

		matchesJSON, err := json.Marshal(rec.PatternMatches)
		if err != nil {
			tx.Rollback()
			return err
		}
		findingsJSON, err := json.Marshal(rec.AuxiliaryFindings)
		if err != nil {
			tx.Rollback()
			return err
		}

		_, err = stmt.Exec(
			result.ScanID,
			rec.ExecutedAt.UTC().Format(time.RFC3339),
			rec.ExecutionTime,
			rec.Path,
			rec.RawPath,
			rec.SID,
			rec.User,
			string(rec.Trust),
			rec.Signer,
			rec.InCurrentSession,
			string(matchesJSON),
			string(findingsJSON),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert execution %s: %w", rec.Path, err)
		}
	}

	return tx.Commit()
}

// Close closes the database
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
