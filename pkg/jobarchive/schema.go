package jobarchive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const SchemaVersion = 2

// Migrate creates or upgrades the archive schema in place.
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS archived_jobs (
			job_base INTEGER NOT NULL,
			job_index INTEGER NOT NULL,
			-- clean_seq is the log position of the JOB_CLEAN that retired the record.
			clean_seq INTEGER NOT NULL,
			lineage INTEGER NOT NULL,
			status TEXT NOT NULL,
			queue TEXT NOT NULL,
			user_name TEXT NOT NULL,
			job_name TEXT,
			submit_time INTEGER,
			start_time INTEGER,
			end_time INTEGER,
			exit_status INTEGER NOT NULL,
			exec_hosts TEXT,
			record_json TEXT NOT NULL,
			archived_at INTEGER NOT NULL,
			PRIMARY KEY(job_base, job_index, clean_seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_archived_jobs_queue ON archived_jobs(queue);`,
		`CREATE INDEX IF NOT EXISTS idx_archived_jobs_user ON archived_jobs(user_name);`,
		`CREATE INDEX IF NOT EXISTS idx_archived_jobs_end_time ON archived_jobs(end_time);`,

		`CREATE TABLE IF NOT EXISTS replay_sessions (
			session_id TEXT PRIMARY KEY,
			log_dir TEXT NOT NULL,
			from_pos INTEGER NOT NULL,
			to_pos INTEGER,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			applied INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_replay_sessions_started ON replay_sessions(started_at);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	// v2: replay sessions record the log directory they read.
	if current == 1 {
		if _, err := tx.ExecContext(ctx, `ALTER TABLE replay_sessions ADD COLUMN log_dir TEXT NOT NULL DEFAULT '';`); err != nil {
			msg := err.Error()
			if !strings.Contains(msg, "duplicate column name") && !strings.Contains(msg, "already exists") {
				return fmt.Errorf("exec migration statement: %w", err)
			}
		}
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
