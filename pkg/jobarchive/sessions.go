package jobarchive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the outcome of a replay session.
type SessionStatus string

const (
	SessionRunning     SessionStatus = "running"
	SessionComplete    SessionStatus = "complete"
	SessionInterrupted SessionStatus = "interrupted"
	SessionFailed      SessionStatus = "failed"
)

// Session records one replay of the event log.
type Session struct {
	ID        string
	LogDir    string
	From      uint64
	To        uint64
	StartedAt time.Time
	EndedAt   *time.Time
	Applied   int64
	Skipped   int64
	Status    SessionStatus
	Error     string
}

// CreateSession records the start of a replay from position from.
func CreateSession(ctx context.Context, db *sql.DB, logDir string, from uint64) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Session{
		ID:        uuid.NewString(),
		LogDir:    logDir,
		From:      from,
		StartedAt: time.Now().UTC().Truncate(time.Second),
		Status:    SessionRunning,
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO replay_sessions (session_id, log_dir, from_pos, started_at, status)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.LogDir, int64(s.From), s.StartedAt.Unix(), string(s.Status))
	if err != nil {
		return nil, fmt.Errorf("create replay session: %w", err)
	}
	return s, nil
}

// FinishSession stores the final counters and status of a session.
func FinishSession(ctx context.Context, db *sql.DB, s *Session) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ended := time.Now().UTC().Truncate(time.Second)
	s.EndedAt = &ended
	_, err := db.ExecContext(ctx,
		`UPDATE replay_sessions
		 SET to_pos = ?, ended_at = ?, applied = ?, skipped = ?, status = ?, error = ?
		 WHERE session_id = ?`,
		int64(s.To), ended.Unix(), s.Applied, s.Skipped, string(s.Status), nullString(s.Error), s.ID)
	if err != nil {
		return fmt.Errorf("finish replay session: %w", err)
	}
	return nil
}

// LatestSession returns the most recently started session for logDir, or
// nil when there is none.
func LatestSession(ctx context.Context, db *sql.DB, logDir string) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		s       Session
		to      sql.NullInt64
		from    int64
		started int64
		ended   sql.NullInt64
		status  string
		errText sql.NullString
	)
	err := db.QueryRowContext(ctx,
		`SELECT session_id, log_dir, from_pos, to_pos, started_at, ended_at, applied, skipped, status, error
		 FROM replay_sessions
		 WHERE log_dir = ?
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT 1`, logDir).Scan(
		&s.ID, &s.LogDir, &from, &to, &started, &ended, &s.Applied, &s.Skipped, &status, &errText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest replay session: %w", err)
	}
	s.From = uint64(from)
	s.To = uint64(to.Int64)
	s.StartedAt = time.Unix(started, 0).UTC()
	if ended.Valid {
		t := time.Unix(ended.Int64, 0).UTC()
		s.EndedAt = &t
	}
	s.Status = SessionStatus(status)
	s.Error = errText.String
	return &s, nil
}
