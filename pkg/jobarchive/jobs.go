package jobarchive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/batchlog/pkg/event"
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/jobstate"
)

// ArchivedJob is one retired job record.
type ArchivedJob struct {
	Job        jobid.ID
	CleanSeq   uint64
	ArchivedAt time.Time
	Record     *jobstate.JobRecord
}

// Filter selects archived jobs. Zero fields match everything.
type Filter struct {
	Queue       string
	User        string
	Status      event.Status
	EndedAfter  time.Time
	EndedBefore time.Time
	Limit       int
}

// ArchiveJob stores the final record of a cleaned job. Archiving the same
// clean position twice keeps the first row.
func ArchiveJob(ctx context.Context, db *sql.DB, rec *jobstate.JobRecord, cleanSeq uint64, at time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if rec == nil {
		return fmt.Errorf("archive job: record is nil")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO archived_jobs
		 (job_base, job_index, clean_seq, lineage, status, queue, user_name, job_name,
		  submit_time, start_time, end_time, exit_status, exec_hosts, record_json, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_base, job_index, clean_seq) DO NOTHING`,
		rec.ID.Base, rec.ID.Index, int64(cleanSeq), rec.Lineage, rec.Status.String(),
		rec.Queue, rec.User, nullString(rec.JobName),
		unixOrNil(rec.SubmitTime), unixOrNil(rec.StartTime), unixOrNil(rec.EndTime),
		rec.ExitStatus, nullString(strings.Join(rec.ExecHosts, " ")),
		string(data), at.UTC().Unix())
	if err != nil {
		return fmt.Errorf("archive job %s: %w", rec.ID, err)
	}
	return nil
}

// GetArchivedJobs returns every archived incarnation of id, oldest first.
func GetArchivedJobs(ctx context.Context, db *sql.DB, id jobid.ID) ([]ArchivedJob, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := db.QueryContext(ctx,
		`SELECT clean_seq, archived_at, record_json
		 FROM archived_jobs
		 WHERE job_base = ? AND job_index = ?
		 ORDER BY clean_seq`,
		id.Base, id.Index)
	if err != nil {
		return nil, fmt.Errorf("get archived job: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanJobs(rows)
}

// QueryArchivedJobs returns archived jobs matching f, most recently ended first.
func QueryArchivedJobs(ctx context.Context, db *sql.DB, f Filter) ([]ArchivedJob, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var where []string
	var args []any
	if f.Queue != "" {
		where = append(where, "queue = ?")
		args = append(args, f.Queue)
	}
	if f.User != "" {
		where = append(where, "user_name = ?")
		args = append(args, f.User)
	}
	if f.Status != event.StatusNone {
		where = append(where, "status = ?")
		args = append(args, f.Status.String())
	}
	if !f.EndedAfter.IsZero() {
		where = append(where, "end_time >= ?")
		args = append(args, f.EndedAfter.Unix())
	}
	if !f.EndedBefore.IsZero() {
		where = append(where, "end_time < ?")
		args = append(args, f.EndedBefore.Unix())
	}

	q := `SELECT clean_seq, archived_at, record_json FROM archived_jobs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY end_time DESC, clean_seq DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query archived jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanJobs(rows)
}

// CountArchivedJobs returns the number of archived rows.
func CountArchivedJobs(ctx context.Context, db *sql.DB) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var n int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archived_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archived jobs: %w", err)
	}
	return n, nil
}

// PurgeArchivedJobs deletes rows archived before olderThan.
func PurgeArchivedJobs(ctx context.Context, db *sql.DB, olderThan time.Time) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	res, err := db.ExecContext(ctx, `DELETE FROM archived_jobs WHERE archived_at < ?`, olderThan.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge archived jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge archived jobs: %w", err)
	}
	return n, nil
}

func scanJobs(rows *sql.Rows) ([]ArchivedJob, error) {
	var out []ArchivedJob
	for rows.Next() {
		var (
			seq        int64
			archivedAt int64
			raw        string
		)
		if err := rows.Scan(&seq, &archivedAt, &raw); err != nil {
			return nil, fmt.Errorf("scan archived job: %w", err)
		}
		var rec jobstate.JobRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode archived job: %w", err)
		}
		out = append(out, ArchivedJob{
			Job:        rec.ID,
			CleanSeq:   uint64(seq),
			ArchivedAt: time.Unix(archivedAt, 0).UTC(),
			Record:     &rec,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived jobs: %w", err)
	}
	return out, nil
}

// Archiver adapts a database to the scheduler's archive hook.
type Archiver struct {
	db  *sql.DB
	now func() time.Time
}

func NewArchiver(db *sql.DB) *Archiver {
	return &Archiver{db: db, now: time.Now}
}

// Archive stores rec, retired by the JOB_CLEAN at seq.
func (a *Archiver) Archive(ctx context.Context, rec *jobstate.JobRecord, seq uint64) error {
	return ArchiveJob(ctx, a.db, rec, seq, a.now())
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
