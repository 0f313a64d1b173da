// Package jobarchive keeps finished jobs after they leave the live registry.
//
// A JOB_CLEAN removes a terminal job from memory; its final record is written
// here together with the log position of the clean. The same id may appear
// more than once when ids wrap or a job is requeued and cleaned again.
package jobarchive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// Path is a local database file. ":memory:" opens a private in-memory database.
	Path string

	// URL is a libsql/Turso URL, e.g. libsql://archive.turso.io.
	URL string

	// AuthToken is added to URL DSNs as authToken=... unless present.
	AuthToken string
}

func buildDSN(cfg Config) (string, error) {
	if u := strings.TrimSpace(cfg.URL); u != "" {
		return addAuthToken(u, cfg.AuthToken)
	}

	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return "", errors.New("archive path or url is required")
	}
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "libsql:") {
		return path, nil
	}
	if strings.HasPrefix(path, "file:") {
		parsed, err := url.Parse(path)
		if err != nil {
			return "", fmt.Errorf("invalid archive path: %w", err)
		}
		local := parsed.Path
		if local == "" {
			local = parsed.Opaque
		}
		if err := ensureDir(strings.TrimPrefix(local, "//")); err != nil {
			return "", err
		}
		return path, nil
	}

	if err := ensureDir(path); err != nil {
		return "", err
	}
	return "file:" + filepath.Clean(path), nil
}

func addAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid archive url: %w", err)
	}
	q := parsed.Query()
	if q.Get("authToken") == "" {
		q.Set("authToken", token)
		parsed.RawQuery = q.Encode()
	}
	return parsed.String(), nil
}

// configureLocal applies WAL and a busy timeout to file databases. The
// archive is written by one process, so a single connection is kept.
func configureLocal(ctx context.Context, db *sql.DB, dsn string) error {
	if dsn == ":memory:" {
		// Every pooled connection would see its own empty database.
		db.SetMaxOpenConns(1)
		return nil
	}
	if !strings.HasPrefix(dsn, "file:") {
		return nil
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
		return fmt.Errorf("enable WAL mode: %w", err)
	}
	var busyTimeout int
	if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout=5000").Scan(&busyTimeout); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- data directories use 0755 for multi-user access compatibility
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	return nil
}
