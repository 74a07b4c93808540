// Package store persists asynchronous thread jobs in SQLite so their status
// survives restarts and can be polled after the fetch finished.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/use-agent/threadgrab/models"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by GetJob for unknown ids.
var ErrNotFound = errors.New("store: job not found")

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Jobs finish on background goroutines; one connection keeps SQLite
	// writers from tripping over each other.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateJob records a new job in the processing state.
func (s *Store) CreateJob(ctx context.Context, url, webhookURL string) (*models.ThreadJob, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("url is required")
	}
	now := s.now().UTC()
	job := &models.ThreadJob{
		ID:         uuid.NewString(),
		URL:        url,
		Status:     models.JobProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
		WebhookURL: webhookURL,
	}

	var hook sql.NullString
	if webhookURL != "" {
		hook = sql.NullString{String: webhookURL, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO thread_jobs(id, url, status, webhook_url, created_at, updated_at) VALUES(?, ?, ?, ?, ?, ?)`,
		job.ID, job.URL, job.Status, hook, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// CompleteJob stores the result and marks the job completed.
func (s *Store) CompleteJob(ctx context.Context, id string, result *models.ThreadResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.finish(ctx, id, models.JobCompleted, string(raw), nil)
}

// FailJob stores the error and marks the job failed.
func (s *Store) FailJob(ctx context.Context, id string, detail *models.ErrorDetail) error {
	return s.finish(ctx, id, models.JobFailed, "", detail)
}

func (s *Store) finish(ctx context.Context, id, status, result string, detail *models.ErrorDetail) error {
	var res, code, msg sql.NullString
	if result != "" {
		res = sql.NullString{String: result, Valid: true}
	}
	if detail != nil {
		code = sql.NullString{String: detail.Code, Valid: true}
		msg = sql.NullString{String: detail.Message, Valid: true}
	}

	out, err := s.db.ExecContext(ctx,
		`UPDATE thread_jobs SET status = ?, result = ?, error_code = ?, error_msg = ?, updated_at = ? WHERE id = ?`,
		status, res, code, msg, s.now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := out.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*models.ThreadJob, error) {
	var (
		job                  models.ThreadJob
		hook, res, code, msg sql.NullString
		created, updated     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, url, status, webhook_url, result, error_code, error_msg, created_at, updated_at FROM thread_jobs WHERE id = ?`,
		id,
	).Scan(&job.ID, &job.URL, &job.Status, &hook, &res, &code, &msg, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}

	job.WebhookURL = hook.String
	job.CreatedAt = time.UnixMilli(created).UTC()
	job.UpdatedAt = time.UnixMilli(updated).UTC()
	if res.Valid {
		var result models.ThreadResult
		if err := json.Unmarshal([]byte(res.String), &result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &result
	}
	if code.Valid {
		job.Error = &models.ErrorDetail{Code: code.String, Message: msg.String}
	}
	return &job, nil
}

// PurgeBefore deletes jobs last updated before cutoff and returns how many
// were removed.
func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	out, err := s.db.ExecContext(ctx, `DELETE FROM thread_jobs WHERE updated_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge jobs: %w", err)
	}
	return out.RowsAffected()
}
