package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"openrecords/internal/db"
)

// PgStore is a PostgreSQL-backed job store.
type PgStore struct {
	db db.Querier
}

// NewPgStore creates a PgStore.
func NewPgStore(q db.Querier) *PgStore {
	return &PgStore{db: q}
}

// EnsureTable creates the jobs table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			args       JSONB NOT NULL DEFAULT '{}',
			run_at     TIMESTAMPTZ NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending',
			attempts   INTEGER NOT NULL DEFAULT 0,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(status, run_at)`)
	return err
}

// Schedule inserts a pending job.
func (s *PgStore) Schedule(ctx context.Context, name string, args map[string]any, runAt time.Time) (*Job, error) {
	if args == nil {
		args = map[string]any{}
	}
	j := &Job{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      name,
		Args:      args,
		RunAt:     runAt.Truncate(time.Microsecond),
		Status:    StatusPending,
		CreatedAt: time.Now().Truncate(time.Microsecond),
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO jobs (id, name, args, run_at, status, created_at)
		VALUES ($1, $2, $3::jsonb, $4, 'pending', $5)`,
		j.ID, j.Name, string(argsJSON), j.RunAt, j.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("schedule %s: %w", name, err)
	}
	return j, nil
}

// ClaimDue atomically claims due pending jobs. SKIP LOCKED keeps concurrent
// workers from claiming the same row.
func (s *PgStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE jobs SET status = 'running', attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM jobs
			WHERE status = 'pending' AND run_at <= $1
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, name, args, run_at, status, attempts, last_error, created_at`,
		now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	defer rows.Close()

	var claimed []Job
	for rows.Next() {
		var j Job
		var argsJSON []byte
		if err := rows.Scan(&j.ID, &j.Name, &argsJSON, &j.RunAt, &j.Status, &j.Attempts, &j.LastError, &j.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(argsJSON, &j.Args); err != nil {
			j.Args = map[string]any{}
		}
		claimed = append(claimed, j)
	}
	return claimed, rows.Err()
}

// MarkDone finishes a job.
func (s *PgStore) MarkDone(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `UPDATE jobs SET status = 'done' WHERE id = $1`, id)
	return err
}

// MarkFailed records the error and either reschedules or fails the job.
func (s *PgStore) MarkFailed(ctx context.Context, id, errMsg string, retryAt *time.Time) error {
	if retryAt != nil {
		_, err := s.db.Exec(ctx,
			`UPDATE jobs SET status = 'pending', run_at = $1, last_error = $2 WHERE id = $3`,
			*retryAt, errMsg, id)
		return err
	}
	_, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = 'failed', last_error = $1 WHERE id = $2`, errMsg, id)
	return err
}

// PendingCount returns the count of pending jobs.
func (s *PgStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'pending'`).Scan(&n)
	return n, err
}
