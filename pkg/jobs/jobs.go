// Package jobs is the delayed-job primitive: schedule a named function with
// arguments for deferred execution. Jobs live in Postgres and are claimed and
// run by the worker loop, which owns retry and backoff.
package jobs

import (
	"context"
	"time"
)

// Job statuses.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Job is a unit of deferred work.
type Job struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Args      map[string]any `json:"args"`
	RunAt     time.Time      `json:"run_at"`
	Status    string         `json:"status"`
	Attempts  int            `json:"attempts"`
	LastError string         `json:"last_error,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Scheduler dispatches deferred work. It is the only interface most packages
// need; the full Store is for the worker.
type Scheduler interface {
	Schedule(ctx context.Context, name string, args map[string]any, runAt time.Time) (*Job, error)
}

// Store is the contract for job persistence.
type Store interface {
	Scheduler
	// ClaimDue marks up to limit due pending jobs as running and returns them.
	// Concurrent workers never claim the same job.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	MarkDone(ctx context.Context, id string) error
	// MarkFailed records the error. A non-nil retryAt reschedules the job;
	// nil fails it permanently.
	MarkFailed(ctx context.Context, id, errMsg string, retryAt *time.Time) error
	PendingCount(ctx context.Context) (int, error)
	EnsureTable(ctx context.Context) error
}
