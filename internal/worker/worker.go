// Package worker runs the delayed-job loop: poll Postgres for due jobs,
// dispatch each to its registered handler, retry failures with linear
// backoff up to a cap.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"openrecords/pkg/jobs"
)

// Handler executes one job. A returned error marks the attempt failed.
type Handler func(ctx context.Context, args map[string]any) error

// Worker polls for due jobs and runs them.
type Worker struct {
	store    jobs.Store
	handlers map[string]Handler

	// PollInterval defaults to 5 seconds, BatchSize to 10.
	PollInterval time.Duration
	BatchSize    int
	// MaxAttempts caps retries; RetryDelay grows linearly with the attempt
	// count.
	MaxAttempts int
	RetryDelay  time.Duration
}

// New creates a Worker with default tuning.
func New(store jobs.Store) *Worker {
	return &Worker{
		store:        store,
		handlers:     make(map[string]Handler),
		PollInterval: 5 * time.Second,
		BatchSize:    10,
		MaxAttempts:  5,
		RetryDelay:   time.Minute,
	}
}

// Register binds a handler to a job name. Scheduling a name with no handler
// fails the job on its first claim.
func (w *Worker) Register(name string, h Handler) {
	w.handlers[name] = h
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Println("worker: running, polling for jobs")

	// Catch up immediately on startup
	w.poll(ctx)

	ticker := time.NewTicker(w.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("worker: shutting down")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: panic in poll: %v", r)
		}
	}()

	claimed, err := w.store.ClaimDue(ctx, time.Now(), w.BatchSize)
	if err != nil {
		log.Printf("worker: claim due jobs: %v", err)
		return
	}
	for i := range claimed {
		w.runJob(ctx, &claimed[i])
	}
}

func (w *Worker) runJob(ctx context.Context, j *jobs.Job) {
	h, ok := w.handlers[j.Name]
	if !ok {
		log.Printf("worker: no handler for %q, failing job %s", j.Name, j.ID)
		if err := w.store.MarkFailed(ctx, j.ID, "no handler registered", nil); err != nil {
			log.Printf("worker: mark failed %s: %v", j.ID, err)
		}
		return
	}

	err := w.runHandler(ctx, h, j)
	if err == nil {
		if err := w.store.MarkDone(ctx, j.ID); err != nil {
			log.Printf("worker: mark done %s: %v", j.ID, err)
		}
		return
	}

	log.Printf("worker: job %s (%s) attempt %d failed: %v", j.ID, j.Name, j.Attempts, err)
	var retryAt *time.Time
	if j.Attempts < w.MaxAttempts {
		at := time.Now().Add(time.Duration(j.Attempts) * w.RetryDelay)
		retryAt = &at
	}
	if err := w.store.MarkFailed(ctx, j.ID, err.Error(), retryAt); err != nil {
		log.Printf("worker: mark failed %s: %v", j.ID, err)
	}
}

// runHandler isolates handler panics so one bad job never takes the loop
// down.
func (w *Worker) runHandler(ctx context.Context, h Handler, j *jobs.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, j.Args)
}
