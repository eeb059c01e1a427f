package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"openrecords/pkg/jobs"
)

type fakeStore struct {
	due    []jobs.Job
	done   []string
	failed map[string]string     // id -> error message
	retry  map[string]*time.Time // id -> retry time (nil = permanent)
}

func newFakeStore(due ...jobs.Job) *fakeStore {
	return &fakeStore{
		due:    due,
		failed: make(map[string]string),
		retry:  make(map[string]*time.Time),
	}
}

func (f *fakeStore) Schedule(_ context.Context, name string, args map[string]any, runAt time.Time) (*jobs.Job, error) {
	return &jobs.Job{Name: name, Args: args, RunAt: runAt}, nil
}

func (f *fakeStore) ClaimDue(_ context.Context, _ time.Time, limit int) ([]jobs.Job, error) {
	claimed := f.due
	if len(claimed) > limit {
		claimed = claimed[:limit]
	}
	f.due = nil
	return claimed, nil
}

func (f *fakeStore) MarkDone(_ context.Context, id string) error {
	f.done = append(f.done, id)
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id, errMsg string, retryAt *time.Time) error {
	f.failed[id] = errMsg
	f.retry[id] = retryAt
	return nil
}

func (f *fakeStore) PendingCount(context.Context) (int, error) { return len(f.due), nil }
func (f *fakeStore) EnsureTable(context.Context) error         { return nil }

// TestPollDispatches verifies that a due job reaches its registered handler
// with its arguments and is marked done on success.
func TestPollDispatches(t *testing.T) {
	store := newFakeStore(jobs.Job{ID: "j1", Name: "echo", Args: map[string]any{"v": "hello"}})
	w := New(store)

	var got string
	w.Register("echo", func(_ context.Context, args map[string]any) error {
		got, _ = args["v"].(string)
		return nil
	})
	w.poll(context.Background())

	if got != "hello" {
		t.Errorf("handler saw %q, want hello", got)
	}
	if len(store.done) != 1 || store.done[0] != "j1" {
		t.Errorf("done = %v, want [j1]", store.done)
	}
}

// TestRetryBackoff verifies linear backoff: a failed attempt under the cap
// reschedules attempts×delay out, and an attempt at the cap fails the job
// permanently.
func TestRetryBackoff(t *testing.T) {
	store := newFakeStore(
		jobs.Job{ID: "young", Name: "boom", Attempts: 2},
		jobs.Job{ID: "spent", Name: "boom", Attempts: 5},
	)
	w := New(store)
	w.Register("boom", func(context.Context, map[string]any) error {
		return errors.New("transient")
	})

	before := time.Now()
	w.poll(context.Background())

	retryAt := store.retry["young"]
	if retryAt == nil {
		t.Fatal("young job failed permanently, want a retry")
	}
	wantAt := before.Add(2 * w.RetryDelay)
	if retryAt.Before(wantAt) || retryAt.Sub(wantAt) > time.Second {
		t.Errorf("retry at %v, want about %v", retryAt, wantAt)
	}
	if store.retry["spent"] != nil {
		t.Error("job at the attempt cap was rescheduled")
	}
	if store.failed["spent"] != "transient" {
		t.Errorf("spent error = %q", store.failed["spent"])
	}
}

// TestUnknownJobFailsPermanently verifies that a job with no registered
// handler is failed once and never retried; retrying could not help it.
func TestUnknownJobFailsPermanently(t *testing.T) {
	store := newFakeStore(jobs.Job{ID: "j1", Name: "nobody.home", Attempts: 1})
	w := New(store)
	w.poll(context.Background())

	if _, ok := store.failed["j1"]; !ok {
		t.Fatal("job not failed")
	}
	if store.retry["j1"] != nil {
		t.Error("unhandled job was rescheduled")
	}
}

// TestPanicIsolation verifies that a panicking handler fails only its own
// job; the rest of the claimed batch still runs.
func TestPanicIsolation(t *testing.T) {
	store := newFakeStore(
		jobs.Job{ID: "bad", Name: "panic", Attempts: 5},
		jobs.Job{ID: "good", Name: "fine"},
	)
	w := New(store)
	w.Register("panic", func(context.Context, map[string]any) error {
		panic("handler bug")
	})
	w.Register("fine", func(context.Context, map[string]any) error { return nil })

	w.poll(context.Background())

	if !strings.HasPrefix(store.failed["bad"], "panic:") {
		t.Errorf("bad job error = %q", store.failed["bad"])
	}
	if len(store.done) != 1 || store.done[0] != "good" {
		t.Errorf("done = %v, want [good]", store.done)
	}
}
