// Package triage implements the typed resolution actions on the staff task
// queue. Every action runs inside one transaction spanning the task row and
// whatever domain rows it touches; side effects that must not observe
// uncommitted state (emails, job dispatch) are deferred to after commit.
package triage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"openrecords/internal/db"
	"openrecords/pkg/account"
	"openrecords/pkg/activity"
	"openrecords/pkg/agency"
	"openrecords/pkg/comms"
	"openrecords/pkg/foia"
	"openrecords/pkg/jobs"
	"openrecords/pkg/mailer"
	"openrecords/pkg/task"
)

// ErrNoFlaggedObject is returned when a flagged task references nothing.
var ErrNoFlaggedObject = errors.New("flagged task has no flagged object")

// Stores bundles the per-domain stores a triage action may touch. Inside
// Transact they are all bound to the same transaction.
type Stores struct {
	Tasks    task.Store
	Comms    comms.Store
	FOIAs    foia.Store
	Agencies agency.Store
	Users    account.Store
}

// Hooks defers side effects until the surrounding transaction commits.
// Outside a transaction the hooks run immediately.
type Hooks interface {
	OnCommit(fn func(context.Context) error)
}

// UnitOfWork runs a function against transaction-bound stores.
type UnitOfWork interface {
	Transact(ctx context.Context, fn func(s Stores, h Hooks) error) error
}

// PgUnitOfWork binds fresh stores to a new transaction per call.
type PgUnitOfWork struct {
	Pool *pgxpool.Pool
}

// Transact implements UnitOfWork.
func (u *PgUnitOfWork) Transact(ctx context.Context, fn func(s Stores, h Hooks) error) error {
	return db.WithTx(ctx, u.Pool, func(tx pgx.Tx, hooks *db.TxHooks) error {
		return fn(Stores{
			Tasks:    task.NewPgStore(tx),
			Comms:    comms.NewPgStore(tx),
			FOIAs:    foia.NewPgStore(tx),
			Agencies: agency.NewPgStore(tx),
			Users:    account.NewPgStore(tx),
		}, hooks)
	})
}

// Service exposes the resolution actions and the inbound event handlers.
// Sender, Jobs and Notifications are only ever used from after-commit hooks.
type Service struct {
	UoW    UnitOfWork
	Jobs   jobs.Scheduler
	Sender mailer.Sender
	From   string
	// CheckEmail receives check-mailed notices for accounting.
	CheckEmail string
	// Notifications receives activity-stream entries for request owners.
	// Nil disables the stream.
	Notifications activity.Store
}

// notify appends a notification after commit. A nil stream drops it.
func (s *Service) notify(h Hooks, n activity.Notification) {
	if s.Notifications == nil {
		return
	}
	h.OnCommit(func(ctx context.Context) error {
		_, err := s.Notifications.Append(ctx, &n)
		return err
	})
}

// Resolve closes any task without a typed action. Returns
// task.ErrAlreadyResolved when the task is not open.
func (s *Service) Resolve(ctx context.Context, taskID, actor string, formData map[string]any) (*task.Task, error) {
	var out *task.Task
	err := s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		var err error
		out, err = st.Tasks.Resolve(ctx, taskID, actor, formData)
		return err
	})
	return out, err
}

// Defer hides an open task from the queue until the given date.
func (s *Service) Defer(ctx context.Context, taskID string, until time.Time) (*task.Task, error) {
	var out *task.Task
	err := s.UoW.Transact(ctx, func(st Stores, _ Hooks) error {
		var err error
		out, err = st.Tasks.Defer(ctx, taskID, until)
		return err
	})
	return out, err
}
